// Package device models the peripheral at the far end of the emulated bus.
//
// The host never decodes what the peripheral answers, so nothing on the
// target can tell whether enumeration succeeded. [Peripheral] closes that
// gap in simulation: it consumes the packets the host drives, follows the
// USB device state machine for SET_ADDRESS and SET_CONFIGURATION, and
// reports [Peripheral.Charging] once a configuration is selected.
package device
