package device

import "fmt"

// Device states as defined in USB 2.0 specification section 9.1.
const (
	StateDetached   State = 0 // Not attached to the bus
	StatePowered    State = 1 // Attached and powered, awaiting reset
	StateDefault    State = 2 // Reset, answering at address 0
	StateAddress    State = 3 // Assigned a unique address
	StateConfigured State = 4 // Configuration selected; charging enabled
)

// State represents USB device state.
type State uint8

// String returns a human-readable state description.
func (s State) String() string {
	switch s {
	case StateDetached:
		return "Detached"
	case StatePowered:
		return "Powered"
	case StateDefault:
		return "Default"
	case StateAddress:
		return "Address"
	case StateConfigured:
		return "Configured"
	default:
		return fmt.Sprintf("Unknown State (%d)", s)
	}
}

// Standard USB request codes handled by the peripheral (USB 2.0 Spec
// Table 9-4).
const (
	RequestSetAddress       = 0x05
	RequestSetConfiguration = 0x09
)

// Request type values (USB 2.0 Spec Table 9-2).
const (
	RequestTypeMask              = 0x60
	RequestTypeStandard          = 0x00
	RequestDirectionDeviceToHost = 0x80
)

// stage tracks progress through a control transfer.
type stage uint8

const (
	stageIdle   stage = iota // No transfer in progress
	stageToken               // SETUP token received
	stageData                // Setup data received
	stageStatus              // IN token for the status stage received
)
