// Package probe reads connector presence on the bench through a Microchip
// MCP2221A USB-to-GPIO bridge.
//
// The bridge's four GPIO pins are wired as inputs to the D+/D- lines of two
// connector slots. Reading them with the GPIO get command yields the same
// port snapshot the firmware samples, so [presence.Detect] applies as is.
// This checks a board's connectors and pull-ups without flashing firmware.
//
// USB HID support provided by: https://github.com/karalabe/hid
package probe
