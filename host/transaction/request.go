package transaction

import (
	"fmt"

	"github.com/ardnew/lshost/host/hal"
)

// Standard request codes (USB 2.0 Specification, Table 9-4).
const (
	RequestSetAddress       = 0x05
	RequestSetConfiguration = 0x09
)

// RequestTypeStandardOut is bmRequestType for a standard, host-to-device
// request addressed to the device.
const RequestTypeStandardOut = 0x00

// MaxAddress is the highest assignable device address.
const MaxAddress = 127

// Request is a control request without a data stage.
type Request struct {
	Address uint8 // Address the SETUP token targets
	Setup   hal.SetupPacket
}

// SetAddress returns the request moving the default device at address 0 to
// addr.
func SetAddress(addr uint8) Request {
	return Request{
		Address: 0,
		Setup: hal.SetupPacket{
			RequestType: RequestTypeStandardOut,
			Request:     RequestSetAddress,
			Value:       uint16(addr),
		},
	}
}

// SetConfiguration returns the request selecting configuration value on the
// device at addr.
func SetConfiguration(addr, value uint8) Request {
	return Request{
		Address: addr,
		Setup: hal.SetupPacket{
			RequestType: RequestTypeStandardOut,
			Request:     RequestSetConfiguration,
			Value:       uint16(value),
		},
	}
}

// Payload returns the 8-byte setup packet carried by DATA0.
func (r Request) Payload() []byte {
	buf := make([]byte, hal.SetupPacketSize)
	r.Setup.MarshalTo(buf)
	return buf
}

// String returns the request name and target.
func (r Request) String() string {
	switch r.Setup.Request {
	case RequestSetAddress:
		return fmt.Sprintf("SET_ADDRESS(%d) @%d", r.Setup.Value, r.Address)
	case RequestSetConfiguration:
		return fmt.Sprintf("SET_CONFIGURATION(%d) @%d", r.Setup.Value, r.Address)
	default:
		return fmt.Sprintf("request %#02x @%d", r.Setup.Request, r.Address)
	}
}
