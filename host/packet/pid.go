package packet

import "fmt"

// PID is a USB packet identifier byte: a 4-bit type in the low nibble and
// its complement in the high nibble.
type PID uint8

// Packet identifiers used by the host.
const (
	PIDOut   PID = 0xE1
	PIDIn    PID = 0x69
	PIDSOF   PID = 0xA5
	PIDSetup PID = 0x2D
	PIDData0 PID = 0xC3
	PIDData1 PID = 0x4B
	PIDAck   PID = 0xD2
	PIDNak   PID = 0x5A
	PIDStall PID = 0x1E
)

// Valid reports whether the check nibble complements the type nibble.
func (p PID) Valid() bool {
	return byte(p)>>4 == ^byte(p)&0x0F
}

// IsToken reports whether p is OUT, IN, SOF or SETUP.
func (p PID) IsToken() bool {
	return byte(p)&0x03 == 0x01
}

// IsData reports whether p is DATA0 or DATA1.
func (p PID) IsData() bool {
	return p == PIDData0 || p == PIDData1
}

// IsHandshake reports whether p is ACK, NAK or STALL.
func (p PID) IsHandshake() bool {
	return byte(p)&0x03 == 0x02
}

// String returns the packet type name.
func (p PID) String() string {
	switch p {
	case PIDOut:
		return "OUT"
	case PIDIn:
		return "IN"
	case PIDSOF:
		return "SOF"
	case PIDSetup:
		return "SETUP"
	case PIDData0:
		return "DATA0"
	case PIDData1:
		return "DATA1"
	case PIDAck:
		return "ACK"
	case PIDNak:
		return "NAK"
	case PIDStall:
		return "STALL"
	default:
		return fmt.Sprintf("PID(%#02x)", uint8(p))
	}
}
