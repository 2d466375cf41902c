package hal

import (
	"context"
	"time"
)

// Speed represents the USB signaling rate of the emulated bus.
type Speed uint8

// USB speed constants (USB 2.0 Specification).
const (
	SpeedUnknown Speed = iota // Not configured
	SpeedLow                  // Low Speed (1.5 Mbit/s)
	SpeedFull                 // Full Speed (12 Mbit/s)
)

// String returns a human-readable speed name.
func (s Speed) String() string {
	switch s {
	case SpeedLow:
		return "Low Speed"
	case SpeedFull:
		return "Full Speed"
	default:
		return "Unknown"
	}
}

// BitRate returns the bus bit rate in bits per second, or 0 if unknown.
func (s Speed) BitRate() uint32 {
	switch s {
	case SpeedLow:
		return 1_500_000
	case SpeedFull:
		return 12_000_000
	default:
		return 0
	}
}

// Levels is a snapshot of the I/O port that carries every D+/D- line. Each
// set bit is a line at logic high.
type Levels uint8

// PinPair identifies the D+ and D- bits of one connector slot within Levels.
type PinPair struct {
	DP Levels // D+ mask
	DM Levels // D- mask
}

// Mask returns both lines of the pair.
func (p PinPair) Mask() Levels {
	return p.DP | p.DM
}

// Idle returns the pair's J (idle) pattern at the given speed: D- high for
// low speed, D+ high for full speed. A device's pull-up produces this pattern
// while the host is not driving.
func (p PinPair) Idle(speed Speed) Levels {
	if speed == SpeedLow {
		return p.DM
	}
	return p.DP
}

// Valid reports whether both masks are single distinct bits.
func (p PinPair) Valid() bool {
	single := func(m Levels) bool { return m != 0 && m&(m-1) == 0 }
	return single(p.DP) && single(p.DM) && p.DP != p.DM
}

// SetupPacket represents a USB SETUP packet payload.
type SetupPacket struct {
	RequestType uint8  // Request characteristics
	Request     uint8  // Specific request
	Value       uint16 // Request-specific value
	Index       uint16 // Request-specific index
	Length      uint16 // Number of bytes to transfer
}

// SetupPacketSize is the size of a USB SETUP packet in bytes.
const SetupPacketSize = 8

// ParseSetupPacket parses raw bytes into a SetupPacket.
// Returns false if data is too short.
func ParseSetupPacket(data []byte, out *SetupPacket) bool {
	if len(data) < SetupPacketSize {
		return false
	}
	out.RequestType = data[0]
	out.Request = data[1]
	out.Value = uint16(data[2]) | uint16(data[3])<<8
	out.Index = uint16(data[4]) | uint16(data[5])<<8
	out.Length = uint16(data[6]) | uint16(data[7])<<8
	return true
}

// MarshalTo writes the setup packet to buf.
// Returns the number of bytes written (8), or 0 if buf is too small.
func (s *SetupPacket) MarshalTo(buf []byte) int {
	if len(buf) < SetupPacketSize {
		return 0
	}
	buf[0] = s.RequestType
	buf[1] = s.Request
	buf[2] = byte(s.Value)
	buf[3] = byte(s.Value >> 8)
	buf[4] = byte(s.Index)
	buf[5] = byte(s.Index >> 8)
	buf[6] = byte(s.Length)
	buf[7] = byte(s.Length >> 8)
	return SetupPacketSize
}

// Frame is one segment of a compiled schedule: a direction and latch value
// held for a whole number of bit times.
type Frame struct {
	Output bool   // Pairs driven by the host
	Levels Levels // Output latch
	Bits   uint16 // Duration in bit times
}

// LineHAL defines the hardware abstraction for a bit-banged bus host.
//
// Every D+/D- line lives on a single I/O port so that one write changes all
// connector slots at once. Implementations must make WriteLevels,
// SetDirection and HoldCycles deterministic: the bus layer assumes each call
// costs a fixed, known number of cycles.
type LineHAL interface {
	// Init prepares the port. The lines must be left as inputs with the
	// output latch cleared.
	Init(ctx context.Context) error

	// Close releases the port.
	Close() error

	// Slots returns the connector pin pairs wired to the port.
	Slots() []PinPair

	// ClockHz returns the instruction clock in Hz.
	ClockHz() uint32

	// SetDirection switches every slot's lines to output (true) or input.
	SetDirection(output bool)

	// WriteLevels writes the output latch. With the lines configured as
	// inputs this only controls the internal pull-ups.
	WriteLevels(v Levels)

	// ReadLevels samples the pins without changing direction.
	ReadLevels() Levels

	// HoldCycles busy-waits so that the line state written last persists
	// for n clock cycles, including the cost of the write itself.
	HoldCycles(n uint32)

	// Delay busy-waits for at least d.
	Delay(d time.Duration)

	// DisableInterrupts masks interrupts and returns the previous state.
	DisableInterrupts() uintptr

	// RestoreInterrupts restores a state returned by DisableInterrupts.
	RestoreInterrupts(state uintptr)

	// ToggleIndicator flips the status indicator output.
	ToggleIndicator()
}

// Streamer is implemented by HALs that can emit a compiled schedule
// natively, such as an unrolled instruction loop or a PIO state machine.
type Streamer interface {
	// Stream emits frames back to back, each held for Bits bit times of
	// cyclesPerBit cycles. Interrupts are already disabled by the caller.
	Stream(frames []Frame, cyclesPerBit uint32)
}
