package sim

import (
	"fmt"

	"github.com/ardnew/lshost/host/packet"
)

// RecordKind classifies transcript entries.
type RecordKind uint8

// Transcript entry kinds.
const (
	RecordPacket    RecordKind = iota // Decoded host packet
	RecordReset                       // SE0 driven with a coarse delay
	RecordAttach                      // Device plugged in
	RecordDetach                      // Device unplugged
	RecordIndicator                   // Status indicator toggled
	RecordError                       // Host transmission failed to decode or collided
	RecordResponse                    // Device answer driven onto the lines
)

// String returns the kind name.
func (k RecordKind) String() string {
	switch k {
	case RecordPacket:
		return "packet"
	case RecordReset:
		return "reset"
	case RecordAttach:
		return "attach"
	case RecordDetach:
		return "detach"
	case RecordIndicator:
		return "indicator"
	case RecordError:
		return "error"
	case RecordResponse:
		return "response"
	default:
		return fmt.Sprintf("RecordKind(%d)", uint8(k))
	}
}

// Record is one transcript entry.
type Record struct {
	Kind   RecordKind
	Cycle  uint64 // Clock when the entry was recorded
	Cycles uint64 // Reset duration
	Slot   int    // Attach and detach
	Packet packet.Packet
	Err    error
}

// String returns a one-line description.
func (r Record) String() string {
	switch r.Kind {
	case RecordPacket:
		return fmt.Sprintf("@%d %s", r.Cycle, r.Packet)
	case RecordResponse:
		return fmt.Sprintf("@%d response %s", r.Cycle, r.Packet.PID)
	case RecordReset:
		return fmt.Sprintf("@%d reset %d cycles", r.Cycle, r.Cycles)
	case RecordAttach, RecordDetach:
		return fmt.Sprintf("@%d %s slot %d", r.Cycle, r.Kind, r.Slot)
	case RecordError:
		return fmt.Sprintf("@%d error: %v", r.Cycle, r.Err)
	default:
		return fmt.Sprintf("@%d %s", r.Cycle, r.Kind)
	}
}

// Packets returns the decoded host packets in a transcript.
func Packets(records []Record) []packet.Packet {
	var out []packet.Packet
	for _, r := range records {
		if r.Kind == RecordPacket {
			out = append(out, r.Packet)
		}
	}
	return out
}
