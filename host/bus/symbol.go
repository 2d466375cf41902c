package bus

import (
	"fmt"

	"github.com/ardnew/lshost/host/hal"
)

// Symbol is a differential line state.
type Symbol uint8

// Line symbols.
const (
	SymbolJ   Symbol = iota // Idle state, data transition reference
	SymbolK                 // Opposite of J
	SymbolSE0               // Both lines low (end of packet, reset)
)

// String returns the single-letter notation used in schedules (X for SE0).
func (s Symbol) String() string {
	switch s {
	case SymbolJ:
		return "J"
	case SymbolK:
		return "K"
	case SymbolSE0:
		return "X"
	default:
		return fmt.Sprintf("Symbol(%d)", uint8(s))
	}
}

// Opposite returns K for J and J for K. SE0 has no opposite and is returned
// unchanged.
func (s Symbol) Opposite() Symbol {
	switch s {
	case SymbolJ:
		return SymbolK
	case SymbolK:
		return SymbolJ
	default:
		return s
	}
}

// Levels returns the port value that asserts s on every pair.
func (s Symbol) Levels(pairs []hal.PinPair, speed hal.Speed) hal.Levels {
	var v hal.Levels
	for _, p := range pairs {
		switch s {
		case SymbolJ:
			v |= p.Idle(speed)
		case SymbolK:
			v |= p.Mask() &^ p.Idle(speed)
		}
	}
	return v
}

// SymbolOf interprets the pair's lines within v. It returns false for SE1
// (both lines high), which has no meaning on the bus.
func SymbolOf(v hal.Levels, pair hal.PinPair, speed hal.Speed) (Symbol, bool) {
	j := pair.Idle(speed)
	switch v & pair.Mask() {
	case 0:
		return SymbolSE0, true
	case j:
		return SymbolJ, true
	case pair.Mask() &^ j:
		return SymbolK, true
	default:
		return SymbolSE0, false
	}
}

// Owner identifies which side drives the line pairs.
type Owner uint8

// Bus owners. The zero value is the device, matching the power-on state
// where every line is an input.
const (
	OwnerDevice Owner = iota // Lines are inputs; the device may drive them
	OwnerHost                // Lines are outputs driven by the host
)

// String returns the owner name.
func (o Owner) String() string {
	switch o {
	case OwnerDevice:
		return "device"
	case OwnerHost:
		return "host"
	default:
		return fmt.Sprintf("Owner(%d)", uint8(o))
	}
}
