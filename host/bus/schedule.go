package bus

import (
	"fmt"
	"strings"

	"github.com/ardnew/lshost/host/hal"
	"github.com/ardnew/lshost/pkg"
)

// Op is a primitive bus operation.
type Op uint8

// Primitive operations. Every operation consumes exactly one bit time except
// OpIdle, which consumes Step.Bits.
const (
	OpDrive   Op = iota // Assert Step.Symbol
	OpIdle              // Leave the lines as they are
	OpAcquire           // Latch J and switch to output
	OpRelease           // Switch to input and clear the latch
)

// Step is one entry of a schedule.
type Step struct {
	Op     Op
	Symbol Symbol // OpDrive only
	Bits   uint16 // OpIdle only
}

// Drive returns a step asserting sym for one bit time.
func Drive(sym Symbol) Step { return Step{Op: OpDrive, Symbol: sym} }

// Idle returns a step holding the current line state for n bit times.
func Idle(n uint16) Step { return Step{Op: OpIdle, Bits: n} }

// Acquire returns a step taking ownership of the lines.
func Acquire() Step { return Step{Op: OpAcquire} }

// Release returns a step handing the lines to the device.
func Release() Step { return Step{Op: OpRelease} }

// Duration returns the step's length in bit times.
func (s Step) Duration() int {
	if s.Op == OpIdle {
		return int(s.Bits)
	}
	return 1
}

// Schedule is a closed-form sequence of primitive operations. Its elapsed
// time is the sum of its steps' durations and is known before it runs.
type Schedule []Step

// Bits returns the schedule length in bit times.
func (s Schedule) Bits() int {
	n := 0
	for _, st := range s {
		n += st.Duration()
	}
	return n
}

// Symbols returns the driven symbols in order.
func (s Schedule) Symbols() []Symbol {
	out := make([]Symbol, 0, len(s))
	for _, st := range s {
		if st.Op == OpDrive {
			out = append(out, st.Symbol)
		}
	}
	return out
}

// AppendSymbols appends a Drive step for each symbol.
func (s Schedule) AppendSymbols(syms ...Symbol) Schedule {
	for _, sym := range syms {
		s = append(s, Drive(sym))
	}
	return s
}

// String renders the schedule in token notation: OUT and IN for direction
// changes, J, K and X for symbols, and one D per idle bit time.
func (s Schedule) String() string {
	var sb strings.Builder
	sep := func() {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
	}
	for _, st := range s {
		switch st.Op {
		case OpAcquire:
			sep()
			sb.WriteString("OUT")
		case OpRelease:
			sep()
			sb.WriteString("IN")
		case OpDrive:
			sep()
			sb.WriteString(st.Symbol.String())
		case OpIdle:
			for i := uint16(0); i < st.Bits; i++ {
				sep()
				sb.WriteByte('D')
			}
		}
	}
	return sb.String()
}

// ParseSchedule reads token notation. X while the lines are released only
// clears the latch and is read as one idle bit. Consecutive idle bits merge.
func ParseSchedule(text string) (Schedule, error) {
	var s Schedule
	owner := OwnerDevice
	idle := func() {
		if n := len(s); n > 0 && s[n-1].Op == OpIdle && s[n-1].Bits < ^uint16(0) {
			s[n-1].Bits++
			return
		}
		s = append(s, Idle(1))
	}
	for _, tok := range strings.Fields(text) {
		switch tok {
		case "OUT":
			s = append(s, Acquire())
			owner = OwnerHost
		case "IN":
			s = append(s, Release())
			owner = OwnerDevice
		case "J":
			s = append(s, Drive(SymbolJ))
		case "K":
			s = append(s, Drive(SymbolK))
		case "X":
			if owner == OwnerDevice {
				idle()
			} else {
				s = append(s, Drive(SymbolSE0))
			}
		case "D":
			idle()
		default:
			return nil, fmt.Errorf("%w: unknown schedule token %q", pkg.ErrInvalidParameter, tok)
		}
	}
	return s, nil
}

// Validate checks every ownership transition, starting from start, and
// returns the owner after the last step.
func (s Schedule) Validate(start Owner) (Owner, error) {
	owner := start
	for i, st := range s {
		switch st.Op {
		case OpDrive:
			if owner != OwnerHost {
				return owner, fmt.Errorf("%w: step %d drives %s", pkg.ErrBusReleased, i, st.Symbol)
			}
		case OpAcquire:
			if owner == OwnerHost {
				return owner, fmt.Errorf("%w: step %d", pkg.ErrBusOwned, i)
			}
			owner = OwnerHost
		case OpRelease:
			if owner != OwnerHost {
				return owner, fmt.Errorf("%w: step %d releases twice", pkg.ErrBusReleased, i)
			}
			owner = OwnerDevice
		case OpIdle:
		default:
			return owner, fmt.Errorf("%w: step %d has op %d", pkg.ErrInvalidParameter, i, st.Op)
		}
	}
	return owner, nil
}

// Compile flattens s into frames for a HAL that streams natively. Adjacent
// steps with the same direction and latch merge into one frame.
func Compile(s Schedule, pairs []hal.PinPair, speed hal.Speed) []hal.Frame {
	var (
		frames []hal.Frame
		out    bool
		latch  hal.Levels
	)
	emit := func(bits int) {
		for bits > 0 {
			n := bits
			if n > int(^uint16(0)) {
				n = int(^uint16(0))
			}
			last := len(frames) - 1
			if last >= 0 && frames[last].Output == out && frames[last].Levels == latch &&
				int(frames[last].Bits)+n <= int(^uint16(0)) {
				frames[last].Bits += uint16(n)
			} else {
				frames = append(frames, hal.Frame{Output: out, Levels: latch, Bits: uint16(n)})
			}
			bits -= n
		}
	}
	for _, st := range s {
		switch st.Op {
		case OpAcquire:
			out, latch = true, SymbolJ.Levels(pairs, speed)
		case OpRelease:
			out, latch = false, 0
		case OpDrive:
			latch = st.Symbol.Levels(pairs, speed)
		}
		emit(st.Duration())
	}
	return frames
}
