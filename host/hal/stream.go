package hal

import "errors"

// ErrStreamOverflow indicates a schedule that does not fit the buffers of a
// streaming HAL.
var ErrStreamOverflow = errors.New("schedule exceeds stream buffers")

// Loop gives the cycle cost of a streaming HAL's timed loops.
type Loop struct {
	BitCycles    uint16 // One bit time
	SpinCycles   uint16 // One iteration of the idle loop
	SwitchCycles uint16 // Direction switch, charged to each released run
}

// Run is a stretch of frames with one direction, ready for a loop that does
// no arithmetic between bits. A driven run plays Latch[Start:End], one byte
// per bit; a released run spins Spins times.
type Run struct {
	Output     bool
	Start, End uint16
	Spins      uint16
}

// Expand flattens frames into latch and runs before any line is touched and
// returns the number of runs used. Consecutive driven frames share one run.
func Expand(frames []Frame, loop Loop, latch []uint8, runs []Run) (int, error) {
	if loop.SpinCycles == 0 {
		return 0, ErrStreamOverflow
	}
	var bits uint16
	n := 0
	for i := range frames {
		f := &frames[i]
		if f.Bits == 0 {
			continue
		}
		if !f.Output {
			if n == len(runs) {
				return n, ErrStreamOverflow
			}
			cycles := uint32(f.Bits) * uint32(loop.BitCycles)
			var spins uint32
			if cycles > uint32(loop.SwitchCycles) {
				spins = (cycles - uint32(loop.SwitchCycles)) / uint32(loop.SpinCycles)
			}
			if spins > uint32(^uint16(0)) {
				return n, ErrStreamOverflow
			}
			runs[n] = Run{Spins: uint16(spins)}
			n++
			continue
		}

		if int(bits)+int(f.Bits) > len(latch) {
			return n, ErrStreamOverflow
		}
		if n == 0 || !runs[n-1].Output {
			if n == len(runs) {
				return n, ErrStreamOverflow
			}
			runs[n] = Run{Output: true, Start: bits, End: bits}
			n++
		}
		for j := uint16(0); j < f.Bits; j++ {
			latch[bits] = uint8(f.Levels)
			bits++
		}
		runs[n-1].End = bits
	}
	return n, nil
}
