package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/ardnew/lshost/host/bus"
	"github.com/ardnew/lshost/host/hal"
	"github.com/ardnew/lshost/pkg"
)

// Reset timing (USB 2.0 Specification, section 7.1.7.5).
const (
	MinResetHold = 10 * time.Millisecond
	ResetHold    = MinResetHold
)

// Detect returns the slot showing the J idle pattern. It reports false unless
// exactly one slot does.
func Detect(levels hal.Levels, slots []hal.PinPair, speed hal.Speed) (int, bool) {
	found := -1
	for i, p := range slots {
		if levels&p.Mask() != p.Idle(speed) {
			continue
		}
		if found >= 0 {
			return -1, false
		}
		found = i
	}
	return found, found >= 0
}

// Detector samples a bus for attached devices.
type Detector struct {
	bus *bus.Bus
}

// New creates a detector on b.
func New(b *bus.Bus) *Detector {
	return &Detector{bus: b}
}

// Bus returns the bus the detector samples.
func (d *Detector) Bus() *bus.Bus { return d.bus }

// Poll samples the lines once and reports the occupied slot.
func (d *Detector) Poll() (int, bool) {
	return Detect(d.bus.Sample(), d.bus.Slots(), d.bus.Speed())
}

// ResetBus drives SE0 on every slot for hold, then releases the lines so the
// device may signal again.
func (d *Detector) ResetBus(hold time.Duration) error {
	if hold < MinResetHold {
		return fmt.Errorf("%w: reset hold %v shorter than %v",
			pkg.ErrInvalidParameter, hold, MinResetHold)
	}
	if err := d.bus.Hold(hold); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	pkg.LogDebug(pkg.ComponentPresence, "bus reset", "hold", hold)
	return nil
}

// WaitPresent polls every interval until a device is present. The context is
// consulted between polls only.
func (d *Detector) WaitPresent(ctx context.Context, interval time.Duration) (int, error) {
	for {
		if slot, ok := d.Poll(); ok {
			pkg.LogDebug(pkg.ComponentPresence, "device present", "slot", slot)
			return slot, nil
		}
		select {
		case <-ctx.Done():
			return -1, fmt.Errorf("%w: %w", pkg.ErrCancelled, ctx.Err())
		default:
		}
		d.bus.Wait(interval)
	}
}
