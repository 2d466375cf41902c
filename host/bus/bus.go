package bus

import (
	"fmt"
	"time"

	"github.com/ardnew/lshost/host/hal"
	"github.com/ardnew/lshost/pkg"
)

// Bus is the owned handle to the physical line pairs. It is the only path to
// the HAL's port writes, so the owner it tracks always matches the pin
// direction.
//
// A Bus is not safe for concurrent use; there is exactly one thread of
// control on the target.
type Bus struct {
	hal          hal.LineHAL
	slots        []hal.PinPair
	speed        hal.Speed
	cyclesPerBit uint32
	symbols      [3]hal.Levels
	owner        Owner
}

// New creates a bus over every slot of h at the given speed. The HAL clock
// must be a whole multiple of the bit rate.
func New(h hal.LineHAL, speed hal.Speed) (*Bus, error) {
	rate := speed.BitRate()
	if rate == 0 {
		return nil, fmt.Errorf("%w: speed %s", pkg.ErrInvalidParameter, speed)
	}
	clock := h.ClockHz()
	if clock < rate || clock%rate != 0 {
		return nil, fmt.Errorf("%w: %d Hz clock is not a multiple of %d bit/s",
			pkg.ErrInvalidParameter, clock, rate)
	}

	slots := h.Slots()
	if len(slots) == 0 {
		return nil, fmt.Errorf("%w: no slots", pkg.ErrInvalidParameter)
	}
	var used hal.Levels
	for i, p := range slots {
		if !p.Valid() || used&p.Mask() != 0 {
			return nil, fmt.Errorf("%w: slot %d pins %#02x/%#02x",
				pkg.ErrInvalidParameter, i, p.DP, p.DM)
		}
		used |= p.Mask()
	}

	b := &Bus{
		hal:          h,
		slots:        slots,
		speed:        speed,
		cyclesPerBit: clock / rate,
	}
	for _, sym := range []Symbol{SymbolJ, SymbolK, SymbolSE0} {
		b.symbols[sym] = sym.Levels(slots, speed)
	}

	pkg.LogDebug(pkg.ComponentBus, "bus configured",
		"speed", speed.String(),
		"slots", len(slots),
		"cyclesPerBit", b.cyclesPerBit)
	return b, nil
}

// Speed returns the bus speed.
func (b *Bus) Speed() hal.Speed { return b.speed }

// Slots returns the connector pairs the bus drives.
func (b *Bus) Slots() []hal.PinPair { return b.slots }

// CyclesPerBit returns the Bit Time in clock cycles.
func (b *Bus) CyclesPerBit() uint32 { return b.cyclesPerBit }

// BitTime returns the Bit Time as a duration, truncated to nanoseconds.
func (b *Bus) BitTime() time.Duration {
	return time.Duration(uint64(b.cyclesPerBit) * uint64(time.Second) / uint64(b.hal.ClockHz()))
}

// Owner returns the side currently owning the lines.
func (b *Bus) Owner() Owner { return b.owner }

// Levels returns the port value asserting sym on every slot.
func (b *Bus) Levels(sym Symbol) hal.Levels { return b.symbols[sym] }

// Sample returns the instantaneous pin levels without changing direction.
func (b *Bus) Sample() hal.Levels {
	return b.hal.ReadLevels()
}

// Acquire latches J and switches every pair to output for one bit time.
func (b *Bus) Acquire() error {
	if b.owner == OwnerHost {
		return pkg.ErrBusOwned
	}
	b.acquire()
	return nil
}

// Drive asserts sym on every pair and holds it for one bit time.
func (b *Bus) Drive(sym Symbol) error {
	if b.owner != OwnerHost {
		return pkg.ErrBusReleased
	}
	if sym > SymbolSE0 {
		return fmt.Errorf("%w: symbol %d", pkg.ErrInvalidParameter, sym)
	}
	b.drive(sym)
	return nil
}

// Release hands the lines to the device: every pair becomes an input, the
// latch is cleared and the state is held for one bit time.
func (b *Bus) Release() error {
	if b.owner != OwnerHost {
		return pkg.ErrBusReleased
	}
	b.release()
	return nil
}

// Idle leaves the lines as they are for n bit times.
func (b *Bus) Idle(n uint16) {
	b.hal.HoldCycles(uint32(n) * b.cyclesPerBit)
}

// Wait busy-waits for at least d without touching the lines.
func (b *Bus) Wait(d time.Duration) {
	b.hal.Delay(d)
}

// Run executes s with interrupts disabled. The whole schedule is validated
// against the current owner before any pin changes.
func (b *Bus) Run(s Schedule) error {
	final, err := s.Validate(b.owner)
	if err != nil {
		return err
	}

	state := b.hal.DisableInterrupts()
	if st, ok := b.hal.(hal.Streamer); ok {
		st.Stream(Compile(s, b.slots, b.speed), b.cyclesPerBit)
	} else {
		for _, step := range s {
			switch step.Op {
			case OpAcquire:
				b.acquire()
			case OpDrive:
				b.drive(step.Symbol)
			case OpIdle:
				b.hal.HoldCycles(uint32(step.Bits) * b.cyclesPerBit)
			case OpRelease:
				b.release()
			}
		}
	}
	b.hal.RestoreInterrupts(state)

	b.owner = final
	return nil
}

// Hold drives SE0 on every pair for at least d, then releases the lines.
func (b *Bus) Hold(d time.Duration) error {
	if b.owner == OwnerHost {
		return pkg.ErrBusOwned
	}
	b.hal.WriteLevels(b.symbols[SymbolSE0])
	b.hal.SetDirection(true)
	b.owner = OwnerHost
	b.hal.Delay(d)
	b.hal.SetDirection(false)
	b.owner = OwnerDevice
	return nil
}

func (b *Bus) acquire() {
	b.hal.WriteLevels(b.symbols[SymbolJ])
	b.hal.SetDirection(true)
	b.owner = OwnerHost
	b.hal.HoldCycles(b.cyclesPerBit)
}

func (b *Bus) drive(sym Symbol) {
	b.hal.WriteLevels(b.symbols[sym])
	b.hal.HoldCycles(b.cyclesPerBit)
}

func (b *Bus) release() {
	b.hal.SetDirection(false)
	b.hal.WriteLevels(0)
	b.owner = OwnerDevice
	b.hal.HoldCycles(b.cyclesPerBit)
}
