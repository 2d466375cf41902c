package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/ardnew/lshost/device"
	"github.com/ardnew/lshost/host/bus"
	"github.com/ardnew/lshost/host/hal"
	"github.com/ardnew/lshost/host/packet"
	"github.com/ardnew/lshost/pkg"
)

// DefaultClockHz is the clock of the reference board (12 MHz).
const DefaultClockHz = 12_000_000

// DefaultSlots returns the reference board wiring: four connectors sharing
// one 8-bit port.
func DefaultSlots() []hal.PinPair {
	return []hal.PinPair{
		{DP: 1 << 7, DM: 1 << 1},
		{DP: 1 << 2, DM: 1 << 4},
		{DP: 1 << 3, DM: 1 << 5},
		{DP: 1 << 6, DM: 1 << 0},
	}
}

// unplugLatency is the time from the frame that completes
// Script.UnplugAfterFrames to the detachment, so the device leaves while the
// host waits for the next frame.
const unplugLatency = 500 * time.Microsecond

// responseDelay is the bus turnaround, in bit times, between the host
// releasing the lines and the device starting its answer.
const responseDelay = 2

// Config configures a simulated HAL.
type Config struct {
	ClockHz uint32
	Speed   hal.Speed
	Slots   []hal.PinPair

	// MaxSegments bounds the recorded line trace; 0 records everything.
	MaxSegments int
}

// DefaultConfig returns the reference board at low speed.
func DefaultConfig() Config {
	return Config{
		ClockHz: DefaultClockHz,
		Speed:   hal.SpeedLow,
		Slots:   DefaultSlots(),
	}
}

// Script describes how the simulated peripheral is plugged in and out.
type Script struct {
	// Slot is the connector the peripheral is plugged into.
	Slot int

	// AttachAfter is the time from Init until the first attachment.
	AttachAfter time.Duration

	// UnplugAfterFrames detaches the peripheral shortly after it has seen
	// this many SOF packets while configured. Zero keeps it attached.
	UnplugAfterFrames int

	// ReplugAfter is the time from a detachment until the next attachment.
	// Zero leaves the slot empty.
	ReplugAfter time.Duration

	// Plugs limits the number of attachments. Zero means no limit.
	Plugs int
}

// Segment is an interval of constant host-driven line state.
type Segment struct {
	Start  uint64 // Cycle at which the state was asserted
	Cycles uint64 // Duration in cycles
	Levels hal.Levels
}

// HAL is a simulated hal.LineHAL. Time is a cycle counter advanced only by
// HoldCycles and Delay, so every schedule runs in zero wall-clock time with
// exact timing.
type HAL struct {
	cfg          Config
	cyclesPerBit uint32

	cycles uint64
	output bool
	latch  hal.Levels

	irqDepth       int
	unmaskedCycles uint64
	toggles        int

	script     Script
	plugs      int
	attached   bool
	attachAt   uint64
	attachDue  bool
	detachAt   uint64
	detachDue  bool
	peripheral *device.Peripheral

	tx         []bus.Symbol
	resp       []bus.Symbol
	respAt     uint64
	segments   []Segment
	transcript []Record
}

// New creates a simulated HAL. The clock must be a whole multiple of the bus
// bit rate.
func New(cfg Config) (*HAL, error) {
	rate := cfg.Speed.BitRate()
	if rate == 0 || cfg.ClockHz < rate || cfg.ClockHz%rate != 0 {
		return nil, fmt.Errorf("%w: clock %d Hz, speed %s",
			pkg.ErrInvalidParameter, cfg.ClockHz, cfg.Speed)
	}
	if len(cfg.Slots) == 0 {
		return nil, fmt.Errorf("%w: no slots", pkg.ErrInvalidParameter)
	}
	return &HAL{
		cfg:          cfg,
		cyclesPerBit: cfg.ClockHz / rate,
		peripheral:   device.New(),
	}, nil
}

// SetScript installs the plug script. It takes effect at the next Init.
func (h *HAL) SetScript(s Script) {
	h.script = s
}

// Init resets the clock and schedules the first attachment.
func (h *HAL) Init(ctx context.Context) error {
	if h.script.Slot < 0 || h.script.Slot >= len(h.cfg.Slots) {
		return fmt.Errorf("%w: script slot %d", pkg.ErrInvalidParameter, h.script.Slot)
	}
	h.cycles = 0
	h.output = false
	h.latch = 0
	h.plugs = 0
	h.attached = false
	h.detachDue = false
	h.resp = nil
	h.scheduleAttach(h.script.AttachAfter)
	pkg.LogDebug(pkg.ComponentHAL, "simulated HAL initialized",
		"clockHz", h.cfg.ClockHz,
		"speed", h.cfg.Speed.String(),
		"slots", len(h.cfg.Slots))
	return nil
}

// Close implements hal.LineHAL.
func (h *HAL) Close() error { return nil }

// Slots implements hal.LineHAL.
func (h *HAL) Slots() []hal.PinPair { return h.cfg.Slots }

// ClockHz implements hal.LineHAL.
func (h *HAL) ClockHz() uint32 { return h.cfg.ClockHz }

// SetDirection implements hal.LineHAL. Switching to input ends the host's
// transmission; the symbols driven since the last switch are decoded and
// handed to the peripheral.
// Taking the lines while the device is still answering is recorded as a
// collision.
func (h *HAL) SetDirection(output bool) {
	if h.output && !output {
		h.flush()
	}
	if !h.output && output {
		h.update()
		if _, ok := h.responding(); ok {
			h.transcript = append(h.transcript, Record{Kind: RecordError, Cycle: h.cycles, Err: pkg.ErrCollision})
			pkg.LogWarn(pkg.ComponentHAL, "host drove the lines during a device response", "cycle", h.cycles)
		}
		h.resp = nil
	}
	h.output = output
}

// WriteLevels implements hal.LineHAL.
func (h *HAL) WriteLevels(v hal.Levels) {
	h.latch = v
}

// ReadLevels implements hal.LineHAL.
func (h *HAL) ReadLevels() hal.Levels {
	h.update()
	if h.output {
		return h.latch
	}
	if !h.attached {
		return 0
	}
	pair := h.cfg.Slots[h.script.Slot]
	if sym, ok := h.responding(); ok {
		return sym.Levels([]hal.PinPair{pair}, h.cfg.Speed)
	}
	return pair.Idle(h.cfg.Speed)
}

// HoldCycles implements hal.LineHAL.
func (h *HAL) HoldCycles(n uint32) {
	if h.output {
		h.record(uint64(n))
		if sym, ok := bus.SymbolOf(h.latch, h.cfg.Slots[0], h.cfg.Speed); ok {
			for i := uint32(0); i < n/h.cyclesPerBit; i++ {
				h.tx = append(h.tx, sym)
			}
		}
	}
	h.advance(uint64(n))
}

// Delay implements hal.LineHAL.
func (h *HAL) Delay(d time.Duration) {
	n := h.durationCycles(d)
	if h.output && h.latch == 0 {
		h.reset(n)
	}
	h.advance(n)
}

// DisableInterrupts implements hal.LineHAL.
func (h *HAL) DisableInterrupts() uintptr {
	h.irqDepth++
	return uintptr(h.irqDepth - 1)
}

// RestoreInterrupts implements hal.LineHAL.
func (h *HAL) RestoreInterrupts(state uintptr) {
	h.irqDepth = int(state)
}

// ToggleIndicator implements hal.LineHAL.
func (h *HAL) ToggleIndicator() {
	h.toggles++
	h.transcript = append(h.transcript, Record{Kind: RecordIndicator, Cycle: h.cycles})
}

// Cycles returns the simulated clock.
func (h *HAL) Cycles() uint64 { return h.cycles }

// Elapsed returns the simulated clock as a duration.
func (h *HAL) Elapsed() time.Duration {
	return time.Duration(h.cycles * uint64(time.Second) / uint64(h.cfg.ClockHz))
}

// CyclesPerBit returns the Bit Time in cycles.
func (h *HAL) CyclesPerBit() uint32 { return h.cyclesPerBit }

// Output reports whether the lines are currently driven.
func (h *HAL) Output() bool { return h.output }

// UnmaskedCycles returns the cycles the host drove bit-timed symbols with
// interrupts enabled.
func (h *HAL) UnmaskedCycles() uint64 { return h.unmaskedCycles }

// Toggles returns how often the indicator was toggled.
func (h *HAL) Toggles() int { return h.toggles }

// Peripheral returns the simulated device currently plugged in, or the last
// one if the slot is empty.
func (h *HAL) Peripheral() *device.Peripheral { return h.peripheral }

// Attached reports whether a device is plugged in.
func (h *HAL) Attached() bool {
	h.update()
	return h.attached
}

// Attach plugs a fresh peripheral into the script slot immediately.
func (h *HAL) Attach() {
	h.attachDue = false
	h.attached = true
	h.plugs++
	h.peripheral = device.New()
	h.transcript = append(h.transcript, Record{Kind: RecordAttach, Cycle: h.cycles, Slot: h.script.Slot})
	pkg.LogDebug(pkg.ComponentHAL, "device attached", "slot", h.script.Slot, "cycle", h.cycles)
}

// Detach unplugs the peripheral immediately and schedules the next plug.
func (h *HAL) Detach() {
	h.detachDue = false
	if !h.attached {
		return
	}
	h.attached = false
	h.resp = nil
	h.peripheral.Detach()
	h.transcript = append(h.transcript, Record{Kind: RecordDetach, Cycle: h.cycles, Slot: h.script.Slot})
	pkg.LogDebug(pkg.ComponentHAL, "device detached", "slot", h.script.Slot, "cycle", h.cycles)
	if h.script.ReplugAfter > 0 {
		h.scheduleAttach(h.script.ReplugAfter)
	}
}

// Segments returns the recorded host-driven line trace.
func (h *HAL) Segments() []Segment { return h.segments }

// Transcript returns everything the simulated bus observed.
func (h *HAL) Transcript() []Record { return h.transcript }

// ClearTrace drops the recorded segments and transcript.
func (h *HAL) ClearTrace() {
	h.segments = nil
	h.transcript = nil
}

func (h *HAL) durationCycles(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return (uint64(d)*uint64(h.cfg.ClockHz) + uint64(time.Second) - 1) / uint64(time.Second)
}

func (h *HAL) scheduleAttach(after time.Duration) {
	if h.script.Plugs > 0 && h.plugs >= h.script.Plugs {
		h.attachDue = false
		return
	}
	h.attachDue = true
	h.attachAt = h.cycles + h.durationCycles(after)
}

func (h *HAL) advance(n uint64) {
	h.cycles += n
	h.update()
}

// update applies scripted events that are due.
func (h *HAL) update() {
	if h.detachDue && h.cycles >= h.detachAt {
		h.Detach()
	}
	if h.attachDue && !h.attached && h.cycles >= h.attachAt {
		h.Attach()
	}
}

func (h *HAL) record(n uint64) {
	if h.irqDepth == 0 {
		h.unmaskedCycles += n
	}
	if last := len(h.segments) - 1; last >= 0 {
		s := &h.segments[last]
		if s.Levels == h.latch && s.Start+s.Cycles == h.cycles {
			s.Cycles += n
			return
		}
	}
	if h.cfg.MaxSegments > 0 && len(h.segments) >= h.cfg.MaxSegments {
		return
	}
	h.segments = append(h.segments, Segment{Start: h.cycles, Cycles: n, Levels: h.latch})
}

func (h *HAL) reset(n uint64) {
	h.transcript = append(h.transcript, Record{Kind: RecordReset, Cycle: h.cycles, Cycles: n})
	if h.attached {
		h.peripheral.Reset()
	}
}

// flush decodes the host's transmission and delivers it to the peripheral.
func (h *HAL) flush() {
	if len(h.tx) == 0 {
		return
	}
	pkts, err := packet.Decode(h.tx)
	h.tx = h.tx[:0]
	for _, pk := range pkts {
		h.transcript = append(h.transcript, Record{Kind: RecordPacket, Cycle: h.cycles, Packet: pk})
		if !h.attached {
			continue
		}
		if reply, ok := h.peripheral.Handle(pk); ok {
			h.respond(reply)
		}
	}
	if err != nil {
		h.transcript = append(h.transcript, Record{Kind: RecordError, Cycle: h.cycles, Err: err})
		pkg.LogWarn(pkg.ComponentHAL, "undecodable transmission", "error", err)
	}

	if h.attached && !h.detachDue && h.script.UnplugAfterFrames > 0 &&
		h.peripheral.KeepAliveFrames() >= h.script.UnplugAfterFrames {
		h.detachDue = true
		h.detachAt = h.cycles + h.durationCycles(unplugLatency)
	}
}

// respond schedules the device's answer to start after the bus turnaround.
func (h *HAL) respond(pid packet.PID) {
	var s bus.Schedule
	if pid.IsData() {
		s = packet.AppendData(nil, pid, nil)
	} else {
		s = packet.AppendHandshake(nil, pid)
	}
	h.resp = s.Symbols()
	h.respAt = h.cycles + uint64(responseDelay)*uint64(h.cyclesPerBit)
	h.transcript = append(h.transcript, Record{Kind: RecordResponse, Cycle: h.respAt, Packet: packet.Packet{PID: pid}})
}

// responding returns the symbol the device drives now, if any.
func (h *HAL) responding() (bus.Symbol, bool) {
	if len(h.resp) == 0 || h.cycles < h.respAt {
		return 0, false
	}
	i := (h.cycles - h.respAt) / uint64(h.cyclesPerBit)
	if i >= uint64(len(h.resp)) {
		h.resp = nil
		return 0, false
	}
	return h.resp[i], true
}
