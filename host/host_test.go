package host

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ardnew/lshost/host/hal"
	"github.com/ardnew/lshost/host/hal/sim"
	"github.com/ardnew/lshost/host/packet"
	"github.com/ardnew/lshost/pkg"
)

// =============================================================================
// Helpers
// =============================================================================

func newSimHost(t *testing.T, speed hal.Speed, script sim.Script) (*sim.HAL, *Host) {
	t.Helper()
	simCfg := sim.DefaultConfig()
	simCfg.Speed = speed
	s, err := sim.New(simCfg)
	if err != nil {
		t.Fatalf("sim.New: %v", err)
	}
	s.SetScript(script)

	cfg := DefaultConfig()
	cfg.Speed = speed
	h, err := New(s, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, h
}

// events renders a transcript as one token per entry.
func events(records []sim.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		switch r.Kind {
		case sim.RecordPacket:
			p := r.Packet
			if p.PID.IsToken() && p.PID != packet.PIDSOF {
				out = append(out, fmt.Sprintf("%s@%d", p.PID, p.Address))
			} else {
				out = append(out, p.PID.String())
			}
		case sim.RecordResponse:
			out = append(out, "<"+r.Packet.PID.String())
		default:
			out = append(out, r.Kind.String())
		}
	}
	return out
}

func repeat(tok string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = tok
	}
	return out
}

// session returns the transcript of one session that ends after keepAlive
// frames.
func session(keepAlive int) []string {
	var s []string
	s = append(s, "attach", "reset", "indicator")
	s = append(s, repeat("SOF", DefaultStartupFrames)...)
	s = append(s, "SETUP@0", "DATA0", "<ACK", "SOF", "IN@0", "<DATA1", "ACK")
	s = append(s, repeat("SOF", DefaultAddressFrames)...)
	s = append(s, "SETUP@1", "DATA0", "<ACK", "SOF", "IN@1", "<DATA1", "ACK")
	s = append(s, repeat("SOF", keepAlive)...)
	return append(s, "detach")
}

// =============================================================================
// Construction Tests
// =============================================================================

func TestNew(t *testing.T) {
	_, h := newSimHost(t, hal.SpeedLow, sim.Script{})

	if h.Phase() != PhaseWaitingForDevice {
		t.Errorf("Phase() = %s, want WaitingForDevice", h.Phase())
	}
	if h.Slot() != -1 || h.Sessions() != 0 {
		t.Errorf("Slot()/Sessions() = %d/%d, want -1/0", h.Slot(), h.Sessions())
	}
	if h.Bus().CyclesPerBit() != 8 {
		t.Errorf("CyclesPerBit() = %d, want 8", h.Bus().CyclesPerBit())
	}
	if h.Config().Address != DefaultAddress {
		t.Errorf("Config().Address = %d", h.Config().Address)
	}
}

func TestNew_Invalid(t *testing.T) {
	s, err := sim.New(sim.DefaultConfig())
	if err != nil {
		t.Fatalf("sim.New: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Address = 0
	if _, err := New(s, cfg); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("New(address 0) error = %v, want ErrInvalidParameter", err)
	}

	cfg = DefaultConfig()
	cfg.Speed = hal.SpeedUnknown
	if _, err := New(s, cfg); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("New(unknown speed) error = %v, want ErrInvalidParameter", err)
	}
}

// =============================================================================
// Session Tests
// =============================================================================

func TestRun_EndToEnd(t *testing.T) {
	const keepAlive = 5

	s, h := newSimHost(t, hal.SpeedLow, sim.Script{
		Slot:              1,
		AttachAfter:       20 * time.Millisecond,
		UnplugAfterFrames: keepAlive,
		ReplugAfter:       50 * time.Millisecond,
		Plugs:             2,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		phases   []Phase
		charging []bool
	)
	h.SetOnPhaseChange(func(p Phase) {
		phases = append(phases, p)
		switch {
		case p == PhaseKeepAlive:
			charging = append(charging, s.Peripheral().Charging())
		case p == PhaseWaitingForDevice && h.Sessions() == 2:
			cancel()
		}
	})

	err := h.Run(ctx)
	if !errors.Is(err, pkg.ErrCancelled) {
		t.Fatalf("Run() error = %v, want ErrCancelled", err)
	}

	want := append(session(keepAlive), session(keepAlive)...)
	got := events(s.Transcript())
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("transcript\n got %v\nwant %v", got, want)
	}

	wantPhases := []Phase{
		PhaseWaitingForDevice, PhaseResetting, PhaseEnumerating, PhaseKeepAlive,
		PhaseWaitingForDevice, PhaseResetting, PhaseEnumerating, PhaseKeepAlive,
		PhaseWaitingForDevice,
	}
	if fmt.Sprint(phases) != fmt.Sprint(wantPhases) {
		t.Errorf("phases = %v, want %v", phases, wantPhases)
	}
	if len(charging) != 2 || !charging[0] || !charging[1] {
		t.Errorf("device charging at keep-alive = %v, want [true true]", charging)
	}
	if s.Toggles() != 2 {
		t.Errorf("indicator toggled %d times, want 2", s.Toggles())
	}
	if h.Slot() != 1 {
		t.Errorf("Slot() = %d, want 1", h.Slot())
	}
}

func TestRun_Timing(t *testing.T) {
	s, h := newSimHost(t, hal.SpeedLow, sim.Script{UnplugAfterFrames: 2, Plugs: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.SetOnPhaseChange(func(p Phase) {
		if p == PhaseWaitingForDevice && h.Sessions() == 1 {
			cancel()
		}
	})
	if err := h.Run(ctx); !errors.Is(err, pkg.ErrCancelled) {
		t.Fatalf("Run() error = %v, want ErrCancelled", err)
	}

	var attach, reset sim.Record
	for _, r := range s.Transcript() {
		switch r.Kind {
		case sim.RecordAttach:
			attach = r
		case sim.RecordReset:
			reset = r
		}
	}

	cyclesPerMs := uint64(sim.DefaultClockHz / 1000)
	if reset.Cycles < 10*cyclesPerMs {
		t.Errorf("reset held %d cycles, want at least %d", reset.Cycles, 10*cyclesPerMs)
	}
	if d := reset.Cycle - attach.Cycle; d < 100*cyclesPerMs {
		t.Errorf("reset %d cycles after attach, want at least %d", d, 100*cyclesPerMs)
	}
	if s.UnmaskedCycles() != 0 {
		t.Errorf("%d bit-timed cycles ran with interrupts enabled", s.UnmaskedCycles())
	}

	tm := sim.Analyze(s.Segments(), s.CyclesPerBit())
	if tm.Transitions == 0 || tm.MaxDeviation != 0 {
		t.Errorf("timing = %+v, want transitions on the bit grid", tm)
	}
}

func TestRunSession_FullSpeed(t *testing.T) {
	s, h := newSimHost(t, hal.SpeedFull, sim.Script{Slot: 3, UnplugAfterFrames: 2})
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := h.RunSession(context.Background()); err != nil {
		t.Fatalf("RunSession: %v", err)
	}

	p := s.Peripheral()
	if p.Requests() != 2 || p.Address() != DefaultAddress || p.Configuration() != DefaultConfiguration {
		t.Errorf("device saw %d requests, address %d, configuration %d",
			p.Requests(), p.Address(), p.Configuration())
	}
	if p.KeepAliveFrames() != 2 {
		t.Errorf("keep-alive frames = %d, want 2", p.KeepAliveFrames())
	}
	if h.Slot() != 3 || h.Sessions() != 1 {
		t.Errorf("Slot()/Sessions() = %d/%d, want 3/1", h.Slot(), h.Sessions())
	}
}

func TestRunSession_Cancelled(t *testing.T) {
	s, h := newSimHost(t, hal.SpeedLow, sim.Script{AttachAfter: time.Hour})
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := h.RunSession(ctx); !errors.Is(err, pkg.ErrCancelled) {
		t.Errorf("RunSession() error = %v, want ErrCancelled", err)
	}
	if h.Sessions() != 0 || h.Phase() != PhaseWaitingForDevice {
		t.Errorf("Sessions()/Phase() = %d/%s, want 0/WaitingForDevice", h.Sessions(), h.Phase())
	}
}

func TestRunSession_DeviceAnswersDuringEnumeration(t *testing.T) {
	s, h := newSimHost(t, hal.SpeedLow, sim.Script{})
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	// The device keeps answering, so keep-alive has to be cut short here.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	charging := false
	h.SetOnPhaseChange(func(p Phase) {
		if p == PhaseKeepAlive {
			charging = s.Peripheral().Charging()
			cancel()
		}
	})

	if err := h.RunSession(ctx); !errors.Is(err, pkg.ErrCancelled) {
		t.Fatalf("RunSession() error = %v, want ErrCancelled after reaching keep-alive", err)
	}
	if !charging {
		t.Error("device not charging at keep-alive")
	}
	var answers int
	for _, r := range s.Transcript() {
		switch r.Kind {
		case sim.RecordResponse:
			answers++
		case sim.RecordError:
			t.Errorf("transcript error: %v", r.Err)
		}
	}
	if answers != 4 {
		t.Errorf("device answered %d times, want 4", answers)
	}
}

func TestRunSession_GoneDuringEnumeration(t *testing.T) {
	s, h := newSimHost(t, hal.SpeedLow, sim.Script{})
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	var phases []Phase
	h.SetOnPhaseChange(func(p Phase) {
		phases = append(phases, p)
		if p == PhaseEnumerating {
			s.Detach()
		}
	})

	if err := h.RunSession(context.Background()); err != nil {
		t.Fatalf("RunSession() = %v, want nil", err)
	}
	want := []Phase{PhaseWaitingForDevice, PhaseResetting, PhaseEnumerating}
	if fmt.Sprint(phases) != fmt.Sprint(want) {
		t.Errorf("phases = %v, want %v", phases, want)
	}
	if h.Sessions() != 1 {
		t.Errorf("Sessions() = %d, want 1", h.Sessions())
	}
}

// closeFailure is a simulated HAL whose Close fails.
type closeFailure struct {
	*sim.HAL
}

var errClose = errors.New("close failed")

func (closeFailure) Close() error { return errClose }

func TestRun_CloseError(t *testing.T) {
	s, err := sim.New(sim.DefaultConfig())
	if err != nil {
		t.Fatalf("sim.New: %v", err)
	}
	s.SetScript(sim.Script{AttachAfter: time.Hour})
	h, err := New(closeFailure{s}, DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = h.Run(ctx)
	if !errors.Is(err, pkg.ErrCancelled) || !errors.Is(err, errClose) {
		t.Errorf("Run() error = %v, want ErrCancelled and the close error", err)
	}
}

// =============================================================================
// Benchmarks
// =============================================================================

func BenchmarkNew(b *testing.B) {
	s, err := sim.New(sim.DefaultConfig())
	if err != nil {
		b.Fatal(err)
	}
	cfg := DefaultConfig()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := New(s, cfg); err != nil {
			b.Fatal(err)
		}
	}
}
