package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ardnew/lshost/host/bus"
	"github.com/ardnew/lshost/host/hal"
	"github.com/ardnew/lshost/host/presence"
	"github.com/ardnew/lshost/host/transaction"
	"github.com/ardnew/lshost/pkg"
)

// Config holds the session parameters. The zero value is not usable; start
// from DefaultConfig.
type Config struct {
	Speed         hal.Speed
	Address       uint8
	Configuration uint8
	FrameNumber   uint16

	PollInterval  time.Duration
	Debounce      time.Duration
	ResetHold     time.Duration
	ResetRecovery time.Duration

	StartupFrames int
	AddressFrames int

	Windows transaction.Windows
}

// DefaultConfig returns the parameters that bring the reference peripheral
// into its charging state.
func DefaultConfig() Config {
	return Config{
		Speed:         hal.SpeedLow,
		Address:       DefaultAddress,
		Configuration: DefaultConfiguration,
		FrameNumber:   DefaultFrameNumber,
		PollInterval:  DefaultPollInterval,
		Debounce:      DefaultDebounce,
		ResetHold:     DefaultResetHold,
		ResetRecovery: DefaultResetRecovery,
		StartupFrames: DefaultStartupFrames,
		AddressFrames: DefaultAddressFrames,
		Windows:       transaction.DefaultWindows(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.Address == 0 || c.Address > transaction.MaxAddress:
		return fmt.Errorf("%w: address %d", pkg.ErrInvalidParameter, c.Address)
	case c.FrameNumber > MaxFrameNumber:
		return fmt.Errorf("%w: frame number %d", pkg.ErrInvalidParameter, c.FrameNumber)
	case c.PollInterval <= 0:
		return fmt.Errorf("%w: poll interval %v", pkg.ErrInvalidParameter, c.PollInterval)
	case c.Debounce < 0 || c.ResetRecovery < 0:
		return fmt.Errorf("%w: negative delay", pkg.ErrInvalidParameter)
	case c.ResetHold < presence.MinResetHold:
		return fmt.Errorf("%w: reset hold %v", pkg.ErrInvalidParameter, c.ResetHold)
	case c.StartupFrames < 0 || c.AddressFrames < 0:
		return fmt.Errorf("%w: negative frame count", pkg.ErrInvalidParameter)
	}
	return c.Windows.Validate()
}

// Host runs the enumeration loop on one bus.
type Host struct {
	hal      hal.LineHAL
	cfg      Config
	bus      *bus.Bus
	detector *presence.Detector
	encoder  *transaction.Encoder

	// Both transfers are compiled before the first session.
	setAddress       transaction.ControlTransfer
	setConfiguration transaction.ControlTransfer

	mutex         sync.RWMutex
	phase         Phase
	slot          int
	sessions      int
	onPhaseChange func(Phase)
}

// New creates a host driving every slot of h.
func New(h hal.LineHAL, cfg Config) (*Host, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b, err := bus.New(h, cfg.Speed)
	if err != nil {
		return nil, err
	}
	setAddress, err := transaction.Build(transaction.SetAddress(cfg.Address), cfg.Windows)
	if err != nil {
		return nil, err
	}
	setConfiguration, err := transaction.Build(
		transaction.SetConfiguration(cfg.Address, cfg.Configuration), cfg.Windows)
	if err != nil {
		return nil, err
	}

	return &Host{
		hal:              h,
		cfg:              cfg,
		bus:              b,
		detector:         presence.New(b),
		encoder:          transaction.New(b, cfg.FrameNumber),
		setAddress:       setAddress,
		setConfiguration: setConfiguration,
		slot:             -1,
	}, nil
}

// Config returns the session parameters.
func (h *Host) Config() Config { return h.cfg }

// Bus returns the bus the host drives.
func (h *Host) Bus() *bus.Bus { return h.bus }

// Phase returns the current phase.
func (h *Host) Phase() Phase {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.phase
}

// Slot returns the slot of the current or last session, or -1.
func (h *Host) Slot() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.slot
}

// Sessions returns the number of sessions started, counting each bus reset.
func (h *Host) Sessions() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.sessions
}

// SetOnPhaseChange sets the callback for phase transitions. It runs on the
// host's thread between bus operations.
func (h *Host) SetOnPhaseChange(cb func(Phase)) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.onPhaseChange = cb
}

// Run initializes the HAL and runs sessions until ctx ends. On the target
// ctx never ends and Run does not return.
func (h *Host) Run(ctx context.Context) (err error) {
	if err := h.hal.Init(ctx); err != nil {
		return err
	}
	defer func() {
		if cerr := h.hal.Close(); cerr != nil {
			pkg.LogError(pkg.ComponentHost, "HAL close failed", "error", cerr)
			err = errors.Join(err, cerr)
		}
	}()

	pkg.LogInfo(pkg.ComponentHost, "host started",
		"speed", h.cfg.Speed.String(),
		"slots", len(h.bus.Slots()),
		"address", h.cfg.Address)

	for {
		if err := h.RunSession(ctx); err != nil {
			pkg.LogInfo(pkg.ComponentHost, "host stopped", "sessions", h.Sessions())
			return err
		}
	}
}

// RunSession waits for a device, enumerates it and keeps it alive until the
// line state changes. It returns nil when the device left and an error only
// when ctx ended. The HAL must be initialized.
func (h *Host) RunSession(ctx context.Context) error {
	h.setPhase(PhaseWaitingForDevice)
	slot, err := h.detector.WaitPresent(ctx, h.cfg.PollInterval)
	if err != nil {
		return err
	}

	h.bus.Wait(h.cfg.Debounce)
	if again, ok := h.detector.Poll(); !ok || again != slot {
		pkg.LogDebug(pkg.ComponentHost, "device gone before reset", "slot", slot)
		return nil
	}

	h.mutex.Lock()
	h.slot = slot
	h.sessions++
	session := h.sessions
	h.mutex.Unlock()
	pkg.LogInfo(pkg.ComponentHost, "device connected", "slot", slot, "session", session)

	if err := h.enumerate(slot); err != nil {
		pkg.LogInfo(pkg.ComponentHost, "enumeration interrupted",
			"slot", slot,
			"error", err)
		return nil
	}

	h.setPhase(PhaseKeepAlive)
	frames := 0
	for h.encoder.SOF(1) {
		frames++
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", pkg.ErrCancelled, ctx.Err())
		}
	}
	pkg.LogInfo(pkg.ComponentHost, "device disconnected",
		"slot", slot,
		"frames", frames)
	return nil
}

func (h *Host) setPhase(p Phase) {
	h.mutex.Lock()
	prev := h.phase
	h.phase = p
	cb := h.onPhaseChange
	h.mutex.Unlock()

	pkg.LogDebug(pkg.ComponentHost, "phase", "from", prev.String(), "to", p.String())
	if cb != nil {
		cb(p)
	}
}
