// Package config layers the lshost board profile: defaults, a TOML profile
// file, LSHOST_* environment variables and command-line flags, with flags
// taking precedence.
package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ardnew/lshost/host"
	"github.com/ardnew/lshost/host/hal"
	"github.com/ardnew/lshost/host/hal/sim"
	"github.com/ardnew/lshost/host/transaction"
)

// Config holds the tool configuration.
type Config struct {
	// Board
	ClockHz int
	Speed   string
	Slots   string // D+:D- bit numbers per slot, e.g. "7:1,2:4"

	// Session
	Address       int
	Configuration int
	FrameNumber   int
	PollInterval  time.Duration
	Debounce      time.Duration
	ResetHold     time.Duration
	ResetRecovery time.Duration
	StartupFrames int
	AddressFrames int

	// Response windows, in bit times
	TokenGap   int
	Handshake  int
	DataStage  int
	Turnaround int

	// Simulation
	SimSlot           int
	AttachAfter       time.Duration
	UnplugAfterFrames int
	ReplugAfter       time.Duration
	Sessions          int

	LogLevel string
}

// DefaultConfig returns the reference board with the default session.
func DefaultConfig() Config {
	hc := host.DefaultConfig()
	return Config{
		ClockHz:           sim.DefaultClockHz,
		Speed:             "low",
		Slots:             FormatSlots(sim.DefaultSlots()),
		Address:           int(hc.Address),
		Configuration:     int(hc.Configuration),
		FrameNumber:       int(hc.FrameNumber),
		PollInterval:      hc.PollInterval,
		Debounce:          hc.Debounce,
		ResetHold:         hc.ResetHold,
		ResetRecovery:     hc.ResetRecovery,
		StartupFrames:     hc.StartupFrames,
		AddressFrames:     hc.AddressFrames,
		TokenGap:          int(hc.Windows.TokenGap),
		Handshake:         int(hc.Windows.Handshake),
		DataStage:         int(hc.Windows.DataStage),
		Turnaround:        int(hc.Windows.Turnaround),
		SimSlot:           0,
		AttachAfter:       20 * time.Millisecond,
		UnplugAfterFrames: 50,
		ReplugAfter:       200 * time.Millisecond,
		Sessions:          1,
		LogLevel:          "info",
	}
}

// Validate checks the configuration by building everything derived from it.
func (c *Config) Validate() error {
	if _, err := c.SimConfig(); err != nil {
		return err
	}
	if _, err := c.HostConfig(); err != nil {
		return err
	}
	if c.SimSlot < 0 {
		return fmt.Errorf("sim-slot must not be negative")
	}
	if c.Sessions <= 0 {
		return fmt.Errorf("sessions must be positive")
	}
	return nil
}

// HostConfig returns the session parameters.
func (c *Config) HostConfig() (host.Config, error) {
	speed, err := ParseSpeed(c.Speed)
	if err != nil {
		return host.Config{}, err
	}
	fields := []struct {
		name string
		v    int
		max  int
	}{
		{"address", c.Address, transaction.MaxAddress},
		{"configuration", c.Configuration, 0xFF},
		{"frame-number", c.FrameNumber, host.MaxFrameNumber},
		{"token-gap", c.TokenGap, 0xFFFF},
		{"handshake", c.Handshake, 0xFFFF},
		{"data-stage", c.DataStage, 0xFFFF},
		{"turnaround", c.Turnaround, 0xFFFF},
	}
	for _, f := range fields {
		if f.v < 0 || f.v > f.max {
			return host.Config{}, fmt.Errorf("%s %d out of range [0, %d]", f.name, f.v, f.max)
		}
	}

	hc := host.Config{
		Speed:         speed,
		Address:       uint8(c.Address),
		Configuration: uint8(c.Configuration),
		FrameNumber:   uint16(c.FrameNumber),
		PollInterval:  c.PollInterval,
		Debounce:      c.Debounce,
		ResetHold:     c.ResetHold,
		ResetRecovery: c.ResetRecovery,
		StartupFrames: c.StartupFrames,
		AddressFrames: c.AddressFrames,
		Windows: transaction.Windows{
			TokenGap:   uint16(c.TokenGap),
			Handshake:  uint16(c.Handshake),
			DataStage:  uint16(c.DataStage),
			Turnaround: uint16(c.Turnaround),
		},
	}
	if err := hc.Validate(); err != nil {
		return host.Config{}, err
	}
	return hc, nil
}

// SimConfig returns the simulated board.
func (c *Config) SimConfig() (sim.Config, error) {
	speed, err := ParseSpeed(c.Speed)
	if err != nil {
		return sim.Config{}, err
	}
	slots, err := ParseSlots(c.Slots)
	if err != nil {
		return sim.Config{}, err
	}
	if err := checkClock(c.ClockHz, speed); err != nil {
		return sim.Config{}, err
	}
	return sim.Config{
		ClockHz: uint32(c.ClockHz),
		Speed:   speed,
		Slots:   slots,
	}, nil
}

// Script returns the simulated plug script. Each session is one plug.
func (c *Config) Script() sim.Script {
	return sim.Script{
		Slot:              c.SimSlot,
		AttachAfter:       c.AttachAfter,
		UnplugAfterFrames: c.UnplugAfterFrames,
		ReplugAfter:       c.ReplugAfter,
		Plugs:             c.Sessions,
	}
}

// checkClock reports whether hz can time speed: a whole number of cycles per
// bit that fits the HAL's 32-bit clock.
func checkClock(hz int, speed hal.Speed) error {
	rate := int(speed.BitRate())
	switch {
	case rate == 0:
		return fmt.Errorf("no bit rate for %s", speed)
	case hz <= 0:
		return fmt.Errorf("clock-hz must be positive")
	case int64(hz) > math.MaxUint32:
		return fmt.Errorf("clock-hz %d exceeds %d", hz, uint32(math.MaxUint32))
	case hz < rate || hz%rate != 0:
		return fmt.Errorf("clock-hz %d is not a whole multiple of the %s bit rate (%d Hz)", hz, speed, rate)
	}
	return nil
}

// ParseSpeed reads "low" or "full".
func ParseSpeed(s string) (hal.Speed, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "ls", "1.5m":
		return hal.SpeedLow, nil
	case "full", "fs", "12m":
		return hal.SpeedFull, nil
	default:
		return hal.SpeedUnknown, fmt.Errorf("unknown speed %q (want low or full)", s)
	}
}

// ParseSlots reads comma-separated D+:D- bit numbers.
func ParseSlots(s string) ([]hal.PinPair, error) {
	var slots []hal.PinPair
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		dp, dm, ok := strings.Cut(field, ":")
		if !ok {
			return nil, fmt.Errorf("slot %q: want D+:D- bit numbers", field)
		}
		p, m := 0, 0
		var err error
		if p, err = parseBit(dp); err != nil {
			return nil, fmt.Errorf("slot %q: %w", field, err)
		}
		if m, err = parseBit(dm); err != nil {
			return nil, fmt.Errorf("slot %q: %w", field, err)
		}
		slots = append(slots, hal.PinPair{DP: 1 << p, DM: 1 << m})
	}
	if len(slots) == 0 {
		return nil, fmt.Errorf("no slots")
	}
	return slots, nil
}

// FormatSlots is the inverse of ParseSlots.
func FormatSlots(slots []hal.PinPair) string {
	parts := make([]string, len(slots))
	for i, p := range slots {
		parts[i] = fmt.Sprintf("%d:%d", bitIndex(p.DP), bitIndex(p.DM))
	}
	return strings.Join(parts, ",")
}

func parseBit(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n < 0 || n > 7 {
		return 0, fmt.Errorf("bit %d out of range [0, 7]", n)
	}
	return n, nil
}

func bitIndex(m hal.Levels) int {
	for i := 0; i < 8; i++ {
		if m == 1<<i {
			return i
		}
	}
	return -1
}

// configSetter applies values while respecting flag precedence. It only
// applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if not nil and flag not changed.
func (s *configSetter) setInt(flag string, value *int, dst *int) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setDuration parses and sets a duration if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = i
	return nil
}
