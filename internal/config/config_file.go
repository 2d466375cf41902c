package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig is the TOML board profile. Durations are strings; integers are
// pointers so that an explicit zero can be told from an absent key.
type FileConfig struct {
	Board struct {
		ClockHz *int    `toml:"clock_hz"`
		Speed   string  `toml:"speed"`
		Slots   [][]int `toml:"slots"`
	} `toml:"board"`

	Session struct {
		Address       *int   `toml:"address"`
		Configuration *int   `toml:"configuration"`
		FrameNumber   *int   `toml:"frame_number"`
		PollInterval  string `toml:"poll_interval"`
		Debounce      string `toml:"debounce"`
		ResetHold     string `toml:"reset_hold"`
		ResetRecovery string `toml:"reset_recovery"`
		StartupFrames *int   `toml:"startup_frames"`
		AddressFrames *int   `toml:"address_frames"`
	} `toml:"session"`

	Windows struct {
		TokenGap   *int `toml:"token_gap"`
		Handshake  *int `toml:"handshake"`
		DataStage  *int `toml:"data_stage"`
		Turnaround *int `toml:"turnaround"`
	} `toml:"windows"`

	Simulation struct {
		Slot              *int   `toml:"slot"`
		AttachAfter       string `toml:"attach_after"`
		UnplugAfterFrames *int   `toml:"unplug_after_frames"`
		ReplugAfter       string `toml:"replug_after"`
		Sessions          *int   `toml:"sessions"`
	} `toml:"simulation"`

	LogLevel string `toml:"log_level"`
}

// LoadFileConfig reads and parses a TOML profile from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.lshost/profile.toml if the user home
// directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".lshost", "profile.toml")
	}
	return ""
}

// ApplyFileConfig applies a profile to cfg. It respects flags that have been
// explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setInt("clock-hz", fc.Board.ClockHz, &cfg.ClockHz)
	s.setString("speed", fc.Board.Speed, &cfg.Speed)
	if len(fc.Board.Slots) > 0 && !changed["slots"] {
		slots, err := slotsFromPairs(fc.Board.Slots)
		if err != nil {
			return err
		}
		cfg.Slots = slots
	}

	s.setInt("address", fc.Session.Address, &cfg.Address)
	s.setInt("configuration", fc.Session.Configuration, &cfg.Configuration)
	s.setInt("frame-number", fc.Session.FrameNumber, &cfg.FrameNumber)
	s.setInt("startup-frames", fc.Session.StartupFrames, &cfg.StartupFrames)
	s.setInt("address-frames", fc.Session.AddressFrames, &cfg.AddressFrames)

	durations := []struct {
		flag  string
		value string
		dst   *time.Duration
	}{
		{"poll", fc.Session.PollInterval, &cfg.PollInterval},
		{"debounce", fc.Session.Debounce, &cfg.Debounce},
		{"reset-hold", fc.Session.ResetHold, &cfg.ResetHold},
		{"reset-recovery", fc.Session.ResetRecovery, &cfg.ResetRecovery},
		{"attach-after", fc.Simulation.AttachAfter, &cfg.AttachAfter},
		{"replug-after", fc.Simulation.ReplugAfter, &cfg.ReplugAfter},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, d.value, d.dst); err != nil {
			return err
		}
	}

	s.setInt("token-gap", fc.Windows.TokenGap, &cfg.TokenGap)
	s.setInt("handshake", fc.Windows.Handshake, &cfg.Handshake)
	s.setInt("data-stage", fc.Windows.DataStage, &cfg.DataStage)
	s.setInt("turnaround", fc.Windows.Turnaround, &cfg.Turnaround)

	s.setInt("sim-slot", fc.Simulation.Slot, &cfg.SimSlot)
	s.setInt("unplug-after", fc.Simulation.UnplugAfterFrames, &cfg.UnplugAfterFrames)
	s.setInt("sessions", fc.Simulation.Sessions, &cfg.Sessions)

	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func slotsFromPairs(pairs [][]int) (string, error) {
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		if len(p) != 2 {
			return "", fmt.Errorf("board.slots[%d]: want [D+, D-] bit numbers", i)
		}
		parts[i] = fmt.Sprintf("%d:%d", p[0], p[1])
	}
	s := strings.Join(parts, ",")
	if _, err := ParseSlots(s); err != nil {
		return "", fmt.Errorf("board.slots: %w", err)
	}
	return s, nil
}
