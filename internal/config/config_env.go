package config

import (
	"os"
	"time"
)

// ApplyEnvConfig applies configuration from environment variables (LSHOST_*).
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("speed", os.Getenv("LSHOST_SPEED"), &cfg.Speed)
	s.setString("slots", os.Getenv("LSHOST_SLOTS"), &cfg.Slots)
	s.setString("log-level", os.Getenv("LSHOST_LOG_LEVEL"), &cfg.LogLevel)

	ints := []struct {
		flag string
		env  string
		dst  *int
	}{
		{"clock-hz", "LSHOST_CLOCK_HZ", &cfg.ClockHz},
		{"address", "LSHOST_ADDRESS", &cfg.Address},
		{"configuration", "LSHOST_CONFIGURATION", &cfg.Configuration},
		{"frame-number", "LSHOST_FRAME_NUMBER", &cfg.FrameNumber},
		{"startup-frames", "LSHOST_STARTUP_FRAMES", &cfg.StartupFrames},
		{"address-frames", "LSHOST_ADDRESS_FRAMES", &cfg.AddressFrames},
		{"token-gap", "LSHOST_TOKEN_GAP", &cfg.TokenGap},
		{"handshake", "LSHOST_HANDSHAKE", &cfg.Handshake},
		{"data-stage", "LSHOST_DATA_STAGE", &cfg.DataStage},
		{"turnaround", "LSHOST_TURNAROUND", &cfg.Turnaround},
		{"sim-slot", "LSHOST_SIM_SLOT", &cfg.SimSlot},
		{"unplug-after", "LSHOST_UNPLUG_AFTER", &cfg.UnplugAfterFrames},
		{"sessions", "LSHOST_SESSIONS", &cfg.Sessions},
	}
	for _, i := range ints {
		if err := s.setIntFromString(i.flag, os.Getenv(i.env), i.dst); err != nil {
			return err
		}
	}

	durations := []struct {
		flag string
		env  string
		dst  *time.Duration
	}{
		{"poll", "LSHOST_POLL_INTERVAL", &cfg.PollInterval},
		{"debounce", "LSHOST_DEBOUNCE", &cfg.Debounce},
		{"reset-hold", "LSHOST_RESET_HOLD", &cfg.ResetHold},
		{"reset-recovery", "LSHOST_RESET_RECOVERY", &cfg.ResetRecovery},
		{"attach-after", "LSHOST_ATTACH_AFTER", &cfg.AttachAfter},
		{"replug-after", "LSHOST_REPLUG_AFTER", &cfg.ReplugAfter},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, os.Getenv(d.env), d.dst); err != nil {
			return err
		}
	}
	return nil
}
