package config

import (
	"testing"
	"time"
)

func TestApplyEnvConfig(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		changed map[string]bool
		check   func(t *testing.T, cfg Config)
		wantErr bool
	}{
		{
			name: "applies env vars",
			envVars: map[string]string{
				"LSHOST_SPEED":          "full",
				"LSHOST_CLOCK_HZ":       "48000000",
				"LSHOST_SLOTS":          "0:1",
				"LSHOST_ADDRESS":        "5",
				"LSHOST_DEBOUNCE":       "50ms",
				"LSHOST_DATA_STAGE":     "20",
				"LSHOST_UNPLUG_AFTER":   "0",
				"LSHOST_LOG_LEVEL":      "warn",
				"LSHOST_ATTACH_AFTER":   "3ms",
				"LSHOST_FRAME_NUMBER":   "7",
				"LSHOST_STARTUP_FRAMES": "12",
			},
			changed: map[string]bool{},
			check: func(t *testing.T, cfg Config) {
				if cfg.Speed != "full" || cfg.ClockHz != 48_000_000 || cfg.Slots != "0:1" {
					t.Errorf("board = %q %d %q", cfg.Speed, cfg.ClockHz, cfg.Slots)
				}
				if cfg.Address != 5 || cfg.FrameNumber != 7 || cfg.StartupFrames != 12 {
					t.Errorf("session = %d %d %d", cfg.Address, cfg.FrameNumber, cfg.StartupFrames)
				}
				if cfg.Debounce != 50*time.Millisecond || cfg.AttachAfter != 3*time.Millisecond {
					t.Errorf("durations = %v %v", cfg.Debounce, cfg.AttachAfter)
				}
				if cfg.DataStage != 20 || cfg.UnplugAfterFrames != 0 || cfg.LogLevel != "warn" {
					t.Errorf("cfg = %+v", cfg)
				}
			},
		},
		{
			name:    "respects changed flags",
			envVars: map[string]string{"LSHOST_ADDRESS": "5", "LSHOST_SPEED": "full"},
			changed: map[string]bool{"address": true},
			check: func(t *testing.T, cfg Config) {
				if cfg.Address != DefaultConfig().Address {
					t.Errorf("Address = %d, want flag value", cfg.Address)
				}
				if cfg.Speed != "full" {
					t.Errorf("Speed = %q, want env value", cfg.Speed)
				}
			},
		},
		{
			name:    "bad integer",
			envVars: map[string]string{"LSHOST_ADDRESS": "one"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:    "bad duration",
			envVars: map[string]string{"LSHOST_RESET_HOLD": "long"},
			changed: map[string]bool{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			cfg := DefaultConfig()
			err := ApplyEnvConfig(&cfg, tt.changed)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ApplyEnvConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}
