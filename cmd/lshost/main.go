// Command lshost exercises the low-speed host library off target: it runs a
// board profile against the simulated bus, prints the schedules the firmware
// replays, and watches a bench connector through an MCP2221A bridge.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/ardnew/lshost/internal/config"
	"github.com/ardnew/lshost/internal/logging"
)

var exampleUsage = strings.TrimSpace(`
  lshost simulate --sessions 2 --unplug-after 20
  lshost simulate --config ./board.toml --watch
  lshost schedule --speed full
  lshost probe --interval 50ms
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// app carries the state shared by every subcommand.
type app struct {
	cfg     config.Config
	cfgPath string
	noColor bool
	log     zerolog.Logger
}

func main() {
	a := &app{cfg: config.DefaultConfig()}

	root := &cobra.Command{
		Use:           "lshost",
		Short:         "Bit-banged USB low-speed host tooling",
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}
	bindFlags(root.PersistentFlags(), &a.cfg)
	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "Board profile (default $HOME/.lshost/profile.toml)")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "Disable colored log output")

	root.AddCommand(a.simulateCommand(), a.scheduleCommand(), a.probeCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "lshost: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// load layers the profile file, LSHOST_* variables and flags, then installs
// the logger at the resulting level.
func (a *app) load(cmd *cobra.Command) error {
	if err := loadConfig(cmd.Flags(), &a.cfg, a.cfgPath); err != nil {
		return err
	}
	log, err := logging.New(os.Stderr, a.cfg.LogLevel, a.noColor)
	if err != nil {
		return err
	}
	a.log = log
	logging.Install(log)
	return nil
}

// loadConfig applies the profile at path (or the default profile when path
// is empty) and the environment to cfg without overriding flags the user set,
// then validates the result.
func loadConfig(flags *pflag.FlagSet, cfg *config.Config, path string) error {
	changed := map[string]bool{}
	flags.Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	explicit := path != ""
	if !explicit {
		path = config.DefaultConfigPath()
	}
	switch {
	case path != "" && config.FileExists(path):
		fc, err := config.LoadFileConfig(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := config.ApplyFileConfig(cfg, fc, changed); err != nil {
			return err
		}
	case explicit:
		return fmt.Errorf("load config: %s: %w", path, os.ErrNotExist)
	}

	if err := config.ApplyEnvConfig(cfg, changed); err != nil {
		return err
	}
	return cfg.Validate()
}

// bindFlags registers one flag per configuration field.
func bindFlags(fs *pflag.FlagSet, cfg *config.Config) {
	fs.IntVar(&cfg.ClockHz, "clock-hz", cfg.ClockHz, "MCU clock in Hz")
	fs.StringVar(&cfg.Speed, "speed", cfg.Speed, "Bus speed: low or full")
	fs.StringVar(&cfg.Slots, "slots", cfg.Slots, "D+:D- port bits per connector slot")

	fs.IntVar(&cfg.Address, "address", cfg.Address, "Device address assigned by SET_ADDRESS")
	fs.IntVar(&cfg.Configuration, "configuration", cfg.Configuration, "Configuration value selected by SET_CONFIGURATION")
	fs.IntVar(&cfg.FrameNumber, "frame-number", cfg.FrameNumber, "Frame number carried by every SOF")
	fs.DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "Presence poll interval")
	fs.DurationVar(&cfg.Debounce, "debounce", cfg.Debounce, "Attach debounce before reset")
	fs.DurationVar(&cfg.ResetHold, "reset-hold", cfg.ResetHold, "Bus reset duration")
	fs.DurationVar(&cfg.ResetRecovery, "reset-recovery", cfg.ResetRecovery, "Recovery time after reset")
	fs.IntVar(&cfg.StartupFrames, "startup-frames", cfg.StartupFrames, "SOF frames before SET_ADDRESS")
	fs.IntVar(&cfg.AddressFrames, "address-frames", cfg.AddressFrames, "SOF frames between SET_ADDRESS and SET_CONFIGURATION")

	fs.IntVar(&cfg.TokenGap, "token-gap", cfg.TokenGap, "Idle bits between SETUP and DATA0")
	fs.IntVar(&cfg.Handshake, "handshake", cfg.Handshake, "Handshake window in bits")
	fs.IntVar(&cfg.DataStage, "data-stage", cfg.DataStage, "Status data window in bits")
	fs.IntVar(&cfg.Turnaround, "turnaround", cfg.Turnaround, "Extra turnaround bits before ACK")

	fs.IntVar(&cfg.SimSlot, "sim-slot", cfg.SimSlot, "Slot the simulated device is plugged into")
	fs.DurationVar(&cfg.AttachAfter, "attach-after", cfg.AttachAfter, "Simulated time until the first attach")
	fs.IntVar(&cfg.UnplugAfterFrames, "unplug-after", cfg.UnplugAfterFrames, "Keep-alive frames before the simulated unplug (0 = never)")
	fs.DurationVar(&cfg.ReplugAfter, "replug-after", cfg.ReplugAfter, "Simulated time from unplug to replug")
	fs.IntVar(&cfg.Sessions, "sessions", cfg.Sessions, "Simulated sessions to run")

	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
}

// interrupted reports whether err only says the run was stopped.
func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
