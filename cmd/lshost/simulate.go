package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/ardnew/lshost/host"
	"github.com/ardnew/lshost/host/hal/sim"
	"github.com/ardnew/lshost/internal/config"
)

// profileSettle is how long the profile must stay quiet after a change
// before the simulation is re-run.
const profileSettle = 100 * time.Millisecond

// simResult is the outcome of one simulated run.
type simResult struct {
	Transcript []sim.Record
	Timing     sim.Timing
	Sessions   int
	Charged    int // Sessions in which the device reported charging
	Toggles    int
	Elapsed    time.Duration
	Unmasked   uint64
}

func (a *app) simulateCommand() *cobra.Command {
	var (
		watch   bool
		timeout time.Duration
		quiet   bool
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the enumeration loop against a simulated device",
		Long: "Runs the host against a simulated bus and device following the board " +
			"profile's plug script, then prints the decoded transcript and the " +
			"bit-timing statistics of everything the host drove.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			run := func(cfg config.Config) error {
				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				defer cancel()
				res, err := simulate(ctx, cfg)
				if err != nil {
					return err
				}
				a.report(cmd.OutOrStdout(), cfg, res, quiet)
				return nil
			}

			if err := run(a.cfg); err != nil {
				return err
			}
			if !watch {
				return nil
			}

			path := a.cfgPath
			if path == "" {
				path = config.DefaultConfigPath()
			}
			a.log.Info().Str("profile", path).Msg("watching profile")
			return watchProfile(cmd.Context(), path, func() {
				next, err := reload(cmd.Flags(), path)
				if err != nil {
					a.log.Error().Err(err).Msg("profile rejected")
					return
				}
				if err := run(next); err != nil {
					a.log.Error().Err(err).Msg("simulation failed")
				}
			})
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Re-run whenever the profile changes")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Wall-clock limit for one run")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print only the summary")
	return cmd
}

// simulate runs the host against a simulated HAL until the scripted sessions
// are over or ctx ends.
func simulate(ctx context.Context, cfg config.Config) (simResult, error) {
	simCfg, err := cfg.SimConfig()
	if err != nil {
		return simResult{}, err
	}
	hostCfg, err := cfg.HostConfig()
	if err != nil {
		return simResult{}, err
	}

	s, err := sim.New(simCfg)
	if err != nil {
		return simResult{}, err
	}
	s.SetScript(cfg.Script())

	h, err := host.New(s, hostCfg)
	if err != nil {
		return simResult{}, err
	}

	parent := ctx
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var res simResult
	h.SetOnPhaseChange(func(p host.Phase) {
		switch p {
		case host.PhaseKeepAlive:
			if s.Peripheral().Charging() {
				res.Charged++
			}
		case host.PhaseWaitingForDevice:
			if h.Sessions() >= cfg.Sessions {
				cancel()
			}
		}
	})

	if err := h.Run(ctx); err != nil && !interrupted(err) {
		return simResult{}, err
	}
	if err := parent.Err(); err != nil && h.Sessions() < cfg.Sessions {
		return simResult{}, fmt.Errorf("simulation stopped after %d of %d sessions: %w",
			h.Sessions(), cfg.Sessions, err)
	}

	res.Transcript = s.Transcript()
	res.Timing = sim.Analyze(s.Segments(), s.CyclesPerBit())
	res.Sessions = h.Sessions()
	res.Toggles = s.Toggles()
	res.Elapsed = s.Elapsed()
	res.Unmasked = s.UnmaskedCycles()
	return res, nil
}

func (a *app) report(w io.Writer, cfg config.Config, res simResult, quiet bool) {
	if !quiet {
		for _, r := range res.Transcript {
			fmt.Fprintln(w, r)
		}
	}
	a.log.Info().
		Int("sessions", res.Sessions).
		Int("charged", res.Charged).
		Int("toggles", res.Toggles).
		Dur("simulated", res.Elapsed).
		Msg("simulation complete")
	a.log.Info().
		Int("transitions", res.Timing.Transitions).
		Float64("meanDeviation", res.Timing.MeanDeviation).
		Float64("stdDeviation", res.Timing.StdDeviation).
		Float64("maxDeviation", res.Timing.MaxDeviation).
		Float64("longestRun", res.Timing.LongestRun).
		Msg("bit timing")
	if res.Unmasked > 0 {
		a.log.Warn().Uint64("cycles", res.Unmasked).Msg("lines driven with interrupts enabled")
	}
	if res.Charged < res.Sessions {
		a.log.Warn().
			Int("sessions", res.Sessions).
			Int("charged", res.Charged).
			Str("speed", cfg.Speed).
			Msg("device did not reach the configured state in every session")
	}
}

// reload rebuilds the configuration from defaults, the profile at path, the
// environment and the flags set on the command line.
func reload(flags *pflag.FlagSet, path string) (config.Config, error) {
	next := config.DefaultConfig()
	fs := pflag.NewFlagSet("reload", pflag.ContinueOnError)
	bindFlags(fs, &next)

	var err error
	flags.Visit(func(f *pflag.Flag) {
		if fs.Lookup(f.Name) == nil || err != nil {
			return
		}
		err = fs.Set(f.Name, f.Value.String())
	})
	if err != nil {
		return config.Config{}, err
	}
	if err := loadConfig(fs, &next, path); err != nil {
		return config.Config{}, err
	}
	return next, nil
}

// watchProfile calls fn each time the file at path is written or replaced,
// once the file has been quiet for profileSettle. It watches the parent
// directory so editors that replace the file are followed.
func watchProfile(ctx context.Context, path string, fn func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch profile: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch profile: %w", err)
	}
	name := filepath.Base(path)

	settle := time.NewTimer(profileSettle)
	if !settle.Stop() {
		<-settle.C
	}
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			settle.Reset(profileSettle)

		case <-settle.C:
			fn()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch profile: %w", err)
		}
	}
}
