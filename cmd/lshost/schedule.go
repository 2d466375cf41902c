package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ardnew/lshost/host/bus"
	"github.com/ardnew/lshost/host/hal"
	"github.com/ardnew/lshost/host/hal/sim"
	"github.com/ardnew/lshost/host/transaction"
	"github.com/ardnew/lshost/internal/config"
)

// namedSchedule is one schedule the firmware replays.
type namedSchedule struct {
	Name     string
	Schedule bus.Schedule
}

func (a *app) scheduleCommand() *cobra.Command {
	var frames bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Print the symbol schedules replayed by the host",
		Long: "Prints the keep-alive SOF and both control transfers in schedule " +
			"notation (OUT, IN, J, K, X, D), or as compiled port frames with --frames.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scheds, err := schedules(a.cfg)
			if err != nil {
				return err
			}
			sc, err := a.cfg.SimConfig()
			if err != nil {
				return err
			}
			for _, ns := range scheds {
				if frames {
					printFrames(cmd.OutOrStdout(), ns, bus.Compile(ns.Schedule, sc.Slots, sc.Speed))
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "# %s (%d bits)\n%s\n",
						ns.Name, ns.Schedule.Bits(), ns.Schedule)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&frames, "frames", false, "Print compiled port frames")
	return cmd
}

// schedules synthesizes every schedule for the configured session.
func schedules(cfg config.Config) ([]namedSchedule, error) {
	hc, err := cfg.HostConfig()
	if err != nil {
		return nil, err
	}
	sc, err := cfg.SimConfig()
	if err != nil {
		return nil, err
	}
	s, err := sim.New(sc)
	if err != nil {
		return nil, err
	}
	b, err := bus.New(s, sc.Speed)
	if err != nil {
		return nil, err
	}

	out := []namedSchedule{
		{"SOF", transaction.New(b, hc.FrameNumber).SOFSchedule()},
	}
	for _, req := range []transaction.Request{
		transaction.SetAddress(hc.Address),
		transaction.SetConfiguration(hc.Address, hc.Configuration),
	} {
		t, err := transaction.Build(req, hc.Windows)
		if err != nil {
			return nil, err
		}
		out = append(out,
			namedSchedule{req.String() + " setup", t.Setup},
			namedSchedule{req.String() + " status", t.Status})
	}
	return out, nil
}

func printFrames(w io.Writer, ns namedSchedule, frames []hal.Frame) {
	fmt.Fprintf(w, "# %s (%d frames)\n", ns.Name, len(frames))
	for _, f := range frames {
		dir := "in "
		if f.Output {
			dir = "out"
		}
		fmt.Fprintf(w, "%s 0x%02X %d\n", dir, uint8(f.Levels), f.Bits)
	}
}
