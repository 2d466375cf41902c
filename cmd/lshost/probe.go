package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ardnew/lshost/host/probe"
	"github.com/ardnew/lshost/internal/config"
)

func (a *app) probeCommand() *cobra.Command {
	var (
		index    int
		interval time.Duration
		list     bool
	)
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Watch connector presence through an MCP2221A bridge",
		Long: "Reads the D+/D- lines of two bench connectors wired to the GPIO pins " +
			"of an MCP2221A USB bridge and reports attach and detach events using " +
			"the same presence rule as the firmware.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				names, err := probe.LoadNames()
				if err != nil {
					a.log.Warn().Err(err).Msg("usb.ids unavailable")
					names = &probe.Names{}
				}
				for i, info := range probe.Attached() {
					fmt.Fprintf(cmd.OutOrStdout(), "%d %s %s serial=%q\n",
						i, info.Path, names.Describe(info), info.Serial)
				}
				return nil
			}

			speed, err := config.ParseSpeed(a.cfg.Speed)
			if err != nil {
				return err
			}
			p, err := probe.Open(index, speed)
			if err != nil {
				return err
			}
			defer p.Close()

			err = p.Watch(cmd.Context(), interval, func(slot int, present bool) {
				if present {
					a.log.Info().Int("slot", slot).Msg("device attached")
				} else {
					a.log.Info().Msg("no device")
				}
			})
			if err != nil && !interrupted(err) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&index, "index", 0, "Bridge index among attached MCP2221A devices")
	cmd.Flags().DurationVar(&interval, "interval", 10*time.Millisecond, "Sampling interval")
	cmd.Flags().BoolVar(&list, "list", false, "List attached bridges and exit")
	return cmd
}
