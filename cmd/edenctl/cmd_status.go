package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Happy-Ferret/eden/mount"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the mount's checked-out hash and load/lock latency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := sendCommand(mountPath, mount.ApiCommand{Command: "status"})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			for _, m := range resp.Mounts {
				label := color.GreenString("clean")
				if !m.Clean {
					label = color.YellowString("modified")
				}
				fmt.Fprintf(out, "%s  %s  %s\n", m.Path, m.Hash, label)
			}

			if resp.Stats != nil {
				fmt.Fprintf(out, "\nload       p50=%.0fus p90=%.0fus p99=%.0fus n=%d\n",
					resp.Stats.Load.P50, resp.Stats.Load.P90, resp.Stats.Load.P99, resp.Stats.Load.Count)
				fmt.Fprintf(out, "rename lock p50=%.0fus p90=%.0fus p99=%.0fus n=%d\n",
					resp.Stats.RenameLock.P50, resp.Stats.RenameLock.P90, resp.Stats.RenameLock.P99, resp.Stats.RenameLock.Count)
			}
			return nil
		},
	}
}
