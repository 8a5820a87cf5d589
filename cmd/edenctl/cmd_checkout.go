package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Happy-Ferret/eden/mount"
)

func newCheckoutCmd() *cobra.Command {
	var force bool
	var fromHash string

	cmd := &cobra.Command{
		Use:   "checkout <hash>",
		Short: "Check the mount out to a new tree hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := sendCommand(mountPath, mount.ApiCommand{
				Command:  "checkout",
				ToHash:   args[0],
				FromHash: fromHash,
				Force:    force,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(resp.Conflicts) == 0 {
				fmt.Fprintln(out, color.GreenString("checkout complete, no conflicts"))
				return nil
			}

			fmt.Fprintf(out, "%s\n", color.YellowString("checkout completed with %d conflict(s):", len(resp.Conflicts)))
			for _, cf := range resp.Conflicts {
				fmt.Fprintf(out, "  %s %s\n", color.RedString(cf.Type), cf.Path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "discard local modifications that would otherwise conflict")
	cmd.Flags().StringVar(&fromHash, "from", "", "tree hash to diff from (defaults to the mount's current hash)")
	return cmd
}
