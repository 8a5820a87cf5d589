package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Happy-Ferret/eden/mount"
)

func newDiffCmd() *cobra.Command {
	var toHash string
	var listIgnored bool

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Diff the mount's working state against a tree hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if toHash == "" {
				return fmt.Errorf("--to is required")
			}
			resp, err := sendCommand(mountPath, mount.ApiCommand{
				Command:     "diff",
				ToHash:      toHash,
				ListIgnored: listIgnored,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range resp.DiffEntries {
				fmt.Fprintf(out, "%s %s\n", colorStatus(e.Status), e.Path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&toHash, "to", "", "tree hash to diff against")
	cmd.Flags().BoolVar(&listIgnored, "list-ignored", false, "include ignored paths in the diff")
	return cmd
}

func colorStatus(status string) string {
	switch status {
	case "ADDED":
		return color.GreenString("A")
	case "REMOVED":
		return color.RedString("D")
	case "MODIFIED":
		return color.YellowString("M")
	case "IGNORED":
		return color.HiBlackString("I")
	default:
		return status
	}
}
