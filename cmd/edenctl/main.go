// edenctl is the CLI front-end to a mount's ".eden/api" command channel,
// the counterpart of the teacher's qfs(1)/qubit tools in spirit, built
// in the style of odvcencio-got/cmd/got: one cobra.Command per verb,
// registered on a bare root command.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var mountPath string

func main() {
	root := &cobra.Command{
		Use:   "edenctl",
		Short: "Administer an edenvfs mount",
	}
	addMountFlag(root.PersistentFlags())

	root.AddCommand(newStatusCmd())
	root.AddCommand(newDiffCmd())
	root.AddCommand(newCheckoutCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// addMountFlag registers --mount on fs directly against the pflag type
// rather than through cobra's wrapper, since every subcommand's flag set
// is itself a *pflag.FlagSet and this keeps that explicit.
func addMountFlag(fs *pflag.FlagSet) {
	fs.StringVar(&mountPath, "mount", "/mnt/edenvfs", "path the edenvfs mount is rooted at")
}
