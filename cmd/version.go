package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newVersionCmd builds the version command. It prints the CLI's own
// build-time version only; no server handshake is involved.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the magg CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "magg version %s\n", rootCmd.Version)
		},
	}
}
