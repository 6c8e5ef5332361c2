package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeSIGINT is the conventional 128+SIGINT exit status after an
	// interrupt-initiated graceful shutdown.
	ExitCodeSIGINT = 130
)

// rootCmd is the base command for the magg CLI. It carries no behavior of
// its own; every action lives in a subcommand.
var rootCmd = &cobra.Command{
	Use:   "magg",
	Short: "An MCP aggregator: mount many MCP servers behind one endpoint",
	Long: `magg mounts a set of configured MCP servers behind a single endpoint,
namespacing their tools and resources under a per-server prefix and exposing
a generic proxy tool for clients that would rather not hardcode the prefix
scheme. It also manages kits (bundles of server configurations), watches its
configuration file for changes, and reports backend health.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command, injected at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the CLI's entry point, called from main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "magg version %s\n" .Version}}`)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitCodeError)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCheckCmd())
}
