package cmd

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"magg/internal/front"
	"magg/internal/runtime"

	"github.com/spf13/cobra"
)

const shutdownGrace = 10 * time.Second

var (
	serveConfigPath string
	serveTransport  string
	serveHost       string
	servePort       int
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Mount configured servers and start magg's own MCP endpoint",
		Long: `serve loads the configuration (MAGG_CONFIG_PATH, or .magg/config.json in
the current directory by default), mounts every enabled server, and starts
magg's own MCP server: the management tools, the generic proxy tool, and
the union of every mounted backend's tools, under the configured
transport.

If auto_reload is set (MAGG_AUTO_RELOAD, or the config file's
auto_reload field), the configuration file is watched and changes are
applied without restarting the process. SIGHUP triggers a one-shot reload
regardless of auto_reload; SIGINT/SIGTERM shut down gracefully.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().StringVar(&serveConfigPath, "config", "", "configuration file path (overrides MAGG_CONFIG_PATH)")
	cmd.Flags().StringVar(&serveTransport, "transport", "stdio", "stdio, sse, or streamable-http")
	cmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "listen host for sse/streamable-http")
	cmd.Flags().IntVar(&servePort, "port", 8080, "listen port for sse/streamable-http")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := runtime.New(serveConfigPath)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	opts := front.Options{
		Transport: front.Transport(serveTransport),
		Host:      serveHost,
		Port:      servePort,
	}

	runCtx, err := rt.Start(ctx, opts)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}

	<-runCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := rt.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if rt.ExitSignal() == syscall.SIGINT {
		os.Exit(ExitCodeSIGINT)
	}
	return nil
}
