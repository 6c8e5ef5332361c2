package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"magg/internal/health"
	"magg/internal/mount"
	"magg/internal/runtime"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var (
	checkConfigPath string
	checkAction     string
	checkTimeout    time.Duration
	checkQuiet      bool
)

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Probe every configured server's health without starting the MCP endpoint",
		Long: `check loads the configuration, mounts every enabled server, probes each
one's health, applies the requested remediation to any unhealthy backend,
and prints a table of the result. Unlike serve, the process exits once the
table is printed.`,
		Args: cobra.NoArgs,
		RunE: runCheck,
	}

	cmd.Flags().StringVar(&checkConfigPath, "config", "", "configuration file path (overrides MAGG_CONFIG_PATH)")
	cmd.Flags().StringVar(&checkAction, "action", "report", "report, remount, unmount, or disable")
	cmd.Flags().DurationVar(&checkTimeout, "timeout", 5*time.Second, "per-backend probe timeout")
	cmd.Flags().BoolVar(&checkQuiet, "quiet", false, "suppress the progress spinner")
	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	rt, err := runtime.New(checkConfigPath)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	ctx := cmd.Context()
	for _, result := range rt.MountAll(ctx) {
		if result.Err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to mount %s: %v\n", result.Name, result.Err)
		}
	}

	var s *spinner.Spinner
	if !checkQuiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Suffix = " Probing backend health..."
		s.Start()
	}

	reports := rt.Checker.Check(ctx, health.Action(checkAction), checkTimeout)

	if s != nil {
		s.Stop()
	}

	renderCheckTable(reports)
	return nil
}

func renderCheckTable(reports []health.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.Colors{text.FgHiBlue, text.Bold}.Sprint("SERVER"),
		text.Colors{text.FgHiBlue, text.Bold}.Sprint("STATE"),
		text.Colors{text.FgHiBlue, text.Bold}.Sprint("REMEDIATION"),
		text.Colors{text.FgHiBlue, text.Bold}.Sprint("NOTE"),
	})

	for _, r := range reports {
		state := fmt.Sprint(r.State)
		switch {
		case r.ProbeErr != nil:
			state = text.FgRed.Sprint(state)
		case r.State == mount.HealthHealthy:
			state = text.FgGreen.Sprint(state)
		default:
			state = text.FgYellow.Sprint(state)
		}

		note := ""
		if r.ProbeErr != nil {
			note = truncateNote(r.ProbeErr.Error())
		}

		t.AppendRow(table.Row{r.Name, state, r.Remediation, note})
	}

	t.Render()
}

// noteMaxLen bounds the NOTE column so a long dial error never wraps the table.
const noteMaxLen = 60

// truncateNote flattens a probe error into a single table cell: newlines and
// runs of whitespace collapse to one space, and anything past noteMaxLen
// runes is cut with a trailing ellipsis.
func truncateNote(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= noteMaxLen {
		return s
	}
	return string(runes[:noteMaxLen-3]) + "..."
}
