// Package health implements the health-check and supervision loop:
// bounded-timeout liveness probes of mounted backends with configurable
// remediation.
package health

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"magg/internal/config"
	"magg/internal/mount"
	"magg/pkg/logging"
)

// Action enumerates the remediation applied to an unresponsive backend.
type Action string

const (
	ActionReport  Action = "report"
	ActionRemount Action = "remount"
	ActionUnmount Action = "unmount"
	ActionDisable Action = "disable"
)

// Report is the per-backend outcome of one Check call.
type Report struct {
	Name        string
	State       mount.HealthState
	ProbeErr    error
	Remediation string // empty, or e.g. "remounted", "remount_failed", "unmounted", "disabled"
}

// Checker runs health probes across the mount table and applies remediation.
type Checker struct {
	mounts *mount.Manager
	config *config.MaggConfig
	save   func(*config.MaggConfig) error
}

// NewChecker builds a Checker against mounts. save persists cfg when the
// disable remediation flips a server's enabled flag; it may be nil if the
// caller never uses ActionDisable.
func NewChecker(mounts *mount.Manager, cfg *config.MaggConfig, save func(*config.MaggConfig) error) *Checker {
	return &Checker{mounts: mounts, config: cfg, save: save}
}

// Check probes every mounted backend in parallel, each bounded by timeout,
// and applies the named remediation to any backend found unresponsive or
// erroring. action=report only observes and never mutates the mount table
// or configuration. The call returns once every probe (and any triggered
// remediation) has completed.
func (c *Checker) Check(ctx context.Context, action Action, timeout time.Duration) []Report {
	mounted := c.mounts.All()
	reports := make([]Report, len(mounted))

	names := make([]string, 0, len(mounted))
	for name := range mounted {
		names = append(names, name)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			state, err := c.mounts.Probe(gctx, name, timeout)
			report := Report{Name: name, State: state, ProbeErr: err}

			if action != ActionReport && state != mount.HealthHealthy {
				report.Remediation = c.remediate(ctx, name, action)
			}

			reports[i] = report
			return nil
		})
	}
	_ = g.Wait()

	return reports
}

func (c *Checker) remediate(ctx context.Context, name string, action Action) string {
	switch action {
	case ActionRemount:
		_ = c.mounts.Unmount(name)
		server, ok := c.config.Servers[name]
		if !ok {
			return "remount_failed"
		}
		if err := c.mounts.Mount(ctx, server); err != nil {
			logging.Warn("health", "remount of %s failed: %v", name, err)
			return "remount_failed"
		}
		return "remounted"

	case ActionUnmount:
		_ = c.mounts.Unmount(name)
		return "unmounted"

	case ActionDisable:
		_ = c.mounts.Unmount(name)
		if server, ok := c.config.Servers[name]; ok {
			server.Enabled = false
			if c.save != nil {
				if err := c.save(c.config); err != nil {
					logging.Error("health", err, "failed to persist disable of %s", name)
				}
			}
		}
		return "disabled"

	default:
		return ""
	}
}
