// Package runtime wires together the config loader, mount manager, kit
// manager, reload watcher, health checker, router/coordinator, and front
// server into one process: a single object owning every live component,
// constructed once at startup, with no module-level mutation. It is the one
// place in the module that knows all of these pieces exist together.
package runtime

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"magg/internal/config"
	"magg/internal/front"
	"magg/internal/health"
	"magg/internal/kit"
	"magg/internal/mount"
	"magg/internal/reload"
	"magg/internal/router"
	"magg/pkg/logging"
)

// Runtime owns every long-lived component of a running Magg process.
type Runtime struct {
	cfgPath string
	cfg     *config.MaggConfig

	mu         sync.Mutex
	exitSignal os.Signal

	Mounts  *mount.Manager
	Kits    *kit.Manager
	Router  *router.Router
	Coord   *router.Coordinator
	Checker *health.Checker
	Reload  *reload.Watcher
	Front   *front.Server
}

// New loads configuration from cfgPath (resolving the default search order
// if empty), applies environment overrides, and constructs every component
// wired to operate on that one shared *config.MaggConfig. The reload
// watcher's callback closes over the front server via a forward-declared
// variable, since front.Server itself needs a constructed *reload.Watcher:
// the closure is only ever invoked after Start, by which point the
// assignment below has already run.
func New(cfgPath string) (*Runtime, error) {
	if cfgPath == "" {
		resolved, err := config.ResolveConfigPath()
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		cfgPath = resolved
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	config.ApplyEnvOverrides(cfg)

	logging.InitForCLI(logging.ParseLevel(cfg.LogLevel), os.Stderr)

	mounts := mount.NewManager()
	kits := kit.NewManager(config.KitSearchPaths())
	kits.LoadKitsFromConfig(cfg)

	r := router.New()
	coord := router.NewCoordinator(r)
	mounts.SetCoordinator(coord)

	save := func(c *config.MaggConfig) error { return config.SaveConfig(cfgPath, c) }
	checker := health.NewChecker(mounts, cfg, save)

	var frontSrv *front.Server
	pollInterval := time.Duration(cfg.ReloadPollInterval * float64(time.Second))
	watcher := reload.New(cfgPath, pollInterval, func(ctx context.Context, change *config.ConfigChange) error {
		return frontSrv.ApplyReloadChange(ctx, change)
	})
	watcher.UpdateCachedConfig(cfg)

	frontSrv = front.New(cfg, cfgPath, mounts, kits, watcher, checker, coord)

	return &Runtime{
		cfgPath: cfgPath,
		cfg:     cfg,
		Mounts:  mounts,
		Kits:    kits,
		Router:  r,
		Coord:   coord,
		Checker: checker,
		Reload:  watcher,
		Front:   frontSrv,
	}, nil
}

// MountAll mounts every enabled server in the loaded configuration. Exposed
// separately from Start for commands (e.g. check) that want backends
// mounted without bringing up the front server's listener.
func (rt *Runtime) MountAll(ctx context.Context) []mount.MountResult {
	return rt.Mounts.MountAll(ctx, rt.cfg)
}

// Start mounts every enabled server, starts the front server on opts'
// transport, and — if AutoReload is set — starts the hot-reload watcher.
// It installs a signal handler so SIGHUP forces a reload and SIGINT/SIGTERM
// initiate graceful shutdown; SIGINT/SIGTERM return control to the caller
// by cancelling the returned context.
func (rt *Runtime) Start(ctx context.Context, opts front.Options) (context.Context, error) {
	for _, result := range rt.Mounts.MountAll(ctx, rt.cfg) {
		if result.Err != nil {
			logging.Warn("runtime", "failed to mount %s: %v", result.Name, result.Err)
		}
	}

	if err := rt.Front.Start(ctx, opts); err != nil {
		return ctx, fmt.Errorf("start front server: %w", err)
	}

	if rt.cfg.AutoReload {
		if err := rt.Reload.Start(ctx); err != nil {
			return ctx, fmt.Errorf("start reload watcher: %w", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-runCtx.Done():
				signal.Stop(sigCh)
				return
			case sig := <-sigCh:
				switch sig {
				case syscall.SIGHUP:
					logging.Info("runtime", "SIGHUP received, triggering reload")
					if _, err := rt.Reload.Reload(runCtx); err != nil {
						logging.Error("runtime", err, "manual reload failed")
					}
				default:
					logging.Info("runtime", "%s received, shutting down", sig)
					rt.mu.Lock()
					rt.exitSignal = sig
					rt.mu.Unlock()
					cancel()
					return
				}
			}
		}
	}()

	return runCtx, nil
}

// ExitSignal returns the signal that initiated shutdown, or nil if the run
// ended for another reason. Callers use it to pick the process exit code
// (130 for SIGINT).
func (rt *Runtime) ExitSignal() os.Signal {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.exitSignal
}

// Shutdown stops the reload watcher, the front server's listener, and
// closes every mounted backend's session, in that order so no new work can
// start while teardown is in progress.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	rt.Reload.Stop()
	err := rt.Front.Stop(ctx)
	rt.Mounts.Shutdown()
	return err
}
