// Package reload implements the hot-reload engine: it watches
// the on-disk configuration file (file-system notifications with a polling
// fallback), debounces bursts of writes, suppresses reloads triggered by
// Magg's own saves, diffs the new configuration against the running one,
// validates the result, and hands the diff to a caller-supplied callback.
package reload

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"magg/internal/config"
	"magg/pkg/logging"
)

// State is one of the watcher's five lifecycle states, transitions
// between which are serialized by a single guard.
type State string

const (
	StateStopped   State = "stopped"
	StateStarting  State = "starting"
	StateWatching  State = "watching"
	StateReloading State = "reloading"
	StateStopping  State = "stopping"
)

// DebounceInterval is the fixed coalescing window applied after any change
// signal before the file is actually read.
const DebounceInterval = 100 * time.Millisecond

// Callback is invoked with a non-empty ConfigChange once a reload has been
// validated and is ready to apply.
type Callback func(ctx context.Context, change *config.ConfigChange) error

// Watcher watches one configuration file and drives the reload pipeline
// described above.
type Watcher struct {
	path         string
	pollInterval time.Duration
	callback     Callback

	mu    sync.Mutex
	state State

	lastMtime    time.Time
	lastConfig   *config.MaggConfig
	ignoreNext   bool
	reloadQueued bool

	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// New constructs a Watcher for path. pollInterval governs the polling
// fallback used when file-system notifications are unavailable.
func New(path string, pollInterval time.Duration, callback Callback) *Watcher {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Watcher{
		path:         path,
		pollInterval: pollInterval,
		callback:     callback,
		state:        StateStopped,
	}
}

// State returns the watcher's current state.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// IgnoreNextChange arms a one-shot flag telling the watcher to treat the
// very next observed modification as self-inflicted: it updates its cached
// mtime without triggering a reload. Callers set this immediately before
// saving the configuration file themselves.
func (w *Watcher) IgnoreNextChange() {
	w.mu.Lock()
	w.ignoreNext = true
	w.mu.Unlock()
	logging.Debug("reload", "will ignore next config file change")
}

// UpdateCachedConfig replaces the watcher's cached "last seen" config,
// keeping it in sync after a programmatic save.
func (w *Watcher) UpdateCachedConfig(cfg *config.MaggConfig) {
	w.mu.Lock()
	w.lastConfig = cfg
	w.mu.Unlock()
}

// CachedConfig returns the watcher's cached configuration, if any has been
// loaded yet.
func (w *Watcher) CachedConfig() *config.MaggConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastConfig
}

// Start begins watching. It tries fsnotify first and falls back to polling
// if the watcher cannot be created or the watch cannot be set up.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.state != StateStopped {
		w.mu.Unlock()
		return nil
	}
	w.state = StateStarting
	w.mu.Unlock()

	if info, err := os.Stat(w.path); err == nil {
		w.lastMtime = info.ModTime()
		w.lastConfig, _ = config.LoadConfig(w.path)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn("reload", "failed to create file watcher: %v, falling back to polling", err)
		fsWatcher = nil
	} else if err := fsWatcher.Add(dirOf(w.path)); err != nil {
		logging.Warn("reload", "failed to watch %s: %v, falling back to polling", dirOf(w.path), err)
		_ = fsWatcher.Close()
		fsWatcher = nil
	}

	w.mu.Lock()
	w.fsWatcher = fsWatcher
	w.state = StateWatching
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	if fsWatcher != nil {
		logging.Debug("reload", "watching %s via file system notifications", w.path)
		go w.watchLoopNotify(ctx, fsWatcher)
	} else {
		logging.Debug("reload", "watching %s via polling (interval %s)", w.path, w.pollInterval)
		go w.watchLoopPoll(ctx)
	}
	return nil
}

// Stop halts watching and releases any OS watch handle.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.state == StateStopped || w.state == StateStopping {
		w.mu.Unlock()
		return
	}
	w.state = StateStopping
	stopCh := w.stopCh
	doneCh := w.doneCh
	fsWatcher := w.fsWatcher
	w.mu.Unlock()

	close(stopCh)
	<-doneCh

	if fsWatcher != nil {
		_ = fsWatcher.Close()
	}

	w.mu.Lock()
	w.fsWatcher = nil
	w.state = StateStopped
	w.mu.Unlock()
	logging.Debug("reload", "stopped watching %s", w.path)
}

func dirOf(path string) string {
	dir := path
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			dir = path[:i]
			break
		}
	}
	if dir == path {
		dir = "."
	}
	return dir
}

func (w *Watcher) watchLoopNotify(ctx context.Context, fsWatcher *fsnotify.Watcher) {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			time.Sleep(DebounceInterval)
			w.checkForChanges(ctx)
		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return
			}
			logging.Warn("reload", "file watcher error: %v", err)
		}
	}
}

func (w *Watcher) watchLoopPoll(ctx context.Context) {
	defer close(w.doneCh)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.checkForChanges(ctx)
		}
	}
}

func (w *Watcher) checkForChanges(ctx context.Context) {
	info, err := os.Stat(w.path)
	if err != nil {
		w.mu.Lock()
		if !w.lastMtime.IsZero() {
			logging.Warn("reload", "config file disappeared: %s", w.path)
			w.lastMtime = time.Time{}
		}
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	if w.lastMtime.IsZero() {
		w.lastMtime = info.ModTime()
		w.mu.Unlock()
		cfg, err := config.LoadConfig(w.path)
		if err == nil {
			w.UpdateCachedConfig(cfg)
		}
		return
	}

	if !info.ModTime().After(w.lastMtime) {
		w.mu.Unlock()
		return
	}

	if w.ignoreNext {
		logging.Debug("reload", "ignoring config file change (internal modification)")
		w.ignoreNext = false
		w.lastMtime = info.ModTime()
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	_, _ = w.Reload(ctx)

	w.mu.Lock()
	w.lastMtime = info.ModTime()
	w.mu.Unlock()
}

// Reload loads the configuration fresh from disk, diffs it against the
// cached configuration, validates it, invokes the callback if the diff is
// non-empty, and updates the cache. Concurrent reload requests while one is
// already in flight are coalesced into at most one extra run.
func (w *Watcher) Reload(ctx context.Context) (*config.ConfigChange, error) {
	w.mu.Lock()
	if w.state == StateReloading {
		w.reloadQueued = true
		w.mu.Unlock()
		return nil, nil
	}
	// A manual reload is valid even when the watcher was never started
	// (auto_reload off); the state it returns to must match where it came
	// from, not assume a running watch loop.
	prior := w.state
	w.state = StateReloading
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		if w.state == StateReloading {
			w.state = prior
		}
		queued := w.reloadQueued
		w.reloadQueued = false
		w.mu.Unlock()
		if queued {
			go func() { _, _ = w.Reload(ctx) }()
		}
	}()

	newCfg, err := config.LoadConfig(w.path)
	if err != nil {
		return nil, fmt.Errorf("load new config: %w", err)
	}

	oldCfg := w.CachedConfig()
	if oldCfg == nil {
		oldCfg = config.NewMaggConfig()
	}

	change := config.Diff(oldCfg, newCfg)

	if !change.HasChanges() {
		logging.Debug("reload", "config reloaded, no changes detected")
		w.UpdateCachedConfig(newCfg)
		return change, nil
	}

	logging.Info("reload", "%s", change.Summarize())

	if err := config.ValidateMaggConfigForReload(newCfg); err != nil {
		logging.Error("reload", err, "new config failed validation, not applying changes")
		return nil, err
	}

	if w.callback != nil {
		if err := w.callback(ctx, change); err != nil {
			logging.Error("reload", err, "reload callback failed")
			return nil, err
		}
	}

	w.UpdateCachedConfig(newCfg)
	return change, nil
}
