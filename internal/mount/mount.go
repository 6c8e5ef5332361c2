// Package mount owns the live mount table: bringing configured backends up
// and down, probing their health, and applying diffs produced by the
// hot-reload engine. Nothing outside this package mutates the mount table.
package mount

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"magg/internal/config"
	"magg/internal/magg_errors"
	"magg/internal/mcpclient"
	"magg/internal/router"
	"magg/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
)

// HealthState classifies the result of the most recent probe of a mounted
// backend.
type HealthState string

const (
	HealthUnknown     HealthState = "unknown"
	HealthHealthy     HealthState = "healthy"
	HealthUnresponsive HealthState = "unresponsive"
	HealthError       HealthState = "error"
)

// MountedServer is the runtime record for one successfully mounted backend.
// It is never persisted; it is rebuilt from ServerConfig on every mount.
type MountedServer struct {
	Prefix         string
	ConfigSnapshot config.ServerConfig
	Client         mcpclient.Client

	mu          sync.RWMutex
	healthState HealthState
	lastProbeAt time.Time
}

// Health returns the last recorded health state and probe time.
func (m *MountedServer) Health() (HealthState, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthState, m.lastProbeAt
}

func (m *MountedServer) setHealth(state HealthState, at time.Time) {
	m.mu.Lock()
	m.healthState = state
	m.lastProbeAt = at
	m.mu.Unlock()
}

// MountResult reports the outcome of mounting a single server, used by
// MountAll to build a per-name report without aborting the batch.
type MountResult struct {
	Name    string
	Mounted bool
	Err     error
}

// Manager owns the mount table, keyed by server name (the prefix is
// derived, never the key — this lets two servers share a prefix transiently
// during a rollout).
type Manager struct {
	mu      sync.RWMutex
	mounted map[string]*MountedServer

	newClient func(*config.ServerConfig) (mcpclient.Client, error)

	coord *router.Coordinator
}

// NewManager constructs an empty mount manager.
func NewManager() *Manager {
	return &Manager{
		mounted:   make(map[string]*MountedServer),
		newClient: mcpclient.NewFromServerConfig,
	}
}

// SetClientFactory overrides how Mount constructs a backend client. Intended
// for tests; production callers rely on the mcpclient.NewFromServerConfig
// default.
func (m *Manager) SetClientFactory(factory func(*config.ServerConfig) (mcpclient.Client, error)) {
	m.newClient = factory
}

// SetCoordinator wires coord so every subsequent Mount installs a backend
// notification handler forwarding into it.
// Servers mounted before this is called receive no handler; runtime.New
// wires it before MountAll runs.
func (m *Manager) SetCoordinator(coord *router.Coordinator) {
	m.mu.Lock()
	m.coord = coord
	m.mu.Unlock()
}

// Mount opens the transport for server, performs the MCP handshake, and
// registers it in the mount table under its configured prefix. A disabled
// server is a no-op success. Mounting a server already mounted under the
// same name is also a no-op success.
func (m *Manager) Mount(ctx context.Context, server *config.ServerConfig) error {
	if !server.Enabled {
		return nil
	}

	m.mu.Lock()
	if _, exists := m.mounted[server.Name]; exists {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	client, err := m.newClient(server)
	if err != nil {
		return magg_errors.MountError{Server: server.Name, Reason: "spawn", Err: err}
	}

	m.mu.RLock()
	coord := m.coord
	m.mu.RUnlock()
	if coord != nil {
		serverName := server.Name
		client.SetOnNotification(func(n mcp.JSONRPCNotification) {
			coord.HandleNotification(context.Background(), serverName, n)
		})
	}

	if err := client.Initialize(ctx); err != nil {
		_ = client.Close()
		return magg_errors.MountError{Server: server.Name, Reason: "handshake", Err: err}
	}

	prefix := server.Prefix
	if prefix == "" {
		prefix = config.GeneratePrefixFromName(server.Name)
	}

	ms := &MountedServer{
		Prefix:         prefix,
		ConfigSnapshot: *server,
		Client:         client,
		healthState:    HealthHealthy,
		lastProbeAt:    time.Now(),
	}

	m.mu.Lock()
	if _, exists := m.mounted[server.Name]; exists {
		m.mu.Unlock()
		_ = client.Close()
		return nil
	}
	m.mounted[server.Name] = ms
	m.mu.Unlock()

	logging.Info("mount", "mounted %s under prefix %s", server.Name, prefix)
	return nil
}

// Unmount closes the session for name and drops it from the mount table.
// Works from the in-memory mount table alone, never re-reading the on-disk
// configuration, so unmounting a server already removed from config
// still tears down its session cleanly. Tolerant of a missing entry.
func (m *Manager) Unmount(name string) error {
	m.mu.Lock()
	ms, exists := m.mounted[name]
	if !exists {
		m.mu.Unlock()
		return nil
	}
	delete(m.mounted, name)
	m.mu.Unlock()

	if err := ms.Client.Close(); err != nil {
		logging.Warn("mount", "error closing client for %s: %v", name, err)
	}
	logging.Info("mount", "unmounted %s", name)
	return nil
}

// MountAll mounts every enabled server in cfg, continuing past individual
// failures and returning a per-name report.
func (m *Manager) MountAll(ctx context.Context, cfg *config.MaggConfig) []MountResult {
	results := make([]MountResult, 0, len(cfg.Servers))
	for _, server := range cfg.GetEnabledServers() {
		err := m.Mount(ctx, server)
		results = append(results, MountResult{Name: server.Name, Mounted: err == nil, Err: err})
	}
	return results
}

// Get returns the mounted record for name, if present.
func (m *Manager) Get(name string) (*MountedServer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ms, ok := m.mounted[name]
	return ms, ok
}

// All returns a snapshot copy of the mount table.
func (m *Manager) All() map[string]*MountedServer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*MountedServer, len(m.mounted))
	for k, v := range m.mounted {
		out[k] = v
	}
	return out
}

// Prefixes returns every in-use prefix mapped to the server names using it,
// so callers can report collisions. Duplicate prefixes are reported, never
// fatal.
func (m *Manager) Prefixes() map[string][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]string)
	for name, ms := range m.mounted {
		out[ms.Prefix] = append(out[ms.Prefix], name)
	}
	return out
}

// Probe asks the backend to list its tools, classifying health by outcome.
func (m *Manager) Probe(ctx context.Context, name string, timeout time.Duration) (HealthState, error) {
	ms, exists := m.Get(name)
	if !exists {
		return HealthUnknown, fmt.Errorf("server %q is not mounted", name)
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := ms.Client.ListTools(probeCtx)
	now := time.Now()
	switch {
	case err == nil:
		ms.setHealth(HealthHealthy, now)
		return HealthHealthy, nil
	case probeCtx.Err() == context.DeadlineExceeded:
		ms.setHealth(HealthUnresponsive, now)
		return HealthUnresponsive, err
	default:
		ms.setHealth(HealthError, now)
		return HealthError, err
	}
}

// ListTools aggregates tools across every mounted server, namespacing each
// under "<prefix><sep><name>".
func (m *Manager) ListTools(ctx context.Context, sep string) ([]mcp.Tool, error) {
	var all []mcp.Tool
	for _, ms := range m.All() {
		tools, err := ms.Client.ListTools(ctx)
		if err != nil {
			logging.Debug("mount", "list tools failed for prefix %s: %v", ms.Prefix, err)
			continue
		}
		for _, t := range tools {
			t.Name = ms.Prefix + sep + t.Name
			all = append(all, t)
		}
	}
	return all, nil
}

// ListResources aggregates resources across every mounted server, namespacing
// each URI under "<prefix><sep><uri>" unless the URI already carries a
// scheme (e.g. "file://…"), in which case it is left untouched.
func (m *Manager) ListResources(ctx context.Context, sep string) ([]mcp.Resource, error) {
	var all []mcp.Resource
	for _, ms := range m.All() {
		resources, err := ms.Client.ListResources(ctx)
		if err != nil {
			continue
		}
		for _, r := range resources {
			r.URI = namespaceURI(ms.Prefix, sep, r.URI)
			all = append(all, r)
		}
	}
	return all, nil
}

// ListResourceTemplates aggregates resource templates across every mounted
// server. Unlike ListResources, the URI template's RFC 6570 pattern is left
// untouched: mcp-go's ResourceTemplate wraps it in its own type rather than
// a plain string, so there is no safe string-prefixing point without
// risking a malformed template.
func (m *Manager) ListResourceTemplates(ctx context.Context) ([]mcp.ResourceTemplate, error) {
	var all []mcp.ResourceTemplate
	for _, ms := range m.All() {
		templates, err := ms.Client.ListResourceTemplates(ctx)
		if err != nil {
			continue
		}
		all = append(all, templates...)
	}
	return all, nil
}

// ListPrompts aggregates prompts across every mounted server, namespacing
// each under "<prefix><sep><name>".
func (m *Manager) ListPrompts(ctx context.Context, sep string) ([]mcp.Prompt, error) {
	var all []mcp.Prompt
	for _, ms := range m.All() {
		prompts, err := ms.Client.ListPrompts(ctx)
		if err != nil {
			continue
		}
		for _, p := range prompts {
			p.Name = ms.Prefix + sep + p.Name
			all = append(all, p)
		}
	}
	return all, nil
}

func namespaceURI(prefix, sep, uri string) string {
	if strings.Contains(uri, "://") {
		return uri
	}
	return prefix + sep + uri
}

// ResolvePrefixed splits a namespaced name/URI of the form "<prefix><sep><rest>"
// into the owning server's prefix and the original, unprefixed value. The
// first in-use prefix that matches wins; callers resolve against the live
// mount table so a just-unmounted server's prefix never matches.
func (m *Manager) ResolvePrefixed(name, sep string) (prefix, rest string, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ms := range m.mounted {
		candidate := ms.Prefix + sep
		if strings.HasPrefix(name, candidate) {
			return ms.Prefix, name[len(candidate):], true
		}
	}
	return "", "", false
}

// ClientForPrefix returns the client mounted under prefix, if any is
// currently using it. When multiple servers share a prefix, an arbitrary
// one wins: Go map iteration order is unspecified, so which server answers
// is not deterministic across calls. Callers that need deterministic
// resolution should avoid creating the collision in the first place —
// collisions are reported in status, not resolved.
func (m *Manager) ClientForPrefix(prefix string) (mcpclient.Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ms := range m.mounted {
		if ms.Prefix == prefix {
			return ms.Client, true
		}
	}
	return nil, false
}

// HandleConfigChange applies a ConfigChange to the mount table: unmounts
// removed/disabled/updated servers first, then mounts added/enabled/updated
// ones, so that a prefix freed by a remove is available for a subsequent
// add.
func (m *Manager) HandleConfigChange(ctx context.Context, change *config.ConfigChange) []MountResult {
	var toMount []*config.ServerConfig

	for _, sc := range change.ServerChanges {
		switch sc.Action {
		case config.ActionRemove, config.ActionDisable:
			_ = m.Unmount(sc.Name)
		case config.ActionUpdate:
			_ = m.Unmount(sc.Name)
			if sc.NewConfig != nil && sc.NewConfig.Enabled {
				toMount = append(toMount, sc.NewConfig)
			}
		case config.ActionAdd, config.ActionEnable:
			if sc.NewConfig != nil {
				toMount = append(toMount, sc.NewConfig)
			}
		}
	}

	results := make([]MountResult, 0, len(toMount))
	for _, server := range toMount {
		err := m.Mount(ctx, server)
		results = append(results, MountResult{Name: server.Name, Mounted: err == nil, Err: err})
	}
	return results
}

// Shutdown unmounts every mounted server. Errors encountered closing a
// single client do not prevent the rest from being torn down.
func (m *Manager) Shutdown() {
	for name := range m.All() {
		_ = m.Unmount(name)
	}
}
