// Package config defines magg's declarative configuration model: the shape
// of a single backend (ServerConfig), a named bundle of backends (KitConfig),
// the persisted record of which kits are loaded (KitInfo), the top-level
// runtime configuration (MaggConfig), and the diff between two
// configurations (ConfigChange) produced by the hot-reload engine.
package config

import "fmt"

// DefaultPrefixSep is the separator reserved between a backend's prefix and
// its capability name (e.g. "calc_add").
const DefaultPrefixSep = "_"

// DefaultSelfPrefix namespaces magg's own tools and resources.
const DefaultSelfPrefix = "magg"

// KitSource enumerates where a loaded kit's definition came from.
type KitSource string

const (
	KitSourceFile   KitSource = "file"
	KitSourceInline KitSource = "inline"
	KitSourceLegacy KitSource = "legacy"
)

// OAuthDescriptor describes an OAuth 2.1 flow to use when dialing a backend
// that requires bearer-token authentication obtained dynamically rather than
// supplied statically.
type OAuthDescriptor struct {
	Issuer   string   `json:"issuer"`
	Scopes   []string `json:"scopes,omitempty"`
	ClientID string   `json:"client_id,omitempty"`
}

// AuthOption is the `auth` transport option: either a static bearer token or
// an OAuth descriptor magg will use to acquire one.
type AuthOption struct {
	Bearer string           `json:"bearer,omitempty"`
	OAuth  *OAuthDescriptor `json:"oauth,omitempty"`
}

// TransportOptions carries the transport-specific knobs a ServerConfig may
// declare. Extra holds any options this build of magg does not yet
// recognize; they are round-tripped verbatim rather than rejected, so
// options belonging to future transports survive a load/save cycle.
type TransportOptions struct {
	KeepAlive      bool              `json:"keep_alive,omitempty"`
	PythonCmd      string            `json:"python_cmd,omitempty"`
	NodeCmd        string            `json:"node_cmd,omitempty"`
	PythonVersion  string            `json:"python_version,omitempty"`
	WithPackages   []string          `json:"with_packages,omitempty"`
	FromPackage    string            `json:"from_package,omitempty"`
	UsePackageLock bool              `json:"use_package_lock,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	Auth           *AuthOption       `json:"auth,omitempty"`
	SSEReadTimeout float64           `json:"sse_read_timeout,omitempty"`

	Extra map[string]any `json:"-"`
}

// ServerConfig is the declared way to reach one backend MCP server.
type ServerConfig struct {
	Name   string `json:"-"`
	Source string `json:"source"`
	Prefix string `json:"prefix,omitempty"`
	Notes  string `json:"notes,omitempty"`

	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`

	URI string `json:"uri,omitempty"`

	Transport *TransportOptions `json:"transport,omitempty"`

	Enabled bool     `json:"enabled"`
	Kits    []string `json:"kits,omitempty"`
}

// IsSpawned reports whether this server is launched as a child process
// rather than dialed as a remote endpoint.
func (s *ServerConfig) IsSpawned() bool {
	return s.Command != ""
}

// OwnedByKit reports whether kitName appears in this server's Kits list.
func (s *ServerConfig) OwnedByKit(kitName string) bool {
	for _, k := range s.Kits {
		if k == kitName {
			return true
		}
	}
	return false
}

// RemoveKit drops kitName from this server's Kits list, returning the
// remaining count.
func (s *ServerConfig) RemoveKit(kitName string) int {
	out := s.Kits[:0]
	for _, k := range s.Kits {
		if k != kitName {
			out = append(out, k)
		}
	}
	s.Kits = out
	return len(s.Kits)
}

// AddKitOwner appends kitName to this server's Kits list if not already present.
func (s *ServerConfig) AddKitOwner(kitName string) {
	if s.OwnedByKit(kitName) {
		return
	}
	s.Kits = append(s.Kits, kitName)
}

// KitConfig is a named, loadable bundle of server definitions.
type KitConfig struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description,omitempty"`
	Author      string                   `json:"author,omitempty"`
	Version     string                   `json:"version,omitempty"`
	Keywords    []string                 `json:"keywords,omitempty"`
	Links       []string                 `json:"links,omitempty"`
	Servers     map[string]*ServerConfig `json:"servers,omitempty"`
}

// KitInfo is the persisted record of a single loaded kit: which file it
// came from (if any) and how it entered the configuration.
type KitInfo struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Path        string    `json:"path,omitempty"`
	Source      KitSource `json:"source"`
}

// MaggConfig is the top-level runtime configuration: the union of
// user-declared and kit-contributed servers, the set of loaded kits, and
// process-wide policy scalars.
type MaggConfig struct {
	Servers map[string]*ServerConfig `json:"servers"`
	Kits    map[string]*KitInfo      `json:"kits,omitempty"`

	SelfPrefix         string  `json:"self_prefix,omitempty"`
	PrefixSep          string  `json:"prefix_sep,omitempty"`
	ReadOnly           bool    `json:"read_only,omitempty"`
	AutoReload         bool    `json:"auto_reload,omitempty"`
	ReloadPollInterval float64 `json:"reload_poll_interval,omitempty"`
	LogLevel           string  `json:"log_level,omitempty"`

	// AllowInlineKitPlaceholders permits load_kit to reference a kit that
	// has no file on any search path: it stays in Kits as a KitSourceInline
	// placeholder rather than failing outright. Off by default; a missing
	// kit file is a configuration error unless a caller opts in.
	AllowInlineKitPlaceholders bool `json:"allow_inline_kit_placeholders,omitempty"`
	// WarnOnDuplicatePrefix makes add_server also log a warning when a new
	// server's generated or explicit prefix collides with an already-mounted
	// one. add_server accepts the colliding prefix and reports the collision
	// in its result whether or not this is set (mount.Manager.Prefixes
	// reports it either way too).
	WarnOnDuplicatePrefix bool `json:"warn_on_duplicate_prefix,omitempty"`
}

// NewMaggConfig returns a MaggConfig populated with defaults.
func NewMaggConfig() *MaggConfig {
	return &MaggConfig{
		Servers:            map[string]*ServerConfig{},
		Kits:               map[string]*KitInfo{},
		SelfPrefix:         DefaultSelfPrefix,
		PrefixSep:          DefaultPrefixSep,
		ReloadPollInterval: 2.0,
	}
}

// GetEnabledServers returns the subset of Servers with Enabled == true.
func (c *MaggConfig) GetEnabledServers() map[string]*ServerConfig {
	out := make(map[string]*ServerConfig)
	for name, s := range c.Servers {
		if s.Enabled {
			out[name] = s
		}
	}
	return out
}

// Clone returns a copy of the configuration, suitable for diffing against a
// later load. Each server's Args, Env and Kits are copied; its Transport
// options are shared with the original, not copied.
func (c *MaggConfig) Clone() *MaggConfig {
	clone := &MaggConfig{
		Servers:            make(map[string]*ServerConfig, len(c.Servers)),
		Kits:               make(map[string]*KitInfo, len(c.Kits)),
		SelfPrefix:         c.SelfPrefix,
		PrefixSep:          c.PrefixSep,
		ReadOnly:           c.ReadOnly,
		AutoReload:         c.AutoReload,
		ReloadPollInterval: c.ReloadPollInterval,
		LogLevel:           c.LogLevel,

		AllowInlineKitPlaceholders: c.AllowInlineKitPlaceholders,
		WarnOnDuplicatePrefix:      c.WarnOnDuplicatePrefix,
	}
	for name, s := range c.Servers {
		sc := *s
		sc.Args = append([]string(nil), s.Args...)
		sc.Kits = append([]string(nil), s.Kits...)
		if s.Env != nil {
			sc.Env = make(map[string]string, len(s.Env))
			for k, v := range s.Env {
				sc.Env[k] = v
			}
		}
		clone.Servers[name] = &sc
	}
	for name, k := range c.Kits {
		ki := *k
		clone.Kits[name] = &ki
	}
	return clone
}

// ChangeAction enumerates the kinds of per-server diffs a ConfigChange may carry.
type ChangeAction string

const (
	ActionAdd     ChangeAction = "add"
	ActionRemove  ChangeAction = "remove"
	ActionUpdate  ChangeAction = "update"
	ActionEnable  ChangeAction = "enable"
	ActionDisable ChangeAction = "disable"
)

// ServerChange is a single server-level entry in a ConfigChange.
type ServerChange struct {
	Name      string        `json:"name"`
	Action    ChangeAction  `json:"action"`
	OldConfig *ServerConfig `json:"old_config,omitempty"`
	NewConfig *ServerConfig `json:"new_config,omitempty"`
}

func (c ServerChange) String() string {
	return fmt.Sprintf("%s(%s)", c.Action, c.Name)
}

// ConfigChange is the diff between an old and a new MaggConfig.
type ConfigChange struct {
	OldConfig     *MaggConfig
	NewConfig     *MaggConfig
	ServerChanges []ServerChange
}

// HasChanges reports whether any server-level change is present.
func (c *ConfigChange) HasChanges() bool {
	return len(c.ServerChanges) > 0
}

// Summarize renders a short human-readable description of the change set,
// suitable for a log line.
func (c *ConfigChange) Summarize() string {
	if !c.HasChanges() {
		return "no changes"
	}
	counts := map[ChangeAction]int{}
	for _, sc := range c.ServerChanges {
		counts[sc.Action]++
	}
	return fmt.Sprintf("add=%d remove=%d update=%d enable=%d disable=%d",
		counts[ActionAdd], counts[ActionRemove], counts[ActionUpdate], counts[ActionEnable], counts[ActionDisable])
}
