// Package kit implements the kit composition layer: named,
// file-backed bundles of ServerConfig entries that can be loaded and
// unloaded atomically, with multi-kit server ownership tracked so a server
// survives until its last referencing kit is removed.
package kit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"magg/internal/config"
	"magg/pkg/logging"

	"gopkg.in/yaml.v3"
)

// kitFileExts are the extensions Discover and loadFile recognize, in the
// order a colliding stem should prefer them (JSON is the canonical format;
// YAML for kit fragments authored by hand).
var kitFileExts = []string{".json", ".yaml", ".yml"}

func isKitFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range kitFileExts {
		if ext == e {
			return true
		}
	}
	return false
}

// Manager discovers, loads, and unloads kits against a live MaggConfig.
type Manager struct {
	searchPaths []string
	loaded      map[string]*config.KitConfig
}

// NewManager constructs a Manager that searches searchPaths, in order, for
// kit files. Earlier directories win on name collision.
func NewManager(searchPaths []string) *Manager {
	return &Manager{
		searchPaths: searchPaths,
		loaded:      make(map[string]*config.KitConfig),
	}
}

// Discover scans the search paths for kit files (JSON or YAML), returning a
// mapping of kit name (file stem) to path. The first directory in which a
// name is found wins; later directories are logged and ignored for that
// name.
func (m *Manager) Discover() map[string]string {
	found := make(map[string]string)
	for _, dir := range m.searchPaths {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !isKitFile(entry.Name()) {
				continue
			}
			name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
			if _, exists := found[name]; exists {
				logging.Warn("kit", "duplicate kit %q found in %s, keeping first match", name, dir)
				continue
			}
			found[name] = filepath.Join(dir, entry.Name())
		}
	}
	return found
}

// loadFile parses a kit file from disk, JSON or YAML by extension. Server
// entries never carry pre-declared kit membership; any `kits` field present
// in the raw document is stripped before ownership is computed by the
// caller.
func (m *Manager) loadFile(path string) (*config.KitConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read kit file: %w", err)
	}

	var raw struct {
		Name        string                     `json:"name" yaml:"name"`
		Description string                     `json:"description" yaml:"description"`
		Author      string                     `json:"author" yaml:"author"`
		Version     string                     `json:"version" yaml:"version"`
		Keywords    []string                   `json:"keywords" yaml:"keywords"`
		Links       []string                   `json:"links" yaml:"links"`
		Servers     map[string]json.RawMessage `json:"servers" yaml:"-"`
	}

	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse kit file: %w", err)
		}
	} else {
		var yamlRaw struct {
			Name        string                 `yaml:"name"`
			Description string                 `yaml:"description"`
			Author      string                 `yaml:"author"`
			Version     string                 `yaml:"version"`
			Keywords    []string               `yaml:"keywords"`
			Links       []string               `yaml:"links"`
			Servers     map[string]interface{} `yaml:"servers"`
		}
		if err := yaml.Unmarshal(data, &yamlRaw); err != nil {
			return nil, fmt.Errorf("parse kit file: %w", err)
		}
		raw.Name, raw.Description, raw.Author, raw.Version = yamlRaw.Name, yamlRaw.Description, yamlRaw.Author, yamlRaw.Version
		raw.Keywords, raw.Links = yamlRaw.Keywords, yamlRaw.Links
		raw.Servers = make(map[string]json.RawMessage, len(yamlRaw.Servers))
		for name, v := range yamlRaw.Servers {
			encoded, err := json.Marshal(v)
			if err != nil {
				logging.Warn("kit", "error re-encoding server %q in YAML kit %q: %v", name, path, err)
				continue
			}
			raw.Servers[name] = encoded
		}
	}

	if raw.Name == "" {
		raw.Name = filepath.Base(path)
		raw.Name = raw.Name[:len(raw.Name)-len(filepath.Ext(raw.Name))]
	}

	kc := &config.KitConfig{
		Name:        raw.Name,
		Description: raw.Description,
		Author:      raw.Author,
		Version:     raw.Version,
		Keywords:    raw.Keywords,
		Links:       raw.Links,
		Servers:     make(map[string]*config.ServerConfig, len(raw.Servers)),
	}

	for name, rawServer := range raw.Servers {
		var sc config.ServerConfig
		if err := json.Unmarshal(rawServer, &sc); err != nil {
			logging.Warn("kit", "error loading server %q in kit %q: %v", name, raw.Name, err)
			continue
		}
		sc.Name = name
		sc.Kits = nil // only config.json may pre-declare ownership
		kc.Servers[name] = &sc
	}

	return kc, nil
}

// Load parses name's kit file and merges its servers into cfg: each server
// either gains this kit as an additional owner (if a same-named server
// already exists) or is inserted fresh with this kit as sole owner. A
// KitInfo record is added to cfg.Kits. Returns an error if the kit cannot be
// found or parsed; cfg is left untouched in that case.
func (m *Manager) Load(name string, cfg *config.MaggConfig) error {
	if _, exists := cfg.Kits[name]; exists {
		return fmt.Errorf("kit %q is already loaded", name)
	}

	available := m.Discover()
	path, found := available[name]
	if !found {
		if !cfg.AllowInlineKitPlaceholders {
			return fmt.Errorf("kit %q not found in any kit.d directory", name)
		}
		logging.Info("kit", "kit %q not found on disk, loading as inline placeholder", name)
		m.loaded[name] = &config.KitConfig{Name: name, Servers: map[string]*config.ServerConfig{}}
		cfg.Kits[name] = &config.KitInfo{Name: name, Source: config.KitSourceInline}
		return nil
	}

	kc, err := m.loadFile(path)
	if err != nil {
		return fmt.Errorf("load kit %q from %s: %w", name, path, err)
	}
	m.loaded[name] = kc

	for serverName, sc := range kc.Servers {
		if existing, ok := cfg.Servers[serverName]; ok {
			existing.AddKitOwner(name)
			continue
		}
		clone := *sc
		clone.Kits = []string{name}
		cfg.Servers[serverName] = &clone
	}

	cfg.Kits[name] = &config.KitInfo{
		Name:        name,
		Description: kc.Description,
		Path:        path,
		Source:      config.KitSourceFile,
	}

	logging.Info("kit", "loaded kit %q from %s (%d servers)", name, path, len(kc.Servers))
	return nil
}

// Unload removes name's ownership from every server it contributed: a
// server with no other owner is deleted from cfg entirely; one with
// remaining owners just drops this kit from its Kits list. The KitInfo
// record is always removed.
func (m *Manager) Unload(name string, cfg *config.MaggConfig) error {
	if _, exists := cfg.Kits[name]; !exists {
		return fmt.Errorf("kit %q is not loaded", name)
	}

	var toRemove []string
	for serverName, sc := range cfg.Servers {
		if !sc.OwnedByKit(name) {
			continue
		}
		if remaining := sc.RemoveKit(name); remaining == 0 {
			toRemove = append(toRemove, serverName)
		}
	}
	for _, serverName := range toRemove {
		delete(cfg.Servers, serverName)
	}

	delete(cfg.Kits, name)
	delete(m.loaded, name)

	logging.Info("kit", "unloaded kit %q (removed %d servers)", name, len(toRemove))
	return nil
}

// LoadKitsFromConfig reconciles cfg's persisted Kits map with the kits
// discoverable on disk at startup: a persisted kit found on disk is loaded
// from its file; one not found is recreated as an empty in-memory
// placeholder rather than silently dropped.
func (m *Manager) LoadKitsFromConfig(cfg *config.MaggConfig) {
	available := m.Discover()

	for name := range cfg.Kits {
		if path, found := available[name]; found {
			kc, err := m.loadFile(path)
			if err != nil {
				logging.Error("kit", err, "failed to load kit %q from %s", name, path)
				continue
			}
			m.loaded[name] = kc
			logging.Info("kit", "loaded kit %q from %s", name, path)
			continue
		}
		logging.Info("kit", "kit %q not found in any kit.d directory, creating in memory", name)
		m.loaded[name] = &config.KitConfig{Name: name, Servers: map[string]*config.ServerConfig{}}
	}
}

// KitListing summarizes one kit's discovery/load status for the
// list_kits surface.
type KitListing struct {
	Name        string
	Loaded      bool
	Path        string
	Description string
	Author      string
	Version     string
	Keywords    []string
	Servers     []string
}

// ListAll returns every known kit, loaded or merely discoverable, sorted by
// name.
func (m *Manager) ListAll() []KitListing {
	available := m.Discover()
	seen := make(map[string]bool)
	var out []KitListing

	for name, kc := range m.loaded {
		seen[name] = true
		out = append(out, KitListing{
			Name:        name,
			Loaded:      true,
			Path:        available[name],
			Description: kc.Description,
			Author:      kc.Author,
			Version:     kc.Version,
			Keywords:    kc.Keywords,
			Servers:     serverNames(kc),
		})
	}

	for name, path := range available {
		if seen[name] {
			continue
		}
		kc, err := m.loadFile(path)
		if err != nil {
			out = append(out, KitListing{Name: name, Loaded: false, Path: path, Description: "failed to load kit metadata"})
			continue
		}
		out = append(out, KitListing{
			Name:        name,
			Loaded:      false,
			Path:        path,
			Description: kc.Description,
			Author:      kc.Author,
			Version:     kc.Version,
			Keywords:    kc.Keywords,
			Servers:     serverNames(kc),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Info returns the listing for a single kit, loaded or merely discoverable.
func (m *Manager) Info(name string) (KitListing, bool) {
	if kc, ok := m.loaded[name]; ok {
		available := m.Discover()
		return KitListing{
			Name:        name,
			Loaded:      true,
			Path:        available[name],
			Description: kc.Description,
			Author:      kc.Author,
			Version:     kc.Version,
			Keywords:    kc.Keywords,
			Servers:     serverNames(kc),
		}, true
	}

	available := m.Discover()
	path, found := available[name]
	if !found {
		return KitListing{}, false
	}
	kc, err := m.loadFile(path)
	if err != nil {
		return KitListing{Name: name, Loaded: false, Path: path}, true
	}
	return KitListing{
		Name:        name,
		Loaded:      false,
		Path:        path,
		Description: kc.Description,
		Author:      kc.Author,
		Version:     kc.Version,
		Keywords:    kc.Keywords,
		Servers:     serverNames(kc),
	}, true
}

func serverNames(kc *config.KitConfig) []string {
	names := make([]string, 0, len(kc.Servers))
	for name := range kc.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
