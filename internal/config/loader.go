package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"magg/pkg/logging"

	sigsyaml "sigs.k8s.io/yaml"
)

const (
	// DefaultConfigDirName is the directory magg looks for relative to the
	// project root when no override is given.
	DefaultConfigDirName = ".magg"
	// DefaultConfigFileName is the file name within DefaultConfigDirName.
	DefaultConfigFileName = "config.json"
)

// EnvConfigPath is the environment variable overriding the config file path.
const EnvConfigPath = "MAGG_CONFIG_PATH"

// ResolveConfigPath returns the effective config file path: MAGG_CONFIG_PATH
// if set, otherwise <cwd>/.magg/config.json.
func ResolveConfigPath() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("determining working directory: %w", err)
	}
	return filepath.Join(cwd, DefaultConfigDirName, DefaultConfigFileName), nil
}

// rawMaggFile mirrors the on-disk config file's shape. Servers are kept raw
// so each ServerConfig can take its Name from its map key.
type rawMaggFile struct {
	Servers map[string]json.RawMessage `json:"servers"`
	Kits    json.RawMessage            `json:"kits,omitempty"`

	SelfPrefix         string  `json:"self_prefix,omitempty"`
	PrefixSep          string  `json:"prefix_sep,omitempty"`
	ReadOnly           bool    `json:"read_only,omitempty"`
	AutoReload         bool    `json:"auto_reload,omitempty"`
	ReloadPollInterval float64 `json:"reload_poll_interval,omitempty"`
	LogLevel           string  `json:"log_level,omitempty"`

	AllowInlineKitPlaceholders bool `json:"allow_inline_kit_placeholders,omitempty"`
	WarnOnDuplicatePrefix      bool `json:"warn_on_duplicate_prefix,omitempty"`
}

// isYAMLPath reports whether path's extension selects YAML rather than
// JSON. Both config and kit files accept either: sigs.k8s.io/yaml bridges a
// YAML document to the equivalent JSON bytes, so every existing
// encoding/json-based parser below handles both without duplication.
func isYAMLPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func readAsJSON(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !isYAMLPath(path) {
		return data, nil
	}
	jsonData, err := sigsyaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("converting YAML to JSON: %w", err)
	}
	return jsonData, nil
}

// LoadConfig reads and parses the configuration file at path. A missing file
// is not an error: it yields a fresh default configuration, so a first run
// needs no setup step. path may be JSON or YAML.
func LoadConfig(path string) (*MaggConfig, error) {
	config := NewMaggConfig()

	data, err := readAsJSON(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("config", "no config file at %s, using defaults", path)
			return config, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var raw rawMaggFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	for name, msg := range raw.Servers {
		var s ServerConfig
		if err := json.Unmarshal(msg, &s); err != nil {
			logging.Error("config", err, "skipping malformed server %q in %s", name, path)
			continue
		}
		s.Name = name
		config.Servers[name] = &s
	}

	if err := unmarshalKits(raw.Kits, config); err != nil {
		return nil, fmt.Errorf("parsing kits in %s: %w", path, err)
	}

	if raw.SelfPrefix != "" {
		config.SelfPrefix = raw.SelfPrefix
	}
	if raw.PrefixSep != "" {
		config.PrefixSep = raw.PrefixSep
	}
	config.ReadOnly = raw.ReadOnly
	config.AutoReload = raw.AutoReload
	if raw.ReloadPollInterval > 0 {
		config.ReloadPollInterval = raw.ReloadPollInterval
	}
	config.LogLevel = raw.LogLevel
	config.AllowInlineKitPlaceholders = raw.AllowInlineKitPlaceholders
	config.WarnOnDuplicatePrefix = raw.WarnOnDuplicatePrefix

	logging.Info("config", "loaded configuration from %s (%d servers, %d kits)", path, len(config.Servers), len(config.Kits))
	return config, nil
}

// unmarshalKits accepts both the current object form ({name: KitInfo}) and
// the legacy list-of-strings form, tagging legacy entries source=legacy.
func unmarshalKits(raw json.RawMessage, config *MaggConfig) error {
	if len(raw) == 0 {
		return nil
	}

	var asList []string
	if err := json.Unmarshal(raw, &asList); err == nil {
		for _, name := range asList {
			config.Kits[name] = &KitInfo{Name: name, Source: KitSourceLegacy}
		}
		return nil
	}

	var asMap map[string]*KitInfo
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return err
	}
	for name, info := range asMap {
		if info.Name == "" {
			info.Name = name
		}
		config.Kits[name] = info
	}
	return nil
}

// SaveConfig writes config to path as indented JSON, creating the parent
// directory if necessary. Only the servers/kits/scalars are persisted;
// runtime state (mounts, health) never touches disk.
func SaveConfig(path string, config *MaggConfig) error {
	servers := make(map[string]*ServerConfig, len(config.Servers))
	for name, s := range config.Servers {
		servers[name] = s
	}

	payload := rawMaggFileOut{
		Servers:            servers,
		Kits:               config.Kits,
		SelfPrefix:         omitDefault(config.SelfPrefix, DefaultSelfPrefix),
		PrefixSep:          omitDefault(config.PrefixSep, DefaultPrefixSep),
		ReadOnly:           config.ReadOnly,
		AutoReload:         config.AutoReload,
		ReloadPollInterval: config.ReloadPollInterval,
		LogLevel:           config.LogLevel,

		AllowInlineKitPlaceholders: config.AllowInlineKitPlaceholders,
		WarnOnDuplicatePrefix:      config.WarnOnDuplicatePrefix,
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}

	logging.Info("config", "saved configuration to %s", path)
	return nil
}

type rawMaggFileOut struct {
	Servers            map[string]*ServerConfig `json:"servers"`
	Kits               map[string]*KitInfo      `json:"kits,omitempty"`
	SelfPrefix         string                   `json:"self_prefix,omitempty"`
	PrefixSep          string                   `json:"prefix_sep,omitempty"`
	ReadOnly           bool                     `json:"read_only,omitempty"`
	AutoReload         bool                     `json:"auto_reload,omitempty"`
	ReloadPollInterval float64                  `json:"reload_poll_interval,omitempty"`
	LogLevel           string                   `json:"log_level,omitempty"`

	AllowInlineKitPlaceholders bool `json:"allow_inline_kit_placeholders,omitempty"`
	WarnOnDuplicatePrefix      bool `json:"warn_on_duplicate_prefix,omitempty"`
}

func omitDefault(v, def string) string {
	if v == def {
		return ""
	}
	return v
}

// LoadKitFile parses a kit definition file (JSON or YAML). Nested servers'
// `kits` field is always dropped — ownership is computed at load time, never
// pre-declared; each server's Name defaults from its map key if absent.
func LoadKitFile(path string) (*KitConfig, error) {
	data, err := readAsJSON(path)
	if err != nil {
		return nil, fmt.Errorf("reading kit file %s: %w", path, err)
	}

	var kit KitConfig
	if err := json.Unmarshal(data, &kit); err != nil {
		return nil, fmt.Errorf("parsing kit file %s: %w", path, err)
	}

	if kit.Name == "" {
		base := filepath.Base(path)
		kit.Name = base[:len(base)-len(filepath.Ext(base))]
	}

	for name, s := range kit.Servers {
		s.Kits = nil
		if s.Name == "" {
			s.Name = name
		}
	}

	return &kit, nil
}
