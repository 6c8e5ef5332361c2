package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfig(filepath.Join(dir, "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSelfPrefix, cfg.SelfPrefix)
	assert.Empty(t, cfg.Servers)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := NewMaggConfig()
	cfg.Servers["calc"] = &ServerConfig{
		Name:    "calc",
		Source:  "file:///tmp/calc",
		Prefix:  "calc",
		Command: "python",
		Args:    []string{"server.py"},
		Enabled: true,
		Transport: &TransportOptions{
			KeepAlive: true,
			Extra:     map[string]any{"future_option": "value"},
		},
	}
	cfg.Kits["web"] = &KitInfo{Name: "web", Source: KitSourceFile, Path: "/kits/web.json"}

	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)

	require.Contains(t, loaded.Servers, "calc")
	got := loaded.Servers["calc"]
	assert.Equal(t, "calc", got.Name)
	assert.Equal(t, "file:///tmp/calc", got.Source)
	assert.Equal(t, []string{"server.py"}, got.Args)
	assert.True(t, got.Enabled)
	require.NotNil(t, got.Transport)
	assert.True(t, got.Transport.KeepAlive)
	assert.Equal(t, "value", got.Transport.Extra["future_option"])

	require.Contains(t, loaded.Kits, "web")
	assert.Equal(t, KitSourceFile, loaded.Kits["web"].Source)
}

func TestLoadConfigUpgradesLegacyKitList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"servers":{},"kits":["web","infra"]}`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Contains(t, cfg.Kits, "web")
	assert.Equal(t, KitSourceLegacy, cfg.Kits["web"].Source)
	assert.Equal(t, KitSourceLegacy, cfg.Kits["infra"].Source)
}

func TestLoadConfigAcceptsYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "self_prefix: mg\nauto_reload: true\nservers:\n  calc:\n    source: file:///tmp/calc\n    command: python\n    enabled: true\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "mg", cfg.SelfPrefix)
	assert.True(t, cfg.AutoReload)
	require.Contains(t, cfg.Servers, "calc")
}

func TestSaveThenLoadRoundTripsPolicyFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := NewMaggConfig()
	cfg.AllowInlineKitPlaceholders = true
	cfg.WarnOnDuplicatePrefix = true

	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, loaded.AllowInlineKitPlaceholders)
	assert.True(t, loaded.WarnOnDuplicatePrefix)
}

func TestLoadKitFileDropsNestedKitsAndDefaultsName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "web.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"description": "web tools",
		"servers": {
			"scraper": {"source": "x", "command": "python", "args": ["s.py"], "enabled": true, "kits": ["stale"]}
		}
	}`), 0o644))

	kit, err := LoadKitFile(path)
	require.NoError(t, err)
	assert.Equal(t, "web", kit.Name)
	require.Contains(t, kit.Servers, "scraper")
	assert.Equal(t, "scraper", kit.Servers["scraper"].Name)
	assert.Empty(t, kit.Servers["scraper"].Kits)
}
