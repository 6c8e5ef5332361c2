package kit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magg/internal/config"
)

func writeKitFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".json"), []byte(body), 0o644))
}

func TestDiscoverFindsKitFiles(t *testing.T) {
	dir := t.TempDir()
	writeKitFile(t, dir, "web", `{"name":"web","servers":{}}`)

	m := NewManager([]string{dir})
	found := m.Discover()
	assert.Equal(t, filepath.Join(dir, "web.json"), found["web"])
}

func TestDiscoverFirstDirWins(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeKitFile(t, first, "web", `{"name":"web","servers":{}}`)
	writeKitFile(t, second, "web", `{"name":"web-second","servers":{}}`)

	m := NewManager([]string{first, second})
	found := m.Discover()
	assert.Equal(t, filepath.Join(first, "web.json"), found["web"])
}

func TestLoadMergesServersAndTracksOwnership(t *testing.T) {
	dir := t.TempDir()
	writeKitFile(t, dir, "web", `{
		"name": "web",
		"description": "web tools",
		"servers": {
			"fetch": {"command": "python", "args": ["-m", "fetch"], "enabled": true}
		}
	}`)

	m := NewManager([]string{dir})
	cfg := config.NewMaggConfig()

	require.NoError(t, m.Load("web", cfg))

	sc, ok := cfg.Servers["fetch"]
	require.True(t, ok)
	assert.Equal(t, []string{"web"}, sc.Kits)

	ki, ok := cfg.Kits["web"]
	require.True(t, ok)
	assert.Equal(t, config.KitSourceFile, ki.Source)
}

func TestLoadAddsOwnershipToExistingServer(t *testing.T) {
	dir := t.TempDir()
	writeKitFile(t, dir, "web", `{
		"name": "web",
		"servers": {
			"fetch": {"command": "python", "enabled": true}
		}
	}`)

	m := NewManager([]string{dir})
	cfg := config.NewMaggConfig()
	cfg.Servers["fetch"] = &config.ServerConfig{Name: "fetch", Command: "python", Enabled: true}

	require.NoError(t, m.Load("web", cfg))
	assert.Equal(t, []string{"web"}, cfg.Servers["fetch"].Kits)
}

func TestLoadRejectsAlreadyLoaded(t *testing.T) {
	dir := t.TempDir()
	writeKitFile(t, dir, "web", `{"name":"web","servers":{}}`)

	m := NewManager([]string{dir})
	cfg := config.NewMaggConfig()
	require.NoError(t, m.Load("web", cfg))
	assert.Error(t, m.Load("web", cfg))
}

func TestLoadRejectsMissingKit(t *testing.T) {
	m := NewManager([]string{t.TempDir()})
	cfg := config.NewMaggConfig()
	assert.Error(t, m.Load("missing", cfg))
}

func TestLoadAllowsInlinePlaceholderWhenEnabled(t *testing.T) {
	m := NewManager([]string{t.TempDir()})
	cfg := config.NewMaggConfig()
	cfg.AllowInlineKitPlaceholders = true

	require.NoError(t, m.Load("ghost", cfg))
	ki, ok := cfg.Kits["ghost"]
	require.True(t, ok)
	assert.Equal(t, config.KitSourceInline, ki.Source)
}

func TestDiscoverFindsYAMLKitFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "web.yaml"), []byte("name: web\nservers: {}\n"), 0o644))

	m := NewManager([]string{dir})
	found := m.Discover()
	assert.Equal(t, filepath.Join(dir, "web.yaml"), found["web"])
}

func TestLoadParsesYAMLKitFile(t *testing.T) {
	dir := t.TempDir()
	body := "name: web\nservers:\n  fetch:\n    command: python\n    args: [\"-m\", \"fetch\"]\n    enabled: true\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "web.yaml"), []byte(body), 0o644))

	m := NewManager([]string{dir})
	cfg := config.NewMaggConfig()
	require.NoError(t, m.Load("web", cfg))

	sc, ok := cfg.Servers["fetch"]
	require.True(t, ok)
	assert.Equal(t, "python", sc.Command)
}

func TestUnloadRemovesSoleOwnedServer(t *testing.T) {
	dir := t.TempDir()
	writeKitFile(t, dir, "web", `{
		"name": "web",
		"servers": {"fetch": {"command": "python", "enabled": true}}
	}`)
	m := NewManager([]string{dir})
	cfg := config.NewMaggConfig()
	require.NoError(t, m.Load("web", cfg))

	require.NoError(t, m.Unload("web", cfg))
	_, exists := cfg.Servers["fetch"]
	assert.False(t, exists)
	_, kitExists := cfg.Kits["web"]
	assert.False(t, kitExists)
}

func TestUnloadKeepsMultiKitOwnedServer(t *testing.T) {
	dir := t.TempDir()
	writeKitFile(t, dir, "web", `{"name":"web","servers":{"fetch":{"command":"python","enabled":true}}}`)
	writeKitFile(t, dir, "research", `{"name":"research","servers":{"fetch":{"command":"python","enabled":true}}}`)

	m := NewManager([]string{dir})
	cfg := config.NewMaggConfig()
	require.NoError(t, m.Load("web", cfg))
	require.NoError(t, m.Load("research", cfg))
	assert.ElementsMatch(t, []string{"web", "research"}, cfg.Servers["fetch"].Kits)

	require.NoError(t, m.Unload("web", cfg))
	_, exists := cfg.Servers["fetch"]
	assert.True(t, exists)
	assert.Equal(t, []string{"research"}, cfg.Servers["fetch"].Kits)
}

func TestUnloadRejectsNotLoaded(t *testing.T) {
	m := NewManager([]string{t.TempDir()})
	cfg := config.NewMaggConfig()
	assert.Error(t, m.Unload("web", cfg))
}

func TestLoadKitsFromConfigCreatesPlaceholderForMissingKit(t *testing.T) {
	m := NewManager([]string{t.TempDir()})
	cfg := config.NewMaggConfig()
	cfg.Kits["ghost"] = &config.KitInfo{Name: "ghost", Source: config.KitSourceLegacy}

	m.LoadKitsFromConfig(cfg)
	_, ok := m.loaded["ghost"]
	assert.True(t, ok)
}

func TestListAllIncludesLoadedAndDiscoverable(t *testing.T) {
	dir := t.TempDir()
	writeKitFile(t, dir, "loaded", `{"name":"loaded","servers":{}}`)
	writeKitFile(t, dir, "unloaded", `{"name":"unloaded","servers":{}}`)

	m := NewManager([]string{dir})
	cfg := config.NewMaggConfig()
	require.NoError(t, m.Load("loaded", cfg))

	listing := m.ListAll()
	require.Len(t, listing, 2)

	byName := map[string]KitListing{}
	for _, l := range listing {
		byName[l.Name] = l
	}
	assert.True(t, byName["loaded"].Loaded)
	assert.False(t, byName["unloaded"].Loaded)
}
