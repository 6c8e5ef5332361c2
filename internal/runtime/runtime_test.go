package runtime

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBuildsEveryComponent(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")

	rt, err := New(cfgPath)
	require.NoError(t, err)

	assert.NotNil(t, rt.Mounts)
	assert.NotNil(t, rt.Kits)
	assert.NotNil(t, rt.Router)
	assert.NotNil(t, rt.Coord)
	assert.NotNil(t, rt.Checker)
	assert.NotNil(t, rt.Reload)
	assert.NotNil(t, rt.Front)
	assert.Equal(t, cfgPath, rt.cfgPath)
}

func TestMountAllWithNoServersReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")

	rt, err := New(cfgPath)
	require.NoError(t, err)

	results := rt.MountAll(nil)
	assert.Empty(t, results)
}
