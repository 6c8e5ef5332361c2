package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePrefixFromNameDigitStem(t *testing.T) {
	prefix := GeneratePrefixFromName("123-fast")
	assert.True(t, isValidIdentifier(prefix, DefaultPrefixSep))
	assert.Equal(t, "srv123fast", prefix)
}

func TestGeneratePrefixFromNameStripsSeparators(t *testing.T) {
	assert.Equal(t, "myserver", GeneratePrefixFromName("my_server"))
	assert.Equal(t, "myserver", GeneratePrefixFromName("my-server"))
}

func TestValidateServerConfigRequiresCommandOrURI(t *testing.T) {
	s := &ServerConfig{Name: "x", Source: "file:///x", Enabled: true}
	err := ValidateServerConfig(s, DefaultPrefixSep)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command or uri")
}

func TestValidateServerConfigRejectsBothCommandAndURI(t *testing.T) {
	s := &ServerConfig{Name: "x", Source: "file:///x", Enabled: true, Command: "python", URI: "http://x"}
	err := ValidateServerConfig(s, DefaultPrefixSep)
	require.Error(t, err)
}

func TestValidateServerConfigDerivesPrefix(t *testing.T) {
	s := &ServerConfig{Name: "My Server", Source: "x", Enabled: false}
	err := ValidateServerConfig(s, DefaultPrefixSep)
	require.NoError(t, err)
	assert.Equal(t, "myserver", s.Prefix)
}

func TestValidateServerConfigRejectsSeparatorInPrefix(t *testing.T) {
	s := &ServerConfig{Name: "x", Source: "x", Prefix: "my_prefix", Enabled: false}
	err := ValidateServerConfig(s, DefaultPrefixSep)
	require.Error(t, err)
}

func TestValidateKitConfigStripsNestedKits(t *testing.T) {
	kit := &KitConfig{
		Name: "web",
		Servers: map[string]*ServerConfig{
			"scraper": {Name: "scraper", Kits: []string{"stale"}},
		},
	}
	require.NoError(t, ValidateKitConfig(kit))
	assert.Empty(t, kit.Servers["scraper"].Kits)
}

func TestValidateMaggConfigForReloadRejectsMissingLaunchSpec(t *testing.T) {
	c := NewMaggConfig()
	c.Servers["bad"] = &ServerConfig{Name: "bad", Enabled: true}
	err := ValidateMaggConfigForReload(c)
	require.Error(t, err)
}

func TestValidateMaggConfigForReloadAcceptsDisabledWithoutLaunchSpec(t *testing.T) {
	c := NewMaggConfig()
	c.Servers["bad"] = &ServerConfig{Name: "bad", Enabled: false}
	assert.NoError(t, ValidateMaggConfigForReload(c))
}
