package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	assert.Equal(t, 64, c.Server.MaxLimit)
	assert.Equal(t, 20, c.Server.DefaultLimit)
	assert.Equal(t, 60, c.Server.MaxPrefix)
	assert.Equal(t, "data/cities.json", c.Data.Path)
	assert.Empty(t, c.Data.Snapshot)
	assert.Equal(t, 2048, c.Cache.MaxEntries)
	assert.Equal(t, 24, c.CLI.DefaultLimit)
	assert.Empty(t, c.Metrics.Addr)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[server]
max_limit = 100

[data]
path = "/srv/cities.json"

[metrics]
addr = ":9090"
`)
	c, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 100, c.Server.MaxLimit)
	assert.Equal(t, 20, c.Server.DefaultLimit, "unset keys keep defaults")
	assert.Equal(t, "/srv/cities.json", c.Data.Path)
	assert.Equal(t, ":9090", c.Metrics.Addr)
	assert.Equal(t, 2048, c.Cache.MaxEntries)
}

func TestLoadConfigPartialRecovery(t *testing.T) {
	path := writeConfig(t, `
[server]
max_limit = "lots"
default_limit = 10

[cache]
max_entries = 16

[cli]
show_coords = false
`)
	c, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 64, c.Server.MaxLimit, "wrongly typed key falls back")
	assert.Equal(t, 10, c.Server.DefaultLimit)
	assert.Equal(t, 16, c.Cache.MaxEntries)
	assert.False(t, c.CLI.ShowCoords)
}

func TestLoadConfigSyntaxError(t *testing.T) {
	path := writeConfig(t, "[server\nmax_limit = ")
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestSanitize(t *testing.T) {
	c := DefaultConfig()
	c.Server.MaxLimit = 0
	c.Server.DefaultLimit = 500
	c.Cache.MaxEntries = -3
	c.CLI.MinPrefix = 3
	c.CLI.MaxPrefix = 2
	c.Data.Path = ""

	c.Sanitize()
	assert.Equal(t, 64, c.Server.MaxLimit)
	assert.Equal(t, 20, c.Server.DefaultLimit)
	assert.Equal(t, 0, c.Cache.MaxEntries)
	assert.Equal(t, 60, c.CLI.MaxPrefix)
	assert.Equal(t, "data/cities.json", c.Data.Path)
}

func TestInitConfigCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)

	c, err := InitConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), c)
	assert.FileExists(t, path)

	again, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, c, again)
}

func TestLoadConfigWithPriority(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	custom := writeConfig(t, "[server]\nmax_limit = 8\ndefault_limit = 4\n")
	c, path := LoadConfigWithPriority(custom)
	assert.Equal(t, custom, path)
	assert.Equal(t, 8, c.Server.MaxLimit)

	c, path = LoadConfigWithPriority(filepath.Join(t.TempDir(), "missing.toml"))
	assert.NotEmpty(t, path)
	assert.FileExists(t, path)
	assert.Equal(t, DefaultConfig(), c)
}

func TestUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	c := DefaultConfig()

	maxLimit, defaultLimit := 10, 5
	require.NoError(t, c.Update(path, &maxLimit, &defaultLimit, nil))

	back, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 10, back.Server.MaxLimit)
	assert.Equal(t, 5, back.Server.DefaultLimit)
	assert.Equal(t, 60, back.Server.MaxPrefix)
}

func TestGetActiveConfigPath(t *testing.T) {
	assert.Equal(t, "built-in defaults", GetActiveConfigPath(""))
	assert.True(t, filepath.IsAbs(GetActiveConfigPath("config.toml")))
}

func TestRebuildConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	path, err := RebuildConfigFile()
	require.NoError(t, err)
	assert.Equal(t, FileName, filepath.Base(path))

	c, err := LoadConfig(path)
	require.NoError(t, err)
	c.Cache.MaxEntries = 7
	require.NoError(t, SaveConfig(c, path))

	path, err = RebuildConfigFile()
	require.NoError(t, err)
	back, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), back, "rebuild overwrites edits")
}
