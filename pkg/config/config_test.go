package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate keeps the developer's own config file out of the tests.
func isolate(t *testing.T) string {
	dir := t.TempDir()
	t.Setenv("DISKFILLER_CONFIG_DIR", dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	chunk, err := cfg.DefaultChunkMiB()
	require.NoError(t, err)
	assert.Equal(t, int64(64), chunk)
}

func TestLoadEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("DISKFILLER_DIR_NAME", "scratch")
	t.Setenv("DISKFILLER_OUTPUT_FORMAT", "plain")
	t.Setenv("DISKFILLER_CONTROL_ADDRESS", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "scratch", cfg.DirName)
	assert.Equal(t, FormatPlain, cfg.OutputFormat)
	assert.Empty(t, cfg.ControlAddress, "an empty address disables the control service")
}

func TestLoadFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"dir_name": "junk",
		"log_level": "debug",
		"default_chunk": "1GiB"
	}`), 0o600))

	t.Run("explicit path", func(t *testing.T) {
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "junk", cfg.DirName)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, DefaultControlAddress, cfg.ControlAddress)

		chunk, err := cfg.DefaultChunkMiB()
		require.NoError(t, err)
		assert.Equal(t, int64(1024), chunk)
	})

	t.Run("config dir", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "junk", cfg.DirName)
	})

	t.Run("env wins over file", func(t *testing.T) {
		t.Setenv("DISKFILLER_LOG_LEVEL", "info")
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "info", cfg.LogLevel)
	})
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"no control service", func(c *Config) { c.ControlAddress = "" }, false},
		{"unknown format", func(c *Config) { c.OutputFormat = "fancy" }, true},
		{"unknown level", func(c *Config) { c.LogLevel = "trace" }, true},
		{"empty dir name", func(c *Config) { c.DirName = "" }, true},
		{"nested dir name", func(c *Config) { c.DirName = "a/b" }, true},
		{"bad address", func(c *Config) { c.ControlAddress = "not an address" }, true},
		{"zero chunk", func(c *Config) { c.DefaultChunk = "0" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetConfigDir(t *testing.T) {
	t.Setenv("DISKFILLER_CONFIG_DIR", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, filepath.Join("/xdg", "diskfiller"), GetConfigDir())

	t.Setenv("DISKFILLER_CONFIG_DIR", "/custom")
	assert.Equal(t, "/custom", GetConfigDir())
	assert.Equal(t, filepath.Join("/custom", "config.json"), GetConfigPath())
}
