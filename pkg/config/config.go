package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"diskfiller/pkg/types"
	"diskfiller/pkg/utils"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	EnvPrefix             = "DISKFILLER"
	DefaultControlAddress = "127.0.0.1:7450"
	DefaultChunk          = "64MiB"

	FormatStyled = "styled"
	FormatPlain  = "plain"
)

type Config struct {
	// DirName is the job directory created at the root of the volume.
	DirName string `mapstructure:"dir_name" json:"dir_name" validate:"required,excludesall=/\\"`
	// ControlAddress is where a running fill serves the control service.
	// Empty disables it.
	ControlAddress string `mapstructure:"control_address" json:"control_address" validate:"omitempty,hostname_port"`
	LogLevel       string `mapstructure:"log_level" json:"log_level" validate:"oneof=info debug"`
	OutputFormat   string `mapstructure:"output_format" json:"output_format" validate:"oneof=styled plain"`
	DefaultChunk   string `mapstructure:"default_chunk" json:"default_chunk" validate:"required"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		DirName:        types.DefaultDirName,
		ControlAddress: DefaultControlAddress,
		LogLevel:       "info",
		OutputFormat:   FormatStyled,
		DefaultChunk:   DefaultChunk,
	}
}

// GetConfigDir returns the diskfiller configuration directory
func GetConfigDir() string {
	if dir := os.Getenv(EnvPrefix + "_CONFIG_DIR"); dir != "" {
		return dir
	}

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "diskfiller")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".diskfiller"
	}
	return filepath.Join(home, ".diskfiller")
}

// GetConfigPath returns the path to the main config file
func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.json")
}

// Load layers defaults, the config file and DISKFILLER_* environment
// variables, in increasing priority. An empty path falls back to
// GetConfigPath, which may be absent.
func Load(path string) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("dir_name", def.DirName)
	v.SetDefault("control_address", def.ControlAddress)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("output_format", def.OutputFormat)
	v.SetDefault("default_chunk", def.DefaultChunk)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	if path == "" {
		path = GetConfigPath()
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.DefaultChunkMiB(); err != nil {
		return fmt.Errorf("invalid config: default_chunk: %w", err)
	}
	return nil
}

// DefaultChunkMiB is the chunk size used when the user does not pass one.
func (c *Config) DefaultChunkMiB() (int64, error) {
	return utils.ParseMiB(c.DefaultChunk)
}
