/*
Package config manages TOML config for cityserve.
*/
package config

import (
	"os"
	"path/filepath"

	"github.com/bastiangx/cityserve/internal/utils"
	"github.com/charmbracelet/log"
)

// FileName is the config file looked up in the config directory.
const FileName = "config.toml"

// Config holds the entire config structure
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Data    DataConfig    `toml:"data"`
	Cache   CacheConfig   `toml:"cache"`
	CLI     CliConfig     `toml:"cli"`
	Metrics MetricsConfig `toml:"metrics"`
}

// ServerConfig has IPC server options.
type ServerConfig struct {
	MaxLimit     int `toml:"max_limit"`
	DefaultLimit int `toml:"default_limit"`
	MaxPrefix    int `toml:"max_prefix"`
}

// DataConfig names the city list to load.
type DataConfig struct {
	Path     string `toml:"path"`
	Snapshot string `toml:"snapshot"`
}

// CacheConfig bounds the prefix result cache.
type CacheConfig struct {
	MaxEntries int `toml:"max_entries"`
}

// CliConfig holds interactive prompt options.
type CliConfig struct {
	DefaultLimit int  `toml:"default_limit"`
	MinPrefix    int  `toml:"min_prefix"`
	MaxPrefix    int  `toml:"max_prefix"`
	ShowCoords   bool `toml:"show_coords"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// GetConfigDir returns the config directory with fallback priority:
// 1. $XDG_CONFIG_HOME/cityserve or ~/.config/cityserve
// 2. ~/Library/Application Support/cityserve (macOS)
// 3. Current executable dir
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Errorf("Failed to get home directory: %v", err)
		return utils.GetExecutableDir()
	}
	primaryPath := utils.ConfigDirFor(homeDir)
	if result := utils.CheckDirStatus(primaryPath); result.Writable {
		return primaryPath, nil
	}
	macOSPath := filepath.Join(homeDir, "Library", "Application Support", utils.AppName)
	if result := utils.CheckDirStatus(macOSPath); result.Writable {
		return macOSPath, nil
	}
	execDir, err := utils.GetExecutableDir()
	if err != nil {
		log.Errorf("Failed to get executable directory: %v", err)
		return "", err
	}
	return execDir, nil
}

// GetDefaultConfigPath returns the default path for config.toml
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, FileName), nil
}

// LoadConfigWithPriority loads config with priority:
// 1. Custom path from --config flag
// 2. Default path: [UserConfigDir]/cityserve/config.toml, created if missing
// 3. Builtin defaults
//
// It never fails; the returned path is empty when defaults are in use.
func LoadConfigWithPriority(customConfigPath string) (*Config, string) {
	if customConfigPath != "" {
		if _, statErr := os.Stat(customConfigPath); statErr == nil {
			config, err := LoadConfig(customConfigPath)
			if err == nil {
				log.Debugf("Loaded config from custom path: %s", customConfigPath)
				return config, customConfigPath
			}
			log.Warnf("Failed to load custom config from %s: %v. Trying default path...", customConfigPath, err)
		} else {
			log.Warnf("Custom config file not found at %s: %v. Trying default path...", customConfigPath, statErr)
		}
	}

	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		log.Warnf("Failed to determine default config path: %v. Using built-in defaults...", err)
		return DefaultConfig(), ""
	}
	config, err := InitConfig(defaultPath)
	if err != nil {
		log.Warnf("Failed to load/create config at default path %s: %v. Using builtin defaults...", defaultPath, err)
		return DefaultConfig(), ""
	}
	log.Debugf("Loaded config from default path: %s", defaultPath)
	return config, defaultPath
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			MaxLimit:     64,
			DefaultLimit: 20,
			MaxPrefix:    60,
		},
		Data: DataConfig{
			Path: "data/cities.json",
		},
		Cache: CacheConfig{
			MaxEntries: 2048,
		},
		CLI: CliConfig{
			DefaultLimit: 24,
			MinPrefix:    1,
			MaxPrefix:    60,
			ShowCoords:   true,
		},
	}
}

// InitConfig loads config from configPath, writing the defaults there first
// when the file does not exist.
func InitConfig(configPath string) (*Config, error) {
	configDir := filepath.Dir(configPath)
	if err := utils.EnsureDir(configDir); err != nil {
		return nil, err
	}

	if !utils.FileExists(configPath) {
		config := DefaultConfig()
		if err := SaveConfig(config, configPath); err != nil {
			return nil, err
		}
		log.Debugf("Created default config file at: %s", configPath)
		return config, nil
	}
	return LoadConfig(configPath)
}

// LoadConfig loads from a TOML file over the defaults. Values of the wrong
// type are recovered key by key; out of range values are reset.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()
	if err := utils.LoadTOMLFile(configPath, config); err != nil {
		config, err = tryPartialParse(configPath)
		if err != nil {
			return nil, err
		}
	}
	config.Sanitize()
	return config, nil
}

// tryPartialParse keeps every well-typed key of a file that failed strict decoding.
func tryPartialParse(configPath string) (*Config, error) {
	config := DefaultConfig()

	raw, err := utils.ParseTOMLWithRecovery(configPath)
	if err != nil {
		return nil, err
	}

	if section, ok := utils.ExtractSection(raw, "server"); ok {
		extractServerConfig(section, &config.Server)
	}
	if section, ok := utils.ExtractSection(raw, "data"); ok {
		extractDataConfig(section, &config.Data)
	}
	if section, ok := utils.ExtractSection(raw, "cache"); ok {
		if val, ok := utils.ExtractInt(section, "max_entries"); ok {
			config.Cache.MaxEntries = val
		}
	}
	if section, ok := utils.ExtractSection(raw, "cli"); ok {
		extractCliConfig(section, &config.CLI)
	}
	if section, ok := utils.ExtractSection(raw, "metrics"); ok {
		if val, ok := utils.ExtractString(section, "addr"); ok {
			config.Metrics.Addr = val
		}
	}
	return config, nil
}

func extractServerConfig(data map[string]any, server *ServerConfig) {
	if val, ok := utils.ExtractInt(data, "max_limit"); ok {
		server.MaxLimit = val
	}
	if val, ok := utils.ExtractInt(data, "default_limit"); ok {
		server.DefaultLimit = val
	}
	if val, ok := utils.ExtractInt(data, "max_prefix"); ok {
		server.MaxPrefix = val
	}
}

func extractDataConfig(data map[string]any, d *DataConfig) {
	if val, ok := utils.ExtractString(data, "path"); ok {
		d.Path = val
	}
	if val, ok := utils.ExtractString(data, "snapshot"); ok {
		d.Snapshot = val
	}
}

func extractCliConfig(data map[string]any, cli *CliConfig) {
	if val, ok := utils.ExtractInt(data, "default_limit"); ok {
		cli.DefaultLimit = val
	}
	if val, ok := utils.ExtractInt(data, "min_prefix"); ok {
		cli.MinPrefix = val
	}
	if val, ok := utils.ExtractInt(data, "max_prefix"); ok {
		cli.MaxPrefix = val
	}
	if val, ok := utils.ExtractBool(data, "show_coords"); ok {
		cli.ShowCoords = val
	}
}

// Sanitize resets values that would make the server or prompt unusable.
// A zero cache size is allowed and disables the cache.
func (c *Config) Sanitize() {
	def := DefaultConfig()

	if c.Server.MaxLimit <= 0 {
		log.Warnf("server.max_limit %d is invalid, using %d", c.Server.MaxLimit, def.Server.MaxLimit)
		c.Server.MaxLimit = def.Server.MaxLimit
	}
	if c.Server.DefaultLimit <= 0 || c.Server.DefaultLimit > c.Server.MaxLimit {
		log.Warnf("server.default_limit %d is invalid, using %d", c.Server.DefaultLimit, min(def.Server.DefaultLimit, c.Server.MaxLimit))
		c.Server.DefaultLimit = min(def.Server.DefaultLimit, c.Server.MaxLimit)
	}
	if c.Server.MaxPrefix <= 0 {
		c.Server.MaxPrefix = def.Server.MaxPrefix
	}
	if c.Data.Path == "" {
		c.Data.Path = def.Data.Path
	}
	if c.Cache.MaxEntries < 0 {
		log.Warnf("cache.max_entries %d is invalid, disabling the cache", c.Cache.MaxEntries)
		c.Cache.MaxEntries = 0
	}
	if c.CLI.DefaultLimit <= 0 {
		c.CLI.DefaultLimit = def.CLI.DefaultLimit
	}
	if c.CLI.MinPrefix <= 0 {
		c.CLI.MinPrefix = def.CLI.MinPrefix
	}
	if c.CLI.MaxPrefix < c.CLI.MinPrefix {
		log.Warnf("cli.max_prefix %d is below cli.min_prefix %d, using %d", c.CLI.MaxPrefix, c.CLI.MinPrefix, def.CLI.MaxPrefix)
		c.CLI.MaxPrefix = max(def.CLI.MaxPrefix, c.CLI.MinPrefix)
	}
}

// RebuildConfigFile force creates a new config.toml at default
func RebuildConfigFile() (string, error) {
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		return "", err
	}
	if err := utils.EnsureDir(filepath.Dir(defaultPath)); err != nil {
		return "", err
	}
	return defaultPath, SaveConfig(DefaultConfig(), defaultPath)
}

// GetActiveConfigPath returns the absolute path of loaded config file
func GetActiveConfigPath(configPath string) string {
	if configPath == "" {
		return "built-in defaults"
	}
	return utils.GetAbsolutePath(configPath)
}

// SaveConfig saves into a TOML file
func SaveConfig(config *Config, configPath string) error {
	return utils.SaveTOMLFile(config, configPath)
}

// Update changes the server limits and saves to file. Nil arguments keep
// their current value.
func (c *Config) Update(configPath string, maxLimit, defaultLimit, maxPrefix *int) error {
	server := &c.Server
	if maxLimit != nil {
		server.MaxLimit = *maxLimit
	}
	if defaultLimit != nil {
		server.DefaultLimit = *defaultLimit
	}
	if maxPrefix != nil {
		server.MaxPrefix = *maxPrefix
	}
	c.Sanitize()
	return SaveConfig(c, configPath)
}
