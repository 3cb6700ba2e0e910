package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/pylaunch/pylaunch/internal/logger"
)

// Config is the application configuration, loaded from an optional TOML file
// with viper defaults filling the gaps.
type Config struct {
	// DataDir is the application-private root holding the catalog document,
	// managed runtimes, environments, logs, and the session database.
	DataDir string `mapstructure:"data_dir"`
	// Listen is the HTTP API bind address consumed by the desktop UI.
	Listen string `mapstructure:"listen"`
	// DefaultPort is the port the supervisor tries first for the dev server.
	DefaultPort int `mapstructure:"default_port"`
	// DefaultPackages are installed when a project has no requirements file.
	DefaultPackages []string `mapstructure:"default_packages"`
	// VersionTablePath overrides the version→URL document location.
	VersionTablePath string                `mapstructure:"version_table"`
	Log              logger.RotationConfig `mapstructure:"log"`
}

// Load reads path (TOML) when it exists; an empty path or missing file
// yields pure defaults. Unparseable config is an error: unlike the runtime
// catalog, the config file is user-authored and silently ignoring it would
// hide typos.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("listen", "127.0.0.1:4780")
	v.SetDefault("default_port", 8000)
	v.SetDefault("default_packages", []string{"otree"})

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if c.DataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			base = os.TempDir()
		}
		c.DataDir = filepath.Join(base, "pylaunch")
	}
	if c.VersionTablePath == "" {
		c.VersionTablePath = filepath.Join(c.DataDir, "python-versions.json")
	}
	return c, nil
}

// Paths derived from DataDir. Kept as methods so every component agrees on
// the layout without re-deriving strings.

func (c Config) CatalogPath() string  { return filepath.Join(c.DataDir, "runtimes.json") }
func (c Config) RuntimesDir() string  { return filepath.Join(c.DataDir, "python") }
func (c Config) EnvsDir() string      { return filepath.Join(c.DataDir, "envs") }
func (c Config) LogsDir() string      { return filepath.Join(c.DataDir, "logs") }
func (c Config) ComposeDir() string   { return filepath.Join(c.DataDir, "compose") }
func (c Config) SessionsPath() string { return filepath.Join(c.DataDir, "sessions.db") }
