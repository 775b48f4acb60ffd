// Package config resolves Vizier's process-wide, init-time configuration
// snapshot through spf13/viper, the layered-config idiom quorum-ai's
// internal/config/loader.go uses, adapted to spec.md §9's resolution order:
// --config-file, then VIZIER_CONFIG_FILE, then <repo>/.vizier/config.toml,
// then $VIZIER_CONFIG_DIR/$XDG_CONFIG_HOME. Repo config always wins over
// env unless absent.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/jordan-tan/vizier/pkg/constants"
	"github.com/jordan-tan/vizier/pkg/logger"
)

var log = logger.New("config:loader")

// Config is Vizier's resolved configuration snapshot.
type Config struct {
	Backend   string `mapstructure:"backend"`
	NoCommit  bool   `mapstructure:"no_commit"`
	Push      bool   `mapstructure:"push"`
	JSON      bool   `mapstructure:"json"`
	Quiet     bool   `mapstructure:"quiet"`

	GC struct {
		ThresholdDays int `mapstructure:"threshold_days"`
	} `mapstructure:"gc"`

	Schedule struct {
		DefaultFormat string `mapstructure:"default_format"`
	} `mapstructure:"schedule"`

	List struct {
		Fields         []string `mapstructure:"fields"`
		ShowSucceeded  bool     `mapstructure:"show_succeeded"`
		DismissFailures bool    `mapstructure:"dismiss_failures"`
	} `mapstructure:"list"`
}

// Loader resolves configuration from flags, environment, and an on-disk
// file, mirroring quorum-ai's Loader shape (viper instance + explicit
// override path + env prefix).
type Loader struct {
	v          *viper.Viper
	configFile string
	repoRoot   string
}

// NewLoader returns a Loader with Vizier's defaults pre-populated.
func NewLoader(repoRoot string) *Loader {
	return &Loader{v: viper.New(), repoRoot: repoRoot}
}

// WithConfigFile sets an explicit --config-file override, the
// highest-precedence source in spec.md §9's resolution order.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Viper exposes the underlying instance so cmd/vizier can bind persistent
// flags (--backend, --no-commit, --push, --json, -q) directly onto it.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

func (l *Loader) setDefaults() {
	l.v.SetDefault("backend", "")
	l.v.SetDefault("no_commit", false)
	l.v.SetDefault("push", false)
	l.v.SetDefault("json", false)
	l.v.SetDefault("quiet", false)
	l.v.SetDefault("gc.threshold_days", constants.DefaultGCThresholdDays)
	l.v.SetDefault("schedule.default_format", "summary")
	l.v.SetDefault("list.show_succeeded", false)
	l.v.SetDefault("list.dismiss_failures", false)
}

// resolveConfigPath implements spec.md §9's precedence: --config-file,
// VIZIER_CONFIG_FILE, <repo>/.vizier/config.toml, then
// $VIZIER_CONFIG_DIR/config.toml, then $XDG_CONFIG_HOME/vizier/config.toml.
// An explicit --config-file or VIZIER_CONFIG_FILE is returned as given; the
// directory-derived candidates are used only when the file exists. Returns ""
// if no candidate applies, in which case Load proceeds with defaults (and any
// environment overrides) only.
func (l *Loader) resolveConfigPath() string {
	if l.configFile != "" {
		return l.configFile
	}
	if p := os.Getenv(constants.EnvConfigFile); p != "" {
		return p
	}
	if l.repoRoot != "" {
		repoConfig := filepath.Join(l.repoRoot, constants.VizierDir, constants.ConfigFileName)
		if _, err := os.Stat(repoConfig); err == nil {
			return repoConfig
		}
	}
	if dir := os.Getenv(constants.EnvConfigDir); dir != "" {
		p := filepath.Join(dir, constants.ConfigFileName)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if dir := os.Getenv(constants.EnvXDGConfig); dir != "" {
		p := filepath.Join(dir, "vizier", constants.ConfigFileName)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Load resolves the configuration snapshot. Precedence (highest to lowest):
// CLI flags bound onto Viper(), environment variables (VIZIER_*), the
// resolved config.toml, then defaults — "repo config always wins over env
// unless absent" (spec.md §9) is honored by resolveConfigPath preferring the
// repo file over VIZIER_CONFIG_DIR/XDG_CONFIG_HOME, not by reordering
// viper's flag/env precedence, which always sits above file values.
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix("VIZIER")
	l.v.AutomaticEnv()

	if path := l.resolveConfigPath(); path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("config: reading %s: %w", path, err)
			}
		} else {
			log.Printf("loaded config from %s", path)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	return &cfg, nil
}
