// Package daemon manages xpsync configuration and the lifecycle of the
// reference gateway server and of client sync sessions.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/edugame/xpsync/internal/app/syncer"
)

// EnvPrefix prefixes every environment override, e.g. XPSYNC_GATEWAY_URL or
// XPSYNC_SYNC_XP_MIN_INTERVAL.
const EnvPrefix = "XPSYNC"

// Config holds all xpsync configuration.
type Config struct {
	Gateway GatewayConfig `toml:"gateway" envconfig:"GATEWAY"`
	Sync    SyncConfig    `toml:"sync" envconfig:"SYNC"`
	Server  ServerConfig  `toml:"server" envconfig:"SERVER"`
	Jobs    JobsConfig    `toml:"jobs" envconfig:"JOBS"`
	Logging LoggingConfig `toml:"logging" envconfig:"LOG"`
}

// GatewayConfig points the client at a stats gateway.
type GatewayConfig struct {
	URL     string        `toml:"url" split_words:"true"`
	Token   string        `toml:"token" split_words:"true"`
	Timeout time.Duration `toml:"timeout" split_words:"true"`
}

// SyncConfig tunes the sync coordinator.
type SyncConfig struct {
	XPMinInterval      time.Duration `toml:"xp_min_interval" split_words:"true"`
	ProfileMinInterval time.Duration `toml:"profile_min_interval" split_words:"true"`
	Debounce           time.Duration `toml:"debounce" split_words:"true"`
	CallTimeout        time.Duration `toml:"call_timeout" split_words:"true"`
}

// ServerConfig controls the reference gateway server.
type ServerConfig struct {
	Host           string        `toml:"host" split_words:"true"`
	Port           int           `toml:"port" split_words:"true"`
	DataDir        string        `toml:"data_dir" split_words:"true"`
	Metrics        bool          `toml:"metrics" split_words:"true"`
	HealthInterval time.Duration `toml:"health_interval" split_words:"true"`
	BcryptCost     int           `toml:"bcrypt_cost" split_words:"true"`
}

// JobsConfig holds cron specs for `xpsync watch`.
type JobsConfig struct {
	ProfileSync string `toml:"profile_sync" split_words:"true"`
	Probe       string `toml:"probe" split_words:"true"`
}

// LoggingConfig controls logrus.
type LoggingConfig struct {
	Level  string `toml:"level" split_words:"true"`
	Format string `toml:"format" split_words:"true"` // text | json
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	sc := syncer.DefaultConfig()
	return Config{
		Gateway: GatewayConfig{
			URL:     "http://127.0.0.1:8750",
			Timeout: 10 * time.Second,
		},
		Sync: SyncConfig{
			XPMinInterval:      sc.XPMinInterval,
			ProfileMinInterval: sc.ProfileMinInterval,
			Debounce:           sc.Debounce,
			CallTimeout:        sc.CallTimeout,
		},
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8750,
			DataDir:        XpsyncHome(),
			Metrics:        true,
			HealthInterval: time.Minute,
			BcryptCost:     10,
		},
		Jobs: JobsConfig{
			ProfileSync: "@every 1m",
			Probe:       "@every 15s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SyncerConfig converts the sync section for the coordinator.
func (c Config) SyncerConfig() syncer.Config {
	return syncer.Config{
		XPMinInterval:      c.Sync.XPMinInterval,
		ProfileMinInterval: c.Sync.ProfileMinInterval,
		Debounce:           c.Sync.Debounce,
		CallTimeout:        c.Sync.CallTimeout,
	}
}

// Addr is the server listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate rejects settings the runtime cannot honor.
func (c Config) Validate() error {
	var errs []error
	if c.Gateway.URL == "" {
		errs = append(errs, errors.New("gateway.url is empty"))
	}
	if c.Gateway.Timeout <= 0 {
		errs = append(errs, errors.New("gateway.timeout must be > 0"))
	}
	if c.Sync.XPMinInterval < 0 || c.Sync.ProfileMinInterval < 0 || c.Sync.Debounce < 0 {
		errs = append(errs, errors.New("sync intervals must not be negative"))
	}
	if c.Sync.CallTimeout <= 0 {
		errs = append(errs, errors.New("sync.call_timeout must be > 0"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.HealthInterval <= 0 {
		errs = append(errs, errors.New("server.health_interval must be > 0"))
	}
	for name, spec := range map[string]string{"jobs.profile_sync": c.Jobs.ProfileSync, "jobs.probe": c.Jobs.Probe} {
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q: want text or json", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// LoadConfig reads $XPSYNC_HOME/config.toml over the defaults, then applies
// XPSYNC_* environment overrides and validates the result.
func LoadConfig() (Config, error) {
	return LoadConfigFrom(ConfigPath())
}

// LoadConfigFrom is LoadConfig with an explicit file path. A missing file is
// not an error.
func LoadConfigFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("stat config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("env overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the config to $XPSYNC_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// ConfigPath is the location of the config file.
func ConfigPath() string {
	return filepath.Join(XpsyncHome(), "config.toml")
}

// XpsyncHome returns the xpsync data directory.
func XpsyncHome() string {
	if env := os.Getenv("XPSYNC_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".xpsync")
}

// ConfigureLogging applies the logging section to the standard logrus logger.
func ConfigureLogging(lc LoggingConfig) error {
	level, err := log.ParseLevel(lc.Level)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	if strings.EqualFold(lc.Format, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}
