package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Remote   RemoteConfig    `mapstructure:"remote"`
	Cache    CacheConfig     `mapstructure:"cache"`
	Sync     SyncConfig      `mapstructure:"sync"`
	Datasets []DatasetConfig `mapstructure:"datasets"`
	Logging  LoggingConfig   `mapstructure:"logging"`
	Metrics  MetricsConfig   `mapstructure:"metrics"`
}

// RemoteConfig holds the remote table source configuration
type RemoteConfig struct {
	URL               string        `mapstructure:"url"`                 // Project URL, e.g. https://xyz.supabase.co
	Key               string        `mapstructure:"key"`                 // API key sent as apikey and bearer token
	PageSize          int           `mapstructure:"page_size"`           // Rows per page request
	RequestsPerSecond float64       `mapstructure:"requests_per_second"` // 0 disables rate limiting
	Timeout           time.Duration `mapstructure:"timeout"`             // Per-request timeout
}

// CacheConfig holds persistent cache configuration
type CacheConfig struct {
	Path        string        `mapstructure:"path"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"` // 0 keeps the handle open
}

// SyncConfig holds orchestrator timeouts
type SyncConfig struct {
	LoadTimeout       time.Duration `mapstructure:"load_timeout"`       // 0 = no limit
	BackgroundTimeout time.Duration `mapstructure:"background_timeout"` // Bound on detached refreshes
}

// DatasetConfig describes one cached table
type DatasetConfig struct {
	Name      string        `mapstructure:"name"`
	Table     string        `mapstructure:"table"` // Defaults to name
	TTL       time.Duration `mapstructure:"ttl"`
	Transform string        `mapstructure:"transform"` // customers, transactions, app_settings, passthrough
	Order     *OrderConfig  `mapstructure:"order"`
}

// OrderConfig is the ordering sent with every page request
type OrderConfig struct {
	Column     string `mapstructure:"column"`
	Ascending  bool   `mapstructure:"ascending"`
	NullsFirst bool   `mapstructure:"nulls_first"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // Empty disables the endpoint
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Remote: RemoteConfig{
			PageSize: 1000,
			Timeout:  30 * time.Second,
		},
		Cache: CacheConfig{
			Path: filepath.Join(defaultCachePath(), "tablesync.db"),
		},
		Sync: SyncConfig{
			BackgroundTimeout: 5 * time.Minute,
		},
		Datasets: []DatasetConfig{
			{
				Name:      "customers",
				TTL:       4 * time.Hour,
				Transform: "customers",
				Order:     &OrderConfig{Column: "id", Ascending: true},
			},
			{
				Name:      "transactions",
				TTL:       4 * time.Hour,
				Transform: "transactions",
				Order:     &OrderConfig{Column: "id", Ascending: true},
			},
			{
				Name:      "app_settings",
				TTL:       5 * time.Minute,
				Transform: "app_settings",
			},
		},
		Logging: LoggingConfig{
			File:  defaultLogPath(),
			Level: "INFO",
		},
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "tablesync", "tablesync.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "tablesync", "tablesync.log")
	}
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "tablesync")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "tablesync")
	}
}

// defaultCachePath returns the default cache directory path for the current OS
func defaultCachePath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "tablesync", "cache")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "tablesync", "cache")
	}
}

// LoadConfig loads configuration from file and environment. Extra search
// paths are consulted before the defaults.
func LoadConfig(paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath(defaultConfigPath())
	v.AddConfigPath(".")

	// Environment variable overrides (TABLESYNC_REMOTE_KEY, ...)
	v.SetEnvPrefix("TABLESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{"remote.url", "remote.key", "cache.path", "logging.level", "metrics.addr"} {
		v.SetDefault(key, "")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	// mapstructure merges into existing slices element by element
	if v.IsSet("datasets") {
		cfg.Datasets = nil
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

// applyDefaults restores defaults that an explicit empty value cleared
func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.Remote.PageSize <= 0 {
		cfg.Remote.PageSize = def.Remote.PageSize
	}
	if cfg.Cache.Path == "" {
		cfg.Cache.Path = def.Cache.Path
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Sync.BackgroundTimeout <= 0 {
		cfg.Sync.BackgroundTimeout = def.Sync.BackgroundTimeout
	}
	for i := range cfg.Datasets {
		if cfg.Datasets[i].Table == "" {
			cfg.Datasets[i].Table = cfg.Datasets[i].Name
		}
	}
}

// IsConfigured returns true if the remote URL and key are set
func (c *Config) IsConfigured() bool {
	return c.Remote.URL != "" && c.Remote.Key != ""
}

// Validate checks the fields every command relies on
func (c *Config) Validate() error {
	if len(c.Datasets) == 0 {
		return errors.New("no datasets configured")
	}
	seen := make(map[string]bool, len(c.Datasets))
	for i, ds := range c.Datasets {
		if ds.Name == "" {
			return fmt.Errorf("dataset %d: name is required", i)
		}
		if seen[ds.Name] {
			return fmt.Errorf("dataset %q: duplicate name", ds.Name)
		}
		seen[ds.Name] = true
		if ds.TTL <= 0 {
			return fmt.Errorf("dataset %q: ttl must be positive", ds.Name)
		}
		if ds.Order != nil && ds.Order.Column == "" {
			return fmt.Errorf("dataset %q: order column is required", ds.Name)
		}
	}
	if c.Remote.PageSize <= 0 {
		return errors.New("remote.page_size must be positive")
	}
	return nil
}

// Dataset returns the dataset configuration with the given name
func (c *Config) Dataset(name string) (DatasetConfig, bool) {
	for _, ds := range c.Datasets {
		if ds.Name == name {
			return ds, true
		}
	}
	return DatasetConfig{}, false
}

// GetCachePath returns the default cache directory path
func GetCachePath() string {
	return defaultCachePath()
}
