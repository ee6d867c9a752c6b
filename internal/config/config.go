// Package config loads and validates rankscan configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Scan      ScanConfig      `mapstructure:"scan"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ScanConfig governs the scan coordinator.
type ScanConfig struct {
	// WindowHours is the baseline freshness window between scans of one
	// keyword.
	WindowHours int `mapstructure:"window_hours"`
	// ScanDayWindowHours is the tighter window applied on a project's
	// preferred weekly scan day.
	ScanDayWindowHours int `mapstructure:"scan_day_window_hours"`
	Concurrency        int `mapstructure:"concurrency"`
	MaxRetries         int `mapstructure:"max_retries"`
	BackoffInitialMs   int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs       int `mapstructure:"backoff_max_ms"`
}

// ProviderConfig holds the rank lookup provider credentials and limits.
type ProviderConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	EngineID       string `mapstructure:"engine_id"`
	Depth          int    `mapstructure:"depth"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// DBConfig controls access to the Postgres keyword store.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxConns     int32  `mapstructure:"max_conns"`
	MinConns     int32  `mapstructure:"min_conns"`
	LifetimeMins int    `mapstructure:"conn_lifetime_minutes"`
}

// PubSubConfig holds metadata for run-summary event publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ArchiveConfig selects where raw provider responses are archived.
// Provider is one of "none", "memory", "local", or "gcs".
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	BaseDir   string `mapstructure:"base_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// SMTPConfig configures the operator failure-alert email. Alerts are
// disabled when To is empty.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	To       string `mapstructure:"to"`
}

// SchedulerConfig controls the cron-triggered global scan.
type SchedulerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Schedule is "weekly" or "daily".
	Schedule string `mapstructure:"schedule"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RANKSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("scan.window_hours", 168)
	v.SetDefault("scan.scan_day_window_hours", 24)
	v.SetDefault("scan.concurrency", 8)
	v.SetDefault("scan.max_retries", 3)
	v.SetDefault("scan.backoff_initial_ms", 250)
	v.SetDefault("scan.backoff_max_ms", 5000)
	v.SetDefault("provider.depth", 100)
	v.SetDefault("provider.timeout_seconds", 15)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.conn_lifetime_minutes", 30)
	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.prefix", "responses")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.schedule", "weekly")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scan.WindowHours <= 0 {
		return fmt.Errorf("scan.window_hours must be > 0")
	}
	if c.Scan.Concurrency <= 0 {
		return fmt.Errorf("scan.concurrency must be > 0")
	}
	if c.Provider.Depth <= 0 || c.Provider.Depth > 100 {
		return fmt.Errorf("provider.depth must be in 1..100")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Archive.Provider {
	case "none", "memory", "local", "gcs":
	default:
		return fmt.Errorf("archive.provider must be none, memory, local, or gcs")
	}
	if c.Archive.Provider == "gcs" && c.Archive.GCSBucket == "" {
		return fmt.Errorf("archive.gcs_bucket must be set for the gcs archive")
	}
	if c.Archive.Provider == "local" && c.Archive.BaseDir == "" {
		return fmt.Errorf("archive.base_dir must be set for the local archive")
	}
	if c.Scheduler.Enabled {
		switch c.Scheduler.Schedule {
		case "daily", "weekly":
		default:
			return fmt.Errorf("scheduler.schedule must be daily or weekly")
		}
	}
	return nil
}

// Window converts the configured freshness window into a duration.
func (c Config) Window() time.Duration {
	return time.Duration(c.Scan.WindowHours) * time.Hour
}

// ScanDayWindow converts the scan-day window into a duration.
func (c Config) ScanDayWindow() time.Duration {
	return time.Duration(c.Scan.ScanDayWindowHours) * time.Hour
}

// ProviderTimeout converts the provider timeout into a duration.
func (c Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Provider.TimeoutSeconds) * time.Second
}
