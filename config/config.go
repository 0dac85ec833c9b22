package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables that override file values.
const EnvPrefix = "QUEUED"

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool" split_words:"true"`
	Queue      QueueConfig      `yaml:"queue"`
	Refresh    RefreshConfig    `yaml:"refresh"`
	Reconcile  ReconcileConfig  `yaml:"reconcile"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	Mode            string   `yaml:"mode"` // debug, release, test
	RateLimitPerSec float64  `yaml:"rate_limit_per_sec" split_words:"true"`
	RateLimitBurst  int      `yaml:"rate_limit_burst" split_words:"true"`
	CacheTTLSeconds int      `yaml:"cache_ttl_seconds" split_words:"true"`
	CORSOrigins     []string `yaml:"cors_origins" envconfig:"CORS_ORIGINS"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres, sqlite
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns" split_words:"true"`
	MaxIdleConns           int    `yaml:"max_idle_conns" split_words:"true"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes" split_words:"true"`
	LogLevel               string `yaml:"log_level" split_words:"true"`
}

// AuthConfig holds the shared secret used to verify identity tokens.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" envconfig:"JWT_SECRET"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key" envconfig:"VAPID_PUBLIC_KEY"`
	PrivateKey string `yaml:"vapid_private_key" envconfig:"VAPID_PRIVATE_KEY"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// QueueConfig tunes the coordinator timers.
type QueueConfig struct {
	NotifyDelayMs             int `yaml:"notify_delay_ms" split_words:"true"`
	SettleDelayMs             int `yaml:"settle_delay_ms" split_words:"true"`
	AutoUpdateIntervalSeconds int `yaml:"auto_update_interval_seconds" split_words:"true"`
	OperationTimeoutSeconds   int `yaml:"operation_timeout_seconds" split_words:"true"`

	NotifyDelay        time.Duration `yaml:"-" ignored:"true"`
	SettleDelay        time.Duration `yaml:"-" ignored:"true"`
	AutoUpdateInterval time.Duration `yaml:"-" ignored:"true"`
	OperationTimeout   time.Duration `yaml:"-" ignored:"true"`
}

// RefreshConfig holds the manual ETA refresh throttle.
type RefreshConfig struct {
	CooldownSeconds int `yaml:"cooldown_seconds" split_words:"true"`
	WindowSeconds   int `yaml:"window_seconds" split_words:"true"`
	MaxPerWindow    int `yaml:"max_per_window" split_words:"true"`
}

// ReconcileConfig controls the periodic self-heal loop.
type ReconcileConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalSeconds int           `yaml:"interval_seconds" split_words:"true"`
	Interval        time.Duration `yaml:"-" ignored:"true"`
}

// LogConfig holds the logger level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads the configuration from the given path and applies environment overrides.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset values and derives the duration fields.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 2
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		cfg.WorkerPool.Size = 1
	}

	if cfg.Queue.NotifyDelayMs <= 0 {
		cfg.Queue.NotifyDelayMs = 1000
	}
	if cfg.Queue.SettleDelayMs <= 0 {
		cfg.Queue.SettleDelayMs = 2000
	}
	if cfg.Queue.AutoUpdateIntervalSeconds <= 0 {
		cfg.Queue.AutoUpdateIntervalSeconds = 30
	}
	if cfg.Queue.OperationTimeoutSeconds <= 0 {
		cfg.Queue.OperationTimeoutSeconds = 10
	}
	cfg.Queue.NotifyDelay = time.Duration(cfg.Queue.NotifyDelayMs) * time.Millisecond
	cfg.Queue.SettleDelay = time.Duration(cfg.Queue.SettleDelayMs) * time.Millisecond
	cfg.Queue.AutoUpdateInterval = time.Duration(cfg.Queue.AutoUpdateIntervalSeconds) * time.Second
	cfg.Queue.OperationTimeout = time.Duration(cfg.Queue.OperationTimeoutSeconds) * time.Second

	if cfg.Refresh.CooldownSeconds <= 0 {
		cfg.Refresh.CooldownSeconds = 10
	}
	if cfg.Refresh.WindowSeconds <= 0 {
		cfg.Refresh.WindowSeconds = 60
	}
	if cfg.Refresh.MaxPerWindow <= 0 {
		cfg.Refresh.MaxPerWindow = 5
	}

	if cfg.Reconcile.IntervalSeconds <= 0 {
		cfg.Reconcile.IntervalSeconds = 60
	}
	cfg.Reconcile.Interval = time.Duration(cfg.Reconcile.IntervalSeconds) * time.Second

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
