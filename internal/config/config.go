package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/2beens/repcounter/internal/tracking"

	"github.com/BurntSushi/toml"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

type Config struct {
	Environment string `toml:"environment"`
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	MetricsHost string `toml:"metrics_host"`
	MetricsPort int    `toml:"metrics_port"`

	// logging
	LogLevel      string `toml:"log_level"`
	LogsPath      string `toml:"logs_path"`
	LogToStdout   bool   `toml:"log_to_stdout"`
	SentryEnabled bool   `toml:"sentry_enabled"`

	// storage: memory | redis | postgres
	Storage string `toml:"storage"`

	RedisHost string `toml:"redis_host"`
	RedisPort string `toml:"redis_port"`

	PostgresHost   string `toml:"postgres_host"`
	PostgresPort   string `toml:"postgres_port"`
	PostgresDBName string `toml:"postgres_db_name"`
	PostgresUser   string `toml:"postgres_user"`

	SessionsCacheSizeMB int      `toml:"sessions_cache_size_mb"`
	SessionsCacheTTL    Duration `toml:"sessions_cache_ttl"`
	// per minute, per client; 0 disables limiting
	SessionsCreateRateLimit int `toml:"sessions_create_rate_limit"`

	AllowedOrigins []string `toml:"allowed_origins"`

	Smoother tracking.SmootherConfig `toml:"smoother"`
}

// Duration lets durations be written as strings ("30s") in the TOML file.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	switch strings.ToLower(env) {
	case "dev", "development":
		return t.Development, nil
	case "prod", "production":
		return t.Production, nil
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
}

func Load(env, path string) (*Config, error) {
	var tomlConfig Toml
	if _, err := toml.DecodeFile(path, &tomlConfig); err != nil {
		return nil, fmt.Errorf("decode toml config [%s]: %w", path, err)
	}

	cfg, err := tomlConfig.Get(env)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("config for env [%s] missing in [%s]", env, path)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Storage == "" {
		c.Storage = StorageMemory
	}
	if c.SessionsCacheSizeMB <= 0 {
		c.SessionsCacheSizeMB = 8
	}
	if c.SessionsCacheTTL.Duration <= 0 {
		c.SessionsCacheTTL.Duration = 30 * time.Second
	}
	defaults := tracking.DefaultSmootherConfig()
	if c.Smoother.HistorySize <= 0 {
		c.Smoother.HistorySize = defaults.HistorySize
	}
	if c.Smoother.WindowSize <= 0 {
		c.Smoother.WindowSize = defaults.WindowSize
	}
	if c.Smoother.MovementThreshold <= 0 {
		c.Smoother.MovementThreshold = defaults.MovementThreshold
	}
}

func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory, StorageRedis, StoragePostgres:
	default:
		return fmt.Errorf("unknown storage: %s", c.Storage)
	}
	if c.Port <= 0 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Smoother.WindowSize > c.Smoother.HistorySize {
		return fmt.Errorf("smoother window size %d larger than history size %d", c.Smoother.WindowSize, c.Smoother.HistorySize)
	}
	return nil
}
