package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Storage     StorageConfig     `yaml:"storage"`
	Redis       RedisConfig       `yaml:"redis"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Refresh     RefreshConfig     `yaml:"refresh"`
	Leaderboard LeaderboardConfig `yaml:"leaderboard"`
	Demo        DemoConfig        `yaml:"demo"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// Addr returns the listen address
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel maps the configured level name to a slog level; unknown names
// fall back to info
func (c *LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// StorageConfig selects and configures the relational store
type StorageConfig struct {
	Driver   string         `yaml:"driver"`
	Dir      string         `yaml:"dir"`
	File     string         `yaml:"file"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLitePath returns the path of the SQLite database file
func (c *StorageConfig) SQLitePath() string {
	return filepath.Join(c.Dir, c.File)
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	LockTTL      time.Duration `yaml:"lock_ttl"`
}

// KafkaConfig holds Kafka connection configuration
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	GroupID      string        `yaml:"group_id"`
	Enabled      bool          `yaml:"enabled"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// RefreshConfig holds the standings refresh worker configuration
type RefreshConfig struct {
	Interval time.Duration `yaml:"interval"`
	Enabled  bool          `yaml:"enabled"`
}

// LeaderboardConfig holds ranking view limits
type LeaderboardConfig struct {
	IndividualLimit int `yaml:"individual_limit"`
	RecentLimit     int `yaml:"recent_limit"`
}

// DemoConfig holds demo mode settings and the seeded admin credential
type DemoConfig struct {
	Enabled       bool   `yaml:"enabled"`
	AdminUsername string `yaml:"admin_username"`
	AdminPassword string `yaml:"admin_password"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	// Demo mode is on unless the file turns it off
	cfg := Config{Demo: DemoConfig{Enabled: true}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides file values with well-known environment variables
func (c *Config) applyEnv() {
	if dir := strings.TrimSpace(os.Getenv("DATABASE_DIR")); dir != "" {
		c.Storage.Dir = dir
	}
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			c.Server.Port = p
		}
	}
	if demo := strings.TrimSpace(os.Getenv("DEMO_MODE")); demo != "" {
		if b, err := strconv.ParseBool(demo); err == nil {
			c.Demo.Enabled = b
		}
	}
	if addr := strings.TrimSpace(os.Getenv("REDIS_ADDR")); addr != "" {
		c.Redis.Addr = addr
		c.Redis.Enabled = true
	}
	if brokers := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); brokers != "" {
		c.Kafka.Brokers = strings.Split(brokers, ",")
		c.Kafka.Enabled = true
	}
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	// Storage defaults
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverSQLite
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = os.TempDir()
	}
	if c.Storage.File == "" {
		c.Storage.File = "demo_leaderboard.db"
	}
	if c.Storage.Postgres.Host == "" {
		c.Storage.Postgres.Host = "localhost"
	}
	if c.Storage.Postgres.Port == 0 {
		c.Storage.Postgres.Port = 5432
	}
	if c.Storage.Postgres.MaxConnections == 0 {
		c.Storage.Postgres.MaxConnections = 20
	}
	if c.Storage.Postgres.MinConnections == 0 {
		c.Storage.Postgres.MinConnections = 2
	}
	if c.Storage.Postgres.MaxConnLifetime == 0 {
		c.Storage.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Storage.Postgres.MaxConnIdleTime == 0 {
		c.Storage.Postgres.MaxConnIdleTime = 30 * time.Minute
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 20
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 2
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}
	if c.Redis.CacheTTL == 0 {
		c.Redis.CacheTTL = 30 * time.Second
	}
	if c.Redis.LockTTL == 0 {
		c.Redis.LockTTL = 1 * time.Minute
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "tile-completions"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "leaderboard-consumer"
	}
	if c.Kafka.BatchSize == 0 {
		c.Kafka.BatchSize = 50
	}
	if c.Kafka.BatchTimeout == 0 {
		c.Kafka.BatchTimeout = 1 * time.Second
	}

	if c.Refresh.Interval == 0 {
		c.Refresh.Interval = 15 * time.Second
	}

	// Leaderboard defaults
	if c.Leaderboard.IndividualLimit == 0 {
		c.Leaderboard.IndividualLimit = 15
	}
	if c.Leaderboard.RecentLimit == 0 {
		c.Leaderboard.RecentLimit = 10
	}

	if c.Demo.AdminUsername == "" {
		c.Demo.AdminUsername = "demo"
	}
	if c.Demo.AdminPassword == "" {
		c.Demo.AdminPassword = "demo123"
	}
}

// Validate reports configuration values that cannot be used
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalidConfig, c.Storage.Driver)
	}
	if c.Leaderboard.IndividualLimit < 0 || c.Leaderboard.RecentLimit < 0 {
		return fmt.Errorf("%w: leaderboard limits must be positive", ErrInvalidConfig)
	}
	return nil
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Demo.Enabled = true
	cfg.Refresh.Enabled = true
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg
}
