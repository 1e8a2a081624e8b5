// Package config loads and validates application configuration from YAML files
// with .env and environment-variable overrides. It provides typed structs for
// every subsystem (Server, Postgres, Kafka, Redis, Lanes, Timeline, etc.).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Lanes    LanesConfig    `yaml:"lanes"`
	Timeline TimelineConfig `yaml:"timeline"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings. RateLimit is the number of API
// requests each client IP may make per RateLimitWindow; 0 disables limiting.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	AllowOrigins    []string      `yaml:"allowOrigins"`
	RateLimit       int           `yaml:"rateLimit"`
	RateLimitWindow time.Duration `yaml:"rateLimitWindow"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	SubjectImport string `yaml:"subjectImport"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// LanesConfig controls lane packing.
type LanesConfig struct {
	LaneMax         int  `yaml:"laneMax"`
	LegacyPageIndex bool `yaml:"legacyPageIndex"`
}

// TimelineConfig controls request defaults and candidate fetching.
// CacheFlushInterval bounds how long cached layouts may lag behind imported
// subject changes.
type TimelineConfig struct {
	DefaultFrom        float64       `yaml:"defaultFrom"`
	DefaultTo          float64       `yaml:"defaultTo"`
	FetchConcurrency   int           `yaml:"fetchConcurrency"`
	FetchTimeout       time.Duration `yaml:"fetchTimeout"`
	FetchAttempts      int           `yaml:"fetchAttempts"`
	RetryDelay         time.Duration `yaml:"retryDelay"`
	CacheFlushInterval time.Duration `yaml:"cacheFlushInterval"`
	Breaker            BreakerConfig `yaml:"breaker"`
}

// BreakerConfig controls the circuit breaker around the subject store.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failureThreshold"`
	ResetTimeout     time.Duration `yaml:"resetTimeout"`
	HalfOpenProbes   int           `yaml:"halfOpenProbes"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), then a .env file next to the
// working directory (if present), and applies environment-variable
// overrides. Values already set in the process environment are never
// replaced by the .env file.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.Server.RateLimit > 0 && c.Server.RateLimitWindow <= 0 {
		problems = append(problems, "server.rateLimitWindow must be positive when rateLimit is set")
	}
	if c.Lanes.LaneMax < 1 {
		problems = append(problems, "lanes.laneMax must be at least 1")
	}
	if c.Timeline.DefaultFrom > c.Timeline.DefaultTo {
		problems = append(problems, "timeline.defaultFrom must not exceed timeline.defaultTo")
	}
	if c.Timeline.FetchConcurrency < 1 {
		problems = append(problems, "timeline.fetchConcurrency must be at least 1")
	}
	if c.Timeline.RetryDelay < 0 {
		problems = append(problems, "timeline.retryDelay must not be negative")
	}
	if b := c.Timeline.Breaker; b.FailureThreshold < 1 || b.ResetTimeout <= 0 || b.HalfOpenProbes < 1 {
		problems = append(problems, "timeline.breaker needs failureThreshold >= 1, a positive resetTimeout and halfOpenProbes >= 1")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			AllowOrigins:    []string{"*"},
			RateLimitWindow: time.Minute,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "chronolanes",
			User:            "chronolanes",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "chronolanes-group",
			Topics: KafkaTopics{
				SubjectImport: "subject-import",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 5 * time.Minute,
		},
		Lanes: LanesConfig{
			LaneMax: 15,
		},
		Timeline: TimelineConfig{
			DefaultFrom:        -3000,
			DefaultTo:          2100,
			FetchConcurrency:   4,
			FetchTimeout:       5 * time.Second,
			FetchAttempts:      3,
			RetryDelay:         100 * time.Millisecond,
			CacheFlushInterval: 2 * time.Second,
			Breaker: BreakerConfig{
				FailureThreshold: 5,
				ResetTimeout:     30 * time.Second,
				HalfOpenProbes:   1,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads TL_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TL_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TL_SERVER_ALLOW_ORIGINS"); v != "" {
		cfg.Server.AllowOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("TL_SERVER_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimit = n
		}
	}
	if v := os.Getenv("TL_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("TL_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("TL_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("TL_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("TL_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("TL_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("TL_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("TL_KAFKA_TOPIC_SUBJECT_IMPORT"); v != "" {
		cfg.Kafka.Topics.SubjectImport = v
	}
	if v := os.Getenv("TL_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("TL_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TL_LANES_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Lanes.LaneMax = n
		}
	}
	if v := os.Getenv("TL_LANES_LEGACY_PAGE_INDEX"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Lanes.LegacyPageIndex = b
		}
	}
	if v := os.Getenv("TL_TIMELINE_DEFAULT_FROM"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Timeline.DefaultFrom = f
		}
	}
	if v := os.Getenv("TL_TIMELINE_DEFAULT_TO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Timeline.DefaultTo = f
		}
	}
	if v := os.Getenv("TL_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TL_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("TL_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
