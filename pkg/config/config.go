// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Paths, Counting, Logging, Metrics, Redis, Postgres, Kafka).
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Paths    PathsConfig    `yaml:"paths"`
	Counting CountingConfig `yaml:"counting"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
}

// PathsConfig locates the input corpus and the working directory that holds
// every derived artifact (training copy, word index, status, count files).
type PathsConfig struct {
	Corpus  string `yaml:"corpus"`
	WorkDir string `yaml:"workDir"`
}

// CountingConfig controls which patterns are counted and how the chunk/merge
// pipeline spends memory and CPU.
type CountingConfig struct {
	Order              int               `yaml:"order"`
	PatternSet         string            `yaml:"patternSet"`
	Patterns           []string          `yaml:"patterns"`
	Cores              int               `yaml:"cores"`
	Buckets            int               `yaml:"buckets"`
	ChunkBufferSize    datasize.ByteSize `yaml:"chunkBufferSize"`
	ChannelCapacity    int               `yaml:"channelCapacity"`
	Compression        string            `yaml:"compression"`
	DeleteTempFiles    bool              `yaml:"deleteTempFiles"`
	SentenceBoundaries bool              `yaml:"sentenceBoundaries"`
	ReservedTokens     string            `yaml:"reservedTokens"`
	Tagged             bool              `yaml:"tagged"`
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

// RedisConfig holds Redis connection parameters used when finished counts are
// published to a shared lookup cache.
type RedisConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	PoolSize  int           `yaml:"poolSize"`
	KeyPrefix string        `yaml:"keyPrefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// PostgresConfig holds PostgreSQL connection parameters for the run history.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
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

// KafkaConfig holds Kafka broker and topic settings for progress events.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values, and fails if the result does not validate.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with defaults suitable for a single machine.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			WorkDir: "work",
		},
		Counting: CountingConfig{
			Order:              5,
			PatternSet:         "glm",
			Cores:              runtime.NumCPU(),
			Buckets:            64,
			ChunkBufferSize:    64 * datasize.MB,
			ChannelCapacity:    4096,
			Compression:        "none",
			DeleteTempFiles:    true,
			SentenceBoundaries: true,
			ReservedTokens:     "escape",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "ngram:",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "ngramcount",
			User:            "ngramcount",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "ngram.counted",
		},
	}
}

// Validate checks the fields the pipeline cannot run without.
func (c *Config) Validate() error {
	if c.Paths.WorkDir == "" {
		return fmt.Errorf("paths.workDir must be set")
	}
	if c.Counting.Order < 1 {
		return fmt.Errorf("counting.order must be >= 1, got %d", c.Counting.Order)
	}
	if c.Counting.Cores < 1 {
		return fmt.Errorf("counting.cores must be >= 1, got %d", c.Counting.Cores)
	}
	if c.Counting.Buckets < 1 {
		return fmt.Errorf("counting.buckets must be >= 1, got %d", c.Counting.Buckets)
	}
	if c.Counting.ChannelCapacity < 1 {
		return fmt.Errorf("counting.channelCapacity must be >= 1, got %d", c.Counting.ChannelCapacity)
	}
	switch c.Counting.Compression {
	case "none", "zstd", "lz4":
	default:
		return fmt.Errorf("counting.compression must be one of none, zstd, lz4, got %q", c.Counting.Compression)
	}
	switch c.Counting.ReservedTokens {
	case "escape", "reject":
	default:
		return fmt.Errorf("counting.reservedTokens must be escape or reject, got %q", c.Counting.ReservedTokens)
	}
	switch c.Counting.PatternSet {
	case "", "absolute", "kneser-ney", "glm":
	default:
		return fmt.Errorf("counting.patternSet must be absolute, kneser-ney or glm, got %q", c.Counting.PatternSet)
	}
	return nil
}

// applyEnvOverrides reads NGC_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NGC_CORPUS"); v != "" {
		cfg.Paths.Corpus = v
	}
	if v := os.Getenv("NGC_WORK_DIR"); v != "" {
		cfg.Paths.WorkDir = v
	}
	if v := os.Getenv("NGC_ORDER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Counting.Order = n
		}
	}
	if v := os.Getenv("NGC_CORES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Counting.Cores = n
		}
	}
	if v := os.Getenv("NGC_PATTERNS"); v != "" {
		cfg.Counting.Patterns = strings.Split(v, ",")
	}
	if v := os.Getenv("NGC_CHUNK_BUFFER_SIZE"); v != "" {
		var size datasize.ByteSize
		if err := size.UnmarshalText([]byte(v)); err == nil {
			cfg.Counting.ChunkBufferSize = size
		}
	}
	if v := os.Getenv("NGC_COMPRESSION"); v != "" {
		cfg.Counting.Compression = v
	}
	if v := os.Getenv("NGC_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("NGC_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("NGC_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("NGC_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("NGC_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("NGC_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("NGC_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
}
