package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "RESTAURANT"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Mongo     MongoConfig     `yaml:"mongo"`
	Database  DatabaseConfig  `yaml:"database"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Redis     RedisConfig     `yaml:"redis"`
	Outbox    OutboxConfig    `yaml:"outbox"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`
}

type StorageConfig struct {
	// Driver is one of mongo, postgres, memory.
	Driver string `yaml:"driver"`
}

type MongoConfig struct {
	URI            string        `yaml:"uri"`
	Database       string        `yaml:"database"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" split_words:"true"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns" split_words:"true"`
}

type BroadcastConfig struct {
	// Relay is one of local, rabbitmq, redis.
	Relay             string        `yaml:"relay"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" split_words:"true"`
	Buffer            int           `yaml:"buffer"`
}

type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	VHost    string `yaml:"vhost"`
	Exchange string `yaml:"exchange"`
	Prefetch int    `yaml:"prefetch"`
}

type RedisConfig struct {
	URL     string `yaml:"url"`
	Channel string `yaml:"channel"`
}

type OutboxConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" split_words:"true"`
	Lease        time.Duration `yaml:"lease"`
	BaseBackoff  time.Duration `yaml:"base_backoff" split_words:"true"`
	MaxBackoff   time.Duration `yaml:"max_backoff" split_words:"true"`
	MaxAttempts  int           `yaml:"max_attempts" split_words:"true"`
	BatchSize    int           `yaml:"batch_size" split_words:"true"`
}

type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

type LogConfig struct {
	Env   string `yaml:"env"`
	Level string `yaml:"level"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3000,
			ReadTimeout:     15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{Driver: "mongo"},
		Mongo: MongoConfig{
			URI:            "mongodb://localhost:27017",
			Database:       "restaurant",
			ConnectTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "restaurant",
			Password: "restaurant",
			Database: "restaurant",
			SSLMode:  "disable",
		},
		Broadcast: BroadcastConfig{
			Relay:             "local",
			HeartbeatInterval: 30 * time.Second,
			Buffer:            64,
		},
		RabbitMQ: RabbitMQConfig{
			Host:     "localhost",
			Port:     5672,
			User:     "guest",
			Password: "guest",
			Exchange: "order_events_fanout",
			Prefetch: 10,
		},
		Redis: RedisConfig{
			URL:     "redis://localhost:6379/0",
			Channel: "order-events",
		},
		Outbox: OutboxConfig{
			PollInterval: 2 * time.Second,
			Lease:        30 * time.Second,
			BaseBackoff:  time.Second,
			MaxBackoff:   5 * time.Minute,
			MaxAttempts:  8,
			BatchSize:    50,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPS:     10,
			Burst:   20,
		},
		Log: LogConfig{
			Env:   "development",
			Level: "info",
		},
	}
}

// Load applies, in order: defaults, the YAML file at path (a missing file is
// not an error), a .env file in the working directory, then RESTAURANT_*
// environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse yaml: %w", err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "mongo", "postgres", "memory":
	default:
		return fmt.Errorf("invalid storage.driver %q: must be mongo, postgres or memory", c.Storage.Driver)
	}
	switch c.Broadcast.Relay {
	case "local", "rabbitmq", "redis":
	default:
		return fmt.Errorf("invalid broadcast.relay %q: must be local, rabbitmq or redis", c.Broadcast.Relay)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Broadcast.HeartbeatInterval <= 0 {
		return fmt.Errorf("broadcast.heartbeat_interval must be positive")
	}
	if c.Outbox.MaxAttempts < 1 {
		return fmt.Errorf("outbox.max_attempts must be at least 1")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst < 1) {
		return fmt.Errorf("rate_limit requires positive rps and burst")
	}
	return nil
}
