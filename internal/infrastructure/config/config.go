package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Aggregator  AggregatorConfig `mapstructure:"aggregator"`
	Signals     SignalsConfig    `mapstructure:"signals"`
	Workers     WorkerConfig     `mapstructure:"workers"`
	Locks       LockConfig       `mapstructure:"locks"`
	Reaper      ReaperConfig     `mapstructure:"reaper"`
	Tracing     TracingConfig    `mapstructure:"tracing"`
	Secrets     SecretsConfig    `mapstructure:"secrets"`
	Events      EventsConfig     `mapstructure:"events"`
}

type ServerConfig struct {
	Port              int      `mapstructure:"port"`
	Host              string   `mapstructure:"host"`
	ReadTimeout       int      `mapstructure:"read_timeout"`
	WriteTimeout      int      `mapstructure:"write_timeout"`
	AllowedOrigins    []string `mapstructure:"allowed_origins"`
	RateLimitPerMin   int      `mapstructure:"rate_limit_per_min"`   // per IP, per replica
	SignalLimitPerMin int      `mapstructure:"signal_limit_per_min"` // all replicas
	WalletLimitPerMin int      `mapstructure:"wallet_limit_per_min"` // per wallet, all replicas
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	QueryTimeout    int    `mapstructure:"query_timeout"`
}

type RedisConfig struct {
	URL        string `mapstructure:"url"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	MaxRetries int    `mapstructure:"max_retries"`
	PoolSize   int    `mapstructure:"pool_size"`
}

// AggregatorConfig configures the swap aggregator HTTP client
type AggregatorConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Timeout        int    `mapstructure:"timeout"` // seconds, per request
	MaxRetries     int    `mapstructure:"max_retries"`
	RetryBaseDelay int    `mapstructure:"retry_base_delay_ms"`
	RateLimit      int    `mapstructure:"rate_limit_per_sec"`
}

// SignalsConfig configures eligibility gating and queue names
type SignalsConfig struct {
	CooldownSeconds int    `mapstructure:"cooldown_seconds"`
	SignalQueue     string `mapstructure:"signal_queue"`
	ExecutionQueue  string `mapstructure:"execution_queue"`
}

type WorkerConfig struct {
	Count            int `mapstructure:"count"`
	SignalCount      int `mapstructure:"signal_count"`
	JobTimeout       int `mapstructure:"job_timeout"` // seconds
	DispatchTimeout  int `mapstructure:"dispatch_timeout"`
	PollTimeout      int `mapstructure:"poll_timeout"`
	MaxAttempts      int `mapstructure:"max_attempts"`
	ShutdownDeadline int `mapstructure:"shutdown_deadline"`
}

// LockConfig configures per-owner serialization
type LockConfig struct {
	Backend     string `mapstructure:"backend"` // "redis" or "memory"
	TTL         int    `mapstructure:"ttl"`     // seconds
	WaitTimeout int    `mapstructure:"wait_timeout"`
}

// ReaperConfig configures the stale pending transaction sweep
type ReaperConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Schedule   string `mapstructure:"schedule"`
	StaleAfter int    `mapstructure:"stale_after"` // seconds
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	CollectorURL string  `mapstructure:"collector_url"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

// SecretsConfig selects where connection strings are resolved from at startup
type SecretsConfig struct {
	Provider string `mapstructure:"provider"` // "env" or "aws"
	Region   string `mapstructure:"region"`
	Prefix   string `mapstructure:"prefix"`
}

// EventsConfig configures publishing of execution outcomes
type EventsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Region   string `mapstructure:"region"`
	TopicARN string `mapstructure:"topic_arn"`
}

// Cooldown returns the configured minimum time between executions for one owner
func (c SignalsConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// RequestTimeout returns the per-call aggregator timeout
func (c AggregatorConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Build database URL if not provided
	if config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.allowed_origins", []string{"*"})
	viper.SetDefault("server.rate_limit_per_min", 600)
	viper.SetDefault("server.signal_limit_per_min", 120)
	viper.SetDefault("server.wallet_limit_per_min", 300)

	// Database
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "rebalance_service")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.conn_max_lifetime", 3600)
	viper.SetDefault("database.query_timeout", 30)

	// Redis
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)

	// Aggregator
	viper.SetDefault("aggregator.base_url", "https://quote-api.jup.ag/v6")
	viper.SetDefault("aggregator.timeout", 30)
	viper.SetDefault("aggregator.max_retries", 3)
	viper.SetDefault("aggregator.retry_base_delay_ms", 1000)
	viper.SetDefault("aggregator.rate_limit_per_sec", 10)

	// Signals
	viper.SetDefault("signals.cooldown_seconds", 300) // 5 minutes
	viper.SetDefault("signals.signal_queue", "signals")
	viper.SetDefault("signals.execution_queue", "executions")

	// Workers
	viper.SetDefault("workers.count", 8)
	viper.SetDefault("workers.signal_count", 1)
	viper.SetDefault("workers.job_timeout", 300) // 5 minutes
	viper.SetDefault("workers.dispatch_timeout", 120)
	viper.SetDefault("workers.poll_timeout", 5)
	viper.SetDefault("workers.max_attempts", 5)
	viper.SetDefault("workers.shutdown_deadline", 30)

	// Locks
	viper.SetDefault("locks.backend", "redis")
	viper.SetDefault("locks.ttl", 420)
	viper.SetDefault("locks.wait_timeout", 30)

	// Reaper
	viper.SetDefault("reaper.enabled", true)
	viper.SetDefault("reaper.schedule", "@every 1m")
	viper.SetDefault("reaper.stale_after", 600) // 10 minutes

	// Tracing
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.collector_url", "localhost:4317")
	viper.SetDefault("tracing.sample_rate", 1.0)

	// Secrets
	viper.SetDefault("secrets.provider", "env")
	viper.SetDefault("secrets.prefix", "rebalance-service/")

	// Events
	viper.SetDefault("events.enabled", false)
}

func overrideFromEnv() {
	// Server
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("server.port", p)
		}
	}

	// Database
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		viper.Set("database.url", dbURL)
	}

	// Redis
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		viper.Set("redis.url", redisURL)
	}

	// Aggregator
	if apiURL := os.Getenv("JUPITER_API_URL"); apiURL != "" {
		viper.Set("aggregator.base_url", apiURL)
	}
	if retries := os.Getenv("MAX_RETRIES"); retries != "" {
		if r, err := strconv.Atoi(retries); err == nil {
			viper.Set("aggregator.max_retries", r)
		}
	}

	// Signals
	if cooldown := os.Getenv("SIGNAL_COOLDOWN_SECONDS"); cooldown != "" {
		if c, err := strconv.Atoi(cooldown); err == nil {
			viper.Set("signals.cooldown_seconds", c)
		}
	}

	if env := os.Getenv("ENVIRONMENT"); env != "" {
		viper.Set("environment", env)
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		viper.Set("log_level", level)
	}
}

func validate(config *Config) error {
	if config.Database.URL == "" && (config.Database.Host == "" || config.Database.Name == "") {
		return fmt.Errorf("database configuration is incomplete")
	}

	if config.Aggregator.BaseURL == "" {
		return fmt.Errorf("aggregator base url is required")
	}

	if config.Aggregator.MaxRetries < 0 {
		return fmt.Errorf("aggregator max retries must not be negative")
	}

	if config.Signals.CooldownSeconds < 0 {
		return fmt.Errorf("signal cooldown must not be negative")
	}

	if config.Workers.Count <= 0 {
		return fmt.Errorf("worker count must be positive")
	}

	switch config.Secrets.Provider {
	case "env":
	case "aws":
		if config.Secrets.Region == "" {
			return fmt.Errorf("secrets region is required for the aws provider")
		}
	default:
		return fmt.Errorf("unsupported secrets provider %q", config.Secrets.Provider)
	}

	if config.Events.Enabled && (config.Events.Region == "" || config.Events.TopicARN == "") {
		return fmt.Errorf("events region and topic arn are required when events are enabled")
	}

	switch config.Locks.Backend {
	case "redis":
		// the lease must outlive a task plus its detached fail and publish calls
		minTTL := config.Workers.JobTimeout + 2*config.Aggregator.Timeout
		if config.Locks.TTL <= minTTL {
			return fmt.Errorf("lock ttl %ds must exceed job timeout plus twice the aggregator timeout (%ds)",
				config.Locks.TTL, minTTL)
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported lock backend %q", config.Locks.Backend)
	}

	return nil
}
