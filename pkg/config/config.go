package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Session store backends
const (
	SessionBackendFile   = "file"
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

// Config represents the application configuration
type Config struct {
	API     APIConfig     `env:", prefix=API_"`
	Session SessionConfig `env:", prefix=SESSION_"`
	Redis   RedisConfig   `env:", prefix=REDIS_"`
	NATS    NATSConfig    `env:", prefix=NATS_"`
	Sandbox SandboxConfig `env:", prefix=SANDBOX_"`
	Logging LoggingConfig `env:", prefix=LOG_"`
}

// APIConfig holds the backend origins and request policy
type APIConfig struct {
	BaseURL        string        `env:"BASE_URL, default=http://localhost:8080"`
	IBBaseURL      string        `env:"IB_BASE_URL, default=http://localhost:8080"`
	Timeout        time.Duration `env:"TIMEOUT, default=30s"`
	RefreshTimeout time.Duration `env:"REFRESH_TIMEOUT, default=15s"`
	RateLimit      float64       `env:"RATE_LIMIT, default=0"` // requests per second, 0 disables
	RateBurst      int           `env:"RATE_BURST, default=5"`
	LoginURL       string        `env:"LOGIN_URL, default=/login"`
}

// SessionConfig holds the persisted session store configuration
type SessionConfig struct {
	Backend   string        `env:"BACKEND, default=file"`
	Path      string        `env:"PATH"` // file backend, defaults to ~/.broker-eyes/session.json
	KeyPrefix string        `env:"KEY_PREFIX, default=broker-eyes:"`
	TTL       time.Duration `env:"TTL, default=720h"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host         string        `env:"HOST, default=localhost"`
	Port         int           `env:"PORT, default=6379"`
	Password     string        `env:"PASSWORD"`
	DB           int           `env:"DB, default=0"`
	PoolSize     int           `env:"POOL_SIZE, default=10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS, default=2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT, default=5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT, default=3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT, default=3s"`
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	Enabled       bool          `env:"ENABLED, default=false"`
	URL           string        `env:"URL, default=nats://localhost:4222"`
	SubjectPrefix string        `env:"SUBJECT_PREFIX, default=broker-eyes"`
	MaxReconnect  int           `env:"MAX_RECONNECT, default=10"`
	ReconnectWait time.Duration `env:"RECONNECT_WAIT, default=2s"`
}

// SandboxConfig holds the local fake backend configuration
type SandboxConfig struct {
	Host           string        `env:"HOST, default=127.0.0.1"`
	Port           int           `env:"PORT, default=8080"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL, default=15m"`
	UserEmail      string        `env:"USER_EMAIL, default=admin@brokereyes.local"`
	UserPassword   string        `env:"USER_PASSWORD, default=admin123"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `env:"LEVEL, default=info"`
	Format string `env:"FORMAT, default=text"`
	Output string `env:"OUTPUT, default=stderr"`
}

// Load loads configuration from environment variables using go-envconfig
func Load() (*Config, error) {
	return load(&envconfig.Config{Lookuper: envconfig.OsLookuper()})
}

// LoadFrom loads configuration from the given key/value map instead of the
// process environment
func LoadFrom(env map[string]string) (*Config, error) {
	return load(&envconfig.Config{Lookuper: envconfig.MapLookuper(env)})
}

func load(ec *envconfig.Config) (*Config, error) {
	var cfg Config
	ec.Target = &cfg

	if err := envconfig.ProcessWith(context.Background(), ec); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if cfg.Session.Path == "" {
		cfg.Session.Path = defaultSessionPath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	for name, raw := range map[string]string{
		"API base URL":    c.API.BaseURL,
		"IB API base URL": c.API.IBBaseURL,
	} {
		if raw == "" {
			return fmt.Errorf("%s is required", name)
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid %s: %q", name, raw)
		}
	}

	if c.API.Timeout <= 0 {
		return fmt.Errorf("invalid API timeout: %s", c.API.Timeout)
	}
	if c.API.RateLimit < 0 {
		return fmt.Errorf("invalid API rate limit: %v", c.API.RateLimit)
	}

	switch c.Session.Backend {
	case SessionBackendFile:
		if c.Session.Path == "" {
			return fmt.Errorf("session path is required for the file backend")
		}
	case SessionBackendMemory:
	case SessionBackendRedis:
		if c.Redis.Host == "" {
			return fmt.Errorf("Redis host is required for the redis session backend")
		}
	default:
		return fmt.Errorf("unknown session backend: %q", c.Session.Backend)
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("NATS URL is required when NATS is enabled")
	}

	if c.Sandbox.Port <= 0 || c.Sandbox.Port > 65535 {
		return fmt.Errorf("invalid sandbox port: %d", c.Sandbox.Port)
	}

	return nil
}

// GetRedisAddr returns Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// GetSandboxAddr returns the sandbox listen address
func (c *Config) GetSandboxAddr() string {
	return fmt.Sprintf("%s:%d", c.Sandbox.Host, c.Sandbox.Port)
}

func defaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".broker-eyes", "session.json")
	}
	return filepath.Join(home, ".broker-eyes", "session.json")
}
