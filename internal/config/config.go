package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Auth      AuthConfig
	Email     EmailConfig
	SMTP      SMTPConfig
	App       AppConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Rules     RulesConfig
	Outbox    OutboxConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

// Addr returns host:port for net.Listen.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type StorageConfig struct {
	Driver      string // "sqlite" or "postgres"
	DataDir     string
	PostgresDSN string
}

type AuthConfig struct {
	JWTSecret string
}

type EmailConfig struct {
	ResendAPIKey string
	FromAddress  string
	FromName     string
	OwnerAddress string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

type AppConfig struct {
	URL string
}

type RedisConfig struct {
	Addr string
}

type RateLimitConfig struct {
	FeedbackPerMinute int
}

type RulesConfig struct {
	Path string
}

type OutboxConfig struct {
	PollInterval time.Duration
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server:    ServerConfig{Host: "127.0.0.1", Port: 4100},
		Storage:   StorageConfig{Driver: "sqlite", DataDir: defaultDataDir()},
		Email:     EmailConfig{FromName: "特定技能 受入れ管理"},
		SMTP:      SMTPConfig{Host: "smtp.gmail.com", Port: 587},
		App:       AppConfig{URL: "http://localhost:4100"},
		RateLimit: RateLimitConfig{FeedbackPerMinute: 3},
		Outbox:    OutboxConfig{PollInterval: 2 * time.Second},
		Log:       LogConfig{Level: "info"},
	}
}

// Load reads configuration in increasing precedence: defaults, the JSON file
// at $XDG_CONFIG_HOME/sswtrack/config.json, then SSWTRACK_* environment
// variables. A .env file in the working directory is loaded into the
// environment first; variables already set are not overwritten.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Storage.Driver {
	case "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("missing required config: storage.postgres_dsn (set SSWTRACK_STORAGE_POSTGRES_DSN) when storage.driver is postgres")
		}
	default:
		return fmt.Errorf("invalid storage.driver %q: want sqlite or postgres", c.Storage.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.RateLimit.FeedbackPerMinute <= 0 {
		return fmt.Errorf("invalid ratelimit.feedback_per_minute %d: must be positive", c.RateLimit.FeedbackPerMinute)
	}
	if c.Outbox.PollInterval <= 0 {
		return fmt.Errorf("invalid outbox.poll_interval %s: must be positive", c.Outbox.PollInterval)
	}
	return nil
}

// ValidateServe checks the settings only the server needs.
func (c Config) ValidateServe() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("missing required config: auth.jwt_secret. Set it via environment variable SSWTRACK_AUTH_JWT_SECRET")
	}
	return nil
}

func xdgDir(env, fallback string) string {
	dir := os.Getenv(env)
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, fallback)
		} else {
			dir = "."
		}
	}
	return dir
}

func defaultDataDir() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share")), "sswtrack")
}

func configFilePath() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "sswtrack", "config.json")
}
