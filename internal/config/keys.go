package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "SSWTRACK_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "SSWTRACK_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.driver", typ: kString, env: "SSWTRACK_STORAGE_DRIVER",
		apply:   func(cfg *Config, v any) { cfg.Storage.Driver = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Driver },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SSWTRACK_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.postgres_dsn", typ: kString, env: "SSWTRACK_STORAGE_POSTGRES_DSN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Storage.PostgresDSN = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.PostgresDSN },
	},
	{
		key: "auth.jwt_secret", typ: kString, env: "SSWTRACK_AUTH_JWT_SECRET",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Auth.JWTSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.JWTSecret },
	},
	{
		key: "email.resend_api_key", typ: kString, env: "SSWTRACK_EMAIL_RESEND_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Email.ResendAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Email.ResendAPIKey },
	},
	{
		key: "email.from_address", typ: kString, env: "SSWTRACK_EMAIL_FROM_ADDRESS",
		apply:   func(cfg *Config, v any) { cfg.Email.FromAddress = v.(string) },
		extract: func(cfg Config) any { return cfg.Email.FromAddress },
	},
	{
		key: "email.from_name", typ: kString, env: "SSWTRACK_EMAIL_FROM_NAME",
		apply:   func(cfg *Config, v any) { cfg.Email.FromName = v.(string) },
		extract: func(cfg Config) any { return cfg.Email.FromName },
	},
	{
		key: "email.owner_address", typ: kString, env: "SSWTRACK_EMAIL_OWNER_ADDRESS",
		apply:   func(cfg *Config, v any) { cfg.Email.OwnerAddress = v.(string) },
		extract: func(cfg Config) any { return cfg.Email.OwnerAddress },
	},
	{
		key: "smtp.host", typ: kString, env: "SSWTRACK_SMTP_HOST",
		apply:   func(cfg *Config, v any) { cfg.SMTP.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.SMTP.Host },
	},
	{
		key: "smtp.port", typ: kInt, env: "SSWTRACK_SMTP_PORT",
		apply:   func(cfg *Config, v any) { cfg.SMTP.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.SMTP.Port },
	},
	{
		key: "smtp.username", typ: kString, env: "SSWTRACK_SMTP_USERNAME",
		apply:   func(cfg *Config, v any) { cfg.SMTP.Username = v.(string) },
		extract: func(cfg Config) any { return cfg.SMTP.Username },
	},
	{
		key: "smtp.password", typ: kString, env: "SSWTRACK_SMTP_PASSWORD",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.SMTP.Password = v.(string) },
		extract: func(cfg Config) any { return cfg.SMTP.Password },
	},
	{
		key: "app.url", typ: kString, env: "SSWTRACK_APP_URL",
		apply:   func(cfg *Config, v any) { cfg.App.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.App.URL },
	},
	{
		key: "redis.addr", typ: kString, env: "SSWTRACK_REDIS_ADDR",
		apply:   func(cfg *Config, v any) { cfg.Redis.Addr = v.(string) },
		extract: func(cfg Config) any { return cfg.Redis.Addr },
	},
	{
		key: "ratelimit.feedback_per_minute", typ: kInt, env: "SSWTRACK_RATELIMIT_FEEDBACK_PER_MINUTE",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.FeedbackPerMinute = v.(int) },
		extract: func(cfg Config) any { return cfg.RateLimit.FeedbackPerMinute },
	},
	{
		key: "rules.path", typ: kString, env: "SSWTRACK_RULES_PATH",
		apply:   func(cfg *Config, v any) { cfg.Rules.Path = v.(string) },
		extract: func(cfg Config) any { return cfg.Rules.Path },
	},
	{
		key: "outbox.poll_interval", typ: kDuration, env: "SSWTRACK_OUTBOX_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Outbox.PollInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Outbox.PollInterval },
	},
	{
		key: "log.level", typ: kString, env: "SSWTRACK_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				d, err := time.ParseDuration(v)
				if err != nil {
					return fmt.Errorf("invalid duration for %s: %w", s.key, err)
				}
				s.apply(cfg, d)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
