package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
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
		key: "server.port", typ: kInt, env: "APPLYTRACK_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.trusted_proxies", typ: kString, env: "APPLYTRACK_SERVER_TRUSTED_PROXIES",
		apply:   func(cfg *Config, v any) { cfg.Server.TrustedProxies = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.TrustedProxies },
	},
	{
		key: "storage.data_dir", typ: kString, env: "APPLYTRACK_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "APPLYTRACK_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "reminders.interval", typ: kString, env: "APPLYTRACK_REMINDERS_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Reminders.Interval = v.(string) },
		extract: func(cfg Config) any { return cfg.Reminders.Interval },
	},
	{
		key: "reminders.retention_days", typ: kInt, env: "APPLYTRACK_REMINDERS_RETENTION_DAYS",
		apply:   func(cfg *Config, v any) { cfg.Reminders.RetentionDays = v.(int) },
		extract: func(cfg Config) any { return cfg.Reminders.RetentionDays },
	},
	{
		key: "reminders.dedup_window", typ: kString, env: "APPLYTRACK_REMINDERS_DEDUP_WINDOW",
		apply:   func(cfg *Config, v any) { cfg.Reminders.DedupWindow = v.(string) },
		extract: func(cfg Config) any { return cfg.Reminders.DedupWindow },
	},
	{
		key: "auth.token_ttl", typ: kString, env: "APPLYTRACK_AUTH_TOKEN_TTL",
		apply:   func(cfg *Config, v any) { cfg.Auth.TokenTTL = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.TokenTTL },
	},
	{
		key: "auth.api_token", typ: kString, env: "APPLYTRACK_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Auth.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.APIToken },
	},
	{
		key: "auth.jwt_secret", typ: kString, env: "APPLYTRACK_JWT_SECRET",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Auth.JWTSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.JWTSecret },
	},
	{
		key: "ratelimit.redis_addr", typ: kString, env: "APPLYTRACK_RATELIMIT_REDIS_ADDR",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.RedisAddr = v.(string) },
		extract: func(cfg Config) any { return cfg.RateLimit.RedisAddr },
	},
	{
		key: "ratelimit.auth_limit", typ: kInt, env: "APPLYTRACK_RATELIMIT_AUTH_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.RateLimit.AuthLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.RateLimit.AuthLimit },
	},
	{
		key: "accounts.postgres_url", typ: kString, env: "APPLYTRACK_POSTGRES_URL",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Accounts.PostgresURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Accounts.PostgresURL },
	},
	{
		key: "notion.token", typ: kString, env: "APPLYTRACK_NOTION_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Notion.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Notion.Token },
	},
	{
		key: "notion.database_id", typ: kString, env: "APPLYTRACK_NOTION_DATABASE_ID",
		apply:   func(cfg *Config, v any) { cfg.Notion.DatabaseID = v.(string) },
		extract: func(cfg Config) any { return cfg.Notion.DatabaseID },
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
		}
	}
}

// applyKeychain fills secrets that the environment left empty.
func applyKeychain(cfg *Config, kc Keychain) {
	if kc == nil {
		return
	}
	for _, s := range specs {
		if !s.secret || s.extract(*cfg) != "" {
			continue
		}
		if v, err := kc.Get(appName, s.key); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}
