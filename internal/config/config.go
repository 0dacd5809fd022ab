package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Log       LogConfig
	Reminders RemindersConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Accounts  AccountsConfig
	Notion    NotionConfig
}

type ServerConfig struct {
	Port int
	// TrustedProxies is a comma-separated list of peer addresses whose
	// X-Forwarded-For header is honored.
	TrustedProxies string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type RemindersConfig struct {
	Interval      string
	RetentionDays int
	DedupWindow   string
}

type AuthConfig struct {
	APIToken  string
	JWTSecret string
	TokenTTL  string
}

type RateLimitConfig struct {
	RedisAddr string
	AuthLimit int
}

type AccountsConfig struct {
	PostgresURL string
}

type NotionConfig struct {
	Token      string
	DatabaseID string
}

func defaults() Config {
	return Config{
		Server:  ServerConfig{Port: 4100},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Log:     LogConfig{Level: "info"},
		Reminders: RemindersConfig{
			Interval:      "1m",
			RetentionDays: 30,
			DedupWindow:   "1m",
		},
		Auth:      AuthConfig{TokenTTL: "24h"},
		RateLimit: RateLimitConfig{AuthLimit: 10},
	}
}

// Load reads configuration from a .env file in the working directory, the
// JSON config file at $XDG_CONFIG_HOME/applytrack/config.json, environment
// variables (APPLYTRACK_*) and the secrets file, in that order of increasing
// precedence for everything but secrets. Secrets are read from the
// environment first and fall back to the secrets file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}
	return loadWith(newPlatformBackend(), NewKeychain())
}

func loadWith(b ConfigBackend, kc Keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applyKeychain(&cfg, kc)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var problems []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	for key, v := range map[string]string{
		"reminders.interval":     c.Reminders.Interval,
		"reminders.dedup_window": c.Reminders.DedupWindow,
		"auth.token_ttl":         c.Auth.TokenTTL,
	} {
		if d, err := time.ParseDuration(v); err != nil || d <= 0 {
			problems = append(problems, fmt.Sprintf("%s %q is not a positive duration", key, v))
		}
	}
	if c.Reminders.RetentionDays < 0 {
		problems = append(problems, "reminders.retention_days must not be negative")
	}
	if (c.Notion.Token == "") != (c.Notion.DatabaseID == "") {
		problems = append(problems, "notion.token and notion.database_id must be set together")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ReminderInterval is the dispatcher scan interval.
func (c Config) ReminderInterval() time.Duration {
	return mustDuration(c.Reminders.Interval, time.Minute)
}

// ReminderRetention is how long sent reminders are kept. Zero keeps them.
func (c Config) ReminderRetention() time.Duration {
	return time.Duration(c.Reminders.RetentionDays) * 24 * time.Hour
}

// DedupWindow is the tolerance for treating two same-typed events as one.
func (c Config) DedupWindow() time.Duration {
	return mustDuration(c.Reminders.DedupWindow, time.Minute)
}

// TrustedProxies returns the configured proxy addresses.
func (c Config) TrustedProxies() []string {
	var out []string
	for _, p := range strings.Split(c.Server.TrustedProxies, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// TokenTTL is the lifetime of user session tokens.
func (c Config) TokenTTL() time.Duration {
	return mustDuration(c.Auth.TokenTTL, 24*time.Hour)
}

func mustDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
