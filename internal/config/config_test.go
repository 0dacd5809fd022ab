package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// mockKeychain is a test double for the Keychain interface.
type mockKeychain struct {
	values map[string]string
	err    error
}

func (m *mockKeychain) Get(service, account string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.values[account]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (m *mockKeychain) Set(service, account, value string) error {
	if m.err != nil {
		return m.err
	}
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[account] = value
	return nil
}

func writeTempConfig(t *testing.T, content string) *fileBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if content != "" {
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return newFileBackend(path)
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

// TestDefaults verifies all default values are applied when no config file exists.
func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(writeTempConfig(t, ""), &mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.ReminderInterval() != time.Minute {
		t.Errorf("ReminderInterval = %v, want 1m", cfg.ReminderInterval())
	}
	if cfg.ReminderRetention() != 30*24*time.Hour {
		t.Errorf("ReminderRetention = %v, want 720h", cfg.ReminderRetention())
	}
	if cfg.DedupWindow() != time.Minute {
		t.Errorf("DedupWindow = %v, want 1m", cfg.DedupWindow())
	}
	if cfg.TokenTTL() != 24*time.Hour {
		t.Errorf("TokenTTL = %v, want 24h", cfg.TokenTTL())
	}
	if cfg.RateLimit.AuthLimit != 10 {
		t.Errorf("RateLimit.AuthLimit = %d, want 10", cfg.RateLimit.AuthLimit)
	}
	if !strings.HasSuffix(cfg.Storage.DataDir, appName) {
		t.Errorf("Storage.DataDir = %q, want suffix %q", cfg.Storage.DataDir, appName)
	}
}

// TestFileParsing verifies that fields are read from the JSON config file.
func TestFileParsing(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{
  "server.port": 5000,
  "storage.data_dir": "/tmp/applytrack-test",
  "log.level": "debug",
  "reminders.interval": "30s",
  "reminders.retention_days": 7,
  "ratelimit.redis_addr": "localhost:6379"
}`)

	cfg, err := loadWith(b, &mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Storage.DataDir != "/tmp/applytrack-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if cfg.ReminderInterval() != 30*time.Second {
		t.Errorf("ReminderInterval = %v", cfg.ReminderInterval())
	}
	if cfg.Reminders.RetentionDays != 7 {
		t.Errorf("RetentionDays = %d", cfg.Reminders.RetentionDays)
	}
	if cfg.RateLimit.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q", cfg.RateLimit.RedisAddr)
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{"server.port": 5000, "log.level": "warn"}`)

	t.Setenv("APPLYTRACK_SERVER_PORT", "6000")
	t.Setenv("APPLYTRACK_LOG_LEVEL", "error")

	cfg, err := loadWith(b, &mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("Log.Level = %q, want error", cfg.Log.Level)
	}
}

func TestTrustedProxies(t *testing.T) {
	clearEnv(t)
	t.Setenv("APPLYTRACK_SERVER_TRUSTED_PROXIES", " 10.0.0.1, ,192.168.1.2 ")

	cfg, err := loadWith(writeTempConfig(t, ""), &mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := cfg.TrustedProxies()
	if len(got) != 2 || got[0] != "10.0.0.1" || got[1] != "192.168.1.2" {
		t.Errorf("TrustedProxies = %q", got)
	}

	clearEnv(t)
	cfg, _ = loadWith(writeTempConfig(t, ""), &mockKeychain{})
	if got := cfg.TrustedProxies(); len(got) != 0 {
		t.Errorf("default TrustedProxies = %q, want none", got)
	}
}

// TestEnvOverride_BadInt keeps the prior value when an integer env var is malformed.
func TestEnvOverride_BadInt(t *testing.T) {
	clearEnv(t)
	t.Setenv("APPLYTRACK_SERVER_PORT", "not-a-port")

	cfg, err := loadWith(writeTempConfig(t, ""), &mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
}

// TestKeychainFallback verifies the secrets store is consulted when env is empty.
func TestKeychainFallback(t *testing.T) {
	clearEnv(t)
	kc := &mockKeychain{values: map[string]string{
		"auth.api_token":  "kc-token",
		"auth.jwt_secret": "kc-secret",
	}}

	cfg, err := loadWith(writeTempConfig(t, ""), kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Auth.APIToken != "kc-token" {
		t.Errorf("APIToken = %q, want kc-token", cfg.Auth.APIToken)
	}
	if cfg.Auth.JWTSecret != "kc-secret" {
		t.Errorf("JWTSecret = %q, want kc-secret", cfg.Auth.JWTSecret)
	}

	t.Setenv("APPLYTRACK_API_TOKEN", "env-token")
	cfg, err = loadWith(writeTempConfig(t, ""), kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Auth.APIToken != "env-token" {
		t.Errorf("APIToken = %q, env should win over secrets file", cfg.Auth.APIToken)
	}
}

// TestSecretsIgnoredInConfigFile verifies secrets are never read from the plain config file.
func TestSecretsIgnoredInConfigFile(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{"auth.api_token": "leaked"}`)

	cfg, err := loadWith(b, &mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Auth.APIToken != "" {
		t.Errorf("APIToken = %q, want empty", cfg.Auth.APIToken)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad port", map[string]string{"APPLYTRACK_SERVER_PORT": "70000"}, "server.port"},
		{"bad interval", map[string]string{"APPLYTRACK_REMINDERS_INTERVAL": "soon"}, "reminders.interval"},
		{"negative retention", map[string]string{"APPLYTRACK_REMINDERS_RETENTION_DAYS": "-1"}, "retention_days"},
		{"notion half configured", map[string]string{"APPLYTRACK_NOTION_TOKEN": "tok"}, "notion"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := loadWith(writeTempConfig(t, ""), &mockKeychain{})
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestSetKey(t *testing.T) {
	b := writeTempConfig(t, "")
	kc := &mockKeychain{}

	if err := setKeyWith(b, kc, "server.port", "4200"); err != nil {
		t.Fatalf("set port: %v", err)
	}
	if err := setKeyWith(b, kc, "reminders.interval", "5m"); err != nil {
		t.Fatalf("set interval: %v", err)
	}
	if err := setKeyWith(b, kc, "notion.token", "secret_abc"); err != nil {
		t.Fatalf("set secret: %v", err)
	}

	if err := setKeyWith(b, kc, "server.port", "abc"); err == nil {
		t.Error("expected error for non-integer port")
	}
	if err := setKeyWith(b, kc, "reminders.interval", "often"); err == nil {
		t.Error("expected error for bad duration")
	}
	if err := setKeyWith(b, kc, "no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}

	// Reload from disk to confirm persistence.
	reloaded := newFileBackend(b.path)
	if v, ok, _ := reloaded.GetInt("server.port"); !ok || v != 4200 {
		t.Errorf("server.port = %d, %v", v, ok)
	}
	if v, ok, _ := reloaded.GetString("reminders.interval"); !ok || v != "5m" {
		t.Errorf("reminders.interval = %q, %v", v, ok)
	}
	if _, ok, _ := reloaded.GetString("notion.token"); ok {
		t.Error("secret must not be written to the config file")
	}
	if kc.values["notion.token"] != "secret_abc" {
		t.Errorf("keychain notion.token = %q", kc.values["notion.token"])
	}
}

func TestShowAll_MasksSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Auth.APIToken = "super-secret"

	for _, info := range ShowAll(cfg) {
		if strings.Contains(info.Value, "super-secret") {
			t.Fatalf("%s leaked secret value", info.Key)
		}
		if info.Key == "auth.api_token" && info.Value != "(set)" {
			t.Errorf("auth.api_token = %q, want (set)", info.Value)
		}
		if info.Key == "notion.token" && info.Value != "(unset)" {
			t.Errorf("notion.token = %q, want (unset)", info.Value)
		}
	}
	if len(ValidKeys()) != len(specs) {
		t.Errorf("ValidKeys = %d, want %d", len(ValidKeys()), len(specs))
	}
}

func TestFileKeychain_GetOrCreate(t *testing.T) {
	kc := fileKeychain{path: filepath.Join(t.TempDir(), "secrets.json")}

	tok, err := GetAPIToken(kc)
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	if len(tok) != 64 {
		t.Errorf("token length = %d, want 64", len(tok))
	}
	again, err := GetAPIToken(kc)
	if err != nil {
		t.Fatalf("GetAPIToken again: %v", err)
	}
	if again != tok {
		t.Error("token should be stable across calls")
	}

	secret, err := GetJWTSecret(kc)
	if err != nil {
		t.Fatalf("GetJWTSecret: %v", err)
	}
	if secret == tok {
		t.Error("JWT secret must differ from API token")
	}

	info, err := os.Stat(kc.path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("secrets file mode = %v, want 0600", info.Mode().Perm())
	}
}
