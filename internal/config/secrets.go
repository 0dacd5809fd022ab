package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Keychain stores secrets outside the plain config file.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// fileKeychain keeps secrets in a 0600 JSON file under XDG_DATA_HOME.
type fileKeychain struct {
	path string
}

// NewKeychain returns the secret store used by the server and CLI.
func NewKeychain() Keychain {
	return fileKeychain{path: secretsFilePath()}
}

func secretsFilePath() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, appName, "secrets.json")
}

func (k fileKeychain) read() (map[string]map[string]string, error) {
	data, err := os.ReadFile(k.path)
	if err != nil {
		return nil, err
	}
	var secrets map[string]map[string]string
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	return secrets, nil
}

func (k fileKeychain) Get(service, account string) (string, error) {
	secrets, err := k.read()
	if err != nil {
		return "", fmt.Errorf("keychain not available: %w", err)
	}
	val, ok := secrets[service][account]
	if !ok {
		return "", fmt.Errorf("account %q not found in service %q", account, service)
	}
	return val, nil
}

func (k fileKeychain) Set(service, account, value string) error {
	secrets, _ := k.read()
	if secrets == nil {
		secrets = make(map[string]map[string]string)
	}
	if secrets[service] == nil {
		secrets[service] = make(map[string]string)
	}
	secrets[service][account] = value

	if err := os.MkdirAll(filepath.Dir(k.path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(k.path, out, 0o600)
}

const (
	accountAPIToken  = "auth.api_token"
	accountJWTSecret = "auth.jwt_secret"
)

// GetAPIToken returns the bearer token guarding the HTTP API, creating and
// storing one on first use.
func GetAPIToken(kc Keychain) (string, error) {
	return getOrCreate(kc, accountAPIToken)
}

// GetJWTSecret returns the key used to sign session tokens, creating and
// storing one on first use.
func GetJWTSecret(kc Keychain) (string, error) {
	return getOrCreate(kc, accountJWTSecret)
}

func getOrCreate(kc Keychain, account string) (string, error) {
	if v, err := kc.Get(appName, account); err == nil && v != "" {
		return v, nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating %s: %w", account, err)
	}
	v := hex.EncodeToString(buf)
	if err := kc.Set(appName, account, v); err != nil {
		return "", fmt.Errorf("storing %s: %w", account, err)
	}
	return v, nil
}
