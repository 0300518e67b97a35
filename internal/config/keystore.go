package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// KeyStore caches a single opaque secret in a dot-file so it survives
// restarts without living in the environment. File mode is restricted to the
// owner.
type KeyStore struct {
	path string
}

func NewKeyStore(path string) *KeyStore {
	return &KeyStore{path: path}
}

// Load returns the cached secret, or "" when no cache exists yet.
func (ks *KeyStore) Load() (string, error) {
	data, err := os.ReadFile(ks.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read key cache: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (ks *KeyStore) Save(secret string) error {
	if dir := filepath.Dir(ks.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create key cache directory: %w", err)
		}
	}
	if err := os.WriteFile(ks.path, []byte(secret), 0o600); err != nil {
		return fmt.Errorf("write key cache: %w", err)
	}
	return nil
}
