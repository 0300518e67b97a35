package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("PORT")
	os.Unsetenv("DB_PATH")
	os.Unsetenv("LLM_PROVIDER")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8600" {
		t.Errorf("default port = %q", cfg.Port)
	}
	if cfg.DBPath != "mychart.db" {
		t.Errorf("default db path = %q", cfg.DBPath)
	}
	if cfg.LLMProvider != ProviderOllama {
		t.Errorf("default provider = %q", cfg.LLMProvider)
	}
	if cfg.OllamaURL != "http://localhost:11434" {
		t.Errorf("default ollama url = %q", cfg.OllamaURL)
	}
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("LLM_PROVIDER", "gemini")
	os.Setenv("GEMINI_API_KEY", "sk-env")
	defer os.Unsetenv("LLM_PROVIDER")
	defer os.Unsetenv("GEMINI_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLMProvider != ProviderGemini || cfg.GeminiAPIKey != "sk-env" {
		t.Errorf("env not applied: %+v", cfg)
	}
}

func TestConfig_IsDev(t *testing.T) {
	c := &Config{Env: "development"}
	if !c.IsDev() {
		t.Error("expected IsDev() to return true for development")
	}

	c.Env = "production"
	if c.IsDev() {
		t.Error("expected IsDev() to return false for production")
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		Port:              "8600",
		Env:               "development",
		DBPath:            "mychart.db",
		LLMProvider:       ProviderOllama,
		OllamaURL:         "http://localhost:11434",
		LLMTimeoutSeconds: 60,
	}

	if err := base.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.LLMProvider = "openai" }},
		{"empty provider", func(c *Config) { c.LLMProvider = "" }},
		{"missing ollama url", func(c *Config) { c.OllamaURL = "" }},
		{"missing db path", func(c *Config) { c.DBPath = "" }},
		{"zero timeout", func(c *Config) { c.LLMTimeoutSeconds = 0 }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := base
			c.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("want validation error")
			}
		})
	}
}

func TestValidateGeminiWithoutKey(t *testing.T) {
	// The key may come from the cache later, so Validate alone passes.
	cfg := Config{
		DBPath:            "x.db",
		LLMProvider:       ProviderGemini,
		LLMTimeoutSeconds: 60,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("gemini without env key should validate: %v", err)
	}
}

func TestResolveGeminiKeyCachesAndLoads(t *testing.T) {
	ks := NewKeyStore(filepath.Join(t.TempDir(), ".gemini_api_key.cache"))

	withKey := Config{GeminiAPIKey: "sk-123"}
	key, err := withKey.ResolveGeminiKey(ks)
	if err != nil {
		t.Fatalf("ResolveGeminiKey: %v", err)
	}
	if key != "sk-123" {
		t.Errorf("key = %q", key)
	}

	// A later run without the env var finds the cached key.
	withoutKey := Config{}
	key, err = withoutKey.ResolveGeminiKey(ks)
	if err != nil {
		t.Fatalf("ResolveGeminiKey from cache: %v", err)
	}
	if key != "sk-123" {
		t.Errorf("cached key = %q", key)
	}
}

func TestResolveGeminiKeyMissingEverywhere(t *testing.T) {
	ks := NewKeyStore(filepath.Join(t.TempDir(), "absent.cache"))
	cfg := Config{}
	if _, err := cfg.ResolveGeminiKey(ks); err == nil {
		t.Fatal("want error when no key anywhere")
	}
}

func TestKeyStoreRoundTrip(t *testing.T) {
	ks := NewKeyStore(filepath.Join(t.TempDir(), "sub", "key.cache"))

	got, err := ks.Load()
	if err != nil {
		t.Fatalf("Load before Save: %v", err)
	}
	if got != "" {
		t.Errorf("empty store returned %q", got)
	}

	if err := ks.Save("secret\n"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err = ks.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != "secret" {
		t.Errorf("Load = %q, want trimmed secret", got)
	}
}
