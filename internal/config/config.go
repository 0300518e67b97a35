package config

import (
	"fmt"

	"github.com/spf13/viper"
)

const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

type Config struct {
	Port              string `mapstructure:"PORT"`
	Env               string `mapstructure:"ENV"`
	DBPath            string `mapstructure:"DB_PATH"`
	LLMProvider       string `mapstructure:"LLM_PROVIDER"`
	GeminiAPIKey      string `mapstructure:"GEMINI_API_KEY"`
	GeminiModel       string `mapstructure:"GEMINI_MODEL"`
	OllamaURL         string `mapstructure:"OLLAMA_URL"`
	OllamaModel       string `mapstructure:"OLLAMA_MODEL"`
	ConversationsDir  string `mapstructure:"CONVERSATIONS_DIR"`
	LLMTimeoutSeconds int    `mapstructure:"LLM_TIMEOUT_SECONDS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8600")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_PATH", "mychart.db")
	v.SetDefault("LLM_PROVIDER", ProviderOllama)
	v.SetDefault("GEMINI_MODEL", "gemini-2.5-flash")
	v.SetDefault("OLLAMA_URL", "http://localhost:11434")
	v.SetDefault("OLLAMA_MODEL", "llama3")
	v.SetDefault("CONVERSATIONS_DIR", "conversations")
	v.SetDefault("LLM_TIMEOUT_SECONDS", 120)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DB_PATH")
	v.BindEnv("LLM_PROVIDER")
	v.BindEnv("GEMINI_API_KEY")
	v.BindEnv("GEMINI_MODEL")
	v.BindEnv("OLLAMA_URL")
	v.BindEnv("OLLAMA_MODEL")
	v.BindEnv("CONVERSATIONS_DIR")
	v.BindEnv("LLM_TIMEOUT_SECONDS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run. A Gemini setup
// without an API key is allowed here because the key may still come from the
// key cache; resolve with ResolveGeminiKey before building the client.
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case ProviderGemini, ProviderOllama:
	default:
		return fmt.Errorf("LLM_PROVIDER must be %q or %q, got %q", ProviderGemini, ProviderOllama, c.LLMProvider)
	}
	if c.LLMProvider == ProviderOllama && c.OllamaURL == "" {
		return fmt.Errorf("OLLAMA_URL is required when LLM_PROVIDER is %q", ProviderOllama)
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if c.LLMTimeoutSeconds <= 0 {
		return fmt.Errorf("LLM_TIMEOUT_SECONDS must be positive, got %d", c.LLMTimeoutSeconds)
	}
	return nil
}

// ResolveGeminiKey returns the Gemini API key from the environment, falling
// back to the key cache. A key from the environment refreshes the cache so
// later runs can omit it.
func (c *Config) ResolveGeminiKey(ks *KeyStore) (string, error) {
	if c.GeminiAPIKey != "" {
		if err := ks.Save(c.GeminiAPIKey); err != nil {
			return "", fmt.Errorf("cache gemini key: %w", err)
		}
		return c.GeminiAPIKey, nil
	}
	key, err := ks.Load()
	if err != nil {
		return "", fmt.Errorf("load cached gemini key: %w", err)
	}
	if key == "" {
		return "", fmt.Errorf("GEMINI_API_KEY is required when LLM_PROVIDER is %q and no cached key exists", ProviderGemini)
	}
	return key, nil
}
