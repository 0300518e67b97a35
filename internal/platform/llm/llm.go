// Package llm is the text-generation transport behind the advisor pipeline.
// Two backends are supported: Google's Gemini generateContent API and a local
// Ollama server. The pipeline only ever sees the Client interface.
package llm

import (
	"context"
	"net/http"
	"time"
)

// Client generates text from a prompt. GenerateJSON asks the backend to emit
// a bare JSON document; callers still validate the payload.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
