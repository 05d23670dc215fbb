package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Fixed upstream parameters. Every generation uses the same model,
// temperature and client title.
const (
	Model       = "openai/gpt-3.5-turbo"
	Temperature = 0.7
	ClientTitle = "DayTale"
)

// RedactedPlaceholder replaces credentials in text returned to callers
const RedactedPlaceholder = "[REDACTED]"

// ErrNotConfigured is returned when the provider has no credential.
var ErrNotConfigured = errors.New("upstream API key not configured")

// Provider defines the interface for the upstream text-generation service
type Provider interface {
	// Complete sends one system turn and one user turn and returns the
	// generated text. It performs exactly one upstream call and never retries.
	Complete(ctx context.Context, request *ChatRequest) (*ChatResponse, error)

	// Available reports whether the provider holds a credential
	Available() bool

	// Name returns the provider name (e.g., "openrouter")
	Name() string
}

// ChatRequest is the two-turn conversation sent upstream
type ChatRequest struct {
	SystemPrompt string
	UserPrompt   string
}

// ChatResponse contains the extracted generation.
// Text is taken from the first choice as returned by the model; callers
// decide whether an empty Text is an error.
type ChatResponse struct {
	Text  string
	Model string
	Usage Usage
}

// Usage holds token counts reported by the upstream
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// UpstreamError is a non-success HTTP status returned by the upstream
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Detail())
}

// Detail returns the upstream error body, or the status text when the body is empty
func (e *UpstreamError) Detail() string {
	if e.Body != "" {
		return e.Body
	}
	if text := http.StatusText(e.StatusCode); text != "" {
		return text
	}
	return fmt.Sprintf("status %d", e.StatusCode)
}
