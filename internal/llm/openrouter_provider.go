package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"
	"github.com/openai/openai-go"
)

const (
	providerNameOpenRouter = "openrouter"
	defaultBaseURL         = "https://openrouter.ai/api/v1"
	defaultSite            = "https://vercel.app"
	chatCompletionsPath    = "/chat/completions"

	// Upper bound on how much of an upstream response we read
	maxResponseBytes = 4 << 20
	// Upstream error bodies are relayed to callers; keep them short
	maxErrorBodyChars = 1000
)

// OpenRouterOptions configures an OpenRouterProvider
type OpenRouterOptions struct {
	APIKey  string
	BaseURL string // defaults to https://openrouter.ai/api/v1
	Site    string // HTTP-Referer value, defaults to https://vercel.app
	Timeout time.Duration
	// HTTPClient overrides the client used for upstream calls (tests)
	HTTPClient *http.Client
}

// OpenRouterProvider implements Provider against OpenRouter's
// OpenAI-compatible chat completions endpoint
type OpenRouterProvider struct {
	apiKey  string
	baseURL string
	site    string
	timeout time.Duration
	client  *http.Client
}

// NewOpenRouterProvider creates a new OpenRouter provider
func NewOpenRouterProvider(opts OpenRouterOptions) *OpenRouterProvider {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	site := opts.Site
	if site == "" {
		site = defaultSite
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &OpenRouterProvider{
		apiKey:  opts.APIKey,
		baseURL: baseURL,
		site:    site,
		timeout: opts.Timeout,
		client:  client,
	}
}

// Name returns the provider name
func (p *OpenRouterProvider) Name() string {
	return providerNameOpenRouter
}

// Available reports whether an API key is configured
func (p *OpenRouterProvider) Available() bool {
	return p.apiKey != ""
}

// Complete performs a single chat completion call
func (p *OpenRouterProvider) Complete(ctx context.Context, request *ChatRequest) (*ChatResponse, error) {
	if !p.Available() {
		return nil, ErrNotConfigured
	}

	transaction := sentry.StartTransaction(ctx, "openrouter.chat_completion")
	defer transaction.Finish()
	transaction.SetTag("model", Model)
	transaction.SetTag("provider", providerNameOpenRouter)
	ctx = transaction.Context()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	body, err := json.Marshal(buildParams(request))
	if err != nil {
		return nil, fmt.Errorf("openrouter: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+chatCompletionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openrouter: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HTTP-Referer", p.site)
	req.Header.Set("X-Title", ClientTitle)

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		transaction.SetTag("success", "false")
		log.Printf("❌ OPENROUTER REQUEST FAILED after %v: %v", time.Since(start), err)
		return nil, fmt.Errorf("openrouter: request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Printf("⚠️  Failed to close response body: %v", closeErr)
		}
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		transaction.SetTag("success", "false")
		return nil, fmt.Errorf("openrouter: read response: %w", err)
	}
	log.Printf("⏱️  OPENROUTER CALL COMPLETED in %v (status %d)", time.Since(start), resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		transaction.SetTag("success", "false")
		transaction.SetTag("upstream_status", fmt.Sprintf("%d", resp.StatusCode))
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			Body:       truncateString(p.redactKey(strings.TrimSpace(string(respBody))), maxErrorBodyChars),
		}
	}

	parsed, err := parseChatCompletion(respBody)
	if err != nil {
		transaction.SetTag("success", "false")
		return nil, err
	}
	transaction.SetTag("success", "true")
	return parsed, nil
}

// buildParams builds the OpenAI-compatible request body: a fixed model and
// temperature with one system turn followed by one user turn
func buildParams(request *ChatRequest) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(Model),
		Temperature: openai.Float(Temperature),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(request.SystemPrompt),
			openai.UserMessage(request.UserPrompt),
		},
	}
}

type chatCompletionResponse struct {
	Model   string                 `json:"model"`
	Choices []chatCompletionChoice `json:"choices"`
	Usage   *chatCompletionUsage   `json:"usage"`
}

type chatCompletionChoice struct {
	Message *chatCompletionMessage `json:"message"`
	// Text is the legacy completions field some models still return
	Text string `json:"text"`
}

type chatCompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// parseChatCompletion extracts the text of the first choice, preferring
// message.content over the legacy text field
func parseChatCompletion(body []byte) (*ChatResponse, error) {
	var resp chatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("openrouter: decode response: %w", err)
	}

	out := &ChatResponse{Model: resp.Model}
	if out.Model == "" {
		out.Model = Model
	}
	if resp.Usage != nil {
		out.Usage = Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	if len(resp.Choices) == 0 {
		return out, nil
	}

	first := resp.Choices[0]
	if first.Message != nil {
		out.Text = strings.TrimSpace(first.Message.Content)
	}
	if out.Text == "" {
		out.Text = strings.TrimSpace(first.Text)
	}
	return out, nil
}

// redactKey removes the API key from text relayed to callers. It runs
// before truncation so a cut never leaves a partial key behind.
func (p *OpenRouterProvider) redactKey(s string) string {
	if p.apiKey == "" {
		return s
	}
	return strings.ReplaceAll(s, p.apiKey, RedactedPlaceholder)
}

// truncateString shortens s to maxLen runes
func truncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}
