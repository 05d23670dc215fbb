// Package app wires configuration into the components shared by the HTTP
// server and the Lambda entrypoint.
package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Conceptual-Machines/daytale-api/internal/config"
	"github.com/Conceptual-Machines/daytale-api/internal/journal"
	"github.com/Conceptual-Machines/daytale-api/internal/llm"
	"github.com/Conceptual-Machines/daytale-api/internal/metrics"
	"github.com/Conceptual-Machines/daytale-api/internal/observability"
	"github.com/getsentry/sentry-go"
)

const (
	sentryFlushTimeout   = 2 * time.Second
	langfuseFlushTimeout = 2 * time.Second
	redacted           = "[REDACTED]"
)

// App holds the wired components
type App struct {
	Config     *config.Config
	Provider   llm.Provider
	Journal    *journal.Handler
	Recorder   metrics.Multi
	cloudwatch *metrics.Client
	langfuse   *observability.LangfuseClient
}

// Build creates the provider, recorders and journal handler from cfg
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	tmpl, err := journal.LoadTemplate(cfg.PromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("load prompt template: %w", err)
	}

	var provider llm.Provider = llm.NewOpenRouterProvider(llm.OpenRouterOptions{
		APIKey:  cfg.OpenRouterAPIKey,
		BaseURL: cfg.OpenRouterBaseURL,
		Site:    cfg.OpenRouterSite,
		Timeout: cfg.UpstreamTimeout,
	})
	if !cfg.UpstreamConfigured() {
		log.Println("⚠️  OPENROUTER_API_KEY not set, generate requests will fail with 500")
	}
	langfuse := observability.InitializeLangfuse(ctx, cfg)
	provider = observability.NewTracedProvider(provider, langfuse)

	cloudwatch, err := metrics.NewClient(ctx, cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("create cloudwatch client: %w", err)
	}
	recorder := metrics.Multi{
		metrics.NewPrometheus(),
		metrics.NewSentryMetrics(cfg.SentryDSN != ""),
		cloudwatch,
	}

	handler := journal.NewHandler(provider, recorder, journal.Options{
		Template:      tmpl,
		DebugEcho:     cfg.DebugEcho,
		MaxBodyBytes:  cfg.MaxBodyBytes,
		MaxInputChars: cfg.MaxInputChars,
		Secrets:       []string{cfg.OpenRouterAPIKey},
	})

	return &App{
		Config:     cfg,
		Provider:   provider,
		Journal:    handler,
		Recorder:   recorder,
		cloudwatch: cloudwatch,
		langfuse:   langfuse,
	}, nil
}

// Close waits for pending metric writes and flushes Langfuse and Sentry.
// It is safe to call once per Lambda invocation.
func (a *App) Close() {
	if a.cloudwatch != nil {
		a.cloudwatch.Wait()
	}

	ctx, cancel := context.WithTimeout(context.Background(), langfuseFlushTimeout)
	defer cancel()
	a.langfuse.Flush(ctx)

	sentry.Flush(sentryFlushTimeout)
}

// InitSentry initializes the global Sentry client when a DSN is configured
func InitSentry(cfg *config.Config, release string) {
	if cfg.SentryDSN == "" {
		log.Println("⚠️  Sentry not configured (SENTRY_DSN not set)")
		return
	}

	secrets := []string{cfg.OpenRouterAPIKey, cfg.LangfuseSecretKey}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		Release:          "daytale-api@" + release,
		EnableTracing:    true,
		TracesSampleRate: 1.0,
		Debug:            !cfg.IsProduction(),
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return scrubEvent(event, secrets)
		},
	}); err != nil {
		log.Printf("Failed to initialize Sentry: %v", err)
		return
	}
	log.Printf("✅ Sentry initialized (environment: %s, release: %s)", cfg.Environment, release)
}

func scrubEvent(event *sentry.Event, secrets []string) *sentry.Event {
	if event.Request != nil {
		event.Request.Headers = filterSensitiveHeaders(event.Request.Headers)
	}
	event.Message = redactSecrets(event.Message, secrets)
	for i := range event.Exception {
		event.Exception[i].Value = redactSecrets(event.Exception[i].Value, secrets)
	}
	return event
}

func filterSensitiveHeaders(headers map[string]string) map[string]string {
	filtered := make(map[string]string)
	sensitiveKeys := map[string]bool{
		"authorization": true,
		"cookie":        true,
		"x-api-key":     true,
	}

	for k, v := range headers {
		if sensitiveKeys[strings.ToLower(k)] {
			filtered[k] = redacted
		} else {
			filtered[k] = v
		}
	}
	return filtered
}

func redactSecrets(s string, secrets []string) string {
	for _, secret := range secrets {
		if secret != "" {
			s = strings.ReplaceAll(s, secret, redacted)
		}
	}
	return s
}
