package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Conceptual-Machines/daytale-api/internal/llm"
	"github.com/getsentry/sentry-go"
)

const (
	// HTTP status code threshold for considering a request successful
	successStatusCodeThreshold = http.StatusBadRequest
)

// SentryMetrics handles custom metrics for Sentry
type SentryMetrics struct {
	enabled bool
}

// NewSentryMetrics creates a new Sentry metrics client
func NewSentryMetrics(enabled bool) *SentryMetrics {
	return &SentryMetrics{enabled: enabled}
}

// RecordAPIRequest records API request metrics
func (m *SentryMetrics) RecordAPIRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if !m.enabled {
		return
	}

	span := sentry.StartSpan(ctx, "api.request")
	defer span.Finish()

	span.SetTag("endpoint", path)
	span.SetTag("method", method)
	span.SetTag("status_code", fmt.Sprintf("%d", statusCode))
	span.SetTag("success", fmt.Sprintf("%t", statusCode < successStatusCodeThreshold))
	span.SetData("duration_ms", duration.Milliseconds())

	if statusCode < successStatusCodeThreshold {
		span.Status = sentry.SpanStatusOK
	} else {
		span.Status = sentry.SpanStatusInternalError
	}
	span.Description = fmt.Sprintf("API Request: %s %s", method, path)
}

// RecordGeneration records the outcome of a generate call
func (m *SentryMetrics) RecordGeneration(ctx context.Context, outcome string, duration time.Duration) {
	if !m.enabled {
		return
	}

	span := sentry.StartSpan(ctx, "generation.request")
	defer span.Finish()

	span.SetTag("outcome", outcome)
	span.SetData("duration_ms", duration.Milliseconds())
	span.SetData("outcome", outcome)

	if outcome == "success" {
		span.Status = sentry.SpanStatusOK
	} else {
		span.Status = sentry.SpanStatusInternalError
	}
	span.Description = "Generation Request: " + outcome
}

// RecordTokenUsage attaches token counts to the current transaction
func (m *SentryMetrics) RecordTokenUsage(ctx context.Context, model string, usage llm.Usage) {
	if !m.enabled {
		return
	}

	if transaction := sentry.TransactionFromContext(ctx); transaction != nil {
		transaction.SetTag("llm.model", model)
		transaction.SetData("llm.total_tokens", usage.TotalTokens)
		transaction.SetData("llm.input_tokens", usage.PromptTokens)
		transaction.SetData("llm.output_tokens", usage.CompletionTokens)
	}

	span := sentry.StartSpan(ctx, "llm.token_usage")
	defer span.Finish()

	span.SetTag("model", model)
	span.SetData("total_tokens", usage.TotalTokens)
	span.SetData("input_tokens", usage.PromptTokens)
	span.SetData("output_tokens", usage.CompletionTokens)
	span.Status = sentry.SpanStatusOK
	span.Description = fmt.Sprintf("Token Usage: %s", model)
}
