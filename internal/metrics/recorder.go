package metrics

import (
	"context"
	"time"

	"github.com/Conceptual-Machines/daytale-api/internal/llm"
)

// Recorder is implemented by every metrics backend
type Recorder interface {
	RecordAPIRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration)
	RecordGeneration(ctx context.Context, outcome string, duration time.Duration)
	RecordTokenUsage(ctx context.Context, model string, usage llm.Usage)
}

// Multi fans every record out to a list of backends
type Multi []Recorder

func (m Multi) RecordAPIRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	for _, r := range m {
		r.RecordAPIRequest(ctx, method, path, statusCode, duration)
	}
}

func (m Multi) RecordGeneration(ctx context.Context, outcome string, duration time.Duration) {
	for _, r := range m {
		r.RecordGeneration(ctx, outcome, duration)
	}
}

func (m Multi) RecordTokenUsage(ctx context.Context, model string, usage llm.Usage) {
	for _, r := range m {
		r.RecordTokenUsage(ctx, model, usage)
	}
}
