package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/Conceptual-Machines/daytale-api/internal/llm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts HTTP requests by method, path, and status code.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "daytale_requests_total",
		Help: "Total HTTP requests processed.",
	}, []string{"method", "path", "status"})

	// GenerationsTotal counts generate calls by outcome.
	GenerationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "daytale_generations_total",
		Help: "Total journal generation requests by outcome.",
	}, []string{"outcome"})

	// GenerationDuration tracks end-to-end handler latency per outcome.
	GenerationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "daytale_generation_duration_seconds",
		Help:    "Time spent handling a generation request.",
		Buckets: []float64{0.05, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"outcome"})

	// TokensTotal counts upstream tokens by model and direction.
	TokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "daytale_tokens_total",
		Help: "Tokens reported by the upstream model.",
	}, []string{"model", "type"})
)

// Prometheus records into the process-wide collectors above
type Prometheus struct{}

// NewPrometheus returns a Prometheus recorder
func NewPrometheus() *Prometheus {
	return &Prometheus{}
}

func (p *Prometheus) RecordAPIRequest(_ context.Context, method, path string, statusCode int, _ time.Duration) {
	RequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
}

func (p *Prometheus) RecordGeneration(_ context.Context, outcome string, duration time.Duration) {
	GenerationsTotal.WithLabelValues(outcome).Inc()
	GenerationDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (p *Prometheus) RecordTokenUsage(_ context.Context, model string, usage llm.Usage) {
	if model == "" {
		model = llm.Model
	}
	TokensTotal.WithLabelValues(model, "input").Add(float64(usage.PromptTokens))
	TokensTotal.WithLabelValues(model, "output").Add(float64(usage.CompletionTokens))
}
