package metrics

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Conceptual-Machines/daytale-api/internal/llm"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

const (
	namespace                = "DayTale/API"
	httpStatusServerError    = 500
	cloudwatchTimeoutSeconds = 5
)

// metricPutter is the subset of the CloudWatch API used here
type metricPutter interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput,
		optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Client wraps CloudWatch client for custom metrics
type Client struct {
	client      metricPutter
	enabled     bool
	environment string
	pending     sync.WaitGroup
}

// NewClient creates a new CloudWatch metrics client
func NewClient(ctx context.Context, environment string) (*Client, error) {
	// Only enable in production
	if environment != "production" {
		log.Printf("📊 CloudWatch Metrics: DISABLED (environment: %s)", environment)
		return &Client{
			enabled:     false,
			environment: environment,
		}, nil
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		log.Printf("⚠️  Failed to load AWS config for CloudWatch: %v", err)
		return &Client{enabled: false, environment: environment}, nil
	}

	log.Printf("📊 CloudWatch Metrics: ✅ ENABLED (namespace: %s)", namespace)
	return newClient(cloudwatch.NewFromConfig(cfg), environment), nil
}

func newClient(api metricPutter, environment string) *Client {
	return &Client{
		client:      api,
		enabled:     api != nil,
		environment: environment,
	}
}

// Enabled reports whether metrics are sent to CloudWatch
func (m *Client) Enabled() bool {
	return m.enabled
}

// Wait blocks until all in-flight metric writes have finished
func (m *Client) Wait() {
	m.pending.Wait()
}

// RecordAPIRequest records an API request metric
func (m *Client) RecordAPIRequest(_ context.Context, method, path string, statusCode int, duration time.Duration) {
	if !m.enabled {
		return
	}

	m.async(func(ctx context.Context) {
		metricName := "APIRequests"
		if statusCode >= httpStatusServerError {
			metricName = "APIErrors"
		}

		dimensions := []types.Dimension{
			{Name: aws.String("Endpoint"), Value: aws.String(method + " " + path)},
			m.environmentDimension(),
		}

		if err := m.putMetric(ctx, metricName, 1, types.StandardUnitCount, dimensions); err != nil {
			log.Printf("Failed to record %s metric: %v", metricName, err)
		}

		latencyMs := float64(duration.Milliseconds())
		if err := m.putMetric(ctx, "APILatency", latencyMs, types.StandardUnitMilliseconds, dimensions); err != nil {
			log.Printf("Failed to record APILatency metric: %v", err)
		}
	})
}

// RecordGeneration records one generate call and its duration
func (m *Client) RecordGeneration(_ context.Context, outcome string, duration time.Duration) {
	if !m.enabled {
		return
	}

	m.async(func(ctx context.Context) {
		dimensions := []types.Dimension{
			{Name: aws.String("Outcome"), Value: aws.String(outcome)},
			m.environmentDimension(),
		}

		if err := m.putMetric(ctx, "Generations", 1, types.StandardUnitCount, dimensions); err != nil {
			log.Printf("Failed to record Generations metric: %v", err)
		}

		durationMs := float64(duration.Milliseconds())
		if err := m.putMetric(ctx, "GenerationDuration", durationMs, types.StandardUnitMilliseconds, dimensions); err != nil {
			log.Printf("Failed to record GenerationDuration metric: %v", err)
		}
	})
}

// RecordTokenUsage records upstream token usage
func (m *Client) RecordTokenUsage(_ context.Context, model string, usage llm.Usage) {
	if !m.enabled {
		return
	}

	m.async(func(ctx context.Context) {
		dimensions := []types.Dimension{
			{Name: aws.String("Model"), Value: aws.String(model)},
			m.environmentDimension(),
		}

		for name, value := range map[string]int64{
			"Tokens/Total":  usage.TotalTokens,
			"Tokens/Input":  usage.PromptTokens,
			"Tokens/Output": usage.CompletionTokens,
		} {
			if err := m.putMetric(ctx, name, float64(value), types.StandardUnitCount, dimensions); err != nil {
				log.Printf("Failed to record %s metric: %v", name, err)
			}
		}
	})
}

func (m *Client) async(fn func(ctx context.Context)) {
	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		fn(context.Background())
	}()
}

func (m *Client) environmentDimension() types.Dimension {
	return types.Dimension{
		Name:  aws.String("Environment"),
		Value: aws.String(m.environment),
	}
}

// putMetric sends a metric to CloudWatch
func (m *Client) putMetric(
	ctx context.Context,
	metricName string,
	value float64,
	unit types.StandardUnit,
	dimensions []types.Dimension,
) error {
	if !m.enabled || m.client == nil {
		return nil
	}

	cwCtx, cancel := context.WithTimeout(ctx, time.Duration(cloudwatchTimeoutSeconds)*time.Second)
	defer cancel()

	_, err := m.client.PutMetricData(cwCtx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: aws.String(metricName),
				Value:      aws.Float64(value),
				Unit:       unit,
				Timestamp:  aws.Time(time.Now()),
				Dimensions: dimensions,
			},
		},
	})

	return err
}
