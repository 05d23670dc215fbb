package observability

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Conceptual-Machines/daytale-api/internal/config"
	"github.com/Conceptual-Machines/daytale-api/internal/llm"
	langfuse "github.com/henomis/langfuse-go"
	"github.com/henomis/langfuse-go/model"
)

const levelError = "ERROR"

// langfuseAPI is the subset of the Langfuse SDK used for tracing
type langfuseAPI interface {
	Trace(t *model.Trace) (*model.Trace, error)
	Generation(g *model.Generation, parentID *string) (*model.Generation, error)
	GenerationEnd(g *model.Generation) (*model.Generation, error)
	Flush(ctx context.Context)
}

// LangfuseClient wraps the Langfuse client with our configuration. The SDK
// client can be flushed only once, so Flush swaps in a fresh one.
type LangfuseClient struct {
	mu        sync.RWMutex
	client    langfuseAPI
	newClient func() langfuseAPI
	enabled   bool
}

// InitializeLangfuse creates a Langfuse client. The SDK reads
// LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY itself.
func InitializeLangfuse(ctx context.Context, cfg *config.Config) *LangfuseClient {
	if !cfg.LangfuseEnabled || cfg.LangfuseSecretKey == "" || cfg.LangfusePublicKey == "" {
		log.Println("⚠️  Langfuse not configured (LANGFUSE_ENABLED=false or keys not set)")
		return &LangfuseClient{enabled: false}
	}

	log.Printf("✅ Langfuse initialized (host: %s)", cfg.LangfuseHost)
	return newLangfuseClient(func() langfuseAPI { return langfuse.New(ctx) })
}

func newLangfuseClient(newClient func() langfuseAPI) *LangfuseClient {
	return &LangfuseClient{client: newClient(), newClient: newClient, enabled: true}
}

// IsEnabled returns whether Langfuse is enabled
func (c *LangfuseClient) IsEnabled() bool {
	return c != nil && c.enabled && c.newClient != nil
}

// Flush sends every queued event and blocks until done or ctx expires.
// Later traces go to a new SDK client.
func (c *LangfuseClient) Flush(ctx context.Context) {
	if !c.IsEnabled() {
		return
	}

	c.mu.Lock()
	flushed := c.client
	c.client = c.newClient()
	c.mu.Unlock()

	flushed.Flush(ctx)
}

func (c *LangfuseClient) current() langfuseAPI {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

// StartTrace starts a new trace in Langfuse
func (c *LangfuseClient) StartTrace(ctx context.Context, name string, metadata map[string]interface{}) *Trace {
	if !c.IsEnabled() {
		return &Trace{enabled: false}
	}

	client := c.current()
	trace, err := client.Trace(&model.Trace{
		Name:     name,
		Metadata: metadata,
	})
	if err != nil {
		log.Printf("⚠️  Failed to create Langfuse trace: %v", err)
		return &Trace{enabled: false}
	}

	return &Trace{
		trace:   trace,
		enabled: true,
		client:  client,
	}
}

// Trace represents a Langfuse trace
type Trace struct {
	trace   *model.Trace
	enabled bool
	client  langfuseAPI
}

// Generation creates a new generation span within the trace
func (t *Trace) Generation(name string, metadata map[string]interface{}) *Generation {
	if !t.enabled {
		return &Generation{enabled: false}
	}

	now := time.Now()
	gen, err := t.client.Generation(&model.Generation{
		TraceID:   t.trace.ID,
		Name:      name,
		StartTime: &now,
		Metadata:  metadata,
	}, nil)
	if err != nil {
		log.Printf("⚠️  Failed to create Langfuse generation: %v", err)
		return &Generation{enabled: false}
	}

	return &Generation{
		generation: gen,
		enabled:    true,
		client:     t.client,
	}
}

// Generation represents a Langfuse generation span
type Generation struct {
	generation *model.Generation
	enabled    bool
	client     langfuseAPI
}

// Input sets the input for the generation
func (g *Generation) Input(input interface{}) {
	if g.enabled && g.generation != nil {
		g.generation.Input = input
	}
}

// Output sets the output for the generation
func (g *Generation) Output(output interface{}) {
	if g.enabled && g.generation != nil {
		g.generation.Output = output
	}
}

// Metadata adds metadata to the generation
func (g *Generation) Metadata(metadata map[string]interface{}) {
	if !g.enabled || g.generation == nil {
		return
	}
	md, ok := g.generation.Metadata.(map[string]interface{})
	if !ok || md == nil {
		md = make(map[string]interface{})
	}
	for k, v := range metadata {
		md[k] = v
	}
	g.generation.Metadata = md
}

// SetLevel sets the level of the generation
func (g *Generation) SetLevel(level string) {
	if g.enabled && g.generation != nil {
		g.generation.Level = model.ObservationLevel(level)
	}
}

// LogCompletion records the model, output text, usage and cost
func (g *Generation) LogCompletion(resp *llm.ChatResponse) {
	if !g.enabled || g.generation == nil || resp == nil {
		return
	}

	modelName := resp.Model
	if modelName == "" {
		modelName = llm.Model
	}
	cost := CalculateCost(modelName, resp.Usage)

	g.generation.Model = modelName
	g.generation.Usage = model.Usage{
		Input:     int(resp.Usage.PromptTokens),
		Output:    int(resp.Usage.CompletionTokens),
		Total:     int(resp.Usage.TotalTokens),
		Unit:      model.ModelUsageUnitTokens,
		TotalCost: cost,
	}
	if resp.Text != "" {
		g.Output(resp.Text)
	}
	g.Metadata(map[string]interface{}{
		"model":    modelName,
		"cost_usd": FormatCost(cost),
	})
}

// Finish completes the generation and queues it for sending
func (g *Generation) Finish() {
	if g.enabled && g.generation != nil && g.client != nil {
		now := time.Now()
		g.generation.EndTime = &now
		if _, err := g.client.GenerationEnd(g.generation); err != nil {
			log.Printf("⚠️  Failed to end Langfuse generation: %v", err)
		}
	}
}
