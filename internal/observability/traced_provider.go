package observability

import (
	"context"

	"github.com/Conceptual-Machines/daytale-api/internal/llm"
)

// TracedProvider records every completion as a Langfuse trace with a
// single generation. It is a pass-through when Langfuse is disabled.
// Events are sent by the SDK in the background and by LangfuseClient.Flush.
type TracedProvider struct {
	next   llm.Provider
	client *LangfuseClient
}

// NewTracedProvider wraps next with Langfuse tracing
func NewTracedProvider(next llm.Provider, client *LangfuseClient) *TracedProvider {
	return &TracedProvider{next: next, client: client}
}

func (p *TracedProvider) Name() string {
	return p.next.Name()
}

func (p *TracedProvider) Available() bool {
	return p.next.Available()
}

func (p *TracedProvider) Complete(ctx context.Context, request *llm.ChatRequest) (*llm.ChatResponse, error) {
	if !p.client.IsEnabled() {
		return p.next.Complete(ctx, request)
	}

	trace := p.client.StartTrace(ctx, "daytale.generate", map[string]interface{}{
		"provider": p.next.Name(),
	})

	gen := trace.Generation("journal_entry", map[string]interface{}{
		"temperature": llm.Temperature,
	})
	gen.Input([]map[string]interface{}{
		{"role": "system", "content": request.SystemPrompt},
		{"role": "user", "content": request.UserPrompt},
	})

	resp, err := p.next.Complete(ctx, request)
	if err != nil {
		gen.SetLevel(levelError)
		gen.Metadata(map[string]interface{}{"error": err.Error()})
		gen.Finish()
		return nil, err
	}

	gen.LogCompletion(resp)
	gen.Finish()
	return resp, nil
}
