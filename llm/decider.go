package llm

import "context"

// Decider is the reasoning boundary. Implementations are stateless between
// calls: all conversation state travels in through history and back out in
// the returned Decision.
type Decider interface {
	// Decide performs one model call. The returned Decision contains either
	// tool calls to execute or a final message. A non-nil error is an
	// engine-level fault: the caller must not assume the history is still
	// coherent and should stop the run.
	Decide(ctx context.Context, history []Message, systemPrompt string, tools []ToolDefinition) (*Decision, error)
}

// DeciderFunc adapts a plain function to the Decider interface.
type DeciderFunc func(ctx context.Context, history []Message, systemPrompt string, tools []ToolDefinition) (*Decision, error)

// Decide implements Decider.
func (f DeciderFunc) Decide(ctx context.Context, history []Message, systemPrompt string, tools []ToolDefinition) (*Decision, error) {
	return f(ctx, history, systemPrompt, tools)
}
