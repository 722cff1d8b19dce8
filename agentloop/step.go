package agentloop

import (
	"context"
	"fmt"

	"github.com/PolecatWorks/ralph/llm"
)

// StepEngine performs exactly one request/execute/append cycle: compose the
// system prompt, call Decide, and execute any requested tool calls in order.
// Multi-step reasoning happens by the LoopController re-invoking Step, never
// by looping in here.
type StepEngine struct {
	decider          llm.Decider
	registry         *ToolRegistry
	env              ExecutionEnvironment
	emitter          *EventEmitter
	basePrompt       string
	toolOutputLimits map[string]int
}

// NewStepEngine creates a StepEngine. emitter may be nil when no event
// consumer exists (tests).
func NewStepEngine(decider llm.Decider, registry *ToolRegistry, env ExecutionEnvironment, emitter *EventEmitter) *StepEngine {
	return &StepEngine{
		decider:    decider,
		registry:   registry,
		env:        env,
		emitter:    emitter,
		basePrompt: LoadBasePrompt(env.WorkingDirectory()),
	}
}

// SetToolOutputLimits overrides per-tool truncation limits.
func (e *StepEngine) SetToolOutputLimits(limits map[string]int) {
	e.toolOutputLimits = limits
}

func (e *StepEngine) emit(kind EventKind, data map[string]interface{}) {
	if e.emitter != nil {
		e.emitter.Emit(kind, data)
	}
}

// Step runs one cycle against the given history and instruction text and
// returns the messages added this step. The caller owns the history; Step
// never mutates it. A non-nil error is an engine fault: the model call
// itself failed and the run must stop.
func (e *StepEngine) Step(ctx context.Context, history []llm.Message, instruction string) ([]llm.Message, error) {
	systemPrompt := BuildSystemPrompt(e.basePrompt, e.env.WorkingDirectory(), instruction)

	decision, err := e.decider.Decide(ctx, history, systemPrompt, e.registry.Definitions())
	if err != nil {
		return nil, fmt.Errorf("model call failed: %w", err)
	}

	delta := []llm.Message{llm.AssistantMessage(decision.Content, decision.ToolCalls)}

	// A final message with no tool calls ends the step with no execution.
	// This is not the completion sentinel; the loop decides what to do next.
	for _, tc := range decision.ToolCalls {
		delta = append(delta, e.executeToolCall(tc))
	}

	return delta, nil
}

// executeToolCall dispatches one tool call through the registry. Every
// failure mode becomes an error-bearing tool message so a single tool fault
// never aborts the step.
func (e *StepEngine) executeToolCall(tc llm.ToolCall) llm.Message {
	e.emit(EventToolCallStart, map[string]interface{}{
		"tool_name": tc.Name,
		"call_id":   tc.ID,
	})

	registered := e.registry.Get(tc.Name)
	if registered == nil {
		errorMsg := fmt.Sprintf("Unknown tool: %s", tc.Name)
		e.emit(EventToolCallEnd, map[string]interface{}{
			"call_id": tc.ID,
			"error":   errorMsg,
		})
		return llm.ToolMessage(tc.ID, errorMsg, true)
	}

	output, err := registered.Executor(tc.Arguments, e.env)
	if err != nil {
		errorMsg := fmt.Sprintf("Tool error (%s): %v", tc.Name, err)
		e.emit(EventToolCallEnd, map[string]interface{}{
			"call_id": tc.ID,
			"error":   errorMsg,
		})
		return llm.ToolMessage(tc.ID, errorMsg, true)
	}

	// Full output goes to the event stream; the history gets the truncated
	// version.
	e.emit(EventToolCallEnd, map[string]interface{}{
		"call_id": tc.ID,
		"output":  output,
	})
	return llm.ToolMessage(tc.ID, TruncateToolOutput(output, tc.Name, e.toolOutputLimits), false)
}
