package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/PolecatWorks/ralph/llm"
)

// scriptedDecider replays a fixed sequence of decisions and records every
// system prompt it was called with.
type scriptedDecider struct {
	decisions []*llm.Decision
	calls     int
	prompts   []string
	err       error
}

func (d *scriptedDecider) Decide(_ context.Context, _ []llm.Message, systemPrompt string, _ []llm.ToolDefinition) (*llm.Decision, error) {
	d.prompts = append(d.prompts, systemPrompt)
	if d.err != nil {
		return nil, d.err
	}
	if d.calls >= len(d.decisions) {
		return &llm.Decision{Content: "nothing left to do"}, nil
	}
	decision := d.decisions[d.calls]
	d.calls++
	return decision, nil
}

func toolCall(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

func newTestEngine(t *testing.T, decider llm.Decider) (*StepEngine, *LocalEnvironment) {
	t.Helper()
	env := NewLocalEnvironment(t.TempDir(), "")
	reg := NewToolRegistry()
	RegisterCoreTools(reg)
	return NewStepEngine(decider, reg, env, nil), env
}

func TestStepExecutesToolCallsInOrder(t *testing.T) {
	decider := &scriptedDecider{decisions: []*llm.Decision{
		{
			Content: "writing then reading",
			ToolCalls: []llm.ToolCall{
				toolCall("c1", "write_file", `{"path": "a.txt", "content": "alpha"}`),
				toolCall("c2", "read_file", `{"path": "a.txt"}`),
			},
		},
	}}
	engine, _ := newTestEngine(t, decider)

	delta, err := engine.Step(context.Background(), nil, "do the thing")
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if len(delta) != 3 {
		t.Fatalf("delta length = %d, want assistant + 2 tool messages", len(delta))
	}
	if delta[0].Role != llm.RoleAssistant {
		t.Errorf("delta[0].Role = %q", delta[0].Role)
	}
	if delta[1].ToolCallID != "c1" || delta[2].ToolCallID != "c2" {
		t.Errorf("tool messages out of order: %q, %q", delta[1].ToolCallID, delta[2].ToolCallID)
	}
	// The read sees the write from the same step.
	if delta[2].Content != "alpha" {
		t.Errorf("read result = %q, want %q", delta[2].Content, "alpha")
	}
}

func TestStepFinalMessageWithoutTools(t *testing.T) {
	decider := &scriptedDecider{decisions: []*llm.Decision{
		{Content: "all done, summarizing"},
	}}
	engine, _ := newTestEngine(t, decider)

	delta, err := engine.Step(context.Background(), nil, "goal")
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if len(delta) != 1 {
		t.Fatalf("delta length = %d, want 1", len(delta))
	}
	if delta[0].Content != "all done, summarizing" {
		t.Errorf("content = %q", delta[0].Content)
	}
}

func TestStepUnknownToolBecomesErrorMessage(t *testing.T) {
	decider := &scriptedDecider{decisions: []*llm.Decision{
		{ToolCalls: []llm.ToolCall{toolCall("c1", "teleport", `{}`)}},
	}}
	engine, _ := newTestEngine(t, decider)

	delta, err := engine.Step(context.Background(), nil, "goal")
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	msg := delta[1]
	if !msg.IsError {
		t.Error("unknown tool should yield an error tool message")
	}
	if msg.Content != "Unknown tool: teleport" {
		t.Errorf("content = %q", msg.Content)
	}
}

func TestStepContractViolationBecomesErrorMessage(t *testing.T) {
	decider := &scriptedDecider{decisions: []*llm.Decision{
		{ToolCalls: []llm.ToolCall{toolCall("c1", "read_file", `{}`)}},
	}}
	engine, _ := newTestEngine(t, decider)

	delta, err := engine.Step(context.Background(), nil, "goal")
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	msg := delta[1]
	if !msg.IsError {
		t.Error("missing required argument should yield an error tool message")
	}
	if !strings.HasPrefix(msg.Content, "Tool error (read_file):") {
		t.Errorf("content = %q", msg.Content)
	}
}

func TestStepDeciderErrorIsFatal(t *testing.T) {
	wantErr := errors.New("provider unreachable")
	engine, _ := newTestEngine(t, &scriptedDecider{err: wantErr})

	_, err := engine.Step(context.Background(), nil, "goal")
	if err == nil || !errors.Is(err, wantErr) {
		t.Fatalf("Step error = %v, want wrapped %v", err, wantErr)
	}
}

func TestStepSystemPromptCarriesInstruction(t *testing.T) {
	decider := &scriptedDecider{}
	engine, env := newTestEngine(t, decider)

	if _, err := engine.Step(context.Background(), nil, "Install the blue widget"); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if len(decider.prompts) != 1 {
		t.Fatalf("decider called %d times", len(decider.prompts))
	}
	prompt := decider.prompts[0]
	if !strings.Contains(prompt, "Install the blue widget") {
		t.Errorf("system prompt missing instruction:\n%s", prompt)
	}
	if !strings.Contains(prompt, env.WorkingDirectory()) {
		t.Errorf("system prompt missing working directory:\n%s", prompt)
	}
}

func TestStepTruncatesLongToolOutput(t *testing.T) {
	long := strings.Repeat("x", 500)
	decider := &scriptedDecider{decisions: []*llm.Decision{
		{ToolCalls: []llm.ToolCall{
			toolCall("c1", "write_file", `{"path": "big.txt", "content": "`+long+`"}`),
			toolCall("c2", "read_file", `{"path": "big.txt"}`),
		}},
	}}
	engine, _ := newTestEngine(t, decider)
	engine.SetToolOutputLimits(map[string]int{"read_file": 100})

	delta, err := engine.Step(context.Background(), nil, "goal")
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	content := delta[2].Content
	if !strings.Contains(content, "WARNING") {
		t.Errorf("truncated output missing marker: %q", content)
	}
	if len(content) >= len(long) {
		t.Errorf("output not truncated: %d chars", len(content))
	}
}
