package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmDecider is the production Decider. It wraps a gollm.LLM instance and
// translates between the loop's history and gollm's prompt API.
type GollmDecider struct {
	provider string
	llm      gollm.LLM
}

// GollmOption configures a GollmDecider.
type GollmOption func(*gollmConfig)

type gollmConfig struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

// WithAPIKey sets the provider API key. If empty, gollm reads it from the
// provider's environment variable.
func WithAPIKey(key string) GollmOption {
	return func(c *gollmConfig) { c.apiKey = key }
}

// WithMaxTokens sets the response token budget.
func WithMaxTokens(n int) GollmOption {
	return func(c *gollmConfig) { c.maxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) GollmOption {
	return func(c *gollmConfig) { c.temperature = t }
}

// WithGollmOptions appends extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmOption {
	return func(c *gollmConfig) { c.extraOpts = append(c.extraOpts, opts...) }
}

// NewGollmDecider creates a Decider for the given provider and model.
func NewGollmDecider(provider, model string, opts ...GollmOption) (*GollmDecider, error) {
	cfg := &gollmConfig{
		model:       model,
		maxTokens:   4096,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(cfg.model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // retries are handled by RetryingDecider
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	inner, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gollm LLM for provider %s: %w", provider, err)
	}

	return &GollmDecider{provider: provider, llm: inner}, nil
}

// NewGollmDeciderFromLLM wraps an existing gollm.LLM instance.
func NewGollmDeciderFromLLM(provider string, inner gollm.LLM) *GollmDecider {
	return &GollmDecider{provider: provider, llm: inner}
}

// Provider returns the provider identifier.
func (d *GollmDecider) Provider() string { return d.provider }

// Decide implements Decider.
func (d *GollmDecider) Decide(ctx context.Context, history []Message, systemPrompt string, tools []ToolDefinition) (*Decision, error) {
	prompt := d.translate(history, systemPrompt, tools)

	text, err := d.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, d.translateError(err)
	}

	toolCalls := parseToolCalls(text)
	return &Decision{
		Content:   removeToolCallJSON(text, toolCalls),
		ToolCalls: toolCalls,
	}, nil
}

// translate flattens the history into a gollm Prompt. gollm's Generate takes
// a single prompt string, so prior turns are rendered with role markers.
func (d *GollmDecider) translate(history []Message, systemPrompt string, tools []ToolDefinition) *gollm.Prompt {
	var parts []string
	for _, msg := range history {
		switch msg.Role {
		case RoleUser:
			parts = append(parts, msg.Content)
		case RoleAssistant:
			if msg.Content != "" {
				parts = append(parts, "[Assistant]: "+msg.Content)
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, fmt.Sprintf("[Tool Call %s]: %s %s", tc.ID, tc.Name, string(tc.Arguments)))
			}
		case RoleTool:
			prefix := "[Tool Result]"
			if msg.IsError {
				prefix = "[Tool Error]"
			}
			parts = append(parts, prefix+": "+msg.Content)
		}
	}

	promptText := strings.Join(parts, "\n")
	if promptText == "" {
		promptText = "Please execute the instruction."
	}

	promptOpts := []gollm.PromptOption{}
	if systemPrompt != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(strings.TrimSpace(systemPrompt), gollm.CacheTypeEphemeral))
	}

	if len(tools) > 0 {
		gollmTools := make([]gollm.Tool, 0, len(tools))
		for _, t := range tools {
			gollmTools = append(gollmTools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(gollmTools))
		promptOpts = append(promptOpts, gollm.WithToolChoice("auto"))
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

// parseToolCalls attempts to extract tool calls from the response text.
// gollm may return tool calls as JSON embedded in the response.
func parseToolCalls(text string) []ToolCall {
	start := strings.Index(text, `{"tool_calls"`)
	if start == -1 {
		start = strings.Index(text, `[{"name"`)
	}
	if start == -1 {
		return nil
	}

	var rawCalls []struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}

	var calls []ToolCall
	if err := json.Unmarshal([]byte(text[start:]), &rawCalls); err == nil {
		for _, rc := range rawCalls {
			calls = append(calls, ToolCall{
				ID:        "call_" + uuid.New().String()[:8],
				Name:      rc.Name,
				Arguments: rc.Arguments,
			})
		}
	}
	return calls
}

// removeToolCallJSON strips parsed tool call JSON out of the text.
func removeToolCallJSON(text string, calls []ToolCall) string {
	if len(calls) == 0 {
		return text
	}
	result := text
	for _, pattern := range []string{`{"tool_calls"`, `[{"name"`} {
		if idx := strings.Index(result, pattern); idx != -1 {
			result = strings.TrimSpace(result[:idx])
		}
	}
	return result
}

// translateError converts a gollm error into the engine error hierarchy.
func (d *GollmDecider) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	msgLower := strings.ToLower(msg)

	base := ProviderError{
		EngineError: EngineError{Message: msg, Cause: err},
		Provider:    d.provider,
	}

	switch {
	case strings.Contains(msgLower, "401") || strings.Contains(msgLower, "unauthorized") || strings.Contains(msgLower, "invalid api key"):
		base.StatusCode = 401
		return &AuthenticationError{ProviderError: base}
	case strings.Contains(msgLower, "403") || strings.Contains(msgLower, "forbidden"):
		base.StatusCode = 403
		return &AccessDeniedError{ProviderError: base}
	case strings.Contains(msgLower, "404") || strings.Contains(msgLower, "not found"):
		base.StatusCode = 404
		return &NotFoundError{ProviderError: base}
	case strings.Contains(msgLower, "429") || strings.Contains(msgLower, "rate limit"):
		base.StatusCode = 429
		base.Retryable = true
		return &RateLimitError{ProviderError: base}
	case strings.Contains(msgLower, "context length") || strings.Contains(msgLower, "too many tokens"):
		base.StatusCode = 413
		return &ContextLengthError{ProviderError: base}
	case strings.Contains(msgLower, "500") || strings.Contains(msgLower, "internal server"):
		base.StatusCode = 500
		base.Retryable = true
		return &ServerError{ProviderError: base}
	case strings.Contains(msgLower, "timeout"):
		return &RequestTimeoutError{EngineError: EngineError{Message: msg, Cause: err}}
	default:
		base.Retryable = true
		return &base
	}
}

// Ask performs a one-shot question with no tools, for the ask command.
func (d *GollmDecider) Ask(ctx context.Context, question string) (string, error) {
	text, err := d.llm.Generate(ctx, gollm.NewPrompt(question))
	if err != nil {
		return "", d.translateError(err)
	}
	return text, nil
}
