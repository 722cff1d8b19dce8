package agentloop

import (
	"context"
	"fmt"
	"sync"

	"github.com/PolecatWorks/ralph/llm"
	"github.com/google/uuid"
)

// LoopConfig holds configuration for a loop run.
type LoopConfig struct {
	// Limit is the maximum number of iterations. Each iteration is exactly
	// one StepEngine invocation.
	Limit int `json:"limit"`
	// EnableLoopDetection injects a steering warning when the recent tool
	// calls repeat.
	EnableLoopDetection bool `json:"enable_loop_detection"`
	LoopDetectionWindow int  `json:"loop_detection_window"`
	// ToolOutputLimits overrides per-tool truncation limits.
	ToolOutputLimits map[string]int `json:"tool_output_limits,omitempty"`
}

// DefaultLoopConfig returns the default loop configuration.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		Limit:               1,
		EnableLoopDetection: true,
		LoopDetectionWindow: 6,
	}
}

// LoopController drives StepEngine invocations against one persistent
// conversation history until the completion sentinel appears, the iteration
// budget is exhausted, or an engine fault stops the run.
//
// The loop is strictly sequential: no two steps run concurrently, and tool
// calls within a step execute in request order.
type LoopController struct {
	id      string
	engine  *StepEngine
	store   *InstructionStore
	emitter *EventEmitter
	config  LoopConfig

	mu      sync.Mutex
	history []llm.Message
	done    bool
}

// NewLoopController creates a controller. config may be nil for defaults.
func NewLoopController(decider llm.Decider, registry *ToolRegistry, env ExecutionEnvironment, store *InstructionStore, config *LoopConfig) *LoopController {
	runID := uuid.New().String()

	cfg := DefaultLoopConfig()
	if config != nil {
		cfg = *config
	}

	emitter := NewEventEmitter(runID, 256)
	engine := NewStepEngine(decider, registry, env, emitter)
	engine.SetToolOutputLimits(cfg.ToolOutputLimits)

	return &LoopController{
		id:      runID,
		engine:  engine,
		store:   store,
		emitter: emitter,
		config:  cfg,
	}
}

// ID returns the run identifier.
func (c *LoopController) ID() string { return c.id }

// Events returns the event channel for the host application.
func (c *LoopController) Events() <-chan LoopEvent {
	return c.emitter.Events()
}

// History returns a copy of the conversation history.
func (c *LoopController) History() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := make([]llm.Message, len(c.history))
	copy(h, c.history)
	return h
}

// Done reports whether the completion sentinel was observed.
func (c *LoopController) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Close closes the event channel. Call after Run returns.
func (c *LoopController) Close() {
	c.emitter.Close()
}

// Run executes up to Limit iterations. It returns nil on completion or
// budget exhaustion; a non-nil error means an engine fault stopped the run
// (fail-stop: the state may be inconsistent and is not retried blindly).
func (c *LoopController) Run(ctx context.Context) error {
	c.mu.Lock()
	c.history = []llm.Message{llm.UserMessage("Please execute the instruction.")}
	c.done = false
	c.mu.Unlock()

	c.emitter.Emit(EventLoopStart, map[string]interface{}{
		"limit": c.config.Limit,
	})

	for i := 1; i <= c.config.Limit; i++ {
		select {
		case <-ctx.Done():
			c.emitter.Emit(EventError, map[string]interface{}{
				"iteration": i,
				"error":     "context cancelled",
			})
			return ctx.Err()
		default:
		}

		c.emitter.Emit(EventIterationStart, map[string]interface{}{
			"iteration": i,
			"limit":     c.config.Limit,
		})

		// Re-read the instruction so a prior iteration's update_instruction
		// call is visible to this one.
		instruction := c.store.Load()

		delta, err := c.engine.Step(ctx, c.History(), instruction)
		if err != nil {
			c.emitter.Emit(EventError, map[string]interface{}{
				"iteration": i,
				"error":     err.Error(),
			})
			return fmt.Errorf("iteration %d: %w", i, err)
		}

		c.mu.Lock()
		c.history = append(c.history, delta...)
		c.mu.Unlock()

		for _, msg := range delta {
			c.emitter.Emit(EventMessage, map[string]interface{}{
				"iteration": i,
				"role":      string(msg.Role),
				"content":   msg.Content,
			})
		}

		if c.objectiveMet() {
			c.mu.Lock()
			c.done = true
			c.mu.Unlock()
			c.emitter.Emit(EventObjectiveMet, map[string]interface{}{
				"iteration": i,
			})
			c.emitter.Emit(EventLoopEnd, nil)
			return nil
		}

		if c.config.EnableLoopDetection && DetectLoop(c.History(), c.config.LoopDetectionWindow) {
			warning := fmt.Sprintf("Loop detected: the last %d tool calls follow a repeating pattern. Try a different approach.", c.config.LoopDetectionWindow)
			c.mu.Lock()
			c.history = append(c.history, llm.UserMessage(warning))
			c.mu.Unlock()
			c.emitter.Emit(EventLoopDetection, map[string]interface{}{
				"iteration": i,
				"message":   warning,
			})
		}
	}

	c.emitter.Emit(EventLimitReached, map[string]interface{}{
		"limit": c.config.Limit,
	})
	c.emitter.Emit(EventLoopEnd, nil)
	return nil
}

// objectiveMet inspects the last two messages for a tool-role message whose
// content is exactly the completion sentinel. A differently-cased or padded
// variant is not done.
func (c *LoopController) objectiveMet() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	start := len(c.history) - 2
	if start < 0 {
		start = 0
	}
	for _, msg := range c.history[start:] {
		if msg.Role == llm.RoleTool && msg.Content == DoneSignal {
			return true
		}
	}
	return false
}
