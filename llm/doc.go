// Package llm defines the boundary between the agent loop and the language
// model. The loop only ever sees the Decider interface: given the
// conversation history and a system prompt, the model either requests tool
// calls or produces a final message.
//
// The production implementation, GollmDecider, wraps the gollm library and
// handles provider selection, prompt translation, tool-call extraction, and
// error classification. Errors crossing this boundary carry a retryability
// flag; the Retry helper implements exponential backoff for the retryable
// ones.
package llm
