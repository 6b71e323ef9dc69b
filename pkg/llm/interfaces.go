// Package llm provides the OpenAI-compatible completion client.
package llm

import "context"

// CompletionRequest carries one completion call's inputs. Model, temperature
// and max tokens come from the active prompt template or config defaults.
type CompletionRequest struct {
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// CompletionResult is the raw completion output plus usage accounting.
type CompletionResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// CompletionClient defines the completion service collaborator. The service's
// output is treated as untrusted input to be validated, never as trusted SQL.
// Use this interface for dependency injection to enable mocking in tests.
type CompletionClient interface {
	// Complete sends the prompt and returns the raw response text.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)

	// Model returns the default model name.
	Model() string
}
