// Package llm defines the Provider interface used for one-shot completions
// (C7 post-call summary generation, §4.7). Unlike the realtime S2S path,
// this is a narrow, non-streaming port: a single prompt in, a single
// completion out.
package llm

import "context"

// Message is one turn of conversation history passed to the model.
type Message struct {
	Role    string
	Content string
}

// CompletionRequest carries a one-shot completion request.
type CompletionRequest struct {
	// SystemPrompt is injected ahead of Messages.
	SystemPrompt string

	// Messages is the ordered conversation supplied as context.
	Messages []Message

	// Temperature controls output randomness.
	Temperature float64

	// MaxTokens bounds the completion length. Zero means provider default.
	MaxTokens int
}

// CompletionResponse is the full text returned by a one-shot completion.
type CompletionResponse struct {
	Content string
}

// Provider is the abstraction over any LLM backend used for summary
// generation. Implementations must be safe for concurrent use.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
