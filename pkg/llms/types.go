// Package llms defines the normalized chat types, the backend provider
// interface, and the provider registry used for model routing.
package llms

import "context"

// Message is a fully normalized chat message. Content-part arrays from the
// wire are flattened to plain text before messages reach a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ModelInfo describes one model advertised by a backend.
type ModelInfo struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// Sampling carries the optional sampling knobs. Nil means the client did not
// set the field; the normalizer decides what the backend actually sees.
type Sampling struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MinP        *float64 `json:"min_p,omitempty"`
}

// ChatRequest is the normalized request handed to a backend adapter.
// Adapters must not mutate Messages.
type ChatRequest struct {
	Model     string
	Messages  []Message
	MaxTokens int
	Sampling  Sampling
}

// ChatResponse is a single non-streaming backend reply.
type ChatResponse struct {
	Model        string
	Content      string
	FinishReason string
}

// Provider is a black-box inference backend speaking some concrete wire
// protocol. Streaming backends push deltas through onDelta and finish with
// onDone; backends without native streaming synthesize chunks from a single
// completion.
type Provider interface {
	Name() string
	ListModels(ctx context.Context) ([]ModelInfo, error)
	ChatOnce(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	ChatStream(ctx context.Context, req *ChatRequest, onDelta func(string), onDone func(finishReason string)) error
	Embeddings(ctx context.Context, model, input string) ([]float64, error)
}
