// Package provider implements the clients for the external reasoning
// services: the decision service ("brain"), embeddings and importance
// scoring.
package provider

import (
	"context"
)

// NoDecision is returned when the decision service answers without a
// decision.
const NoDecision = "No decision."

// Brain is the decision service: text in, text out.
type Brain interface {
	Decide(ctx context.Context, prompt string) (string, error)
}

// BrainFunc adapts a function to Brain.
type BrainFunc func(ctx context.Context, prompt string) (string, error)

// Decide implements Brain.
func (f BrainFunc) Decide(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ChatRequest contains the parameters for a chat completion request.
type ChatRequest struct {
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature float64
}

// ChatResponse contains the response from a chat completion request.
type ChatResponse struct {
	Content      string
	FinishReason string
	Usage        Usage
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage contains token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Embedder turns text into a vector of fixed dimensionality.
type Embedder interface {
	Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error)
}

// EmbeddingRequest contains parameters for an embedding request.
type EmbeddingRequest struct {
	Input string
	Model string // default: "text-embedding-3-small"
}

// EmbeddingResponse contains the embedding vector.
type EmbeddingResponse struct {
	Vector []float32
	Usage  Usage
}
