// Package providers implements the Provider Adapter component (C3):
// normalizing requests into vendor wire formats, mapping vendor chunks
// back onto the core's neutral models.Chunk vocabulary, and resolving a
// model id to the adapter, endpoint, and credentials that serve it.
package providers

import (
	"context"

	"github.com/haasonsaas/agentcore/pkg/models"
)

// ThinkingMode selects whether a request asks the model for extended
// reasoning before its answer. Adapters that don't support the concept
// (the OpenAI-compatible vendors this core wires) ignore it.
type ThinkingMode string

const (
	ThinkingEnabled  ThinkingMode = "enabled"
	ThinkingDisabled ThinkingMode = "disabled"
	ThinkingAuto     ThinkingMode = "auto"
)

// CompletionRequest is the vendor-neutral request shape every Adapter's
// Open translates into its vendor's wire format.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []models.Message
	Tools       []ToolSpec
	Temperature float64
	MaxTokens   int
	ThinkingMode ThinkingMode
	Stream      bool
}

// ToolSpec is the subset of a tool's declaration the LLM needs to decide
// when to call it: name, description, and JSON Schema parameters.
type ToolSpec struct {
	Name        string
	Description string
	Schema      []byte
}

// Adapter normalizes a CompletionRequest into a vendor-specific streaming
// call and maps that vendor's SSE chunks onto models.Chunk. Implementations
// are stateless and safe for concurrent use; all per-call state lives in
// the Stream returned by Open.
type Adapter interface {
	// Name identifies the adapter for logging and error classification
	// (e.g. "openai-compatible", "anthropic").
	Name() string

	// Open issues the streaming completion call and returns an iterator
	// of normalized chunks. Open itself is the single HTTP call C1
	// governs; Stream.Next does the SSE decode + chunk mapping.
	Open(ctx context.Context, req CompletionRequest) (Stream, error)
}

// Stream iterates the normalized chunks of one completion call.
type Stream interface {
	// Next returns the next chunk, or (nil, io.EOF) when the stream ends
	// cleanly. A non-EOF error is already classified via *Error.
	Next() (*models.Chunk, error)
	// Close releases any underlying connection. Safe to call multiple
	// times and after Next has returned io.EOF.
	Close() error
}

// Endpoint is the resolved (adapter, base URL, credential) tuple for one
// model id, as returned by the Registry.
type Endpoint struct {
	ModelID     string
	Adapter     Adapter
	BaseURL     string
	APIKey      string
	UpstreamID  string // the model id string sent on the wire, if different from ModelID
}
