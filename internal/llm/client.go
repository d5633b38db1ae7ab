// Package llm provides LLM client interfaces and implementations.
package llm

import (
	"context"
	"errors"
)

// Finish reasons normalized across providers.
const (
	FinishReasonStop      = "stop"
	FinishReasonToolCalls = "tool_calls"
)

// ErrToolsUnsupported is returned by providers that cannot emit tool calls.
var ErrToolsUnsupported = errors.New("provider does not support tool calls")

// Tool describes a named tool offered to the model.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is a structured invocation emitted by the model in lieu of text.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Message is a chat message. Tool results reference the call they answer via
// ToolCallID.
type Message struct {
	Role       string
	Content    string
	ToolCallID string
	ToolCalls  []ToolCall
}

// ChatRequest is a provider-independent chat completion request.
type ChatRequest struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []Tool
	MaxTokens   int
	Temperature float64
}

// ChatResponse is a provider-independent completion response: either free
// text (FinishReasonStop) or tool calls (FinishReasonToolCalls).
type ChatResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Model        string
	TokensIn     int
	TokensOut    int
	LatencyMs    int64
}

// StreamCallback is called for each text delta during streaming.
type StreamCallback func(delta string) error

// Client is the interface for LLM providers.
type Client interface {
	// Chat sends a completion request and returns the response.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// ChatStream sends a streaming completion request. Text deltas flow
	// through the callback; tool-call deltas are accumulated and returned
	// on the final response.
	ChatStream(ctx context.Context, req *ChatRequest, callback StreamCallback) (*ChatResponse, error)

	// Name returns the provider name.
	Name() string

	// Models returns available models.
	Models() []string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// NewClient creates a new LLM client based on provider.
func NewClient(provider Provider, apiKey string) (Client, error) {
	switch provider {
	case ProviderAnthropic:
		return NewAnthropicClient(apiKey)
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey)
	default:
		return NewOpenAIClient(apiKey)
	}
}
