package provider

import "context"

// Message is one turn of portable conversation state passed to a
// provider. Role is one of "system", "user", "assistant" or "tool".
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a provider-requested tool invocation.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolSchema declares one callable tool to the provider.
type ToolSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// Request is a single chat-completion exchange.
type Request struct {
	System      string
	Messages    []Message
	Tools       []ToolSchema
	Temperature float64
	MaxTokens   int
}

// Response is the provider's reply: either final content, or one or
// more requested tool calls.
type Response struct {
	Content      string
	ToolCalls    []ToolCall
	InputTokens  int
	OutputTokens int
}

// Client is the uniform chat interface over provider SDKs.
type Client interface {
	// Complete performs one request/response exchange.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Name returns the provider name.
	Name() string
}

// ClientFactory builds a Client from a resolved profile. The execution
// loop takes a factory so tests can substitute scripted providers.
type ClientFactory func(profile *Profile) (Client, error)

// NewClient is the default factory. Local providers speak the
// OpenAI-compatible dialect against their own endpoint.
func NewClient(profile *Profile) (Client, error) {
	switch profile.Provider {
	case "anthropic":
		return newAnthropicClient(profile), nil
	case "openai", "ollama", "lmstudio":
		return newOpenAIClient(profile), nil
	default:
		return nil, NewConfigError("no client implementation for provider %q", profile.Provider)
	}
}
