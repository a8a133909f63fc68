package llm

import "context"

// Client is the interface every LLM provider must implement.
//
// A Client is bound to one provider and one model at construction time;
// there is no hidden process-wide instance. The conversation loop takes
// a single Client — trying multiple providers in order is the HTTP
// handler's job.
type Client interface {
	// Chat sends a chat completion request and returns the response.
	// tools carries the registry catalog in function-calling format.
	Chat(ctx context.Context, messages []Message, tools []map[string]any) (*ChatResponse, error)

	// Provider returns the provider name ("mistral", "deepseek").
	Provider() string

	// Model returns the configured model name.
	Model() string

	// Ping checks if the provider is reachable with the configured key.
	Ping(ctx context.Context) error
}
