package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/enviamx/paqbot/internal/httpkit"
)

// Default endpoints for the OpenAI-compatible providers we support.
const (
	MistralBaseURL  = "https://api.mistral.ai/v1"
	DeepSeekBaseURL = "https://api.deepseek.com/v1"
)

// OpenAICompatClient speaks the OpenAI chat-completions wire format,
// which both Mistral and DeepSeek implement. One client type, two
// constructors.
type OpenAICompatClient struct {
	provider   string
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewMistralClient creates a client for the Mistral chat API.
// baseURL overrides the default endpoint when non-empty.
func NewMistralClient(apiKey, model, baseURL string, logger *slog.Logger) *OpenAICompatClient {
	return newOpenAICompat("mistral", MistralBaseURL, apiKey, model, baseURL, logger)
}

// NewDeepSeekClient creates a client for the DeepSeek chat API.
// baseURL overrides the default endpoint when non-empty.
func NewDeepSeekClient(apiKey, model, baseURL string, logger *slog.Logger) *OpenAICompatClient {
	return newOpenAICompat("deepseek", DeepSeekBaseURL, apiKey, model, baseURL, logger)
}

func newOpenAICompat(provider, defaultURL, apiKey, model, baseURL string, logger *slog.Logger) *OpenAICompatClient {
	if baseURL == "" {
		baseURL = defaultURL
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Providers can take a long time before sending headers on large
	// prompts. Use a generous response header timeout and no overall
	// client timeout; callers control the deadline via ctx.
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 120 * time.Second

	return &OpenAICompatClient{
		provider: provider,
		baseURL:  baseURL,
		apiKey:   apiKey,
		model:    model,
		logger:   logger.With("provider", provider),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithTransport(t),
		),
	}
}

// Provider returns the provider name.
func (c *OpenAICompatClient) Provider() string { return c.provider }

// Model returns the configured model name.
func (c *OpenAICompatClient) Model() string { return c.model }

// OpenAI-compatible request/response types. On the wire, tool call
// arguments are a JSON-encoded string; internally they are a
// map[string]any. Conversion happens in toWire / fromWire.

type oaRequest struct {
	Model      string           `json:"model"`
	Messages   []oaMessage      `json:"messages"`
	Tools      []map[string]any `json:"tools,omitempty"`
	ToolChoice string           `json:"tool_choice,omitempty"`
}

type oaMessage struct {
	Role       string       `json:"role"`
	Content    string       `json:"content"`
	ToolCalls  []oaToolCall `json:"tool_calls,omitempty"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
}

type oaToolCall struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type oaResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      oaMessage `json:"message"`
		FinishReason string    `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// toWire converts a provider-neutral message to the wire format.
func toWire(m Message) oaMessage {
	wm := oaMessage{
		Role:       m.Role,
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
	}
	for _, tc := range m.ToolCalls {
		var wtc oaToolCall
		wtc.ID = tc.ID
		wtc.Type = "function"
		wtc.Function.Name = tc.Function.Name
		args := "{}"
		if tc.Function.Arguments != nil {
			if b, err := json.Marshal(tc.Function.Arguments); err == nil {
				args = string(b)
			}
		}
		wtc.Function.Arguments = args
		wm.ToolCalls = append(wm.ToolCalls, wtc)
	}
	return wm
}

// fromWire converts a wire message back to the neutral format.
// Unparseable argument strings become empty maps; the tool handler
// reports the missing fields, which is more useful to the model than
// a decode error here.
func fromWire(wm oaMessage) Message {
	m := Message{
		Role:       wm.Role,
		Content:    wm.Content,
		ToolCallID: wm.ToolCallID,
	}
	for _, wtc := range wm.ToolCalls {
		args := map[string]any{}
		if wtc.Function.Arguments != "" {
			_ = json.Unmarshal([]byte(wtc.Function.Arguments), &args)
		}
		m.ToolCalls = append(m.ToolCalls, NewToolCall(wtc.ID, wtc.Function.Name, args))
	}
	return m
}

// Chat sends a chat completion request.
func (c *OpenAICompatClient) Chat(ctx context.Context, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	req := oaRequest{
		Model:    c.model,
		Messages: make([]oaMessage, 0, len(messages)),
		Tools:    tools,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, toWire(m))
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &ProviderError{Provider: c.provider, Message: "marshal request", Err: err}
	}

	c.logger.Log(ctx, LevelTrace, "llm request", "payload", string(body))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &ProviderError{Provider: c.provider, Message: "create request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: c.provider, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, &ProviderError{
			Provider: c.provider,
			Status:   resp.StatusCode,
			Message:  string(msg),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Provider: c.provider, Message: "read response", Err: err}
	}

	c.logger.Log(ctx, LevelTrace, "llm response", "payload", string(raw))

	var oaResp oaResponse
	if err := json.Unmarshal(raw, &oaResp); err != nil {
		return nil, &ProviderError{Provider: c.provider, Message: "decode response", Err: err}
	}
	if len(oaResp.Choices) == 0 {
		return nil, &ProviderError{Provider: c.provider, Message: "empty choices in response"}
	}

	choice := oaResp.Choices[0]
	out := &ChatResponse{
		Provider:     c.provider,
		Model:        oaResp.Model,
		Message:      fromWire(choice.Message),
		FinishReason: choice.FinishReason,
		InputTokens:  oaResp.Usage.PromptTokens,
		OutputTokens: oaResp.Usage.CompletionTokens,
	}

	c.logger.Debug("llm chat completed",
		"model", out.Model,
		"finish_reason", out.FinishReason,
		"tool_calls", len(out.Message.ToolCalls),
		"input_tokens", out.InputTokens,
		"output_tokens", out.OutputTokens,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	return out, nil
}

// Ping verifies the provider is reachable with the configured key by
// listing models, the cheapest authenticated call both providers offer.
func (c *OpenAICompatClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &ProviderError{Provider: c.provider, Message: "request failed", Err: err}
	}
	defer httpkit.DrainAndClose(resp.Body, 4<<10)

	if resp.StatusCode != http.StatusOK {
		return &ProviderError{Provider: c.provider, Status: resp.StatusCode, Message: "ping failed"}
	}
	return nil
}
