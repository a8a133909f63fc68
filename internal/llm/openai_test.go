package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newTestClient points an OpenAICompatClient at a test server.
func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenAICompatClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewMistralClient("test-key", "mistral-small-latest", srv.URL, nil)
}

func TestChat_TextResponse(t *testing.T) {
	var gotAuth string
	var gotReq oaRequest

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"model": "mistral-small-latest",
			"choices": []map[string]any{
				{
					"message":       map[string]any{"role": "assistant", "content": "Hola, ¿en qué puedo ayudarte?"},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 9},
		})
	})

	resp, err := client.Chat(context.Background(), []Message{
		{Role: "system", Content: "persona"},
		{Role: "user", Content: "hola"},
	}, nil)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotReq.Model != "mistral-small-latest" {
		t.Errorf("wire model = %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Errorf("wire messages = %+v", gotReq.Messages)
	}
	if resp.Message.Content != "Hola, ¿en qué puedo ayudarte?" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 9 {
		t.Errorf("tokens = %d/%d", resp.InputTokens, resp.OutputTokens)
	}
	if resp.Provider != "mistral" {
		t.Errorf("provider = %q", resp.Provider)
	}
}

func TestChat_ToolCallArgumentsDecoded(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"model": "mistral-small-latest",
			"choices": []map[string]any{
				{
					"message": map[string]any{
						"role":    "assistant",
						"content": "",
						"tool_calls": []map[string]any{
							{
								"id":   "call_1",
								"type": "function",
								"function": map[string]any{
									"name":      "search_clients",
									"arguments": `{"query": "acme"}`,
								},
							},
						},
					},
					"finish_reason": "tool_calls",
				},
			},
		})
	})

	resp, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "busca acme"}}, nil)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(resp.Message.ToolCalls))
	}
	tc := resp.Message.ToolCalls[0]
	if tc.ID != "call_1" || tc.Function.Name != "search_clients" {
		t.Errorf("tool call = %+v", tc)
	}
	if got := tc.Function.Arguments["query"]; got != "acme" {
		t.Errorf("arguments[query] = %v, want acme", got)
	}
}

func TestChat_ToolResultRoundTrip(t *testing.T) {
	var gotReq oaRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "listo"}, "finish_reason": "stop"},
			},
		})
	})

	assistant := Message{Role: "assistant", ToolCalls: []ToolCall{
		NewToolCall("call_9", "get_all_clients", map[string]any{"limit": 5}),
	}}
	toolResult := Message{Role: "tool", Content: "3 clientes", ToolCallID: "call_9"}

	if _, err := client.Chat(context.Background(), []Message{assistant, toolResult}, nil); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	// Arguments must be a JSON string on the wire.
	if len(gotReq.Messages) != 2 {
		t.Fatalf("wire messages = %d, want 2", len(gotReq.Messages))
	}
	wtc := gotReq.Messages[0].ToolCalls
	if len(wtc) != 1 || wtc[0].Type != "function" {
		t.Fatalf("wire tool calls = %+v", wtc)
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(wtc[0].Function.Arguments), &args); err != nil {
		t.Fatalf("wire arguments not valid JSON string: %q", wtc[0].Function.Arguments)
	}
	if args["limit"] != float64(5) {
		t.Errorf("wire arguments = %v", args)
	}
	if gotReq.Messages[1].ToolCallID != "call_9" {
		t.Errorf("tool_call_id = %q", gotReq.Messages[1].ToolCallID)
	}
}

func TestChat_ErrorStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "invalid api key"}`, http.StatusUnauthorized)
	})

	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hola"}}, nil)
	if err == nil {
		t.Fatal("expected error")
	}

	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("error type = %T, want *ProviderError", err)
	}
	if perr.Status != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", perr.Status)
	}
	if perr.Provider != "mistral" {
		t.Errorf("provider = %q", perr.Provider)
	}
}

func TestChat_EmptyChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	})

	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hola"}}, nil)
	if err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestNewDeepSeekClient_Defaults(t *testing.T) {
	c := NewDeepSeekClient("k", "deepseek-chat", "", nil)
	if c.Provider() != "deepseek" {
		t.Errorf("provider = %q", c.Provider())
	}
	if c.Model() != "deepseek-chat" {
		t.Errorf("model = %q", c.Model())
	}
	if c.baseURL != DeepSeekBaseURL {
		t.Errorf("baseURL = %q, want default", c.baseURL)
	}
}
