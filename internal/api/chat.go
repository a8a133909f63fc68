package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/enviamx/paqbot/internal/agent"
	"github.com/enviamx/paqbot/internal/config"
	"github.com/enviamx/paqbot/internal/llm"
	"github.com/enviamx/paqbot/internal/prompts"
	"github.com/enviamx/paqbot/internal/store"
)

// chatTimeout bounds one whole chat request across all loop iterations
// and fallback attempts.
const chatTimeout = 150 * time.Second

type chatRequest struct {
	Messages []llm.Message `json:"messages"`
}

type chatResponse struct {
	Response   string                 `json:"response"`
	Provider   string                 `json:"provider"`
	Model      string                 `json:"model"`
	ToolCalls  []agent.ToolCallRecord `json:"toolCalls"`
	Iterations int                    `json:"iterations"`
	Exhausted  bool                   `json:"exhausted,omitempty"`
}

// candidate is one provider ready to try, in fallback order.
type candidate struct {
	name string
	pc   config.ProviderConfig
}

// handleChat runs one assistant conversation. Providers are tried in
// configured order; the first one that completes wins, and its name
// and model go back to the caller so the UI can show where the answer
// came from.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid JSON body", s.logger)
		return
	}
	if len(req.Messages) == 0 {
		errorJSON(w, http.StatusBadRequest, "messages is required", s.logger)
		return
	}
	for _, m := range req.Messages {
		if m.Role == "" {
			errorJSON(w, http.StatusBadRequest, "message with empty role", s.logger)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), chatTimeout)
	defer cancel()

	settings, err := s.data.GetSettings(ctx)
	if err != nil {
		s.logger.Warn("settings unavailable, using config keys", "error", err)
		settings = &store.Settings{}
	}

	candidates := s.resolveCandidates(settings)
	if len(candidates) == 0 {
		errorJSON(w, http.StatusServiceUnavailable, "no provider configured", s.logger)
		return
	}

	transcript := req.Messages
	if transcript[0].Role != "system" {
		transcript = append([]llm.Message{
			{Role: "system", Content: prompts.SystemPrompt(settings.CompanyName)},
		}, transcript...)
	}

	var lastErr error
	for _, c := range candidates {
		client := s.newClient(c.name, c.pc)
		if client == nil {
			s.logger.Warn("unknown provider in fallback order", "provider", c.name)
			continue
		}

		driver := agent.NewDriver(s.logger, client, s.registry, s.maxIterations)
		resp, err := driver.Run(ctx, transcript)
		if err != nil {
			lastErr = err
			s.logger.Warn("provider failed, trying next",
				"provider", c.name,
				"error", err,
			)
			continue
		}

		toolCalls := resp.ToolCalls
		if toolCalls == nil {
			toolCalls = []agent.ToolCallRecord{}
		}
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, chatResponse{
			Response:   resp.Content,
			Provider:   resp.Provider,
			Model:      resp.Model,
			ToolCalls:  toolCalls,
			Iterations: resp.Iterations,
			Exhausted:  resp.Exhausted,
		}, s.logger)
		return
	}

	s.logger.Error("all providers failed", "error", lastErr)
	errorJSON(w, http.StatusInternalServerError, "all providers failed", s.logger)
}

// resolveCandidates builds the ordered provider list for this request.
// API keys in the settings record override the config file; providers
// with no key at all are skipped.
func (s *Server) resolveCandidates(settings *store.Settings) []candidate {
	var out []candidate
	for _, name := range s.providers.Order {
		var pc config.ProviderConfig
		switch name {
		case "mistral":
			pc = s.providers.Mistral
			if settings.MistralAPIKey != "" {
				pc.APIKey = settings.MistralAPIKey
			}
		case "deepseek":
			pc = s.providers.DeepSeek
			if settings.DeepSeekAPIKey != "" {
				pc.APIKey = settings.DeepSeekAPIKey
			}
		default:
			s.logger.Warn("unknown provider name in config", "provider", name)
			continue
		}
		if pc.APIKey == "" {
			continue
		}
		out = append(out, candidate{name: name, pc: pc})
	}
	return out
}
