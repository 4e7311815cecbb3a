package server

import (
	"log/slog"
	"net/http"

	"github.com/invopop/jsonschema"

	"github.com/localrt/localrt/pkg/config"
	"github.com/localrt/localrt/pkg/llms"
	"github.com/localrt/localrt/pkg/reasoning"
	"github.com/localrt/localrt/pkg/session"
	"github.com/localrt/localrt/pkg/tools"
)

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type modelList struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

// handleModels aggregates every provider's model list. The default
// provider's models keep their bare ids; other providers are exposed as
// "provider:id". Providers that fail to answer are skipped.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	out := modelList{Object: "list", Data: []modelEntry{}}
	created := nowSeconds()
	defaultName := s.providers.DefaultProviderName()

	for _, p := range s.providers.List() {
		models, err := p.ListModels(r.Context())
		if err != nil {
			slog.Debug("list models failed", "provider", p.Name(), "error", err)
			continue
		}
		for _, m := range models {
			id := m.ID
			if p.Name() != defaultName {
				id = p.Name() + ":" + m.ID
			}
			ownedBy := m.OwnedBy
			if ownedBy == "" {
				ownedBy = p.Name()
			}
			out.Data = append(out.Data, modelEntry{
				ID: id, Object: "model", Created: created, OwnedBy: ownedBy,
			})
		}
	}

	writeJSON(w, http.StatusOK, out)
}

type embeddingsUsage struct {
	PromptTokens *int `json:"prompt_tokens"`
	TotalTokens  *int `json:"total_tokens"`
}

type embeddingEntry struct {
	Object    string    `json:"object"`
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}

type embeddingsResponse struct {
	Object string           `json:"object"`
	Data   []embeddingEntry `json:"data"`
	Model  string           `json:"model"`
	Usage  embeddingsUsage  `json:"usage"`
}

func (s *Server) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid json body", "invalid_request_error")
		return
	}
	model := stringField(body, "model")
	if model == "" {
		writeError(w, http.StatusBadRequest, "missing field: model", "invalid_request_error")
		return
	}
	input, ok := parseInputText(body)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing field: input", "invalid_request_error")
		return
	}

	resolved, err := s.providers.Resolve(model)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown provider in model", "invalid_request_error")
		return
	}

	vec, err := resolved.Provider.Embeddings(r.Context(), resolved.Model, input)
	if err != nil {
		msg := err.Error()
		if msg == "" {
			msg = "upstream error"
		}
		writeError(w, http.StatusBadGateway, msg, "api_error")
		return
	}

	writeJSON(w, http.StatusOK, embeddingsResponse{
		Object: "list",
		Data:   []embeddingEntry{{Object: "embedding", Embedding: vec, Index: 0}},
		Model:  model,
	})
}

type responseContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responseMessage struct {
	ID      string            `json:"id"`
	Type    string            `json:"type"`
	Role    string            `json:"role"`
	Content []responseContent `json:"content"`
}

type responsesResponse struct {
	ID      string            `json:"id"`
	Object  string            `json:"object"`
	Created int64             `json:"created"`
	Model   string            `json:"model"`
	Output  []responseMessage `json:"output"`
}

// handleResponses is the minimal /v1/responses shim: single text input in,
// single assistant message out.
func (s *Server) handleResponses(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid json body", "invalid_request_error")
		return
	}
	model := stringField(body, "model")
	if model == "" {
		writeError(w, http.StatusBadRequest, "missing field: model", "invalid_request_error")
		return
	}
	input, ok := parseInputText(body)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing field: input", "invalid_request_error")
		return
	}

	messages := []llms.Message{{Role: "user", Content: input}}

	var content string
	if model == reasoning.FakeModelName {
		content = reasoning.FakeModelOnce(messages)
	} else {
		resolved, err := s.providers.Resolve(model)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unknown provider in model", "invalid_request_error")
			return
		}
		resp, err := resolved.Provider.ChatOnce(r.Context(), &llms.ChatRequest{
			Model:    resolved.Model,
			Messages: messages,
			Sampling: llms.NormalizeSampling(model, llms.Sampling{}),
		})
		if err != nil {
			msg := err.Error()
			if msg == "" {
				msg = "upstream error"
			}
			writeError(w, http.StatusBadGateway, msg, "api_error")
			return
		}
		content = resp.Content
	}

	writeJSON(w, http.StatusOK, responsesResponse{
		ID:      session.NewID("resp"),
		Object:  "response",
		Created: nowSeconds(),
		Model:   model,
		Output: []responseMessage{{
			ID:      session.NewID("msg"),
			Type:    "message",
			Role:    "assistant",
			Content: []responseContent{{Type: "output_text", Text: content}},
		}},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":           true,
		"unix_seconds": nowSeconds(),
	})
}

// handleRefreshMCPTools re-discovers tools from the configured MCP servers.
// With no servers configured it reports a trivially successful refresh.
func (s *Server) handleRefreshMCPTools(w http.ResponseWriter, r *http.Request) {
	if s.mcpSource == nil || !s.mcpSource.HasServers() {
		writeJSON(w, http.StatusOK, tools.RefreshResult{
			OK:     true,
			Errors: []tools.RefreshServerErr{},
		})
		return
	}
	writeJSON(w, http.StatusOK, s.mcpSource.Refresh(r.Context(), s.tools))
}

// handleSchema serves the JSON Schema of the runtime configuration.
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	reflector := jsonschema.Reflector{}
	writeJSON(w, http.StatusOK, reflector.Reflect(&config.Config{}))
}
