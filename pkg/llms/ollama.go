package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/localrt/localrt/pkg/config"
	"github.com/localrt/localrt/pkg/httpclient"
)

// Ollama adapts a local Ollama daemon (/api/tags, /api/chat,
// /api/embeddings). Sampling knobs map onto Ollama's options object.
type Ollama struct {
	endpoint config.Endpoint
	client   *httpclient.Client
}

var _ Provider = (*Ollama)(nil)

func NewOllama(endpoint config.Endpoint) *Ollama {
	return &Ollama{
		endpoint: endpoint,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 300 * time.Second}),
			httpclient.WithMaxRetries(2),
			httpclient.WithBaseDelay(500*time.Millisecond),
		),
	}
}

func (p *Ollama) Name() string {
	return "ollama"
}

func (p *Ollama) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.endpoint.URL()+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: failed to connect")
	}
	return resp, nil
}

func (p *Ollama) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := p.do(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ollama: /api/tags http %d", resp.StatusCode)
	}

	var parsed struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("ollama: invalid json from /api/tags")
	}
	out := make([]ModelInfo, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		if m.Name == "" {
			continue
		}
		out = append(out, ModelInfo{ID: m.Name, OwnedBy: "ollama"})
	}
	return out, nil
}

func (p *Ollama) ChatOnce(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	messages := make([]openAIWireMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openAIWireMessage{Role: m.Role, Content: m.Content})
	}
	payload := map[string]any{
		"model":    req.Model,
		"stream":   false,
		"messages": messages,
	}
	options := map[string]any{}
	if req.Sampling.Temperature != nil {
		options["temperature"] = *req.Sampling.Temperature
	}
	if req.Sampling.TopP != nil {
		options["top_p"] = *req.Sampling.TopP
	}
	if req.Sampling.MinP != nil {
		options["min_p"] = *req.Sampling.MinP
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if len(options) > 0 {
		payload["options"] = options
	}

	resp, err := p.do(ctx, http.MethodPost, "/api/chat", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("ollama: /api/chat http %d", resp.StatusCode)
	}

	var parsed struct {
		Message *struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || parsed.Message == nil {
		return nil, fmt.Errorf("ollama: invalid json from /api/chat")
	}
	return &ChatResponse{Model: req.Model, Content: parsed.Message.Content, FinishReason: "stop"}, nil
}

func (p *Ollama) ChatStream(ctx context.Context, req *ChatRequest, onDelta func(string), onDone func(string)) error {
	resp, err := p.ChatOnce(ctx, req)
	if err != nil {
		return err
	}
	const chunkSize = 64
	for off := 0; off < len(resp.Content); off += chunkSize {
		end := off + chunkSize
		if end > len(resp.Content) {
			end = len(resp.Content)
		}
		onDelta(resp.Content[off:end])
	}
	onDone(resp.FinishReason)
	return nil
}

func (p *Ollama) Embeddings(ctx context.Context, model, input string) ([]float64, error) {
	resp, err := p.do(ctx, http.MethodPost, "/api/embeddings", map[string]any{
		"model":  model,
		"prompt": input,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("ollama: /api/embeddings http %d", resp.StatusCode)
	}

	var parsed struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("ollama: invalid json from /api/embeddings")
	}
	return parsed.Embedding, nil
}
