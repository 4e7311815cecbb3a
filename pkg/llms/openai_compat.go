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

// OpenAICompat adapts any backend that speaks the OpenAI-subset HTTP
// protocol (lmdeploy, MNN server, vLLM and friends).
type OpenAICompat struct {
	name     string
	endpoint config.Endpoint
	client   *httpclient.Client
}

var _ Provider = (*OpenAICompat)(nil)

func NewOpenAICompat(name string, endpoint config.Endpoint) *OpenAICompat {
	return &OpenAICompat{
		name:     name,
		endpoint: endpoint,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 300 * time.Second}),
			httpclient.WithMaxRetries(2),
			httpclient.WithBaseDelay(500*time.Millisecond),
		),
	}
}

func (p *OpenAICompat) Name() string {
	return p.name
}

func (p *OpenAICompat) url(path string) string {
	return p.endpoint.URL() + path
}

func (p *OpenAICompat) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url(path), nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to connect", p.name)
	}
	return resp, nil
}

func (p *OpenAICompat) post(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url(path), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to connect", p.name)
	}
	return resp, nil
}

func (p *OpenAICompat) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := p.get(ctx, "/v1/models")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s: /v1/models http %d", p.name, resp.StatusCode)
	}

	var parsed struct {
		Data []struct {
			ID      string `json:"id"`
			OwnedBy string `json:"owned_by"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%s: invalid json from /v1/models", p.name)
	}

	out := make([]ModelInfo, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		if m.ID == "" {
			continue
		}
		ownedBy := m.OwnedBy
		if ownedBy == "" {
			ownedBy = p.name
		}
		out = append(out, ModelInfo{ID: m.ID, OwnedBy: ownedBy})
	}
	return out, nil
}

type openAIWireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatPayload struct {
	Model       string              `json:"model"`
	Stream      bool                `json:"stream"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Messages    []openAIWireMessage `json:"messages"`
	Temperature *float64            `json:"temperature,omitempty"`
	TopP        *float64            `json:"top_p,omitempty"`
	MinP        *float64            `json:"min_p,omitempty"`
}

func (p *OpenAICompat) ChatOnce(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	payload := openAIChatPayload{
		Model:       req.Model,
		Stream:      false,
		Messages:    make([]openAIWireMessage, 0, len(req.Messages)),
		Temperature: req.Sampling.Temperature,
		TopP:        req.Sampling.TopP,
		MinP:        req.Sampling.MinP,
	}
	// max_tokens=0 means "backend default", so it is simply omitted.
	if req.MaxTokens > 0 {
		payload.MaxTokens = req.MaxTokens
	}
	for _, m := range req.Messages {
		payload.Messages = append(payload.Messages, openAIWireMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := p.post(ctx, "/v1/chat/completions", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%s: /v1/chat/completions http %d", p.name, resp.StatusCode)
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content *string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == nil {
		return nil, fmt.Errorf("%s: invalid json from /v1/chat/completions", p.name)
	}

	return &ChatResponse{
		Model:        req.Model,
		Content:      *parsed.Choices[0].Message.Content,
		FinishReason: parsed.Choices[0].FinishReason,
	}, nil
}

// ChatStream synthesizes a delta stream from a single completion. The
// upstream peers this adapter targets accept stream=true, but a synthesized
// stream keeps the gateway's tool loop a strict request/response cycle.
func (p *OpenAICompat) ChatStream(ctx context.Context, req *ChatRequest, onDelta func(string), onDone func(string)) error {
	resp, err := p.ChatOnce(ctx, req)
	if err != nil {
		return err
	}
	const chunkSize = 64
	content := resp.Content
	for off := 0; off < len(content); off += chunkSize {
		end := off + chunkSize
		if end > len(content) {
			end = len(content)
		}
		onDelta(content[off:end])
	}
	onDone(resp.FinishReason)
	return nil
}

func (p *OpenAICompat) Embeddings(ctx context.Context, model, input string) ([]float64, error) {
	resp, err := p.post(ctx, "/v1/embeddings", map[string]any{
		"model": model,
		"input": input,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%s: /v1/embeddings http %d", p.name, resp.StatusCode)
	}

	var parsed struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || len(parsed.Data) == 0 {
		return nil, fmt.Errorf("%s: invalid json from /v1/embeddings", p.name)
	}
	return parsed.Data[0].Embedding, nil
}
