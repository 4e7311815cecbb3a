package llms

import (
	"context"
	"fmt"
	"os"

	"github.com/localrt/localrt/pkg/config"
)

// LlamaCpp guards the in-process llama.cpp engine slot. The engine itself is
// an external collaborator; when no model path is configured every operation
// fails with an error naming the provider, which the HTTP layer surfaces as
// a 502.
type LlamaCpp struct {
	cfg config.LlamaCpp
}

var _ Provider = (*LlamaCpp)(nil)

func NewLlamaCpp(cfg config.LlamaCpp) *LlamaCpp {
	return &LlamaCpp{cfg: cfg}
}

func (p *LlamaCpp) Name() string {
	return "llama_cpp"
}

func (p *LlamaCpp) configured() error {
	if p.cfg.ModelPath == "" {
		return fmt.Errorf("llama_cpp: model path not configured (set LLAMA_CPP_MODEL)")
	}
	if _, err := os.Stat(p.cfg.ModelPath); err != nil {
		return fmt.Errorf("llama_cpp: model file not found: %s", p.cfg.ModelPath)
	}
	return nil
}

func (p *LlamaCpp) ListModels(ctx context.Context) ([]ModelInfo, error) {
	if err := p.configured(); err != nil {
		return nil, err
	}
	return []ModelInfo{{ID: p.cfg.ModelPath, OwnedBy: "llama_cpp"}}, nil
}

func (p *LlamaCpp) ChatOnce(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if err := p.configured(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("llama_cpp: in-process engine not available in this build")
}

func (p *LlamaCpp) ChatStream(ctx context.Context, req *ChatRequest, onDelta func(string), onDone func(string)) error {
	_, err := p.ChatOnce(ctx, req)
	return err
}

func (p *LlamaCpp) Embeddings(ctx context.Context, model, input string) ([]float64, error) {
	if err := p.configured(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("llama_cpp: in-process engine not available in this build")
}
