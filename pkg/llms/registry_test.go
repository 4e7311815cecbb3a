package llms

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name string
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	return []ModelInfo{{ID: "m1", OwnedBy: p.name}}, nil
}

func (p *stubProvider) ChatOnce(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return &ChatResponse{Model: req.Model, Content: "ok", FinishReason: "stop"}, nil
}

func (p *stubProvider) ChatStream(ctx context.Context, req *ChatRequest, onDelta func(string), onDone func(string)) error {
	onDelta("ok")
	onDone("stop")
	return nil
}

func (p *stubProvider) Embeddings(ctx context.Context, model, input string) ([]float64, error) {
	return []float64{0.1}, nil
}

func TestRegistryResolveDefault(t *testing.T) {
	r := NewRegistry("mnn")
	require.NoError(t, r.Register(&stubProvider{name: "mnn"}))
	require.NoError(t, r.Register(&stubProvider{name: "lmdeploy"}))

	resolved, err := r.Resolve("mock-model")
	require.NoError(t, err)
	assert.Equal(t, "mnn", resolved.ProviderName)
	assert.Equal(t, "mock-model", resolved.Model)
}

func TestRegistryResolvePrefixed(t *testing.T) {
	r := NewRegistry("mnn")
	require.NoError(t, r.Register(&stubProvider{name: "mnn"}))
	require.NoError(t, r.Register(&stubProvider{name: "lmdeploy"}))

	resolved, err := r.Resolve("lmdeploy:mock-model")
	require.NoError(t, err)
	assert.Equal(t, "lmdeploy", resolved.ProviderName)
	assert.Equal(t, "mock-model", resolved.Model)
}

func TestRegistryResolveSplitsOnFirstColon(t *testing.T) {
	r := NewRegistry("mnn")
	require.NoError(t, r.Register(&stubProvider{name: "lmdeploy"}))

	resolved, err := r.Resolve("lmdeploy:org:model")
	require.NoError(t, err)
	assert.Equal(t, "org:model", resolved.Model)
}

func TestRegistryResolveUnknownProvider(t *testing.T) {
	r := NewRegistry("mnn")
	require.NoError(t, r.Register(&stubProvider{name: "mnn"}))

	_, err := r.Resolve("nope:model")
	assert.EqualError(t, err, "unknown provider in model")
}

func TestRegistryListPreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry("a")
	require.NoError(t, r.Register(&stubProvider{name: "c"}))
	require.NoError(t, r.Register(&stubProvider{name: "a"}))
	require.NoError(t, r.Register(&stubProvider{name: "b"}))

	var names []string
	for _, p := range r.List() {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"c", "a", "b"}, names)
}

func TestRegistryRejectsNilAndUnnamed(t *testing.T) {
	r := NewRegistry("a")
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(&stubProvider{name: ""}))
}
