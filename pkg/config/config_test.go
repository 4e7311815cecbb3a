package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		defaultPort int
		want        Endpoint
	}{
		{
			name:        "full url",
			raw:         "http://10.0.0.5:9001/base",
			defaultPort: 9000,
			want:        Endpoint{Scheme: "http", Host: "10.0.0.5", Port: 9001, BasePath: "/base"},
		},
		{
			name:        "https scheme",
			raw:         "https://api.example.com",
			defaultPort: 9000,
			want:        Endpoint{Scheme: "https", Host: "api.example.com", Port: 9000},
		},
		{
			name:        "host only",
			raw:         "localhost",
			defaultPort: 11434,
			want:        Endpoint{Scheme: "http", Host: "localhost", Port: 11434},
		},
		{
			name:        "host and port without scheme",
			raw:         "127.0.0.1:8000",
			defaultPort: 9000,
			want:        Endpoint{Scheme: "http", Host: "127.0.0.1", Port: 8000},
		},
		{
			name:        "trailing slash dropped from base path",
			raw:         "http://127.0.0.1:19001/",
			defaultPort: 9000,
			want:        Endpoint{Scheme: "http", Host: "127.0.0.1", Port: 19001},
		},
		{
			name:        "empty host defaults to loopback",
			raw:         ":7777",
			defaultPort: 9000,
			want:        Endpoint{Scheme: "http", Host: "127.0.0.1", Port: 7777},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseEndpoint(tt.raw, tt.defaultPort))
		})
	}
}

func TestEndpointRendering(t *testing.T) {
	ep := ParseEndpoint("http://127.0.0.1:19002/v1", 9000)
	assert.Equal(t, "http://127.0.0.1:19002", ep.BaseURL())
	assert.Equal(t, "http://127.0.0.1:19002/v1", ep.URL())
	assert.Equal(t, "127.0.0.1:19002", ep.Addr())
}

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg := LoadFromEnv()
	assert.Equal(t, "127.0.0.1", cfg.Listen.Host)
	assert.Equal(t, 8080, cfg.Listen.Port)
	assert.Equal(t, "memory", cfg.SessionStore.Type)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnvSessionStore(t *testing.T) {
	t.Setenv("RUNTIME_SESSION_STORE", "/tmp/store")
	cfg := LoadFromEnv()
	assert.Equal(t, "file", cfg.SessionStore.Type)
	assert.Equal(t, "/tmp/store", cfg.SessionStore.Path)

	t.Setenv("RUNTIME_SESSION_STORE_TYPE", "minimemory")
	t.Setenv("RUNTIME_SESSION_STORE_ENDPOINT", "http://127.0.0.1:19012")
	t.Setenv("RUNTIME_SESSION_STORE_PASSWORD", "pw")
	t.Setenv("RUNTIME_SESSION_STORE_DB", "7")
	t.Setenv("RUNTIME_SESSION_STORE_NAMESPACE", "regression_mm")
	cfg = LoadFromEnv()
	assert.Equal(t, "minimemory", cfg.SessionStore.Type)
	assert.Equal(t, 19012, cfg.SessionStore.Endpoint.Port)
	assert.Equal(t, "pw", cfg.SessionStore.Password)
	assert.Equal(t, 7, cfg.SessionStore.DB)
	assert.Equal(t, "regression_mm", cfg.SessionStore.Namespace)
}

func TestLoadFromEnvExplicitTypeWinsOverPath(t *testing.T) {
	t.Setenv("RUNTIME_SESSION_STORE_PATH", "/tmp/store")
	t.Setenv("RUNTIME_SESSION_STORE_TYPE", "memory")
	cfg := LoadFromEnv()
	assert.Equal(t, "memory", cfg.SessionStore.Type)
}

func TestLoadFromEnvMCPHosts(t *testing.T) {
	t.Setenv("MCP_HOSTS", "http://127.0.0.1:19001/, http://127.0.0.1:19002")
	cfg := LoadFromEnv()
	require.Len(t, cfg.MCP.Hosts, 2)
	assert.Equal(t, 19001, cfg.MCP.Hosts[0].Port)
	assert.Equal(t, 19002, cfg.MCP.Hosts[1].Port)
}

func TestLoadFromEnvProviders(t *testing.T) {
	t.Setenv("RUNTIME_PROVIDER", "mnn")
	t.Setenv("MNN_HOST", "http://127.0.0.1:19002")
	t.Setenv("LMDEPLOY_HOST", "127.0.0.1")
	cfg := LoadFromEnv()
	assert.Equal(t, "mnn", cfg.DefaultProvider)
	assert.True(t, cfg.MNNEnabled)
	assert.True(t, cfg.LMDeployEnabled)
	assert.Equal(t, DefaultLMDeployPort, cfg.LMDeploy.Port)
	assert.False(t, cfg.OllamaEnabled)
}

func TestValidate(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())

	cfg.SessionStore.Type = "cassandra"
	assert.Error(t, cfg.Validate())

	cfg = NewConfig()
	cfg.SessionStore.Type = "file"
	assert.Error(t, cfg.Validate(), "file store without a path must fail")

	cfg = NewConfig()
	cfg.Listen.Port = 0
	assert.Error(t, cfg.Validate())
}
