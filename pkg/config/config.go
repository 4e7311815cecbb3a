// Package config holds the environment-driven process configuration for the
// runtime gateway. All settings come from environment variables; unknown
// variables are ignored.
package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Endpoint is a parsed HTTP endpoint (scheme://host:port/base_path).
type Endpoint struct {
	Scheme   string `json:"scheme"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	BasePath string `json:"base_path,omitempty"`
}

// BaseURL renders the endpoint without the base path.
func (e Endpoint) BaseURL() string {
	scheme := e.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, e.Host, e.Port)
}

// URL renders the endpoint including the base path.
func (e Endpoint) URL() string {
	return e.BaseURL() + e.BasePath
}

// Addr renders host:port for raw TCP dialing.
func (e Endpoint) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

func (e Endpoint) IsZero() bool {
	return e.Host == "" && e.Port == 0
}

// ParseEndpoint parses "scheme://host:port/base" with every part optional.
// Missing host defaults to 127.0.0.1, missing port to defaultPort.
func ParseEndpoint(raw string, defaultPort int) Endpoint {
	ep := Endpoint{Scheme: "http"}
	s := raw
	if rest, ok := strings.CutPrefix(s, "http://"); ok {
		s = rest
	} else if rest, ok := strings.CutPrefix(s, "https://"); ok {
		ep.Scheme = "https"
		s = rest
	}

	if i := strings.Index(s, "/"); i >= 0 {
		ep.BasePath = strings.TrimRight(s[i:], "/")
		s = s[:i]
	}

	if i := strings.LastIndex(s, ":"); i >= 0 {
		ep.Host = s[:i]
		ep.Port, _ = strconv.Atoi(s[i+1:])
	} else {
		ep.Host = s
	}
	if ep.Port == 0 {
		ep.Port = defaultPort
	}
	if ep.Host == "" {
		ep.Host = "127.0.0.1"
	}
	return ep
}

// Listen is the address the gateway binds to.
type Listen struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (l Listen) Addr() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

// SessionStore selects and configures the session persistence backend.
type SessionStore struct {
	// Type is one of "memory", "file", "minimemory".
	Type string `json:"type"`
	// Path is the file-backed store location (a directory or a sessions.json
	// path). Setting it implies Type="file" unless Type is explicit.
	Path        string   `json:"path,omitempty"`
	Endpoint    Endpoint `json:"endpoint,omitzero"`
	Password    string   `json:"-"`
	DB          int      `json:"db"`
	Namespace   string   `json:"namespace,omitempty"`
	ResetOnBoot bool     `json:"reset_on_boot"`
}

// LlamaCpp carries the local llama.cpp engine knobs. The engine itself is an
// external collaborator; the gateway only validates that a model path is
// configured before routing to it.
type LlamaCpp struct {
	ModelPath       string `json:"model_path,omitempty"`
	NBatch          int    `json:"n_batch,omitempty"`
	NUBatch         int    `json:"n_ubatch,omitempty"`
	FlashAttn       bool   `json:"flash_attn,omitempty"`
	UnloadAfterChat bool   `json:"unload_after_chat,omitempty"`
}

// MCP configures tool discovery over the Model Context Protocol.
type MCP struct {
	Hosts            []Endpoint `json:"hosts,omitempty"`
	ConnectTimeoutS  int        `json:"connect_timeout_s"`
	ReadTimeoutS     int        `json:"read_timeout_s"`
	WriteTimeoutS    int        `json:"write_timeout_s"`
	MaxInFlight      int        `json:"max_in_flight"`
}

// Config is the full runtime configuration.
type Config struct {
	Listen          Listen       `json:"listen"`
	DefaultProvider string       `json:"default_provider"`
	WorkspaceRoot   string       `json:"workspace_root,omitempty"`

	Ollama   Endpoint `json:"ollama,omitzero"`
	MNN      Endpoint `json:"mnn,omitzero"`
	LMDeploy Endpoint `json:"lmdeploy,omitzero"`

	OllamaEnabled   bool `json:"ollama_enabled"`
	MNNEnabled      bool `json:"mnn_enabled"`
	LMDeployEnabled bool `json:"lmdeploy_enabled"`

	LlamaCpp LlamaCpp `json:"llama_cpp,omitzero"`

	MCP          MCP          `json:"mcp,omitzero"`
	SessionStore SessionStore `json:"session_store"`

	LogLevel  string `json:"log_level,omitempty"`
	LogFormat string `json:"log_format,omitempty"`
}

// Default ports for the known collaborators.
const (
	DefaultOllamaPort   = 11434
	DefaultMNNPort      = 8000
	DefaultLMDeployPort = 23333
	DefaultMCPPort      = 9000
	DefaultKVPort       = 6379
)

// NewConfig returns the built-in defaults applied before the environment is
// consulted.
func NewConfig() *Config {
	return &Config{
		Listen:          Listen{Host: "127.0.0.1", Port: 8080},
		DefaultProvider: "ollama",
		SessionStore:    SessionStore{Type: "memory"},
		MCP: MCP{
			ConnectTimeoutS: 5,
			ReadTimeoutS:    120,
			WriteTimeoutS:   30,
			MaxInFlight:     8,
		},
	}
}

// Validate rejects configurations the gateway cannot start with.
func (c *Config) Validate() error {
	if c.Listen.Port <= 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("config: invalid listen port %d", c.Listen.Port)
	}
	if c.DefaultProvider == "" {
		return fmt.Errorf("config: default provider must not be empty")
	}
	switch c.SessionStore.Type {
	case "memory", "file", "minimemory", "redis":
	default:
		return fmt.Errorf("config: unknown session store type %q", c.SessionStore.Type)
	}
	if c.SessionStore.Type == "file" && c.SessionStore.Path == "" {
		return fmt.Errorf("config: file session store requires a path")
	}
	return nil
}
