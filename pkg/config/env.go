package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnvFiles loads .env.local and .env if present. Missing files are not
// an error; variables already set in the environment win.
func LoadEnvFiles() error {
	envFiles := []string{".env.local", ".env"}

	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	return nil
}

func envStr(name string) string {
	return os.Getenv(name)
}

func envInt(name string, out *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*out = n
		}
	}
}

func envBool(name string, out *bool) {
	v := strings.ToLower(os.Getenv(name))
	switch v {
	case "1", "true", "yes", "y", "on":
		*out = true
	case "0", "false", "no", "n", "off":
		*out = false
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadFromEnv builds the configuration from the process environment on top
// of the built-in defaults.
func LoadFromEnv() *Config {
	cfg := NewConfig()

	if v := envStr("RUNTIME_LISTEN_HOST"); v != "" {
		cfg.Listen.Host = v
	}
	envInt("RUNTIME_LISTEN_PORT", &cfg.Listen.Port)

	if v := envStr("RUNTIME_PROVIDER"); v != "" {
		cfg.DefaultProvider = v
	}
	if v := envStr("RUNTIME_WORKSPACE_ROOT"); v != "" {
		cfg.WorkspaceRoot = v
	}

	cfg.LlamaCpp.ModelPath = envStr("LLAMA_CPP_MODEL")
	envInt("LLAMA_CPP_N_BATCH", &cfg.LlamaCpp.NBatch)
	envInt("LLAMA_CPP_N_UBATCH", &cfg.LlamaCpp.NUBatch)
	envBool("LLAMA_CPP_FLASH_ATTN", &cfg.LlamaCpp.FlashAttn)
	envBool("LLAMA_CPP_UNLOAD_AFTER_CHAT", &cfg.LlamaCpp.UnloadAfterChat)

	// RUNTIME_SESSION_STORE takes precedence over RUNTIME_SESSION_STORE_PATH;
	// either one implies a file-backed store unless the type is explicit.
	if v := envStr("RUNTIME_SESSION_STORE"); v != "" {
		cfg.SessionStore.Path = v
	} else if v := envStr("RUNTIME_SESSION_STORE_PATH"); v != "" {
		cfg.SessionStore.Path = v
	}
	typeExplicit := false
	if v := envStr("RUNTIME_SESSION_STORE_TYPE"); v != "" {
		cfg.SessionStore.Type = strings.ToLower(v)
		typeExplicit = true
	}
	if !typeExplicit && cfg.SessionStore.Path != "" {
		cfg.SessionStore.Type = "file"
	}
	if v := envStr("RUNTIME_SESSION_STORE_ENDPOINT"); v != "" {
		cfg.SessionStore.Endpoint = ParseEndpoint(v, DefaultKVPort)
	} else if cfg.SessionStore.Type == "minimemory" || cfg.SessionStore.Type == "redis" {
		cfg.SessionStore.Endpoint = ParseEndpoint("http://127.0.0.1:6379", DefaultKVPort)
	}
	cfg.SessionStore.Password = envStr("RUNTIME_SESSION_STORE_PASSWORD")
	envInt("RUNTIME_SESSION_STORE_DB", &cfg.SessionStore.DB)
	cfg.SessionStore.Namespace = envStr("RUNTIME_SESSION_STORE_NAMESPACE")
	envBool("RUNTIME_SESSION_STORE_RESET_ON_BOOT", &cfg.SessionStore.ResetOnBoot)

	if v := envStr("OLLAMA_HOST"); v != "" {
		cfg.Ollama = ParseEndpoint(v, DefaultOllamaPort)
		cfg.OllamaEnabled = true
	}
	if v := envStr("MNN_HOST"); v != "" {
		cfg.MNN = ParseEndpoint(v, DefaultMNNPort)
		cfg.MNNEnabled = true
	}
	if v := envStr("LMDEPLOY_HOST"); v != "" {
		cfg.LMDeploy = ParseEndpoint(v, DefaultLMDeployPort)
		cfg.LMDeployEnabled = true
	}

	if v := envStr("MCP_HOST"); v != "" {
		cfg.MCP.Hosts = []Endpoint{ParseEndpoint(v, DefaultMCPPort)}
	}
	if v := envStr("MCP_HOSTS"); v != "" {
		cfg.MCP.Hosts = nil
		for _, url := range splitCSV(v) {
			cfg.MCP.Hosts = append(cfg.MCP.Hosts, ParseEndpoint(url, DefaultMCPPort))
		}
	}
	envInt("MCP_CONNECT_TIMEOUT_S", &cfg.MCP.ConnectTimeoutS)
	envInt("MCP_READ_TIMEOUT_S", &cfg.MCP.ReadTimeoutS)
	envInt("MCP_WRITE_TIMEOUT_S", &cfg.MCP.WriteTimeoutS)
	envInt("MCP_MAX_IN_FLIGHT", &cfg.MCP.MaxInFlight)

	cfg.LogLevel = envStr("RUNTIME_LOG_LEVEL")
	cfg.LogFormat = envStr("RUNTIME_LOG_FORMAT")

	return cfg
}
