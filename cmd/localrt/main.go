// Command localrt runs the local inference gateway: an OpenAI-compatible
// HTTP front for pluggable model backends, with MCP tool orchestration and
// durable sessions.
//
// Usage:
//
//	localrt serve
//	localrt serve --log-level debug --env-file ./deploy.env
//	localrt version
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/localrt/localrt/pkg/config"
	"github.com/localrt/localrt/pkg/llms"
	"github.com/localrt/localrt/pkg/logger"
	"github.com/localrt/localrt/pkg/observability"
	"github.com/localrt/localrt/pkg/server"
	"github.com/localrt/localrt/pkg/session"
	"github.com/localrt/localrt/pkg/tools"
)

// CLI defines the command-line interface.
type CLI struct {
	Serve   ServeCmd   `cmd:"" default:"withargs" help:"Start the gateway."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	EnvFile   string `help:"Extra env file to load before reading the environment." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error); overrides RUNTIME_LOG_LEVEL."`
	LogFormat string `help:"Log format (text or json); overrides RUNTIME_LOG_FORMAT."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(cli *CLI) error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("localrt %s\n", version)
	return nil
}

// ServeCmd starts the gateway.
type ServeCmd struct{}

func (c *ServeCmd) Run(cli *CLI) error {
	if cli.EnvFile != "" {
		if err := godotenv.Load(cli.EnvFile); err != nil {
			return fmt.Errorf("load env file %s: %w", cli.EnvFile, err)
		}
	}
	if err := config.LoadEnvFiles(); err != nil {
		return err
	}

	cfg := config.LoadFromEnv()
	if cli.LogLevel != "" {
		cfg.LogLevel = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.LogFormat = cli.LogFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Init(logger.ParseLevel(cfg.LogLevel), os.Stderr, cfg.LogFormat)

	metrics, metricsHandler, err := observability.InitMetrics()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	observability.SetGlobalMetrics(metrics)

	providers := llms.NewRegistry(cfg.DefaultProvider)
	if cfg.OllamaEnabled || cfg.DefaultProvider == "ollama" {
		if err := providers.Register(llms.NewOllama(cfg.Ollama)); err != nil {
			return err
		}
	}
	if cfg.MNNEnabled {
		if err := providers.Register(llms.NewOpenAICompat("mnn", cfg.MNN)); err != nil {
			return err
		}
	}
	if cfg.LMDeployEnabled {
		if err := providers.Register(llms.NewOpenAICompat("lmdeploy", cfg.LMDeploy)); err != nil {
			return err
		}
	}
	if err := providers.Register(llms.NewLlamaCpp(cfg.LlamaCpp)); err != nil {
		return err
	}

	sessions, err := session.NewManager(cfg.SessionStore)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	toolReg := tools.NewRegistry()
	tools.RegisterBuiltins(toolReg, cfg.WorkspaceRoot)
	tools.RegisterTaskStatus(toolReg, sessions)

	var mcpSource *tools.MCPSource
	if len(cfg.MCP.Hosts) > 0 {
		mcpSource = tools.NewMCPSource(cfg.MCP, cfg.WorkspaceRoot)
		mcpSource.Connect(ctx)
		if mcpSource.HasServers() {
			refresh := mcpSource.Refresh(ctx, toolReg)
			slog.Info("mcp tools discovered",
				"servers", refresh.Servers,
				"registered", refresh.Registered,
				"errors", len(refresh.Errors))
			mcpSource.RegisterIDETools(toolReg)
		} else {
			slog.Warn("no MCP server reachable", "hosts", len(cfg.MCP.Hosts))
		}
	}

	srv := server.NewServer(server.Options{
		Config:         cfg,
		Providers:      providers,
		Sessions:       sessions,
		Tools:          toolReg,
		MCPSource:      mcpSource,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
	})

	slog.Info("runtime configured",
		"default_provider", cfg.DefaultProvider,
		"session_store", cfg.SessionStore.Type,
		"mcp_hosts", len(cfg.MCP.Hosts))
	for _, p := range providers.List() {
		slog.Info("provider registered", "name", p.Name())
	}
	slog.Info("http listening", "host", cfg.Listen.Host, "port", cfg.Listen.Port)

	return srv.ListenAndServe(ctx)
}

func main() {
	cli := &CLI{}
	kctx := kong.Parse(cli,
		kong.Name("localrt"),
		kong.Description("OpenAI-compatible gateway for local model runtimes."),
		kong.UsageOnError(),
	)
	if err := kctx.Run(cli); err != nil {
		fmt.Fprintf(os.Stderr, "localrt: %v\n", err)
		os.Exit(1)
	}
}
