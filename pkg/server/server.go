// Package server exposes the OpenAI-compatible HTTP surface of the gateway:
// model listing, chat completions (with tool orchestration and SSE
// streaming), embeddings, the responses endpoint, and the internal
// maintenance routes.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/localrt/localrt/pkg/config"
	"github.com/localrt/localrt/pkg/llms"
	"github.com/localrt/localrt/pkg/mcp"
	"github.com/localrt/localrt/pkg/observability"
	"github.com/localrt/localrt/pkg/session"
	"github.com/localrt/localrt/pkg/tools"
)

// DefaultRequestTimeout bounds a single completion request end to end,
// including tool execution. Requests may override it with timeout_s.
const DefaultRequestTimeout = 300 * time.Second

// Server wires the provider registry, the tool registry, and the session
// manager behind the HTTP routes.
type Server struct {
	cfg       *config.Config
	providers *llms.Registry
	sessions  *session.Manager
	tools     *tools.Registry
	mcpSource *tools.MCPSource

	metrics        *observability.Metrics
	metricsHandler http.Handler

	router chi.Router
}

// Options carries the collaborators a Server needs. MCPSource, Metrics, and
// MetricsHandler are optional.
type Options struct {
	Config         *config.Config
	Providers      *llms.Registry
	Sessions       *session.Manager
	Tools          *tools.Registry
	MCPSource      *tools.MCPSource
	Metrics        *observability.Metrics
	MetricsHandler http.Handler
}

func NewServer(opts Options) *Server {
	s := &Server{
		cfg:            opts.Config,
		providers:      opts.Providers,
		sessions:       opts.Sessions,
		tools:          opts.Tools,
		mcpSource:      opts.MCPSource,
		metrics:        opts.Metrics,
		metricsHandler: opts.MetricsHandler,
	}
	s.router = s.routes()
	return s
}

// Handler returns the fully assembled route tree.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	if s.metrics != nil {
		r.Use(observability.HTTPMiddleware(s.metrics))
	}
	r.Use(authCaptureMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/v1/models", s.handleModels)
	r.Post("/v1/chat/completions", s.handleChatCompletions)
	r.Post("/v1/embeddings", s.handleEmbeddings)
	r.Post("/v1/responses", s.handleResponses)
	r.Post("/internal/refresh_mcp_tools", s.handleRefreshMCPTools)
	r.Get("/internal/schema", s.handleSchema)
	if s.metricsHandler != nil {
		r.Handle("/metrics", s.metricsHandler)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found", "invalid_request_error")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "bad request", "invalid_request_error")
	})

	return r
}

// requestIDMiddleware tags every response with a correlation id, keeping a
// client-supplied one when present.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("x-request-id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("x-request-id", id)
		next.ServeHTTP(w, r)
	})
}

// authCaptureMiddleware copies credential headers from the inbound request
// into the context so MCP calls made on its behalf can forward them.
func authCaptureMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := mcp.ExtractAuthHeaders(r.Header)
		if len(headers) > 0 {
			r = r.WithContext(mcp.WithRequestAuthHeaders(r.Context(), headers))
		}
		next.ServeHTTP(w, r)
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("panic in handler", "path", r.URL.Path, "error", rec)
				writeError(w, http.StatusInternalServerError, fmt.Sprintf("%v", rec), "server_error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe blocks until the listener fails or ctx is cancelled, then
// drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
