package observability

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitMetricsAndRecord(t *testing.T) {
	m, handler, err := InitMetrics()
	require.NoError(t, err)
	require.NotNil(t, handler)

	ctx := context.Background()
	m.RecordHTTPRequest(ctx, "POST", "/v1/chat/completions", 200, 15*time.Millisecond)
	m.RecordToolExecution(ctx, "runtime.add", time.Millisecond, nil)
	m.RecordToolExecution(ctx, "runtime.add", time.Millisecond, fmt.Errorf("boom"))
	m.RecordLLMRequest(ctx, "mnn", "mock-model", 20*time.Millisecond, nil)
	m.RecordSessionCreated(ctx)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, "localrt_http_requests_total")
	assert.Contains(t, body, "localrt_tool_calls_total")
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	m.RecordHTTPRequest(context.Background(), "GET", "/health", 200, time.Millisecond)
	m.RecordToolExecution(context.Background(), "x", time.Millisecond, nil)
	m.RecordLLMRequest(context.Background(), "p", "m", time.Millisecond, nil)
	m.RecordSessionCreated(context.Background())
}

func TestMiddlewareWrapsHandler(t *testing.T) {
	m, _, err := InitMetrics()
	require.NoError(t, err)

	h := HTTPMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
