// Package observability wires OpenTelemetry metrics and traces for the
// runtime and exposes them through a Prometheus endpoint.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

// Span names used across the runtime.
const (
	SpanHTTPRequest   = "http.request"
	SpanToolExecution = "tool.execution"
	SpanLLMRequest    = "llm.request"
)

// Attribute keys.
const (
	AttrHTTPMethod     = "http.method"
	AttrHTTPPath       = "http.path"
	AttrHTTPStatusCode = "http.status_code"
	AttrToolName       = "tool.name"
	AttrProvider       = "llm.provider"
	AttrModel          = "llm.model"
)

// Metrics bundles the runtime's instruments.
type Metrics struct {
	httpRequests  metric.Int64Counter
	httpDuration  metric.Float64Histogram
	toolCalls     metric.Int64Counter
	toolErrors    metric.Int64Counter
	toolDuration  metric.Float64Histogram
	llmRequests   metric.Int64Counter
	llmErrors     metric.Int64Counter
	llmDuration   metric.Float64Histogram
	sessionsTotal metric.Int64Counter
}

var (
	globalMu      sync.RWMutex
	globalMetrics *Metrics
)

// GetTracer returns a tracer from the global provider.
func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// SetGlobalMetrics installs the process-wide metrics instance.
func SetGlobalMetrics(m *Metrics) {
	globalMu.Lock()
	globalMetrics = m
	globalMu.Unlock()
}

// GetGlobalMetrics returns the installed metrics, or nil when metrics are
// disabled.
func GetGlobalMetrics() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// InitMetrics builds the Prometheus-backed meter provider and the runtime's
// instruments. The returned handler serves the scrape endpoint.
func InitMetrics() (*Metrics, http.Handler, error) {
	promExporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)
	otel.SetMeterProvider(meterProvider)

	meter := meterProvider.Meter("localrt")

	m := &Metrics{}
	if m.httpRequests, err = meter.Int64Counter(
		"localrt_http_requests_total",
		metric.WithDescription("Total HTTP requests"),
	); err != nil {
		return nil, nil, err
	}
	if m.httpDuration, err = meter.Float64Histogram(
		"localrt_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	); err != nil {
		return nil, nil, err
	}
	if m.toolCalls, err = meter.Int64Counter(
		"localrt_tool_calls_total",
		metric.WithDescription("Total tool calls"),
	); err != nil {
		return nil, nil, err
	}
	if m.toolErrors, err = meter.Int64Counter(
		"localrt_tool_errors_total",
		metric.WithDescription("Total tool call failures"),
	); err != nil {
		return nil, nil, err
	}
	if m.toolDuration, err = meter.Float64Histogram(
		"localrt_tool_execution_duration_seconds",
		metric.WithDescription("Tool execution duration in seconds"),
	); err != nil {
		return nil, nil, err
	}
	if m.llmRequests, err = meter.Int64Counter(
		"localrt_llm_requests_total",
		metric.WithDescription("Total upstream model requests"),
	); err != nil {
		return nil, nil, err
	}
	if m.llmErrors, err = meter.Int64Counter(
		"localrt_llm_errors_total",
		metric.WithDescription("Total upstream model errors"),
	); err != nil {
		return nil, nil, err
	}
	if m.llmDuration, err = meter.Float64Histogram(
		"localrt_llm_request_duration_seconds",
		metric.WithDescription("Upstream model request duration in seconds"),
	); err != nil {
		return nil, nil, err
	}
	if m.sessionsTotal, err = meter.Int64Counter(
		"localrt_sessions_created_total",
		metric.WithDescription("Total sessions created"),
	); err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPPath, path),
		attribute.Int(AttrHTTPStatusCode, status),
	)
	m.httpRequests.Add(ctx, 1, attrs)
	m.httpDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordToolExecution records one tool call.
func (m *Metrics) RecordToolExecution(ctx context.Context, toolName string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrToolName, toolName))
	m.toolCalls.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		m.toolErrors.Add(ctx, 1, attrs)
	}
}

// RecordLLMRequest records one upstream model call.
func (m *Metrics) RecordLLMRequest(ctx context.Context, provider, model string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrProvider, provider),
		attribute.String(AttrModel, model),
	)
	m.llmRequests.Add(ctx, 1, attrs)
	m.llmDuration.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		m.llmErrors.Add(ctx, 1, attrs)
	}
}

// RecordSessionCreated counts a newly minted session id.
func (m *Metrics) RecordSessionCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessionsTotal.Add(ctx, 1)
}
