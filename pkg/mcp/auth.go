package mcp

import (
	"context"
	"net/http"
	"strings"
)

type authHeadersKey struct{}

// forwardedAuthHeaders lists the request headers passed through to MCP
// servers verbatim. Everything else stays behind the gateway.
var forwardedAuthHeaders = []string{
	"Authorization",
	"api-key",
	"x-api-key",
	"api_key",
}

// WithRequestAuthHeaders stashes the caller's auth headers on the context so
// outbound JSON-RPC requests can replay them.
func WithRequestAuthHeaders(ctx context.Context, headers map[string]string) context.Context {
	if len(headers) == 0 {
		return ctx
	}
	return context.WithValue(ctx, authHeadersKey{}, headers)
}

// AuthHeadersFromContext returns the auth headers captured for this request,
// or nil when the request carried none.
func AuthHeadersFromContext(ctx context.Context) map[string]string {
	headers, _ := ctx.Value(authHeadersKey{}).(map[string]string)
	return headers
}

// ExtractAuthHeaders picks the forwardable auth headers out of an incoming
// request, preserving their original values.
func ExtractAuthHeaders(h http.Header) map[string]string {
	var out map[string]string
	for _, name := range forwardedAuthHeaders {
		v := h.Get(name)
		if v == "" {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(forwardedAuthHeaders))
		}
		out[name] = v
	}
	return out
}

// IsAuthHeader reports whether a header name carries credentials and must be
// kept out of logs.
func IsAuthHeader(name string) bool {
	for _, h := range forwardedAuthHeaders {
		if strings.EqualFold(name, h) {
			return true
		}
	}
	return false
}
