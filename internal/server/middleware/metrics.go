package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/voidhaul/voidhaul/internal/metrics"
	"github.com/voidhaul/voidhaul/internal/observability"
)

// responseWriter captures the status code and body size.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// knownEndpoints label requests that reach the mux without a chi route context.
var knownEndpoints = map[string]string{
	"/":                "/",
	"/version":         "/version",
	"/metrics":         "/metrics",
	"/fleet":           "/fleet",
	"/governor":        "/governor",
	"/warehouse/stats": "/warehouse/stats",
	"/market/best":     "/market/best",
	"/market/history":  "/market/history",
	"/admin/signal":    "/admin/signal",
}

// EndpointPattern returns a bounded-cardinality label for the request.
func EndpointPattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	path := r.URL.Path
	if path == "/health" || strings.HasPrefix(path, "/health/") {
		return "/health/*"
	}
	if endpoint, ok := knownEndpoints[path]; ok {
		return endpoint
	}
	return "/unknown"
}

// quietEndpoint reports endpoints that are scraped or probed on a timer.
func quietEndpoint(endpoint string) bool {
	return endpoint == "/metrics" || strings.HasPrefix(endpoint, "/health")
}

// RequestMetrics records per-request telemetry and logs the completion.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if observability.TelemetrySystem == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		var requestSize int64
		if v := r.Header.Get("Content-Length"); v != "" {
			if size, err := strconv.ParseInt(v, 10, 64); err == nil {
				requestSize = size
			}
		}

		next.ServeHTTP(wrapped, r)

		rec := metrics.HTTPRequest{
			Method:       r.Method,
			Endpoint:     EndpointPattern(r),
			Status:       wrapped.statusCode,
			Duration:     time.Since(start),
			RequestSize:  requestSize,
			ResponseSize: wrapped.bytesWritten,
		}
		metrics.RecordHTTPRequest(rec)

		if observability.ServerLogger == nil {
			return
		}
		fields := []zap.Field{
			zap.String("method", rec.Method),
			zap.String("path", r.URL.Path),
			zap.String("endpoint", rec.Endpoint),
			zap.Int("status", rec.Status),
			zap.Duration("duration", rec.Duration),
			zap.Int64("response_size", rec.ResponseSize),
			zap.String("requestID", GetRequestID(r.Context())),
		}
		if quietEndpoint(rec.Endpoint) {
			observability.ServerLogger.Debug("HTTP request completed", fields...)
			return
		}
		observability.ServerLogger.Info("HTTP request completed", fields...)
	})
}
