package metrics

import (
	"strconv"
	"time"

	"github.com/voidhaul/voidhaul/internal/observability"
)

// HTTP metric names for the status server.
const (
	HTTPRequestsTotal     = "http_requests_total"
	HTTPRequestDuration   = "http_request_duration_ms"
	HTTPRequestSizeBytes  = "http_request_size_bytes"
	HTTPResponseSizeBytes = "http_response_size_bytes"
	HTTPErrorsTotal       = "http_errors_total"
)

// HTTPRequest describes one completed status-server request. Endpoint must be
// a route pattern, never a raw path.
type HTTPRequest struct {
	Method       string
	Endpoint     string
	Status       int
	Duration     time.Duration
	RequestSize  int64
	ResponseSize int64
}

// RecordHTTPRequest emits the request counter, latency, sizes and, for 4xx
// and 5xx responses, the error counter.
func RecordHTTPRequest(req HTTPRequest) {
	sys := observability.TelemetrySystem
	if sys == nil {
		return
	}
	status := strconv.Itoa(req.Status)
	labels := map[string]string{"method": req.Method, "endpoint": req.Endpoint, "status": status}
	sizeLabels := map[string]string{"method": req.Method, "endpoint": req.Endpoint}

	_ = sys.Counter(HTTPRequestsTotal, 1, labels)
	_ = sys.Histogram(HTTPRequestDuration, req.Duration, labels)
	_ = sys.Gauge(HTTPRequestSizeBytes, float64(req.RequestSize), sizeLabels)
	_ = sys.Gauge(HTTPResponseSizeBytes, float64(req.ResponseSize), sizeLabels)

	if req.Status >= 400 {
		errorType := "client_error"
		if req.Status >= 500 {
			errorType = "server_error"
		}
		_ = sys.Counter(HTTPErrorsTotal, 1, map[string]string{
			"method":     req.Method,
			"endpoint":   req.Endpoint,
			"status":     status,
			"error_type": errorType,
		})
	}
}
