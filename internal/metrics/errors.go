package metrics

import (
	"strconv"

	"github.com/voidhaul/voidhaul/internal/observability"
)

// Error metric names for envelopes written by the status server.
const (
	ErrorsTotal      = "errors_total"
	PanicsTotal      = "panics_total"
	ErrorsByEndpoint = "errors_by_endpoint"
)

// RecordError counts an error envelope by code and HTTP status.
func RecordError(errorCode string, httpStatus int) {
	count(ErrorsTotal, map[string]string{
		"error_code":  errorCode,
		"http_status": strconv.Itoa(httpStatus),
	})
}

// RecordPanic counts a recovered handler panic.
func RecordPanic() {
	count(PanicsTotal, nil)
}

// RecordErrorByEndpoint counts an error against a route pattern. Callers pass
// the pattern, not the raw path, to keep the label set bounded.
func RecordErrorByEndpoint(endpoint, errorCode string) {
	if endpoint == "" {
		endpoint = "/unknown"
	}
	count(ErrorsByEndpoint, map[string]string{"endpoint": endpoint, "error_code": errorCode})
}

func count(name string, labels map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Counter(name, 1, labels)
	}
}
