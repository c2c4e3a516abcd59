package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
)

func serveWithRequestID(header string) (seen, chiSeen string, rec *httptest.ResponseRecorder) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		chiSeen = middleware.GetReqID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/v1/fleet", nil)
	if header != "" {
		req.Header.Set(RequestIDHeader, header)
	}
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return seen, chiSeen, rec
}

func TestRequestIDReusesWellFormedHeader(t *testing.T) {
	seen, chiSeen, rec := serveWithRequestID("trace-42")

	assert.Equal(t, "trace-42", seen)
	assert.Equal(t, "trace-42", chiSeen)
	assert.Equal(t, "trace-42", rec.Header().Get(RequestIDHeader))
}

func TestRequestIDGeneratedWhenMissing(t *testing.T) {
	seen, _, rec := serveWithRequestID("")

	assert.Len(t, seen, 36)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}

func TestRequestIDReplacesMalformedHeader(t *testing.T) {
	cases := map[string]string{
		"too long":      strings.Repeat("a", MaxRequestIDLength+1),
		"control bytes": "abc\x1b[31m",
		"whitespace":    "two words",
		"non ascii":     "idé",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			seen, _, rec := serveWithRequestID(header)

			assert.NotEqual(t, header, seen)
			assert.Len(t, seen, 36)
			assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
		})
	}
}

func TestGetRequestIDFallsBackToChi(t *testing.T) {
	var seen string
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, seen)
}
