package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// RequestIDHeader carries the correlation id in and out of the status server.
const RequestIDHeader = "X-Request-ID"

// MaxRequestIDLength bounds a client-supplied id; longer ids are replaced.
const MaxRequestIDLength = 64

type requestIDKey struct{}

// RequestID tags each request with a correlation id. A well-formed inbound
// X-Request-ID is reused; anything else gets a fresh UUID. The id is echoed
// in the response and stored under chi's key too, so chi helpers see it.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		ctx = context.WithValue(ctx, middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the correlation id stored by RequestID, falling back
// to chi's id when only chi's middleware ran.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return middleware.GetReqID(ctx)
}

// validRequestID accepts visible ASCII only. Ids land in logs and error
// envelopes, so control bytes and whitespace are refused.
func validRequestID(id string) bool {
	if id == "" || len(id) > MaxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}
