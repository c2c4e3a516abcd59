package governor

import (
	"errors"
	"fmt"
)

// FatalAuthCode is the application error code the service returns after a
// universe reset invalidates the agent token.
const FatalAuthCode = 4113

// ErrFatalLatched is wrapped by every call refused after a fatal identity error.
var ErrFatalLatched = errors.New("governor halted after fatal identity error")

// TransientFailure is returned when retries are exhausted on 429, 5xx or
// network errors.
type TransientFailure struct {
	Attempts   int
	LastStatus int
	Err        error
}

func (e *TransientFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient failure after %d attempts (last status %d): %v", e.Attempts, e.LastStatus, e.Err)
	}
	return fmt.Sprintf("transient failure after %d attempts (last status %d)", e.Attempts, e.LastStatus)
}

func (e *TransientFailure) Unwrap() error { return e.Err }

// FatalAuthError signals that the agent identity is no longer valid.
type FatalAuthError struct {
	Code    int
	Message string
}

func (e *FatalAuthError) Error() string {
	return fmt.Sprintf("fatal identity error %d: %s", e.Code, e.Message)
}

// RequestRejected carries a non-retryable 4xx response.
type RequestRejected struct {
	Status  int
	Code    int
	Message string
	Data    map[string]any
}

func (e *RequestRejected) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("request rejected (status %d, code %d): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("request rejected (status %d): %s", e.Status, e.Message)
}

// ProtocolError reports a response body that could not be decoded.
type ProtocolError struct {
	Path string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed response from %s: %v", e.Path, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsFatal reports whether err carries a FatalAuthError.
func IsFatal(err error) bool {
	var fatal *FatalAuthError
	return errors.As(err, &fatal)
}

// IsTransient reports whether err carries a TransientFailure.
func IsTransient(err error) bool {
	var transient *TransientFailure
	return errors.As(err, &transient)
}

// IsRejected reports whether err is a RequestRejected with one of the given codes.
// With no codes it matches any rejection.
func IsRejected(err error, codes ...int) bool {
	var rejected *RequestRejected
	if !errors.As(err, &rejected) {
		return false
	}
	if len(codes) == 0 {
		return true
	}
	for _, code := range codes {
		if rejected.Code == code {
			return true
		}
	}
	return false
}
