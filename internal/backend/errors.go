package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthenticated means there is no usable credential: none was stored, or
// the one refresh-and-retry allowed per request did not succeed. The user has
// to sign in explicitly.
var ErrUnauthenticated = errors.New("unauthenticated: sign in required")

// ErrRequestFailed matches every non-auth failure: HTTP errors, transport
// errors and unparseable responses.
var ErrRequestFailed = errors.New("backend request failed")

// RequestError is a non-2xx response or a transport failure. StatusCode is 0
// for transport failures, in which case Err holds the cause.
type RequestError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	}
	if e.Body == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

func (e *RequestError) Is(target error) bool {
	return target == ErrRequestFailed
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// ParseError is a 2xx response whose body could not be decoded.
type ParseError struct {
	Path string
	Body string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to decode response from %s: %v", e.Path, e.Err)
}

func (e *ParseError) Is(target error) bool {
	return target == ErrRequestFailed
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether repeating the same call later might succeed.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrUnauthenticated) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		return false
	}
	switch {
	case reqErr.StatusCode == 0:
		return true
	case reqErr.StatusCode == http.StatusRequestTimeout,
		reqErr.StatusCode == http.StatusTooManyRequests:
		return true
	case reqErr.StatusCode >= 500:
		return true
	}
	return false
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode
	}
	return 0
}
