package fileflows

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a request failed. Callers mostly treat every kind
// the same; the kind exists so probing and diagnostics can report it.
type ErrorKind int

const (
	KindTransport ErrorKind = iota
	KindTimeout
	KindNotFound
	KindHTTP
	KindEmpty
	KindNonJSON
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindNotFound:
		return "not found"
	case KindHTTP:
		return "http error"
	case KindEmpty:
		return "empty response"
	case KindNonJSON:
		return "non-json response"
	case KindMalformed:
		return "malformed json"
	default:
		return "unknown"
	}
}

// APIError is the single error type returned by the client.
type APIError struct {
	Kind       ErrorKind
	Endpoint   string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Endpoint == "" {
		return e.Message
	}
	return fmt.Sprintf("api %s: %s", e.Endpoint, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an *APIError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Kind == kind
}

// KindOf returns the kind of an *APIError, or KindTransport for anything else.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindTransport
}

func preview(body []byte, limit int) string {
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "..."
}
