package assets

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoCandidates indicates resolution produced no candidate URLs, typically
// because no server connection is available.
var ErrNoCandidates = errors.New("no image candidates available")

// NetworkError wraps a transport-level failure. Transient and retryable.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPStatusError reports a non-success HTTP response. Retryable up to the
// per-candidate bound; consumers may special-case the code for messaging.
type HTTPStatusError struct {
	Code int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http status %d", e.Code)
}

// DecodeError reports a payload that was fetched but is not a valid image.
// Not retryable for that candidate; the engine cascades immediately.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("image decode failed: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// FailureKind is a coarse classification of a terminal failure, used by the
// consumer for messaging.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureNotFound
	FailureAccessDenied
	FailureUnavailable
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureNotFound:
		return "not_found"
	case FailureAccessDenied:
		return "access_denied"
	case FailureUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// ClassifyFailure maps a terminal error to its FailureKind.
func ClassifyFailure(err error) FailureKind {
	if err == nil {
		return FailureNone
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.Code {
		case http.StatusNotFound:
			return FailureNotFound
		case http.StatusUnauthorized, http.StatusForbidden:
			return FailureAccessDenied
		}
	}

	return FailureUnavailable
}
