package reliability

import (
	"context"
	"errors"
)

// Class buckets a failed upstream call.
type Class string

const (
	ClassTransient   Class = "upstream_transient"
	ClassRejected    Class = "upstream_rejected"
	ClassCanceled    Class = "canceled"
	ClassUnreachable Class = "unreachable"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// statusCoder is implemented by errors that carry an HTTP response status.
type statusCoder interface {
	StatusCode() int
}

// Classify maps an upstream error to a Class. Errors carrying a status code
// are split by IsRetryableHTTPStatus; anything else that is not a
// cancellation is treated as a connection failure.
func Classify(err error) Class {
	var sc statusCoder
	switch {
	case errors.As(err, &sc):
		if IsRetryableHTTPStatus(sc.StatusCode()) {
			return ClassTransient
		}
		return ClassRejected
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ClassCanceled
	default:
		return ClassUnreachable
	}
}
