package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrUnavailable is returned once retries against a provider are exhausted.
// Callers treat it as recoverable: the same request may be issued again later.
var ErrUnavailable = errors.New("language model is unavailable")

// TransientError marks a provider failure that is safe to retry.
type TransientError struct {
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e == nil {
		return "transient error"
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("transient error (status=%d)", e.Status)
}

func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// TransientStatus reports whether an HTTP status code is worth retrying.
func TransientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout ||
		(code >= http.StatusInternalServerError && code <= 599)
}

// IsTransient reports whether an error is safe to retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var transient *TransientError
	return errors.As(err, &transient)
}
