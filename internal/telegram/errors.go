package telegram

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"tgrelay/pkg/gateway"
)

// APIError is a failed Bot API call.
type APIError struct {
	Method      string
	StatusCode  int
	ErrorCode   int
	Description string
	RetryAfter  int
}

func (e *APIError) Error() string {
	desc := strings.TrimSpace(e.Description)
	if desc == "" {
		desc = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("telegram %s: http %d: %s", e.Method, e.StatusCode, desc)
}

// classify wraps err as transient or permanent. Rate limits, server errors
// and network failures are transient; other 4xx answers are permanent
// (blocked by the user, chat not found, message to edit not found).
func classify(method string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests, apiErr.StatusCode >= 500:
			return gateway.Transient(method, err)
		case apiErr.StatusCode >= 400:
			return gateway.Permanent(method, err)
		}
		return gateway.Transient(method, err)
	}
	return gateway.Transient(method, err)
}

// isPollTimeout reports whether err is a long-poll timing out, which is the
// normal idle case and not worth a warning.
func isPollTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "client.timeout exceeded")
}
