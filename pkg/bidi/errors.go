package bidi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	ErrNotStarted       = errors.New("bidi session not started")
	ErrSessionClosed    = errors.New("bidi session closed")
	ErrAlreadyStarted   = errors.New("bidi session already started")
	ErrConnectionLost   = errors.New("bidi connection lost")
	ErrCommandTimeout   = errors.New("bidi command timeout")
	ErrInvalidResponse  = errors.New("invalid bidi response")
	ErrMissingWebSocket = errors.New("remote end did not return a webSocketUrl capability")
)

// ProtocolError is an error response sent by the remote end for a command.
type ProtocolError struct {
	Code       string
	Message    string
	Stacktrace string
	Method     string
}

func (e *ProtocolError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HTTPError is a non-2xx reply from the WebDriver HTTP endpoint during bootstrap or teardown.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	case e.Code != "":
		return e.Code
	default:
		return fmt.Sprintf("unexpected HTTP status %d", e.StatusCode)
	}
}

// IsConnectionError returns true if the error indicates a lost connection.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnectionLost) {
		return true
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "use of closed")
}

// IsTimeoutError reports whether err came from a deadline rather than the remote end.
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCommandTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// ErrorCode returns the BiDi error code carried by err, or "" when err is not a protocol error.
func ErrorCode(err error) string {
	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		return protoErr.Code
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}
	return ""
}
