package portalgate

import (
	"errors"
	"fmt"
	"time"
)

// Error types carried by ClientError. Callers receive one of these for every
// failed call; raw transport errors never escape the client.
const (
	// ErrorTypeAPI means the remote responded with an error status. The
	// ClientError carries the status code and response body.
	ErrorTypeAPI = "API"
	// ErrorTypeNetwork means no response was received (connection failure,
	// timeout, canceled transport).
	ErrorTypeNetwork = "Network"
	// ErrorTypeRequest means the call could not be constructed or sent.
	ErrorTypeRequest = "Request"
	// ErrorTypeAuthFailure means credential renewal itself failed. An
	// EventAuthFailure is published alongside so the host can force re-login.
	ErrorTypeAuthFailure = "AuthFailure"
)

// Sentinel errors.
var (
	// ErrClientClosed is returned for calls issued after Close.
	ErrClientClosed = errors.New("portalgate: client closed")

	// ErrNoRefreshToken is returned when renewal is attempted without a
	// stored refresh token.
	ErrNoRefreshToken = errors.New("portalgate: no refresh token")
)

// ClientError is the normalized error surfaced to callers.
type ClientError struct {
	Type       string
	Message    string
	StatusCode int
	Body       []byte
	Cause      error

	CallID      string
	Method      string
	Target      string
	Attempt     int
	MaxAttempts int
	Timestamp   time.Time
	Duration    time.Duration
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.CallID != "" {
		msg = fmt.Sprintf("[%s] %s", e.CallID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxAttempts)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*ClientError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// IsAPIError reports whether err is a remote error-status failure.
func IsAPIError(err error) bool { return isErrorType(err, ErrorTypeAPI) }

// IsNetworkError reports whether err is a no-response failure.
func IsNetworkError(err error) bool { return isErrorType(err, ErrorTypeNetwork) }

// IsRequestError reports whether err is a request-construction failure.
func IsRequestError(err error) bool { return isErrorType(err, ErrorTypeRequest) }

// IsAuthFailure reports whether err is a failed credential renewal.
func IsAuthFailure(err error) bool { return isErrorType(err, ErrorTypeAuthFailure) }

func isErrorType(err error, errorType string) bool {
	var clientErr *ClientError
	return errors.As(err, &clientErr) && clientErr.Type == errorType
}

// IsTransient reports whether err represents a failure that might succeed on
// retry: network failures and 5xx responses.
func IsTransient(err error) bool {
	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		return false
	}
	switch clientErr.Type {
	case ErrorTypeNetwork:
		return true
	case ErrorTypeAPI:
		return clientErr.StatusCode >= 500
	default:
		return false
	}
}

// Statuses that are never retried. 401 is listed because it routes through
// credential renewal instead of the plain retry path.
func retryableStatus(status int) bool {
	switch status {
	case 400, 401, 403, 404, 422:
		return false
	}
	return status >= 500
}
