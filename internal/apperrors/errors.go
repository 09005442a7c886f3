// Package apperrors defines the error taxonomy shared by the services and
// handlers: validation errors (bad request input, HTTP 400), upstream
// errors (non-success responses from GitHub, HTTP 502) and data errors
// (empty result sets, surfaced as user-facing messages).
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRepositories indicates an empty repository result set for an
	// analysis run. The message is user-facing.
	ErrNoRepositories = errors.New("No repositories found. Check your username or token.")

	// ErrAnalysisInProgress is returned when an analysis run is requested
	// while another one is still in flight.
	ErrAnalysisInProgress = errors.New("an analysis run is already in progress")

	// ErrExchangeInFlight is returned when a duplicate OAuth exchange is
	// attempted while one is still running.
	ErrExchangeInFlight = errors.New("an OAuth exchange is already in progress")
)

// ValidationError reports missing or malformed request input. The message
// is safe to return to the client.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a ValidationError with the given message
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// UpstreamError reports a non-success response from GitHub. It carries the
// upstream status code and body text so callers can propagate both.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("GitHub API error (%d): %s", e.StatusCode, e.Message)
}

// NewUpstreamError creates an UpstreamError from an upstream status and body
func NewUpstreamError(statusCode int, message string) *UpstreamError {
	return &UpstreamError{StatusCode: statusCode, Message: message}
}

// AsUpstream extracts an UpstreamError from err, if present
func AsUpstream(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
