package dispatch

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError reports missing or unusable input. No request was sent.
type ValidationError struct {
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// RemoteError reports a non-2xx response from a job service.
type RemoteError struct {
	Endpoint   string
	StatusCode int
	// Body is the start of the response body, for diagnostics only.
	Body string
}

func (e *RemoteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("job service %s returned status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("job service %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// TimeoutError reports that a job service did not answer within the
// configured deadline.
type TimeoutError struct {
	Endpoint string
	After    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job service %s did not respond within %s", e.Endpoint, e.After)
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsRemote(err error) bool {
	var target *RemoteError
	return errors.As(err, &target)
}

func IsTimeout(err error) bool {
	var target *TimeoutError
	return errors.As(err, &target)
}

func missingInput(message string, fields ...string) *ValidationError {
	return &ValidationError{Fields: fields, Message: message}
}
