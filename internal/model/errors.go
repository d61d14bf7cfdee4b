package model

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when the job is unknown or already evicted
	ErrJobNotFound = errors.New("job not found")

	// ErrJobExists is returned when a job id is stored twice
	ErrJobExists = errors.New("job already exists")

	// ErrJobAlreadyClaimed is returned when a transition finds the job in an unexpected status
	ErrJobAlreadyClaimed = errors.New("job already claimed")

	// ErrNotConfigured marks a missing credential or endpoint
	ErrNotConfigured = errors.New("service not configured")
)

// ConfigError reports a missing credential. It is raised when the adapter is
// called, not when the process starts.
type ConfigError struct {
	Service string
	Setting string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: missing %s", e.Service, e.Setting)
}

func (e *ConfigError) Unwrap() error { return ErrNotConfigured }

// ProtocolError reports a malformed or unexpected upstream response. Not retried.
type ProtocolError struct {
	Service string
	Reason  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: unexpected response: %s", e.Service, e.Reason)
}

func NewProtocolError(service, format string, args ...interface{}) error {
	return &ProtocolError{Service: service, Reason: fmt.Sprintf(format, args...)}
}

// TransientError wraps network, timeout and overload failures that may succeed on retry
type TransientError struct {
	Service string
	Err     error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient error: %v", e.Service, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func NewTransientError(service string, err error) error {
	return &TransientError{Service: service, Err: err}
}

func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

func IsProtocol(err error) bool {
	var p *ProtocolError
	return errors.As(err, &p)
}
