package remote

import (
	"errors"
	"fmt"
)

// Error types for remote data context operations.
var (
	// ErrDisposed is returned by every operation on a disposed context.
	ErrDisposed = errors.New("data context is disposed")

	// ErrUnbalancedCommit is returned when CommitBatch is called without a
	// matching BeginBatch.
	ErrUnbalancedCommit = errors.New("commit batch without matching begin batch")

	// ErrConfiguration is returned when a configuration cannot be bound:
	// unknown type names, constructor shape mismatches, incompatible
	// protocol versions.
	ErrConfiguration = errors.New("configuration error")

	// ErrBatching is returned for operations not permitted while a batch is
	// open.
	ErrBatching = errors.New("operation not permitted inside a batch")
)

// DisposedError identifies the disposed context.
type DisposedError struct {
	ContextID string
}

// Error implements the error interface.
func (e *DisposedError) Error() string {
	return fmt.Sprintf("data context %s is disposed", e.ContextID)
}

// Is checks if the error is ErrDisposed.
func (e *DisposedError) Is(target error) bool {
	return target == ErrDisposed
}

// ConfigurationError reports a failure binding a configuration.
type ConfigurationError struct {
	Configuration string
	TypeName      string
	Reason        string
	Cause         error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("configuration %q", e.Configuration)
	if e.TypeName != "" {
		msg += fmt.Sprintf(": type %q", e.TypeName)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// TransportError wraps a failure reported by a transport client.
type TransportError struct {
	Op            string
	Configuration string
	Cause         error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s (configuration %q): %v", e.Op, e.Configuration, e.Cause)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// IsDisposed checks if an error is a disposed-context error.
func IsDisposed(err error) bool {
	return errors.Is(err, ErrDisposed)
}

// IsConfiguration checks if an error is a configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
