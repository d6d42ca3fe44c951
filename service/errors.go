package service

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownConfiguration is returned for a configuration name the
	// service does not host.
	ErrUnknownConfiguration = errors.New("unknown configuration")

	// ErrUpdatesNotAllowed is returned for non-query commands when the
	// service is read-only.
	ErrUpdatesNotAllowed = errors.New("updates are not allowed")

	// ErrBadPayload is returned for payloads that cannot be decoded or
	// carry the wrong number of commands.
	ErrBadPayload = errors.New("bad payload")

	// ErrUnsupportedProvider is returned when no driver is known for a
	// provider name.
	ErrUnsupportedProvider = errors.New("unsupported provider")
)

// CommandError reports the statement that failed.
type CommandError struct {
	Configuration string
	Index         int
	SQL           string
	Cause         error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("configuration %s: command %d (%s): %v", e.Configuration, e.Index, e.SQL, e.Cause)
}

func (e *CommandError) Unwrap() error {
	return e.Cause
}
