package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when an operation runs without a session.
	ErrNotConnected = errors.New("remote: not connected")

	// ErrConfig marks failures caused by invalid connection parameters.
	// They are never retried.
	ErrConfig = errors.New("configuration error")
)

// ConnectionError is returned by Connect for every failed attempt to
// establish a session.
type ConnectionError struct {
	Server string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Server, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// PathError records a failed operation on a remote path.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}
