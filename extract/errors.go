package extract

import (
	"errors"
	"fmt"
)

// UserError is a failure the user can fix through configuration or server
// access. The command exits with status 1 for these and 2 for anything else.
type UserError struct {
	Msg string
	Err error
}

func (e *UserError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *UserError) Unwrap() error {
	return e.Err
}

func userError(err error, format string, args ...any) error {
	return &UserError{Msg: fmt.Sprintf(format, args...), Err: err}
}

// IsUserError reports whether err carries a *UserError.
func IsUserError(err error) bool {
	var ue *UserError
	return errors.As(err, &ue)
}
