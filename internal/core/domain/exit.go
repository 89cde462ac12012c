package domain

import (
	"errors"
	"fmt"
)

// ExitError asks the process to stop with the given status. It is returned
// by handlers on purpose and is never treated as a fault.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit requested with status %d", e.Code)
}

func Exit(code int) error {
	return &ExitError{Code: code}
}

// ExitCode reports whether err carries an exit request.
func ExitCode(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}

	return 0, false
}
