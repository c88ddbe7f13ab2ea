package bot

import "errors"

var (
	// ErrUnauthorized: a non-admin invoked an admin-only command.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden: a banned user tried to use a flow.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation: malformed command arguments.
	ErrValidation = errors.New("validation")
)

// validationError carries the user-facing message for ErrValidation.
type validationError struct {
	msg string
}

func (e *validationError) Error() string { return "validation: " + e.msg }

func (e *validationError) Is(target error) bool { return target == ErrValidation }

func invalid(msg string) error { return &validationError{msg: msg} }
