package models

import "fmt"

// UserError is a condition the user can correct. Guidance is safe to show verbatim;
// Cause, if set, is for operators only.
type UserError struct {
	Guidance string
	Cause    error
}

// NewUserError returns a UserError carrying only guidance.
func NewUserError(guidance string) *UserError {
	return &UserError{Guidance: guidance}
}

func (e *UserError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Guidance, e.Cause)
	}
	return e.Guidance
}

func (e *UserError) Unwrap() error {
	return e.Cause
}
