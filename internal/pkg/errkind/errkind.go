// Package errkind classifies engine errors into the four failure categories
// reported to callers: validation, authorization, state conflict and transfer.
package errkind

import "errors"

// Error categories. Match with errors.Is.
var (
	ErrValidation    = errors.New("validation")
	ErrAuthorization = errors.New("authorization")
	ErrStateConflict = errors.New("state conflict")
	ErrTransfer      = errors.New("transfer")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

// Is reports whether target is the category of e.
func (e *kindError) Is(target error) bool { return target == e.kind }

// New returns a sentinel error belonging to kind.
func New(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// Of returns the category of err, or nil if err is not categorised.
func Of(err error) error {
	for _, kind := range []error{ErrValidation, ErrAuthorization, ErrStateConflict, ErrTransfer} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
