package memory

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrProtectedNamespace = errors.New("protected namespace")
	ErrStorageFailure     = errors.New("storage failure")
)

// Error is returned by every engine operation that fails
type Error struct {
	Op   string
	Kind error
	ID   string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.ID != "" {
		msg += fmt.Sprintf(" (%s)", e.ID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(op string, kind error, id string, cause error) *Error {
	return &Error{Op: op, Kind: kind, ID: id, Err: cause}
}

func invalidInput(op, message string) *Error {
	return newError(op, ErrInvalidInput, "", errors.New(message))
}

func storageFailure(op, id string, cause error) *Error {
	return newError(op, ErrStorageFailure, id, cause)
}

// KindOf reports which of the engine error kinds err carries, or nil
func KindOf(err error) error {
	for _, kind := range []error{ErrInvalidInput, ErrNotFound, ErrProtectedNamespace, ErrStorageFailure} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
