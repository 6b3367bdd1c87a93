package dx

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks a caller error such as a nil source or a
	// negative offset.
	ErrInvalidArgument = errors.New("dx: invalid argument")

	// ErrLifecycle marks an operation invoked in the wrong writer state.
	ErrLifecycle = errors.New("dx: operation not valid in current state")

	// ErrEmptySource is returned by a Reader that has nothing captured.
	ErrEmptySource = errors.New("dx: empty source")
)

// ParseError reports a class file that could not be decoded.
type ParseError struct {
	Filename string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s: %v", e.Filename, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// TranslationError reports a class file that decoded but could not be
// turned into a class definition.
type TranslationError struct {
	Filename string
	Err      error
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("translation error in %s: %v", e.Filename, e.Err)
}

func (e *TranslationError) Unwrap() error {
	return e.Err
}
