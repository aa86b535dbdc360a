package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
	ErrCapacity   = errors.New("capacity exhausted")
	ErrStorage    = errors.New("storage failure")
	// ErrReferentialIntegrity is a conflict caused by dependent records.
	ErrReferentialIntegrity error = &Error{Kind: ErrConflict, Msg: "referential integrity violation"}
	// Identifier collisions that allocators may retry.
	ErrBookCodeTaken        error = &Error{Kind: ErrConflict, Msg: "book code is already allocated"}
	ErrAdmissionNumberTaken error = &Error{Kind: ErrConflict, Msg: "admission number already exists"}
)

// Error carries one of the sentinel kinds above plus a caller-facing message.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func newf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) error {
	return newf(ErrValidation, format, args...)
}

func Conflict(format string, args ...any) error {
	return newf(ErrConflict, format, args...)
}

func NotFound(format string, args ...any) error {
	return newf(ErrNotFound, format, args...)
}

func Capacity(format string, args ...any) error {
	return newf(ErrCapacity, format, args...)
}

func ReferentialIntegrity(format string, args ...any) error {
	return newf(ErrReferentialIntegrity, format, args...)
}

// Wrap attaches msg to an existing kind, e.g. Wrap(ErrBookCodeTaken, ...).
func Wrap(kind error, format string, args ...any) error {
	return newf(kind, format, args...)
}

// Storage classifies err as a storage failure unless it already carries a
// domain kind.
func Storage(err error, op string) error {
	if err == nil {
		return nil
	}
	if IsDomain(err) {
		return err
	}
	return &Error{Kind: ErrStorage, Msg: fmt.Sprintf("%s: %v", op, err)}
}

func IsDomain(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

type ErrorResponse struct {
	Message string `json:"message"`
}
