package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure so the caller can decide how to react.
type ErrorKind string

const (
	KindValidation        ErrorKind = "VALIDATION"
	KindConflict          ErrorKind = "CONFLICT"
	KindNotFound          ErrorKind = "NOT_FOUND"
	KindInsufficientStock ErrorKind = "INSUFFICIENT_STOCK"
	KindTransient         ErrorKind = "TRANSIENT"
)

// Error is a domain error carrying a kind and an actionable message.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrConflict) works
// for every conflict regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// Sentinels for errors.Is checks.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock}
	ErrTransient         = &Error{Kind: KindTransient}
)

func validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func conflictf(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func notFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validationf is used by adapters to reject malformed input before it reaches
// a service.
func Validationf(format string, args ...any) error {
	return validationf(format, args...)
}

// NotFoundf is used by store implementations to report a missing row.
func NotFoundf(format string, args ...any) error {
	return notFoundf(format, args...)
}

// ConflictError is used by store implementations when a storage constraint
// rejects a write that the validator should have caught.
func ConflictError(message string, err error) error {
	return &Error{Kind: KindConflict, Message: message, Err: err}
}

// TransientError wraps an infrastructure failure that may succeed on a retry of
// the whole operation (serialization failure, deadlock, dropped connection).
func TransientError(message string, err error) error {
	return &Error{Kind: KindTransient, Message: message, Err: err}
}

// InsufficientStockError reports how much stock was short.
type InsufficientStockError struct {
	Category  StockCategory
	Available int64
	Required  int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for category %s: available %d, required %d (short by %d)",
		e.Category, e.Available, e.Required, e.Required-e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// OverlapError reports the ledger entry and branch a candidate range collided with.
type OverlapError struct {
	CandidateFirst int64
	CandidateLast  int64
	Conflict       Conflict
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("serial range %d-%d overlaps range %d-%d already printed by branch %s (entry %d)",
		e.CandidateFirst, e.CandidateLast,
		e.Conflict.FirstSerial, e.Conflict.LastSerial,
		e.Conflict.BranchName, e.Conflict.EntryID)
}

func (e *OverlapError) Is(target error) bool {
	return target == ErrConflict
}

// KindOf returns the kind of a domain error, or "" for unclassified errors.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	var ie *InsufficientStockError
	if errors.As(err, &ie) {
		return KindInsufficientStock
	}
	var oe *OverlapError
	if errors.As(err, &oe) {
		return KindConflict
	}
	return ""
}
