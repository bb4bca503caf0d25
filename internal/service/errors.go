package service

import (
	"errors"
	"fmt"

	"stockledger-api/internal/repository"
)

// ErrorKind classifies the user-facing failures of a service call.
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindUnauthenticated
	KindAuthorization
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not found"
	}
	return "unknown"
}

// Error is a failure reported before any state changed. Field names the
// offending input for validation errors.
type Error struct {
	Kind    ErrorKind
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s error: %s: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func validationError(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

func unauthenticated() *Error {
	return &Error{Kind: KindUnauthenticated, Message: "authentication required"}
}

func forbidden(message string) *Error {
	return &Error{Kind: KindAuthorization, Message: message}
}

func notFound(entity string, id int64) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %d not found", entity, id), Err: repository.ErrNotFound}
}

// lookup converts repository.ErrNotFound into a NotFound error and wraps
// anything else.
func lookup(err error, entity string, id int64) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(entity, id)
	}
	return fmt.Errorf("failed to get %s: %w", entity, err)
}

// IsKind reports whether err is a service Error of kind k.
func IsKind(err error, k ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// ReconciliationError reports an atomic unit that failed after it had
// started writing. When RolledBack is true the store confirmed that none of
// the unit's writes persisted and the operation may be retried. When it is
// false the outcome is unknown and the quantities of the involved items
// must be reconciled against the ledger by an operator.
type ReconciliationError struct {
	Op         string
	GroupID    string
	Legs       int // legs in the unit
	Completed  int // legs fully written before the failure
	RolledBack bool
	Err        error
}

func (e *ReconciliationError) Error() string {
	state := "rolled back"
	if !e.RolledBack {
		state = "outcome unknown"
	}
	return fmt.Sprintf("reconciliation required: %s %s failed after %d/%d legs (%s): %v",
		e.Op, e.GroupID, e.Completed, e.Legs, state, e.Err)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }
