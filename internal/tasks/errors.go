package tasks

import "errors"

// Errors returned by the ordering engine and the stores.
//
// They are always wrapped with context and should be checked with errors.Is:
//
//	if errors.Is(err, tasks.ErrNotFound) {
//	    // reject the request
//	}
var (
	// ErrNotFound is returned when a referenced task, list or parent does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidOperation is returned when a request violates a structural
	// precondition, such as indenting a task with no predecessor or creating
	// a subtask of a subtask.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrIntegrityViolation is returned when an invariant that must hold was
	// found broken in the store. The surrounding transaction is aborted and
	// nothing is repaired.
	ErrIntegrityViolation = errors.New("integrity violation")
)

// ErrorKind classifies an error for callers that need to decide between
// rejecting a request and reporting a server fault.
type ErrorKind int

const (
	// KindNone is the kind of a nil error.
	KindNone ErrorKind = iota
	// KindNotFound wraps ErrNotFound.
	KindNotFound
	// KindInvalidOperation wraps ErrInvalidOperation.
	KindInvalidOperation
	// KindIntegrity wraps ErrIntegrityViolation.
	KindIntegrity
	// KindStore is any other failure, typically from the storage layer.
	KindStore
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNotFound:
		return "not_found"
	case KindInvalidOperation:
		return "invalid_operation"
	case KindIntegrity:
		return "integrity_violation"
	case KindStore:
		return "store"
	default:
		return "unknown"
	}
}

// Kind returns the taxonomy kind of err.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrIntegrityViolation):
		return KindIntegrity
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidOperation):
		return KindInvalidOperation
	default:
		return KindStore
	}
}

// IsRetryable returns true if the whole operation may be retried from
// scratch. Only store failures qualify; rejected requests and corrupted
// structures will fail the same way again.
func IsRetryable(err error) bool {
	return Kind(err) == KindStore
}

// IsClientError returns true if err rejects the request itself.
func IsClientError(err error) bool {
	k := Kind(err)
	return k == KindNotFound || k == KindInvalidOperation
}
