package domain

import "errors"

// Sentinel errors for the workflow core. The transport layer maps these to
// status codes; callers use errors.Is so wrapped detail never breaks matching.
var (
	// ErrValidation marks missing or malformed input. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrPolicyViolation marks a segregation-of-duties breach, e.g. an actor
	// reviewing their own submission.
	ErrPolicyViolation = errors.New("policy violation")

	// ErrInvalidTransition marks an action not valid from the entity's current
	// status, including the race where status changed between read and write.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrConcurrencyConflict marks a conditional write rejected on version
	// mismatch. Callers re-read and retry; the engine retries a bounded number
	// of times before surfacing it.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrPersistence marks an unavailable entity store or audit sink.
	ErrPersistence = errors.New("persistence failure")

	// ErrNotFound marks a lookup for an entity id that does not exist.
	ErrNotFound = errors.New("entity not found")
)

// ErrorCode returns the stable machine-readable code for err, or "INTERNAL"
// when the error is outside the workflow taxonomy.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrPolicyViolation):
		return "POLICY_VIOLATION"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrConcurrencyConflict):
		return "CONCURRENCY_CONFLICT"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrPersistence):
		return "PERSISTENCE_ERROR"
	default:
		return "INTERNAL"
	}
}
