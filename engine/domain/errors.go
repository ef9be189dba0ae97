package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrAdminOnly           = errors.New("operation restricted to administrators")
	ErrIdentifierExhausted = errors.New("identifier generation retries exhausted")
	ErrNotFound            = errors.New("resource not found")
)

// ErrorKind classifies a ValidationError.
type ErrorKind string

const (
	KindUnknownReference ErrorKind = "unknown_reference"
	KindWrongType        ErrorKind = "wrong_type"
	KindOutOfDomain      ErrorKind = "out_of_domain"
	KindCardinality      ErrorKind = "cardinality"
	KindMalformed        ErrorKind = "malformed"
	KindMissing          ErrorKind = "missing"
)

// ValidationError is one user-correctable problem found on a candidate.
// Subject is the candidate's URI, or a placeholder such as "events[2]" when
// no URI has been assigned yet.
type ValidationError struct {
	Index     int         `json:"index"`
	Subject   string      `json:"subject"`
	Predicate ResourceURI `json:"predicate,omitempty"`
	Value     string      `json:"value,omitempty"`
	Kind      ErrorKind   `json:"kind"`
	Message   string      `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Predicate != "" {
		return fmt.Sprintf("validation: %s: %s %s: %s", e.Kind, e.Subject, e.Predicate, e.Message)
	}
	return fmt.Sprintf("validation: %s: %s: %s", e.Kind, e.Subject, e.Message)
}

// AuthorizationError is returned when a non-admin attempts an admin-only mutation.
type AuthorizationError struct {
	Principal string
	Operation string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%s: %q may not %s", ErrAdminOnly, e.Principal, e.Operation)
}

func (e *AuthorizationError) Unwrap() error { return ErrAdminOnly }

// PersistenceKind tells callers whether a store failure is worth retrying.
type PersistenceKind int

const (
	PersistenceUnexpected PersistenceKind = iota
	PersistenceDuplicate
	PersistenceMalformed
	PersistenceUnavailable
)

func (k PersistenceKind) String() string {
	switch k {
	case PersistenceDuplicate:
		return "already exists"
	case PersistenceMalformed:
		return "malformed request"
	case PersistenceUnavailable:
		return "store unavailable"
	default:
		return "unexpected error"
	}
}

// PersistenceError wraps a store failure without exposing store-specific types.
type PersistenceError struct {
	Op   string
	Kind PersistenceKind
	Err  error
}

// NewPersistenceError wraps err for operation op.
func NewPersistenceError(op string, kind PersistenceKind, err error) *PersistenceError {
	return &PersistenceError{Op: op, Kind: kind, Err: err}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// PersistenceKindOf returns the kind of the first PersistenceError in err's
// chain, or PersistenceUnexpected.
func PersistenceKindOf(err error) PersistenceKind {
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return PersistenceUnexpected
}

// IsDuplicate reports whether err is a duplicate-key failure.
func IsDuplicate(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe) && pe.Kind == PersistenceDuplicate
}

// IsRetryable reports whether err is a connectivity failure.
func IsRetryable(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe) && pe.Kind == PersistenceUnavailable
}
