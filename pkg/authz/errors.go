package authz

import (
	"errors"
	"fmt"
)

// Kind classifies a failure at the backend boundary.
type Kind string

const (
	// KindStoreUnavailable: the policy store could not be reached or could not
	// answer a read (for example the role existence check).
	KindStoreUnavailable Kind = "store-unavailable"
	// KindStoreRejected: the store refused the first mutation of a sequence;
	// nothing was applied.
	KindStoreRejected Kind = "store-rejected"
	// KindNameCollision: the derived policy name already belongs to a
	// different (category, feed) pair.
	KindNameCollision Kind = "name-collision"
	// KindPartialApply: a mutation failed after earlier mutations of the same
	// reconcile were applied. The store is left as it was at the failure.
	KindPartialApply Kind = "partial-apply"
	// KindNotSupported: the backend does not implement the operation.
	KindNotSupported Kind = "not-supported"
	// KindInvalidArgument: the request is malformed.
	KindInvalidArgument Kind = "invalid-argument"
	// KindNotFound: the requested object does not exist.
	KindNotFound Kind = "not-found"
)

// Sentinel errors for errors.Is matching by kind.
var (
	ErrStoreUnavailable = &Error{Kind: KindStoreUnavailable}
	ErrStoreRejected    = &Error{Kind: KindStoreRejected}
	ErrNameCollision    = &Error{Kind: KindNameCollision}
	ErrPartialApply     = &Error{Kind: KindPartialApply}
	ErrNotSupported     = &Error{Kind: KindNotSupported}
	ErrInvalidArgument  = &Error{Kind: KindInvalidArgument}
	ErrNotFound         = &Error{Kind: KindNotFound}
)

// Error is returned by backends for every failed operation.
type Error struct {
	Kind   Kind
	Op     string // operation that failed, e.g. "grant role to group"
	Policy string // policy name, if one was derived
	// Applied is the number of store mutations that succeeded before the
	// failure.
	Applied int
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Policy != "" {
		msg += fmt.Sprintf(" (policy %s", e.Policy)
		if e.Kind == KindPartialApply {
			msg += fmt.Sprintf(", %d mutations applied", e.Applied)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there
// is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Retryable reports whether repeating the failed operation may succeed.
// Reconciles are idempotent, so a partial apply is healed by running the
// same reconcile again.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindStoreUnavailable, KindPartialApply:
		return true
	}
	return false
}

// NotSupported builds the error returned for declared but unimplemented
// operations.
func NotSupported(backend Type, op string) error {
	return &Error{Kind: KindNotSupported, Op: op, Err: fmt.Errorf("%s backend does not implement %s", backend, op)}
}

func errEmpty(field string) error {
	return fmt.Errorf("%s must not be empty", field)
}
