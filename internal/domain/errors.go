package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound: the referenced pool, allocation or billing record does
	// not exist (or the pool is archived). Permanent.
	ErrNotFound = errors.New("not found")

	// ErrExhausted: the pool has no remaining capacity. Permanent for this
	// attempt; the caller decides whether to waitlist.
	ErrExhausted = errors.New("pool capacity exhausted")

	// ErrPolicyViolation: a business rule rejected the request before any
	// mutation. Always wrapped by a *PolicyError carrying the reason code.
	ErrPolicyViolation = errors.New("policy violation")

	// ErrConflict: transient concurrent-writer interference (serialization
	// failure, deadlock, lock timeout). Retried a bounded number of times
	// inside the pool manager before surfacing.
	ErrConflict = errors.New("concurrent update conflict")

	// ErrAlreadyReleased: idempotency short-circuit, not a caller mistake.
	// The pool counter was decremented exactly once by the first release.
	ErrAlreadyReleased = errors.New("allocation already released")

	// ErrDuplicatePayment: the external transaction id has been seen
	// before; the earlier application stands and nothing changed.
	ErrDuplicatePayment = errors.New("duplicate payment")

	// ErrDuplicateAssessment: a concurrent Assess won the (owner,
	// scheduleRef) unique index. The insert aborted the transaction, so
	// the winner's record must be read outside it.
	ErrDuplicateAssessment = errors.New("obligation already assessed")

	// ErrOverpayment: the payment would push the covered amount past the
	// obligation plus tolerance. The valid portion is committed; the excess
	// belongs to the refund workflow.
	ErrOverpayment = errors.New("overpayment")

	// ErrRenewalLimitExceeded: the allocation has reached the per-kind
	// renewal cap.
	ErrRenewalLimitExceeded = errors.New("renewal limit exceeded")
)

// Policy reason codes, stable identifiers the API boundary can translate
// into client messages.
const (
	PolicyReasonDuplicateActive = "DUPLICATE_ACTIVE_ALLOCATION"
	PolicyReasonWindowClosed    = "OUTSIDE_REGISTRATION_WINDOW"
	PolicyReasonQuotaExceeded   = "QUOTA_EXCEEDED"
)

// PolicyError is a business-rule rejection with a machine-readable reason.
// It unwraps to ErrPolicyViolation so callers can match the whole class.
type PolicyError struct {
	Reason string
	Detail string
}

func (e *PolicyError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("policy violation: %s", e.Reason)
	}
	return fmt.Sprintf("policy violation: %s: %s", e.Reason, e.Detail)
}

func (e *PolicyError) Unwrap() error { return ErrPolicyViolation }

func NewPolicyError(reason, detail string) *PolicyError {
	return &PolicyError{Reason: reason, Detail: detail}
}
