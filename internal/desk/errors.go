package desk

import (
	"errors"
	"fmt"
)

// Sentinel errors for the offer lifecycle. Callers match with errors.Is; the
// wrapper types below carry the taxonomy class for transport-layer mapping.
var (
	// Validation (amount-range and USD-floor sentinels live in internal/pricing)
	ErrLockupTooLong = errors.New("lockup exceeds maximum")
	ErrZeroAddress   = errors.New("zero address")
	ErrBadCurrency   = errors.New("unsupported payment currency")
	ErrWrongAmount   = errors.New("payment amount does not match required amount")

	// Policy (feed staleness is surfaced as oracle.ErrStaleFeed)
	ErrPriceMoved    = errors.New("live price deviates too far from quoted price")
	ErrBatchTooLarge = errors.New("auto-claim batch exceeds maximum size")
	ErrPaused        = errors.New("desk is paused")
	ErrNotApprover   = errors.New("caller is not a registered approver")
	ErrNotOwner      = errors.New("caller is not the desk owner")

	// State
	ErrAlreadyApproved   = errors.New("offer already approved")
	ErrNotApproved       = errors.New("offer not approved")
	ErrAlreadyPaid       = errors.New("offer already paid")
	ErrNotPaid           = errors.New("offer not paid")
	ErrAlreadyClaimed    = errors.New("offer already claimed")
	ErrNotYetUnlocked    = errors.New("offer lockup has not elapsed")
	ErrNotExpired        = errors.New("offer has not passed its expiry window")
	ErrOfferExpired      = errors.New("offer quote expired")
	ErrOfferTerminal     = errors.New("offer is in a terminal state")
	ErrRefundWindow      = errors.New("emergency refund window is closed")
	ErrInsufficientFunds = errors.New("treasury balance insufficient")

	// Not found
	ErrOfferNotFound = errors.New("offer not found")
)

// ValidationError bad input, rejected before any state change.
type ValidationError struct{ Err error }

func (e *ValidationError) Error() string { return fmt.Sprintf("validation: %v", e.Err) }
func (e *ValidationError) Unwrap() error { return e.Err }

// PolicyError rejected at a guard, no partial effect.
type PolicyError struct{ Err error }

func (e *PolicyError) Error() string { return fmt.Sprintf("policy: %v", e.Err) }
func (e *PolicyError) Unwrap() error { return e.Err }

// StateError the operation is a no-op; prior state is untouched.
type StateError struct{ Err error }

func (e *StateError) Error() string { return fmt.Sprintf("state: %v", e.Err) }
func (e *StateError) Unwrap() error { return e.Err }

// NotFoundError unknown id. Surfaced to individual callers, swallowed inside
// best-effort batch operations.
type NotFoundError struct{ Err error }

func (e *NotFoundError) Error() string { return fmt.Sprintf("not found: %v", e.Err) }
func (e *NotFoundError) Unwrap() error { return e.Err }

func validation(err error) error { return &ValidationError{Err: err} }
func policy(err error) error     { return &PolicyError{Err: err} }
func state(err error) error      { return &StateError{Err: err} }
func notFound(err error) error   { return &NotFoundError{Err: err} }

// IsValidation reports whether err belongs to the validation class.
func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// IsPolicy reports whether err belongs to the policy class.
func IsPolicy(err error) bool {
	var e *PolicyError
	return errors.As(err, &e)
}

// IsState reports whether err belongs to the state class.
func IsState(err error) bool {
	var e *StateError
	return errors.As(err, &e)
}

// IsNotFound reports whether err belongs to the not-found class.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}
