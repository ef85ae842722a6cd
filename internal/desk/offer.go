package desk

import (
	"math/big"
	"time"

	"otc-backend/internal/pricing"
)

// Offer is the authoritative record of a proposed sale. The status flags form
// a lattice: paid implies approved, fulfilled implies paid, and at most one of
// fulfilled/cancelled/emergencyRefunded is ever set.
type Offer struct {
	ID          uint64
	Beneficiary string
	TokenAmount *big.Int
	DiscountBps uint16
	Currency    pricing.Currency

	LockupSeconds int64
	CreatedAt     time.Time
	UnlockTime    time.Time // zero until paid

	// QuotePriceUsd8 is the token price read when the offer was created; the
	// deviation guard compares the live price against it at approval time.
	QuotePriceUsd8 *big.Int
	// PriceSnapshotUsd8 / NativeSnapshotUsd8 are captured at approval and fix
	// the required payment amount.
	PriceSnapshotUsd8  *big.Int
	NativeSnapshotUsd8 *big.Int

	Approved          bool
	Paid              bool
	Fulfilled         bool
	Cancelled         bool
	EmergencyRefunded bool

	Payer      string
	AmountPaid *big.Int

	// ApprovedBy is an audit trail, not an M-of-N gate: the first valid
	// approval transitions the offer.
	ApprovedBy []string
}

// Terminal reports whether the offer reached one of the three end states.
func (o *Offer) Terminal() bool {
	return o.Fulfilled || o.Cancelled || o.EmergencyRefunded
}

// clone returns a defensive copy for read APIs.
func (o *Offer) clone() *Offer {
	cp := *o
	if o.TokenAmount != nil {
		cp.TokenAmount = new(big.Int).Set(o.TokenAmount)
	}
	if o.QuotePriceUsd8 != nil {
		cp.QuotePriceUsd8 = new(big.Int).Set(o.QuotePriceUsd8)
	}
	if o.PriceSnapshotUsd8 != nil {
		cp.PriceSnapshotUsd8 = new(big.Int).Set(o.PriceSnapshotUsd8)
	}
	if o.NativeSnapshotUsd8 != nil {
		cp.NativeSnapshotUsd8 = new(big.Int).Set(o.NativeSnapshotUsd8)
	}
	if o.AmountPaid != nil {
		cp.AmountPaid = new(big.Int).Set(o.AmountPaid)
	}
	cp.ApprovedBy = append([]string(nil), o.ApprovedBy...)
	return &cp
}

// ClaimOutcome is the per-id result of a best-effort batch claim.
type ClaimOutcome string

const (
	ClaimOutcomeFulfilled ClaimOutcome = "fulfilled"
	ClaimOutcomeSkipped   ClaimOutcome = "skipped"
	ClaimOutcomeFailed    ClaimOutcome = "failed"
)

// ClaimResult is one entry of an AutoClaim result list.
type ClaimResult struct {
	ID      uint64       `json:"id"`
	Outcome ClaimOutcome `json:"outcome"`
	Reason  string       `json:"reason,omitempty"`
}
