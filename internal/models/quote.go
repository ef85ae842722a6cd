package models

import (
	"time"
)

// QuoteStatus is the off-chain lifecycle of a quote record. It only ever
// converges toward ledger truth; reconciliation never invents regressions.
type QuoteStatus string

const (
	QuoteStatusActive    QuoteStatus = "active"    // created, not yet approved on the ledger
	QuoteStatusApproved  QuoteStatus = "approved"  // approved, awaiting payment
	QuoteStatusExecuted  QuoteStatus = "executed"  // paid; tokens in or past lockup
	QuoteStatusCancelled QuoteStatus = "cancelled" // cancelled before payment
	QuoteStatusRefunded  QuoteStatus = "refunded"  // payment returned via emergency refund
)

// Terminal reports whether the status admits no further transitions.
func (s QuoteStatus) Terminal() bool {
	return s == QuoteStatusCancelled || s == QuoteStatusRefunded
}

// rank orders statuses along the forward path so reconciliation can refuse
// to move a quote backwards. Terminal statuses sit above everything.
func (s QuoteStatus) rank() int {
	switch s {
	case QuoteStatusActive:
		return 0
	case QuoteStatusApproved:
		return 1
	case QuoteStatusExecuted:
		return 2
	case QuoteStatusCancelled, QuoteStatusRefunded:
		return 3
	default:
		return -1
	}
}

// CanTransitionTo reports whether moving from s to target is a forward move.
func (s QuoteStatus) CanTransitionTo(target QuoteStatus) bool {
	if s == target {
		return false
	}
	if s.Terminal() {
		return false
	}
	return target.rank() > s.rank()
}

// Quote is the off-chain record of a priced offer tracked for a counterparty.
// Monetary fields are decimal strings: token amounts exceed int64 and must
// round-trip the database exactly.
type Quote struct {
	ID          string `json:"id" gorm:"primaryKey"` // UUID
	EntityID    string `json:"entity_id" gorm:"not null;index"`
	Beneficiary string `json:"beneficiary" gorm:"not null;index"`

	// Ledger binding. OfferID is nil until the offer exists on the ledger.
	Chain   string  `json:"chain" gorm:"not null;index"`
	OfferID *uint64 `json:"offer_id" gorm:"index"`

	Status QuoteStatus `json:"status" gorm:"not null;default:active;index"`

	// Economics captured at quote time.
	TokenAmount     string `json:"token_amount" gorm:"not null"`
	DiscountBps     uint16 `json:"discount_bps" gorm:"not null"`
	Currency        string `json:"currency" gorm:"not null"`
	QuotePriceUsd8  string `json:"quote_price_usd8" gorm:"not null"`
	RequiredPayment string `json:"required_payment"`
	AmountPaid      string `json:"amount_paid"`
	LockupSeconds   int64  `json:"lockup_seconds"`

	// Provenance from the last reconciliation pass.
	TxHash       string     `json:"tx_hash"`
	BlockNumber  uint64     `json:"block_number"`
	ReconciledAt *time.Time `json:"reconciled_at"`

	ExpiresAt time.Time `json:"expires_at" gorm:"index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Quote) TableName() string { return "quotes" }
