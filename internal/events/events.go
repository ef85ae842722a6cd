// Package events defines the lifecycle event payloads published to NATS.
package events

import "time"

// Subjects follow otc.<chain>.offer.<event>.
const (
	SubjectOfferCreated  = "otc.%s.offer.created"
	SubjectOfferApproved = "otc.%s.offer.approved"
	SubjectOfferPaid     = "otc.%s.offer.paid"
	SubjectOfferClaimed  = "otc.%s.offer.claimed"
	SubjectOfferClosed   = "otc.%s.offer.closed" // cancelled or refunded
	SubjectQuoteUpdated  = "otc.%s.quote.updated"
)

// OfferEvent is published on every offer state transition.
type OfferEvent struct {
	Chain       string    `json:"chain"`
	OfferID     uint64    `json:"offerId"`
	Event       string    `json:"event"`
	Beneficiary string    `json:"beneficiary,omitempty"`
	TokenAmount string    `json:"tokenAmount,omitempty"`
	AmountPaid  string    `json:"amountPaid,omitempty"`
	Currency    string    `json:"currency,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// QuoteEvent is published when reconciliation changes a quote's status.
type QuoteEvent struct {
	Chain     string    `json:"chain"`
	QuoteID   string    `json:"quoteId"`
	OfferID   *uint64   `json:"offerId,omitempty"`
	OldStatus string    `json:"oldStatus"`
	NewStatus string    `json:"newStatus"`
	TxHash    string    `json:"txHash,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
