package ledger

import (
	"context"
	"errors"
	"fmt"

	"otc-backend/internal/desk"
)

// EmbeddedLedger treats the in-process desk as a ledger, so quotes settled
// locally reconcile through the same path as on-chain ones.
type EmbeddedLedger struct {
	chain string
	desk  *desk.Desk
}

func NewEmbeddedLedger(chain string, d *desk.Desk) *EmbeddedLedger {
	return &EmbeddedLedger{chain: chain, desk: d}
}

func (l *EmbeddedLedger) Chain() string { return l.chain }

func (l *EmbeddedLedger) GetOfferState(ctx context.Context, offerID uint64) (*OfferState, error) {
	offer, err := l.desk.GetOffer(offerID)
	if err != nil {
		if errors.Is(err, desk.ErrOfferNotFound) {
			return nil, fmt.Errorf("%w: %d on %s", ErrOfferUnknown, offerID, l.chain)
		}
		return nil, err
	}
	return &OfferState{
		OfferID:           offer.ID,
		Approved:          offer.Approved,
		Paid:              offer.Paid,
		Fulfilled:         offer.Fulfilled,
		Cancelled:         offer.Cancelled,
		EmergencyRefunded: offer.EmergencyRefunded,
		AmountPaid:        offer.AmountPaid,
		UnlockTime:        offer.UnlockTime,
	}, nil
}

func (l *EmbeddedLedger) Ping(ctx context.Context) error { return nil }
