// Package ledger reads offer settlement state from the ledgers that hold it.
// Each backend answers the same question — what are the five lifecycle flags
// of offer N — so the reconciler never needs to know which kind of ledger a
// quote settles on.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"
)

var (
	// ErrOfferUnknown means the ledger has no record of the offer id.
	ErrOfferUnknown = errors.New("offer not found on ledger")
	// ErrUnreachable means the ledger could not be queried at all.
	ErrUnreachable = errors.New("ledger unreachable")
)

// OfferState is the settlement truth for one offer as read from a ledger.
type OfferState struct {
	OfferID           uint64    `json:"offerId"`
	Approved          bool      `json:"approved"`
	Paid              bool      `json:"paid"`
	Fulfilled         bool      `json:"fulfilled"`
	Cancelled         bool      `json:"cancelled"`
	EmergencyRefunded bool      `json:"emergencyRefunded"`
	AmountPaid        *big.Int  `json:"amountPaid,omitempty"`
	UnlockTime        time.Time `json:"unlockTime,omitempty"`

	// Provenance of the read, when the backend can supply it.
	TxHash      string `json:"txHash,omitempty"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
}

// OfferStateReader is implemented per ledger backend.
type OfferStateReader interface {
	// GetOfferState reads the current lifecycle flags of an offer.
	GetOfferState(ctx context.Context, offerID uint64) (*OfferState, error)
	// Ping reports whether the ledger can currently be queried.
	Ping(ctx context.Context) error
	// Chain returns the ledger's identifier as used in quote records.
	Chain() string
}

// Registry maps chain identifiers to their state readers.
type Registry struct {
	readers map[string]OfferStateReader
}

func NewRegistry() *Registry {
	return &Registry{readers: make(map[string]OfferStateReader)}
}

// Register adds a reader under its chain identifier.
func (r *Registry) Register(reader OfferStateReader) {
	r.readers[reader.Chain()] = reader
}

// Reader returns the reader for a chain.
func (r *Registry) Reader(chain string) (OfferStateReader, error) {
	reader, ok := r.readers[chain]
	if !ok {
		return nil, fmt.Errorf("no ledger registered for chain %q", chain)
	}
	return reader, nil
}

// Chains lists the registered chain identifiers.
func (r *Registry) Chains() []string {
	out := make([]string, 0, len(r.readers))
	for chain := range r.readers {
		out = append(out, chain)
	}
	return out
}
