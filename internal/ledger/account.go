package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"
)

// AccountLedger reads offer state from an account-model chain through its
// indexer's HTTP API. The indexer exposes finalized account state as JSON.
type AccountLedger struct {
	chain   string
	baseURL string
	client  *http.Client
}

// NewAccountLedger creates a reader against an indexer base URL.
func NewAccountLedger(chain, baseURL string, timeout time.Duration) *AccountLedger {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AccountLedger{
		chain:   chain,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (l *AccountLedger) Chain() string { return l.chain }

// offerAccountResponse is the indexer's offer-account payload. Amounts come
// back as decimal strings to survive JSON number limits.
type offerAccountResponse struct {
	OfferID           uint64 `json:"offerId"`
	Approved          bool   `json:"approved"`
	Paid              bool   `json:"paid"`
	Fulfilled         bool   `json:"fulfilled"`
	Cancelled         bool   `json:"cancelled"`
	EmergencyRefunded bool   `json:"emergencyRefunded"`
	AmountPaid        string `json:"amountPaid"`
	UnlockTimestamp   int64  `json:"unlockTimestamp"`
	Slot              uint64 `json:"slot"`
	Signature         string `json:"signature"`
}

// GetOfferState fetches the offer account from the indexer.
func (l *AccountLedger) GetOfferState(ctx context.Context, offerID uint64) (*OfferState, error) {
	url := fmt.Sprintf("%s/api/v1/offers/%d", l.baseURL, offerID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %d on %s", ErrOfferUnknown, offerID, l.chain)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("indexer request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var payload offerAccountResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal offer account: %w", err)
	}

	state := &OfferState{
		OfferID:           payload.OfferID,
		Approved:          payload.Approved,
		Paid:              payload.Paid,
		Fulfilled:         payload.Fulfilled,
		Cancelled:         payload.Cancelled,
		EmergencyRefunded: payload.EmergencyRefunded,
		TxHash:            payload.Signature,
		BlockNumber:       payload.Slot,
	}
	if payload.AmountPaid != "" {
		amount, ok := new(big.Int).SetString(payload.AmountPaid, 10)
		if !ok {
			return nil, fmt.Errorf("invalid amountPaid %q in offer account", payload.AmountPaid)
		}
		state.AmountPaid = amount
	}
	if payload.UnlockTimestamp > 0 {
		state.UnlockTime = time.Unix(payload.UnlockTimestamp, 0).UTC()
	}
	return state, nil
}

// Ping hits the indexer health endpoint.
func (l *AccountLedger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: indexer health returned %d", ErrUnreachable, resp.StatusCode)
	}
	return nil
}
