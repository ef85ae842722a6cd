package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otc-backend/internal/desk"
	"otc-backend/internal/oracle"
	"otc-backend/internal/pricing"
)

func newTestDesk(t *testing.T) (*desk.Desk, *desk.MemoryVault) {
	t.Helper()

	feed := oracle.NewStaticFeed()
	require.NoError(t, feed.SetPrice("SALE", big.NewInt(100_000), time.Now()))          // $0.001
	require.NoError(t, feed.SetPrice("NATIVE", big.NewInt(20_000_000_000), time.Now())) // $200
	adapter := oracle.NewAdapter(map[string]oracle.PriceFeed{"SALE": feed, "NATIVE": feed}, time.Hour)

	vault := desk.NewMemoryVault()
	d := desk.New("owner", desk.Config{
		Decimals:              pricing.Decimals{Token: 9, Stable: 6, Native: 9},
		Limits:                pricing.Limits{MinUsd8: big.NewInt(100_000_000)},
		TokenAssetID:          "SALE",
		NativeAssetID:         "NATIVE",
		QuoteExpiry:           24 * time.Hour,
		MaxLockup:             365 * 24 * time.Hour,
		MaxOpenOffersReturned: 200,
		MaxAutoClaimBatch:     50,
	}, adapter, vault)
	return d, vault
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSetCapsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	d, _ := newTestDesk(t)
	h := NewAdminDeskHandler(d, "owner")

	r := gin.New()
	r.POST("/caps", h.SetCaps)

	w := postJSON(t, r, "/caps", gin.H{"maxOpenOffersReturned": 3, "maxAutoClaimBatch": 10})
	assert.Equal(t, http.StatusOK, w.Code)

	// The new batch cap applies immediately.
	_, err := d.AutoClaim(make([]uint64, 11))
	assert.ErrorIs(t, err, desk.ErrBatchTooLarge)

	w = postJSON(t, r, "/caps", gin.H{"maxOpenOffersReturned": -1, "maxAutoClaimBatch": 10})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWithdrawPaymentsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	d, vault := newTestDesk(t)
	h := NewAdminDeskHandler(d, "owner")

	r := gin.New()
	r.POST("/withdraw-payments", h.WithdrawPayments)

	// Settle one offer end to end so proceeds accumulate: 10,000 tokens at
	// $0.001 -> 10,000,000 stable units, no lockup.
	ctx := context.Background()
	vault.Mint(desk.AssetToken, "owner", big.NewInt(20_000_000_000_000))
	vault.Mint(desk.AssetStable, "payer", big.NewInt(10_000_000))
	require.NoError(t, d.SetApprover("owner", "approver", true))
	require.NoError(t, d.DepositTokens("owner", big.NewInt(10_000_000_000_000)))

	id, err := d.CreateOffer(ctx, "buyer", big.NewInt(10_000_000_000_000), 0, pricing.CurrencyStable, 0)
	require.NoError(t, err)
	require.NoError(t, d.ApproveOffer(ctx, id, "approver"))
	_, err = d.FulfillOffer(ctx, id, "payer", big.NewInt(10_000_000))
	require.NoError(t, err)

	// Still refundable while the offer is merely paid.
	w := postJSON(t, r, "/withdraw-payments", gin.H{"asset": "stable", "amount": "10000000"})
	assert.Equal(t, http.StatusConflict, w.Code)

	require.NoError(t, d.Claim(id))
	w = postJSON(t, r, "/withdraw-payments", gin.H{"asset": "stable", "amount": "10000000"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "10000000", vault.Balance(desk.AssetStable, "owner").String())

	w = postJSON(t, r, "/withdraw-payments", gin.H{"asset": "gold", "amount": "1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
