package desk

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otc-backend/internal/oracle"
	"otc-backend/internal/pricing"
)

const (
	testOwner    = "owner"
	testApprover = "approver"
	testBuyer    = "buyer"
	testPayer    = "payer"
)

type testEnv struct {
	desk  *Desk
	vault *MemoryVault
	feed  *oracle.StaticFeed
	clock *testClock
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := &testClock{now: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}

	feed := oracle.NewStaticFeed()
	require.NoError(t, feed.SetPrice("SALE", big.NewInt(100_000), clock.now))          // $0.001
	require.NoError(t, feed.SetPrice("NATIVE", big.NewInt(20_000_000_000), clock.now)) // $200

	adapter := oracle.NewAdapter(map[string]oracle.PriceFeed{"SALE": feed, "NATIVE": feed}, time.Hour)
	adapter.SetClock(clock.Now)

	vault := NewMemoryVault()
	vault.Mint(AssetToken, testOwner, tokens(1_000_000))
	vault.Mint(AssetStable, testPayer, new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1_000_000)))
	vault.Mint(AssetNative, testPayer, tokens(1_000))

	d := New(testOwner, Config{
		Decimals: pricing.Decimals{Token: 9, Stable: 6, Native: 9},
		Limits: pricing.Limits{
			MinUsd8:  big.NewInt(100_000_000), // $1
			MinToken: tokens(1),
			MaxToken: big.NewInt(0),
		},
		TokenAssetID:          "SALE",
		NativeAssetID:         "NATIVE",
		QuoteExpiry:           24 * time.Hour,
		MaxLockup:             365 * 24 * time.Hour,
		DeviationBps:          2000,
		MaxOpenOffersReturned: 200,
		MaxAutoClaimBatch:     50,
	}, adapter, vault)
	d.SetClock(clock.Now)
	require.NoError(t, d.SetApprover(testOwner, testApprover, true))
	require.NoError(t, d.DepositTokens(testOwner, tokens(500_000)))

	return &testEnv{desk: d, vault: vault, feed: feed, clock: clock}
}

func (e *testEnv) createStableOffer(t *testing.T) uint64 {
	t.Helper()
	id, err := e.desk.CreateOffer(context.Background(), testBuyer, tokens(10_000), 1000, pricing.CurrencyStable, 3600)
	require.NoError(t, err)
	return id
}

func (e *testEnv) approvedStableOffer(t *testing.T) uint64 {
	t.Helper()
	id := e.createStableOffer(t)
	require.NoError(t, e.desk.ApproveOffer(context.Background(), id, testApprover))
	return id
}

func (e *testEnv) paidStableOffer(t *testing.T) uint64 {
	t.Helper()
	id := e.approvedStableOffer(t)
	required, err := e.desk.RequiredPayment(id)
	require.NoError(t, err)
	_, err = e.desk.FulfillOffer(context.Background(), id, testPayer, required)
	require.NoError(t, err)
	return id
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestStableLifecycle(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	id := e.createStableOffer(t)
	offer, err := e.desk.GetOffer(id)
	require.NoError(t, err)
	assert.False(t, offer.Approved)
	assert.Equal(t, "100000", offer.QuotePriceUsd8.String())

	require.NoError(t, e.desk.ApproveOffer(ctx, id, testApprover))

	// 10,000 tokens at $0.001 with 10% discount -> $9.00 -> 9,000,000 stable units.
	required, err := e.desk.RequiredPayment(id)
	require.NoError(t, err)
	assert.Equal(t, "9000000", required.String())

	paid, err := e.desk.FulfillOffer(ctx, id, testPayer, required)
	require.NoError(t, err)
	assert.Equal(t, required, paid)
	assert.Equal(t, required.String(), e.vault.Balance(AssetStable, DeskAccount).String())
	assert.Equal(t, tokens(10_000).String(), e.desk.ReservedTokens().String())

	// Locked for an hour.
	err = e.desk.Claim(id)
	assert.ErrorIs(t, err, ErrNotYetUnlocked)

	e.clock.Advance(2 * time.Hour)
	require.NoError(t, e.desk.Claim(id))
	assert.Equal(t, tokens(10_000).String(), e.vault.Balance(AssetToken, testBuyer).String())
	assert.Equal(t, "0", e.desk.ReservedTokens().String())

	offer, err = e.desk.GetOffer(id)
	require.NoError(t, err)
	assert.True(t, offer.Fulfilled)
	assert.NotContains(t, e.desk.OpenOfferIDs(), id)
}

func TestNativePaymentRefundsExcess(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	id, err := e.desk.CreateOffer(ctx, testBuyer, tokens(10_000), 1000, pricing.CurrencyNative, 0)
	require.NoError(t, err)
	require.NoError(t, e.desk.ApproveOffer(ctx, id, testApprover))

	// $9.00 at $200/native -> 0.045 native.
	required, err := e.desk.RequiredPayment(id)
	require.NoError(t, err)
	assert.Equal(t, "45000000", required.String())

	before := e.vault.Balance(AssetNative, testPayer)
	sent := new(big.Int).Add(required, big.NewInt(5_000_000))
	paid, err := e.desk.FulfillOffer(ctx, id, testPayer, sent)
	require.NoError(t, err)
	assert.Equal(t, required, paid)

	// Only the required amount left the payer; the desk holds exactly it.
	after := e.vault.Balance(AssetNative, testPayer)
	assert.Equal(t, required.String(), new(big.Int).Sub(before, after).String())
	assert.Equal(t, required.String(), e.vault.Balance(AssetNative, DeskAccount).String())
}

func TestStablePaymentMustBeExact(t *testing.T) {
	e := newTestEnv(t)
	id := e.approvedStableOffer(t)

	required, err := e.desk.RequiredPayment(id)
	require.NoError(t, err)

	over := new(big.Int).Add(required, big.NewInt(1))
	_, err = e.desk.FulfillOffer(context.Background(), id, testPayer, over)
	assert.ErrorIs(t, err, ErrWrongAmount)

	under := new(big.Int).Sub(required, big.NewInt(1))
	_, err = e.desk.FulfillOffer(context.Background(), id, testPayer, under)
	assert.ErrorIs(t, err, ErrWrongAmount)
}

func TestTransitionsAreIdempotentFailures(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.paidStableOffer(t)

	assert.ErrorIs(t, e.desk.ApproveOffer(ctx, id, testApprover), ErrAlreadyPaid)

	_, err := e.desk.FulfillOffer(ctx, id, testPayer, big.NewInt(1))
	assert.ErrorIs(t, err, ErrAlreadyPaid)

	e.clock.Advance(2 * time.Hour)
	require.NoError(t, e.desk.Claim(id))
	assert.ErrorIs(t, e.desk.Claim(id), ErrAlreadyClaimed)
}

func TestApproveTwiceFails(t *testing.T) {
	e := newTestEnv(t)
	id := e.approvedStableOffer(t)
	err := e.desk.ApproveOffer(context.Background(), id, testApprover)
	assert.ErrorIs(t, err, ErrAlreadyApproved)
	assert.True(t, IsState(err))
}

func TestFulfillRequiresApproval(t *testing.T) {
	e := newTestEnv(t)
	id := e.createStableOffer(t)
	_, err := e.desk.FulfillOffer(context.Background(), id, testPayer, big.NewInt(9_000_000))
	assert.ErrorIs(t, err, ErrNotApproved)
}

func TestFulfillAfterExpiryFails(t *testing.T) {
	e := newTestEnv(t)
	id := e.approvedStableOffer(t)
	e.clock.Advance(25 * time.Hour)
	_, err := e.desk.FulfillOffer(context.Background(), id, testPayer, big.NewInt(9_000_000))
	assert.ErrorIs(t, err, ErrOfferExpired)
}

// ============================================================================
// Approval policy
// ============================================================================

func TestApproveRejectsNonApprover(t *testing.T) {
	e := newTestEnv(t)
	id := e.createStableOffer(t)
	err := e.desk.ApproveOffer(context.Background(), id, "stranger")
	assert.ErrorIs(t, err, ErrNotApprover)
	assert.True(t, IsPolicy(err))
}

func TestApproveRejectsPriceDeviation(t *testing.T) {
	e := newTestEnv(t)
	id := e.createStableOffer(t)

	// 30% move against a 20% tolerance.
	require.NoError(t, e.feed.SetPrice("SALE", big.NewInt(130_000), e.clock.Now()))
	err := e.desk.ApproveOffer(context.Background(), id, testApprover)
	assert.ErrorIs(t, err, ErrPriceMoved)

	// Within tolerance succeeds.
	require.NoError(t, e.feed.SetPrice("SALE", big.NewInt(110_000), e.clock.Now()))
	assert.NoError(t, e.desk.ApproveOffer(context.Background(), id, testApprover))
}

func TestApproveRejectsStaleFeed(t *testing.T) {
	e := newTestEnv(t)
	id := e.createStableOffer(t)

	e.clock.Advance(2 * time.Hour)
	err := e.desk.ApproveOffer(context.Background(), id, testApprover)
	assert.ErrorIs(t, err, oracle.ErrStaleFeed)
	assert.True(t, IsPolicy(err))
}

func TestApproveSnapshotsBothPrices(t *testing.T) {
	e := newTestEnv(t)
	id := e.approvedStableOffer(t)

	offer, err := e.desk.GetOffer(id)
	require.NoError(t, err)
	assert.Equal(t, "100000", offer.PriceSnapshotUsd8.String())
	assert.Equal(t, "20000000000", offer.NativeSnapshotUsd8.String())
	assert.Equal(t, []string{testApprover}, offer.ApprovedBy)
}

// ============================================================================
// Creation guards
// ============================================================================

func TestCreateRejectsBadOrders(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.desk.CreateOffer(ctx, "", tokens(10_000), 0, pricing.CurrencyStable, 0)
	assert.ErrorIs(t, err, ErrZeroAddress)

	_, err = e.desk.CreateOffer(ctx, testBuyer, tokens(10_000), 0, pricing.Currency(9), 0)
	assert.ErrorIs(t, err, ErrBadCurrency)

	_, err = e.desk.CreateOffer(ctx, testBuyer, tokens(10_000), 0, pricing.CurrencyStable, int64((366 * 24 * time.Hour).Seconds()))
	assert.ErrorIs(t, err, ErrLockupTooLong)

	// $0.50 notional, below the $1 floor.
	_, err = e.desk.CreateOffer(ctx, testBuyer, tokens(500), 0, pricing.CurrencyStable, 0)
	assert.ErrorIs(t, err, pricing.ErrMinUsd)
	assert.True(t, IsValidation(err))
}

// ============================================================================
// Cancellation
// ============================================================================

func TestCancelPermissions(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	// Owner may cancel any time before payment.
	id := e.createStableOffer(t)
	require.NoError(t, e.desk.CancelOffer(id, testOwner))

	// Approver too.
	id = e.approvedStableOffer(t)
	require.NoError(t, e.desk.CancelOffer(id, testApprover))

	// Beneficiary only after expiry.
	id = e.createStableOffer(t)
	assert.ErrorIs(t, e.desk.CancelOffer(id, testBuyer), ErrNotExpired)
	e.clock.Advance(25 * time.Hour)
	require.NoError(t, e.desk.CancelOffer(id, testBuyer))

	// Strangers never. The clock moved past the feed's freshness window, so
	// repost prices before creating.
	require.NoError(t, e.feed.SetPrice("SALE", big.NewInt(100_000), e.clock.Now()))
	id, err := e.desk.CreateOffer(ctx, testBuyer, tokens(10_000), 0, pricing.CurrencyStable, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, e.desk.CancelOffer(id, "stranger"), ErrNotApprover)
}

func TestCancelPaidOfferFails(t *testing.T) {
	e := newTestEnv(t)
	id := e.paidStableOffer(t)
	assert.ErrorIs(t, e.desk.CancelOffer(id, testOwner), ErrAlreadyPaid)
}

func TestCancelledOfferIsTerminal(t *testing.T) {
	e := newTestEnv(t)
	id := e.createStableOffer(t)
	require.NoError(t, e.desk.CancelOffer(id, testOwner))

	assert.ErrorIs(t, e.desk.CancelOffer(id, testOwner), ErrOfferTerminal)
	assert.ErrorIs(t, e.desk.ApproveOffer(context.Background(), id, testApprover), ErrOfferTerminal)
	assert.NotContains(t, e.desk.OpenOfferIDs(), id)
}

// ============================================================================
// Emergency refund
// ============================================================================

func TestEmergencyRefund(t *testing.T) {
	e := newTestEnv(t)
	id := e.paidStableOffer(t)

	// Disabled by default.
	assert.ErrorIs(t, e.desk.EmergencyRefund(id, testPayer), ErrRefundWindow)

	require.NoError(t, e.desk.SetEmergencyRefund(testOwner, true, e.clock.Now().Add(24*time.Hour)))

	payerBefore := e.vault.Balance(AssetStable, testPayer)
	require.NoError(t, e.desk.EmergencyRefund(id, testPayer))

	// Payment returned, reservation released, no tokens moved.
	payerAfter := e.vault.Balance(AssetStable, testPayer)
	assert.Equal(t, "9000000", new(big.Int).Sub(payerAfter, payerBefore).String())
	assert.Equal(t, "0", e.desk.ReservedTokens().String())
	assert.Equal(t, "0", e.vault.Balance(AssetToken, testBuyer).String())

	offer, err := e.desk.GetOffer(id)
	require.NoError(t, err)
	assert.True(t, offer.EmergencyRefunded)

	// A refunded offer can never be claimed.
	e.clock.Advance(2 * time.Hour)
	assert.ErrorIs(t, e.desk.Claim(id), ErrOfferTerminal)
}

func TestEmergencyRefundRespectsDeadline(t *testing.T) {
	e := newTestEnv(t)
	id := e.paidStableOffer(t)

	require.NoError(t, e.desk.SetEmergencyRefund(testOwner, true, e.clock.Now().Add(time.Hour)))
	e.clock.Advance(2 * time.Hour)
	assert.ErrorIs(t, e.desk.EmergencyRefund(id, testPayer), ErrRefundWindow)
}

func TestEmergencyRefundRequiresPayment(t *testing.T) {
	e := newTestEnv(t)
	id := e.approvedStableOffer(t)
	require.NoError(t, e.desk.SetEmergencyRefund(testOwner, true, time.Time{}))
	assert.ErrorIs(t, e.desk.EmergencyRefund(id, testPayer), ErrNotPaid)
}

// ============================================================================
// Auto-claim
// ============================================================================

func TestAutoClaimBatch(t *testing.T) {
	e := newTestEnv(t)

	first := e.paidStableOffer(t)
	second := e.paidStableOffer(t)
	unpaid := e.createStableOffer(t)

	// Move past both lockups, then pay a fresh offer with a week-long lockup.
	e.clock.Advance(2 * time.Hour)

	// Feed timestamps aged with the clock; repost before quoting again.
	require.NoError(t, e.feed.SetPrice("SALE", big.NewInt(100_000), e.clock.Now()))
	require.NoError(t, e.feed.SetPrice("NATIVE", big.NewInt(20_000_000_000), e.clock.Now()))
	longID, err := e.desk.CreateOffer(context.Background(), testBuyer, tokens(10_000), 1000, pricing.CurrencyStable, 7*24*3600)
	require.NoError(t, err)
	require.NoError(t, e.desk.ApproveOffer(context.Background(), longID, testApprover))
	required, err := e.desk.RequiredPayment(longID)
	require.NoError(t, err)
	_, err = e.desk.FulfillOffer(context.Background(), longID, testPayer, required)
	require.NoError(t, err)

	results, err := e.desk.AutoClaim([]uint64{first, second, unpaid, longID, 999})
	require.NoError(t, err)
	require.Len(t, results, 5)

	byID := make(map[uint64]ClaimResult)
	for _, r := range results {
		byID[r.ID] = r
	}
	assert.Equal(t, ClaimOutcomeFulfilled, byID[first].Outcome)
	assert.Equal(t, ClaimOutcomeFulfilled, byID[second].Outcome)
	assert.Equal(t, ClaimOutcomeSkipped, byID[unpaid].Outcome)
	assert.Equal(t, ClaimOutcomeSkipped, byID[longID].Outcome)
	assert.Equal(t, ClaimOutcomeSkipped, byID[999].Outcome)
}

func TestAutoClaimBatchCap(t *testing.T) {
	e := newTestEnv(t)
	ids := make([]uint64, 51)
	_, err := e.desk.AutoClaim(ids)
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}

// ============================================================================
// Treasury
// ============================================================================

func TestWithdrawRespectsReservedFloor(t *testing.T) {
	e := newTestEnv(t)
	e.paidStableOffer(t)

	// Treasury 500,000; reserved 10,000 -> at most 490,000 may leave.
	assert.ErrorIs(t, e.desk.WithdrawTokens(testOwner, tokens(495_000)), ErrInsufficientFunds)
	assert.NoError(t, e.desk.WithdrawTokens(testOwner, tokens(490_000)))
}

func TestClaimFailsWhenTreasuryShort(t *testing.T) {
	e := newTestEnv(t)
	id := e.paidStableOffer(t)

	// Drain the treasury below the obligation via the vault directly, as if a
	// competing claim had consumed it.
	require.NoError(t, e.vault.Transfer(AssetToken, DeskAccount, testOwner, tokens(495_000)))

	e.clock.Advance(2 * time.Hour)
	assert.ErrorIs(t, e.desk.Claim(id), ErrInsufficientFunds)

	offer, err := e.desk.GetOffer(id)
	require.NoError(t, err)
	assert.False(t, offer.Fulfilled)
}

func TestDepositWithdrawPermissions(t *testing.T) {
	e := newTestEnv(t)
	assert.ErrorIs(t, e.desk.DepositTokens("stranger", tokens(1)), ErrNotOwner)
	assert.ErrorIs(t, e.desk.WithdrawTokens("stranger", tokens(1)), ErrNotOwner)
}

func TestWithdrawPaymentsRespectsRefundFloor(t *testing.T) {
	e := newTestEnv(t)
	id := e.paidStableOffer(t)

	// The whole payment is still refundable to the paid offer.
	assert.Equal(t, "9000000", e.desk.ReservedPayments(AssetStable).String())
	assert.ErrorIs(t, e.desk.WithdrawPayments(testOwner, AssetStable, big.NewInt(1)), ErrInsufficientFunds)

	// Once claimed the offer can no longer be refunded; proceeds are sweepable.
	e.clock.Advance(2 * time.Hour)
	require.NoError(t, e.desk.Claim(id))
	assert.Equal(t, "0", e.desk.ReservedPayments(AssetStable).String())
	require.NoError(t, e.desk.WithdrawPayments(testOwner, AssetStable, big.NewInt(9_000_000)))
	assert.Equal(t, "9000000", e.vault.Balance(AssetStable, testOwner).String())
	assert.Equal(t, "0", e.vault.Balance(AssetStable, DeskAccount).String())
}

func TestWithdrawPaymentsGuards(t *testing.T) {
	e := newTestEnv(t)
	assert.ErrorIs(t, e.desk.WithdrawPayments("stranger", AssetStable, big.NewInt(1)), ErrNotOwner)
	assert.ErrorIs(t, e.desk.WithdrawPayments(testOwner, AssetToken, big.NewInt(1)), ErrBadCurrency)
	assert.True(t, IsValidation(e.desk.WithdrawPayments(testOwner, AssetStable, big.NewInt(0))))
}

func TestEmergencyRefundReleasesPaymentReservation(t *testing.T) {
	e := newTestEnv(t)
	id := e.paidStableOffer(t)
	require.NoError(t, e.desk.SetEmergencyRefund(testOwner, true, time.Time{}))
	require.NoError(t, e.desk.EmergencyRefund(id, testPayer))

	// The payment went back to the payer; nothing remains to sweep.
	assert.Equal(t, "0", e.desk.ReservedPayments(AssetStable).String())
	assert.ErrorIs(t, e.desk.WithdrawPayments(testOwner, AssetStable, big.NewInt(1)), ErrInsufficientFunds)
}

// ============================================================================
// Pause and reads
// ============================================================================

func TestPauseBlocksLifecycle(t *testing.T) {
	e := newTestEnv(t)
	id := e.paidStableOffer(t)
	pending := e.createStableOffer(t)

	require.NoError(t, e.desk.SetPaused(testOwner, true))

	_, err := e.desk.CreateOffer(context.Background(), testBuyer, tokens(10_000), 0, pricing.CurrencyStable, 0)
	assert.ErrorIs(t, err, ErrPaused)
	assert.ErrorIs(t, e.desk.ApproveOffer(context.Background(), pending, testApprover), ErrPaused)
	assert.ErrorIs(t, e.desk.Claim(id), ErrPaused)
	assert.ErrorIs(t, e.desk.CancelOffer(pending, testOwner), ErrPaused)

	// Emergency refund stays available while paused.
	require.NoError(t, e.desk.SetEmergencyRefund(testOwner, true, time.Time{}))
	assert.NoError(t, e.desk.EmergencyRefund(id, testPayer))

	require.NoError(t, e.desk.SetPaused(testOwner, false))
	_, err = e.desk.CreateOffer(context.Background(), testBuyer, tokens(10_000), 0, pricing.CurrencyStable, 0)
	assert.NoError(t, err)
}

func TestOpenOfferIDsBounded(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.desk.SetCaps(testOwner, 3, 50))

	for i := 0; i < 5; i++ {
		e.createStableOffer(t)
	}
	assert.Len(t, e.desk.OpenOfferIDs(), 3)
}

func TestGetOfferReturnsCopy(t *testing.T) {
	e := newTestEnv(t)
	id := e.createStableOffer(t)

	offer, err := e.desk.GetOffer(id)
	require.NoError(t, err)
	offer.TokenAmount.SetInt64(1)

	fresh, err := e.desk.GetOffer(id)
	require.NoError(t, err)
	assert.Equal(t, tokens(10_000).String(), fresh.TokenAmount.String())
}

func TestGetOfferNotFound(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.desk.GetOffer(12345)
	assert.ErrorIs(t, err, ErrOfferNotFound)
	assert.True(t, IsNotFound(err))
}
