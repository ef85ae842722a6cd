// Package desk implements the offer settlement engine: the state machine
// governing an offer from creation through price-validated approval, payment,
// lockup, and claim, together with the escrow accounting behind it.
//
// Every state-changing operation on a given offer id is serialized by a
// per-offer lock, so no two transitions on the same id can interleave.
// Operations on different offers do not block each other.
package desk

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"otc-backend/internal/pricing"
)

// PriceSource supplies freshness-checked live prices to the approval policy.
// Implementations surface staleness as an error; the desk never retries.
type PriceSource interface {
	FreshPrice(ctx context.Context, assetID string) (*big.Int, error)
}

// Config is the owner-mutable policy record passed into the desk at
// construction and updated only through the explicit setters below.
type Config struct {
	Decimals pricing.Decimals
	Limits   pricing.Limits

	TokenAssetID  string
	NativeAssetID string

	QuoteExpiry  time.Duration
	MaxLockup    time.Duration
	DeviationBps uint32

	MaxOpenOffersReturned int
	MaxAutoClaimBatch     int

	EmergencyRefundEnabled  bool
	EmergencyRefundDeadline time.Time

	Paused bool
}

// Desk owns the offer ledger: the monotonically increasing offer id, the open
// offer index, and the escrow accounting. All three are mutated only here.
type Desk struct {
	mu sync.Mutex // guards cfg, approvers, offers, openIndex, nextID, reserved

	cfg       Config
	owner     string
	approvers map[string]bool

	prices PriceSource
	vault  Vault

	offers    map[uint64]*Offer
	openIndex []uint64
	nextID    uint64

	// reserved is the token amount owed to paid-but-unsettled offers.
	reserved *big.Int
	// reservedPay is the per-asset payment amount still refundable to paid
	// offers; proceeds above it are sweepable by the owner.
	reservedPay map[Asset]*big.Int

	locks *lockTable
	now   func() time.Time
}

// New creates a desk with the given owner, policy and collaborators.
func New(owner string, cfg Config, prices PriceSource, vault Vault) *Desk {
	d := &Desk{
		cfg:       cfg,
		owner:     owner,
		approvers: make(map[string]bool),
		prices:    prices,
		vault:     vault,
		offers:    make(map[uint64]*Offer),
		nextID:    1,
		reserved:  new(big.Int),
		reservedPay: map[Asset]*big.Int{
			AssetStable: new(big.Int),
			AssetNative: new(big.Int),
		},
		locks: newLockTable(),
		now:   time.Now,
	}
	return d
}

// SetClock overrides the desk clock. Tests inject a controllable clock here.
func (d *Desk) SetClock(now func() time.Time) { d.now = now }

// ============================================================================
// Offer lifecycle
// ============================================================================

// CreateOffer validates the order against the per-order limits (the USD floor
// needs a live price, so the feed is read here) and appends a pending offer.
// No price snapshot is taken yet; prices are re-read fresh at approval.
func (d *Desk) CreateOffer(ctx context.Context, beneficiary string, tokenAmount *big.Int, discountBps uint16, currency pricing.Currency, lockupSeconds int64) (uint64, error) {
	cfg := d.config()
	if cfg.Paused {
		return 0, policy(ErrPaused)
	}
	if beneficiary == "" {
		return 0, validation(ErrZeroAddress)
	}
	if !currency.Valid() {
		return 0, validation(ErrBadCurrency)
	}
	if discountBps > pricing.MaxBps {
		return 0, validation(fmt.Errorf("discount %d bps exceeds %d", discountBps, pricing.MaxBps))
	}
	if lockupSeconds < 0 || time.Duration(lockupSeconds)*time.Second > cfg.MaxLockup {
		return 0, validation(ErrLockupTooLong)
	}

	tokenPrice, err := d.prices.FreshPrice(ctx, cfg.TokenAssetID)
	if err != nil {
		return 0, policy(err)
	}
	if err := cfg.Limits.CheckOrder(tokenAmount, discountBps, tokenPrice, cfg.Decimals.Token); err != nil {
		return 0, validation(err)
	}

	d.mu.Lock()
	id := d.nextID
	d.nextID++
	offer := &Offer{
		ID:             id,
		Beneficiary:    beneficiary,
		TokenAmount:    new(big.Int).Set(tokenAmount),
		DiscountBps:    discountBps,
		Currency:       currency,
		LockupSeconds:  lockupSeconds,
		CreatedAt:      d.now(),
		QuotePriceUsd8: tokenPrice,
	}
	d.offers[id] = offer
	d.openIndex = append(d.openIndex, id)
	d.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"offer":       id,
		"beneficiary": beneficiary,
		"tokenAmount": tokenAmount.String(),
		"discountBps": discountBps,
		"currency":    currency.String(),
	}).Info("offer created")
	return id, nil
}

// ApproveOffer re-reads live prices, enforces the approval policy (feed
// freshness, deviation against the creation-time quote price, per-order
// limits) and flips the offer to approved. The first valid approval
// transitions; the per-approver record is audit only.
func (d *Desk) ApproveOffer(ctx context.Context, id uint64, approver string) error {
	cfg := d.config()
	if cfg.Paused {
		return policy(ErrPaused)
	}
	if !d.isApprover(approver) {
		return policy(ErrNotApprover)
	}

	unlock := d.locks.lock(id)
	defer unlock()

	offer, err := d.offer(id)
	if err != nil {
		return err
	}
	if offer.Terminal() {
		return state(ErrOfferTerminal)
	}
	if offer.Paid {
		return state(ErrAlreadyPaid)
	}
	if offer.Approved {
		return state(ErrAlreadyApproved)
	}

	// Both feeds must be fresh, even for stable-paid offers.
	tokenPrice, err := d.prices.FreshPrice(ctx, cfg.TokenAssetID)
	if err != nil {
		return policy(err)
	}
	nativePrice, err := d.prices.FreshPrice(ctx, cfg.NativeAssetID)
	if err != nil {
		return policy(err)
	}

	if deviationExceeded(offer.QuotePriceUsd8, tokenPrice, cfg.DeviationBps) {
		return policy(fmt.Errorf("%w: quoted %s, live %s, max %d bps",
			ErrPriceMoved, offer.QuotePriceUsd8, tokenPrice, cfg.DeviationBps))
	}
	if err := cfg.Limits.CheckOrder(offer.TokenAmount, offer.DiscountBps, tokenPrice, cfg.Decimals.Token); err != nil {
		return policy(err)
	}

	offer.Approved = true
	offer.PriceSnapshotUsd8 = tokenPrice
	offer.NativeSnapshotUsd8 = nativePrice
	offer.ApprovedBy = append(offer.ApprovedBy, approver)

	logrus.WithFields(logrus.Fields{
		"offer":    id,
		"approver": approver,
		"price8d":  tokenPrice.String(),
	}).Info("offer approved")
	return nil
}

// RequiredPayment returns the exact payment-currency amount for an approved
// offer, computed from the approval snapshots.
func (d *Desk) RequiredPayment(id uint64) (*big.Int, error) {
	unlock := d.locks.lock(id)
	defer unlock()

	offer, err := d.offer(id)
	if err != nil {
		return nil, err
	}
	if !offer.Approved {
		return nil, state(ErrNotApproved)
	}
	cfg := d.config()
	amount, err := pricing.RequiredPayment(offer.TokenAmount, offer.DiscountBps, offer.Currency,
		offer.PriceSnapshotUsd8, offer.NativeSnapshotUsd8, cfg.Decimals)
	if err != nil {
		return nil, validation(err)
	}
	return amount, nil
}

// FulfillOffer records payment for an approved offer. The payer sends
// amountSent; for stable payment it must equal the required amount exactly,
// for native payment any excess over the required amount is returned to the
// payer in the same operation. Marks the offer paid and starts the lockup.
func (d *Desk) FulfillOffer(ctx context.Context, id uint64, payer string, amountSent *big.Int) (*big.Int, error) {
	cfg := d.config()
	if cfg.Paused {
		return nil, policy(ErrPaused)
	}
	if payer == "" {
		return nil, validation(ErrZeroAddress)
	}

	unlock := d.locks.lock(id)
	defer unlock()

	offer, err := d.offer(id)
	if err != nil {
		return nil, err
	}
	if offer.Terminal() {
		return nil, state(ErrOfferTerminal)
	}
	if offer.Paid {
		return nil, state(ErrAlreadyPaid)
	}
	if !offer.Approved {
		return nil, state(ErrNotApproved)
	}

	now := d.now()
	if cfg.QuoteExpiry > 0 && now.After(offer.CreatedAt.Add(cfg.QuoteExpiry)) {
		return nil, state(ErrOfferExpired)
	}

	required, err := pricing.RequiredPayment(offer.TokenAmount, offer.DiscountBps, offer.Currency,
		offer.PriceSnapshotUsd8, offer.NativeSnapshotUsd8, cfg.Decimals)
	if err != nil {
		return nil, validation(err)
	}

	asset := paymentAsset(offer.Currency)

	if amountSent == nil || amountSent.Cmp(required) < 0 {
		return nil, validation(fmt.Errorf("%w: required %s", ErrWrongAmount, required))
	}
	if offer.Currency == pricing.CurrencyStable && amountSent.Cmp(required) != 0 {
		return nil, validation(fmt.Errorf("%w: required %s, sent %s", ErrWrongAmount, required, amountSent))
	}

	if err := d.vault.Transfer(asset, payer, DeskAccount, amountSent); err != nil {
		return nil, validation(fmt.Errorf("payment transfer failed: %w", err))
	}
	// Excess native payment never stays with the desk.
	if excess := new(big.Int).Sub(amountSent, required); excess.Sign() > 0 {
		if err := d.vault.Transfer(asset, DeskAccount, payer, excess); err != nil {
			// Undo the pull so the operation stays all-or-nothing.
			_ = d.vault.Transfer(asset, DeskAccount, payer, amountSent)
			return nil, validation(fmt.Errorf("excess refund failed: %w", err))
		}
	}

	offer.Paid = true
	offer.Payer = payer
	offer.AmountPaid = required
	offer.UnlockTime = now.Add(time.Duration(offer.LockupSeconds) * time.Second)

	d.mu.Lock()
	d.reserved.Add(d.reserved, offer.TokenAmount)
	d.reservedPay[asset].Add(d.reservedPay[asset], required)
	d.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"offer":      id,
		"payer":      payer,
		"amountPaid": required.String(),
		"currency":   offer.Currency.String(),
		"unlockTime": offer.UnlockTime,
	}).Info("offer paid")
	return required, nil
}

// Claim releases tokens to the beneficiary once the lockup has elapsed.
// Treasury sufficiency is checked here, not reserved eagerly: the owner funds
// the treasury, and claim fails safely when it is short.
func (d *Desk) Claim(id uint64) error {
	if d.config().Paused {
		return policy(ErrPaused)
	}

	unlock := d.locks.lock(id)
	defer unlock()
	return d.claimLocked(id)
}

func (d *Desk) claimLocked(id uint64) error {
	offer, err := d.offer(id)
	if err != nil {
		return err
	}
	if offer.Fulfilled {
		return state(ErrAlreadyClaimed)
	}
	if offer.Cancelled || offer.EmergencyRefunded {
		return state(ErrOfferTerminal)
	}
	if !offer.Paid {
		return state(ErrNotPaid)
	}
	if d.now().Before(offer.UnlockTime) {
		return state(ErrNotYetUnlocked)
	}
	if d.vault.Balance(AssetToken, DeskAccount).Cmp(offer.TokenAmount) < 0 {
		return state(ErrInsufficientFunds)
	}

	if err := d.vault.Transfer(AssetToken, DeskAccount, offer.Beneficiary, offer.TokenAmount); err != nil {
		return state(fmt.Errorf("%w: %v", ErrInsufficientFunds, err))
	}

	offer.Fulfilled = true

	asset := paymentAsset(offer.Currency)
	d.mu.Lock()
	d.reserved.Sub(d.reserved, offer.TokenAmount)
	d.reservedPay[asset].Sub(d.reservedPay[asset], offer.AmountPaid)
	d.pruneIndexLocked(id)
	d.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"offer":       id,
		"beneficiary": offer.Beneficiary,
		"tokenAmount": offer.TokenAmount.String(),
	}).Info("tokens claimed")
	return nil
}

// AutoClaim sweeps a batch of offer ids. The batch size is capped; within the
// cap each id is processed independently and unknown, not-yet-claimable or
// already-settled ids are skipped without aborting the rest.
func (d *Desk) AutoClaim(ids []uint64) ([]ClaimResult, error) {
	cfg := d.config()
	if cfg.Paused {
		return nil, policy(ErrPaused)
	}
	if len(ids) > cfg.MaxAutoClaimBatch {
		return nil, policy(fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(ids), cfg.MaxAutoClaimBatch))
	}

	results := make([]ClaimResult, 0, len(ids))
	for _, id := range ids {
		err := func() error {
			unlock := d.locks.lock(id)
			defer unlock()
			return d.claimLocked(id)
		}()

		switch {
		case err == nil:
			results = append(results, ClaimResult{ID: id, Outcome: ClaimOutcomeFulfilled})
		case IsNotFound(err), IsState(err):
			results = append(results, ClaimResult{ID: id, Outcome: ClaimOutcomeSkipped, Reason: err.Error()})
		default:
			results = append(results, ClaimResult{ID: id, Outcome: ClaimOutcomeFailed, Reason: err.Error()})
		}
	}
	return results, nil
}

// CancelOffer cancels an unpaid offer. The owner or an approver may cancel at
// any time before payment; the original requester only after the expiry
// window has elapsed.
func (d *Desk) CancelOffer(id uint64, caller string) error {
	cfg := d.config()
	if cfg.Paused {
		return policy(ErrPaused)
	}

	unlock := d.locks.lock(id)
	defer unlock()

	offer, err := d.offer(id)
	if err != nil {
		return err
	}
	if offer.Terminal() {
		return state(ErrOfferTerminal)
	}
	if offer.Paid {
		return state(ErrAlreadyPaid)
	}

	switch {
	case caller == d.ownerName() || d.isApprover(caller):
		// any time before payment
	case caller == offer.Beneficiary:
		if d.now().Before(offer.CreatedAt.Add(cfg.QuoteExpiry)) {
			return state(ErrNotExpired)
		}
	default:
		return policy(ErrNotApprover)
	}

	offer.Cancelled = true

	d.mu.Lock()
	d.pruneIndexLocked(id)
	d.mu.Unlock()

	logrus.WithFields(logrus.Fields{"offer": id, "by": caller}).Info("offer cancelled")
	return nil
}

// EmergencyRefund returns the payment of a paid offer without releasing
// tokens. Only available while the global emergency-refund flag is enabled
// and before its deadline.
func (d *Desk) EmergencyRefund(id uint64, caller string) error {
	cfg := d.config()
	if !cfg.EmergencyRefundEnabled {
		return policy(ErrRefundWindow)
	}
	if !cfg.EmergencyRefundDeadline.IsZero() && d.now().After(cfg.EmergencyRefundDeadline) {
		return policy(ErrRefundWindow)
	}

	unlock := d.locks.lock(id)
	defer unlock()

	offer, err := d.offer(id)
	if err != nil {
		return err
	}
	if offer.Terminal() {
		return state(ErrOfferTerminal)
	}
	if !offer.Paid {
		return state(ErrNotPaid)
	}
	if caller != offer.Payer && caller != offer.Beneficiary && caller != d.ownerName() && !d.isApprover(caller) {
		return policy(ErrNotApprover)
	}

	asset := paymentAsset(offer.Currency)
	if err := d.vault.Transfer(asset, DeskAccount, offer.Payer, offer.AmountPaid); err != nil {
		return state(fmt.Errorf("%w: %v", ErrInsufficientFunds, err))
	}

	offer.EmergencyRefunded = true

	d.mu.Lock()
	d.reserved.Sub(d.reserved, offer.TokenAmount)
	d.reservedPay[asset].Sub(d.reservedPay[asset], offer.AmountPaid)
	d.pruneIndexLocked(id)
	d.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"offer":    id,
		"by":       caller,
		"refunded": offer.AmountPaid.String(),
	}).Warn("offer emergency refunded")
	return nil
}

// ============================================================================
// Reads
// ============================================================================

// GetOffer returns a copy of the offer.
func (d *Desk) GetOffer(id uint64) (*Offer, error) {
	unlock := d.locks.lock(id)
	defer unlock()

	offer, err := d.offer(id)
	if err != nil {
		return nil, err
	}
	return offer.clone(), nil
}

// OpenOfferIDs returns ids still awaiting payment or claim, capped at the
// configured maximum so the payload stays bounded.
func (d *Desk) OpenOfferIDs() []uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	max := d.cfg.MaxOpenOffersReturned
	out := make([]uint64, 0, max)
	for _, id := range d.openIndex {
		if len(out) >= max {
			break
		}
		out = append(out, id)
	}
	return out
}

// TreasuryBalance returns the escrow's token balance.
func (d *Desk) TreasuryBalance() *big.Int {
	return d.vault.Balance(AssetToken, DeskAccount)
}

// ReservedTokens returns the token amount owed to paid, unsettled offers.
func (d *Desk) ReservedTokens() *big.Int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return new(big.Int).Set(d.reserved)
}

// PaymentBalance returns the escrow's balance in a payment asset.
func (d *Desk) PaymentBalance(asset Asset) *big.Int {
	return d.vault.Balance(asset, DeskAccount)
}

// ReservedPayments returns the payment amount still refundable to paid offers
// in the given asset.
func (d *Desk) ReservedPayments(asset Asset) *big.Int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.reservedPay[asset]; ok {
		return new(big.Int).Set(r)
	}
	return new(big.Int)
}

// ============================================================================
// Owner operations
// ============================================================================

// SetApprover registers or removes an approver. Owner only.
func (d *Desk) SetApprover(caller, who string, allowed bool) error {
	if caller != d.ownerName() {
		return policy(ErrNotOwner)
	}
	if who == "" {
		return validation(ErrZeroAddress)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if allowed {
		d.approvers[who] = true
	} else {
		delete(d.approvers, who)
	}
	return nil
}

// SetLimits updates the per-order limits and windows. Owner only.
func (d *Desk) SetLimits(caller string, limits pricing.Limits, quoteExpiry, maxLockup time.Duration) error {
	if caller != d.ownerName() {
		return policy(ErrNotOwner)
	}
	if quoteExpiry <= 0 || maxLockup < 0 {
		return validation(fmt.Errorf("non-positive window"))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.Limits = limits
	d.cfg.QuoteExpiry = quoteExpiry
	d.cfg.MaxLockup = maxLockup
	return nil
}

// SetEmergencyRefund enables or disables the refund escape hatch. Owner only.
func (d *Desk) SetEmergencyRefund(caller string, enabled bool, deadline time.Time) error {
	if caller != d.ownerName() {
		return policy(ErrNotOwner)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.EmergencyRefundEnabled = enabled
	d.cfg.EmergencyRefundDeadline = deadline
	return nil
}

// SetCaps updates the bounded-result and batch caps. Owner only.
func (d *Desk) SetCaps(caller string, maxOpenOffersReturned, maxAutoClaimBatch int) error {
	if caller != d.ownerName() {
		return policy(ErrNotOwner)
	}
	if maxOpenOffersReturned <= 0 || maxAutoClaimBatch <= 0 {
		return validation(fmt.Errorf("non-positive cap"))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.MaxOpenOffersReturned = maxOpenOffersReturned
	d.cfg.MaxAutoClaimBatch = maxAutoClaimBatch
	return nil
}

// SetPaused pauses or resumes the desk. Owner only.
func (d *Desk) SetPaused(caller string, paused bool) error {
	if caller != d.ownerName() {
		return policy(ErrNotOwner)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.Paused = paused
	return nil
}

// DepositTokens moves tokens from the owner into the treasury.
func (d *Desk) DepositTokens(caller string, amount *big.Int) error {
	if caller != d.ownerName() {
		return policy(ErrNotOwner)
	}
	if amount == nil || amount.Sign() <= 0 {
		return validation(fmt.Errorf("non-positive deposit"))
	}
	if err := d.vault.Transfer(AssetToken, caller, DeskAccount, amount); err != nil {
		return validation(fmt.Errorf("deposit transfer failed: %w", err))
	}
	return nil
}

// WithdrawTokens moves unreserved tokens from the treasury back to the owner.
// The treasury can never be drawn below the amount owed to paid offers.
func (d *Desk) WithdrawTokens(caller string, amount *big.Int) error {
	if caller != d.ownerName() {
		return policy(ErrNotOwner)
	}
	if amount == nil || amount.Sign() <= 0 {
		return validation(fmt.Errorf("non-positive withdrawal"))
	}

	d.mu.Lock()
	after := new(big.Int).Sub(d.vault.Balance(AssetToken, DeskAccount), amount)
	if after.Cmp(d.reserved) < 0 {
		d.mu.Unlock()
		return state(ErrInsufficientFunds)
	}
	d.mu.Unlock()

	if err := d.vault.Transfer(AssetToken, DeskAccount, caller, amount); err != nil {
		return state(fmt.Errorf("%w: %v", ErrInsufficientFunds, err))
	}
	return nil
}

// WithdrawPayments sweeps collected sale proceeds in a payment asset to the
// owner. The escrow can never be drawn below the amount still refundable to
// paid offers in that asset.
func (d *Desk) WithdrawPayments(caller string, asset Asset, amount *big.Int) error {
	if caller != d.ownerName() {
		return policy(ErrNotOwner)
	}
	if asset != AssetStable && asset != AssetNative {
		return validation(fmt.Errorf("%w: %s is not a payment asset", ErrBadCurrency, asset))
	}
	if amount == nil || amount.Sign() <= 0 {
		return validation(fmt.Errorf("non-positive withdrawal"))
	}

	d.mu.Lock()
	after := new(big.Int).Sub(d.vault.Balance(asset, DeskAccount), amount)
	if after.Cmp(d.reservedPay[asset]) < 0 {
		d.mu.Unlock()
		return state(ErrInsufficientFunds)
	}
	d.mu.Unlock()

	if err := d.vault.Transfer(asset, DeskAccount, caller, amount); err != nil {
		return state(fmt.Errorf("%w: %v", ErrInsufficientFunds, err))
	}
	return nil
}

// ============================================================================
// Internals
// ============================================================================

func (d *Desk) config() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

func (d *Desk) ownerName() string { return d.owner }

// paymentAsset maps an offer's payment currency to its vault asset.
func paymentAsset(c pricing.Currency) Asset {
	if c == pricing.CurrencyNative {
		return AssetNative
	}
	return AssetStable
}

func (d *Desk) isApprover(who string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.approvers[who]
}

// offer looks up the live offer record. Callers must hold the per-offer lock.
func (d *Desk) offer(id uint64) (*Offer, error) {
	d.mu.Lock()
	offer, ok := d.offers[id]
	d.mu.Unlock()
	if !ok {
		return nil, notFound(fmt.Errorf("%w: %d", ErrOfferNotFound, id))
	}
	return offer, nil
}

// pruneIndexLocked removes a settled id from the open index. Caller holds d.mu.
func (d *Desk) pruneIndexLocked(id uint64) {
	for i, v := range d.openIndex {
		if v == id {
			d.openIndex = append(d.openIndex[:i], d.openIndex[i+1:]...)
			return
		}
	}
}

// deviationExceeded reports whether live differs from quoted by strictly more
// than maxBps basis points of the quoted price.
func deviationExceeded(quoted, live *big.Int, maxBps uint32) bool {
	if quoted == nil || quoted.Sign() <= 0 || maxBps == 0 {
		return false
	}
	diff := new(big.Int).Sub(live, quoted)
	diff.Abs(diff)
	// diff > quoted * maxBps / 10000
	allowed := new(big.Int).Mul(quoted, big.NewInt(int64(maxBps)))
	allowed.Div(allowed, big.NewInt(pricing.MaxBps))
	return diff.Cmp(allowed) > 0
}

// lockTable hands out one mutex per offer id.
type lockTable struct {
	mu    sync.Mutex
	locks map[uint64]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[uint64]*sync.Mutex)}
}

// lock acquires the per-id mutex and returns its unlock func.
func (t *lockTable) lock(id uint64) func() {
	t.mu.Lock()
	l, ok := t.locks[id]
	if !ok {
		l = &sync.Mutex{}
		t.locks[id] = l
	}
	t.mu.Unlock()

	l.Lock()
	return l.Unlock
}
