package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otc-backend/internal/ledger"
	"otc-backend/internal/models"
	"otc-backend/internal/repository"
)

// fakeQuoteRepo is an in-memory QuoteRepository.
type fakeQuoteRepo struct {
	quotes  map[string]*models.Quote
	updates int
}

func newFakeQuoteRepo() *fakeQuoteRepo {
	return &fakeQuoteRepo{quotes: make(map[string]*models.Quote)}
}

func (r *fakeQuoteRepo) Create(_ context.Context, q *models.Quote) error {
	r.quotes[q.ID] = q
	return nil
}

func (r *fakeQuoteRepo) GetByID(_ context.Context, id string) (*models.Quote, error) {
	q, ok := r.quotes[id]
	if !ok {
		return nil, repository.ErrQuoteNotFound
	}
	return q, nil
}

func (r *fakeQuoteRepo) GetByOffer(_ context.Context, chain string, offerID uint64) (*models.Quote, error) {
	for _, q := range r.quotes {
		if q.Chain == chain && q.OfferID != nil && *q.OfferID == offerID {
			return q, nil
		}
	}
	return nil, repository.ErrQuoteNotFound
}

func (r *fakeQuoteRepo) Update(_ context.Context, q *models.Quote) error {
	r.quotes[q.ID] = q
	r.updates++
	return nil
}

func (r *fakeQuoteRepo) UpdateStatus(_ context.Context, id string, status models.QuoteStatus, reconciledAt time.Time) error {
	q, ok := r.quotes[id]
	if !ok {
		return repository.ErrQuoteNotFound
	}
	q.Status = status
	q.ReconciledAt = &reconciledAt
	return nil
}

func (r *fakeQuoteRepo) FindByEntity(_ context.Context, entityID string) ([]*models.Quote, error) {
	var out []*models.Quote
	for _, q := range r.quotes {
		if q.EntityID == entityID {
			out = append(out, q)
		}
	}
	return out, nil
}

func (r *fakeQuoteRepo) FindActive(_ context.Context, limit int) ([]*models.Quote, error) {
	var out []*models.Quote
	for _, q := range r.quotes {
		if !q.Status.Terminal() {
			out = append(out, q)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *fakeQuoteRepo) FindExpired(_ context.Context, before time.Time, limit int) ([]*models.Quote, error) {
	return nil, nil
}

func (r *fakeQuoteRepo) CountByStatus(_ context.Context) (map[models.QuoteStatus]int64, error) {
	out := make(map[models.QuoteStatus]int64)
	for _, q := range r.quotes {
		out[q.Status]++
	}
	return out, nil
}

// fakeLedger serves canned offer states for one chain.
type fakeLedger struct {
	chain  string
	states map[uint64]*ledger.OfferState
	err    error
}

func (f *fakeLedger) Chain() string { return f.chain }

func (f *fakeLedger) GetOfferState(_ context.Context, offerID uint64) (*ledger.OfferState, error) {
	if f.err != nil {
		return nil, f.err
	}
	state, ok := f.states[offerID]
	if !ok {
		return nil, ledger.ErrOfferUnknown
	}
	return state, nil
}

func (f *fakeLedger) Ping(_ context.Context) error { return f.err }

func offerID(id uint64) *uint64 { return &id }

func newTestReconciler(t *testing.T, fakes ...*fakeLedger) (*ReconcileService, *fakeQuoteRepo) {
	t.Helper()
	repo := newFakeQuoteRepo()
	registry := ledger.NewRegistry()
	for _, f := range fakes {
		registry.Register(f)
	}
	return NewReconcileService(repo, registry, nil, time.Minute, 50), repo
}

func TestStatusFromLedger(t *testing.T) {
	cases := []struct {
		state ledger.OfferState
		want  models.QuoteStatus
	}{
		{ledger.OfferState{}, models.QuoteStatusActive},
		{ledger.OfferState{Approved: true}, models.QuoteStatusApproved},
		{ledger.OfferState{Approved: true, Paid: true}, models.QuoteStatusExecuted},
		{ledger.OfferState{Approved: true, Paid: true, Fulfilled: true}, models.QuoteStatusExecuted},
		{ledger.OfferState{Cancelled: true}, models.QuoteStatusCancelled},
		{ledger.OfferState{Approved: true, Paid: true, EmergencyRefunded: true}, models.QuoteStatusRefunded},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, StatusFromLedger(&c.state))
	}
}

func TestReconcileQuoteAdvancesStatus(t *testing.T) {
	fake := &fakeLedger{chain: "devnet", states: map[uint64]*ledger.OfferState{
		7: {OfferID: 7, Approved: true, Paid: true, TxHash: "0xabc", BlockNumber: 120},
	}}
	svc, repo := newTestReconciler(t, fake)

	quote := &models.Quote{ID: "q1", Chain: "devnet", OfferID: offerID(7), Status: models.QuoteStatusActive}
	require.NoError(t, repo.Create(context.Background(), quote))

	changed, err := svc.ReconcileQuote(context.Background(), quote)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.QuoteStatusExecuted, quote.Status)
	assert.Equal(t, "0xabc", quote.TxHash)
	assert.Equal(t, uint64(120), quote.BlockNumber)
	assert.NotNil(t, quote.ReconciledAt)
}

func TestReconcileQuoteIsIdempotent(t *testing.T) {
	fake := &fakeLedger{chain: "devnet", states: map[uint64]*ledger.OfferState{
		7: {OfferID: 7, Approved: true},
	}}
	svc, repo := newTestReconciler(t, fake)

	quote := &models.Quote{ID: "q1", Chain: "devnet", OfferID: offerID(7), Status: models.QuoteStatusActive}
	require.NoError(t, repo.Create(context.Background(), quote))

	changed, err := svc.ReconcileQuote(context.Background(), quote)
	require.NoError(t, err)
	assert.True(t, changed)

	// Same ledger state again: no transition.
	changed, err = svc.ReconcileQuote(context.Background(), quote)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, models.QuoteStatusApproved, quote.Status)
}

func TestReconcileNeverMovesBackwards(t *testing.T) {
	// Ledger reports bare approval, but the quote already saw payment.
	fake := &fakeLedger{chain: "devnet", states: map[uint64]*ledger.OfferState{
		7: {OfferID: 7, Approved: true},
	}}
	svc, repo := newTestReconciler(t, fake)

	quote := &models.Quote{ID: "q1", Chain: "devnet", OfferID: offerID(7), Status: models.QuoteStatusExecuted}
	require.NoError(t, repo.Create(context.Background(), quote))

	changed, err := svc.ReconcileQuote(context.Background(), quote)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, models.QuoteStatusExecuted, quote.Status)
}

func TestSweepRefundsExecutedQuote(t *testing.T) {
	// A paid offer is emergency-refunded directly on its ledger; the executed
	// quote must still be swept and converge to refunded.
	fake := &fakeLedger{chain: "devnet", states: map[uint64]*ledger.OfferState{
		7: {OfferID: 7, Approved: true, Paid: true, EmergencyRefunded: true, TxHash: "0xdef"},
	}}
	svc, repo := newTestReconciler(t, fake)

	quote := &models.Quote{ID: "q1", Chain: "devnet", OfferID: offerID(7), Status: models.QuoteStatusExecuted}
	require.NoError(t, repo.Create(context.Background(), quote))

	updated, failed, err := svc.SweepActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, updated)
	assert.Equal(t, 0, failed)

	got, _ := repo.GetByID(context.Background(), "q1")
	assert.Equal(t, models.QuoteStatusRefunded, got.Status)
	assert.Equal(t, "0xdef", got.TxHash)
}

func TestReconcileLeavesTerminalQuotesAlone(t *testing.T) {
	fake := &fakeLedger{chain: "devnet", states: map[uint64]*ledger.OfferState{
		7: {OfferID: 7, Approved: true, Paid: true},
	}}
	svc, repo := newTestReconciler(t, fake)

	quote := &models.Quote{ID: "q1", Chain: "devnet", OfferID: offerID(7), Status: models.QuoteStatusRefunded}
	require.NoError(t, repo.Create(context.Background(), quote))

	changed, err := svc.ReconcileQuote(context.Background(), quote)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, models.QuoteStatusRefunded, quote.Status)
}

func TestReconcileSkipsUnknownOffers(t *testing.T) {
	fake := &fakeLedger{chain: "devnet", states: map[uint64]*ledger.OfferState{}}
	svc, repo := newTestReconciler(t, fake)

	quote := &models.Quote{ID: "q1", Chain: "devnet", OfferID: offerID(99), Status: models.QuoteStatusActive}
	require.NoError(t, repo.Create(context.Background(), quote))

	changed, err := svc.ReconcileQuote(context.Background(), quote)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, models.QuoteStatusActive, quote.Status)
}

func TestSweepContainsPerQuoteFailures(t *testing.T) {
	healthy := &fakeLedger{chain: "devnet", states: map[uint64]*ledger.OfferState{
		1: {OfferID: 1, Approved: true},
	}}
	broken := &fakeLedger{chain: "sepolia", err: errors.New("rpc down")}
	svc, repo := newTestReconciler(t, healthy, broken)

	require.NoError(t, repo.Create(context.Background(),
		&models.Quote{ID: "ok", Chain: "devnet", OfferID: offerID(1), Status: models.QuoteStatusActive}))
	require.NoError(t, repo.Create(context.Background(),
		&models.Quote{ID: "bad", Chain: "sepolia", OfferID: offerID(2), Status: models.QuoteStatusActive}))

	updated, failed, err := svc.SweepActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, updated)
	assert.Equal(t, 1, failed)

	ok, _ := repo.GetByID(context.Background(), "ok")
	assert.Equal(t, models.QuoteStatusApproved, ok.Status)
	bad, _ := repo.GetByID(context.Background(), "bad")
	assert.Equal(t, models.QuoteStatusActive, bad.Status)
}

func TestSweepStopsOnCancelledContext(t *testing.T) {
	fake := &fakeLedger{chain: "devnet", states: map[uint64]*ledger.OfferState{
		1: {OfferID: 1, Approved: true},
	}}
	svc, repo := newTestReconciler(t, fake)
	require.NoError(t, repo.Create(context.Background(),
		&models.Quote{ID: "q1", Chain: "devnet", OfferID: offerID(1), Status: models.QuoteStatusActive}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	updated, failed, err := svc.SweepActive(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, updated)
	assert.Zero(t, failed)

	got, _ := repo.GetByID(context.Background(), "q1")
	assert.Equal(t, models.QuoteStatusActive, got.Status)
}

func TestCheckHealth(t *testing.T) {
	healthy := &fakeLedger{chain: "devnet"}
	broken := &fakeLedger{chain: "sepolia", err: errors.New("rpc down")}
	svc, _ := newTestReconciler(t, healthy, broken)

	h := svc.CheckHealth(context.Background())
	assert.False(t, h.Healthy)
	assert.True(t, h.Ledgers["devnet"])
	assert.False(t, h.Ledgers["sepolia"])

	// One ledger fixed and a sweep completed -> healthy.
	broken.err = nil
	_, _, err := svc.SweepActive(context.Background())
	require.NoError(t, err)

	h = svc.CheckHealth(context.Background())
	assert.True(t, h.Healthy)
	assert.NotNil(t, h.LastSweep)
}

func TestQuoteStatusTransitions(t *testing.T) {
	assert.True(t, models.QuoteStatusActive.CanTransitionTo(models.QuoteStatusApproved))
	assert.True(t, models.QuoteStatusActive.CanTransitionTo(models.QuoteStatusExecuted))
	assert.True(t, models.QuoteStatusApproved.CanTransitionTo(models.QuoteStatusRefunded))
	assert.False(t, models.QuoteStatusExecuted.CanTransitionTo(models.QuoteStatusApproved))
	assert.False(t, models.QuoteStatusCancelled.CanTransitionTo(models.QuoteStatusExecuted))
	assert.False(t, models.QuoteStatusRefunded.CanTransitionTo(models.QuoteStatusActive))
}
