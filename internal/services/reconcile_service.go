package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"otc-backend/internal/clients"
	"otc-backend/internal/events"
	"otc-backend/internal/ledger"
	"otc-backend/internal/metrics"
	"otc-backend/internal/models"
	"otc-backend/internal/repository"
)

// ReconcileService converges quote records toward ledger truth. It reads the
// settlement flags of each quote's offer from the ledger that holds it and
// applies the resulting status. Convergence is one-way: the database is never
// treated as truth and a quote never moves backwards along the lifecycle.
type ReconcileService struct {
	quotes     repository.QuoteRepository
	ledgers    *ledger.Registry
	natsClient *clients.NATSClient

	sweepInterval time.Duration
	batchSize     int

	mu        sync.Mutex
	lastSweep time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup
	now      func() time.Time
}

// NewReconcileService creates a new ReconcileService instance.
func NewReconcileService(quotes repository.QuoteRepository, ledgers *ledger.Registry, natsClient *clients.NATSClient, sweepInterval time.Duration, batchSize int) *ReconcileService {
	if sweepInterval <= 0 {
		sweepInterval = 3 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ReconcileService{
		quotes:        quotes,
		ledgers:       ledgers,
		natsClient:    natsClient,
		sweepInterval: sweepInterval,
		batchSize:     batchSize,
		stopChan:      make(chan struct{}),
		now:           time.Now,
	}
}

// Start begins the periodic sweep loop.
func (s *ReconcileService) Start() {
	log.Println("🚀 Reconcile service starting...")
	log.Printf("📅 Reconcile sweep interval: %v", s.sweepInterval)

	s.wg.Add(1)
	go s.runSweepLoop()

	log.Println("✅ Reconcile service started")
}

// Stop gracefully stops the sweep loop.
func (s *ReconcileService) Stop() {
	log.Println("🛑 Stopping reconcile service...")
	close(s.stopChan)
	s.wg.Wait()
	log.Println("✅ Reconcile service stopped")
}

func (s *ReconcileService) runSweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	// First sweep immediately, then on the ticker.
	s.sweepOnce()
	for {
		select {
		case <-ticker.C:
			s.sweepOnce()
		case <-s.stopChan:
			return
		}
	}
}

func (s *ReconcileService) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.sweepInterval)
	defer cancel()

	updated, failed, err := s.SweepActive(ctx)
	if err != nil {
		logrus.WithError(err).Error("reconcile sweep failed")
		return
	}
	if updated > 0 || failed > 0 {
		logrus.WithFields(logrus.Fields{"updated": updated, "failed": failed}).Info("reconcile sweep completed")
	}
}

// SweepActive reconciles all non-terminal quotes in one pass. A failure on
// one quote is contained: it is counted, logged, and the sweep moves on.
func (s *ReconcileService) SweepActive(ctx context.Context) (updated, failed int, err error) {
	active, err := s.quotes.FindActive(ctx, s.batchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load active quotes: %w", err)
	}

	for _, quote := range active {
		if err := ctx.Err(); err != nil {
			return updated, failed, err
		}
		changed, rerr := s.ReconcileQuote(ctx, quote)
		if rerr != nil {
			failed++
			metrics.ReconcileErrors.WithLabelValues(quote.Chain).Inc()
			logrus.WithError(rerr).WithFields(logrus.Fields{
				"quote": quote.ID,
				"chain": quote.Chain,
			}).Warn("failed to reconcile quote")
			continue
		}
		if changed {
			updated++
		}
	}

	s.mu.Lock()
	s.lastSweep = s.now()
	s.mu.Unlock()

	metrics.ReconcileSweeps.Inc()
	metrics.ReconcileLastSweep.Set(float64(s.now().Unix()))
	s.updateStatusGauges(ctx)
	return updated, failed, nil
}

// ReconcileQuote reads the quote's offer from its ledger and applies the
// mapped status. Returns whether the record changed. Re-running against an
// unchanged ledger is a no-op.
func (s *ReconcileService) ReconcileQuote(ctx context.Context, quote *models.Quote) (bool, error) {
	if quote.Status.Terminal() {
		return false, nil
	}
	if quote.OfferID == nil {
		// Not yet bound to a ledger offer; nothing to converge against.
		return false, nil
	}

	reader, err := s.ledgers.Reader(quote.Chain)
	if err != nil {
		return false, err
	}

	state, err := reader.GetOfferState(ctx, *quote.OfferID)
	if err != nil {
		if errors.Is(err, ledger.ErrOfferUnknown) {
			// The ledger has no such offer. Leave the record alone; the
			// offer may simply not be indexed yet.
			return false, nil
		}
		return false, err
	}

	target := StatusFromLedger(state)
	if target == quote.Status || !quote.Status.CanTransitionTo(target) {
		return false, s.refreshProvenance(ctx, quote, state)
	}

	old := quote.Status
	quote.Status = target
	if state.TxHash != "" {
		quote.TxHash = state.TxHash
	}
	if state.BlockNumber > 0 {
		quote.BlockNumber = state.BlockNumber
	}
	if state.AmountPaid != nil && state.AmountPaid.Sign() > 0 {
		quote.AmountPaid = state.AmountPaid.String()
	}
	now := s.now().UTC()
	quote.ReconciledAt = &now

	if err := s.quotes.Update(ctx, quote); err != nil {
		return false, fmt.Errorf("failed to persist reconciled quote: %w", err)
	}

	metrics.ReconcileTransitions.WithLabelValues(string(old), string(target)).Inc()
	logrus.WithFields(logrus.Fields{
		"quote": quote.ID,
		"offer": *quote.OfferID,
		"chain": quote.Chain,
		"from":  old,
		"to":    target,
	}).Info("quote reconciled")

	if s.natsClient != nil {
		event := &events.QuoteEvent{
			Chain:     quote.Chain,
			QuoteID:   quote.ID,
			OfferID:   quote.OfferID,
			OldStatus: string(old),
			NewStatus: string(target),
			TxHash:    quote.TxHash,
			Timestamp: now,
		}
		if err := s.natsClient.PublishQuoteEvent(event); err != nil {
			logrus.WithError(err).WithField("quote", quote.ID).Warn("failed to publish quote event")
		}
	}
	return true, nil
}

// refreshProvenance records provenance from a read that did not change the
// status, so operators can see when a quote was last checked.
func (s *ReconcileService) refreshProvenance(ctx context.Context, quote *models.Quote, state *ledger.OfferState) error {
	now := s.now().UTC()
	quote.ReconciledAt = &now
	if state.TxHash != "" && quote.TxHash == "" {
		quote.TxHash = state.TxHash
	}
	return s.quotes.Update(ctx, quote)
}

// StatusFromLedger maps the five settlement flags to a quote status.
// Terminal flags win over progress flags.
func StatusFromLedger(state *ledger.OfferState) models.QuoteStatus {
	switch {
	case state.EmergencyRefunded:
		return models.QuoteStatusRefunded
	case state.Cancelled:
		return models.QuoteStatusCancelled
	case state.Paid:
		return models.QuoteStatusExecuted
	case state.Approved:
		return models.QuoteStatusApproved
	default:
		return models.QuoteStatusActive
	}
}

// Health reports per-ledger reachability and the age of the last sweep.
type Health struct {
	Healthy      bool            `json:"healthy"`
	Ledgers      map[string]bool `json:"ledgers"`
	LastSweep    *time.Time      `json:"lastSweep,omitempty"`
	LastSweepAge string          `json:"lastSweepAge,omitempty"`
}

// CheckHealth pings every registered ledger and reports sweep freshness. The
// service is healthy when all ledgers answer and a sweep completed within two
// intervals.
func (s *ReconcileService) CheckHealth(ctx context.Context) *Health {
	h := &Health{Healthy: true, Ledgers: make(map[string]bool)}

	for _, chain := range s.ledgers.Chains() {
		reader, err := s.ledgers.Reader(chain)
		reachable := err == nil && reader.Ping(ctx) == nil
		h.Ledgers[chain] = reachable
		if reachable {
			metrics.LedgerReachable.WithLabelValues(chain).Set(1)
		} else {
			metrics.LedgerReachable.WithLabelValues(chain).Set(0)
			h.Healthy = false
		}
	}

	s.mu.Lock()
	last := s.lastSweep
	s.mu.Unlock()

	if !last.IsZero() {
		h.LastSweep = &last
		age := s.now().Sub(last)
		h.LastSweepAge = age.Round(time.Second).String()
		if age > 2*s.sweepInterval {
			h.Healthy = false
		}
	} else {
		h.Healthy = false
	}
	return h
}

func (s *ReconcileService) updateStatusGauges(ctx context.Context) {
	counts, err := s.quotes.CountByStatus(ctx)
	if err != nil {
		return
	}
	for _, status := range []models.QuoteStatus{
		models.QuoteStatusActive,
		models.QuoteStatusApproved,
		models.QuoteStatusExecuted,
		models.QuoteStatusCancelled,
		models.QuoteStatusRefunded,
	} {
		metrics.QuotesByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
