// Scheduler Service
// Manages periodic tasks: expired-quote cleanup and auto-claim sweeps.
package services

import (
	"context"
	"log"
	"time"

	"github.com/sirupsen/logrus"

	"otc-backend/internal/desk"
	"otc-backend/internal/models"
	"otc-backend/internal/repository"
)

// SchedulerService manages periodic background tasks
type SchedulerService struct {
	quotes       repository.QuoteRepository
	quoteService *QuoteService

	expiryInterval    time.Duration
	autoClaimInterval time.Duration
	maxBatch          int

	stopChan chan struct{}
}

// NewSchedulerService creates a new SchedulerService instance
func NewSchedulerService(quotes repository.QuoteRepository, quoteService *QuoteService, expiryInterval, autoClaimInterval time.Duration, maxBatch int) *SchedulerService {
	if expiryInterval <= 0 {
		expiryInterval = 5 * time.Minute
	}
	if autoClaimInterval <= 0 {
		autoClaimInterval = time.Minute
	}
	if maxBatch <= 0 {
		maxBatch = 50
	}
	return &SchedulerService{
		quotes:            quotes,
		quoteService:      quoteService,
		expiryInterval:    expiryInterval,
		autoClaimInterval: autoClaimInterval,
		maxBatch:          maxBatch,
		stopChan:          make(chan struct{}),
	}
}

// Start begins all scheduled tasks
func (s *SchedulerService) Start() {
	log.Println("🚀 Scheduler service starting...")
	log.Printf("📅 Expired-quote check interval: %v", s.expiryInterval)
	log.Printf("📅 Auto-claim interval: %v", s.autoClaimInterval)

	go s.runExpirySweep()
	go s.runAutoClaim()

	log.Println("✅ Scheduler service started")
}

// Stop gracefully stops all scheduled tasks
func (s *SchedulerService) Stop() {
	log.Println("🛑 Stopping scheduler service...")
	close(s.stopChan)
	log.Println("✅ Scheduler service stopped")
}

// runExpirySweep cancels quotes whose offers expired before approval.
func (s *SchedulerService) runExpirySweep() {
	ticker := time.NewTicker(s.expiryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepExpired()
		case <-s.stopChan:
			return
		}
	}
}

func (s *SchedulerService) sweepExpired() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	expired, err := s.quotes.FindExpired(ctx, time.Now().UTC(), s.maxBatch)
	if err != nil {
		logrus.WithError(err).Error("failed to load expired quotes")
		return
	}
	for _, quote := range expired {
		// Off-chain expiry: the desk refuses payment past the quote window, so
		// the ledger can never contradict this cancel.
		quote.Status = models.QuoteStatusCancelled
		if err := s.quotes.Update(ctx, quote); err != nil {
			logrus.WithError(err).WithField("quote", quote.ID).Warn("failed to cancel expired quote")
			continue
		}
		logrus.WithField("quote", quote.ID).Info("expired quote cancelled")
	}
}

// runAutoClaim periodically sweeps claimable offers from the open index.
func (s *SchedulerService) runAutoClaim() {
	ticker := time.NewTicker(s.autoClaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepClaims()
		case <-s.stopChan:
			return
		}
	}
}

func (s *SchedulerService) sweepClaims() {
	ids := s.quoteService.OpenOfferIDs()
	if len(ids) == 0 {
		return
	}
	if len(ids) > s.maxBatch {
		ids = ids[:s.maxBatch]
	}

	results, err := s.quoteService.AutoClaim(ids)
	if err != nil {
		logrus.WithError(err).Error("auto-claim sweep failed")
		return
	}
	fulfilled := 0
	for _, r := range results {
		if r.Outcome == desk.ClaimOutcomeFulfilled {
			fulfilled++
		}
	}
	if fulfilled > 0 {
		logrus.WithFields(logrus.Fields{"swept": len(ids), "fulfilled": fulfilled}).Info("auto-claim sweep completed")
	}
}
