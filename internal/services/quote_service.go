package services

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"otc-backend/internal/clients"
	"otc-backend/internal/config"
	"otc-backend/internal/desk"
	"otc-backend/internal/events"
	"otc-backend/internal/metrics"
	"otc-backend/internal/models"
	"otc-backend/internal/pricing"
	"otc-backend/internal/repository"
)

// QuoteService fronts the desk: it drives offers through the settlement
// engine and keeps one quote record per offer in the database. Status writes
// here are projections of transitions the desk has already committed; ledger
// truth stays authoritative through the reconciliation sweep, which converges
// any record this projection missed.
type QuoteService struct {
	desk       *desk.Desk
	quotes     repository.QuoteRepository
	natsClient *clients.NATSClient
	chain      string
	cfg        *config.DeskConfig
}

// NewQuoteService creates a new QuoteService instance.
func NewQuoteService(d *desk.Desk, quotes repository.QuoteRepository, natsClient *clients.NATSClient, chain string, cfg *config.DeskConfig) *QuoteService {
	return &QuoteService{
		desk:       d,
		quotes:     quotes,
		natsClient: natsClient,
		chain:      chain,
		cfg:        cfg,
	}
}

// CreateQuoteRequest carries the counterparty's order.
type CreateQuoteRequest struct {
	EntityID      string `json:"entityId" binding:"required"`
	Beneficiary   string `json:"beneficiary" binding:"required"`
	TokenAmount   string `json:"tokenAmount" binding:"required"`
	DiscountBps   uint16 `json:"discountBps"`
	Currency      string `json:"currency" binding:"required"`
	LockupSeconds int64  `json:"lockupSeconds"`
}

// CreateQuote runs the order through the desk and persists the quote record.
func (s *QuoteService) CreateQuote(ctx context.Context, req *CreateQuoteRequest) (*models.Quote, error) {
	tokenAmount, ok := new(big.Int).SetString(req.TokenAmount, 10)
	if !ok || tokenAmount.Sign() <= 0 {
		return nil, fmt.Errorf("invalid token amount %q", req.TokenAmount)
	}

	var currency pricing.Currency
	switch req.Currency {
	case "stable":
		currency = pricing.CurrencyStable
	case "native":
		currency = pricing.CurrencyNative
	default:
		return nil, fmt.Errorf("unsupported currency %q", req.Currency)
	}

	offerID, err := s.desk.CreateOffer(ctx, req.Beneficiary, tokenAmount, req.DiscountBps, currency, req.LockupSeconds)
	if err != nil {
		return nil, err
	}
	metrics.OffersCreated.Inc()

	offer, err := s.desk.GetOffer(offerID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	quote := &models.Quote{
		ID:             uuid.New().String(),
		EntityID:       req.EntityID,
		Beneficiary:    req.Beneficiary,
		Chain:          s.chain,
		OfferID:        &offerID,
		Status:         models.QuoteStatusActive,
		TokenAmount:    tokenAmount.String(),
		DiscountBps:    req.DiscountBps,
		Currency:       currency.String(),
		QuotePriceUsd8: offer.QuotePriceUsd8.String(),
		LockupSeconds:  req.LockupSeconds,
		ExpiresAt:      now.Add(time.Duration(s.cfg.QuoteExpirySeconds) * time.Second),
	}
	if err := s.quotes.Create(ctx, quote); err != nil {
		return nil, fmt.Errorf("failed to persist quote: %w", err)
	}

	s.publishOfferEvent(events.SubjectOfferCreated, "created", offer)
	return quote, nil
}

// ApproveQuote approves the underlying offer and advances the quote record.
func (s *QuoteService) ApproveQuote(ctx context.Context, quoteID, approver string) (*models.Quote, error) {
	quote, err := s.quotes.GetByID(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote.OfferID == nil {
		return nil, fmt.Errorf("quote %s has no offer bound", quoteID)
	}

	if err := s.desk.ApproveOffer(ctx, *quote.OfferID, approver); err != nil {
		return nil, err
	}
	metrics.OffersApproved.Inc()

	required, err := s.desk.RequiredPayment(*quote.OfferID)
	if err == nil {
		quote.RequiredPayment = required.String()
	}
	quote.Status = models.QuoteStatusApproved
	if err := s.quotes.Update(ctx, quote); err != nil {
		return nil, fmt.Errorf("failed to update quote: %w", err)
	}

	if offer, err := s.desk.GetOffer(*quote.OfferID); err == nil {
		s.publishOfferEvent(events.SubjectOfferApproved, "approved", offer)
	}
	return quote, nil
}

// FulfillQuote records payment for the quote's offer.
func (s *QuoteService) FulfillQuote(ctx context.Context, quoteID, payer, amountSent string) (*models.Quote, error) {
	quote, err := s.quotes.GetByID(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote.OfferID == nil {
		return nil, fmt.Errorf("quote %s has no offer bound", quoteID)
	}
	amount, ok := new(big.Int).SetString(amountSent, 10)
	if !ok {
		return nil, fmt.Errorf("invalid payment amount %q", amountSent)
	}

	paid, err := s.desk.FulfillOffer(ctx, *quote.OfferID, payer, amount)
	if err != nil {
		return nil, err
	}
	metrics.OffersPaid.Inc()

	quote.Status = models.QuoteStatusExecuted
	quote.AmountPaid = paid.String()
	if err := s.quotes.Update(ctx, quote); err != nil {
		return nil, fmt.Errorf("failed to update quote: %w", err)
	}

	if offer, err := s.desk.GetOffer(*quote.OfferID); err == nil {
		s.publishOfferEvent(events.SubjectOfferPaid, "paid", offer)
	}
	return quote, nil
}

// ClaimQuote releases tokens for the quote's offer after lockup.
func (s *QuoteService) ClaimQuote(ctx context.Context, quoteID string) (*models.Quote, error) {
	quote, err := s.quotes.GetByID(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote.OfferID == nil {
		return nil, fmt.Errorf("quote %s has no offer bound", quoteID)
	}

	if err := s.desk.Claim(*quote.OfferID); err != nil {
		return nil, err
	}
	metrics.OffersClaimed.Inc()

	if offer, err := s.desk.GetOffer(*quote.OfferID); err == nil {
		s.publishOfferEvent(events.SubjectOfferClaimed, "claimed", offer)
	}
	return quote, nil
}

// CancelQuote cancels the quote's unpaid offer.
func (s *QuoteService) CancelQuote(ctx context.Context, quoteID, caller string) (*models.Quote, error) {
	quote, err := s.quotes.GetByID(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote.OfferID == nil {
		return nil, fmt.Errorf("quote %s has no offer bound", quoteID)
	}

	if err := s.desk.CancelOffer(*quote.OfferID, caller); err != nil {
		return nil, err
	}
	metrics.OffersCancelled.Inc()

	quote.Status = models.QuoteStatusCancelled
	if err := s.quotes.Update(ctx, quote); err != nil {
		return nil, fmt.Errorf("failed to update quote: %w", err)
	}

	if offer, err := s.desk.GetOffer(*quote.OfferID); err == nil {
		s.publishOfferEvent(events.SubjectOfferClosed, "cancelled", offer)
	}
	return quote, nil
}

// RefundQuote triggers an emergency refund of a paid offer.
func (s *QuoteService) RefundQuote(ctx context.Context, quoteID, caller string) (*models.Quote, error) {
	quote, err := s.quotes.GetByID(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote.OfferID == nil {
		return nil, fmt.Errorf("quote %s has no offer bound", quoteID)
	}

	if err := s.desk.EmergencyRefund(*quote.OfferID, caller); err != nil {
		return nil, err
	}
	metrics.OffersRefunded.Inc()

	quote.Status = models.QuoteStatusRefunded
	if err := s.quotes.Update(ctx, quote); err != nil {
		return nil, fmt.Errorf("failed to update quote: %w", err)
	}

	if offer, err := s.desk.GetOffer(*quote.OfferID); err == nil {
		s.publishOfferEvent(events.SubjectOfferClosed, "refunded", offer)
	}
	return quote, nil
}

// GetQuote returns the quote record.
func (s *QuoteService) GetQuote(ctx context.Context, quoteID string) (*models.Quote, error) {
	return s.quotes.GetByID(ctx, quoteID)
}

// ListQuotesByEntity returns all quotes for a counterparty.
func (s *QuoteService) ListQuotesByEntity(ctx context.Context, entityID string) ([]*models.Quote, error) {
	return s.quotes.FindByEntity(ctx, entityID)
}

// RequiredPayment returns the payment due for a quote's approved offer.
func (s *QuoteService) RequiredPayment(ctx context.Context, quoteID string) (*big.Int, error) {
	quote, err := s.quotes.GetByID(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote.OfferID == nil {
		return nil, fmt.Errorf("quote %s has no offer bound", quoteID)
	}
	return s.desk.RequiredPayment(*quote.OfferID)
}

// AutoClaim sweeps the desk's claimable offers in one bounded batch.
func (s *QuoteService) AutoClaim(ids []uint64) ([]desk.ClaimResult, error) {
	results, err := s.desk.AutoClaim(ids)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		if r.Outcome == desk.ClaimOutcomeFulfilled {
			metrics.OffersClaimed.Inc()
		}
	}
	return results, nil
}

// OpenOfferIDs exposes the desk's bounded open-offer index.
func (s *QuoteService) OpenOfferIDs() []uint64 {
	return s.desk.OpenOfferIDs()
}

func (s *QuoteService) publishOfferEvent(subjectFmt, name string, offer *desk.Offer) {
	if s.natsClient == nil {
		return
	}
	event := &events.OfferEvent{
		Chain:       s.chain,
		OfferID:     offer.ID,
		Event:       name,
		Beneficiary: offer.Beneficiary,
		TokenAmount: offer.TokenAmount.String(),
		Currency:    offer.Currency.String(),
		Timestamp:   time.Now().UTC(),
	}
	if offer.AmountPaid != nil {
		event.AmountPaid = offer.AmountPaid.String()
	}
	if err := s.natsClient.PublishOfferEvent(subjectFmt, event); err != nil {
		logrus.WithError(err).WithField("offer", offer.ID).Warn("failed to publish offer event")
	}
}
