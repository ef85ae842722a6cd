package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"otc-backend/internal/models"
)

// ErrQuoteNotFound is returned when no quote matches the lookup.
var ErrQuoteNotFound = errors.New("quote not found")

// QuoteRepository defines the interface for quote data access
type QuoteRepository interface {
	Create(ctx context.Context, quote *models.Quote) error
	GetByID(ctx context.Context, id string) (*models.Quote, error)
	GetByOffer(ctx context.Context, chain string, offerID uint64) (*models.Quote, error)
	Update(ctx context.Context, quote *models.Quote) error
	UpdateStatus(ctx context.Context, id string, status models.QuoteStatus, reconciledAt time.Time) error

	FindByEntity(ctx context.Context, entityID string) ([]*models.Quote, error)
	FindActive(ctx context.Context, limit int) ([]*models.Quote, error)
	FindExpired(ctx context.Context, before time.Time, limit int) ([]*models.Quote, error)
	CountByStatus(ctx context.Context) (map[models.QuoteStatus]int64, error)
}

type quoteRepository struct {
	db *gorm.DB
}

// NewQuoteRepository creates a new QuoteRepository instance
func NewQuoteRepository(db *gorm.DB) QuoteRepository {
	return &quoteRepository{db: db}
}

func (r *quoteRepository) Create(ctx context.Context, quote *models.Quote) error {
	return r.db.WithContext(ctx).Create(quote).Error
}

func (r *quoteRepository) GetByID(ctx context.Context, id string) (*models.Quote, error) {
	var quote models.Quote
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&quote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrQuoteNotFound
	}
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

func (r *quoteRepository) GetByOffer(ctx context.Context, chain string, offerID uint64) (*models.Quote, error) {
	var quote models.Quote
	err := r.db.WithContext(ctx).Where("chain = ? AND offer_id = ?", chain, offerID).First(&quote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrQuoteNotFound
	}
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

func (r *quoteRepository) Update(ctx context.Context, quote *models.Quote) error {
	return r.db.WithContext(ctx).Save(quote).Error
}

// UpdateStatus writes the status and reconciliation timestamp in one update.
func (r *quoteRepository) UpdateStatus(ctx context.Context, id string, status models.QuoteStatus, reconciledAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.Quote{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        status,
			"reconciled_at": reconciledAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrQuoteNotFound
	}
	return nil
}

func (r *quoteRepository) FindByEntity(ctx context.Context, entityID string) ([]*models.Quote, error) {
	var quotes []*models.Quote
	err := r.db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		Order("created_at DESC").
		Find(&quotes).Error
	return quotes, err
}

// FindActive returns quotes still moving through the lifecycle, oldest first,
// so reconciliation sweeps make progress even under a small limit. Executed
// quotes stay in the set: a paid offer can still be emergency-refunded on its
// ledger.
func (r *quoteRepository) FindActive(ctx context.Context, limit int) ([]*models.Quote, error) {
	var quotes []*models.Quote
	err := r.db.WithContext(ctx).
		Where("status IN ?", []models.QuoteStatus{models.QuoteStatusActive, models.QuoteStatusApproved, models.QuoteStatusExecuted}).
		Order("updated_at ASC").
		Limit(limit).
		Find(&quotes).Error
	return quotes, err
}

func (r *quoteRepository) FindExpired(ctx context.Context, before time.Time, limit int) ([]*models.Quote, error) {
	var quotes []*models.Quote
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", models.QuoteStatusActive, before).
		Order("expires_at ASC").
		Limit(limit).
		Find(&quotes).Error
	return quotes, err
}

func (r *quoteRepository) CountByStatus(ctx context.Context) (map[models.QuoteStatus]int64, error) {
	type row struct {
		Status models.QuoteStatus
		Count  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&models.Quote{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[models.QuoteStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}
