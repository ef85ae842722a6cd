// Package oracle adapts external price feeds to the desk's 8-decimal USD
// fixed-point format. Staleness is surfaced, never hidden: the adapter does
// no retries and no caching beyond what the feed itself reports.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"otc-backend/internal/metrics"
)

var (
	ErrStaleFeed = errors.New("price feed is stale")
	ErrNoFeed    = errors.New("no feed configured for asset")
	ErrBadPrice  = errors.New("price out of sane bounds")
)

// PriceDecimals all feed prices are normalized to this fixed-point scale.
const PriceDecimals = 8

// Sanity bounds applied when a price is posted to a static feed.
// $0.000001 to $10,000,000 in 8-decimal USD.
var (
	minSanePrice = big.NewInt(100)
	maxSanePrice = new(big.Int).Mul(big.NewInt(10_000_000), big.NewInt(100_000_000))
)

// PriceFeed is the contract every feed source implements:
// getPrice(assetId) -> (price8d, timestamp).
type PriceFeed interface {
	GetPrice(ctx context.Context, assetID string) (price *big.Int, updatedAt time.Time, err error)
}

// Adapter wraps a set of feeds and enforces the freshness window.
type Adapter struct {
	feeds  map[string]PriceFeed
	maxAge time.Duration
	now    func() time.Time
}

// NewAdapter creates an adapter over per-asset feeds.
func NewAdapter(feeds map[string]PriceFeed, maxAge time.Duration) *Adapter {
	return &Adapter{
		feeds:  feeds,
		maxAge: maxAge,
		now:    time.Now,
	}
}

// SetClock overrides the adapter clock. Tests inject a fixed clock here.
func (a *Adapter) SetClock(now func() time.Time) { a.now = now }

// GetPrice returns the raw feed price without a freshness check.
func (a *Adapter) GetPrice(ctx context.Context, assetID string) (*big.Int, time.Time, error) {
	feed, ok := a.feeds[assetID]
	if !ok {
		return nil, time.Time{}, fmt.Errorf("%w: %s", ErrNoFeed, assetID)
	}
	return feed.GetPrice(ctx, assetID)
}

// FreshPrice returns the feed price, failing with ErrStaleFeed when the feed
// timestamp is older than the freshness window.
func (a *Adapter) FreshPrice(ctx context.Context, assetID string) (*big.Int, error) {
	price, updatedAt, err := a.GetPrice(ctx, assetID)
	if err != nil {
		return nil, err
	}

	age := a.now().Sub(updatedAt)
	if age > a.maxAge {
		metrics.OracleStaleFeeds.WithLabelValues(assetID).Inc()
		return nil, fmt.Errorf("%w: %s is %s old (max %s)", ErrStaleFeed, assetID, age.Truncate(time.Second), a.maxAge)
	}

	price8, _ := new(big.Float).SetInt(price).Float64()
	metrics.OraclePriceUsd8.WithLabelValues(assetID).Set(price8)
	return price, nil
}

// StaticFeed is an owner-posted price table. It backs deployments where the
// desk owner pushes prices on a schedule instead of reading an on-chain
// aggregator.
type StaticFeed struct {
	mu     sync.RWMutex
	prices map[string]staticPrice
}

type staticPrice struct {
	price     *big.Int
	updatedAt time.Time
}

// NewStaticFeed creates an empty owner-posted feed.
func NewStaticFeed() *StaticFeed {
	return &StaticFeed{prices: make(map[string]staticPrice)}
}

// SetPrice posts a price for an asset. Prices outside the sanity bounds are
// rejected before they can poison a quote.
func (f *StaticFeed) SetPrice(assetID string, price8d *big.Int, updatedAt time.Time) error {
	if price8d == nil || price8d.Cmp(minSanePrice) < 0 || price8d.Cmp(maxSanePrice) > 0 {
		return fmt.Errorf("%w: %s", ErrBadPrice, assetID)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[assetID] = staticPrice{price: new(big.Int).Set(price8d), updatedAt: updatedAt}
	return nil
}

// GetPrice implements PriceFeed.
func (f *StaticFeed) GetPrice(_ context.Context, assetID string) (*big.Int, time.Time, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	p, ok := f.prices[assetID]
	if !ok {
		return nil, time.Time{}, fmt.Errorf("%w: %s", ErrNoFeed, assetID)
	}
	return new(big.Int).Set(p.price), p.updatedAt, nil
}
