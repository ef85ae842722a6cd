package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Database metrics
	// ============================================
	DBConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "otc_db_connection_status",
		Help: "Database connection status (1=healthy, 0=unhealthy)",
	})

	DBConnectionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "otc_db_connection_active",
		Help: "Number of active database connections",
	})

	// ============================================
	// NATS metrics
	// ============================================
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "otc_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	NATSEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otc_nats_events_published_total",
			Help: "Total lifecycle events published to NATS",
		},
		[]string{"event"},
	)

	// ============================================
	// Offer lifecycle metrics
	// ============================================
	OffersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otc_offers_created_total",
		Help: "Total offers created",
	})

	OffersApproved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otc_offers_approved_total",
		Help: "Total offers approved",
	})

	OffersPaid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otc_offers_paid_total",
		Help: "Total offers paid",
	})

	OffersClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otc_offers_claimed_total",
		Help: "Total offers claimed",
	})

	OffersCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otc_offers_cancelled_total",
		Help: "Total offers cancelled",
	})

	OffersRefunded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otc_offers_refunded_total",
		Help: "Total offers emergency refunded",
	})

	OpenOffers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "otc_open_offers",
		Help: "Offers currently awaiting payment or claim",
	})

	ReservedTokens = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "otc_reserved_tokens",
		Help: "Tokens owed to paid, unsettled offers (base units)",
	})

	TreasuryTokens = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "otc_treasury_tokens",
		Help: "Token balance held by the desk treasury (base units)",
	})

	// ============================================
	// Oracle metrics
	// ============================================
	OraclePriceUsd8 = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "otc_oracle_price_usd8",
			Help: "Last observed oracle price in 8-decimal USD",
		},
		[]string{"asset"},
	)

	OracleStaleFeeds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otc_oracle_stale_feeds_total",
			Help: "Price reads rejected for staleness",
		},
		[]string{"asset"},
	)

	// ============================================
	// Reconciliation metrics
	// ============================================
	QuotesByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "otc_quotes_by_status",
			Help: "Quote records by lifecycle status",
		},
		[]string{"status"},
	)

	ReconcileSweeps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otc_reconcile_sweeps_total",
		Help: "Completed reconciliation sweeps",
	})

	ReconcileTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otc_reconcile_transitions_total",
			Help: "Quote status transitions applied by reconciliation",
		},
		[]string{"from", "to"},
	)

	ReconcileErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otc_reconcile_errors_total",
			Help: "Reconciliation failures by chain",
		},
		[]string{"chain"},
	)

	ReconcileLastSweep = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "otc_reconcile_last_sweep_timestamp",
		Help: "Unix timestamp of the last completed reconciliation sweep",
	})

	LedgerReachable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "otc_ledger_reachable",
			Help: "Ledger reachability (1=reachable, 0=unreachable)",
		},
		[]string{"chain"},
	)

	// ============================================
	// HTTP metrics
	// ============================================
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "otc_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
