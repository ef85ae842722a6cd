package app

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"gorm.io/gorm"

	"otc-backend/internal/clients"
	"otc-backend/internal/config"
	"otc-backend/internal/db"
	"otc-backend/internal/desk"
	"otc-backend/internal/ledger"
	"otc-backend/internal/oracle"
	"otc-backend/internal/pricing"
	"otc-backend/internal/repository"
	"otc-backend/internal/services"
)

// ServiceContainer wires the desk, the ledgers and the services together.
type ServiceContainer struct {
	DB *gorm.DB

	// Repositories
	QuoteRepo repository.QuoteRepository

	// Core engine
	Oracle *oracle.Adapter
	Vault  *desk.MemoryVault
	Desk   *desk.Desk

	// Ledgers
	Ledgers *ledger.Registry

	// Messaging
	NATSClient *clients.NATSClient

	// Services
	QuoteService      *services.QuoteService
	ReconcileService  *services.ReconcileService
	SchedulerService  *services.SchedulerService
	MonitoringService *services.MonitoringService
}

// Global service container instance
var Container *ServiceContainer
var containerOnce sync.Once

// InitializeContainer builds the container once. config and the database
// must already be initialized.
func InitializeContainer() (*ServiceContainer, error) {
	var initErr error

	containerOnce.Do(func() {
		log.Println("🚀 Initializing Service Container...")
		cfg := config.AppConfig

		container := &ServiceContainer{
			DB:      db.DB,
			Ledgers: ledger.NewRegistry(),
		}
		container.QuoteRepo = repository.NewQuoteRepository(container.DB)

		if err := container.initOracle(cfg); err != nil {
			initErr = fmt.Errorf("failed to initialize oracle: %w", err)
			return
		}
		container.initDesk(cfg)
		if err := container.initLedgers(cfg); err != nil {
			initErr = fmt.Errorf("failed to initialize ledgers: %w", err)
			return
		}

		// NATS is optional: lifecycle events are best-effort.
		if cfg.NATS.URL != "" {
			natsClient, err := clients.NewNATSClient(cfg.NATS.URL, time.Duration(cfg.NATS.Timeout)*time.Second)
			if err != nil {
				log.Printf("⚠️ NATS unavailable, lifecycle events disabled: %v", err)
			} else {
				container.NATSClient = natsClient
			}
		}

		container.initServices(cfg)

		Container = container
		log.Println("✅ Service Container initialized successfully")
	})

	return Container, initErr
}

func (c *ServiceContainer) initOracle(cfg *config.Config) error {
	log.Println("📦 Initializing price oracle...")

	maxAge := time.Duration(cfg.Oracle.MaxPriceAgeSeconds) * time.Second
	feeds := make(map[string]oracle.PriceFeed)

	staticFeed := oracle.NewStaticFeed()
	for assetID, feedCfg := range cfg.Oracle.Feeds {
		switch feedCfg.Source {
		case "chainlink":
			rpcCfg, err := config.GetLedgerConfig(feedCfg.RPCChain)
			if err != nil {
				return fmt.Errorf("feed %s references unknown chain %s: %w", assetID, feedCfg.RPCChain, err)
			}
			if len(rpcCfg.RPCEndpoints) == 0 {
				return fmt.Errorf("feed %s: chain %s has no RPC endpoints", assetID, feedCfg.RPCChain)
			}
			chainlinkFeed, err := oracle.NewChainlinkFeed(context.Background(), rpcCfg.RPCEndpoints[0],
				map[string]string{assetID: feedCfg.Aggregator})
			if err != nil {
				return fmt.Errorf("failed to build chainlink feed for %s: %w", assetID, err)
			}
			feeds[assetID] = chainlinkFeed
		case "static":
			price, ok := new(big.Int).SetString(feedCfg.Price8d, 10)
			if !ok {
				return fmt.Errorf("invalid static price %q for feed %s", feedCfg.Price8d, assetID)
			}
			if err := staticFeed.SetPrice(assetID, price, time.Now()); err != nil {
				return fmt.Errorf("invalid static price for feed %s: %w", assetID, err)
			}
			feeds[assetID] = staticFeed
		default:
			return fmt.Errorf("unknown feed source %q for %s", feedCfg.Source, assetID)
		}
	}

	c.Oracle = oracle.NewAdapter(feeds, maxAge)
	return nil
}

func (c *ServiceContainer) initDesk(cfg *config.Config) {
	log.Println("📦 Initializing settlement desk...")

	minUsd, _ := new(big.Int).SetString(cfg.Desk.MinUsdAmount8d, 10)
	minToken, _ := new(big.Int).SetString(cfg.Desk.MinTokenPerOrder, 10)
	maxToken, _ := new(big.Int).SetString(cfg.Desk.MaxTokenPerOrder, 10)

	c.Vault = desk.NewMemoryVault()
	c.Desk = desk.New(cfg.Desk.Owner, desk.Config{
		Decimals: pricing.Decimals{
			Token:  cfg.Desk.TokenDecimals,
			Stable: cfg.Desk.StableDecimals,
			Native: cfg.Desk.NativeDecimals,
		},
		Limits: pricing.Limits{
			MinUsd8:  minUsd,
			MinToken: minToken,
			MaxToken: maxToken,
		},
		TokenAssetID:          cfg.Desk.TokenAssetID,
		NativeAssetID:         cfg.Desk.NativeAssetID,
		QuoteExpiry:           time.Duration(cfg.Desk.QuoteExpirySeconds) * time.Second,
		MaxLockup:             time.Duration(cfg.Desk.MaxLockupSeconds) * time.Second,
		DeviationBps:          cfg.Oracle.DeviationBps,
		MaxOpenOffersReturned: cfg.Desk.MaxOpenOffersReturned,
		MaxAutoClaimBatch:     cfg.Desk.MaxAutoClaimBatch,
	}, c.Oracle, c.Vault)

	for _, approver := range cfg.Desk.Approvers {
		if err := c.Desk.SetApprover(cfg.Desk.Owner, approver, true); err != nil {
			log.Printf("⚠️ Failed to register approver %s: %v", approver, err)
		}
	}
}

func (c *ServiceContainer) initLedgers(cfg *config.Config) error {
	log.Println("📦 Initializing ledger readers...")

	for name, lc := range cfg.Ledgers.Chains {
		if !lc.Enabled {
			continue
		}
		switch lc.Kind {
		case "evm":
			reader, err := ledger.NewEVMLedger(context.Background(), name, lc.DeskContract, lc.RPCEndpoints)
			if err != nil {
				return fmt.Errorf("chain %s: %w", name, err)
			}
			c.Ledgers.Register(reader)
		case "account":
			c.Ledgers.Register(ledger.NewAccountLedger(name, lc.IndexerURL, time.Duration(lc.Timeout)*time.Second))
		case "embedded":
			c.Ledgers.Register(ledger.NewEmbeddedLedger(name, c.Desk))
		default:
			return fmt.Errorf("chain %s: unknown ledger kind %q", name, lc.Kind)
		}
		log.Printf("✅ Ledger %s (%s) registered", name, lc.Kind)
	}
	return nil
}

func (c *ServiceContainer) initServices(cfg *config.Config) {
	log.Println("📦 Initializing services...")

	chain := cfg.Reconcile.PrimaryChain
	if chain == "" {
		chain = "local"
	}

	c.QuoteService = services.NewQuoteService(c.Desk, c.QuoteRepo, c.NATSClient, chain, &cfg.Desk)
	c.ReconcileService = services.NewReconcileService(c.QuoteRepo, c.Ledgers, c.NATSClient,
		time.Duration(cfg.Reconcile.SweepIntervalSeconds)*time.Second, cfg.Reconcile.BatchSize)
	c.SchedulerService = services.NewSchedulerService(c.QuoteRepo, c.QuoteService,
		5*time.Minute, time.Minute, cfg.Desk.MaxAutoClaimBatch)
	c.MonitoringService = services.NewMonitoringService(c.DB, c.Desk)
}

// StartBackgroundServices launches the sweep, scheduler and monitoring loops.
func (c *ServiceContainer) StartBackgroundServices() {
	c.ReconcileService.Start()
	c.SchedulerService.Start()
	c.MonitoringService.Start()
}

// Shutdown stops background services and releases connections.
func (c *ServiceContainer) Shutdown() {
	c.SchedulerService.Stop()
	c.ReconcileService.Stop()
	c.MonitoringService.Stop()
	if c.NATSClient != nil {
		c.NATSClient.Close()
	}
}
