package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	NATS      NATSConfig      `yaml:"nats"`
	Ledgers   LedgersConfig   `yaml:"ledgers"`
	Oracle    OracleConfig    `yaml:"oracle"`
	Desk      DeskConfig      `yaml:"desk"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	CORS      CORSConfig      `yaml:"cors"`
	Admin     AdminConfig     `yaml:"admin"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"`
}

// NATSConfig message server configuration
type NATSConfig struct {
	URL           string `yaml:"url"`
	Timeout       int    `yaml:"timeout"`
	ReconnectWait int    `yaml:"reconnect_wait"`
	MaxReconnects int    `yaml:"max_reconnects"`
}

// LedgersConfig configuration of the on-chain desks the quote store is
// reconciled against. Each entry is keyed by the chain name recorded on a Quote.
type LedgersConfig struct {
	Chains map[string]LedgerConfig `yaml:"chains"`
}

// LedgerConfig a single ledger endpoint
type LedgerConfig struct {
	Kind         string   `yaml:"kind"` // "evm" | "account" | "embedded"
	ChainID      int      `yaml:"chainId"`
	RPCEndpoints []string `yaml:"rpcEndpoints"`
	DeskContract string   `yaml:"deskContract"` // EVM desk contract address
	IndexerURL   string   `yaml:"indexerUrl"`   // account-model indexer base URL
	Timeout      int      `yaml:"timeout"`      // request timeout (seconds)
	Enabled      bool     `yaml:"enabled"`
}

// OracleConfig price feed configuration
type OracleConfig struct {
	MaxPriceAgeSeconds int64                 `yaml:"maxPriceAgeSeconds"`
	DeviationBps       uint32                `yaml:"deviationBps"`
	Feeds              map[string]FeedConfig `yaml:"feeds"` // assetID -> feed
}

// FeedConfig a single price feed source
type FeedConfig struct {
	Source     string `yaml:"source"`     // "chainlink" | "static"
	Aggregator string `yaml:"aggregator"` // chainlink aggregator address
	RPCChain   string `yaml:"rpcChain"`   // ledger entry whose RPC serves the aggregator
	Price8d    string `yaml:"price8d"`    // static price, 8-decimal USD
}

// DeskConfig desk limits and decimals. These are the owner-mutable policy
// inputs; the desk snapshots them at construction and admin setters update them.
type DeskConfig struct {
	TokenDecimals  uint8 `yaml:"tokenDecimals"`
	StableDecimals uint8 `yaml:"stableDecimals"`
	NativeDecimals uint8 `yaml:"nativeDecimals"`

	MinUsdAmount8d   string `yaml:"minUsdAmount8d"`
	MinTokenPerOrder string `yaml:"minTokenPerOrder"`
	MaxTokenPerOrder string `yaml:"maxTokenPerOrder"`

	QuoteExpirySeconds int64 `yaml:"quoteExpirySeconds"`
	MaxLockupSeconds   int64 `yaml:"maxLockupSeconds"`

	MaxOpenOffersReturned int `yaml:"maxOpenOffersReturned"`
	MaxAutoClaimBatch     int `yaml:"maxAutoClaimBatch"`

	TokenAssetID  string `yaml:"tokenAssetId"`
	NativeAssetID string `yaml:"nativeAssetId"`

	Owner     string   `yaml:"owner"`
	Approvers []string `yaml:"approvers"`
}

// ReconcileConfig reconciliation sweep configuration
type ReconcileConfig struct {
	SweepIntervalSeconds int    `yaml:"sweepIntervalSeconds"`
	BatchSize            int    `yaml:"batchSize"`
	PrimaryChain         string `yaml:"primaryChain"` // ledger entry new quotes bind to
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

// AdminConfig admin API access control configuration
type AdminConfig struct {
	AllowedIPs []string `yaml:"allowedIPs"`
}

var AppConfig *Config

// LoadConfig loads the configuration file and applies environment overrides.
func LoadConfig(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	overrideFromEnv(&config)
	applyDefaults(&config)

	AppConfig = &config
	return nil
}

// overrideFromEnv environment variables take precedence over the YAML file
func overrideFromEnv(config *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}

	// Per-ledger overrides, e.g. BSC_RPC_ENDPOINTS=url1,url2
	for chainName, ledger := range config.Ledgers.Chains {
		envRPC := fmt.Sprintf("%s_RPC_ENDPOINTS", strings.ToUpper(chainName))
		if rpcEndpoints := os.Getenv(envRPC); rpcEndpoints != "" {
			ledger.RPCEndpoints = strings.Split(rpcEndpoints, ",")
		}
		envDesk := fmt.Sprintf("%s_DESK_CONTRACT", strings.ToUpper(chainName))
		if desk := os.Getenv(envDesk); desk != "" {
			ledger.DeskContract = desk
		}
		envIndexer := fmt.Sprintf("%s_INDEXER_URL", strings.ToUpper(chainName))
		if indexer := os.Getenv(envIndexer); indexer != "" {
			ledger.IndexerURL = indexer
		}
		config.Ledgers.Chains[chainName] = ledger
	}

	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		origins := strings.Split(corsOrigins, ",")
		config.CORS.AllowedOrigins = make([]string, 0, len(origins))
		for _, origin := range origins {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				config.CORS.AllowedOrigins = append(config.CORS.AllowedOrigins, trimmed)
			}
		}
	}
}

// applyDefaults fills zero-valued policy fields with the desk defaults.
func applyDefaults(config *Config) {
	if config.Oracle.MaxPriceAgeSeconds == 0 {
		config.Oracle.MaxPriceAgeSeconds = 3600
	}
	if config.Oracle.DeviationBps == 0 {
		config.Oracle.DeviationBps = 2000 // 20%
	}
	if config.Desk.MaxLockupSeconds == 0 {
		config.Desk.MaxLockupSeconds = 365 * 86400
	}
	if config.Desk.QuoteExpirySeconds == 0 {
		config.Desk.QuoteExpirySeconds = 86400
	}
	if config.Desk.MaxOpenOffersReturned == 0 {
		config.Desk.MaxOpenOffersReturned = 200
	}
	if config.Desk.MaxAutoClaimBatch == 0 {
		config.Desk.MaxAutoClaimBatch = 50
	}
	if config.Reconcile.SweepIntervalSeconds == 0 {
		config.Reconcile.SweepIntervalSeconds = 180
	}
	if config.Reconcile.BatchSize == 0 {
		config.Reconcile.BatchSize = 100
	}
}

// GetLedgerConfig returns the configuration for a named ledger.
func GetLedgerConfig(chainName string) (*LedgerConfig, error) {
	if AppConfig == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	ledger, exists := AppConfig.Ledgers.Chains[chainName]
	if !exists {
		return nil, fmt.Errorf("ledger %s not found in config", chainName)
	}

	if !ledger.Enabled {
		return nil, fmt.Errorf("ledger %s is disabled", chainName)
	}

	return &ledger, nil
}
