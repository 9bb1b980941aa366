package config

import (
	"fmt"
	"time"

	wcommon "github.com/fjord-labs/walletcore/internal/common"
	"github.com/fjord-labs/walletcore/internal/logger"
	"github.com/fjord-labs/walletcore/internal/retry"
)

// Config is the complete configuration for walletcore.
type Config struct {
	// Chain contains chain RPC configuration
	Chain ChainConfig `yaml:"chain" json:"chain" toml:"chain"`

	// Store contains the upstream relational store configuration
	Store StoreConfig `yaml:"store" json:"store" toml:"store"`

	// Watcher contains the indexing scheduler configuration
	Watcher WatcherConfig `yaml:"watcher" json:"watcher" toml:"watcher"`

	// Notify contains optional change-notification configuration
	Notify *NotifyConfig `yaml:"notify,omitempty" json:"notify,omitempty" toml:"notify,omitempty"`

	// Submitter contains transaction submission configuration
	Submitter SubmitterConfig `yaml:"submitter" json:"submitter" toml:"submitter"`

	// Bundler contains the ERC-4337 bundler/paymaster configuration
	Bundler BundlerConfig `yaml:"bundler" json:"bundler" toml:"bundler"`

	// Logging contains logging configuration
	Logging *logger.Config `yaml:"logging,omitempty" json:"logging,omitempty" toml:"logging,omitempty"`

	// Metrics contains Prometheus metrics configuration
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" toml:"metrics,omitempty"`
}

// ChainConfig configures access to the chain's JSON-RPC surface.
type ChainConfig struct {
	// ChainID is the numeric chain identifier
	ChainID uint64 `yaml:"chain_id" json:"chain_id" toml:"chain_id"`

	// RPCURL is the chain RPC endpoint URL
	RPCURL string `yaml:"rpc_url" json:"rpc_url" toml:"rpc_url"`

	// RateLimit is the maximum RPC requests per second (0 = unlimited)
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit" toml:"rate_limit"`

	// RateBurst is the rate limiter burst size
	RateBurst int `yaml:"rate_burst" json:"rate_burst" toml:"rate_burst"`

	// HomeCoin is the wallet's home stablecoin contract address
	HomeCoin wcommon.Address `yaml:"home_coin" json:"home_coin" toml:"home_coin"`

	// HomeCoinDecimals is the home coin's decimal scale
	HomeCoinDecimals uint8 `yaml:"home_coin_decimals" json:"home_coin_decimals" toml:"home_coin_decimals"`

	// CallTimeout bounds individual RPC calls
	CallTimeout wcommon.Duration `yaml:"call_timeout" json:"call_timeout" toml:"call_timeout"`

	// Retry contains RPC retry configuration with exponential backoff
	Retry *retry.Config `yaml:"retry,omitempty" json:"retry,omitempty" toml:"retry,omitempty"`
}

// ApplyDefaults sets default values for optional chain configuration fields.
func (c *ChainConfig) ApplyDefaults() {
	if c.RateLimit == 0 {
		c.RateLimit = 50
	}
	if c.RateBurst == 0 {
		c.RateBurst = 20
	}
	if c.HomeCoinDecimals == 0 {
		c.HomeCoinDecimals = 6
	}
	if c.CallTimeout.Duration == 0 {
		c.CallTimeout = wcommon.NewDuration(15 * time.Second)
	}
	if c.Retry != nil {
		c.Retry.ApplyDefaults()
	}
}

// StoreConfig configures the relational store holding decoded event rows.
type StoreConfig struct {
	// Driver is the database driver: "postgres" or "sqlite3"
	Driver string `yaml:"driver" json:"driver" toml:"driver"`

	// DSN is the connection string (postgres URL or sqlite file path)
	DSN string `yaml:"dsn" json:"dsn" toml:"dsn"`

	// MaxOpenConnections is the maximum number of open database connections
	MaxOpenConnections int `yaml:"max_open_connections" json:"max_open_connections" toml:"max_open_connections"`

	// MaxIdleConnections is the maximum number of idle connections in the pool
	MaxIdleConnections int `yaml:"max_idle_connections" json:"max_idle_connections" toml:"max_idle_connections"`
}

// ApplyDefaults sets default values for optional store configuration fields.
func (s *StoreConfig) ApplyDefaults() {
	if s.Driver == "" {
		s.Driver = "postgres"
	}
	if s.MaxOpenConnections == 0 {
		s.MaxOpenConnections = 25
	}
	if s.MaxIdleConnections == 0 {
		s.MaxIdleConnections = 5
	}
}

// WatcherConfig configures the layered indexing scheduler.
type WatcherConfig struct {
	// TickInterval is the fallback polling interval between ticks
	TickInterval wcommon.Duration `yaml:"tick_interval" json:"tick_interval" toml:"tick_interval"`

	// SlowTickInterval drives indexers registered as slow
	SlowTickInterval wcommon.Duration `yaml:"slow_tick_interval" json:"slow_tick_interval" toml:"slow_tick_interval"`

	// BatchSize caps the block range applied in one tick
	BatchSize uint64 `yaml:"batch_size" json:"batch_size" toml:"batch_size"`
}

// ApplyDefaults sets default values for optional watcher configuration fields.
func (w *WatcherConfig) ApplyDefaults() {
	if w.TickInterval.Duration == 0 {
		w.TickInterval = wcommon.NewDuration(1 * time.Second)
	}
	if w.SlowTickInterval.Duration == 0 {
		w.SlowTickInterval = wcommon.NewDuration(30 * time.Second)
	}
	if w.BatchSize == 0 {
		w.BatchSize = 5000
	}
}

// NotifyConfig configures the redis change-notification channel the upstream
// ETL publishes its cursor advances on.
type NotifyConfig struct {
	// Addr is the redis server address (host:port)
	Addr string `yaml:"addr" json:"addr" toml:"addr"`

	// Channel is the pub/sub channel carrying cursor notifications
	Channel string `yaml:"channel" json:"channel" toml:"channel"`

	// Password is the optional redis password
	Password string `yaml:"password,omitempty" json:"password,omitempty" toml:"password,omitempty"`

	// DB is the redis database number
	DB int `yaml:"db" json:"db" toml:"db"`
}

// ApplyDefaults sets default values for optional notify configuration fields.
func (n *NotifyConfig) ApplyDefaults() {
	if n.Channel == "" {
		n.Channel = "walletcore:new_block"
	}
}

// SubmitterConfig configures the reliable transaction-submission path.
type SubmitterConfig struct {
	// MaxAttempts caps submission attempts per logical transaction
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`

	// GasLimitPercent scales the simulated gas estimate (e.g. 150 = +50%)
	GasLimitPercent uint64 `yaml:"gas_limit_percent" json:"gas_limit_percent" toml:"gas_limit_percent"`

	// FeeSafetyPercent scales the market base fee (e.g. 200 = 2x)
	FeeSafetyPercent uint64 `yaml:"fee_safety_percent" json:"fee_safety_percent" toml:"fee_safety_percent"`

	// ReplacementFeePercent floors a retry's fees at this percentage of the
	// previous attempt's fees, satisfying replacement-underpriced rules
	ReplacementFeePercent uint64 `yaml:"replacement_fee_percent" json:"replacement_fee_percent" toml:"replacement_fee_percent"`

	// ReceiptTimeout bounds the wait for a transaction receipt per attempt
	ReceiptTimeout wcommon.Duration `yaml:"receipt_timeout" json:"receipt_timeout" toml:"receipt_timeout"`
}

// ApplyDefaults sets default values for optional submitter configuration fields.
func (s *SubmitterConfig) ApplyDefaults() {
	if s.MaxAttempts == 0 {
		s.MaxAttempts = 3
	}
	if s.GasLimitPercent == 0 {
		s.GasLimitPercent = 150
	}
	if s.FeeSafetyPercent == 0 {
		s.FeeSafetyPercent = 200
	}
	if s.ReplacementFeePercent == 0 {
		s.ReplacementFeePercent = 120
	}
	if s.ReceiptTimeout.Duration == 0 {
		s.ReceiptTimeout = wcommon.NewDuration(90 * time.Second)
	}
}

// BundlerConfig configures the ERC-4337 bundler and paymaster surfaces.
type BundlerConfig struct {
	// RPCURL is the bundler RPC endpoint URL
	RPCURL string `yaml:"rpc_url" json:"rpc_url" toml:"rpc_url"`

	// EntryPoint is the ERC-4337 entry-point contract address
	EntryPoint wcommon.Address `yaml:"entry_point" json:"entry_point" toml:"entry_point"`

	// Paymaster is the fee-sponsoring paymaster contract address
	Paymaster wcommon.Address `yaml:"paymaster" json:"paymaster" toml:"paymaster"`

	// GasPriceCacheTTL bounds how stale the cached gas-price constants may be
	GasPriceCacheTTL wcommon.Duration `yaml:"gas_price_cache_ttl" json:"gas_price_cache_ttl" toml:"gas_price_cache_ttl"`
}

// ApplyDefaults sets default values for optional bundler configuration fields.
func (b *BundlerConfig) ApplyDefaults() {
	if b.GasPriceCacheTTL.Duration == 0 {
		b.GasPriceCacheTTL = wcommon.NewDuration(60 * time.Second)
	}
}

// MetricsConfig configures the Prometheus metrics server.
type MetricsConfig struct {
	// Enabled controls whether the metrics server runs
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address the metrics server binds to
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// Path is the HTTP path serving Prometheus metrics
	Path string `yaml:"path" json:"path" toml:"path"`
}

// ApplyDefaults sets default values for optional metrics configuration fields.
func (m *MetricsConfig) ApplyDefaults() {
	if m.ListenAddress == "" {
		m.ListenAddress = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
}

// ApplyDefaults sets defaults across the whole configuration tree.
func (c *Config) ApplyDefaults() {
	c.Chain.ApplyDefaults()
	c.Store.ApplyDefaults()
	c.Watcher.ApplyDefaults()
	if c.Notify != nil {
		c.Notify.ApplyDefaults()
	}
	c.Submitter.ApplyDefaults()
	c.Bundler.ApplyDefaults()
	if c.Logging != nil {
		c.Logging.ApplyDefaults()
	}
	if c.Metrics != nil {
		c.Metrics.ApplyDefaults()
	}
}

// Validate checks the configuration for missing or inconsistent fields.
func (c *Config) Validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url: required")
	}
	if c.Chain.ChainID == 0 {
		return fmt.Errorf("chain.chain_id: required")
	}
	if c.Store.DSN == "" {
		return fmt.Errorf("store.dsn: required")
	}
	if c.Store.Driver != "postgres" && c.Store.Driver != "sqlite3" {
		return fmt.Errorf("store.driver: must be \"postgres\" or \"sqlite3\", got %q", c.Store.Driver)
	}
	if c.Submitter.ReplacementFeePercent < 110 {
		return fmt.Errorf("submitter.replacement_fee_percent: must be >= 110 to outbid a prior attempt")
	}
	if c.Notify != nil && c.Notify.Addr == "" {
		return fmt.Errorf("notify.addr: required when notify is configured")
	}
	if c.Logging != nil {
		for component := range c.Logging.ComponentLevels {
			if _, ok := wcommon.AllComponents[wcommon.ToLowerWithTrim(component)]; !ok {
				return fmt.Errorf("logging.component_levels: unknown component %q", component)
			}
		}
		if _, ok := logger.ValidLogLevels[wcommon.ToLowerWithTrim(c.Logging.DefaultLevel)]; !ok {
			return fmt.Errorf("logging.default_level: must be one of: debug, info, warn, error")
		}
	}
	return nil
}
