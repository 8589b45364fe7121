package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the root configuration for the arbitrage engine.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Redis      RedisConfig      `yaml:"redis"`
	Blockchain BlockchainConfig `yaml:"blockchain"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Validation ValidationConfig `yaml:"validation"`
	Execution  ExecutionConfig  `yaml:"execution"`
	FlashLoan  FlashLoanConfig  `yaml:"flash_loan"`
	Tracker    TrackerConfig    `yaml:"tracker"`
	Relay      RelayConfig      `yaml:"relay"`
	Storage    StorageConfig    `yaml:"storage"`
	EventBus   EventBusConfig   `yaml:"event_bus"`
}

// LoggingConfig configures pkg/logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePath   string `yaml:"file_path"`
	MaxSize    int    `yaml:"max_size"`
	MaxAge     int    `yaml:"max_age"`
	MaxBackups int    `yaml:"max_backups"`
	Compress   bool   `yaml:"compress"`
}

// RedisConfig configures pkg/redis, backing the TTL caches in internal/discovery.
type RedisConfig struct {
	Addresses       []string      `yaml:"addresses"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Password        string        `yaml:"password"`
	DB              int           `yaml:"db"`
	PoolSize        int           `yaml:"pool_size"`
	MinIdleConns    int           `yaml:"min_idle_conns"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	PoolTimeout     time.Duration `yaml:"pool_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	MinRetryBackoff time.Duration `yaml:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `yaml:"max_retry_backoff"`
	EnableCluster   bool          `yaml:"enable_cluster"`
}

// BlockchainConfig names the networks the engine watches. The RPC client itself is an
// external collaborator (internal/rpcclient defines only the interface contract).
type BlockchainConfig struct {
	ChainID            int64         `yaml:"chain_id"`
	RPCURL             string        `yaml:"rpc_url"`
	WSURL              string        `yaml:"ws_url"`
	WalletAddress      string        `yaml:"wallet_address"`
	ConfirmationBlocks int           `yaml:"confirmation_blocks"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	RateLimitPerSecond float64       `yaml:"rate_limit_per_second"`
	RateLimitBurst     int           `yaml:"rate_limit_burst"`
}

// DiscoveryConfig bounds the discovery loop and its detectors.
type DiscoveryConfig struct {
	IntervalSeconds       int     `yaml:"discovery_interval_seconds"`
	MaxOpportunities      int     `yaml:"max_opportunities"`
	MinProfitWei          string  `yaml:"min_profit_wei"`
	ParallelDetection     bool    `yaml:"parallel_detection"`
	MaxConcurrentDetectors int    `yaml:"max_concurrent_detectors"`
	BatchSize             int     `yaml:"batch_size"`
	MaxPathLength         int     `yaml:"max_path_length"`
	MaxOpportunityCache   int     `yaml:"max_opportunity_cache"`
	WindowBudgetSeconds   int     `yaml:"window_budget_seconds"`
	CacheTTLSeconds       int     `yaml:"cache_ttl_seconds"`
	BaseTokenCount        int     `yaml:"base_token_count"`
	MinProfitPercentage   float64 `yaml:"min_profit_percentage"`
}

// ValidationConfig carries the validator-chain thresholds.
type ValidationConfig struct {
	MaxSlippage              float64 `yaml:"max_slippage"`
	MinLiquidityUSD          float64 `yaml:"min_liquidity_usd"`
	MaxPriceImpact           float64 `yaml:"max_price_impact"`
	MaxGasPercentage         float64 `yaml:"max_gas_percentage"`
	GasPriceBuffer           float64 `yaml:"gas_price_buffer"`
	PriceVerificationSources int     `yaml:"price_verification_sources"`
	MaxPriceAgeSeconds       int     `yaml:"max_price_age_seconds"`
	EnableSimulation         bool    `yaml:"enable_simulation"`
	MinConfidenceThreshold   float64 `yaml:"min_confidence_threshold"`
	MaxPriceManipulationRisk float64 `yaml:"max_price_manipulation_risk"`
	ChainTimeoutSeconds      int     `yaml:"chain_timeout_seconds"`
	TokenBlacklist           []string `yaml:"token_blacklist"`
}

// ExecutionConfig bounds execution concurrency and timing.
type ExecutionConfig struct {
	DefaultStrategy           string  `yaml:"default_execution_strategy"`
	AutoExecute               bool    `yaml:"auto_execute"`
	MaxConcurrentExecutions   int     `yaml:"max_concurrent_executions"`
	MinTimeBetweenExecutionMS int     `yaml:"min_time_between_executions_ms"`
	ExecutionTimeoutSeconds   int     `yaml:"execution_timeout"`
	EnableFlashbots           bool    `yaml:"enable_flashbots"`
	MinConfidenceScore        float64 `yaml:"min_confidence_score"`
	WaitForReceipt            bool    `yaml:"wait_for_receipt"`
	MaxExecutionHistory       int     `yaml:"max_execution_history"`
	GasLimitBufferPercent     float64 `yaml:"gas_limit_buffer_percent"`
	DeadlineMinutes           int     `yaml:"deadline_minutes"`
}

// FlashLoanConfig tunes flash-loan sourcing.
type FlashLoanConfig struct {
	SlippageTolerance        float64  `yaml:"slippage_tolerance"`
	ProfitThresholdMultiplier float64 `yaml:"profit_threshold_multiplier"`
	GasBuffer                 float64 `yaml:"gas_buffer"`
	PreferredProviders         []string `yaml:"preferred_providers"`
	InternalFeeBuffer          float64  `yaml:"internal_fee_buffer"`
}

// TrackerConfig bounds receipt/bundle polling.
type TrackerConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	MaxAttempts         int `yaml:"max_attempts"`
	ConfirmationBlocks  int `yaml:"confirmation_blocks"`
	MaxWaitBlocks       int `yaml:"max_wait_blocks"`
}

// RelayConfig configures the Flashbots-style private relay client (internal/relay).
type RelayConfig struct {
	URL                string        `yaml:"url"`
	AuthKeyHex         string        `yaml:"auth_key_hex"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	MaxRetries         int           `yaml:"max_retries"`
	RetryDelay         time.Duration `yaml:"retry_delay"`
	RateLimitPerSecond float64       `yaml:"rate_limit_per_second"`
	RateLimitBurst     int           `yaml:"rate_limit_burst"`
	BlocksIntoFuture   int           `yaml:"blocks_into_future"`
}

// StorageConfig configures the optional Postgres opportunity/execution sink (internal/storage).
type StorageConfig struct {
	Enabled         bool   `yaml:"enabled"`
	DSN             string `yaml:"dsn"`
	MigrationsPath  string `yaml:"migrations_path"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
}

// EventBusConfig configures the optional Kafka event sink (internal/eventbus).
type EventBusConfig struct {
	Enabled           bool     `yaml:"enabled"`
	Brokers           []string `yaml:"brokers"`
	OpportunityTopic  string   `yaml:"opportunity_topic"`
	ExecutionTopic    string   `yaml:"execution_topic"`
}

// Load reads and parses a YAML configuration file, applying defaults first.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config populated with the engine's stock defaults.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Redis: RedisConfig{
			Host:         "localhost",
			Port:         6379,
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Blockchain: BlockchainConfig{
			ChainID:            1,
			ConfirmationBlocks: 1,
			RequestTimeout:     10 * time.Second,
			RateLimitPerSecond: 20,
			RateLimitBurst:     10,
		},
		Discovery: DiscoveryConfig{
			IntervalSeconds:        10,
			MaxOpportunities:       100,
			MinProfitWei:           "0",
			ParallelDetection:      true,
			MaxConcurrentDetectors: 5,
			BatchSize:              10,
			MaxPathLength:          4,
			MaxOpportunityCache:    1000,
			WindowBudgetSeconds:    30,
			CacheTTLSeconds:        5,
			BaseTokenCount:         5,
			MinProfitPercentage:    0.3,
		},
		Validation: ValidationConfig{
			MaxSlippage:              0.005,
			MinLiquidityUSD:          10000,
			MaxPriceImpact:           0.01,
			MaxGasPercentage:         50,
			GasPriceBuffer:           0.2,
			PriceVerificationSources: 1,
			MaxPriceAgeSeconds:       15,
			EnableSimulation:         true,
			MinConfidenceThreshold:   0.5,
			MaxPriceManipulationRisk: 0.5,
			ChainTimeoutSeconds:      10,
		},
		Execution: ExecutionConfig{
			DefaultStrategy:           "standard",
			AutoExecute:               false,
			MaxConcurrentExecutions:   1,
			MinTimeBetweenExecutionMS: 0,
			ExecutionTimeoutSeconds:   300,
			EnableFlashbots:           false,
			MinConfidenceScore:        0.7,
			WaitForReceipt:            false,
			MaxExecutionHistory:       1000,
			GasLimitBufferPercent:     0.2,
			DeadlineMinutes:           20,
		},
		FlashLoan: FlashLoanConfig{
			SlippageTolerance:         0.005,
			ProfitThresholdMultiplier: 1.5,
			GasBuffer:                 1.2,
			PreferredProviders:        []string{"zero-fee", "lending-pool"},
			InternalFeeBuffer:         0.0001,
		},
		Tracker: TrackerConfig{
			PollIntervalSeconds: 2,
			MaxAttempts:         30,
			ConfirmationBlocks:  1,
			MaxWaitBlocks:       5,
		},
		Relay: RelayConfig{
			URL:                "https://relay.flashbots.net",
			RequestTimeout:     5 * time.Second,
			MaxRetries:         3,
			RetryDelay:         500 * time.Millisecond,
			RateLimitPerSecond: 5,
			RateLimitBurst:     5,
			BlocksIntoFuture:   2,
		},
		Storage: StorageConfig{
			Enabled:      false,
			MaxOpenConns: 10,
			MaxIdleConns: 2,
		},
		EventBus: EventBusConfig{
			Enabled:          false,
			OpportunityTopic: "arbengine.opportunities",
			ExecutionTopic:   "arbengine.executions",
		},
	}
}

// Validate fails fast on configuration that would make the engine
// meaningless.
func (c *Config) Validate() error {
	if c.Discovery.MaxConcurrentDetectors <= 0 {
		return fmt.Errorf("config: discovery.max_concurrent_detectors must be > 0")
	}
	if c.Validation.MaxSlippage <= 0 || c.Validation.MaxSlippage >= 1 {
		return fmt.Errorf("config: validation.max_slippage must be in (0,1)")
	}
	if c.Execution.MaxConcurrentExecutions <= 0 {
		return fmt.Errorf("config: execution.max_concurrent_executions must be > 0")
	}
	if c.Relay.BlocksIntoFuture < 1 || c.Relay.BlocksIntoFuture > 8 {
		return fmt.Errorf("config: relay.blocks_into_future must be in [1,8]")
	}
	if c.Tracker.MaxAttempts <= 0 {
		return fmt.Errorf("config: tracker.max_attempts must be > 0")
	}
	if c.Storage.Enabled && c.Storage.DSN == "" {
		return fmt.Errorf("config: storage.dsn is required when storage.enabled is true")
	}
	if c.EventBus.Enabled && len(c.EventBus.Brokers) == 0 {
		return fmt.Errorf("config: event_bus.brokers is required when event_bus.enabled is true")
	}
	return nil
}
