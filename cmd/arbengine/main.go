// Command arbengine is the process entrypoint: load configuration,
// construct the logger, wire every pipeline stage into a system.Engine,
// and run until a termination signal arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/nexusdex/arbengine/internal/discovery"
	"github.com/nexusdex/arbengine/internal/eventbus"
	"github.com/nexusdex/arbengine/internal/execution"
	"github.com/nexusdex/arbengine/internal/flashloan"
	"github.com/nexusdex/arbengine/internal/market"
	"github.com/nexusdex/arbengine/internal/relay"
	"github.com/nexusdex/arbengine/internal/storage"
	"github.com/nexusdex/arbengine/internal/strategy"
	"github.com/nexusdex/arbengine/internal/system"
	"github.com/nexusdex/arbengine/internal/tracker"
	"github.com/nexusdex/arbengine/internal/validation"
	"github.com/nexusdex/arbengine/pkg/config"
	"github.com/nexusdex/arbengine/pkg/logger"
	"github.com/nexusdex/arbengine/pkg/redis"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "arbengine: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg.Logging)
	defer log.Sync()

	engine, err := buildEngine(cfg, log)
	if err != nil {
		log.Fatal("failed to build engine", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engine.Start(ctx); err != nil {
		log.Fatal("failed to start engine", zap.Error(err))
	}
	log.Info("arbengine started",
		zap.Int("discovery_interval_seconds", cfg.Discovery.IntervalSeconds),
		zap.Bool("auto_execute", cfg.Execution.AutoExecute),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, stopping engine")
	engine.Stop()
	log.Info("arbengine stopped")
}

// buildEngine constructs every concrete in-process component (logging,
// config, caches, relay client, flash-loan providers, detectors, the
// validator chain, the execution/tracker pair, the optional storage/
// event-bus sinks) and wires them into a system.Engine. The external
// collaborators (RPC client, pool indexer, signing wallet, router ABI
// codec) are supplied as the "unconfigured" placeholders in
// collaborators.go; a production deployment replaces those constructor
// arguments with concrete adapters without touching anything else in this
// function.
func buildEngine(cfg *config.Config, log *logger.Logger) (*system.Engine, error) {
	var redisClient redis.Client
	if cfg.Redis.Host != "" || len(cfg.Redis.Addresses) > 0 {
		rc, err := redis.NewClientFromConfig(&cfg.Redis)
		if err != nil {
			log.Warn("redis unavailable, discovery caches will run in-process only", zap.Error(err))
		} else {
			redisClient = rc
		}
	}

	quoteCache := discovery.NewQuoteCache(redisClient)
	pairCache := discovery.NewPairCache(redisClient)

	mkt := market.New(unconfiguredPriceSource{}, log)

	disc := discovery.New(
		discovery.Config{
			MaxConcurrentDetectors: cfg.Discovery.MaxConcurrentDetectors,
			WindowBudget:           time.Duration(cfg.Discovery.WindowBudgetSeconds) * time.Second,
			BaseTokenCount:         cfg.Discovery.BaseTokenCount,
			MaxPathLength:          cfg.Discovery.MaxPathLength,
			MinProfitPercentage:    cfg.Discovery.MinProfitPercentage,
			PoolCacheTTL:           time.Duration(cfg.Discovery.CacheTTLSeconds) * time.Second,
			PairCacheTTL:           time.Duration(cfg.Discovery.CacheTTLSeconds) * time.Second,
		},
		unconfiguredPoolRegistry{},
		log,
		discovery.NewCrossVenueDetector("cross-venue", quoteCache, pairCache),
		discovery.NewTriangularDetector("triangular", cfg.Discovery.BaseTokenCount, cfg.Discovery.MinProfitPercentage, quoteCache),
	)

	tokenBlacklist := make(map[string]bool, len(cfg.Validation.TokenBlacklist))
	for _, addr := range cfg.Validation.TokenBlacklist {
		tokenBlacklist[addr] = true
	}
	valid := validation.New(
		validation.Config{
			MaxSlippagePercent:       cfg.Validation.MaxSlippage * 100,
			MinLiquidityUSD:          cfg.Validation.MinLiquidityUSD,
			MaxPriceImpactPercent:    cfg.Validation.MaxPriceImpact * 100,
			MaxGasPercentage:         cfg.Validation.MaxGasPercentage,
			GasPriceBufferPercent:    cfg.Validation.GasPriceBuffer * 100,
			PriceVerificationSources: cfg.Validation.PriceVerificationSources,
			MaxPriceAgeSeconds:       cfg.Validation.MaxPriceAgeSeconds,
			EnableSimulation:         cfg.Validation.EnableSimulation,
			MinConfidenceThreshold:   cfg.Validation.MinConfidenceThreshold,
			MaxPriceManipulationRisk: cfg.Validation.MaxPriceManipulationRisk,
			ValidatorTimeout:         time.Duration(cfg.Validation.ChainTimeoutSeconds) * time.Second,
			TokenBlacklist:           tokenBlacklist,
		},
		validation.NewMarketLiquiditySource(mkt, decimal.NewFromInt(1_000_000)),
		log,
	)

	loans := flashloan.NewSelector(
		flashloan.NewZeroFeeVaultProvider(unconfiguredLiquidity{}, nil, log),
		flashloan.NewLendingPoolProvider(unconfiguredLiquidity{}, nil, log),
	)

	var relayClient *relay.Client
	if cfg.Relay.AuthKeyHex != "" {
		authKey, err := crypto.HexToECDSA(cfg.Relay.AuthKeyHex)
		if err != nil {
			return nil, fmt.Errorf("arbengine: parse relay.auth_key_hex: %w", err)
		}
		relayClient = relay.New(relay.Config{
			URL:                cfg.Relay.URL,
			RequestTimeout:     cfg.Relay.RequestTimeout,
			MaxRetries:         cfg.Relay.MaxRetries,
			RetryDelay:         cfg.Relay.RetryDelay,
			RateLimitPerSecond: cfg.Relay.RateLimitPerSecond,
			RateLimitBurst:     cfg.Relay.RateLimitBurst,
			BlocksIntoFuture:   cfg.Relay.BlocksIntoFuture,
		}, authKey, log)
	}

	chain := unconfiguredChain{}

	var fromAddr common.Address
	if cfg.Blockchain.WalletAddress != "" {
		fromAddr = common.HexToAddress(cfg.Blockchain.WalletAddress)
	}

	exec := execution.New(
		execution.Config{
			MaxConcurrentExecutions:  cfg.Execution.MaxConcurrentExecutions,
			MinTimeBetweenExecutions: time.Duration(cfg.Execution.MinTimeBetweenExecutionMS) * time.Millisecond,
			ExecutionTimeout:         time.Duration(cfg.Execution.ExecutionTimeoutSeconds) * time.Second,
			EnableFlashbots:          cfg.Execution.EnableFlashbots,
			MinConfidenceScore:       cfg.Execution.MinConfidenceScore,
			WaitForReceipt:           cfg.Execution.WaitForReceipt,
			GasLimitBufferPercent:    cfg.Execution.GasLimitBufferPercent * 100,
			DeadlineMinutes:          cfg.Execution.DeadlineMinutes,
			MaxWaitBlocks:            cfg.Tracker.MaxWaitBlocks,
		},
		chain,
		relayClient,
		unconfiguredEncoder{},
		unconfiguredSigner{},
		unconfiguredBalances{},
		loans,
		unconfiguredLogParser{},
		fromAddr,
		log,
	)

	track := tracker.New(
		tracker.Config{
			PollInterval:       time.Duration(cfg.Tracker.PollIntervalSeconds) * time.Second,
			MaxAttempts:        cfg.Tracker.MaxAttempts,
			ConfirmationBlocks: cfg.Tracker.ConfirmationBlocks,
			MaxWaitBlocks:      cfg.Tracker.MaxWaitBlocks,
		},
		chain,
		relayClient,
		log,
	)

	var store *storage.Store
	if cfg.Storage.Enabled {
		s, err := storage.Open(cfg.Storage, log)
		if err != nil {
			return nil, fmt.Errorf("arbengine: open storage: %w", err)
		}
		store = s
	}

	var publisher eventbus.Publisher
	if cfg.EventBus.Enabled {
		p, err := eventbus.NewPublisher(cfg.EventBus, log)
		if err != nil {
			return nil, fmt.Errorf("arbengine: open event bus: %w", err)
		}
		publisher = p
	} else {
		publisher = eventbus.NewMockPublisher(log)
	}

	strategyCfg := strategy.Config{
		UseFlashbots:     cfg.Execution.EnableFlashbots,
		BlocksIntoFuture: cfg.Relay.BlocksIntoFuture,
		WaitForReceipt:   cfg.Execution.WaitForReceipt,
	}
	if minProfit, ok := new(big.Int).SetString(cfg.Discovery.MinProfitWei, 10); ok {
		strategyCfg.MinProfitThreshold = minProfit
	}

	return system.New(cfg, system.Deps{
		Market:      mkt,
		Discovery:   disc,
		Validation:  valid,
		Execution:   exec,
		Tracker:     track,
		Loans:       loans,
		Chain:       chain,
		Storage:     store,
		Publisher:   publisher,
		StrategyCfg: strategyCfg,
	}, log), nil
}
