// Package main is the entry point for the crossarb detection service.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	arbitrageApp "github.com/venuelabs/crossarb/business/arbitrage/app"
	feedsApp "github.com/venuelabs/crossarb/business/feeds/app"
	feedsDomain "github.com/venuelabs/crossarb/business/feeds/domain"
	"github.com/venuelabs/crossarb/business/feeds/infra/binance"
	"github.com/venuelabs/crossarb/business/feeds/infra/evmpool"
	treasuryApp "github.com/venuelabs/crossarb/business/treasury/app"
	treasuryDomain "github.com/venuelabs/crossarb/business/treasury/domain"
	"github.com/venuelabs/crossarb/internal/apm"
	"github.com/venuelabs/crossarb/internal/apperror"
	"github.com/venuelabs/crossarb/internal/config"
	"github.com/venuelabs/crossarb/internal/health"
	"github.com/venuelabs/crossarb/internal/logger"
	"github.com/venuelabs/crossarb/internal/metrics"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

const updateBuffer = 1024

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("crossarb %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(os.Stderr, logger.ParseLevel(cfg.App.LogLevel), cfg.App.Name, nil)
	log.Info(ctx, "starting crossarb",
		"version", version,
		"environment", cfg.App.Environment,
	)

	if cfg.Telemetry.Enabled {
		stop, err := startTelemetry(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer stop()
	}

	healthServer := health.NewServer(cfg.Telemetry.HealthPort, version, log)
	if err := healthServer.Start(); err != nil {
		log.Warn(ctx, "failed to start health server", "error", err)
	} else {
		log.Info(ctx, "health server started", "port", cfg.Telemetry.HealthPort)
	}
	defer healthServer.Stop(context.Background())

	// Feeds publish into one bounded channel; the aggregator is the
	// only consumer.
	updates := make(chan feedsApp.Update, updateBuffer)

	aggregator, err := feedsApp.NewLiquidityAggregator(cfg.Detection.StaleAfter, log)
	if err != nil {
		return err
	}

	onEvent := func(ev feedsDomain.FeedEvent) {
		log.Info(ctx, "feed state change",
			"venue", string(ev.Venue), "from", string(ev.From), "to", string(ev.To))
	}

	binanceCfg := binance.Config{
		WebSocketURL:   cfg.Binance.WebSocketURL,
		Symbols:        cfg.Binance.Symbols,
		MaxReconnects:  cfg.Binance.MaxReconnects,
		InitialBackoff: cfg.Binance.InitialBackoff,
		MaxBackoff:     cfg.Binance.MaxBackoff,
		IdleTimeout:    cfg.Binance.IdleTimeout,
	}
	binanceFeed, err := binance.NewFeed(binanceCfg, updates, log, onEvent)
	if err != nil {
		return err
	}
	healthServer.RegisterCheck("binance_feed", feedCheck(binanceFeed))

	var evmFeed *evmpool.Feed
	if len(cfg.Ethereum.Pools) > 0 {
		client, err := ethclient.DialContext(ctx, cfg.Ethereum.HTTPURL)
		if err != nil {
			return apperror.Wrap(err, apperror.CodeRPCConnectionFailed, "dialing "+cfg.Ethereum.HTTPURL)
		}
		defer client.Close()

		pools := make([]evmpool.PoolConfig, len(cfg.Ethereum.Pools))
		for i, p := range cfg.Ethereum.Pools {
			pools[i] = evmpool.PoolConfig{
				Address:  p.AddressHex(),
				Protocol: p.Protocol,
				FeeBps:   p.FeeBps,
			}
		}
		evmCfg := evmpool.DefaultConfig(pools)
		evmCfg.ChainID = cfg.Ethereum.ChainID
		evmCfg.PollInterval = cfg.Ethereum.PollInterval
		evmCfg.RPCRateLimit = cfg.Ethereum.RPCRateLimit

		evmFeed, err = evmpool.NewFeed(client, evmCfg, updates, log, onEvent)
		if err != nil {
			return err
		}
		healthServer.RegisterCheck("evm_feed", feedCheck(evmFeed))
	}

	detector, scorer, err := buildDetection(cfg, aggregator, log)
	if err != nil {
		return err
	}

	ledger, coordinator, err := buildTreasury(cfg, log)
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return aggregator.Run(ctx, updates)
	})
	group.Go(func() error {
		seedQuotes(ctx, cfg, updates, log)
		return binanceFeed.Run(ctx)
	})
	if evmFeed != nil {
		group.Go(func() error {
			return evmFeed.Run(ctx)
		})
	}
	group.Go(func() error {
		return detectLoop(ctx, cfg, detector, scorer, log)
	})
	group.Go(func() error {
		return rotationLoop(ctx, ledger, coordinator, log)
	})

	err = group.Wait()
	log.Info(ctx, "shutting down")
	return err
}

// startTelemetry installs trace and meter providers and serves the
// Prometheus endpoint. The returned stop function flushes both.
func startTelemetry(ctx context.Context, cfg *config.Config, log *logger.Logger) (func(), error) {
	traceProvider, err := apm.NewTraceProvider(apm.Settings{
		Provider:    apm.Provider(cfg.Telemetry.TraceProvider),
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Headers:     cfg.Telemetry.OTLPHeaders,
	}, log)
	if err != nil {
		return nil, err
	}
	log.Info(ctx, "tracing initialized", "provider", cfg.Telemetry.TraceProvider)

	meterProvider, err := metrics.NewProvider(metrics.Settings{
		ServiceName:  cfg.Telemetry.ServiceName,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPHeaders:  cfg.Telemetry.OTLPHeaders,
	}, log)
	if err != nil {
		return nil, err
	}

	promServer := metrics.NewPrometheusServer(cfg.Telemetry.PrometheusPort)
	go func() {
		if err := promServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "prometheus server stopped", "error", err)
		}
	}()
	log.Info(ctx, "prometheus metrics server started", "port", cfg.Telemetry.PrometheusPort)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		promServer.Shutdown(shutdownCtx)
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Warn(ctx, "meter provider shutdown", "error", err)
		}
		if err := traceProvider.Stop(); err != nil {
			log.Warn(ctx, "trace provider shutdown", "error", err)
		}
	}, nil
}

func buildDetection(cfg *config.Config, aggregator *feedsApp.LiquidityAggregator, log *logger.Logger) (*arbitrageApp.Detector, *arbitrageApp.Scorer, error) {
	fixedCost, err := cfg.Detection.FixedCostAmount()
	if err != nil {
		return nil, nil, apperror.Wrap(err, apperror.CodeConfigurationError, "parsing detection.fixed_cost")
	}
	probeSize, err := cfg.Detection.ProbeSizeAmount()
	if err != nil {
		return nil, nil, apperror.Wrap(err, apperror.CodeConfigurationError, "parsing detection.probe_size")
	}

	pairs := make([]feedsDomain.PairID, len(cfg.Detection.Pairs))
	for i, p := range cfg.Detection.Pairs {
		pairs[i] = feedsDomain.PairID(p)
	}

	detectorCfg := arbitrageApp.DefaultDetectorConfig(pairs)
	detectorCfg.MinSpreadBps = cfg.Detection.MinSpreadBps
	detectorCfg.MinProfitBps = cfg.Detection.MinProfitBps
	detectorCfg.FixedCost = fixedCost
	detectorCfg.MaxHops = cfg.Detection.MaxHops
	detectorCfg.ProbeSize = probeSize

	detector, err := arbitrageApp.NewDetector(aggregator, detectorCfg, log)
	if err != nil {
		return nil, nil, err
	}

	scorer := arbitrageApp.NewScorer(arbitrageApp.ScorerConfig{
		Method:           cfg.Scoring.Method,
		ValueWeight:      cfg.Scoring.ValueWeight,
		CostWeight:       cfg.Scoring.CostWeight,
		RiskWeight:       cfg.Scoring.RiskWeight,
		TimeWeight:       cfg.Scoring.TimeWeight,
		ComplexityWeight: cfg.Scoring.ComplexityWeight,
		DiscountRate:     cfg.Scoring.DiscountRate,
	})
	return detector, scorer, nil
}

func buildTreasury(cfg *config.Config, log *logger.Logger) (*treasuryApp.Ledger, *treasuryApp.Coordinator, error) {
	minRotation, err := cfg.Treasury.MinRotationAmountScaled()
	if err != nil {
		return nil, nil, apperror.Wrap(err, apperror.CodeConfigurationError, "parsing treasury.min_rotation_amount")
	}

	destinations := make([]treasuryDomain.RotationDestination, len(cfg.Treasury.Destinations))
	for i, d := range cfg.Treasury.Destinations {
		destinations[i] = treasuryDomain.RotationDestination{
			Name:          d.Name,
			Address:       common.HexToAddress(d.Address),
			PercentageBps: d.PercentageBps,
			Kind:          d.Kind,
			Active:        d.Active,
		}
	}

	ledger, err := treasuryApp.NewLedger(treasuryApp.LedgerConfig{
		MinRotationAmount: minRotation,
		Destinations:      destinations,
	}, nil, log)
	if err != nil {
		return nil, nil, err
	}

	signers := make([]treasuryDomain.Signer, len(cfg.Treasury.Signers))
	for i, s := range cfg.Treasury.Signers {
		signers[i] = treasuryDomain.Signer{
			ID:      s.ID,
			Address: common.HexToAddress(s.Address),
			Role:    treasuryDomain.SignerRole(s.Role),
			Active:  s.Active,
		}
	}

	coordinator, err := treasuryApp.NewCoordinator(treasuryApp.CoordinatorConfig{
		RequiredSignatures: cfg.Treasury.RequiredSignatures,
		EmergencyThreshold: cfg.Treasury.EmergencyThreshold,
		ActionTTL:          cfg.Treasury.ActionTTL,
	}, signers, log)
	if err != nil {
		return nil, nil, err
	}
	return ledger, coordinator, nil
}

// seedQuotes pulls a REST snapshot so detection has prices before the
// stream connects. Failure is logged and ignored; the stream is the
// source of truth.
func seedQuotes(ctx context.Context, cfg *config.Config, updates chan<- feedsApp.Update, log *logger.Logger) {
	seeder, err := binance.NewSeeder(binance.BaseRESTURL, cfg.Binance.Symbols, log)
	if err != nil {
		log.Warn(ctx, "rest seeder unavailable", "error", err)
		return
	}
	if err := seeder.Seed(ctx, updates); err != nil {
		log.Warn(ctx, "rest snapshot seeding failed", "error", err)
	}
}

// detectLoop runs a detection pass per aggregator staleness window and
// logs the ranked outcomes. Execution is out of scope; the ranked list
// is the product. Opportunities not acted on within the configured
// window are swept from the book as expired.
func detectLoop(ctx context.Context, cfg *config.Config, detector *arbitrageApp.Detector, scorer *arbitrageApp.Scorer, log *logger.Logger) error {
	interval := cfg.Detection.StaleAfter
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ttl := cfg.Detection.OpportunityTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	book, err := arbitrageApp.NewBook(ttl)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if expired := book.Expire(ctx, time.Now()); len(expired) > 0 {
			log.Info(ctx, "opportunities expired unacted", "count", len(expired))
		}

		ranked := scorer.Rank(detector.Detect(ctx))
		book.Put(ranked...)
		for _, opp := range ranked {
			log.Info(ctx, "opportunity",
				"rank", opp.Rank,
				"kind", string(opp.Kind),
				"pair", string(opp.PairID),
				"profit_bps", opp.ProfitBps,
				"score", opp.Score,
				"risk", opp.Risk,
				"expected_value", scorer.ExpectedValue(opp),
			)
		}
	}
}

// rotationLoop proposes a rotation whenever the unrotated total clears
// the minimum and opens a multisig action for it. Signature collection
// happens out of band; an action left unsigned simply expires and the
// rotation is released for a fresh proposal.
func rotationLoop(ctx context.Context, ledger *treasuryApp.Ledger, coordinator *treasuryApp.Coordinator, log *logger.Logger) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	pending := make(map[string]string) // action ID -> rotation ID

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		for actionID, rotationID := range pending {
			action, err := coordinator.Action(ctx, actionID)
			if err != nil {
				delete(pending, actionID)
				continue
			}
			switch action.Status {
			case treasuryDomain.ActionApproved:
				if _, err := coordinator.Execute(ctx, actionID); err != nil {
					log.Error(ctx, "executing rotation action", "action", actionID, "error", err)
					continue
				}
				if err := ledger.MarkExecuted(ctx, rotationID); err != nil {
					log.Error(ctx, "marking rotation executed", "rotation", rotationID, "error", err)
				}
				delete(pending, actionID)
			case treasuryDomain.ActionRejected:
				if err := ledger.Release(ctx, rotationID, treasuryDomain.RotationRejected); err != nil {
					log.Error(ctx, "releasing rejected rotation", "rotation", rotationID, "error", err)
				}
				delete(pending, actionID)
			case treasuryDomain.ActionExpired:
				if err := ledger.Release(ctx, rotationID, treasuryDomain.RotationExpired); err != nil {
					log.Error(ctx, "releasing expired rotation", "rotation", rotationID, "error", err)
				}
				delete(pending, actionID)
			}
		}

		rotation, err := ledger.ProposeRotation(ctx)
		if err != nil {
			if !apperror.IsCode(err, apperror.CodeInsufficientAmount) {
				log.Error(ctx, "proposing rotation", "error", err)
			}
			continue
		}

		action, err := coordinator.Propose(ctx, treasuryDomain.ActionRotation, rotation.ID)
		if err != nil {
			log.Error(ctx, "opening rotation action", "rotation", rotation.ID, "error", err)
			if err := ledger.Release(ctx, rotation.ID, treasuryDomain.RotationRejected); err != nil {
				log.Error(ctx, "releasing orphaned rotation", "rotation", rotation.ID, "error", err)
			}
			continue
		}
		pending[action.ID] = rotation.ID
	}
}

// feedCheck adapts a venue feed's state into a health check.
func feedCheck(feed feedsApp.VenueFeed) health.CheckFunc {
	return func(ctx context.Context) (bool, string) {
		state := feed.State()
		healthy := state == feedsDomain.FeedStreaming || state == feedsDomain.FeedSubscribed
		return healthy, string(state)
	}
}
