package evmpool

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/venuelabs/crossarb/business/feeds/app"
	"github.com/venuelabs/crossarb/business/feeds/domain"
	"github.com/venuelabs/crossarb/internal/apperror"
	"github.com/venuelabs/crossarb/internal/asset"
	"github.com/venuelabs/crossarb/internal/cache"
	"github.com/venuelabs/crossarb/internal/circuitbreaker"
	"github.com/venuelabs/crossarb/internal/logger"
	"github.com/venuelabs/crossarb/internal/ratelimit"
	"github.com/venuelabs/crossarb/internal/scaled"
)

const (
	tracerName = "evmpool"
	meterName  = "evmpool"
)

// Ensure Feed implements VenueFeed.
var _ app.VenueFeed = (*Feed)(nil)

// ChainReader is the subset of the Ethereum RPC surface the feed uses.
// *ethclient.Client satisfies it.
type ChainReader interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// PoolConfig identifies one pool to watch.
type PoolConfig struct {
	Address  common.Address
	Protocol string
	FeeBps   int64
}

// Config holds configuration for the on-chain pool feed.
type Config struct {
	Pools        []PoolConfig
	ChainID      uint64
	PollInterval time.Duration
	RPCRateLimit int // requests per second
	MaxFailures  int // consecutive failed polls before terminal failure, 0 = unbounded
}

// DefaultConfig returns sensible defaults for the given pools.
func DefaultConfig(pools []PoolConfig) Config {
	return Config{
		Pools:        pools,
		ChainID:      1,
		PollInterval: 12 * time.Second,
		RPCRateLimit: 10,
		MaxFailures:  20,
	}
}

// poolTokens is resolved token metadata for one pool, cached so the
// token0/token1 calls run once per pool.
type poolTokens struct {
	symbol0   string
	symbol1   string
	decimals0 uint8
	decimals1 uint8
}

// feedMetrics holds OTEL metric instruments.
type feedMetrics struct {
	pollsTotal     metric.Int64Counter
	pollErrors     metric.Int64Counter
	snapshotsTotal metric.Int64Counter
	pollLatency    metric.Float64Histogram
}

// Feed polls AMM pool reserves once per interval and publishes
// immutable PoolState snapshots to the aggregator channel.
type Feed struct {
	config  Config
	client  ChainReader
	pairABI abi.ABI

	registry   *asset.Registry
	limiter    *ratelimit.Limiter
	cb         *circuitbreaker.CircuitBreaker[[]byte]
	tokenCache *cache.Cache[common.Address, poolTokens]

	updates chan<- app.Update
	tracker *domain.FeedTracker
	logger  logger.LoggerInterface

	tracer  trace.Tracer
	metrics *feedMetrics
}

// NewFeed creates a pool feed publishing into updates. onEvent observes
// lifecycle transitions and may be nil.
func NewFeed(client ChainReader, cfg Config, updates chan<- app.Update, log logger.LoggerInterface, onEvent func(domain.FeedEvent)) (*Feed, error) {
	if len(cfg.Pools) == 0 {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("evmpool: no pools configured"))
	}
	for _, p := range cfg.Pools {
		if p.FeeBps < 0 || p.FeeBps >= scaled.BpsDenominator {
			return nil, apperror.New(apperror.CodeConfigurationError,
				apperror.WithContext(fmt.Sprintf("evmpool: pool %s fee %d out of range", p.Address.Hex(), p.FeeBps)))
		}
	}

	parsedABI, err := abi.JSON(strings.NewReader(PairABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pair ABI: %w", err)
	}

	f := &Feed{
		config:     cfg,
		client:     client,
		pairABI:    parsedABI,
		registry:   asset.DefaultRegistry(),
		limiter:    ratelimit.NewWithBurst(float64(cfg.RPCRateLimit), cfg.RPCRateLimit),
		tokenCache: cache.New[common.Address, poolTokens](24 * time.Hour),
		updates:    updates,
		tracker:    domain.NewFeedTracker(domain.VenueEVM, onEvent),
		logger:     log,
		tracer:     otel.Tracer(tracerName),
	}

	f.cb = circuitbreaker.New[[]byte](circuitbreaker.DefaultConfig("evmpool-rpc"))

	if err := f.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	return f, nil
}

func (f *Feed) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	f.metrics = &feedMetrics{}

	f.metrics.pollsTotal, err = meter.Int64Counter(
		"evmpool_polls_total",
		metric.WithDescription("Reserve poll cycles"),
	)
	if err != nil {
		return err
	}

	f.metrics.pollErrors, err = meter.Int64Counter(
		"evmpool_poll_errors_total",
		metric.WithDescription("Failed pool reads"),
	)
	if err != nil {
		return err
	}

	f.metrics.snapshotsTotal, err = meter.Int64Counter(
		"evmpool_snapshots_total",
		metric.WithDescription("Pool snapshots published"),
	)
	if err != nil {
		return err
	}

	f.metrics.pollLatency, err = meter.Float64Histogram(
		"evmpool_poll_latency_ms",
		metric.WithDescription("Poll cycle latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	return err
}

// Venue identifies the feed.
func (f *Feed) Venue() domain.VenueID { return domain.VenueEVM }

// State returns the feed's lifecycle state.
func (f *Feed) State() domain.FeedState { return f.tracker.State() }

// Run polls until ctx is cancelled or too many consecutive cycles fail.
func (f *Feed) Run(ctx context.Context) error {
	f.tracker.Transition(domain.FeedConnecting, nil)

	ticker := time.NewTicker(f.config.PollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		if err := f.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			f.logger.Warn(ctx, "pool poll failed", "consecutive", failures, "error", err)
			if f.config.MaxFailures > 0 && failures >= f.config.MaxFailures {
				f.tracker.Fail(err)
				return apperror.New(apperror.CodeFeedFailed,
					apperror.WithCause(err),
					apperror.WithContext("evmpool: poll failure budget exhausted"))
			}
			f.tracker.Transition(domain.FeedDisconnected, err)
			f.tracker.Transition(domain.FeedConnecting, nil)
		} else {
			failures = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// poll reads every configured pool at the current head block.
func (f *Feed) poll(ctx context.Context) error {
	ctx, span := f.tracer.Start(ctx, "evmpool.poll")
	defer span.End()

	start := time.Now()
	f.metrics.pollsTotal.Add(ctx, 1)

	if err := f.limiter.Wait(ctx); err != nil {
		return err
	}
	block, err := f.client.BlockNumber(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "block number fetch failed")
		f.metrics.pollErrors.Add(ctx, 1)
		return apperror.New(apperror.CodeRPCCallFailed, apperror.WithCause(err))
	}
	span.SetAttributes(attribute.Int64("block", int64(block)))

	f.tracker.Transition(domain.FeedSubscribed, nil)

	var firstErr error
	published := 0
	for _, pool := range f.config.Pools {
		state, err := f.readPool(ctx, pool, block)
		if err != nil {
			f.metrics.pollErrors.Add(ctx, 1)
			f.logger.Warn(ctx, "pool read failed", "pool", pool.Address.Hex(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		select {
		case f.updates <- app.Update{Pool: &state}:
			published++
			f.metrics.snapshotsTotal.Add(ctx, 1, metric.WithAttributes(
				attribute.String("pair", string(state.PairID()))))
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.metrics.pollLatency.Record(ctx, float64(time.Since(start).Milliseconds()))

	if published == 0 && firstErr != nil {
		span.SetStatus(codes.Error, "all pool reads failed")
		return firstErr
	}
	if published > 0 {
		f.tracker.Transition(domain.FeedStreaming, nil)
	}
	span.SetStatus(codes.Ok, "poll complete")
	return nil
}

// readPool fetches reserves for one pool and builds a snapshot.
func (f *Feed) readPool(ctx context.Context, pool PoolConfig, block uint64) (domain.PoolState, error) {
	tokens, err := f.resolveTokens(ctx, pool.Address)
	if err != nil {
		return domain.PoolState{}, err
	}

	raw, err := f.call(ctx, pool.Address, "getReserves")
	if err != nil {
		return domain.PoolState{}, err
	}

	out, err := f.pairABI.Unpack("getReserves", raw)
	if err != nil || len(out) < 2 {
		return domain.PoolState{}, apperror.New(apperror.CodeFeedParseError,
			apperror.WithCause(err),
			apperror.WithContext("evmpool: getReserves decode"))
	}
	r0, ok0 := out[0].(*big.Int)
	r1, ok1 := out[1].(*big.Int)
	if !ok0 || !ok1 {
		return domain.PoolState{}, apperror.New(apperror.CodeFeedParseError,
			apperror.WithContext("evmpool: unexpected reserve types"))
	}

	reserve0, err := scaled.FromTokenUnits(r0, tokens.decimals0)
	if err != nil {
		return domain.PoolState{}, err
	}
	reserve1, err := scaled.FromTokenUnits(r1, tokens.decimals1)
	if err != nil {
		return domain.PoolState{}, err
	}

	return domain.PoolState{
		Address:    pool.Address,
		Protocol:   pool.Protocol,
		Token0:     tokens.symbol0,
		Token1:     tokens.symbol1,
		Reserve0:   reserve0,
		Reserve1:   reserve1,
		FeeBps:     pool.FeeBps,
		Block:      block,
		ObservedAt: time.Now(),
	}, nil
}

// resolveTokens reads and caches the pool's token metadata.
func (f *Feed) resolveTokens(ctx context.Context, pool common.Address) (poolTokens, error) {
	if cached, ok := f.tokenCache.Get(ctx, pool); ok {
		return cached, nil
	}

	addr0, err := f.callAddress(ctx, pool, "token0")
	if err != nil {
		return poolTokens{}, err
	}
	addr1, err := f.callAddress(ctx, pool, "token1")
	if err != nil {
		return poolTokens{}, err
	}

	tokens := poolTokens{
		symbol0:   f.symbolFor(addr0),
		symbol1:   f.symbolFor(addr1),
		decimals0: f.decimalsFor(addr0),
		decimals1: f.decimalsFor(addr1),
	}
	f.tokenCache.Set(ctx, pool, tokens, 0)
	return tokens, nil
}

func (f *Feed) symbolFor(addr common.Address) string {
	if t, ok := f.registry.Token(f.config.ChainID, addr); ok {
		return t.Symbol
	}
	// Unknown token: fall back to a short address form.
	return strings.ToUpper(addr.Hex()[2:10])
}

func (f *Feed) decimalsFor(addr common.Address) uint8 {
	if t, ok := f.registry.Token(f.config.ChainID, addr); ok {
		return t.Decimals
	}
	return 18
}

func (f *Feed) callAddress(ctx context.Context, pool common.Address, method string) (common.Address, error) {
	raw, err := f.call(ctx, pool, method)
	if err != nil {
		return common.Address{}, err
	}
	out, err := f.pairABI.Unpack(method, raw)
	if err != nil || len(out) < 1 {
		return common.Address{}, apperror.New(apperror.CodeFeedParseError,
			apperror.WithCause(err),
			apperror.WithContext("evmpool: "+method+" decode"))
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, apperror.New(apperror.CodeFeedParseError,
			apperror.WithContext("evmpool: unexpected "+method+" type"))
	}
	return addr, nil
}

// call runs one eth_call through the rate limiter and circuit breaker.
func (f *Feed) call(ctx context.Context, to common.Address, method string) ([]byte, error) {
	data, err := f.pairABI.Pack(method)
	if err != nil {
		return nil, err
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return f.cb.Execute(func() ([]byte, error) {
		raw, err := f.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
		if err != nil {
			return nil, apperror.New(apperror.CodeRPCCallFailed,
				apperror.WithCause(err),
				apperror.WithContext(method))
		}
		return raw, nil
	})
}
