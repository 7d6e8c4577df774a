package app

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/venuelabs/crossarb/business/feeds/domain"
	"github.com/venuelabs/crossarb/internal/apperror"
	"github.com/venuelabs/crossarb/internal/logger"
	"github.com/venuelabs/crossarb/internal/scaled"
)

const aggregatorMeterName = "crossarb/feeds/aggregator"

// BestSpread is the cross-venue top of book for one pair.
type BestSpread struct {
	PairID   domain.PairID
	BestBid  scaled.Amount
	BidVenue domain.VenueID
	BestAsk  scaled.Amount
	AskVenue domain.VenueID
}

// CrossBps returns how far the best bid exceeds the best ask in basis
// points, the raw signal for cross-venue arbitrage. 0 when not crossed.
func (s BestSpread) CrossBps() int64 {
	if !s.BestAsk.IsPositive() || !s.BestBid.GreaterThan(s.BestAsk) {
		return 0
	}
	diff := s.BestBid.Raw()
	diff.Sub(diff, s.BestAsk.Raw())
	diff.Mul(diff, bpsDenominator)
	diff.Div(diff, s.BestAsk.Raw())
	return diff.Int64()
}

// aggregatorMetrics holds OTEL metric instruments.
type aggregatorMetrics struct {
	quotesApplied   metric.Int64Counter
	poolsApplied    metric.Int64Counter
	staleDropped    metric.Int64Counter
	orderingDrops   metric.Int64Counter
	snapshotsServed metric.Int64Counter
}

// LiquidityAggregator keeps the latest quote per (venue, pair) and the
// latest pool snapshot per address. A single consumer goroutine applies
// updates; snapshot reads are safe for any number of concurrent readers.
type LiquidityAggregator struct {
	staleAfter time.Duration
	log        logger.LoggerInterface
	metrics    *aggregatorMetrics

	mu     sync.RWMutex
	quotes map[domain.PairID]map[domain.VenueID]domain.VenueQuote
	pools  map[domain.PairID]map[common.Address]domain.PoolState
}

// NewLiquidityAggregator creates an aggregator whose reads exclude
// quotes older than staleAfter.
func NewLiquidityAggregator(staleAfter time.Duration, log logger.LoggerInterface) (*LiquidityAggregator, error) {
	a := &LiquidityAggregator{
		staleAfter: staleAfter,
		log:        log,
		quotes:     make(map[domain.PairID]map[domain.VenueID]domain.VenueQuote),
		pools:      make(map[domain.PairID]map[common.Address]domain.PoolState),
	}
	if err := a.initMetrics(); err != nil {
		return nil, err
	}
	return a, nil
}

// initMetrics initializes OTEL metric instruments.
func (a *LiquidityAggregator) initMetrics() error {
	meter := otel.Meter(aggregatorMeterName)
	var err error

	a.metrics = &aggregatorMetrics{}

	a.metrics.quotesApplied, err = meter.Int64Counter(
		"aggregator_quotes_applied_total",
		metric.WithDescription("Venue quotes applied to the read model"),
		metric.WithUnit("{quote}"),
	)
	if err != nil {
		return err
	}

	a.metrics.poolsApplied, err = meter.Int64Counter(
		"aggregator_pools_applied_total",
		metric.WithDescription("Pool snapshots applied to the read model"),
		metric.WithUnit("{snapshot}"),
	)
	if err != nil {
		return err
	}

	a.metrics.staleDropped, err = meter.Int64Counter(
		"aggregator_stale_quotes_total",
		metric.WithDescription("Quotes excluded from snapshots for staleness"),
		metric.WithUnit("{quote}"),
	)
	if err != nil {
		return err
	}

	a.metrics.orderingDrops, err = meter.Int64Counter(
		"aggregator_out_of_order_total",
		metric.WithDescription("Updates dropped for stale sequence numbers"),
		metric.WithUnit("{update}"),
	)
	if err != nil {
		return err
	}

	a.metrics.snapshotsServed, err = meter.Int64Counter(
		"aggregator_snapshots_total",
		metric.WithDescription("Snapshot reads served"),
		metric.WithUnit("{snapshot}"),
	)
	return err
}

// Run consumes feed updates until ctx is cancelled or the channel
// closes. It is the single writer path into the read model.
func (a *LiquidityAggregator) Run(ctx context.Context, updates <-chan Update) error {
	for {
		select {
		case <-ctx.Done():
			a.log.Info(ctx, "aggregator stopping", "reason", ctx.Err())
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				a.log.Info(ctx, "aggregator updates channel closed")
				return nil
			}
			switch {
			case u.Quote != nil:
				a.ApplyQuote(ctx, *u.Quote)
			case u.Pool != nil:
				a.ApplyPool(ctx, *u.Pool)
			}
		}
	}
}

// ApplyQuote stores the quote unless a newer one from the same venue is
// already present. Sequenced quotes order by sequence; unsequenced ones
// (REST snapshots) order by observation time, so a late snapshot never
// clobbers a fresher stream quote.
func (a *LiquidityAggregator) ApplyQuote(ctx context.Context, q domain.VenueQuote) {
	a.mu.Lock()
	byVenue, ok := a.quotes[q.PairID]
	if !ok {
		byVenue = make(map[domain.VenueID]domain.VenueQuote)
		a.quotes[q.PairID] = byVenue
	}
	if prev, ok := byVenue[q.VenueID]; ok && quoteSupersededBy(q, prev) {
		a.mu.Unlock()
		a.metrics.orderingDrops.Add(ctx, 1, metric.WithAttributes(
			attribute.String("venue", string(q.VenueID))))
		return
	}
	byVenue[q.VenueID] = q
	a.mu.Unlock()

	a.metrics.quotesApplied.Add(ctx, 1, metric.WithAttributes(
		attribute.String("venue", string(q.VenueID)),
		attribute.String("pair", string(q.PairID))))
}

// ApplyPool stores the pool snapshot unless an equal or newer block is
// already present for the same address.
func (a *LiquidityAggregator) ApplyPool(ctx context.Context, p domain.PoolState) {
	pair := p.PairID()

	a.mu.Lock()
	byAddr, ok := a.pools[pair]
	if !ok {
		byAddr = make(map[common.Address]domain.PoolState)
		a.pools[pair] = byAddr
	}
	if prev, ok := byAddr[p.Address]; ok && p.Block != 0 && p.Block <= prev.Block {
		a.mu.Unlock()
		a.metrics.orderingDrops.Add(ctx, 1, metric.WithAttributes(
			attribute.String("venue", string(domain.VenueEVM))))
		return
	}
	byAddr[p.Address] = p
	a.mu.Unlock()

	a.metrics.poolsApplied.Add(ctx, 1, metric.WithAttributes(
		attribute.String("pair", string(pair))))
}

// Snapshot returns all non-stale quotes for the pair, ordered by venue
// for deterministic iteration. Stale quotes are excluded at read time,
// never pruned, so a recovered feed is usable immediately.
func (a *LiquidityAggregator) Snapshot(ctx context.Context, pairID domain.PairID) []domain.VenueQuote {
	now := time.Now()

	a.mu.RLock()
	byVenue := a.quotes[pairID]
	fresh := make([]domain.VenueQuote, 0, len(byVenue))
	stale := 0
	for _, q := range byVenue {
		if q.IsStale(now, a.staleAfter) {
			stale++
			continue
		}
		fresh = append(fresh, q)
	}
	a.mu.RUnlock()

	sort.Slice(fresh, func(i, j int) bool { return fresh[i].VenueID < fresh[j].VenueID })

	a.metrics.snapshotsServed.Add(ctx, 1)
	if stale > 0 {
		a.metrics.staleDropped.Add(ctx, int64(stale))
	}
	return fresh
}

// Pools returns all non-stale pool snapshots for the pair, ordered by
// address.
func (a *LiquidityAggregator) Pools(ctx context.Context, pairID domain.PairID) []domain.PoolState {
	now := time.Now()

	a.mu.RLock()
	byAddr := a.pools[pairID]
	fresh := make([]domain.PoolState, 0, len(byAddr))
	for _, p := range byAddr {
		if p.IsStale(now, a.staleAfter) {
			continue
		}
		fresh = append(fresh, p)
	}
	a.mu.RUnlock()

	sort.Slice(fresh, func(i, j int) bool {
		return fresh[i].Address.Cmp(fresh[j].Address) < 0
	})
	return fresh
}

// AllPools returns every non-stale pool snapshot across pairs.
func (a *LiquidityAggregator) AllPools(ctx context.Context) []domain.PoolState {
	now := time.Now()

	a.mu.RLock()
	var fresh []domain.PoolState
	for _, byAddr := range a.pools {
		for _, p := range byAddr {
			if p.IsStale(now, a.staleAfter) {
				continue
			}
			fresh = append(fresh, p)
		}
	}
	a.mu.RUnlock()

	sort.Slice(fresh, func(i, j int) bool {
		return fresh[i].Address.Cmp(fresh[j].Address) < 0
	})
	return fresh
}

// BestSpread returns the maximum bid and minimum ask across venues for
// the pair. On-chain pools participate through their implied quotes, so
// exchange/pool differentials surface here without a separate path.
// Fails with NoQuotes when no venue has a fresh two-sided quote.
func (a *LiquidityAggregator) BestSpread(ctx context.Context, pairID domain.PairID) (BestSpread, error) {
	quotes := a.Snapshot(ctx, pairID)
	for _, p := range a.Pools(ctx, pairID) {
		if q, ok := p.ImpliedQuote(); ok {
			quotes = append(quotes, q)
		}
	}

	best := BestSpread{PairID: pairID}
	for _, q := range quotes {
		if !q.BidPrice.IsPositive() || !q.AskPrice.IsPositive() {
			continue
		}
		if best.BidVenue == "" || q.BidPrice.GreaterThan(best.BestBid) {
			best.BestBid = q.BidPrice
			best.BidVenue = q.VenueID
		}
		if best.AskVenue == "" || q.AskPrice.LessThan(best.BestAsk) {
			best.BestAsk = q.AskPrice
			best.AskVenue = q.VenueID
		}
	}
	if best.BidVenue == "" || best.AskVenue == "" {
		return BestSpread{}, apperror.New(apperror.CodeNoQuotes,
			apperror.WithContext(string(pairID)))
	}
	return best, nil
}

// quoteSupersededBy reports whether prev already covers q.
func quoteSupersededBy(q, prev domain.VenueQuote) bool {
	if q.Sequence != 0 {
		return q.Sequence <= prev.Sequence
	}
	return !q.ObservedAt.After(prev.ObservedAt)
}

var bpsDenominator = big.NewInt(scaled.BpsDenominator)
