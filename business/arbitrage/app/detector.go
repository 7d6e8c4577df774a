package app

import (
	"context"
	"math/big"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/venuelabs/crossarb/business/arbitrage/domain"
	feedsDomain "github.com/venuelabs/crossarb/business/feeds/domain"
	"github.com/venuelabs/crossarb/internal/logger"
	"github.com/venuelabs/crossarb/internal/scaled"
)

const (
	detectorTracerName = "arbitrage-detector"
	detectorMeterName  = "arbitrage-detector"
)

// DetectorConfig holds detection thresholds.
type DetectorConfig struct {
	Pairs        []feedsDomain.PairID
	MinSpreadBps int64
	MinProfitBps int64
	FixedCost    scaled.Amount // per-trade cost in the starting token
	MaxHops      int
	ProbeSize    scaled.Amount // trade size used to evaluate paths

	// Taker fees per off-chain venue; on-chain hops carry their fee in
	// the pool snapshot.
	VenueFeeBps map[feedsDomain.VenueID]int64
}

// DefaultDetectorConfig returns sensible defaults for the given pairs.
func DefaultDetectorConfig(pairs []feedsDomain.PairID) DetectorConfig {
	return DetectorConfig{
		Pairs:        pairs,
		MinSpreadBps: 10,
		MinProfitBps: 5,
		FixedCost:    scaled.Zero(),
		MaxHops:      4,
		ProbeSize:    scaled.FromUnits(1),
		VenueFeeBps: map[feedsDomain.VenueID]int64{
			feedsDomain.VenueBinance: 10,
		},
	}
}

// detectorMetrics holds OTEL metric instruments.
type detectorMetrics struct {
	pathsExamined      metric.Int64Counter
	duplicatesSkipped  metric.Int64Counter
	opportunitiesFound metric.Int64Counter
	unprofitablePaths  metric.Int64Counter
}

// Detector finds cycle and cross-venue opportunities over aggregator
// snapshots. It is a read-only consumer and never blocks feed ingestion.
type Detector struct {
	config DetectorConfig
	market MarketView
	logger logger.LoggerInterface

	tracer  trace.Tracer
	metrics *detectorMetrics
}

// NewDetector creates a detector reading from market.
func NewDetector(market MarketView, cfg DetectorConfig, log logger.LoggerInterface) (*Detector, error) {
	d := &Detector{
		config: cfg,
		market: market,
		logger: log,
		tracer: otel.Tracer(detectorTracerName),
	}
	if err := d.initMetrics(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Detector) initMetrics() error {
	meter := otel.Meter(detectorMeterName)
	var err error

	d.metrics = &detectorMetrics{}

	d.metrics.pathsExamined, err = meter.Int64Counter(
		"detector_paths_examined_total",
		metric.WithDescription("Candidate paths evaluated"),
		metric.WithUnit("{path}"),
	)
	if err != nil {
		return err
	}

	d.metrics.duplicatesSkipped, err = meter.Int64Counter(
		"detector_duplicates_skipped_total",
		metric.WithDescription("Cycles skipped as rotations of an already seen pool set"),
		metric.WithUnit("{path}"),
	)
	if err != nil {
		return err
	}

	d.metrics.opportunitiesFound, err = meter.Int64Counter(
		"detector_opportunities_total",
		metric.WithDescription("Opportunities over the profit threshold"),
		metric.WithUnit("{opportunity}"),
	)
	if err != nil {
		return err
	}

	d.metrics.unprofitablePaths, err = meter.Int64Counter(
		"detector_unprofitable_paths_total",
		metric.WithDescription("Paths evaluated below the profit threshold"),
		metric.WithUnit("{path}"),
	)
	return err
}

// Detect runs one detection pass and returns all opportunities over the
// configured thresholds. A bad quote or degenerate pool aborts only its
// own candidate, never the batch.
func (d *Detector) Detect(ctx context.Context) []domain.Opportunity {
	ctx, span := d.tracer.Start(ctx, "detector.detect")
	defer span.End()

	var found []domain.Opportunity
	for _, pair := range d.config.Pairs {
		if opp, ok := d.FindCrossVenue(ctx, pair); ok {
			found = append(found, opp)
		}
	}
	found = append(found, d.FindCycles(ctx)...)

	span.SetAttributes(attribute.Int("opportunities", len(found)))
	return found
}

// FindCrossVenue checks whether the best bid across venues exceeds the
// best ask by enough to cover both venues' taker fees plus thresholds.
func (d *Detector) FindCrossVenue(ctx context.Context, pair feedsDomain.PairID) (domain.Opportunity, bool) {
	best, err := d.market.BestSpread(ctx, pair)
	if err != nil {
		d.logger.Debug(ctx, "no spread for pair", "pair", pair, "error", err)
		return domain.Opportunity{}, false
	}

	d.metrics.pathsExamined.Add(ctx, 1)

	if best.BidVenue == best.AskVenue || best.CrossBps() < d.config.MinSpreadBps {
		d.metrics.unprofitablePaths.Add(ctx, 1)
		return domain.Opportunity{}, false
	}

	probe := d.config.ProbeSize

	// Buy base at the ask venue, net of its taker fee.
	spendable := probe.MulBps(scaled.BpsDenominator - d.venueFee(best.AskVenue))
	baseRaw := spendable.Raw()
	baseRaw.Mul(baseRaw, scaleUnit)
	baseRaw.Div(baseRaw, best.BestAsk.Raw())

	// Sell at the bid venue, net of its taker fee.
	outRaw := new(big.Int).Mul(baseRaw, best.BestBid.Raw())
	outRaw.Div(outRaw, scaleUnit)
	final := scaled.New(outRaw).MulBps(scaled.BpsDenominator - d.venueFee(best.BidVenue))

	gross, err := final.Sub(probe)
	if err != nil {
		d.metrics.unprofitablePaths.Add(ctx, 1)
		return domain.Opportunity{}, false
	}
	net, err := gross.Sub(d.config.FixedCost)
	if err != nil {
		d.metrics.unprofitablePaths.Add(ctx, 1)
		return domain.Opportunity{}, false
	}

	profitBps := scaled.ProfitBps(probe, probe.Add(net))
	if profitBps < d.config.MinProfitBps {
		d.metrics.unprofitablePaths.Add(ctx, 1)
		return domain.Opportunity{}, false
	}

	path := []domain.PathStep{
		{
			Venue:    best.AskVenue,
			Protocol: string(best.AskVenue),
			TokenIn:  pair.Quote(),
			TokenOut: pair.Base(),
			FeeBps:   d.venueFee(best.AskVenue),
		},
		{
			Venue:    best.BidVenue,
			Protocol: string(best.BidVenue),
			TokenIn:  pair.Base(),
			TokenOut: pair.Quote(),
			FeeBps:   d.venueFee(best.BidVenue),
		},
	}

	opp := domain.NewOpportunity(domain.KindCrossVenue, pair, path)
	opp.TradeSize = probe
	opp.GrossValue = gross
	opp.Cost = d.config.FixedCost
	opp.ProfitBps = profitBps
	opp.TimeToRealize = 5 * time.Second
	opp.Risk = domain.ComputeRisk(domain.RiskInput{
		Protocols: []string{string(best.AskVenue), string(best.BidVenue)},
		Hops:      2,
	})

	d.metrics.opportunitiesFound.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(domain.KindCrossVenue)),
		attribute.String("pair", string(pair))))

	return opp, true
}

// FindCycles runs a depth-first search over the pool graph for cycles
// of 2 to MaxHops hops whose simulated output beats the thresholds.
// Cycles visiting the same pool set in a different rotation are
// deduplicated by pool signature.
func (d *Detector) FindCycles(ctx context.Context) []domain.Opportunity {
	pools := d.market.AllPools(ctx)
	if len(pools) == 0 {
		return nil
	}

	// token -> outgoing edges
	edges := make(map[string][]cycleEdge)
	tokens := make(map[string]bool)
	for i := range pools {
		p := pools[i]
		if !p.HasLiquidity() {
			continue
		}
		edges[p.Token0] = append(edges[p.Token0], cycleEdge{pool: &pools[i], tokenOut: p.Token1})
		edges[p.Token1] = append(edges[p.Token1], cycleEdge{pool: &pools[i], tokenOut: p.Token0})
		tokens[p.Token0] = true
		tokens[p.Token1] = true
	}

	search := cycleSearch{
		detector: d,
		edges:    edges,
		seen:     make(map[string]bool),
	}
	for token := range tokens {
		search.walk(ctx, token, token, d.config.ProbeSize, nil, nil)
	}
	return search.found
}

type cycleEdge struct {
	pool     *feedsDomain.PoolState
	tokenOut string
}

type cycleSearch struct {
	detector *Detector
	edges    map[string][]cycleEdge
	seen     map[string]bool // pool signatures already evaluated
	found    []domain.Opportunity
}

// walk extends the current path from token, closing a cycle whenever it
// returns to start with at least two hops.
func (s *cycleSearch) walk(ctx context.Context, start, token string, amount scaled.Amount, path []domain.PathStep, used []*feedsDomain.PoolState) {
	if len(path) >= s.detector.config.MaxHops {
		return
	}

	for _, edge := range s.edges[token] {
		if containsPool(used, edge.pool) {
			continue
		}

		reserveIn, reserveOut, ok := edge.pool.ReservesFor(token)
		if !ok {
			continue
		}
		out, err := scaled.SwapOutput(amount, reserveIn, reserveOut, edge.pool.FeeBps)
		if err != nil {
			// Degenerate pool: skip this candidate only.
			continue
		}

		step := domain.PathStep{
			Venue:    feedsDomain.VenueEVM,
			Pool:     edge.pool.Address.Hex(),
			Protocol: edge.pool.Protocol,
			TokenIn:  token,
			TokenOut: edge.tokenOut,
			FeeBps:   edge.pool.FeeBps,
		}
		nextPath := append(path[:len(path):len(path)], step)
		nextUsed := append(used[:len(used):len(used)], edge.pool)

		if edge.tokenOut == start && len(nextPath) >= 2 {
			s.closeCycle(ctx, start, out, nextPath, nextUsed)
			continue
		}
		s.walk(ctx, start, edge.tokenOut, out, nextPath, nextUsed)
	}
}

func (s *cycleSearch) closeCycle(ctx context.Context, start string, final scaled.Amount, path []domain.PathStep, used []*feedsDomain.PoolState) {
	d := s.detector

	// A pool set is claimed only by an emitted cycle; an unprofitable
	// rotation must not mask a profitable one through the same pools.
	signature := domain.PathSignature(path)
	if s.seen[signature] {
		d.metrics.duplicatesSkipped.Add(ctx, 1)
		return
	}

	d.metrics.pathsExamined.Add(ctx, 1)

	probe := d.config.ProbeSize
	gross, err := final.Sub(probe)
	if err != nil {
		d.metrics.unprofitablePaths.Add(ctx, 1)
		return
	}
	net, err := gross.Sub(d.config.FixedCost)
	if err != nil {
		d.metrics.unprofitablePaths.Add(ctx, 1)
		return
	}
	profitBps := scaled.ProfitBps(probe, probe.Add(net))
	if profitBps < d.config.MinProfitBps {
		d.metrics.unprofitablePaths.Add(ctx, 1)
		return
	}

	protocols := make([]string, 0, len(path))
	for _, step := range path {
		protocols = append(protocols, step.Protocol)
	}

	pair := used[0].PairID()
	opp := domain.NewOpportunity(domain.KindCycle, pair, path)
	opp.TradeSize = probe
	opp.GrossValue = gross
	opp.Cost = d.config.FixedCost
	opp.ProfitBps = profitBps
	opp.TimeToRealize = time.Duration(len(path)) * 12 * time.Second // one block per hop
	opp.Risk = domain.ComputeRisk(domain.RiskInput{
		Protocols:   protocols,
		Hops:        len(path),
		SlippageBps: d.maxImpactBps(probe, used, start),
	})

	d.metrics.opportunitiesFound.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(domain.KindCycle)),
		attribute.String("pair", string(pair))))

	s.seen[signature] = true
	s.found = append(s.found, opp)
}

// maxImpactBps returns the worst single-hop price impact for the probe
// size, the slippage input to the risk model.
func (d *Detector) maxImpactBps(probe scaled.Amount, used []*feedsDomain.PoolState, start string) int64 {
	token := start
	amount := probe
	var worst int64
	for _, pool := range used {
		reserveIn, reserveOut, ok := pool.ReservesFor(token)
		if !ok {
			break
		}
		impact, err := scaled.PriceImpactBps(amount, reserveIn, reserveOut, pool.FeeBps)
		if err == nil && impact > worst {
			worst = impact
		}
		out, err := scaled.SwapOutput(amount, reserveIn, reserveOut, pool.FeeBps)
		if err != nil {
			break
		}
		amount = out
		token = pool.Other(token)
	}
	return worst
}

func (d *Detector) venueFee(venue feedsDomain.VenueID) int64 {
	return d.config.VenueFeeBps[venue]
}

func containsPool(used []*feedsDomain.PoolState, p *feedsDomain.PoolState) bool {
	for _, u := range used {
		if u.Address == p.Address {
			return true
		}
	}
	return false
}

var scaleUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(scaled.Decimals), nil)
