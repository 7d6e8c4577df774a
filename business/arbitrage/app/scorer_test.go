package app

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venuelabs/crossarb/business/arbitrage/domain"
	"github.com/venuelabs/crossarb/internal/scaled"
)

func makeOpp(t *testing.T, gross int64, risk float64, ttr time.Duration) domain.Opportunity {
	t.Helper()
	opp := domain.NewOpportunity(domain.KindCycle, "ETH/USDC", []domain.PathStep{
		{Venue: "evm", Pool: "0xa", TokenIn: "ETH", TokenOut: "USDC", FeeBps: 30},
		{Venue: "evm", Pool: "0xb", TokenIn: "USDC", TokenOut: "ETH", FeeBps: 30},
	})
	opp.GrossValue = scaled.FromUnits(gross)
	opp.Cost = scaled.Zero()
	opp.TradeSize = scaled.FromUnits(10)
	opp.Risk = risk
	opp.TimeToRealize = ttr
	return opp
}

func TestRankPrefersLowerRiskAtEqualValue(t *testing.T) {
	safe := makeOpp(t, 100, 0.1, 24*time.Second)
	risky := makeOpp(t, 100, 0.2, 24*time.Second)

	ranked := NewScorer(DefaultScorerConfig()).Rank([]domain.Opportunity{risky, safe})
	require.Len(t, ranked, 2)
	assert.Equal(t, safe.ID, ranked[0].ID)
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, 2, ranked[1].Rank)
	for _, opp := range ranked {
		assert.Equal(t, domain.StatusScored, opp.Status)
		for _, criterion := range []string{
			CriterionValue, CriterionCost, CriterionRisk, CriterionTime, CriterionComplexity,
		} {
			assert.Contains(t, opp.Criteria, criterion)
		}
	}
}

func TestRankPrefersHigherValue(t *testing.T) {
	big := makeOpp(t, 500, 0.2, 24*time.Second)
	small := makeOpp(t, 50, 0.2, 24*time.Second)

	ranked := NewScorer(DefaultScorerConfig()).Rank([]domain.Opportunity{small, big})
	assert.Equal(t, big.ID, ranked[0].ID)
}

func TestRankTieBreaksOnDetectionTime(t *testing.T) {
	first := makeOpp(t, 100, 0.1, 24*time.Second)
	second := makeOpp(t, 100, 0.1, 24*time.Second)
	second.DetectedAt = first.DetectedAt.Add(time.Second)

	ranked := NewScorer(DefaultScorerConfig()).Rank([]domain.Opportunity{second, first})
	assert.Equal(t, first.ID, ranked[0].ID)
}

func TestRankDoesNotMutateInput(t *testing.T) {
	opps := []domain.Opportunity{
		makeOpp(t, 100, 0.1, 24*time.Second),
		makeOpp(t, 200, 0.2, 24*time.Second),
	}
	_ = NewScorer(DefaultScorerConfig()).Rank(opps)

	assert.Equal(t, domain.StatusIdentified, opps[0].Status)
	assert.Zero(t, opps[0].Rank)
}

func TestRankEmptyBatch(t *testing.T) {
	assert.Nil(t, NewScorer(DefaultScorerConfig()).Rank(nil))
}

func TestRankSingleOpportunity(t *testing.T) {
	// A batch of one has no peers to normalize against; it still gets
	// a score and rank 1 under either method.
	for _, method := range []string{MethodWeightedSum, MethodTOPSIS} {
		cfg := DefaultScorerConfig()
		cfg.Method = method

		ranked := NewScorer(cfg).Rank([]domain.Opportunity{makeOpp(t, 100, 0.1, 12*time.Second)})
		require.Len(t, ranked, 1)
		assert.Equal(t, 1, ranked[0].Rank)
	}
}

func TestTOPSISAgreesOnDominance(t *testing.T) {
	// Dominant alternative: more value, less risk, faster. Both methods
	// must put it first.
	dominant := makeOpp(t, 500, 0.1, 12*time.Second)
	dominated := makeOpp(t, 100, 0.3, 48*time.Second)
	middle := makeOpp(t, 250, 0.2, 24*time.Second)

	for _, method := range []string{MethodWeightedSum, MethodTOPSIS} {
		cfg := DefaultScorerConfig()
		cfg.Method = method

		ranked := NewScorer(cfg).Rank([]domain.Opportunity{dominated, middle, dominant})
		require.Len(t, ranked, 3)
		assert.Equal(t, dominant.ID, ranked[0].ID, method)
		assert.Equal(t, dominated.ID, ranked[2].ID, method)
	}
}

func TestTOPSISScoresBounded(t *testing.T) {
	cfg := DefaultScorerConfig()
	cfg.Method = MethodTOPSIS

	ranked := NewScorer(cfg).Rank([]domain.Opportunity{
		makeOpp(t, 500, 0.1, 12*time.Second),
		makeOpp(t, 100, 0.3, 48*time.Second),
	})
	for _, opp := range ranked {
		assert.GreaterOrEqual(t, opp.Score, 0.0)
		assert.LessOrEqual(t, opp.Score, 1.0)
	}
}

func TestNewScorerNormalizesWeights(t *testing.T) {
	cfg := ScorerConfig{Method: MethodWeightedSum, ValueWeight: 5, RiskWeight: 3, TimeWeight: 2}
	s := NewScorer(cfg)
	assert.InDelta(t, 0.5, s.config.ValueWeight, 1e-9)
	assert.InDelta(t, 0.3, s.config.RiskWeight, 1e-9)
	assert.InDelta(t, 0.2, s.config.TimeWeight, 1e-9)
	assert.Zero(t, s.config.CostWeight)
	assert.Zero(t, s.config.ComplexityWeight)
}

func TestRankPrefersLowerCostAtEqualGross(t *testing.T) {
	cheap := makeOpp(t, 100, 0.1, 24*time.Second)
	dear := makeOpp(t, 100, 0.1, 24*time.Second)
	dear.Cost = scaled.FromUnits(5)

	for _, method := range []string{MethodWeightedSum, MethodTOPSIS} {
		cfg := DefaultScorerConfig()
		cfg.Method = method

		ranked := NewScorer(cfg).Rank([]domain.Opportunity{dear, cheap})
		require.Len(t, ranked, 2)
		assert.Equal(t, cheap.ID, ranked[0].ID, method)
	}
}

func TestRankPrefersShorterPathAtEqualEconomics(t *testing.T) {
	direct := makeOpp(t, 100, 0.1, 24*time.Second)
	roundabout := makeOpp(t, 100, 0.1, 24*time.Second)
	roundabout.Path = append(roundabout.Path, domain.PathStep{
		Venue: "evm", Pool: "0xc", TokenIn: "ETH", TokenOut: "USDC", FeeBps: 30,
	})
	roundabout.Complexity = len(roundabout.Path)

	for _, method := range []string{MethodWeightedSum, MethodTOPSIS} {
		cfg := DefaultScorerConfig()
		cfg.Method = method

		ranked := NewScorer(cfg).Rank([]domain.Opportunity{roundabout, direct})
		require.Len(t, ranked, 2)
		assert.Equal(t, direct.ID, ranked[0].ID, method)
		assert.Equal(t, 2.0, ranked[0].Criteria[CriterionComplexity])
		assert.Equal(t, 3.0, ranked[1].Criteria[CriterionComplexity])
	}
}

func TestExpectedValue(t *testing.T) {
	opp := makeOpp(t, 100, 0.25, 10*time.Second)

	ev := NewScorer(DefaultScorerConfig()).ExpectedValue(opp)
	want := 100.0 * 0.75 / (1 + 10*0.01)
	assert.InDelta(t, want, ev, 1e-9)
}

func TestExpectedValueCertainInstant(t *testing.T) {
	opp := makeOpp(t, 100, 0, 0)
	assert.InDelta(t, 100.0, NewScorer(DefaultScorerConfig()).ExpectedValue(opp), 1e-9)
}

func TestSqrtDecimal(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"0", 0},
		{"1", 1},
		{"4", 2},
		{"2", math.Sqrt2},
		{"0.25", 0.5},
	}
	for _, tc := range cases {
		got, _ := sqrtDecimal(decimal.RequireFromString(tc.in)).Float64()
		assert.InDelta(t, tc.want, got, 1e-9, tc.in)
	}
}
