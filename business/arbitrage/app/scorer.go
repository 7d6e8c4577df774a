package app

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/venuelabs/crossarb/business/arbitrage/domain"
)

// Scoring methods.
const (
	MethodWeightedSum = "weighted_sum"
	MethodTOPSIS      = "topsis"
)

// Criterion names recorded on each scored opportunity.
const (
	CriterionValue      = "value"
	CriterionCost       = "cost"
	CriterionRisk       = "risk"
	CriterionTime       = "time"
	CriterionComplexity = "complexity"
)

const numCriteria = 5

// criterionBenefit marks which matrix columns are higher-is-better.
// Value is a benefit; cost, risk, time, and complexity all count
// against an opportunity.
var criterionBenefit = [numCriteria]bool{true, false, false, false, false}

// ScorerConfig holds ranking parameters.
type ScorerConfig struct {
	Method           string
	ValueWeight      float64
	CostWeight       float64
	RiskWeight       float64
	TimeWeight       float64
	ComplexityWeight float64
	DiscountRate     float64 // per-second decay applied by ExpectedValue
}

// DefaultScorerConfig returns the house weighting.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		Method:           MethodWeightedSum,
		ValueWeight:      0.35,
		CostWeight:       0.10,
		RiskWeight:       0.25,
		TimeWeight:       0.20,
		ComplexityWeight: 0.10,
		DiscountRate:     0.01,
	}
}

func (c ScorerConfig) weights() [numCriteria]float64 {
	return [numCriteria]float64{
		c.ValueWeight, c.CostWeight, c.RiskWeight, c.TimeWeight, c.ComplexityWeight,
	}
}

// Scorer scores and ranks opportunity batches. Scoring is relative to
// the batch: the same opportunity can score differently against
// different peers.
type Scorer struct {
	config ScorerConfig
}

// NewScorer creates a scorer.
func NewScorer(cfg ScorerConfig) *Scorer {
	total := cfg.ValueWeight + cfg.CostWeight + cfg.RiskWeight + cfg.TimeWeight + cfg.ComplexityWeight
	if total > 0 && total != 1 {
		cfg.ValueWeight /= total
		cfg.CostWeight /= total
		cfg.RiskWeight /= total
		cfg.TimeWeight /= total
		cfg.ComplexityWeight /= total
	}
	return &Scorer{config: cfg}
}

// Rank scores every opportunity and returns them ordered best first
// with 1-based ranks assigned. Ties on score break toward lower risk,
// then earlier detection. The input slice is not modified.
func (s *Scorer) Rank(opps []domain.Opportunity) []domain.Opportunity {
	if len(opps) == 0 {
		return nil
	}

	ranked := make([]domain.Opportunity, len(opps))
	copy(ranked, opps)

	matrix := s.buildCriteria(ranked)
	var scores []float64
	if s.config.Method == MethodTOPSIS && len(ranked) > 1 {
		scores = s.topsisScores(matrix)
	} else {
		scores = s.weightedSumScores(matrix)
	}

	for i := range ranked {
		ranked[i].Criteria = map[string]float64{
			CriterionValue:      matrix[i][0],
			CriterionCost:       matrix[i][1],
			CriterionRisk:       matrix[i][2],
			CriterionTime:       matrix[i][3],
			CriterionComplexity: matrix[i][4],
		}
		ranked[i].Score = scores[i]
		ranked[i].Status = domain.StatusScored
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].Risk != ranked[j].Risk {
			return ranked[i].Risk < ranked[j].Risk
		}
		return ranked[i].DetectedAt.Before(ranked[j].DetectedAt)
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// ExpectedValue returns the opportunity's net value in float units,
// discounted for risk and time to realization.
func (s *Scorer) ExpectedValue(opp domain.Opportunity) float64 {
	value, _ := opp.NetValue().ToDecimal().Float64()
	return value * (1 - opp.Risk) / (1 + opp.TimeToRealize.Seconds()*s.config.DiscountRate)
}

// buildCriteria produces the raw decision matrix, one row per
// opportunity: gross value, cost, risk, time to realize in seconds,
// and path complexity.
func (s *Scorer) buildCriteria(opps []domain.Opportunity) [][numCriteria]float64 {
	matrix := make([][numCriteria]float64, len(opps))
	for i, opp := range opps {
		value, _ := opp.GrossValue.ToDecimal().Float64()
		cost, _ := opp.Cost.ToDecimal().Float64()
		matrix[i] = [numCriteria]float64{
			value,
			cost,
			opp.Risk,
			opp.TimeToRealize.Seconds(),
			float64(opp.Complexity),
		}
	}
	return matrix
}

// weightedSumScores min-max normalizes each criterion over the batch
// and combines them; cost-direction criteria contribute inverted.
func (s *Scorer) weightedSumScores(matrix [][numCriteria]float64) []float64 {
	lo, hi := columnRanges(matrix)
	weights := s.config.weights()

	scores := make([]float64, len(matrix))
	for i, row := range matrix {
		for c := 0; c < numCriteria; c++ {
			norm := minMax(row[c], lo[c], hi[c])
			if !criterionBenefit[c] {
				norm = 1 - norm
			}
			scores[i] += weights[c] * norm
		}
	}
	return scores
}

// topsisScores ranks by relative closeness to the ideal alternative:
// vector-normalize each criterion, weight it, then compare distances to
// the best and worst observed profiles.
func (s *Scorer) topsisScores(matrix [][numCriteria]float64) []float64 {
	rawWeights := s.config.weights()
	var weights [numCriteria]decimal.Decimal
	for c := 0; c < numCriteria; c++ {
		weights[c] = decimal.NewFromFloat(rawWeights[c])
	}

	n := len(matrix)
	weighted := make([][numCriteria]decimal.Decimal, n)

	for c := 0; c < numCriteria; c++ {
		sumSq := decimal.Zero
		for i := 0; i < n; i++ {
			v := decimal.NewFromFloat(matrix[i][c])
			sumSq = sumSq.Add(v.Mul(v))
		}
		norm := sqrtDecimal(sumSq)
		for i := 0; i < n; i++ {
			v := decimal.NewFromFloat(matrix[i][c])
			if !norm.IsZero() {
				v = v.Div(norm)
			}
			weighted[i][c] = v.Mul(weights[c])
		}
	}

	var ideal, antiIdeal [numCriteria]decimal.Decimal
	for c := 0; c < numCriteria; c++ {
		best, worst := weighted[0][c], weighted[0][c]
		for i := 1; i < n; i++ {
			v := weighted[i][c]
			if v.GreaterThan(best) {
				best = v
			}
			if v.LessThan(worst) {
				worst = v
			}
		}
		if criterionBenefit[c] {
			ideal[c], antiIdeal[c] = best, worst
		} else {
			ideal[c], antiIdeal[c] = worst, best
		}
	}

	scores := make([]float64, n)
	for i := 0; i < n; i++ {
		dPlus, dMinus := decimal.Zero, decimal.Zero
		for c := 0; c < numCriteria; c++ {
			dp := weighted[i][c].Sub(ideal[c])
			dm := weighted[i][c].Sub(antiIdeal[c])
			dPlus = dPlus.Add(dp.Mul(dp))
			dMinus = dMinus.Add(dm.Mul(dm))
		}
		dPlusRoot := sqrtDecimal(dPlus)
		dMinusRoot := sqrtDecimal(dMinus)

		denom := dPlusRoot.Add(dMinusRoot)
		if denom.IsZero() {
			scores[i] = 0
			continue
		}
		scores[i], _ = dMinusRoot.Div(denom).Float64()
	}
	return scores
}

// sqrtDecimal computes a square root by Newton iteration, enough
// precision for score comparison.
func sqrtDecimal(d decimal.Decimal) decimal.Decimal {
	if d.Sign() <= 0 {
		return decimal.Zero
	}
	two := decimal.NewFromInt(2)
	x := d
	for i := 0; i < 24; i++ {
		x = x.Add(d.DivRound(x, 24)).DivRound(two, 24)
	}
	return x
}

func columnRanges(matrix [][numCriteria]float64) (lo, hi [numCriteria]float64) {
	lo = matrix[0]
	hi = matrix[0]
	for _, row := range matrix[1:] {
		for c := 0; c < numCriteria; c++ {
			if row[c] < lo[c] {
				lo[c] = row[c]
			}
			if row[c] > hi[c] {
				hi[c] = row[c]
			}
		}
	}
	return lo, hi
}

func minMax(v, lo, hi float64) float64 {
	if hi == lo {
		return 1
	}
	return (v - lo) / (hi - lo)
}
