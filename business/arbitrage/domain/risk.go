package domain

import (
	"sort"
	"strings"
)

// Base execution risk per protocol. Unlisted protocols are treated as
// high risk rather than unknown-and-ignored.
var protocolBaseRisk = map[string]float64{
	"uniswap_v2": 0.10,
	"uniswap_v3": 0.12,
	"sushiswap":  0.15,
	"curve":      0.20,
	"balancer":   0.25,
	"binance":    0.05,
}

const unknownProtocolRisk = 0.50

// Risk component weights. They sum to 1 so the composite stays in [0, 1]
// as long as each component does.
const (
	weightProtocol  = 0.30
	weightPath      = 0.20
	weightFlashLoan = 0.20
	weightSlippage  = 0.30
)

// flashLoanRisk is the component value when the trade needs borrowed
// principal.
const flashLoanRisk = 0.10

// RiskInput carries the facts the risk model scores.
type RiskInput struct {
	Protocols     []string
	Hops          int
	UsesFlashLoan bool
	SlippageBps   int64
}

// ComputeRisk produces a composite execution risk in [0, 1] from
// protocol exposure, path length, capital source, and expected
// slippage.
func ComputeRisk(in RiskInput) float64 {
	protocol := 0.0
	if len(in.Protocols) > 0 {
		sum := 0.0
		for _, p := range in.Protocols {
			base, ok := protocolBaseRisk[strings.ToLower(p)]
			if !ok {
				base = unknownProtocolRisk
			}
			sum += base
		}
		protocol = sum / float64(len(in.Protocols))
	}

	pathPenalty := float64(in.Hops) * 0.05
	if pathPenalty > 0.3 {
		pathPenalty = 0.3
	}

	flash := 0.0
	if in.UsesFlashLoan {
		flash = flashLoanRisk
	}

	slippage := float64(in.SlippageBps) / 10000.0
	if slippage > 1 {
		slippage = 1
	}

	risk := protocol*weightProtocol +
		pathPenalty*weightPath +
		flash*weightFlashLoan +
		slippage*weightSlippage

	if risk < 0 {
		return 0
	}
	if risk > 1 {
		return 1
	}
	return risk
}

// PathSignature builds an order-independent identity for a trade path
// from its sorted pool addresses. Paths without on-chain hops return "".
func PathSignature(path []PathStep) string {
	pools := make([]string, 0, len(path))
	for _, step := range path {
		if step.Pool != "" {
			pools = append(pools, strings.ToLower(step.Pool))
		}
	}
	if len(pools) == 0 {
		return ""
	}
	sort.Strings(pools)
	return strings.Join(pools, "|")
}
