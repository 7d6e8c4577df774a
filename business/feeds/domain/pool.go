package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/venuelabs/crossarb/internal/scaled"
)

// PoolState is an immutable snapshot of an AMM pool's reserves at one
// block. A new snapshot is published per observation; snapshots are
// never mutated in place.
type PoolState struct {
	Address    common.Address
	Protocol   string // "uniswap_v2", "sushiswap", ...
	Token0     string
	Token1     string
	Reserve0   scaled.Amount
	Reserve1   scaled.Amount
	FeeBps     int64
	Block      uint64
	ObservedAt time.Time
}

// PairID returns the canonical pair for this pool. Token ordering in
// the pool contract does not affect the canonical form: the
// lexicographically smaller symbol is always the base, so pools quoting
// the same tokens in opposite order group together.
func (p PoolState) PairID() PairID {
	if p.Token0 <= p.Token1 {
		return NormalizePair(p.Token0, p.Token1)
	}
	return NormalizePair(p.Token1, p.Token0)
}

// ReservesFor returns the (in, out) reserves for swapping tokenIn into
// the pool. ok is false when tokenIn is not one of the pool's tokens.
func (p PoolState) ReservesFor(tokenIn string) (reserveIn, reserveOut scaled.Amount, ok bool) {
	switch tokenIn {
	case p.Token0:
		return p.Reserve0, p.Reserve1, true
	case p.Token1:
		return p.Reserve1, p.Reserve0, true
	default:
		return scaled.Amount{}, scaled.Amount{}, false
	}
}

// Other returns the pool token paired with token, or "" when token is
// not in the pool.
func (p PoolState) Other(token string) string {
	switch token {
	case p.Token0:
		return p.Token1
	case p.Token1:
		return p.Token0
	default:
		return ""
	}
}

// ImpliedQuote derives the venue quote this pool offers for its
// canonical pair: marginal price from the reserve ratio, shaded by the
// pool fee on each side, sized by the base reserve. ok is false when
// the pool has no liquidity. The snapshot block doubles as the quote
// sequence so newer blocks supersede older ones in the aggregator.
func (p PoolState) ImpliedQuote() (VenueQuote, bool) {
	if !p.HasLiquidity() || p.FeeBps < 0 || p.FeeBps >= scaled.BpsDenominator {
		return VenueQuote{}, false
	}

	baseReserve, quoteReserve := p.Reserve0, p.Reserve1
	if p.Token0 > p.Token1 {
		baseReserve, quoteReserve = p.Reserve1, p.Reserve0
	}

	spot := new(big.Int).Mul(quoteReserve.Raw(), poolPriceScale)
	spot.Div(spot, baseReserve.Raw())

	bid := scaled.New(spot).MulBps(scaled.BpsDenominator - p.FeeBps)
	askRaw := new(big.Int).Mul(spot, big.NewInt(scaled.BpsDenominator))
	askRaw.Div(askRaw, big.NewInt(scaled.BpsDenominator-p.FeeBps))

	return VenueQuote{
		VenueID:    VenueEVM,
		PairID:     p.PairID(),
		BidPrice:   bid,
		BidSize:    baseReserve,
		AskPrice:   scaled.New(askRaw),
		AskSize:    baseReserve,
		ObservedAt: p.ObservedAt,
		Sequence:   p.Block,
	}, true
}

var poolPriceScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(scaled.Decimals), nil)

// IsStale reports whether the snapshot is older than maxAge at the
// given read time.
func (p PoolState) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(p.ObservedAt) > maxAge
}

// HasLiquidity reports whether both reserves are positive.
func (p PoolState) HasLiquidity() bool {
	return p.Reserve0.IsPositive() && p.Reserve1.IsPositive()
}
