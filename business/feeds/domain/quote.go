// Package domain contains the core types for the market data context.
package domain

import (
	"math/big"
	"strings"
	"time"

	"github.com/venuelabs/crossarb/internal/scaled"
)

// VenueID identifies a price source.
type VenueID string

const (
	VenueBinance VenueID = "binance"
	VenueEVM     VenueID = "evm"
)

// PairID is the canonical BASE/QUOTE pair identifier.
type PairID string

// NormalizePair converts venue-specific symbols to the canonical
// BASE/QUOTE form, e.g. "ethusdc" or "ETH-USDC" become "ETH/USDC".
func NormalizePair(base, quote string) PairID {
	return PairID(strings.ToUpper(strings.TrimSpace(base)) + "/" + strings.ToUpper(strings.TrimSpace(quote)))
}

// Base returns the base symbol, or "" for a malformed pair.
func (p PairID) Base() string {
	base, _, ok := strings.Cut(string(p), "/")
	if !ok {
		return ""
	}
	return base
}

// Quote returns the quote symbol, or "" for a malformed pair.
func (p PairID) Quote() string {
	_, quote, ok := strings.Cut(string(p), "/")
	if !ok {
		return ""
	}
	return quote
}

// VenueQuote is one venue's best bid/ask for a pair at a point in time.
// Quotes are immutable and published by value.
type VenueQuote struct {
	VenueID    VenueID
	PairID     PairID
	BidPrice   scaled.Amount
	BidSize    scaled.Amount
	AskPrice   scaled.Amount
	AskSize    scaled.Amount
	ObservedAt time.Time
	Sequence   uint64 // venue-assigned update id, for ordering
}

// IsStale reports whether the quote is older than maxAge at the given
// read time. Staleness is always computed at read time.
func (q VenueQuote) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(q.ObservedAt) > maxAge
}

// SpreadBps returns the bid/ask spread in basis points relative to the
// bid, or 0 when the quote is one-sided or crossed.
func (q VenueQuote) SpreadBps() int64 {
	if !q.BidPrice.IsPositive() || !q.AskPrice.IsPositive() {
		return 0
	}
	diff := new(big.Int).Sub(q.AskPrice.Raw(), q.BidPrice.Raw())
	if diff.Sign() <= 0 {
		return 0
	}
	diff.Mul(diff, big.NewInt(scaled.BpsDenominator))
	diff.Div(diff, q.BidPrice.Raw())
	return diff.Int64()
}
