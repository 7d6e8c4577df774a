// Package binance implements a VenueFeed over the Binance bookTicker stream.
package binance

import (
	"strconv"
	"strings"
	"time"

	"github.com/venuelabs/crossarb/business/feeds/domain"
	"github.com/venuelabs/crossarb/internal/scaled"
)

// WSRequest is a WebSocket subscription request.
type WSRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// BookTickerEvent represents a best bid/ask update (real-time).
// Stream: <symbol>@bookTicker
type BookTickerEvent struct {
	UpdateID int64  `json:"u"` // Order book updateId
	Symbol   string `json:"s"` // Symbol
	BidPrice string `json:"b"` // Best bid price
	BidQty   string `json:"B"` // Best bid qty
	AskPrice string `json:"a"` // Best ask price
	AskQty   string `json:"A"` // Best ask qty
}

// ToQuote converts the event into a canonical VenueQuote. The venue
// timestamp is not carried on bookTicker, so observation time is local
// receive time.
func (e *BookTickerEvent) ToQuote(receivedAt time.Time) (domain.VenueQuote, error) {
	pair, err := PairFromSymbol(e.Symbol)
	if err != nil {
		return domain.VenueQuote{}, err
	}

	bid, err := scaled.ParseString(e.BidPrice)
	if err != nil {
		return domain.VenueQuote{}, err
	}
	bidQty, err := scaled.ParseString(e.BidQty)
	if err != nil {
		return domain.VenueQuote{}, err
	}
	ask, err := scaled.ParseString(e.AskPrice)
	if err != nil {
		return domain.VenueQuote{}, err
	}
	askQty, err := scaled.ParseString(e.AskQty)
	if err != nil {
		return domain.VenueQuote{}, err
	}

	return domain.VenueQuote{
		VenueID:    domain.VenueBinance,
		PairID:     pair,
		BidPrice:   bid,
		BidSize:    bidQty,
		AskPrice:   ask,
		AskSize:    askQty,
		ObservedAt: receivedAt,
		Sequence:   uint64(e.UpdateID),
	}, nil
}

// quoteSuffixes are the quote assets recognized in concatenated Binance
// symbols, longest first so USDC wins over BTC-style suffix collisions.
var quoteSuffixes = []string{"USDC", "USDT", "FDUSD", "BUSD", "TUSD", "DAI", "BTC", "ETH", "BNB", "EUR", "TRY"}

// PairFromSymbol splits a concatenated Binance symbol such as
// "ETHUSDC" into the canonical pair form.
func PairFromSymbol(symbol string) (domain.PairID, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	for _, suffix := range quoteSuffixes {
		base, ok := strings.CutSuffix(s, suffix)
		if ok && base != "" {
			return domain.NormalizePair(base, suffix), nil
		}
	}
	return "", &UnknownSymbolError{Symbol: symbol}
}

// UnknownSymbolError reports a symbol with no recognized quote asset.
type UnknownSymbolError struct {
	Symbol string
}

func (e *UnknownSymbolError) Error() string {
	return "binance: unknown symbol " + strconv.Quote(e.Symbol)
}

// BookTickerStream returns the bookTicker stream name for a symbol.
func BookTickerStream(symbol string) string {
	return strings.ToLower(symbol) + "@bookTicker"
}
