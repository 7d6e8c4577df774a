package binance

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/venuelabs/crossarb/business/feeds/app"
	"github.com/venuelabs/crossarb/business/feeds/domain"
	"github.com/venuelabs/crossarb/internal/httpclient"
	"github.com/venuelabs/crossarb/internal/logger"
)

// Binance REST endpoint.
const BaseRESTURL = "https://api.binance.com"

// bookTickerSnapshot is the REST form of a book ticker. Unlike the
// stream event it carries no update ID, so seeded quotes use sequence
// zero and any streamed update supersedes them.
type bookTickerSnapshot struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	BidQty   string `json:"bidQty"`
	AskPrice string `json:"askPrice"`
	AskQty   string `json:"askQty"`
}

func (s bookTickerSnapshot) toQuote(receivedAt time.Time) (domain.VenueQuote, error) {
	event := BookTickerEvent{
		Symbol:   s.Symbol,
		BidPrice: s.BidPrice,
		BidQty:   s.BidQty,
		AskPrice: s.AskPrice,
		AskQty:   s.AskQty,
	}
	return event.ToQuote(receivedAt)
}

// Seeder fetches a one-shot book ticker snapshot over REST so the
// aggregator has prices before the stream delivers its first event.
type Seeder struct {
	client  *httpclient.Client
	symbols []string
	logger  logger.LoggerInterface
}

// NewSeeder creates a seeder for the given concatenated symbols.
func NewSeeder(baseURL string, symbols []string, log logger.LoggerInterface) (*Seeder, error) {
	client, err := httpclient.New(httpclient.DefaultConfig(baseURL))
	if err != nil {
		return nil, err
	}
	return &Seeder{client: client, symbols: symbols, logger: log}, nil
}

// Seed fetches current book tickers and publishes them to updates. A
// symbol that fails to parse is skipped; a transport failure aborts the
// whole seed, which the caller treats as best-effort.
func (s *Seeder) Seed(ctx context.Context, updates chan<- app.Update) error {
	var snapshots []bookTickerSnapshot
	if err := s.client.GetJSON(ctx, "/api/v3/ticker/bookTicker?symbols="+symbolsParam(s.symbols), &snapshots); err != nil {
		return err
	}

	now := time.Now()
	wanted := make(map[string]bool, len(s.symbols))
	for _, sym := range s.symbols {
		wanted[strings.ToUpper(sym)] = true
	}

	seeded := 0
	for _, snap := range snapshots {
		if !wanted[strings.ToUpper(snap.Symbol)] {
			continue
		}
		quote, err := snap.toQuote(now)
		if err != nil {
			s.logger.Debug(ctx, "skipping unparsable snapshot", "symbol", snap.Symbol, "error", err)
			continue
		}
		select {
		case updates <- app.Update{Quote: &quote}:
			seeded++
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.logger.Info(ctx, "seeded quotes from rest snapshot", "count", seeded)
	return nil
}

// symbolsParam renders the JSON array query parameter the endpoint
// expects: ["ETHUSDC","BTCUSDC"], URL encoded.
func symbolsParam(symbols []string) string {
	quoted := make([]string, len(symbols))
	for i, sym := range symbols {
		quoted[i] = `"` + strings.ToUpper(sym) + `"`
	}
	return url.QueryEscape("[" + strings.Join(quoted, ",") + "]")
}
