package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venuelabs/crossarb/business/feeds/app"
	"github.com/venuelabs/crossarb/business/feeds/domain"
	"github.com/venuelabs/crossarb/internal/logger"
)

func TestSeederPublishesSnapshots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/bookTicker", r.URL.Path)
		assert.Contains(t, r.URL.RawQuery, "symbols=")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"symbol":"ETHUSDC","bidPrice":"2000.50","bidQty":"5","askPrice":"2001.00","askQty":"3"},
			{"symbol":"BTCUSDC","bidPrice":"60000","bidQty":"1","askPrice":"60010","askQty":"1"}
		]`))
	}))
	defer srv.Close()

	seeder, err := NewSeeder(srv.URL, []string{"ETHUSDC"}, logger.Nop())
	require.NoError(t, err)

	updates := make(chan app.Update, 4)
	require.NoError(t, seeder.Seed(context.Background(), updates))
	close(updates)

	var quotes []domain.VenueQuote
	for u := range updates {
		require.NotNil(t, u.Quote)
		quotes = append(quotes, *u.Quote)
	}
	require.Len(t, quotes, 1, "unrequested symbols are dropped")

	q := quotes[0]
	assert.Equal(t, domain.VenueBinance, q.VenueID)
	assert.Equal(t, domain.PairID("ETH/USDC"), q.PairID)
	assert.Equal(t, "2000.5", q.BidPrice.String())
	assert.Equal(t, "2001", q.AskPrice.String())
	assert.Zero(t, q.Sequence, "seeded quotes yield to any streamed update")
}

func TestSeederSkipsUnparsableSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"symbol":"ETHUSDC","bidPrice":"not-a-number","bidQty":"5","askPrice":"2001","askQty":"3"}]`))
	}))
	defer srv.Close()

	seeder, err := NewSeeder(srv.URL, []string{"ETHUSDC"}, logger.Nop())
	require.NoError(t, err)

	updates := make(chan app.Update, 1)
	require.NoError(t, seeder.Seed(context.Background(), updates))
	assert.Empty(t, updates)
}

func TestSeederSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "teapot", http.StatusTeapot)
	}))
	defer srv.Close()

	seeder, err := NewSeeder(srv.URL, []string{"ETHUSDC"}, logger.Nop())
	require.NoError(t, err)
	assert.Error(t, seeder.Seed(context.Background(), make(chan app.Update, 1)))
}

func TestSymbolsParam(t *testing.T) {
	assert.Equal(t, "%5B%22ETHUSDC%22%2C%22BTCUSDC%22%5D", symbolsParam([]string{"ethusdc", "BTCUSDC"}))
}
