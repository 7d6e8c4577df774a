// Package app contains application services for the arbitrage context.
package app

import (
	"context"

	feedsApp "github.com/venuelabs/crossarb/business/feeds/app"
	feedsDomain "github.com/venuelabs/crossarb/business/feeds/domain"
)

// MarketView is the read-only liquidity surface detection runs against.
// *feedsApp.LiquidityAggregator satisfies it.
type MarketView interface {
	// BestSpread returns the cross-venue top of book for a pair.
	BestSpread(ctx context.Context, pairID feedsDomain.PairID) (feedsApp.BestSpread, error)

	// AllPools returns every non-stale pool snapshot.
	AllPools(ctx context.Context) []feedsDomain.PoolState
}
