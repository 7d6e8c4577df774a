// Package app contains application services and port definitions for the market data context.
package app

import (
	"context"

	"github.com/venuelabs/crossarb/business/feeds/domain"
)

// Update carries one immutable market data observation from a feed to
// the aggregator. Exactly one field is set.
type Update struct {
	Quote *domain.VenueQuote
	Pool  *domain.PoolState
}

// VenueFeed is a running market data source. Implementations own their
// connection lifecycle and publish observations to the updates channel
// passed at construction.
type VenueFeed interface {
	// Run connects and streams until ctx is cancelled or the feed
	// fails terminally.
	Run(ctx context.Context) error

	// Venue identifies the feed.
	Venue() domain.VenueID

	// State returns the feed's lifecycle state.
	State() domain.FeedState
}
