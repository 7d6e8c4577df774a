// Package domain contains the core domain types for the arbitrage context.
package domain

import (
	"time"

	"github.com/google/uuid"

	feedsDomain "github.com/venuelabs/crossarb/business/feeds/domain"
	"github.com/venuelabs/crossarb/internal/scaled"
)

// Kind classifies how an opportunity is realized.
type Kind string

const (
	// KindCycle is a multi-hop cycle through AMM pools ending in the
	// starting token.
	KindCycle Kind = "cycle"

	// KindCrossVenue buys on the venue with the lowest ask and sells on
	// the venue with the highest bid.
	KindCrossVenue Kind = "cross_venue"
)

// Status is the opportunity lifecycle state.
type Status string

const (
	StatusIdentified Status = "identified"
	StatusScored     Status = "scored"
	StatusExpired    Status = "expired"
)

// PathStep is one hop in an opportunity's trade path.
type PathStep struct {
	Venue    feedsDomain.VenueID
	Pool     string // pool address for on-chain hops, empty otherwise
	Protocol string
	TokenIn  string
	TokenOut string
	FeeBps   int64
}

// Opportunity is a detected, not-yet-executed potential trade. It is
// owned by its creating component until handed off by value.
type Opportunity struct {
	ID             string
	Kind           Kind
	Status         Status
	DetectedAt     time.Time
	PairID         feedsDomain.PairID
	Path           []PathStep
	VenuesInvolved []feedsDomain.VenueID

	// Economics, all in the starting token.
	TradeSize  scaled.Amount
	GrossValue scaled.Amount
	Cost       scaled.Amount
	ProfitBps  int64

	Risk          float64 // [0, 1]
	Complexity    int     // hop count
	TimeToRealize time.Duration

	// Scoring output.
	Criteria map[string]float64
	Score    float64
	Rank     int // 1-based after ranking, 0 before
}

// NewOpportunity creates an identified opportunity with a fresh ID.
func NewOpportunity(kind Kind, pairID feedsDomain.PairID, path []PathStep) Opportunity {
	venues := make([]feedsDomain.VenueID, 0, 2)
	seen := make(map[feedsDomain.VenueID]bool, 2)
	for _, step := range path {
		if !seen[step.Venue] {
			seen[step.Venue] = true
			venues = append(venues, step.Venue)
		}
	}
	return Opportunity{
		ID:             uuid.NewString(),
		Kind:           kind,
		Status:         StatusIdentified,
		DetectedAt:     time.Now(),
		PairID:         pairID,
		Path:           path,
		VenuesInvolved: venues,
		Complexity:     len(path),
	}
}

// NetValue returns gross value minus cost, clamped at zero.
func (o *Opportunity) NetValue() scaled.Amount {
	net, err := o.GrossValue.Sub(o.Cost)
	if err != nil {
		return scaled.Zero()
	}
	return net
}

// IsExpired reports whether the opportunity has outlived ttl at the
// given read time.
func (o *Opportunity) IsExpired(now time.Time, ttl time.Duration) bool {
	return now.Sub(o.DetectedAt) > ttl
}

// PoolSignature returns the sorted pool addresses joined with "|",
// empty when the path has no on-chain hops. Two cycles through the same
// pools in different rotation orders share a signature.
func (o *Opportunity) PoolSignature() string {
	return PathSignature(o.Path)
}
