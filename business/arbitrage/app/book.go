package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/venuelabs/crossarb/business/arbitrage/domain"
)

const bookMeterName = "arbitrage-book"

// Book holds scored opportunities between detection passes. An entry
// not acted on within the configured window is dropped as expired on
// the next sweep; a re-detected opportunity replaces its older entry.
type Book struct {
	ttl time.Duration

	mu   sync.Mutex
	byID map[string]domain.Opportunity

	expiredTotal metric.Int64Counter
}

// NewBook creates a book whose entries expire after ttl.
func NewBook(ttl time.Duration) (*Book, error) {
	expired, err := otel.Meter(bookMeterName).Int64Counter(
		"book_opportunities_expired_total",
		metric.WithDescription("Opportunities dropped unacted after their window"),
		metric.WithUnit("{opportunity}"),
	)
	if err != nil {
		return nil, err
	}
	return &Book{
		ttl:          ttl,
		byID:         make(map[string]domain.Opportunity),
		expiredTotal: expired,
	}, nil
}

// Put records scored opportunities.
func (b *Book) Put(opps ...domain.Opportunity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, opp := range opps {
		b.byID[opp.ID] = opp
	}
}

// Expire removes every entry older than the window at now and returns
// them marked expired.
func (b *Book) Expire(ctx context.Context, now time.Time) []domain.Opportunity {
	b.mu.Lock()
	var expired []domain.Opportunity
	for id, opp := range b.byID {
		if opp.IsExpired(now, b.ttl) {
			opp.Status = domain.StatusExpired
			expired = append(expired, opp)
			delete(b.byID, id)
		}
	}
	b.mu.Unlock()

	if len(expired) > 0 {
		b.expiredTotal.Add(ctx, int64(len(expired)))
	}
	return expired
}

// Live returns the unexpired entries ordered by rank.
func (b *Book) Live(now time.Time) []domain.Opportunity {
	b.mu.Lock()
	live := make([]domain.Opportunity, 0, len(b.byID))
	for _, opp := range b.byID {
		if !opp.IsExpired(now, b.ttl) {
			live = append(live, opp)
		}
	}
	b.mu.Unlock()

	sort.Slice(live, func(i, j int) bool { return live[i].Rank < live[j].Rank })
	return live
}
