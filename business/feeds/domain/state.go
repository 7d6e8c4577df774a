package domain

import (
	"sync"
	"time"
)

// FeedState describes where a venue feed is in its connection lifecycle.
type FeedState string

const (
	FeedDisconnected FeedState = "disconnected"
	FeedConnecting   FeedState = "connecting"
	FeedSubscribed   FeedState = "subscribed"
	FeedStreaming    FeedState = "streaming"
	FeedFailed       FeedState = "failed" // terminal
)

// FeedEvent records one state transition.
type FeedEvent struct {
	Venue VenueID
	From  FeedState
	To    FeedState
	Err   error
	At    time.Time
}

// FeedTracker holds a feed's lifecycle state. Failed is terminal and
// reached at most once; later transition attempts are ignored so
// observers see exactly one failure event.
type FeedTracker struct {
	venue VenueID

	mu      sync.RWMutex
	state   FeedState
	onEvent func(FeedEvent)
}

// NewFeedTracker creates a tracker in the Disconnected state. onEvent
// may be nil.
func NewFeedTracker(venue VenueID, onEvent func(FeedEvent)) *FeedTracker {
	return &FeedTracker{
		venue:   venue,
		state:   FeedDisconnected,
		onEvent: onEvent,
	}
}

// State returns the current state.
func (t *FeedTracker) State() FeedState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Transition moves the feed to next and reports whether the transition
// was applied. Transitions out of Failed and self-transitions are no-ops.
func (t *FeedTracker) Transition(next FeedState, err error) bool {
	t.mu.Lock()
	prev := t.state
	if prev == FeedFailed || prev == next {
		t.mu.Unlock()
		return false
	}
	t.state = next
	handler := t.onEvent
	t.mu.Unlock()

	if handler != nil {
		handler(FeedEvent{
			Venue: t.venue,
			From:  prev,
			To:    next,
			Err:   err,
			At:    time.Now(),
		})
	}
	return true
}

// Fail marks the feed terminally failed. Idempotent.
func (t *FeedTracker) Fail(err error) bool {
	return t.Transition(FeedFailed, err)
}

// IsTerminal reports whether the feed can make no further transitions.
func (t *FeedTracker) IsTerminal() bool {
	return t.State() == FeedFailed
}
