package statsfeed

import (
	"context"
	"sync"
)

// FixtureFeed implements StatsFeed with pre-programmed outcomes for tests.
// Outcomes queue in FIFO order; an exhausted queue reports an empty feed.
type FixtureFeed struct {
	mu       sync.Mutex
	outcomes []*Outcome

	FetchCalls int
}

// NewFixtureFeed creates an empty fixture feed
func NewFixtureFeed() *FixtureFeed {
	return &FixtureFeed{}
}

// Queue programs the next fetch outcome
func (f *FixtureFeed) Queue(outcome *Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome)
}

// Fetch returns the next programmed outcome
func (f *FixtureFeed) Fetch(ctx context.Context) *Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.FetchCalls++
	if len(f.outcomes) == 0 {
		return &Outcome{Status: FeedEmpty}
	}
	next := f.outcomes[0]
	f.outcomes = f.outcomes[1:]
	return next
}
