package loader

import (
	"context"
	"fmt"
	"sync"
)

// FixtureLoader implements DirectoryLoader with pre-programmed results and no
// network dependency, so the orchestrator's branching can be tested
// deterministically. Results queue in FIFO order per operation; an empty
// queue is a test setup error.
type FixtureLoader struct {
	mu sync.Mutex

	fullResults  []fixtureResult
	deltaResults []fixtureResult

	// Call bookkeeping for assertions.
	FullCalls   int
	DeltaCalls  int
	DeltaTokens []string
}

type fixtureResult struct {
	result *LoadResult
	err    error
}

// NewFixtureLoader creates an empty fixture loader
func NewFixtureLoader() *FixtureLoader {
	return &FixtureLoader{}
}

// QueueFull programs the next LoadAll outcome
func (l *FixtureLoader) QueueFull(result *LoadResult, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fullResults = append(l.fullResults, fixtureResult{result: result, err: err})
}

// QueueDelta programs the next LoadDelta outcome
func (l *FixtureLoader) QueueDelta(result *LoadResult, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deltaResults = append(l.deltaResults, fixtureResult{result: result, err: err})
}

// LoadAll returns the next programmed full-load outcome
func (l *FixtureLoader) LoadAll(ctx context.Context) (*LoadResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.FullCalls++
	if len(l.fullResults) == 0 {
		return nil, fmt.Errorf("fixture loader: no full-load result programmed (call %d)", l.FullCalls)
	}
	next := l.fullResults[0]
	l.fullResults = l.fullResults[1:]
	return next.result, next.err
}

// LoadDelta returns the next programmed delta outcome and records the token
func (l *FixtureLoader) LoadDelta(ctx context.Context, token string) (*LoadResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.DeltaCalls++
	l.DeltaTokens = append(l.DeltaTokens, token)
	if len(l.deltaResults) == 0 {
		return nil, fmt.Errorf("fixture loader: no delta result programmed (call %d)", l.DeltaCalls)
	}
	next := l.deltaResults[0]
	l.deltaResults = l.deltaResults[1:]
	return next.result, next.err
}
