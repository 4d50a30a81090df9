package statsfeed

import (
	"context"

	"github.com/sambetts/office-nudge-sub000/internal/model"
)

// FeedStatus classifies a fetch attempt. All three states are expected in
// production: the report feed is licensed per-tenant and may legitimately be
// forbidden or empty.
type FeedStatus string

const (
	FeedOK          FeedStatus = "ok"
	FeedEmpty       FeedStatus = "empty"
	FeedUnavailable FeedStatus = "unavailable"
)

// Outcome is the structured result of one feed fetch. Err is only set when
// Status is FeedUnavailable.
type Outcome struct {
	Status  FeedStatus
	Records []*model.UsageRecord
	Err     error
}

// StatsFeed abstracts the secondary usage-statistics source. Fetch returns a
// structured outcome rather than an error because an unreachable or empty
// feed is a normal, non-exceptional state.
type StatsFeed interface {
	Fetch(ctx context.Context) *Outcome
}
