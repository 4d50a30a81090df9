package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sambetts/office-nudge-sub000/internal/metrics"
	"github.com/sambetts/office-nudge-sub000/internal/model"
	"github.com/sambetts/office-nudge-sub000/internal/statsfeed"
	"github.com/sambetts/office-nudge-sub000/internal/store"
	"go.uber.org/zap"
)

// ApplyFailure is one usage record that could not be merged
type ApplyFailure struct {
	Principal string
	Err       error
}

// ApplyReport summarizes one enrichment pass. Failures are collected per
// item so a single bad lookup never aborts the batch.
type ApplyReport struct {
	FeedStatus statsfeed.FeedStatus
	Applied    int
	Skipped    int
	Failures   []ApplyFailure
}

// StatsService overlays the secondary usage-statistics feed onto already
// mirrored users. Its refresh cadence is independent of the primary sync and
// it never participates in the full-vs-delta decision.
type StatsService struct {
	userStore       store.UserStore
	feed            statsfeed.StatsFeed
	refreshInterval time.Duration
	metrics         *metrics.Metrics
	logger          *zap.Logger

	refreshMu sync.Mutex
}

// NewStatsService creates a new stats enrichment service
func NewStatsService(
	userStore store.UserStore,
	feed statsfeed.StatsFeed,
	refreshInterval time.Duration,
	m *metrics.Metrics,
	logger *zap.Logger,
) *StatsService {
	return &StatsService{
		userStore:       userStore,
		feed:            feed,
		refreshInterval: refreshInterval,
		metrics:         m,
		logger:          logger,
	}
}

// RefreshIfStale runs one enrichment pass if the stats refresh interval has
// elapsed. Returns nil, nil when the stats are still fresh.
func (s *StatsService) RefreshIfStale(ctx context.Context) (*ApplyReport, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	state, err := s.userStore.GetSyncState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read sync state: %w", err)
	}
	if !state.StatsStale(s.refreshInterval) {
		return nil, nil
	}
	return s.refreshLocked(ctx)
}

// Refresh runs one enrichment pass regardless of staleness
func (s *StatsService) Refresh(ctx context.Context) (*ApplyReport, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *StatsService) refreshLocked(ctx context.Context) (*ApplyReport, error) {
	outcome := s.feed.Fetch(ctx)

	report := &ApplyReport{FeedStatus: outcome.Status}
	switch outcome.Status {
	case statsfeed.FeedUnavailable:
		// Expected in production (unlicensed tenant, transient outage);
		// the primary cache is unaffected and this cycle is skipped.
		s.logger.Warn("Usage stats feed unavailable", zap.Error(outcome.Err))
	case statsfeed.FeedEmpty:
		s.logger.Info("Usage stats feed returned no data")
	case statsfeed.FeedOK:
		s.applyStats(ctx, outcome.Records, report)
	}

	s.metrics.RecordStatsRefresh(string(outcome.Status), report.Applied, report.Skipped)

	// The feed answered, even if with nothing: move the refresh marker so
	// the next staleness check starts from now. Only read-modify-write the
	// one field this service owns.
	if outcome.Status != statsfeed.FeedUnavailable {
		state, err := s.userStore.GetSyncState(ctx)
		if err != nil {
			return report, fmt.Errorf("failed to read sync state: %w", err)
		}
		state.LastStatsRefresh = time.Now().UTC()
		if err := s.userStore.UpdateSyncState(ctx, state); err != nil {
			return report, fmt.Errorf("failed to record stats refresh: %w", err)
		}
	}

	s.logger.Info("Stats refresh complete",
		zap.String("feed_status", string(outcome.Status)),
		zap.Int("applied", report.Applied),
		zap.Int("skipped", report.Skipped),
		zap.Int("failures", len(report.Failures)))

	return report, nil
}

// applyStats merges usage records into existing cached users by principal
// name. Users must already exist from the primary sync; a usage record with
// no directory record is not actionable and is skipped silently.
func (s *StatsService) applyStats(ctx context.Context, records []*model.UsageRecord, report *ApplyReport) {
	for _, record := range records {
		user, err := s.userStore.GetUserByPrincipal(ctx, record.UserPrincipalName)
		if errors.Is(err, store.ErrNotFound) {
			report.Skipped++
			continue
		}
		if err != nil {
			report.Failures = append(report.Failures, ApplyFailure{
				Principal: record.UserPrincipalName,
				Err:       err,
			})
			continue
		}

		if record.LastChatActivity != nil {
			user.LastChatActivity = record.LastChatActivity
		}
		if record.LastCallActivity != nil {
			user.LastCallActivity = record.LastCallActivity
		}
		if record.LastMeetingActivity != nil {
			user.LastMeetingActivity = record.LastMeetingActivity
		}

		if err := s.userStore.UpsertUser(ctx, user); err != nil {
			report.Failures = append(report.Failures, ApplyFailure{
				Principal: record.UserPrincipalName,
				Err:       err,
			})
			continue
		}
		report.Applied++
	}
}
