package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sambetts/office-nudge-sub000/internal/loader"
	"github.com/sambetts/office-nudge-sub000/internal/metrics"
	"github.com/sambetts/office-nudge-sub000/internal/model"
	"github.com/sambetts/office-nudge-sub000/internal/store"
	"go.uber.org/zap"
)

// SyncService is the single authoritative entry point to the directory
// mirror. It decides when the cache is stale, drives full or delta sync
// cycles through the loader and the store, and hides all of that from
// callers asking for records.
//
// At most one sync cycle runs at a time: cycles are serialized by a mutex so
// racing callers cannot issue duplicate upstream loads or interleave writes
// against the sync-state singleton. Plain reads do not take the lock.
type SyncService struct {
	userStore        store.UserStore
	directoryLoader  loader.DirectoryLoader
	cacheValidity    time.Duration
	fullSyncInterval time.Duration
	metrics          *metrics.Metrics
	logger           *zap.Logger

	syncMu sync.Mutex
}

// NewSyncService creates a new sync orchestrator
func NewSyncService(
	userStore store.UserStore,
	directoryLoader loader.DirectoryLoader,
	cacheValidity time.Duration,
	fullSyncInterval time.Duration,
	m *metrics.Metrics,
	logger *zap.Logger,
) *SyncService {
	return &SyncService{
		userStore:        userStore,
		directoryLoader:  directoryLoader,
		cacheValidity:    cacheValidity,
		fullSyncInterval: fullSyncInterval,
		metrics:          m,
		logger:           logger,
	}
}

// GetAll returns all non-tombstoned mirrored users, running a sync cycle
// first when forceRefresh is set, when the cache-validity window has elapsed,
// or when no sync has ever succeeded. A failed cycle never masks previously
// good data: the stale cache is returned and the failure is recorded in the
// sync state for operators to observe.
func (s *SyncService) GetAll(ctx context.Context, forceRefresh bool) ([]*model.CachedUser, error) {
	state, err := s.userStore.GetSyncState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read sync state: %w", err)
	}

	ran := false
	if forceRefresh || state.CacheStale(s.cacheValidity) {
		ran, err = s.syncIfStale(ctx, forceRefresh)
		if err != nil {
			s.logger.Warn("Sync failed, serving cached data",
				zap.Bool("force_refresh", forceRefresh),
				zap.Error(err))
		}
	}
	if ran {
		s.metrics.RecordRead("synced")
	} else {
		s.metrics.RecordRead("cached")
	}

	return s.userStore.ListUsers(ctx, false)
}

// GetUser looks one user up by principal name directly from storage. It
// never triggers a sync; refresh is driven through GetAll or Sync.
func (s *SyncService) GetUser(ctx context.Context, principal string) (*model.CachedUser, error) {
	return s.userStore.GetUserByPrincipal(ctx, principal)
}

// Sync runs one sync cycle regardless of staleness
func (s *SyncService) Sync(ctx context.Context) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	return s.runCycle(ctx)
}

// syncIfStale runs a cycle under the sync lock, re-checking staleness once
// the lock is held so that N readers racing on an expired window produce
// exactly one upstream load. It reports whether a cycle actually ran, so the
// caller can label its read accordingly.
func (s *SyncService) syncIfStale(ctx context.Context, force bool) (bool, error) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	if !force {
		state, err := s.userStore.GetSyncState(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to read sync state: %w", err)
		}
		if !state.CacheStale(s.cacheValidity) {
			return false, nil
		}
	}
	return true, s.runCycle(ctx)
}

// runCycle executes one full or delta sync cycle. Callers hold syncMu.
func (s *SyncService) runCycle(ctx context.Context) error {
	started := time.Now()

	state, err := s.userStore.GetSyncState(ctx)
	if err != nil {
		return fmt.Errorf("failed to read sync state: %w", err)
	}

	if state.LastStatus == model.SyncStatusInProgress {
		// A previous cycle died mid-flight. Tokens are only persisted on
		// success, so the stored state is still trustworthy for the
		// full-vs-delta decision; just note the interruption.
		s.logger.Warn("Previous sync cycle was interrupted, re-deciding from persisted state")
	}

	// Mark in-progress before touching upstream so a crash mid-cycle is
	// observable in the persisted state.
	state.LastStatus = model.SyncStatusInProgress
	if err := s.userStore.UpdateSyncState(ctx, state); err != nil {
		return fmt.Errorf("failed to mark sync in progress: %w", err)
	}

	full := state.NeedsFullSync(s.fullSyncInterval)
	result, full, err := s.load(ctx, state, full)
	if err != nil {
		s.finishFailed(ctx, err)
		s.metrics.RecordSync(syncType(full), "failed", time.Since(started).Seconds(), 0)
		return err
	}

	now := time.Now().UTC()
	for _, u := range result.Users {
		u.FirstSyncedAt = now
		u.LastSyncedAt = now
	}

	if err := s.userStore.UpsertUsers(ctx, result.Users); err != nil {
		// Rows committed before the failure stay committed; only the cycle
		// outcome is marked failed.
		err = fmt.Errorf("failed to persist sync results: %w", err)
		s.finishFailed(ctx, err)
		s.metrics.RecordSync(syncType(full), "failed", time.Since(started).Seconds(), 0)
		return err
	}

	// Re-read before the final write so an enrichment refresh that landed
	// during the cycle keeps its timestamp.
	fresh, err := s.userStore.GetSyncState(ctx)
	if err != nil {
		return fmt.Errorf("failed to re-read sync state: %w", err)
	}
	if full {
		fresh.LastFullSync = now
	}
	fresh.LastDeltaSync = now
	fresh.DeltaToken = result.DeltaToken
	fresh.LastStatus = model.SyncStatusSuccess
	fresh.LastError = ""
	fresh.LastRecordCount = len(result.Users)

	if err := s.userStore.UpdateSyncState(ctx, fresh); err != nil {
		return fmt.Errorf("failed to finalize sync state: %w", err)
	}

	s.metrics.RecordSync(syncType(full), "success", time.Since(started).Seconds(), len(result.Users))
	s.updatePopulation(ctx)

	s.logger.Info("Sync cycle complete",
		zap.Bool("full", full),
		zap.Int("records", len(result.Users)),
		zap.Duration("took", time.Since(started)))

	return nil
}

// load runs the loader call for the decided mode, falling back to a full
// load inside the same cycle when the stored token has expired. It returns
// which mode actually ran.
func (s *SyncService) load(ctx context.Context, state *model.SyncState, full bool) (*loader.LoadResult, bool, error) {
	if full {
		result, err := s.directoryLoader.LoadAll(ctx)
		return result, true, err
	}

	result, err := s.directoryLoader.LoadDelta(ctx, state.DeltaToken)
	if errors.Is(err, loader.ErrDeltaTokenExpired) {
		s.logger.Info("Delta token expired, falling back to full load")
		s.metrics.RecordTokenFallback()
		result, err := s.directoryLoader.LoadAll(ctx)
		return result, true, err
	}
	return result, false, err
}

// finishFailed records a cycle failure in the sync state on a best-effort
// basis; existing cached data is left untouched.
func (s *SyncService) finishFailed(ctx context.Context, cause error) {
	state, err := s.userStore.GetSyncState(ctx)
	if err != nil {
		s.logger.Error("Failed to read sync state while recording failure", zap.Error(err))
		return
	}
	state.LastStatus = model.SyncStatusFailed
	state.LastError = cause.Error()
	if err := s.userStore.UpdateSyncState(ctx, state); err != nil {
		s.logger.Error("Failed to record sync failure", zap.Error(err))
	}
}

// ClearCache wipes all mirrored users and resets the sync state, forcing the
// next read to perform a full sync.
func (s *SyncService) ClearCache(ctx context.Context) (int, error) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	removed, err := s.userStore.ClearUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to clear users: %w", err)
	}

	if err := s.userStore.UpdateSyncState(ctx, &model.SyncState{}); err != nil {
		return removed, fmt.Errorf("failed to reset sync state: %w", err)
	}

	s.metrics.UpdatePopulation(0, 0)
	s.logger.Info("Cache cleared", zap.Int("removed", removed))
	return removed, nil
}

// Status returns a copy of the current sync state
func (s *SyncService) Status(ctx context.Context) (*model.SyncState, error) {
	return s.userStore.GetSyncState(ctx)
}

func (s *SyncService) updatePopulation(ctx context.Context) {
	all, err := s.userStore.ListUsers(ctx, true)
	if err != nil {
		s.logger.Warn("Failed to count mirror population", zap.Error(err))
		return
	}
	tombstoned := 0
	for _, u := range all {
		if u.IsDeleted {
			tombstoned++
		}
	}
	s.metrics.UpdatePopulation(len(all)-tombstoned, tombstoned)
}

func syncType(full bool) string {
	if full {
		return "full"
	}
	return "delta"
}
