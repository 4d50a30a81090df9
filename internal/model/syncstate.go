package model

import (
	"time"
)

// SyncStatus represents the outcome of the most recent sync cycle
type SyncStatus string

const (
	SyncStatusSuccess    SyncStatus = "success"
	SyncStatusFailed     SyncStatus = "failed"
	SyncStatusInProgress SyncStatus = "in_progress"
)

// SyncState is the singleton bookkeeping record for one mirror instance.
// Exactly one exists per mirror; it is read-modify-written around each cycle.
type SyncState struct {
	// DeltaToken is the opaque continuation token from the last successful
	// sync. Empty means no incremental sync is possible and the next cycle
	// must do a full load.
	DeltaToken string `json:"delta_token"`

	LastFullSync     time.Time `json:"last_full_sync"`
	LastDeltaSync    time.Time `json:"last_delta_sync"`
	LastStatsRefresh time.Time `json:"last_stats_refresh"`

	LastStatus      SyncStatus `json:"last_status"`
	LastError       string     `json:"last_error"`
	LastRecordCount int        `json:"last_record_count"`
}

// HasSynced reports whether any sync cycle has ever completed successfully.
func (s *SyncState) HasSynced() bool {
	return !s.LastDeltaSync.IsZero()
}

// NeedsFullSync reports whether the next cycle must do a full load: either
// no token is stored, or the periodic re-baseline interval has elapsed since
// the last full load.
func (s *SyncState) NeedsFullSync(fullSyncInterval time.Duration) bool {
	if s.DeltaToken == "" {
		return true
	}
	return time.Since(s.LastFullSync) >= fullSyncInterval
}

// CacheStale reports whether mirrored data is older than the configured
// cache-validity window.
func (s *SyncState) CacheStale(cacheValidity time.Duration) bool {
	if !s.HasSynced() {
		return true
	}
	return time.Since(s.LastDeltaSync) >= cacheValidity
}

// StatsStale reports whether the enrichment refresh interval has elapsed.
func (s *SyncState) StatsStale(refreshInterval time.Duration) bool {
	if s.LastStatsRefresh.IsZero() {
		return true
	}
	return time.Since(s.LastStatsRefresh) >= refreshInterval
}
