package store

import (
	"context"
	"errors"

	"github.com/sambetts/office-nudge-sub000/internal/model"
)

// ErrNotFound is returned when a user is not found
var ErrNotFound = errors.New("not found")

// UserStore persists mirrored directory users plus the singleton sync state.
// Upserts are keyed by GraphID, are idempotent, and merge rather than
// overwrite the enrichment fields owned by the stats refresh.
type UserStore interface {
	// ListUsers returns mirrored users. Tombstoned rows are excluded unless
	// includeDeleted is set.
	ListUsers(ctx context.Context, includeDeleted bool) ([]*model.CachedUser, error)

	// GetUserByPrincipal looks a user up by principal name, tombstoned or
	// not. Returns ErrNotFound when no row exists.
	GetUserByPrincipal(ctx context.Context, principal string) (*model.CachedUser, error)

	UpsertUser(ctx context.Context, user *model.CachedUser) error
	UpsertUsers(ctx context.Context, users []*model.CachedUser) error

	// ClearUsers removes every user row and returns how many were removed.
	ClearUsers(ctx context.Context) (int, error)

	// GetSyncState returns the singleton sync state, or a zero value if none
	// has been written yet. Absence is not an error.
	GetSyncState(ctx context.Context) (*model.SyncState, error)
	UpdateSyncState(ctx context.Context, state *model.SyncState) error

	// Health check
	Ping(ctx context.Context) error
	Close()
}
