package loader

import (
	"context"
	"errors"

	"github.com/sambetts/office-nudge-sub000/internal/model"
)

// ErrDeltaTokenExpired is returned by LoadDelta when the upstream service no
// longer recognizes the continuation token. The orchestrator falls back to a
// full load within the same cycle when it sees this.
var ErrDeltaTokenExpired = errors.New("delta token expired")

// LoadResult is the output of one load operation: an ordered collection of
// directory records (possibly tombstoned) plus a fresh continuation token to
// persist on success.
type LoadResult struct {
	Users      []*model.CachedUser
	DeltaToken string
}

// DirectoryLoader abstracts how directory records are fetched so the sync
// orchestrator is agnostic to the upstream transport. Implementations handle
// multi-page responses internally and hold no persistent state of their own.
type DirectoryLoader interface {
	// LoadAll fetches the entire current population and returns it with a
	// continuation token suitable for future LoadDelta calls.
	LoadAll(ctx context.Context) (*LoadResult, error)

	// LoadDelta fetches only records added, updated or removed since token.
	// Removed records come back with the tombstone flag set. An expired or
	// unrecognized token is reported as ErrDeltaTokenExpired.
	LoadDelta(ctx context.Context, token string) (*LoadResult, error)
}
