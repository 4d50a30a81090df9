package store

import (
	"context"
	"sync"

	"github.com/sambetts/office-nudge-sub000/internal/model"
)

// MemoryUserStore implements UserStore using in-memory maps. It has no
// persistence across process restarts and exists for tests and local
// development.
type MemoryUserStore struct {
	mu          sync.RWMutex
	users       map[string]*model.CachedUser // keyed by GraphID
	byPrincipal map[string]string            // principal -> GraphID
	state       *model.SyncState
}

// NewMemoryUserStore creates a new in-memory user store
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		users:       make(map[string]*model.CachedUser),
		byPrincipal: make(map[string]string),
	}
}

// ListUsers returns mirrored users, excluding tombstoned rows unless requested
func (s *MemoryUserStore) ListUsers(ctx context.Context, includeDeleted bool) ([]*model.CachedUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*model.CachedUser, 0, len(s.users))
	for _, u := range s.users {
		if u.IsDeleted && !includeDeleted {
			continue
		}
		copied := *u
		users = append(users, &copied)
	}
	return users, nil
}

// GetUserByPrincipal looks a user up by principal name
func (s *MemoryUserStore) GetUserByPrincipal(ctx context.Context, principal string) (*model.CachedUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byPrincipal[principal]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *s.users[id]
	return &copied, nil
}

// UpsertUser inserts or merges one user keyed by GraphID
func (s *MemoryUserStore) UpsertUser(ctx context.Context, user *model.CachedUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.upsertLocked(user)
	return nil
}

// UpsertUsers inserts or merges a batch; later entries win over earlier ones
// that share a GraphID.
func (s *MemoryUserStore) UpsertUsers(ctx context.Context, users []*model.CachedUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range users {
		s.upsertLocked(u)
	}
	return nil
}

func (s *MemoryUserStore) upsertLocked(user *model.CachedUser) {
	existing, ok := s.users[user.GraphID]
	if !ok {
		copied := *user
		s.users[user.GraphID] = &copied
		if user.UserPrincipalName != "" {
			s.byPrincipal[user.UserPrincipalName] = user.GraphID
		}
		return
	}

	// A changed principal name is an attribute update on the same identity;
	// the old secondary-key index entry must go. Tombstones carry no
	// principal and never move the index.
	if !user.IsDeleted && user.UserPrincipalName != existing.UserPrincipalName {
		delete(s.byPrincipal, existing.UserPrincipalName)
	}
	existing.MergeFrom(user)
	if existing.UserPrincipalName != "" {
		s.byPrincipal[existing.UserPrincipalName] = existing.GraphID
	}
}

// ClearUsers removes every user row and returns the removed count
func (s *MemoryUserStore) ClearUsers(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := len(s.users)
	s.users = make(map[string]*model.CachedUser)
	s.byPrincipal = make(map[string]string)
	return count, nil
}

// GetSyncState returns the singleton sync state, zero-valued on first use
func (s *MemoryUserStore) GetSyncState(ctx context.Context) (*model.SyncState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == nil {
		return &model.SyncState{}, nil
	}
	copied := *s.state
	return &copied, nil
}

// UpdateSyncState replaces the singleton sync state
func (s *MemoryUserStore) UpdateSyncState(ctx context.Context, state *model.SyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *state
	s.state = &copied
	return nil
}

// Ping always succeeds for the in-memory store
func (s *MemoryUserStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store
func (s *MemoryUserStore) Close() {}
