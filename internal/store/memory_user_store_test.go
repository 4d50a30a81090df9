package store

import (
	"context"
	"testing"
	"time"

	"github.com/sambetts/office-nudge-sub000/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryUserStore_UpsertIsIdempotent(t *testing.T) {
	s := NewMemoryUserStore()
	ctx := context.Background()

	batch := []*model.CachedUser{
		{GraphID: "id-1", UserPrincipalName: "ana@contoso.com", DisplayName: "Ana"},
		{GraphID: "id-2", UserPrincipalName: "bo@contoso.com", DisplayName: "Bo"},
	}

	require.NoError(t, s.UpsertUsers(ctx, batch))
	require.NoError(t, s.UpsertUsers(ctx, batch))

	users, err := s.ListUsers(ctx, false)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestMemoryUserStore_UpsertPreservesEnrichmentFields(t *testing.T) {
	s := NewMemoryUserStore()
	ctx := context.Background()

	lastChat := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertUser(ctx, &model.CachedUser{
		GraphID:           "id-1",
		UserPrincipalName: "ana@contoso.com",
		DisplayName:       "Ana",
		LastChatActivity:  &lastChat,
	}))

	// A later directory sync carries no activity timestamps.
	require.NoError(t, s.UpsertUser(ctx, &model.CachedUser{
		GraphID:           "id-1",
		UserPrincipalName: "ana@contoso.com",
		DisplayName:       "Ana Alves",
	}))

	user, err := s.GetUserByPrincipal(ctx, "ana@contoso.com")
	require.NoError(t, err)
	assert.Equal(t, "Ana Alves", user.DisplayName)
	require.NotNil(t, user.LastChatActivity)
	assert.Equal(t, lastChat, *user.LastChatActivity)
}

func TestMemoryUserStore_PrincipalRenameMovesIndex(t *testing.T) {
	s := NewMemoryUserStore()
	ctx := context.Background()

	require.NoError(t, s.UpsertUser(ctx, &model.CachedUser{GraphID: "id-1", UserPrincipalName: "old@contoso.com"}))
	require.NoError(t, s.UpsertUser(ctx, &model.CachedUser{GraphID: "id-1", UserPrincipalName: "new@contoso.com"}))

	_, err := s.GetUserByPrincipal(ctx, "old@contoso.com")
	assert.ErrorIs(t, err, ErrNotFound)

	user, err := s.GetUserByPrincipal(ctx, "new@contoso.com")
	require.NoError(t, err)
	assert.Equal(t, "id-1", user.GraphID)

	users, err := s.ListUsers(ctx, false)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestMemoryUserStore_TombstoneKeepsAttributesAndIndex(t *testing.T) {
	s := NewMemoryUserStore()
	ctx := context.Background()

	require.NoError(t, s.UpsertUser(ctx, &model.CachedUser{
		GraphID:           "id-1",
		UserPrincipalName: "ana@contoso.com",
		DisplayName:       "Ana",
	}))

	// Delta removals carry only the identity.
	require.NoError(t, s.UpsertUser(ctx, &model.CachedUser{GraphID: "id-1", IsDeleted: true}))

	users, err := s.ListUsers(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, users)

	user, err := s.GetUserByPrincipal(ctx, "ana@contoso.com")
	require.NoError(t, err)
	assert.True(t, user.IsDeleted)
	assert.Equal(t, "Ana", user.DisplayName)
}

func TestMemoryUserStore_ReappearanceClearsTombstone(t *testing.T) {
	s := NewMemoryUserStore()
	ctx := context.Background()

	require.NoError(t, s.UpsertUser(ctx, &model.CachedUser{GraphID: "id-1", UserPrincipalName: "ana@contoso.com"}))
	require.NoError(t, s.UpsertUser(ctx, &model.CachedUser{GraphID: "id-1", IsDeleted: true}))
	require.NoError(t, s.UpsertUser(ctx, &model.CachedUser{GraphID: "id-1", UserPrincipalName: "ana@contoso.com"}))

	users, err := s.ListUsers(ctx, false)
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.False(t, users[0].IsDeleted)
}

func TestMemoryUserStore_UnknownTombstonesWithoutPrincipalCoexist(t *testing.T) {
	s := NewMemoryUserStore()
	ctx := context.Background()

	// Delta removals for identities the mirror never cached carry no
	// principal; more than one such row must be storable.
	require.NoError(t, s.UpsertUser(ctx, &model.CachedUser{GraphID: "id-ghost-1", IsDeleted: true}))
	require.NoError(t, s.UpsertUser(ctx, &model.CachedUser{GraphID: "id-ghost-2", IsDeleted: true}))

	all, err := s.ListUsers(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	live, err := s.ListUsers(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestMemoryUserStore_RecycledPrincipalResolvesToLiveUser(t *testing.T) {
	s := NewMemoryUserStore()
	ctx := context.Background()

	require.NoError(t, s.UpsertUser(ctx, &model.CachedUser{GraphID: "id-old", UserPrincipalName: "ana@contoso.com"}))
	require.NoError(t, s.UpsertUser(ctx, &model.CachedUser{GraphID: "id-old", IsDeleted: true}))

	// The principal comes back on a brand-new identity while the tombstoned
	// row still holds it.
	require.NoError(t, s.UpsertUser(ctx, &model.CachedUser{GraphID: "id-new", UserPrincipalName: "ana@contoso.com"}))

	user, err := s.GetUserByPrincipal(ctx, "ana@contoso.com")
	require.NoError(t, err)
	assert.Equal(t, "id-new", user.GraphID)
	assert.False(t, user.IsDeleted)

	all, err := s.ListUsers(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemoryUserStore_ClearUsersReturnsCount(t *testing.T) {
	s := NewMemoryUserStore()
	ctx := context.Background()

	require.NoError(t, s.UpsertUsers(ctx, []*model.CachedUser{
		{GraphID: "id-1", UserPrincipalName: "ana@contoso.com"},
		{GraphID: "id-2", UserPrincipalName: "bo@contoso.com"},
		{GraphID: "id-3", UserPrincipalName: "cy@contoso.com"},
	}))

	count, err := s.ClearUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	users, err := s.ListUsers(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, users)

	_, err = s.GetUserByPrincipal(ctx, "ana@contoso.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryUserStore_SyncStateDefaultsToZeroValue(t *testing.T) {
	s := NewMemoryUserStore()
	ctx := context.Background()

	state, err := s.GetSyncState(ctx)
	require.NoError(t, err)
	assert.Empty(t, state.DeltaToken)
	assert.False(t, state.HasSynced())

	state.DeltaToken = "T1"
	state.LastStatus = model.SyncStatusSuccess
	require.NoError(t, s.UpdateSyncState(ctx, state))

	reloaded, err := s.GetSyncState(ctx)
	require.NoError(t, err)
	assert.Equal(t, "T1", reloaded.DeltaToken)
	assert.Equal(t, model.SyncStatusSuccess, reloaded.LastStatus)
}

func TestMemoryUserStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryUserStore()
	ctx := context.Background()

	require.NoError(t, s.UpsertUser(ctx, &model.CachedUser{GraphID: "id-1", UserPrincipalName: "ana@contoso.com", DisplayName: "Ana"}))

	user, err := s.GetUserByPrincipal(ctx, "ana@contoso.com")
	require.NoError(t, err)
	user.DisplayName = "mutated"

	again, err := s.GetUserByPrincipal(ctx, "ana@contoso.com")
	require.NoError(t, err)
	assert.Equal(t, "Ana", again.DisplayName)
}
