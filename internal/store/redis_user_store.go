package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sambetts/office-nudge-sub000/internal/model"
	"go.uber.org/zap"
)

const (
	redisUserKeyPrefix = "mirror:user:"
	redisPrincipalIdx  = "mirror:upn:"
	redisUserIDSet     = "mirror:users"
	redisSyncStateKey  = "mirror:sync_state"
)

// RedisUserStore implements UserStore on Redis, with JSON-encoded users keyed
// by GraphID and a principal-name index. Upserts are read-merge-write and are
// serialized by a local mutex; the mirror is a single logical store, so one
// process owns writes.
type RedisUserStore struct {
	client *redis.Client
	mu     sync.Mutex
	logger *zap.Logger
}

// NewRedisUserStore creates a new Redis user store
func NewRedisUserStore(host string, port int, password string, db int, logger *zap.Logger) (*RedisUserStore, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisUserStore{
		client: client,
		logger: logger,
	}, nil
}

// ListUsers returns mirrored users, excluding tombstoned rows unless requested
func (s *RedisUserStore) ListUsers(ctx context.Context, includeDeleted bool) ([]*model.CachedUser, error) {
	ids, err := s.client.SMembers(ctx, redisUserIDSet).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list user ids: %w", err)
	}

	users := make([]*model.CachedUser, 0, len(ids))
	for _, id := range ids {
		user, err := s.getUserByID(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// Index entry without a value, tolerate and move on.
			continue
		}
		if err != nil {
			return nil, err
		}
		if user.IsDeleted && !includeDeleted {
			continue
		}
		users = append(users, user)
	}
	return users, nil
}

// GetUserByPrincipal looks a user up by principal name
func (s *RedisUserStore) GetUserByPrincipal(ctx context.Context, principal string) (*model.CachedUser, error) {
	id, err := s.client.Get(ctx, redisPrincipalIdx+principal).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve principal: %w", err)
	}
	return s.getUserByID(ctx, id)
}

func (s *RedisUserStore) getUserByID(ctx context.Context, graphID string) (*model.CachedUser, error) {
	data, err := s.client.Get(ctx, redisUserKeyPrefix+graphID).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var user model.CachedUser
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &user, nil
}

// UpsertUser inserts or merges one user keyed by GraphID
func (s *RedisUserStore) UpsertUser(ctx context.Context, user *model.CachedUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(ctx, user)
}

// UpsertUsers inserts or merges a batch; rows written before a failure stay
func (s *RedisUserStore) UpsertUsers(ctx context.Context, users []*model.CachedUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range users {
		if err := s.upsertLocked(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisUserStore) upsertLocked(ctx context.Context, user *model.CachedUser) error {
	merged := user
	existing, err := s.getUserByID(ctx, user.GraphID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if existing != nil {
		if !user.IsDeleted && existing.UserPrincipalName != user.UserPrincipalName {
			if err := s.client.Del(ctx, redisPrincipalIdx+existing.UserPrincipalName).Err(); err != nil {
				return fmt.Errorf("failed to drop stale principal index: %w", err)
			}
		}
		existing.MergeFrom(user)
		merged = existing
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, redisUserKeyPrefix+merged.GraphID, data, 0)
	if merged.UserPrincipalName != "" {
		pipe.Set(ctx, redisPrincipalIdx+merged.UserPrincipalName, merged.GraphID, 0)
	}
	pipe.SAdd(ctx, redisUserIDSet, merged.GraphID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", merged.GraphID, err)
	}
	return nil
}

// ClearUsers removes every user row and returns the removed count
func (s *RedisUserStore) ClearUsers(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.client.SMembers(ctx, redisUserIDSet).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list user ids: %w", err)
	}

	count := 0
	for _, id := range ids {
		user, err := s.getUserByID(ctx, id)
		if err == nil {
			if err := s.client.Del(ctx, redisPrincipalIdx+user.UserPrincipalName).Err(); err != nil {
				return count, err
			}
		}
		removed, err := s.client.Del(ctx, redisUserKeyPrefix+id).Result()
		if err != nil {
			return count, fmt.Errorf("failed to delete user %s: %w", id, err)
		}
		count += int(removed)
	}

	if err := s.client.Del(ctx, redisUserIDSet).Err(); err != nil {
		return count, fmt.Errorf("failed to clear user id set: %w", err)
	}
	return count, nil
}

// GetSyncState returns the singleton sync state, zero-valued on first use
func (s *RedisUserStore) GetSyncState(ctx context.Context) (*model.SyncState, error) {
	data, err := s.client.Get(ctx, redisSyncStateKey).Bytes()
	if err == redis.Nil {
		return &model.SyncState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}

	var state model.SyncState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sync state: %w", err)
	}
	return &state, nil
}

// UpdateSyncState replaces the singleton sync state
func (s *RedisUserStore) UpdateSyncState(ctx context.Context, state *model.SyncState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal sync state: %w", err)
	}
	if err := s.client.Set(ctx, redisSyncStateKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to update sync state: %w", err)
	}
	return nil
}

// Ping checks the Redis connection
func (s *RedisUserStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *RedisUserStore) Close() {
	if err := s.client.Close(); err != nil {
		s.logger.Warn("Failed to close Redis client", zap.Error(err))
	}
}
