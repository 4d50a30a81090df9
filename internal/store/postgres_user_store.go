package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sambetts/office-nudge-sub000/internal/model"
	"go.uber.org/zap"
)

// PostgresUserStore implements UserStore for PostgreSQL
type PostgresUserStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresUserStore creates a new PostgreSQL user store
func NewPostgresUserStore(
	host string,
	port int,
	database, user, password string,
	maxConns, minConns int,
	logger *zap.Logger,
) (*PostgresUserStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s pool_max_conns=%d pool_min_conns=%d",
		host, port, database, user, password, maxConns, minConns,
	)

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresUserStore{
		pool:   pool,
		logger: logger,
	}

	if err := s.ensureSchema(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return s, nil
}

func (s *PostgresUserStore) ensureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS mirror_users (
			graph_id              TEXT PRIMARY KEY,
			user_principal_name   TEXT NOT NULL,
			display_name          TEXT NOT NULL DEFAULT '',
			given_name            TEXT NOT NULL DEFAULT '',
			surname               TEXT NOT NULL DEFAULT '',
			mail                  TEXT NOT NULL DEFAULT '',
			department            TEXT NOT NULL DEFAULT '',
			job_title             TEXT NOT NULL DEFAULT '',
			office_location       TEXT NOT NULL DEFAULT '',
			company_name          TEXT NOT NULL DEFAULT '',
			account_enabled       BOOLEAN NOT NULL DEFAULT TRUE,
			is_deleted            BOOLEAN NOT NULL DEFAULT FALSE,
			last_chat_activity    TIMESTAMPTZ,
			last_call_activity    TIMESTAMPTZ,
			last_meeting_activity TIMESTAMPTZ,
			first_synced_at       TIMESTAMPTZ NOT NULL,
			last_synced_at        TIMESTAMPTZ NOT NULL
		);
		DROP INDEX IF EXISTS mirror_users_upn_idx;
		CREATE INDEX IF NOT EXISTS mirror_users_upn_lookup_idx
			ON mirror_users (user_principal_name);
		CREATE UNIQUE INDEX IF NOT EXISTS mirror_users_live_upn_idx
			ON mirror_users (user_principal_name)
			WHERE NOT is_deleted AND user_principal_name <> '';

		CREATE TABLE IF NOT EXISTS mirror_sync_state (
			id                 INTEGER PRIMARY KEY CHECK (id = 1),
			delta_token        TEXT NOT NULL DEFAULT '',
			last_full_sync     TIMESTAMPTZ,
			last_delta_sync    TIMESTAMPTZ,
			last_stats_refresh TIMESTAMPTZ,
			last_status        TEXT NOT NULL DEFAULT '',
			last_error         TEXT NOT NULL DEFAULT '',
			last_record_count  INTEGER NOT NULL DEFAULT 0
		);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

const userColumns = `
	graph_id, user_principal_name, display_name, given_name, surname, mail,
	department, job_title, office_location, company_name, account_enabled,
	is_deleted, last_chat_activity, last_call_activity, last_meeting_activity,
	first_synced_at, last_synced_at
`

// ListUsers returns mirrored users, excluding tombstoned rows unless requested
func (s *PostgresUserStore) ListUsers(ctx context.Context, includeDeleted bool) ([]*model.CachedUser, error) {
	query := `SELECT ` + userColumns + ` FROM mirror_users`
	if !includeDeleted {
		query += ` WHERE NOT is_deleted`
	}
	query += ` ORDER BY user_principal_name`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]*model.CachedUser, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// GetUserByPrincipal looks a user up by principal name. Uniqueness only holds
// for live rows: a tombstoned row keeps its principal forever and a new
// identity may legitimately reuse it, so the live row wins.
func (s *PostgresUserStore) GetUserByPrincipal(ctx context.Context, principal string) (*model.CachedUser, error) {
	query := `SELECT ` + userColumns + ` FROM mirror_users
		WHERE user_principal_name = $1
		ORDER BY is_deleted, last_synced_at DESC
		LIMIT 1`

	row := s.pool.QueryRow(ctx, query, principal)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (*model.CachedUser, error) {
	var user model.CachedUser
	err := row.Scan(
		&user.GraphID,
		&user.UserPrincipalName,
		&user.DisplayName,
		&user.GivenName,
		&user.Surname,
		&user.Mail,
		&user.Department,
		&user.JobTitle,
		&user.OfficeLocation,
		&user.CompanyName,
		&user.AccountEnabled,
		&user.IsDeleted,
		&user.LastChatActivity,
		&user.LastCallActivity,
		&user.LastMeetingActivity,
		&user.FirstSyncedAt,
		&user.LastSyncedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpsertUser inserts or merges one user keyed by GraphID. Enrichment columns
// use COALESCE so a directory sync that carries no activity timestamps never
// erases ones a stats refresh wrote earlier. A tombstone for a known row only
// flips is_deleted; delta removals carry no attributes.
func (s *PostgresUserStore) UpsertUser(ctx context.Context, user *model.CachedUser) error {
	if user.IsDeleted {
		result, err := s.pool.Exec(ctx,
			`UPDATE mirror_users SET is_deleted = TRUE, last_synced_at = $2 WHERE graph_id = $1`,
			user.GraphID, user.LastSyncedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to tombstone user %s: %w", user.GraphID, err)
		}
		if result.RowsAffected() > 0 {
			return nil
		}
		// Unknown identity: fall through and insert the tombstone row so the
		// removal stays auditable.
	}

	query := `
		INSERT INTO mirror_users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (graph_id) DO UPDATE SET
			user_principal_name   = EXCLUDED.user_principal_name,
			display_name          = EXCLUDED.display_name,
			given_name            = EXCLUDED.given_name,
			surname               = EXCLUDED.surname,
			mail                  = EXCLUDED.mail,
			department            = EXCLUDED.department,
			job_title             = EXCLUDED.job_title,
			office_location       = EXCLUDED.office_location,
			company_name          = EXCLUDED.company_name,
			account_enabled       = EXCLUDED.account_enabled,
			is_deleted            = EXCLUDED.is_deleted,
			last_chat_activity    = COALESCE(EXCLUDED.last_chat_activity, mirror_users.last_chat_activity),
			last_call_activity    = COALESCE(EXCLUDED.last_call_activity, mirror_users.last_call_activity),
			last_meeting_activity = COALESCE(EXCLUDED.last_meeting_activity, mirror_users.last_meeting_activity),
			last_synced_at        = EXCLUDED.last_synced_at
	`

	_, err := s.pool.Exec(ctx, query,
		user.GraphID,
		user.UserPrincipalName,
		user.DisplayName,
		user.GivenName,
		user.Surname,
		user.Mail,
		user.Department,
		user.JobTitle,
		user.OfficeLocation,
		user.CompanyName,
		user.AccountEnabled,
		user.IsDeleted,
		user.LastChatActivity,
		user.LastCallActivity,
		user.LastMeetingActivity,
		user.FirstSyncedAt,
		user.LastSyncedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", user.GraphID, err)
	}
	return nil
}

// UpsertUsers inserts or merges a batch one row at a time. There is no
// cross-record transaction: rows committed before a failure stay committed.
func (s *PostgresUserStore) UpsertUsers(ctx context.Context, users []*model.CachedUser) error {
	for _, u := range users {
		if err := s.UpsertUser(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

// ClearUsers removes every user row and returns the removed count
func (s *PostgresUserStore) ClearUsers(ctx context.Context) (int, error) {
	result, err := s.pool.Exec(ctx, `DELETE FROM mirror_users`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear users: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// GetSyncState returns the singleton sync state, zero-valued on first use
func (s *PostgresUserStore) GetSyncState(ctx context.Context) (*model.SyncState, error) {
	query := `
		SELECT delta_token, last_full_sync, last_delta_sync, last_stats_refresh,
		       last_status, last_error, last_record_count
		FROM mirror_sync_state
		WHERE id = 1
	`

	var state model.SyncState
	var status string
	err := s.pool.QueryRow(ctx, query).Scan(
		&state.DeltaToken,
		&state.LastFullSync,
		&state.LastDeltaSync,
		&state.LastStatsRefresh,
		&status,
		&state.LastError,
		&state.LastRecordCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return &model.SyncState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}

	state.LastStatus = model.SyncStatus(status)
	return &state, nil
}

// UpdateSyncState replaces the singleton sync state row
func (s *PostgresUserStore) UpdateSyncState(ctx context.Context, state *model.SyncState) error {
	query := `
		INSERT INTO mirror_sync_state
			(id, delta_token, last_full_sync, last_delta_sync, last_stats_refresh,
			 last_status, last_error, last_record_count)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			delta_token        = EXCLUDED.delta_token,
			last_full_sync     = EXCLUDED.last_full_sync,
			last_delta_sync    = EXCLUDED.last_delta_sync,
			last_stats_refresh = EXCLUDED.last_stats_refresh,
			last_status        = EXCLUDED.last_status,
			last_error         = EXCLUDED.last_error,
			last_record_count  = EXCLUDED.last_record_count
	`

	_, err := s.pool.Exec(ctx, query,
		state.DeltaToken,
		state.LastFullSync,
		state.LastDeltaSync,
		state.LastStatsRefresh,
		string(state.LastStatus),
		state.LastError,
		state.LastRecordCount,
	)
	if err != nil {
		return fmt.Errorf("failed to update sync state: %w", err)
	}
	return nil
}

// Ping checks the database connection
func (s *PostgresUserStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool
func (s *PostgresUserStore) Close() {
	s.pool.Close()
}
