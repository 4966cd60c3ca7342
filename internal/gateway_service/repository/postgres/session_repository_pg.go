package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/zapflow/wagateway/internal/gateway_service/domain"
	"github.com/zapflow/wagateway/internal/gateway_service/repository"
)

// PgSessionStore persists session status snapshots in the sessions table.
type PgSessionStore struct {
	db     repository.Querier
	logger *slog.Logger
}

func NewPgSessionStore(db repository.Querier, logger *slog.Logger) *PgSessionStore {
	return &PgSessionStore{db: db, logger: logger.With("repo", "session_pg")}
}

func (r *PgSessionStore) UpsertSessionStatus(ctx context.Context, id, displayName string, state domain.SessionState, lastConnectedAt *time.Time) error {
	query := `
		INSERT INTO sessions (id, display_name, status, last_connected_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    status = EXCLUDED.status,
		    last_connected_at = COALESCE(EXCLUDED.last_connected_at, sessions.last_connected_at),
		    updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, id, displayName, string(state), lastConnectedAt)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error upserting session status", "error", err, "session_id", id, "status", state)
		return err
	}
	return nil
}

func (r *PgSessionStore) ListSessions(ctx context.Context) ([]*domain.Session, error) {
	query := `
		SELECT id, display_name, status, last_connected_at
		FROM sessions
		ORDER BY id
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing sessions", "error", err)
		return nil, err
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		s := &domain.Session{}
		var state string
		if err := rows.Scan(&s.ID, &s.DisplayName, &state, &s.LastConnectedAt); err != nil {
			r.logger.ErrorContext(ctx, "Error scanning session row", "error", err)
			return nil, err
		}
		s.State = domain.SessionState(state)
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *PgSessionStore) DeleteSession(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error deleting session", "error", err, "session_id", id)
		return err
	}
	return nil
}
