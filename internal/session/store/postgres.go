package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"namegate/internal/session/models"
	id "namegate/pkg/domain"
	"namegate/pkg/platform/sentinel"
	txcontext "namegate/pkg/platform/tx"
)

// PostgresStore persists sessions in PostgreSQL. The token column carries a
// unique index; collisions surface as ErrConflict so callers can re-mint.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const sessionColumns = `id, token, client_id, user_id, context_id, return_url, state, ip_address, user_agent, created_at, expires_at, used_at, revoked_at`

func (s *PostgresStore) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(session.ID), session.Token, string(session.ClientID),
		uuid.UUID(session.UserID), uuid.UUID(session.ContextID),
		session.ReturnURL, session.State, session.IPAddress, session.UserAgent,
		session.CreatedAt, session.ExpiresAt, session.UsedAt, session.RevokedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("session: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, session *models.Session) error {
	query := `
		UPDATE sessions
		SET used_at = $2, revoked_at = $3
		WHERE id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(session.ID), session.UsedAt, session.RevokedAt)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("session %s: %w", session.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) FindByToken(ctx context.Context, token string) (*models.Session, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE token = $1`, token)
	return scanSession(row)
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Session, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = $1 ORDER BY created_at DESC`,
		uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

func (s *PostgresStore) RevokeActiveByUser(ctx context.Context, userID id.UserID, clientID *id.ClientID, now time.Time) (int, error) {
	query := `
		UPDATE sessions
		SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		  AND ($3::text IS NULL OR client_id = $3)
	`
	var client any
	if clientID != nil {
		client = string(*clientID)
	}
	res, err := s.execer(ctx).ExecContext(ctx, query, uuid.UUID(userID), now, client)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		session           models.Session
		sessionID         uuid.UUID
		clientID          string
		userID, contextID uuid.UUID
		usedAt, revokedAt sql.NullTime
	)
	err := row.Scan(&sessionID, &session.Token, &clientID, &userID, &contextID,
		&session.ReturnURL, &session.State, &session.IPAddress, &session.UserAgent,
		&session.CreatedAt, &session.ExpiresAt, &usedAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	session.ID = id.SessionID(sessionID)
	session.ClientID = id.ClientID(clientID)
	session.UserID = id.UserID(userID)
	session.ContextID = id.ContextID(contextID)
	if usedAt.Valid {
		session.UsedAt = &usedAt.Time
	}
	if revokedAt.Valid {
		session.RevokedAt = &revokedAt.Time
	}
	return &session, nil
}
