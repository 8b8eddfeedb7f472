package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"namegate/internal/registry/models"
	id "namegate/pkg/domain"
	"namegate/pkg/platform/sentinel"
	txcontext "namegate/pkg/platform/tx"
)

// PostgresStore persists app-context bindings in PostgreSQL.
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

func (s *PostgresStore) Upsert(ctx context.Context, a *models.AppContextAssignment) error {
	query := `
		INSERT INTO app_context_assignments (user_id, client_id, context_id, assigned_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, client_id) DO UPDATE
		SET context_id = EXCLUDED.context_id, assigned_at = EXCLUDED.assigned_at
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(a.UserID), string(a.ClientID), uuid.UUID(a.ContextID), a.AssignedAt)
	if err != nil {
		return fmt.Errorf("upsert app-context binding: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByUserAndClient(ctx context.Context, userID id.UserID, clientID id.ClientID) (*models.AppContextAssignment, error) {
	var (
		a          models.AppContextAssignment
		rawUser    uuid.UUID
		rawClient  string
		rawContext uuid.UUID
	)
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT user_id, client_id, context_id, assigned_at FROM app_context_assignments WHERE user_id = $1 AND client_id = $2`,
		uuid.UUID(userID), string(clientID),
	).Scan(&rawUser, &rawClient, &rawContext, &a.AssignedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("app-context binding: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan app-context binding: %w", err)
	}
	a.UserID = id.UserID(rawUser)
	a.ClientID = id.ClientID(rawClient)
	a.ContextID = id.ContextID(rawContext)
	return &a, nil
}

func (s *PostgresStore) DeleteByUserAndClient(ctx context.Context, userID id.UserID, clientID id.ClientID) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM app_context_assignments WHERE user_id = $1 AND client_id = $2`,
		uuid.UUID(userID), string(clientID))
	if err != nil {
		return fmt.Errorf("delete app-context binding: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("app-context binding: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID) ([]*models.AppContextAssignment, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT user_id, client_id, context_id, assigned_at FROM app_context_assignments WHERE user_id = $1 ORDER BY client_id`,
		uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("query app-context bindings: %w", err)
	}
	defer rows.Close()

	var bindings []*models.AppContextAssignment
	for rows.Next() {
		var (
			a          models.AppContextAssignment
			rawUser    uuid.UUID
			rawClient  string
			rawContext uuid.UUID
		)
		if err := rows.Scan(&rawUser, &rawClient, &rawContext, &a.AssignedAt); err != nil {
			return nil, fmt.Errorf("scan app-context binding: %w", err)
		}
		a.UserID = id.UserID(rawUser)
		a.ClientID = id.ClientID(rawClient)
		a.ContextID = id.ContextID(rawContext)
		bindings = append(bindings, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate app-context bindings: %w", err)
	}
	return bindings, nil
}

func (s *PostgresStore) CountByContext(ctx context.Context, contextID id.ContextID) (int, error) {
	var count int
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM app_context_assignments WHERE context_id = $1`,
		uuid.UUID(contextID)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count app-context bindings: %w", err)
	}
	return count, nil
}
