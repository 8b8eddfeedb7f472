package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"namegate/internal/audit/models"
	id "namegate/pkg/domain"
	txcontext "namegate/pkg/platform/tx"
)

// PostgresStore appends audit entries to the audit_log_entries table. Entries
// are never updated or deleted through this store.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Insert(ctx context.Context, entry *models.Entry) error {
	query := `
		INSERT INTO audit_log_entries
			(id, action, target_user_id, requester_id, client_id, context_id, disclosed_name, tier, accessed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	var requesterID any
	if entry.RequesterID != nil {
		requesterID = uuid.UUID(*entry.RequesterID)
	}
	var clientID any
	if entry.ClientID != nil {
		clientID = string(*entry.ClientID)
	}
	var contextID any
	if entry.ContextID != nil {
		contextID = uuid.UUID(*entry.ContextID)
	}

	_, err := s.execer(ctx).ExecContext(ctx, query,
		entry.ID, string(entry.Action), uuid.UUID(entry.TargetUserID),
		requesterID, clientID, contextID,
		entry.DisclosedName, entry.Tier, entry.AccessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByTarget(ctx context.Context, targetUserID id.UserID, limit int) ([]*models.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, action, target_user_id, requester_id, client_id, context_id, disclosed_name, tier, accessed_at
		FROM audit_log_entries
		WHERE target_user_id = $1
		ORDER BY id DESC
		LIMIT $2
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(targetUserID), limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.Entry
	for rows.Next() {
		var (
			entry      models.Entry
			action     string
			target     uuid.UUID
			requester  uuid.NullUUID
			client     sql.NullString
			contextRef uuid.NullUUID
		)
		if err := rows.Scan(&entry.ID, &action, &target, &requester, &client,
			&contextRef, &entry.DisclosedName, &entry.Tier, &entry.AccessedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.Action = models.Action(action)
		entry.TargetUserID = id.UserID(target)
		if requester.Valid {
			requesterID := id.UserID(requester.UUID)
			entry.RequesterID = &requesterID
		}
		if client.Valid {
			clientID := id.ClientID(client.String)
			entry.ClientID = &clientID
		}
		if contextRef.Valid {
			contextID := id.ContextID(contextRef.UUID)
			entry.ContextID = &contextID
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
