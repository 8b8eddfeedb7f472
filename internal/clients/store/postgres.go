package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"namegate/internal/clients/models"
	id "namegate/pkg/domain"
	"namegate/pkg/platform/sentinel"
	txcontext "namegate/pkg/platform/tx"
)

// PostgresStore persists client applications in PostgreSQL.
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

const clientColumns = `client_id, display_name, publisher_domain, secret_hash, active, created_at`

func (s *PostgresStore) Create(ctx context.Context, client *models.ClientApplication) error {
	query := `
		INSERT INTO client_applications (` + clientColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		string(client.ClientID), client.DisplayName, client.PublisherDomain,
		client.SecretHash, client.Active, client.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("client %s: %w", client.ClientID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert client: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, client *models.ClientApplication) error {
	query := `
		UPDATE client_applications
		SET display_name = $2, publisher_domain = $3, secret_hash = $4, active = $5
		WHERE client_id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		string(client.ClientID), client.DisplayName, client.PublisherDomain,
		client.SecretHash, client.Active,
	)
	if err != nil {
		return fmt.Errorf("update client: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("client %s: %w", client.ClientID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) FindByClientID(ctx context.Context, clientID id.ClientID) (*models.ClientApplication, error) {
	var client models.ClientApplication
	var rawID string
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM client_applications WHERE client_id = $1`,
		string(clientID),
	).Scan(&rawID, &client.DisplayName, &client.PublisherDomain, &client.SecretHash, &client.Active, &client.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("client %s: %w", clientID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan client: %w", err)
	}
	client.ClientID = id.ClientID(rawID)
	return &client, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.ClientApplication, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT `+clientColumns+` FROM client_applications ORDER BY client_id`)
	if err != nil {
		return nil, fmt.Errorf("query clients: %w", err)
	}
	defer rows.Close()

	var clients []*models.ClientApplication
	for rows.Next() {
		var client models.ClientApplication
		var rawID string
		if err := rows.Scan(&rawID, &client.DisplayName, &client.PublisherDomain,
			&client.SecretHash, &client.Active, &client.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		client.ClientID = id.ClientID(rawID)
		clients = append(clients, &client)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clients: %w", err)
	}
	return clients, nil
}
