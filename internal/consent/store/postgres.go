package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"namegate/internal/consent/models"
	id "namegate/pkg/domain"
	"namegate/pkg/platform/sentinel"
	txcontext "namegate/pkg/platform/tx"
)

// PostgresStore persists consents in PostgreSQL. A partial unique index on
// (granter_id, requester_id) WHERE status IN ('PENDING','GRANTED') backs the
// one-live-consent-per-pair rule, so concurrent duplicate requests collapse
// into a conflict instead of duplicate rows.
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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const consentColumns = `id, granter_id, requester_id, context_id, status, requested_at, granted_at, revoked_at, expires_at`

// Create inserts a fresh consent. The live-pair index only knows about
// status, not expires_at, so a time-expired row can still occupy the pair;
// on conflict the stale rows are reconciled to EXPIRED and the insert retried
// once before the conflict is surfaced.
func (s *PostgresStore) Create(ctx context.Context, c *models.Consent, now time.Time) error {
	err := s.insert(ctx, c)
	if err == nil {
		return nil
	}
	if !isUniqueViolation(err) {
		return fmt.Errorf("insert consent: %w", err)
	}

	expired, expireErr := s.expireStalePair(ctx, c.GranterID, c.RequesterID, now)
	if expireErr != nil {
		return expireErr
	}
	if expired == 0 {
		return fmt.Errorf("live consent exists for pair: %w", sentinel.ErrConflict)
	}
	if err := s.insert(ctx, c); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("live consent exists for pair: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert consent: %w", err)
	}
	return nil
}

func (s *PostgresStore) insert(ctx context.Context, c *models.Consent) error {
	query := `
		INSERT INTO consents (` + consentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(c.ID), uuid.UUID(c.GranterID), uuid.UUID(c.RequesterID), uuid.UUID(c.ContextID),
		string(c.Status), c.RequestedAt, c.GrantedAt, c.RevokedAt, c.ExpiresAt,
	)
	return err
}

// expireStalePair writes the lazy-expiry verdict back to rows whose deadline
// has passed, freeing the live-pair index slot while preserving history.
func (s *PostgresStore) expireStalePair(ctx context.Context, granterID, requesterID id.UserID, now time.Time) (int64, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE consents SET status = 'EXPIRED'
		WHERE granter_id = $1 AND requester_id = $2
		  AND status IN ('PENDING', 'GRANTED')
		  AND expires_at IS NOT NULL AND expires_at <= $3
	`, uuid.UUID(granterID), uuid.UUID(requesterID), now)
	if err != nil {
		return 0, fmt.Errorf("expire stale consents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire stale consents: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Update(ctx context.Context, c *models.Consent) error {
	query := `
		UPDATE consents
		SET status = $2, granted_at = $3, revoked_at = $4, expires_at = $5
		WHERE id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(c.ID), string(c.Status), c.GrantedAt, c.RevokedAt, c.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("update consent: %w", err)
	}
	return requireRowAffected(res, "consent", sentinel.ErrNotFound)
}

func (s *PostgresStore) FindByID(ctx context.Context, consentID id.ConsentID) (*models.Consent, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+consentColumns+` FROM consents WHERE id = $1`, uuid.UUID(consentID))
	return scanConsent(row)
}

func (s *PostgresStore) FindLiveByPair(ctx context.Context, granterID, requesterID id.UserID, now time.Time) (*models.Consent, error) {
	query := `
		SELECT ` + consentColumns + ` FROM consents
		WHERE granter_id = $1 AND requester_id = $2
		  AND status IN ('PENDING', 'GRANTED')
		  AND (expires_at IS NULL OR expires_at > $3)
	`
	row := s.execer(ctx).QueryRowContext(ctx, query,
		uuid.UUID(granterID), uuid.UUID(requesterID), now)
	return scanConsent(row)
}

// FindGrantedByPair returns every consent currently authorizing disclosure for
// the (granter, requester) pair, newest grant first with id as tie-break.
func (s *PostgresStore) FindGrantedByPair(ctx context.Context, granterID, requesterID id.UserID, now time.Time) ([]*models.Consent, error) {
	query := `
		SELECT ` + consentColumns + ` FROM consents
		WHERE granter_id = $1 AND requester_id = $2
		  AND status = 'GRANTED' AND (expires_at IS NULL OR expires_at > $3)
		ORDER BY granted_at DESC, id DESC
	`
	return s.queryConsents(ctx, query, uuid.UUID(granterID), uuid.UUID(requesterID), now)
}

func (s *PostgresStore) ListByGranter(ctx context.Context, granterID id.UserID) ([]*models.Consent, error) {
	query := `SELECT ` + consentColumns + ` FROM consents WHERE granter_id = $1 ORDER BY requested_at DESC`
	return s.queryConsents(ctx, query, uuid.UUID(granterID))
}

func (s *PostgresStore) ListByRequester(ctx context.Context, requesterID id.UserID) ([]*models.Consent, error) {
	query := `SELECT ` + consentColumns + ` FROM consents WHERE requester_id = $1 ORDER BY requested_at DESC`
	return s.queryConsents(ctx, query, uuid.UUID(requesterID))
}

func (s *PostgresStore) CountLiveByContext(ctx context.Context, contextID id.ContextID, now time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM consents
		WHERE context_id = $1
		  AND status IN ('PENDING', 'GRANTED')
		  AND (expires_at IS NULL OR expires_at > $2)
	`
	var count int
	if err := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(contextID), now).Scan(&count); err != nil {
		return 0, fmt.Errorf("count live consents: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) queryConsents(ctx context.Context, query string, args ...any) ([]*models.Consent, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query consents: %w", err)
	}
	defer rows.Close()

	var consents []*models.Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, err
		}
		consents = append(consents, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consents: %w", err)
	}
	return consents, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConsent(row rowScanner) (*models.Consent, error) {
	var (
		c                            models.Consent
		consentID                    uuid.UUID
		granterID, requesterID       uuid.UUID
		contextID                    uuid.UUID
		status                       string
		grantedAt, revokedAt, expiry sql.NullTime
	)
	err := row.Scan(&consentID, &granterID, &requesterID, &contextID, &status,
		&c.RequestedAt, &grantedAt, &revokedAt, &expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("consent: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan consent: %w", err)
	}
	c.ID = id.ConsentID(consentID)
	c.GranterID = id.UserID(granterID)
	c.RequesterID = id.UserID(requesterID)
	c.ContextID = id.ContextID(contextID)
	c.Status = models.Status(status)
	if grantedAt.Valid {
		c.GrantedAt = &grantedAt.Time
	}
	if revokedAt.Valid {
		c.RevokedAt = &revokedAt.Time
	}
	if expiry.Valid {
		c.ExpiresAt = &expiry.Time
	}
	return &c, nil
}

func requireRowAffected(res sql.Result, entity string, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", entity, notFound)
	}
	return nil
}
