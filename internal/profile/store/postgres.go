package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"namegate/internal/profile/models"
	id "namegate/pkg/domain"
	"namegate/pkg/platform/sentinel"
	txcontext "namegate/pkg/platform/tx"
)

// PostgresStore persists the profile catalog in PostgreSQL.
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

// isUniqueViolation detects a PostgreSQL unique constraint failure.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// -----------------------------------------------------------------------------
// Names
// -----------------------------------------------------------------------------

func (s *PostgresStore) CreateName(ctx context.Context, name *models.Name) error {
	query := `
		INSERT INTO names (id, owner_id, text, kind, is_preferred, source, verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(name.ID), uuid.UUID(name.OwnerID), name.Text, string(name.Kind),
		name.IsPreferred, name.Source, name.Verified, name.CreatedAt, name.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("name %s: %w", name.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert name: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateName(ctx context.Context, name *models.Name) error {
	query := `
		UPDATE names
		SET text = $2, kind = $3, source = $4, verified = $5, updated_at = $6
		WHERE id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(name.ID), name.Text, string(name.Kind), name.Source, name.Verified, name.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update name: %w", err)
	}
	return requireRowAffected(res, "name", sentinel.ErrNotFound)
}

func (s *PostgresStore) DeleteName(ctx context.Context, ownerID id.UserID, nameID id.NameID) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM names WHERE id = $1 AND owner_id = $2`,
		uuid.UUID(nameID), uuid.UUID(ownerID),
	)
	if err != nil {
		return fmt.Errorf("delete name: %w", err)
	}
	return requireRowAffected(res, "name", sentinel.ErrNotFound)
}

const nameColumns = `id, owner_id, text, kind, is_preferred, source, verified, created_at, updated_at`

func (s *PostgresStore) FindNameByID(ctx context.Context, nameID id.NameID) (*models.Name, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+nameColumns+` FROM names WHERE id = $1`, uuid.UUID(nameID))
	return scanName(row)
}

func (s *PostgresStore) ListNamesByOwner(ctx context.Context, ownerID id.UserID) ([]*models.Name, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT `+nameColumns+` FROM names WHERE owner_id = $1 ORDER BY created_at`, uuid.UUID(ownerID))
	if err != nil {
		return nil, fmt.Errorf("query names: %w", err)
	}
	defer rows.Close()

	var names []*models.Name
	for rows.Next() {
		name, err := scanName(rows)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate names: %w", err)
	}
	return names, nil
}

func (s *PostgresStore) FindPreferredName(ctx context.Context, ownerID id.UserID) (*models.Name, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+nameColumns+` FROM names WHERE owner_id = $1 AND is_preferred`, uuid.UUID(ownerID))
	return scanName(row)
}

// SetPreferredName clears the previous preferred flag and sets the new one in
// a single transaction so the at-most-one invariant never observably breaks.
func (s *PostgresStore) SetPreferredName(ctx context.Context, ownerID id.UserID, nameID id.NameID, now time.Time) error {
	run := func(ctx context.Context, ex dbExecutor) error {
		// The partial unique index on (owner_id) WHERE is_preferred is
		// checked per statement, so the old flag must drop before the new
		// one lands.
		_, err := ex.ExecContext(ctx,
			`UPDATE names SET is_preferred = FALSE, updated_at = $3 WHERE owner_id = $1 AND is_preferred AND id <> $2`,
			uuid.UUID(ownerID), uuid.UUID(nameID), now,
		)
		if err != nil {
			return fmt.Errorf("clear previous preferred name: %w", err)
		}
		res, err := ex.ExecContext(ctx,
			`UPDATE names SET is_preferred = TRUE, updated_at = $3 WHERE id = $1 AND owner_id = $2`,
			uuid.UUID(nameID), uuid.UUID(ownerID), now,
		)
		if err != nil {
			return fmt.Errorf("set preferred name: %w", err)
		}
		return requireRowAffected(res, "name", sentinel.ErrNotFound)
	}

	// Join the caller's transaction when one is active.
	if tx, ok := txcontext.From(ctx); ok {
		return run(ctx, tx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin preferred-name swap: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := run(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanName(row rowScanner) (*models.Name, error) {
	var (
		name    models.Name
		nameID  uuid.UUID
		ownerID uuid.UUID
		kind    string
	)
	err := row.Scan(&nameID, &ownerID, &name.Text, &kind, &name.IsPreferred,
		&name.Source, &name.Verified, &name.CreatedAt, &name.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("name: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan name: %w", err)
	}
	name.ID = id.NameID(nameID)
	name.OwnerID = id.UserID(ownerID)
	name.Kind = models.NameKind(kind)
	return &name, nil
}

// -----------------------------------------------------------------------------
// Contexts
// -----------------------------------------------------------------------------

func (s *PostgresStore) CreateContext(ctx context.Context, dc *models.Context) error {
	query := `
		INSERT INTO contexts (id, owner_id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(dc.ID), uuid.UUID(dc.OwnerID), dc.Name, dc.Description, dc.CreatedAt, dc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("context name %q: %w", dc.Name, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert context: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteContext(ctx context.Context, ownerID id.UserID, contextID id.ContextID) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM contexts WHERE id = $1 AND owner_id = $2`,
		uuid.UUID(contextID), uuid.UUID(ownerID),
	)
	if err != nil {
		return fmt.Errorf("delete context: %w", err)
	}
	return requireRowAffected(res, "context", sentinel.ErrNotFound)
}

const contextColumns = `id, owner_id, name, description, created_at, updated_at`

func (s *PostgresStore) FindContextByID(ctx context.Context, contextID id.ContextID) (*models.Context, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+contextColumns+` FROM contexts WHERE id = $1`, uuid.UUID(contextID))
	return scanContext(row)
}

func (s *PostgresStore) FindContextByOwnerAndName(ctx context.Context, ownerID id.UserID, name string) (*models.Context, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+contextColumns+` FROM contexts WHERE owner_id = $1 AND name = $2`,
		uuid.UUID(ownerID), name)
	return scanContext(row)
}

func (s *PostgresStore) ListContextsByOwner(ctx context.Context, ownerID id.UserID) ([]*models.Context, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT `+contextColumns+` FROM contexts WHERE owner_id = $1 ORDER BY name`, uuid.UUID(ownerID))
	if err != nil {
		return nil, fmt.Errorf("query contexts: %w", err)
	}
	defer rows.Close()

	var contexts []*models.Context
	for rows.Next() {
		dc, err := scanContext(rows)
		if err != nil {
			return nil, err
		}
		contexts = append(contexts, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contexts: %w", err)
	}
	return contexts, nil
}

func scanContext(row rowScanner) (*models.Context, error) {
	var (
		dc        models.Context
		contextID uuid.UUID
		ownerID   uuid.UUID
	)
	err := row.Scan(&contextID, &ownerID, &dc.Name, &dc.Description, &dc.CreatedAt, &dc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("context: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan context: %w", err)
	}
	dc.ID = id.ContextID(contextID)
	dc.OwnerID = id.UserID(ownerID)
	return &dc, nil
}

// -----------------------------------------------------------------------------
// Context-name assignments
// -----------------------------------------------------------------------------

func (s *PostgresStore) UpsertAssignment(ctx context.Context, assignment *models.ContextNameAssignment) error {
	query := `
		INSERT INTO context_name_assignments (context_id, name_id, owner_id, assigned_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (context_id) DO UPDATE
		SET name_id = EXCLUDED.name_id, assigned_at = EXCLUDED.assigned_at
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(assignment.ContextID), uuid.UUID(assignment.NameID),
		uuid.UUID(assignment.OwnerID), assignment.AssignedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert assignment: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindAssignmentByContext(ctx context.Context, contextID id.ContextID) (*models.ContextNameAssignment, error) {
	var (
		assignment models.ContextNameAssignment
		cID, nID   uuid.UUID
		ownerID    uuid.UUID
	)
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT context_id, name_id, owner_id, assigned_at FROM context_name_assignments WHERE context_id = $1`,
		uuid.UUID(contextID),
	).Scan(&cID, &nID, &ownerID, &assignment.AssignedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("assignment: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan assignment: %w", err)
	}
	assignment.ContextID = id.ContextID(cID)
	assignment.NameID = id.NameID(nID)
	assignment.OwnerID = id.UserID(ownerID)
	return &assignment, nil
}

func (s *PostgresStore) DeleteAssignment(ctx context.Context, contextID id.ContextID) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM context_name_assignments WHERE context_id = $1`, uuid.UUID(contextID))
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	return requireRowAffected(res, "assignment", sentinel.ErrNotFound)
}

func (s *PostgresStore) CountAssignmentsByName(ctx context.Context, nameID id.NameID) (int, error) {
	var count int
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM context_name_assignments WHERE name_id = $1`, uuid.UUID(nameID)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count assignments: %w", err)
	}
	return count, nil
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
