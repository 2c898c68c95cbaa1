package expression

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the expressions table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS expressions (
    id            TEXT PRIMARY KEY,
    owner_id      TEXT NOT NULL DEFAULT '',
    text          TEXT NOT NULL,
    translation   TEXT NOT NULL DEFAULT '',
    correct_count INTEGER NOT NULL DEFAULT 0,
    total_count   INTEGER NOT NULL DEFAULT 0,
    last_used_at  TIMESTAMPTZ,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_expressions_owner ON expressions(owner_id);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] that uses the given connection
// or pool. The caller is responsible for calling [PostgresStore.Migrate] to
// ensure the schema exists before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("expression: migrate: %w", err)
	}
	return nil
}

// Create implements [Store.Create].
func (s *PostgresStore) Create(ctx context.Context, e Expression) (Expression, error) {
	if e.ID == "" {
		id, err := generateID()
		if err != nil {
			return Expression{}, fmt.Errorf("expression: generate id: %w", err)
		}
		e.ID = id
	}

	const q = `
		INSERT INTO expressions (id, owner_id, text, translation)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	err := s.db.QueryRow(ctx, q, e.ID, e.OwnerID, e.Text, e.Translation).Scan(&e.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return Expression{}, ErrDuplicateID
		}
		return Expression{}, fmt.Errorf("expression: create: %w", err)
	}
	return e, nil
}

// Get implements [Store.Get].
func (s *PostgresStore) Get(ctx context.Context, id string) (Expression, error) {
	const q = selectColumns + ` WHERE id = $1`

	row := s.db.QueryRow(ctx, q, id)
	e, err := scanExpression(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Expression{}, ErrNotFound
		}
		return Expression{}, fmt.Errorf("expression: get %q: %w", id, err)
	}
	return e, nil
}

// GetByIDs implements [Store.GetByIDs]. The result preserves the order of
// ids; a missing ID yields [ErrNotFound].
func (s *PostgresStore) GetByIDs(ctx context.Context, ids []string) ([]Expression, error) {
	if len(ids) == 0 {
		return []Expression{}, nil
	}

	const q = selectColumns + ` WHERE id = ANY($1)`

	rows, err := s.db.Query(ctx, q, ids)
	if err != nil {
		return nil, fmt.Errorf("expression: get by ids: %w", err)
	}
	fetched, err := collectExpressions(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]Expression, len(fetched))
	for _, e := range fetched {
		byID[e.ID] = e
	}

	result := make([]Expression, 0, len(ids))
	for _, id := range ids {
		e, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("expression: resolve %q: %w", id, ErrNotFound)
		}
		result = append(result, e)
	}
	return result, nil
}

// List implements [Store.List].
func (s *PostgresStore) List(ctx context.Context, ownerID string) ([]Expression, error) {
	const q = selectColumns + ` WHERE owner_id = $1 ORDER BY created_at`

	rows, err := s.db.Query(ctx, q, ownerID)
	if err != nil {
		return nil, fmt.Errorf("expression: list: %w", err)
	}
	return collectExpressions(rows)
}

// UpdateStats implements [Store.UpdateStats]. The counter update is a single
// statement, so concurrent turns against the same expression never lose
// increments.
func (s *PostgresStore) UpdateStats(ctx context.Context, id string, correct bool) error {
	const q = `
		UPDATE expressions
		SET    total_count   = total_count + 1,
		       correct_count = correct_count + CASE WHEN $2 THEN 1 ELSE 0 END,
		       last_used_at  = now()
		WHERE  id = $1`

	tag, err := s.db.Exec(ctx, q, id, correct)
	if err != nil {
		return fmt.Errorf("expression: update stats %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete implements [Store.Delete].
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM expressions WHERE id = $1`
	if _, err := s.db.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("expression: delete %q: %w", id, err)
	}
	return nil
}

const selectColumns = `
	SELECT id, owner_id, text, translation, correct_count, total_count, last_used_at, created_at
	FROM   expressions`

// scanExpression scans one row into an Expression, mapping the nullable
// last_used_at column onto the zero time.
func scanExpression(row pgx.Row) (Expression, error) {
	var (
		e          Expression
		lastUsedAt *time.Time
	)
	if err := row.Scan(
		&e.ID, &e.OwnerID, &e.Text, &e.Translation,
		&e.CorrectCount, &e.TotalCount, &lastUsedAt, &e.CreatedAt,
	); err != nil {
		return Expression{}, err
	}
	if lastUsedAt != nil {
		e.LastUsedAt = *lastUsedAt
	}
	return e, nil
}

// collectExpressions scans pgx rows into a slice of Expression values.
func collectExpressions(rows pgx.Rows) ([]Expression, error) {
	exprs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Expression, error) {
		return scanExpression(row)
	})
	if err != nil {
		return nil, fmt.Errorf("expression: scan rows: %w", err)
	}
	if exprs == nil {
		exprs = []Expression{}
	}
	return exprs, nil
}

// isDuplicateKeyError checks whether a PostgreSQL error is a unique-violation
// (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
