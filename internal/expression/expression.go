// Package expression defines the target-phrase records learners practice
// against and the persistence interface the tutoring engine reports usage
// counters through.
package expression

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no expression with the requested ID exists.
var ErrNotFound = errors.New("expression: not found")

// ErrDuplicateID is returned when creating an expression whose ID is already
// taken.
var ErrDuplicateID = errors.New("expression: duplicate id")

// Expression is one target phrase a learner is practicing. The engine never
// deletes expressions; it only reports usage counters back after each turn.
type Expression struct {
	// ID is an opaque identifier, unique across all expressions.
	ID string

	// OwnerID identifies the learner who created this expression.
	OwnerID string

	// Text is the target phrase (e.g., "Nice to meet you").
	Text string

	// Translation is an optional gloss in the learner's native language.
	Translation string

	// CorrectCount is the number of turns in which the learner used this
	// expression correctly.
	CorrectCount int

	// TotalCount is the number of turns in which this expression was the
	// evaluated target, correct or not.
	TotalCount int

	// LastUsedAt is when the expression was last evaluated. Zero when the
	// expression has never been practiced.
	LastUsedAt time.Time

	// CreatedAt is when the expression was created.
	CreatedAt time.Time
}

// Store is the persistence layer for expressions. The tutoring engine uses
// GetByIDs to resolve a practice set at session start and UpdateStats to
// report per-turn counters; the remaining methods serve the CRUD surface.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Create persists a new expression. When e.ID is empty an ID is
	// generated; the stored expression is returned. Returns
	// [ErrDuplicateID] when the ID is already taken.
	Create(ctx context.Context, e Expression) (Expression, error)

	// Get returns the expression with the given ID or [ErrNotFound].
	Get(ctx context.Context, id string) (Expression, error)

	// GetByIDs resolves a set of expression IDs in the order given.
	// Returns [ErrNotFound] if any ID does not resolve.
	GetByIDs(ctx context.Context, ids []string) ([]Expression, error)

	// List returns all expressions owned by ownerID, oldest first.
	List(ctx context.Context, ownerID string) ([]Expression, error)

	// UpdateStats applies one turn's outcome to the stored counters:
	// total_count += 1, correct_count += 1 iff correct, last_used_at = now.
	// Returns [ErrNotFound] for unknown IDs.
	UpdateStats(ctx context.Context, id string, correct bool) error

	// Delete removes an expression. Deleting a non-existent expression is
	// not an error.
	Delete(ctx context.Context, id string) error
}
