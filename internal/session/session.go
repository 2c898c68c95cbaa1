// Package session holds per-practice-round state for the tutoring engine:
// which target expressions the learner is working through, which have been
// completed, and how each attempt went.
//
// The engine is the only writer. Readers receive deep copies, never live
// references, so transport-layer code can hold results across turns without
// observing later mutations.
package session

import (
	"errors"
	"time"
)

// ErrNotFound is returned when no session with the requested ID exists.
// Callers are expected to surface this upward and restart the flow rather
// than silently creating a new session.
var ErrNotFound = errors.New("session: not found")

// ExpressionState tracks one target expression within a session.
type ExpressionState struct {
	// ExpressionID references the expression record in the persistence layer.
	ExpressionID string

	// Text is the target phrase, cached here so turn evaluation does not
	// need a persistence round-trip.
	Text string

	// Completed reports whether this expression has been consumed, either
	// by a correct usage or by the fail-forward policy. Once true it is
	// never reset within the session.
	Completed bool

	// Attempts counts evaluated turns attributed to this expression.
	// Invariant: Attempts ≥ 1 once Completed is true.
	Attempts int

	// CorrectUsage reports whether the completion was a correct usage
	// (as opposed to a fail-forward miss).
	CorrectUsage bool

	// UsedAt is when this expression was last attributed a turn.
	UsedAt time.Time
}

// Session is one practice round over a fixed, ordered set of expressions.
type Session struct {
	// ID is the opaque session identifier, stable for the session lifetime.
	ID string

	// OwnerID identifies the learner running this round.
	OwnerID string

	// Expressions is the per-expression state, in the order the practice
	// set was submitted. The order never changes.
	Expressions []ExpressionState

	// CurrentID is the expression the learner is currently being prompted
	// for. Set at creation, advanced by the engine as targets complete.
	CurrentID string

	// CreatedAt is when the session started.
	CreatedAt time.Time

	// CompletedAt is when every expression reached Completed. Zero while
	// the session is active; once set it is never cleared.
	CompletedAt time.Time
}

// Complete reports whether every expression in the session is completed.
func (s *Session) Complete() bool {
	for i := range s.Expressions {
		if !s.Expressions[i].Completed {
			return false
		}
	}
	return len(s.Expressions) > 0
}

// CompletedCount returns the number of completed expressions.
func (s *Session) CompletedCount() int {
	n := 0
	for i := range s.Expressions {
		if s.Expressions[i].Completed {
			n++
		}
	}
	return n
}

// FirstIncomplete returns the first not-yet-completed expression in
// insertion order, or nil when the session is complete.
func (s *Session) FirstIncomplete() *ExpressionState {
	for i := range s.Expressions {
		if !s.Expressions[i].Completed {
			return &s.Expressions[i]
		}
	}
	return nil
}

// State returns a pointer to the ExpressionState for the given expression
// ID, or nil when the ID is not part of this session.
func (s *Session) State(expressionID string) *ExpressionState {
	for i := range s.Expressions {
		if s.Expressions[i].ExpressionID == expressionID {
			return &s.Expressions[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() Session {
	cp := *s
	cp.Expressions = make([]ExpressionState, len(s.Expressions))
	copy(cp.Expressions, s.Expressions)
	return cp
}

// Progress is a derived, point-in-time view of a session. Computed on
// demand; never stored.
type Progress struct {
	// CompletedCount is the number of completed expressions.
	CompletedCount int

	// TotalCount is the size of the practice set.
	TotalCount int

	// CurrentExpressionID is the expression currently being prompted for.
	// Empty when the session is complete.
	CurrentExpressionID string

	// CurrentExpressionText is the text of the current expression.
	CurrentExpressionText string

	// Complete reports whether the session has finished.
	Complete bool
}

// ExpressionResult is one expression's line in a session summary.
type ExpressionResult struct {
	ExpressionID string
	Text         string
	Completed    bool
	CorrectUsage bool
	Attempts     int
}

// Summary aggregates a finished (or partially finished) session.
// Invariants: CorrectUsages ≤ TotalAttempts and DurationSeconds ≥ 0.
type Summary struct {
	SessionID            string
	TotalExpressions     int
	CompletedExpressions int
	TotalAttempts        int
	CorrectUsages        int
	DurationSeconds      float64
	Complete             bool
	Results              []ExpressionResult
}
