package session_test

import (
	"errors"
	"testing"
	"time"

	"github.com/phraseloop/phraseloop/internal/session"
)

func newTestSession(id string) session.Session {
	return session.Session{
		ID:        id,
		OwnerID:   "u1",
		CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		CurrentID: "e1",
		Expressions: []session.ExpressionState{
			{ExpressionID: "e1", Text: "Nice to meet you"},
			{ExpressionID: "e2", Text: "Could you help me"},
		},
	}
}

func TestMemStore_CreateGetDelete(t *testing.T) {
	t.Parallel()

	s := session.NewMemStore()
	s.Create(newTestSession("s1"))

	got, err := s.Get("s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "s1" || len(got.Expressions) != 2 {
		t.Errorf("Get: unexpected session %+v", got)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}

	s.Delete("s1")
	if _, err := s.Get("s1"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Get after delete: err = %v, want ErrNotFound", err)
	}

	// Deleting an absent session is a no-op.
	s.Delete("s1")
}

func TestMemStore_GetUnknown(t *testing.T) {
	t.Parallel()

	s := session.NewMemStore()
	if _, err := s.Get("nope"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Get: err = %v, want ErrNotFound", err)
	}
}

func TestMemStore_SnapshotIsolation(t *testing.T) {
	t.Parallel()

	s := session.NewMemStore()
	s.Create(newTestSession("s1"))

	// Mutating a returned copy must not leak into the store.
	got, err := s.Get("s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got.Expressions[0].Completed = true
	got.Expressions[0].Attempts = 99

	again, err := s.Get("s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if again.Expressions[0].Completed || again.Expressions[0].Attempts != 0 {
		t.Error("stored session was mutated through a returned snapshot")
	}
}

func TestMemStore_UpdateUnknown(t *testing.T) {
	t.Parallel()

	s := session.NewMemStore()
	if err := s.Update(newTestSession("ghost")); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Update: err = %v, want ErrNotFound", err)
	}
}

func TestMemStore_SessionsAreIndependent(t *testing.T) {
	t.Parallel()

	s := session.NewMemStore()
	s.Create(newTestSession("s1"))
	s.Create(newTestSession("s2"))

	one, err := s.Get("s1")
	if err != nil {
		t.Fatalf("Get s1: %v", err)
	}
	one.Expressions[0].Completed = true
	if err := s.Update(one); err != nil {
		t.Fatalf("Update s1: %v", err)
	}

	two, err := s.Get("s2")
	if err != nil {
		t.Fatalf("Get s2: %v", err)
	}
	if two.Expressions[0].Completed {
		t.Error("update to s1 leaked into s2")
	}
}

func TestSession_Helpers(t *testing.T) {
	t.Parallel()

	sess := newTestSession("s1")

	if sess.Complete() {
		t.Error("Complete() = true for fresh session")
	}
	if got := sess.CompletedCount(); got != 0 {
		t.Errorf("CompletedCount = %d, want 0", got)
	}
	if fi := sess.FirstIncomplete(); fi == nil || fi.ExpressionID != "e1" {
		t.Errorf("FirstIncomplete = %v, want e1", fi)
	}

	sess.Expressions[0].Completed = true
	if fi := sess.FirstIncomplete(); fi == nil || fi.ExpressionID != "e2" {
		t.Errorf("FirstIncomplete = %v, want e2", fi)
	}

	sess.Expressions[1].Completed = true
	if !sess.Complete() {
		t.Error("Complete() = false with all expressions completed")
	}
	if sess.FirstIncomplete() != nil {
		t.Error("FirstIncomplete should be nil when complete")
	}

	if st := sess.State("e2"); st == nil || st.Text != "Could you help me" {
		t.Errorf("State(e2) = %v", st)
	}
	if st := sess.State("missing"); st != nil {
		t.Errorf("State(missing) = %v, want nil", st)
	}
}

func TestSession_CompleteEmpty(t *testing.T) {
	t.Parallel()

	// An empty expression list never counts as complete; the engine rejects
	// such sessions at creation anyway.
	empty := session.Session{ID: "s0"}
	if empty.Complete() {
		t.Error("Complete() = true for empty session")
	}
}
