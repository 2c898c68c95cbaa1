package expression_test

import (
	"context"
	"errors"
	"testing"

	"github.com/phraseloop/phraseloop/internal/expression"
)

func TestMemStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	s := expression.NewMemStore()
	ctx := context.Background()

	created, err := s.Create(ctx, expression.Expression{OwnerID: "u1", Text: "Nice to meet you"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("Create: empty generated ID")
	}
	if created.CreatedAt.IsZero() {
		t.Error("Create: CreatedAt not set")
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Text != "Nice to meet you" {
		t.Errorf("Get: Text = %q", got.Text)
	}
}

func TestMemStore_CreateDuplicate(t *testing.T) {
	t.Parallel()

	s := expression.NewMemStore()
	ctx := context.Background()

	if _, err := s.Create(ctx, expression.Expression{ID: "e1", Text: "a"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create(ctx, expression.Expression{ID: "e1", Text: "b"}); !errors.Is(err, expression.ErrDuplicateID) {
		t.Errorf("Create duplicate: err = %v, want ErrDuplicateID", err)
	}
}

func TestMemStore_GetByIDs(t *testing.T) {
	t.Parallel()

	s := expression.NewMemStore()
	ctx := context.Background()

	for _, id := range []string{"e1", "e2", "e3"} {
		if _, err := s.Create(ctx, expression.Expression{ID: id, Text: "text " + id}); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}

	// Order of the input IDs must be preserved.
	got, err := s.GetByIDs(ctx, []string{"e3", "e1"})
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if len(got) != 2 || got[0].ID != "e3" || got[1].ID != "e1" {
		t.Errorf("GetByIDs: got %v, want [e3 e1]", got)
	}

	if _, err := s.GetByIDs(ctx, []string{"e1", "missing"}); !errors.Is(err, expression.ErrNotFound) {
		t.Errorf("GetByIDs with unknown id: err = %v, want ErrNotFound", err)
	}
}

func TestMemStore_UpdateStats(t *testing.T) {
	t.Parallel()

	s := expression.NewMemStore()
	ctx := context.Background()

	if _, err := s.Create(ctx, expression.Expression{ID: "e1", Text: "a"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := s.UpdateStats(ctx, "e1", true); err != nil {
		t.Fatalf("UpdateStats correct: %v", err)
	}
	if err := s.UpdateStats(ctx, "e1", false); err != nil {
		t.Fatalf("UpdateStats incorrect: %v", err)
	}

	got, err := s.Get(ctx, "e1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.TotalCount != 2 {
		t.Errorf("TotalCount = %d, want 2", got.TotalCount)
	}
	if got.CorrectCount != 1 {
		t.Errorf("CorrectCount = %d, want 1", got.CorrectCount)
	}
	if got.LastUsedAt.IsZero() {
		t.Error("LastUsedAt not set")
	}

	if err := s.UpdateStats(ctx, "missing", true); !errors.Is(err, expression.ErrNotFound) {
		t.Errorf("UpdateStats unknown id: err = %v, want ErrNotFound", err)
	}
}

func TestMemStore_DeleteIdempotent(t *testing.T) {
	t.Parallel()

	s := expression.NewMemStore()
	ctx := context.Background()

	if _, err := s.Create(ctx, expression.Expression{ID: "e1", Text: "a"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Delete(ctx, "e1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "e1"); err != nil {
		t.Errorf("second Delete: %v, want nil", err)
	}
	if _, err := s.Get(ctx, "e1"); !errors.Is(err, expression.ErrNotFound) {
		t.Errorf("Get after delete: err = %v, want ErrNotFound", err)
	}
}

func TestMemStore_ListByOwner(t *testing.T) {
	t.Parallel()

	s := expression.NewMemStore()
	ctx := context.Background()

	if _, err := s.Create(ctx, expression.Expression{ID: "e1", OwnerID: "u1", Text: "a"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create(ctx, expression.Expression{ID: "e2", OwnerID: "u2", Text: "b"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].ID != "e1" {
		t.Errorf("List(u1) = %v, want [e1]", got)
	}
}
