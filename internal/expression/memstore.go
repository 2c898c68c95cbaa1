package expression

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store].
// It backs DSN-less development mode and tests.
type MemStore struct {
	mu          sync.RWMutex
	expressions map[string]Expression
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		expressions: make(map[string]Expression),
	}
}

// Create implements [Store.Create].
func (s *MemStore) Create(ctx context.Context, e Expression) (Expression, error) {
	if e.ID == "" {
		id, err := generateID()
		if err != nil {
			return Expression{}, fmt.Errorf("expression: generate id: %w", err)
		}
		e.ID = id
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.expressions[e.ID]; exists {
		return Expression{}, ErrDuplicateID
	}
	s.expressions[e.ID] = e
	return e, nil
}

// Get implements [Store.Get].
func (s *MemStore) Get(ctx context.Context, id string) (Expression, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.expressions[id]
	if !ok {
		return Expression{}, ErrNotFound
	}
	return e, nil
}

// GetByIDs implements [Store.GetByIDs]. The result preserves the order of ids.
func (s *MemStore) GetByIDs(ctx context.Context, ids []string) ([]Expression, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Expression, 0, len(ids))
	for _, id := range ids {
		e, ok := s.expressions[id]
		if !ok {
			return nil, fmt.Errorf("expression: resolve %q: %w", id, ErrNotFound)
		}
		result = append(result, e)
	}
	return result, nil
}

// List implements [Store.List].
func (s *MemStore) List(ctx context.Context, ownerID string) ([]Expression, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Expression, 0, len(s.expressions))
	for _, e := range s.expressions {
		if e.OwnerID == ownerID {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// UpdateStats implements [Store.UpdateStats].
func (s *MemStore) UpdateStats(ctx context.Context, id string, correct bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.expressions[id]
	if !ok {
		return ErrNotFound
	}
	e.TotalCount++
	if correct {
		e.CorrectCount++
	}
	e.LastUsedAt = time.Now().UTC()
	s.expressions[id] = e
	return nil
}

// Delete implements [Store.Delete].
func (s *MemStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.expressions, id)
	return nil
}

// generateID produces a random 16-byte hex string using crypto/rand.
func generateID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
