package session

import (
	"sync"
)

// Store is the session state table, keyed by session ID. The tutoring engine
// is the sole writer; there are no transactional guarantees beyond
// whole-session create/replace. Distinct sessions are fully independent.
//
// Implementations must be safe for concurrent access across different
// session IDs.
type Store interface {
	// Create inserts a new session. Overwrites any existing session with
	// the same ID (whole-session replace).
	Create(s Session)

	// Get returns a deep copy of the session or [ErrNotFound].
	Get(id string) (Session, error)

	// Update replaces the stored session with s. Returns [ErrNotFound]
	// when no session with s.ID exists.
	Update(s Session) error

	// Delete removes a session. Deleting an absent session is a no-op.
	Delete(id string)

	// Len returns the number of live sessions.
	Len() int
}

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store]. Sessions
// live only for the process lifetime; they are not persisted across restarts.
type MemStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		sessions: make(map[string]Session),
	}
}

// Create implements [Store.Create].
func (s *MemStore) Create(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess.Clone()
}

// Get implements [Store.Get]. The returned session is a deep copy; mutating
// it does not affect the stored state.
func (s *MemStore) Get(id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return sess.Clone(), nil
}

// Update implements [Store.Update].
func (s *MemStore) Update(sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.ID]; !ok {
		return ErrNotFound
	}
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

// Delete implements [Store.Delete].
func (s *MemStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Len implements [Store.Len].
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
