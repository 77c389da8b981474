package db

import (
	"context"
	"sync"
	"time"

	"medassist/pkg"
)

// MemoryStore is a process-local store.  It backs DATABASE_URL=memory:// and
// the tests of the packages that consume storage.
type MemoryStore struct {
	mu        sync.Mutex
	nextID    int64
	turns     map[string][]pkg.Turn
	summaries map[string]string
	cities    map[string]string
	now       func() time.Time

	// SummaryWrites counts SetSummary calls.
	SummaryWrites int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		turns:     make(map[string][]pkg.Turn),
		summaries: make(map[string]string),
		cities:    make(map[string]string),
		now:       time.Now,
	}
}

func (s *MemoryStore) AppendTurn(_ context.Context, sessionID string, role pkg.Role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.turns[sessionID] = append(s.turns[sessionID], pkg.Turn{
		ID:        s.nextID,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: s.now().UTC(),
	})
	return nil
}

func (s *MemoryStore) ListTurns(_ context.Context, sessionID string) ([]pkg.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pkg.Turn(nil), s.turns[sessionID]...), nil
}

func (s *MemoryStore) GetSummary(_ context.Context, sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaries[sessionID], nil
}

func (s *MemoryStore) SetSummary(_ context.Context, sessionID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[sessionID] = text
	s.SummaryWrites++
	return nil
}

func (s *MemoryStore) GetCity(_ context.Context, sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cities[sessionID], nil
}

func (s *MemoryStore) SetCity(_ context.Context, sessionID, city string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cities[sessionID] = city
	return nil
}
