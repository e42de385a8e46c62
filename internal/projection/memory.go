package projection

import (
	"context"
	"sync"

	"github.com/iliyamo/edusmart-auth/internal/model"
)

// MemoryStore keeps documents in a map.  The server falls back to it when
// no MongoDB URI is configured; tests use it directly.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]model.AccountCollection
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]model.AccountCollection)}
}

func (s *MemoryStore) Upsert(_ context.Context, doc model.AccountCollection) error {
	s.mu.Lock()
	s.docs[doc.AccountID] = doc
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, accountID string) error {
	s.mu.Lock()
	delete(s.docs, accountID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) FindByAccountID(_ context.Context, accountID string) (model.AccountCollection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[accountID]
	if !ok {
		return model.AccountCollection{}, ErrNotFound
	}
	return doc, nil
}

func (s *MemoryStore) FindActiveByEmail(_ context.Context, email string) (model.AccountCollection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.docs {
		if d.IsActive && d.Email == email {
			return d, nil
		}
	}
	return model.AccountCollection{}, ErrNotFound
}

// Len is the number of stored documents.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
