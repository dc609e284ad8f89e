package registry

import (
	"context"
	"sync"

	"github.com/northlane-labs/social-tracker/internal/models"
)

// MemoryStore is an in-memory Store, the reference implementation used by
// default and in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*models.Account
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*models.Account)}
}

func (s *MemoryStore) LoadAll(ctx context.Context) ([]*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a.Clone())
	}
	return out, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = account.Clone()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, id)
	return nil
}
