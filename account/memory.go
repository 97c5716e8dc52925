package account

import (
	"context"
	"sync"
)

// MemoryRepository is an in-process Repository for tests and bootstrap
// tooling. Production deployments plug a durable implementation into the
// same interface.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]*Account
	byEmail map[string]string
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[string]*Account),
		byEmail: make(map[string]string),
	}
}

func (r *MemoryRepository) Create(ctx context.Context, acct *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[acct.Email]; exists {
		return ErrEmailTaken
	}

	stored := acct.Clone()
	r.byID[stored.ID] = stored
	r.byEmail[stored.Email] = stored.ID
	return nil
}

func (r *MemoryRepository) ByID(ctx context.Context, id string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	acct, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return acct.Clone(), nil
}

func (r *MemoryRepository) ByEmail(ctx context.Context, email string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return r.byID[id].Clone(), nil
}

func (r *MemoryRepository) Save(ctx context.Context, acct *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[acct.ID]
	if !ok {
		return ErrNotFound
	}

	stored := acct.Clone()
	// Revocation version advances only through IncrementRevocation.
	stored.RevocationVersion = current.RevocationVersion
	r.byID[stored.ID] = stored
	return nil
}

func (r *MemoryRepository) IncrementRevocation(ctx context.Context, id string) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acct, ok := r.byID[id]
	if !ok {
		return 0, ErrNotFound
	}
	acct.RevocationVersion++
	return acct.RevocationVersion, nil
}
