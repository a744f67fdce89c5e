package repo

import (
	"context"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/customer/entity"
)

// MemoryRepo is an in-process Store for local runs and tests.
type MemoryRepo struct {
	mu      sync.RWMutex
	byPhone map[string]entity.Customer
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byPhone: make(map[string]entity.Customer)}
}

func (r *MemoryRepo) GetByPhone(_ context.Context, phone string) (*entity.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byPhone[phone]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (r *MemoryRepo) Upsert(_ context.Context, c *entity.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.NUIT != nil {
		for phone, other := range r.byPhone {
			if phone != c.PhoneNumber && other.NUIT != nil && *other.NUIT == *c.NUIT {
				return ErrDuplicateNUIT
			}
		}
	}
	now := time.Now().UTC()
	if prev, ok := r.byPhone[c.PhoneNumber]; ok {
		c.ID = prev.ID
		c.CreatedAt = prev.CreatedAt
	} else if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	r.byPhone[c.PhoneNumber] = *c
	return nil
}
