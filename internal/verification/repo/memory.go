package repo

import (
	"context"
	"sync"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/verification/entity"
)

type MemoryRepo struct {
	mu    sync.Mutex
	codes map[string]entity.Code
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{codes: make(map[string]entity.Code)}
}

func (r *MemoryRepo) Save(_ context.Context, c *entity.Code) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	saved := *c
	saved.Attempts = 0
	r.codes[c.PhoneNumber] = saved
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, phone string) (*entity.Code, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[phone]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (r *MemoryRepo) IncrementAttempts(_ context.Context, phone string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[phone]
	if !ok {
		return 0, ErrNotFound
	}
	c.Attempts++
	r.codes[phone] = c
	return c.Attempts, nil
}

func (r *MemoryRepo) Delete(_ context.Context, phone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.codes, phone)
	return nil
}
