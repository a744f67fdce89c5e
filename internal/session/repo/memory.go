package repo

import (
	"context"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/session/entity"
)

// MemoryRepo is an in-process Store with the same uniqueness and versioning
// rules as the Postgres one.
type MemoryRepo struct {
	mu       sync.Mutex
	sessions map[string]*entity.Session
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{sessions: make(map[string]*entity.Session)}
}

func (r *MemoryRepo) Create(_ context.Context, s *entity.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.Status == entity.StatusActive {
		for _, other := range r.sessions {
			if other.Status == entity.StatusActive && other.PhoneNumber == s.PhoneNumber && other.Flow == s.Flow {
				return ErrActiveSessionExists
			}
		}
	}
	if s.Version == 0 {
		s.Version = 1
	}
	r.sessions[s.ID] = s.Clone()
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (*entity.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (r *MemoryRepo) FindActive(_ context.Context, phone string, flow entity.Flow) (*entity.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.Status == entity.StatusActive && s.PhoneNumber == phone && s.Flow == flow {
			return s.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepo) Update(_ context.Context, s *entity.Session, expected int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.sessions[s.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != expected {
		return ErrVersionConflict
	}
	s.Version = expected + 1
	r.sessions[s.ID] = s.Clone()
	return nil
}

func (r *MemoryRepo) LatestDraft(_ context.Context, phone, excludeID string) (*entity.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *entity.Session
	for _, s := range r.sessions {
		if s.ID == excludeID || s.PhoneNumber != phone || s.Flow != entity.FlowRegistration {
			continue
		}
		if s.State == entity.StateRegistered || s.State == entity.StateAlreadyMember {
			continue
		}
		f, ok := s.Fields.(*entity.RegistrationFields)
		if !ok || f.BankCode == "" {
			continue
		}
		if best == nil || s.StartedAt.After(best.StartedAt) {
			best = s
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best.Clone(), nil
}

func (r *MemoryRepo) ExpireStale(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.sessions {
		if s.Expired(now) {
			s.Status = entity.StatusExpired
			s.Version++
			n++
		}
	}
	return n, nil
}
