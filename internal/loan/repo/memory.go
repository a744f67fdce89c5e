package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/loan/entity"
)

// MemoryRepo is an in-process Store for local runs and tests.
type MemoryRepo struct {
	mu        sync.Mutex
	loans     map[string]entity.Loan
	byKey     map[string]string
	decisions map[string]entity.Decision
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		loans:     make(map[string]entity.Loan),
		byKey:     make(map[string]string),
		decisions: make(map[string]entity.Decision),
	}
}

func (r *MemoryRepo) Create(_ context.Context, l *entity.Loan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[l.RequestKey]; ok {
		return ErrDuplicateRequest
	}
	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	r.loans[l.ID] = *l
	r.byKey[l.RequestKey] = l.ID
	return nil
}

func (r *MemoryRepo) GetByRequestKey(_ context.Context, key string) (*entity.Loan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byKey[key]
	if !ok {
		return nil, ErrNotFound
	}
	l := r.loans[id]
	return &l, nil
}

func (r *MemoryRepo) ListByPhone(_ context.Context, phone string) ([]entity.Loan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Loan
	for _, l := range r.loans {
		if l.PhoneNumber == phone {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepo) ApplyDecision(_ context.Context, loanID string, expected entity.Status, d *entity.Decision) (*entity.Loan, error) {
	next := entity.StatusFor(d.Outcome)
	if next != expected && !entity.CanTransition(expected, next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, expected, next)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.loans[loanID]
	if !ok {
		return nil, ErrNotFound
	}
	if l.Status != expected {
		return nil, ErrStatusConflict
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	d.LoanID = loanID

	l.Status = next
	l.MaxAmount = d.MaxAmount
	l.DecisionID = &d.ID
	switch d.Outcome {
	case entity.OutcomeApproved:
		at := d.CreatedAt
		l.ApprovedAt = &at
	case entity.OutcomeRejected:
		reason := d.Reason
		l.RejectedReason = &reason
	}
	l.UpdatedAt = d.CreatedAt
	r.decisions[loanID] = *d
	r.loans[loanID] = l
	return &l, nil
}

func (r *MemoryRepo) UpdateStatus(_ context.Context, loanID string, t Transition) (*entity.Loan, error) {
	if !entity.CanTransition(t.From, t.To) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, t.From, t.To)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.loans[loanID]
	if !ok {
		return nil, ErrNotFound
	}
	if l.Status != t.From {
		return nil, ErrStatusConflict
	}
	l.Status = t.To
	if t.PartnerCode != "" {
		l.PartnerCode = t.PartnerCode
	}
	if t.TransactionID != nil {
		l.TransactionID = t.TransactionID
	}
	if t.DisbursedAt != nil {
		l.DisbursedAt = t.DisbursedAt
	}
	if t.DueAt != nil {
		l.DueAt = t.DueAt
	}
	l.UpdatedAt = time.Now().UTC()
	r.loans[loanID] = l
	return &l, nil
}

func (r *MemoryRepo) GetDecision(_ context.Context, loanID string) (*entity.Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.decisions[loanID]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}
