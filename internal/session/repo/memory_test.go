package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/session/entity"
)

var t0 = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

func newSession(id, phone string, flow entity.Flow) *entity.Session {
	s := &entity.Session{
		ID:          id,
		PhoneNumber: phone,
		Flow:        flow,
		State:       entity.StateWelcome,
		Fields:      entity.NewFields(flow),
		Status:      entity.StatusActive,
		StartedAt:   t0,
	}
	s.Touch(t0, 5*time.Minute)
	return s
}

func TestCreateKeepsOneActiveSessionPerPhoneAndFlow(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	if err := r.Create(ctx, newSession("a", "+258841234567", entity.FlowRegistration)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.Create(ctx, newSession("b", "+258841234567", entity.FlowRegistration)); !errors.Is(err, ErrActiveSessionExists) {
		t.Fatalf("expected ErrActiveSessionExists, got %v", err)
	}
	if err := r.Create(ctx, newSession("c", "+258841234567", entity.FlowLoanRequest)); err != nil {
		t.Fatalf("other flow must be allowed: %v", err)
	}
	found, err := r.FindActive(ctx, "+258841234567", entity.FlowRegistration)
	if err != nil || found.ID != "a" {
		t.Fatalf("expected session a, got %v, %v", found, err)
	}
}

func TestUpdateIsCompareAndSwap(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	if err := r.Create(ctx, newSession("a", "+258841234567", entity.FlowRegistration)); err != nil {
		t.Fatal(err)
	}
	first, _ := r.Get(ctx, "a")
	second, _ := r.Get(ctx, "a")

	first.State = entity.StateNUIT
	if err := r.Update(ctx, first, first.Version); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if first.Version != 2 {
		t.Fatalf("expected version 2, got %d", first.Version)
	}
	second.State = entity.StateCancelled
	if err := r.Update(ctx, second, second.Version); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale writer must conflict, got %v", err)
	}
	stored, _ := r.Get(ctx, "a")
	if stored.State != entity.StateNUIT {
		t.Fatalf("stale write leaked: %s", stored.State)
	}
	if err := r.Update(ctx, newSession("missing", "x", entity.FlowRegistration), 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoredSessionsAreCopies(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	s := newSession("a", "+258841234567", entity.FlowRegistration)
	if err := r.Create(ctx, s); err != nil {
		t.Fatal(err)
	}
	s.Fields.(*entity.RegistrationFields).NUIT = "999999999"
	got, _ := r.Get(ctx, "a")
	if got.Fields.(*entity.RegistrationFields).NUIT != "" {
		t.Fatal("caller mutation must not reach the store")
	}
}

func TestLatestDraft(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	phone := "+258841234567"

	old := newSession("old", phone, entity.FlowRegistration)
	old.Status = entity.StatusExpired
	old.State = entity.StateVerifyCode
	old.Fields = &entity.RegistrationFields{NUIT: "123456789", BankCode: "BIM"}
	newer := newSession("newer", phone, entity.FlowRegistration)
	newer.Status = entity.StatusExpired
	newer.StartedAt = t0.Add(time.Hour)
	newer.State = entity.StateSalary
	newer.Fields = &entity.RegistrationFields{NUIT: "123456789"}
	done := newSession("done", phone, entity.FlowRegistration)
	done.Status = entity.StatusCompleted
	done.StartedAt = t0.Add(2 * time.Hour)
	done.State = entity.StateRegistered
	done.Fields = &entity.RegistrationFields{BankCode: "BCI"}
	for _, s := range []*entity.Session{old, newer, done} {
		if err := r.Create(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	d, err := r.LatestDraft(ctx, phone, "current")
	if err != nil || d.ID != "old" {
		t.Fatalf("expected draft old, got %v, %v", d, err)
	}
	if _, err := r.LatestDraft(ctx, phone, "old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExpireStale(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	if err := r.Create(ctx, newSession("a", "+258841234567", entity.FlowRegistration)); err != nil {
		t.Fatal(err)
	}
	if n, _ := r.ExpireStale(ctx, t0.Add(time.Minute)); n != 0 {
		t.Fatalf("nothing should expire yet, got %d", n)
	}
	if n, _ := r.ExpireStale(ctx, t0.Add(5*time.Minute)); n != 1 {
		t.Fatalf("expected one expiry, got %d", n)
	}
	s, _ := r.Get(ctx, "a")
	if s.Status != entity.StatusExpired {
		t.Fatalf("expected EXPIRED, got %s", s.Status)
	}
}
