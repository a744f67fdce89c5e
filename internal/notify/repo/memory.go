package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/notify/entity"
)

// MemoryOutbox is an in-process Outbox.
type MemoryOutbox struct {
	mu    sync.Mutex
	items map[string]entity.Notification
}

func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{items: make(map[string]entity.Notification)}
}

func (o *MemoryOutbox) Enqueue(_ context.Context, n *entity.Notification) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items[n.ID] = *n
	return nil
}

func (o *MemoryOutbox) Pending(_ context.Context, limit int) ([]entity.Notification, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []entity.Notification
	for _, n := range o.items {
		if n.Status == entity.StatusPending {
			out = append(out, n)
		}
	}
	sortByCreated(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (o *MemoryOutbox) MarkSent(_ context.Context, id string, at time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	n, ok := o.items[id]
	if !ok {
		return ErrNotFound
	}
	n.Status = entity.StatusSent
	n.Attempts++
	n.SentAt = &at
	o.items[id] = n
	return nil
}

func (o *MemoryOutbox) MarkFailed(_ context.Context, id, reason string, giveUp bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	n, ok := o.items[id]
	if !ok {
		return ErrNotFound
	}
	n.Attempts++
	n.LastError = reason
	if giveUp {
		n.Status = entity.StatusFailed
	}
	o.items[id] = n
	return nil
}

// All returns every stored notification for the phone, oldest first.
func (o *MemoryOutbox) All(phone string) []entity.Notification {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []entity.Notification
	for _, n := range o.items {
		if phone == "" || n.PhoneNumber == phone {
			out = append(out, n)
		}
	}
	sortByCreated(out)
	return out
}

func sortByCreated(ns []entity.Notification) {
	sort.Slice(ns, func(i, j int) bool {
		if ns[i].CreatedAt.Equal(ns[j].CreatedAt) {
			return ns[i].ID < ns[j].ID
		}
		return ns[i].CreatedAt.Before(ns[j].CreatedAt)
	})
}
