// Package notify queues customer SMS in an outbox and delivers them in the
// background, so a USSD request never waits on the SMS provider.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/notify/entity"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/notify/repo"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/pkg/utilities"
)

// MaxAttempts is how many deliveries are tried before a notification is
// marked FAILED.
const MaxAttempts = 5

const batchSize = 50

// Queue adds notifications to the outbox.
type Queue struct {
	outbox repo.Outbox
	clock  clockwork.Clock
}

func NewQueue(outbox repo.Outbox, clock clockwork.Clock) *Queue {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Queue{outbox: outbox, clock: clock}
}

// Enqueue stores a pending SMS for phone.
func (q *Queue) Enqueue(ctx context.Context, phone, message string) error {
	n := &entity.Notification{
		ID:          utilities.NewUUID(),
		PhoneNumber: phone,
		Message:     message,
		Status:      entity.StatusPending,
		CreatedAt:   q.clock.Now().UTC(),
	}
	if err := q.outbox.Enqueue(ctx, n); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// Dispatcher drains the outbox through a Sender.
type Dispatcher struct {
	outbox   repo.Outbox
	sender   Sender
	logger   *zap.SugaredLogger
	clock    clockwork.Clock
	interval time.Duration
}

func NewDispatcher(outbox repo.Outbox, sender Sender, logger *zap.SugaredLogger, clock clockwork.Clock, interval time.Duration) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Dispatcher{outbox: outbox, sender: sender, logger: logger, clock: clock, interval: interval}
}

// RunOnce sends one batch of pending notifications.
func (d *Dispatcher) RunOnce(ctx context.Context) (sent, failed int, err error) {
	pending, err := d.outbox.Pending(ctx, batchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("load pending notifications: %w", err)
	}
	for _, n := range pending {
		if ctx.Err() != nil {
			return sent, failed, ctx.Err()
		}
		if sendErr := d.sender.Send(ctx, n.PhoneNumber, n.Message); sendErr != nil {
			failed++
			giveUp := n.Attempts+1 >= MaxAttempts
			d.logger.Warnw("notification delivery failed", "id", n.ID, "attempt", n.Attempts+1, "give_up", giveUp, "err", sendErr)
			if err := d.outbox.MarkFailed(ctx, n.ID, sendErr.Error(), giveUp); err != nil {
				return sent, failed, err
			}
			continue
		}
		sent++
		if err := d.outbox.MarkSent(ctx, n.ID, d.clock.Now().UTC()); err != nil {
			return sent, failed, err
		}
	}
	return sent, failed, nil
}

// Run calls RunOnce every interval until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := d.clock.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		if sent, failed, err := d.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Errorw("notification dispatch failed", "err", err)
		} else if sent+failed > 0 {
			d.logger.Debugw("notifications dispatched", "sent", sent, "failed", failed)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
	}
}
