package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/notify/entity"
)

var ErrNotFound = errors.New("notification not found")

// Outbox stores notifications until a dispatcher delivers them.
type Outbox interface {
	Enqueue(ctx context.Context, n *entity.Notification) error
	// Pending returns up to limit undelivered notifications, oldest first.
	Pending(ctx context.Context, limit int) ([]entity.Notification, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	// MarkFailed records a failed attempt; giveUp moves it out of the queue.
	MarkFailed(ctx context.Context, id, reason string, giveUp bool) error
}

// OutboxRepo is the Postgres Outbox.
type OutboxRepo struct {
	db *sqlx.DB
}

func NewOutboxRepo(db *sqlx.DB) *OutboxRepo {
	return &OutboxRepo{db: db}
}

// EnsureTable creates the notifications table if it does not already exist.
func (r *OutboxRepo) EnsureTable(ctx context.Context) error {
	const tbl = `
	CREATE TABLE IF NOT EXISTS notifications (
		id varchar(36) PRIMARY KEY,
		phone_number varchar(16) NOT NULL,
		message text NOT NULL,
		status varchar(16) NOT NULL DEFAULT 'PENDING',
		attempts int NOT NULL DEFAULT 0,
		last_error text NOT NULL DEFAULT '',
		created_at timestamptz NOT NULL DEFAULT NOW(),
		sent_at timestamptz
	);
	`
	if _, err := r.db.ExecContext(ctx, tbl); err != nil {
		return err
	}

	const idx = `
	CREATE INDEX IF NOT EXISTS idx_notifications_pending ON notifications (created_at) WHERE status = 'PENDING';
	`
	if _, err := r.db.ExecContext(ctx, idx); err != nil {
		return err
	}

	const idxPhone = `
	CREATE INDEX IF NOT EXISTS idx_notifications_phone ON notifications (phone_number);
	`
	if _, err := r.db.ExecContext(ctx, idxPhone); err != nil {
		return err
	}
	return nil
}

func (r *OutboxRepo) Enqueue(ctx context.Context, n *entity.Notification) error {
	const q = `INSERT INTO notifications (id, phone_number, message, status, attempts, last_error, created_at)
		VALUES (:id, :phone_number, :message, :status, :attempts, :last_error, :created_at)`
	_, err := r.db.NamedExecContext(ctx, q, n)
	return err
}

// Pending locks nothing; a notification picked by two dispatchers may be
// sent twice, so run a single dispatcher per database.
func (r *OutboxRepo) Pending(ctx context.Context, limit int) ([]entity.Notification, error) {
	var out []entity.Notification
	err := r.db.SelectContext(ctx, &out, `SELECT id, phone_number, message, status, attempts, last_error, created_at, sent_at
		FROM notifications WHERE status='PENDING' ORDER BY created_at LIMIT $1`, limit)
	return out, err
}

func (r *OutboxRepo) MarkSent(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET status='SENT', attempts=attempts+1, sent_at=$2 WHERE id=$1`, id, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *OutboxRepo) MarkFailed(ctx context.Context, id, reason string, giveUp bool) error {
	status := entity.StatusPending
	if giveUp {
		status = entity.StatusFailed
	}
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET status=$2, attempts=attempts+1, last_error=$3 WHERE id=$1`, id, status, reason)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
