package entity

import "time"

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

// Notification is one queued SMS.
type Notification struct {
	ID          string     `db:"id" json:"id"`
	PhoneNumber string     `db:"phone_number" json:"phone_number"`
	Message     string     `db:"message" json:"message"`
	Status      Status     `db:"status" json:"status"`
	Attempts    int        `db:"attempts" json:"attempts"`
	LastError   string     `db:"last_error" json:"last_error,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	SentAt      *time.Time `db:"sent_at" json:"sent_at,omitempty"`
}
