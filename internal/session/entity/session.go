package entity

import (
	"time"
)

// Flow names a dialogue.
type Flow string

const (
	FlowRegistration Flow = "REGISTRATION"
	FlowLoanRequest  Flow = "LOAN_REQUEST"
)

func (f Flow) Valid() bool { return f == FlowRegistration || f == FlowLoanRequest }

// Status is the session lifecycle.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusExpired   Status = "EXPIRED"
	StatusError     Status = "ERROR"
)

// Session is one USSD dialogue. Version increases on every write and guards
// concurrent updates.
type Session struct {
	ID             string
	PhoneNumber    string
	Flow           Flow
	State          State
	Fields         Fields
	Status         Status
	StartedAt      time.Time
	LastActivityAt time.Time
	ExpiresAt      time.Time
	Version        int64
	Meta           RecordMeta
}

// Expired reports whether an ACTIVE session has passed its expiry.
func (s *Session) Expired(now time.Time) bool {
	return s.Status == StatusActive && !now.Before(s.ExpiresAt)
}

// Touch records activity and slides the expiry window.
func (s *Session) Touch(now time.Time, ttl time.Duration) {
	s.LastActivityAt = now
	s.ExpiresAt = now.Add(ttl)
}

// Clone returns a copy that shares nothing mutable with s.
func (s *Session) Clone() *Session {
	c := *s
	if s.Fields != nil {
		c.Fields = s.Fields.Clone()
	}
	if s.Meta.Pending != nil {
		p := *s.Meta.Pending
		c.Meta.Pending = &p
	}
	return &c
}

// RecordMeta is bookkeeping kept next to the dialogue: the last answered
// request for replays and the effect currently being executed, if any.
type RecordMeta struct {
	LastInput     string    `json:"last_input,omitempty"`
	LastRequestID string    `json:"last_request_id,omitempty"`
	LastResponse  string    `json:"last_response,omitempty"`
	LastAt        time.Time `json:"last_at,omitempty"`
	Pending       *Pending  `json:"pending,omitempty"`
}

// Pending marks an effect in flight. A second request arriving with the same
// input waits for it instead of running the effect again.
type Pending struct {
	Effect    string    `json:"effect"`
	Input     string    `json:"input"`
	RequestID string    `json:"request_id,omitempty"`
	Since     time.Time `json:"since"`
}
