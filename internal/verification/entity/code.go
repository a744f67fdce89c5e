package entity

import "time"

// Code is the outstanding verification code for a phone. Only the bcrypt
// hash is stored; issuing a new code replaces the previous one.
type Code struct {
	PhoneNumber string    `db:"phone_number"`
	CodeHash    string    `db:"code_hash"`
	IssuedAt    time.Time `db:"issued_at"`
	ExpiresAt   time.Time `db:"expires_at"`
	Attempts    int       `db:"attempts"`
}
