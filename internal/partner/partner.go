// Package partner talks to partner banks and mobile-money operators.
//
// Every partner variant implements the Partner capability interface and is
// registered under its code in a Registry. The Gateway wraps the registry with
// per-call timeouts, health counters, the multi-partner eligibility sweep and
// retried disbursements, and converts transport failures into typed outcomes
// before they reach the USSD flow.
package partner

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the business role of a partner.
type Kind string

const (
	KindBank        Kind = "bank"
	KindMobileMoney Kind = "mobile_money"
)

var (
	ErrUnknownPartner     = errors.New("unknown partner")
	ErrPartnerUnavailable = errors.New("partner unavailable")
	ErrNoPartnerAvailable = errors.New("no partner available")
	ErrDeclined           = errors.New("disbursement declined by partner")
)

// Identity is what partners receive to decide eligibility.
type Identity struct {
	PhoneNumber string  `json:"phone_number"`
	NUIT        string  `json:"nuit"`
	FullName    string  `json:"full_name"`
	NationalID  string  `json:"national_id"`
	Salary      float64 `json:"monthly_salary"`
	SalaryBank  string  `json:"salary_bank"`
}

// Eligibility is a partner's answer for one identity. MaxAmount is zero when
// the partner does not report a limit.
type Eligibility struct {
	PartnerCode string
	Eligible    bool
	MaxAmount   float64
	Terms       []int
	Reason      string
}

// DisbursementRequest asks a partner to pay out an approved loan. Reference
// is the idempotency key and stays the same across retries.
type DisbursementRequest struct {
	LoanID      string
	Amount      float64
	Destination string
	Reference   string
}

type Disbursement struct {
	Success       bool
	TransactionID string
	Message       string
}

type Balance struct {
	Active  bool
	Balance float64
}

// Partner is the capability set every bank or operator adapter provides.
type Partner interface {
	Code() string
	Name() string
	Kind() Kind
	CheckEligibility(ctx context.Context, id Identity) (Eligibility, error)
	Disburse(ctx context.Context, req DisbursementRequest) (Disbursement, error)
	Balance(ctx context.Context, phone string) (Balance, error)
	TestConnection(ctx context.Context) error
}

// StatusError is returned by HTTP adapters for non-2xx answers.
type StatusError struct {
	Partner    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("partner %s answered %d: %s", e.Partner, e.StatusCode, e.Body)
}

// IsTransient reports whether a failed call is worth retrying: connection
// failures, timeouts, 429 and 5xx. Other 4xx answers are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrDeclined) || errors.Is(err, ErrUnknownPartner) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		if se.StatusCode == 429 || se.StatusCode >= 500 {
			return true
		}
		return se.StatusCode < 400
	}
	return true
}
