package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Status is the loan lifecycle position.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAnalyzing Status = "ANALYZING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusDisbursed Status = "DISBURSED"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusDefaulted Status = "DEFAULTED"
)

// Open reports whether the loan still blocks a new request.
func (s Status) Open() bool {
	switch s {
	case StatusPending, StatusAnalyzing, StatusApproved, StatusDisbursed, StatusActive:
		return true
	}
	return false
}

// Originated reports whether the loan was approved at some point. Only
// originated loans count as credit history.
func (s Status) Originated() bool {
	switch s {
	case StatusApproved, StatusDisbursed, StatusActive, StatusCompleted, StatusDefaulted:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusPending:   {StatusAnalyzing, StatusRejected},
	StatusAnalyzing: {StatusApproved, StatusRejected},
	StatusApproved:  {StatusDisbursed},
	StatusDisbursed: {StatusActive},
	StatusActive:    {StatusCompleted, StatusDefaulted},
}

// CanTransition reports whether from → to is a legal lifecycle step.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Outcome is the decision engine verdict.
type Outcome string

const (
	OutcomeApproved     Outcome = "APPROVED"
	OutcomeRejected     Outcome = "REJECTED"
	OutcomeManualReview Outcome = "MANUAL_REVIEW"
)

// StatusFor is the loan status a decision leaves behind. Manual review keeps
// the loan in ANALYZING.
func StatusFor(o Outcome) Status {
	switch o {
	case OutcomeApproved:
		return StatusApproved
	case OutcomeRejected:
		return StatusRejected
	default:
		return StatusAnalyzing
	}
}

// Loan is one credit request. RequestKey makes creation idempotent; the USSD
// controller uses the session id.
type Loan struct {
	ID             string     `db:"id" json:"id"`
	PhoneNumber    string     `db:"phone_number" json:"phone_number"`
	RequestKey     string     `db:"request_key" json:"request_key"`
	Amount         float64    `db:"amount" json:"amount"`
	TermMonths     int        `db:"term_months" json:"term_months"`
	Status         Status     `db:"status" json:"status"`
	MaxAmount      float64    `db:"max_amount" json:"max_amount"`
	DecisionID     *string    `db:"decision_id" json:"decision_id,omitempty"`
	PartnerCode    string     `db:"partner_code" json:"partner_code"`
	TransactionID  *string    `db:"transaction_id" json:"transaction_id,omitempty"`
	RejectedReason *string    `db:"rejected_reason" json:"rejected_reason,omitempty"`
	ApprovedAt     *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	DisbursedAt    *time.Time `db:"disbursed_at" json:"disbursed_at,omitempty"`
	DueAt          *time.Time `db:"due_at" json:"due_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Terms is a list of loan terms in months stored as a JSON array.
type Terms []int

func (t Terms) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]int(t))
	return string(b), err
}

func (t *Terms) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*t = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("terms: unsupported type %T", src)
	}
	return json.Unmarshal(raw, (*[]int)(t))
}

// Decision is the persisted verdict for a loan. Score fields are nil when a
// rule decided without running the scoring formula.
type Decision struct {
	ID           string         `db:"id" json:"id"`
	LoanID       string         `db:"loan_id" json:"loan_id"`
	Outcome      Outcome        `db:"outcome" json:"outcome"`
	Rule         string         `db:"rule" json:"rule"`
	MaxAmount    float64        `db:"max_amount" json:"max_amount"`
	AllowedTerms Terms          `db:"allowed_terms" json:"allowed_terms"`
	Reason       string         `db:"reason" json:"reason"`
	FinalScore   *int           `db:"final_score" json:"final_score,omitempty"`
	RiskTier     *string        `db:"risk_tier" json:"risk_tier,omitempty"`
	Factors      types.JSONText `db:"factors" json:"factors,omitempty"`
	BankLimit    *float64       `db:"bank_limit" json:"bank_limit,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}
