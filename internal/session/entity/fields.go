package entity

import (
	"encoding/json"
	"fmt"

	customerentity "github.com/ovaphlow/pitchfork/service-ussd-credit/internal/customer/entity"
)

// Fields is the data a flow accumulates. Exactly two variants exist:
// *RegistrationFields and *LoanRequestFields.
type Fields interface {
	Flow() Flow
	Clone() Fields
}

// RegistrationFields are collected by the REGISTRATION flow. Dates keep the
// DD/MM/YYYY text the customer typed.
type RegistrationFields struct {
	NUIT         string                    `json:"nuit,omitempty"`
	FullName     string                    `json:"full_name,omitempty"`
	NationalID   string                    `json:"national_id,omitempty"`
	IDIssueDate  string                    `json:"id_issue_date,omitempty"`
	IDExpiryDate string                    `json:"id_expiry_date,omitempty"`
	Profession   customerentity.Profession `json:"profession,omitempty"`
	Salary       float64                   `json:"salary,omitempty"`
	BankCode     string                    `json:"bank_code,omitempty"`
	CodeVerified bool                      `json:"code_verified,omitempty"`
	ResumedFrom  string                    `json:"resumed_from,omitempty"`
	CreditLimit  float64                   `json:"credit_limit,omitempty"`
	AssignedBank string                    `json:"assigned_bank,omitempty"`
}

func (f *RegistrationFields) Flow() Flow { return FlowRegistration }

func (f *RegistrationFields) Clone() Fields {
	c := *f
	return &c
}

// LoanRequestFields are collected by the LOAN_REQUEST flow.
type LoanRequestFields struct {
	CustomerName string  `json:"customer_name,omitempty"`
	CreditLimit  float64 `json:"credit_limit,omitempty"`
	Amount       float64 `json:"amount,omitempty"`
	TermMonths   int     `json:"term_months,omitempty"`
	LoanID       string  `json:"loan_id,omitempty"`
	Outcome      string  `json:"outcome,omitempty"`
}

func (f *LoanRequestFields) Flow() Flow { return FlowLoanRequest }

func (f *LoanRequestFields) Clone() Fields {
	c := *f
	return &c
}

// NewFields returns the empty variant for flow.
func NewFields(flow Flow) Fields {
	if flow == FlowLoanRequest {
		return &LoanRequestFields{}
	}
	return &RegistrationFields{}
}

type envelope struct {
	Flow Flow            `json:"flow"`
	Data json.RawMessage `json:"data"`
}

// MarshalFields encodes f as {"flow": ..., "data": {...}}.
func MarshalFields(f Fields) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("marshal fields: nil")
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Flow: f.Flow(), Data: data})
}

// UnmarshalFields decodes the envelope written by MarshalFields.
func UnmarshalFields(raw []byte) (Fields, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	var f Fields
	switch env.Flow {
	case FlowRegistration:
		f = &RegistrationFields{}
	case FlowLoanRequest:
		f = &LoanRequestFields{}
	default:
		return nil, fmt.Errorf("unmarshal fields: unknown flow %q", env.Flow)
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, f); err != nil {
			return nil, fmt.Errorf("unmarshal fields: %w", err)
		}
	}
	return f, nil
}
