package partner

import (
	"context"
	"math"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/pkg/utilities"
)

// Simulated answers deterministically from its settings. It stands in for a
// partner in local runs: an identity is eligible when its salary reaches
// MinSalary, and the limit is salary × SalaryMultiple capped at MaxAmount.
type Simulated struct {
	settings Settings
}

func NewSimulated(s Settings) *Simulated { return &Simulated{settings: s} }

func (s *Simulated) Code() string { return s.settings.Code }
func (s *Simulated) Name() string { return s.settings.Name }
func (s *Simulated) Kind() Kind   { return s.settings.Kind }

func (s *Simulated) CheckEligibility(ctx context.Context, id Identity) (Eligibility, error) {
	if err := ctx.Err(); err != nil {
		return Eligibility{PartnerCode: s.settings.Code}, err
	}
	e := Eligibility{PartnerCode: s.settings.Code, Terms: []int{3, 6, 12}}
	if id.Salary < s.settings.MinSalary {
		e.Reason = "salary below partner minimum"
		return e, nil
	}
	e.Eligible = true
	limit := s.settings.MaxAmount
	if s.settings.SalaryMultiple > 0 && id.Salary > 0 {
		limit = math.Min(limit, id.Salary*s.settings.SalaryMultiple)
	}
	e.MaxAmount = limit
	return e, nil
}

func (s *Simulated) Disburse(ctx context.Context, req DisbursementRequest) (Disbursement, error) {
	if err := ctx.Err(); err != nil {
		return Disbursement{}, err
	}
	return Disbursement{Success: true, TransactionID: utilities.NewULID(), Message: "simulated"}, nil
}

func (s *Simulated) Balance(ctx context.Context, phone string) (Balance, error) {
	return Balance{Active: true}, ctx.Err()
}

func (s *Simulated) TestConnection(ctx context.Context) error { return ctx.Err() }
