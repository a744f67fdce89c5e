package ussd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/customer"
	customerrepo "github.com/ovaphlow/pitchfork/service-ussd-credit/internal/customer/repo"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/flow"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/loan"
	loanentity "github.com/ovaphlow/pitchfork/service-ussd-credit/internal/loan/entity"
	loanrepo "github.com/ovaphlow/pitchfork/service-ussd-credit/internal/loan/repo"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/session/entity"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/session/repo"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/verification"
)

// Executor runs flow effects against the domain services.
type Executor struct {
	customers *customer.Service
	loans     *loan.Service
	codes     *verification.Service
	sessions  repo.Store
	logger    *zap.SugaredLogger
}

func NewExecutor(customers *customer.Service, loans *loan.Service, codes *verification.Service, sessions repo.Store, logger *zap.SugaredLogger) *Executor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Executor{customers: customers, loans: loans, codes: codes, sessions: sessions, logger: logger}
}

// Facts loads what the dialogue needs to know about phone up front.
func (x *Executor) Facts(ctx context.Context, phone string) (flow.Facts, error) {
	c, err := x.customers.Get(ctx, phone)
	if errors.Is(err, customerrepo.ErrNotFound) {
		return flow.Facts{}, nil
	}
	if err != nil {
		return flow.Facts{}, err
	}
	return flow.Facts{Verified: c.Verified, CustomerName: c.FullName, CreditLimit: c.CreditLimit}, nil
}

func (x *Executor) Execute(ctx context.Context, s *entity.Session, eff flow.Effect) flow.Result {
	switch eff.Kind {
	case flow.EffectSendCode:
		return flow.Result{Err: x.codes.Issue(ctx, s.PhoneNumber)}
	case flow.EffectCheckCode:
		return x.checkCode(ctx, s.PhoneNumber, eff.Code)
	case flow.EffectLoadDraft:
		return x.loadDraft(ctx, s)
	case flow.EffectFinalize:
		return x.finalize(ctx, s)
	case flow.EffectLoanStatus:
		return x.loanStatus(ctx, s.PhoneNumber)
	case flow.EffectProcessLoan:
		return x.processLoan(ctx, s)
	}
	return flow.Result{Err: fmt.Errorf("unknown effect %q", eff.Kind)}
}

func (x *Executor) checkCode(ctx context.Context, phone, code string) flow.Result {
	err := x.codes.Verify(ctx, phone, code)
	switch {
	case err == nil:
		return flow.Result{Code: flow.CodeOK}
	case errors.Is(err, verification.ErrCodeMismatch):
		return flow.Result{Code: flow.CodeMismatch}
	case errors.Is(err, verification.ErrCodeExpired):
		return flow.Result{Code: flow.CodeExpired}
	case errors.Is(err, verification.ErrNoCode):
		return flow.Result{Code: flow.CodeMissing}
	case errors.Is(err, verification.ErrTooManyAttempts):
		return flow.Result{Code: flow.CodeLocked}
	}
	return flow.Result{Err: err}
}

func (x *Executor) loadDraft(ctx context.Context, s *entity.Session) flow.Result {
	d, err := x.sessions.LatestDraft(ctx, s.PhoneNumber, s.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return flow.Result{Draft: &flow.DraftResult{}}
	}
	if err != nil {
		return flow.Result{Err: err}
	}
	f, ok := d.Fields.(*entity.RegistrationFields)
	if !ok {
		return flow.Result{Draft: &flow.DraftResult{}}
	}
	x.logger.Infow("registration draft resumed", "session_id", s.ID, "draft_id", d.ID)
	return flow.Result{Draft: &flow.DraftResult{SessionID: d.ID, Fields: f}}
}

func (x *Executor) finalize(ctx context.Context, s *entity.Session) flow.Result {
	f, ok := s.Fields.(*entity.RegistrationFields)
	if !ok {
		return flow.Result{Err: fmt.Errorf("finalize: unexpected fields %T", s.Fields)}
	}
	reg, err := x.customers.Register(ctx, s.PhoneNumber, customer.Application{
		NUIT:         f.NUIT,
		FullName:     f.FullName,
		NationalID:   f.NationalID,
		IDIssueDate:  f.IDIssueDate,
		IDExpiryDate: f.IDExpiryDate,
		Profession:   f.Profession,
		Salary:       f.Salary,
		SalaryBank:   f.BankCode,
	})
	if err != nil {
		return flow.Result{Err: err}
	}
	out := &flow.RegistrationResult{BankName: reg.PartnerName}
	switch reg.Outcome {
	case customer.Registered:
		out.Outcome = flow.Registered
		out.BankCode = reg.Customer.AssignedBank
		out.CreditLimit = reg.Customer.CreditLimit
	case customer.NoPartner:
		out.Outcome = flow.NoPartner
	default:
		out.Outcome = flow.NotEligible
	}
	return flow.Result{Registration: out}
}

func (x *Executor) loanStatus(ctx context.Context, phone string) flow.Result {
	l, err := x.loans.Latest(ctx, phone)
	if errors.Is(err, loanrepo.ErrNotFound) {
		return flow.Result{Status: &flow.LoanSummary{}}
	}
	if err != nil {
		return flow.Result{Err: err}
	}
	return flow.Result{Status: &flow.LoanSummary{
		Found:      true,
		Status:     string(l.Status),
		Amount:     l.Amount,
		TermMonths: l.TermMonths,
		DueAt:      l.DueAt,
	}}
}

func (x *Executor) processLoan(ctx context.Context, s *entity.Session) flow.Result {
	f, ok := s.Fields.(*entity.LoanRequestFields)
	if !ok {
		return flow.Result{Err: fmt.Errorf("process loan: unexpected fields %T", s.Fields)}
	}
	res, err := x.loans.Request(ctx, s.ID, s.PhoneNumber, f.Amount, f.TermMonths)
	if errors.Is(err, loan.ErrCustomerNotFound) {
		return flow.Result{Loan: &flow.LoanResult{Outcome: flow.LoanNotCustomer}}
	}
	if err != nil {
		return flow.Result{Err: err}
	}
	out := &flow.LoanResult{
		LoanID:    res.Loan.ID,
		MaxAmount: res.Decision.MaxAmount,
		Reason:    res.Decision.Reason,
		Disbursed: res.Disbursed,
		DueAt:     res.Loan.DueAt,
	}
	if res.Loan.TransactionID != nil {
		out.TransactionID = *res.Loan.TransactionID
	}
	switch res.Decision.Outcome {
	case loanentity.OutcomeApproved:
		out.Outcome = flow.LoanApproved
	case loanentity.OutcomeManualReview:
		out.Outcome = flow.LoanManualReview
	default:
		out.Outcome = flow.LoanRejected
	}
	return flow.Result{Loan: out}
}
