// Package loan runs a loan request from creation to payout: it records the
// request, asks the decision engine, persists the verdict together with the
// loan status and disburses approved loans through the partner gateway.
package loan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	customerentity "github.com/ovaphlow/pitchfork/service-ussd-credit/internal/customer/entity"
	customerrepo "github.com/ovaphlow/pitchfork/service-ussd-credit/internal/customer/repo"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/loan/entity"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/loan/repo"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/partner"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/scoring"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/pkg/utilities"
)

var (
	ErrCustomerNotFound = errors.New("customer not registered")
	ErrInProgress       = errors.New("loan request already in progress")
)

// RuleProcessingError marks a request closed because it could not be decided.
const RuleProcessingError = "processing_error"

const (
	processingErrorReason = "We could not process your request. Please try again."
	statusWriteAttempts   = 3
	cleanupTimeout        = 5 * time.Second
)

// Notifier queues an SMS for the customer.
type Notifier interface {
	Enqueue(ctx context.Context, phone, message string) error
}

type Config struct {
	// DefaultSalary stands in for a missing public employee salary.
	DefaultSalary float64
	// DefaultBankLimit stands in when the assigned bank reports no limit
	// or cannot be reached.
	DefaultBankLimit float64
	MonthlyRate      float64
}

// Result is the outcome of a loan request.
type Result struct {
	Loan      entity.Loan
	Decision  entity.Decision
	Disbursed bool
}

type Service struct {
	loans     repo.Store
	customers customerrepo.Store
	gw        *partner.Gateway
	notifier  Notifier
	clock     clockwork.Clock
	logger    *zap.SugaredLogger
	cfg       Config
}

func NewService(loans repo.Store, customers customerrepo.Store, gw *partner.Gateway, notifier Notifier,
	clock clockwork.Clock, logger *zap.SugaredLogger, cfg Config) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{loans: loans, customers: customers, gw: gw, notifier: notifier, clock: clock, logger: logger, cfg: cfg}
}

// Request decides and, when approved, disburses a loan. key makes the call
// idempotent: a decided loan with the same key is returned as is.
func (s *Service) Request(ctx context.Context, key, phone string, amount float64, termMonths int) (*Result, error) {
	l, err := s.loans.GetByRequestKey(ctx, key)
	switch {
	case err == nil:
		if l.DecisionID != nil {
			return s.result(ctx, l)
		}
	case errors.Is(err, repo.ErrNotFound):
		l = nil
	default:
		return nil, fmt.Errorf("load loan: %w", err)
	}

	c, err := s.customers.GetByPhone(ctx, phone)
	if errors.Is(err, customerrepo.ErrNotFound) || (err == nil && !c.Verified) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load customer: %w", err)
	}

	if l == nil {
		l = &entity.Loan{
			ID:          utilities.NewSnowflakeID(),
			PhoneNumber: phone,
			RequestKey:  key,
			Amount:      amount,
			TermMonths:  termMonths,
			Status:      entity.StatusPending,
			PartnerCode: c.AssignedBank,
			CreatedAt:   s.clock.Now().UTC(),
		}
		if err := s.loans.Create(ctx, l); err != nil {
			if errors.Is(err, repo.ErrDuplicateRequest) {
				return nil, ErrInProgress
			}
			return nil, fmt.Errorf("create loan: %w", err)
		}
	}
	if l.Status == entity.StatusPending {
		analyzing, err := s.loans.UpdateStatus(ctx, l.ID, repo.Transition{From: entity.StatusPending, To: entity.StatusAnalyzing})
		if err != nil {
			s.abort(ctx, l, err)
			return nil, fmt.Errorf("start analysis: %w", err)
		}
		l = analyzing
	}

	d, err := s.decide(ctx, c, l)
	if err != nil {
		s.abort(ctx, l, err)
		return nil, err
	}
	rec := decisionRecord(d)
	decided, err := s.loans.ApplyDecision(ctx, l.ID, entity.StatusAnalyzing, rec)
	if err != nil {
		s.abort(ctx, l, err)
		return nil, fmt.Errorf("apply decision: %w", err)
	}
	l = decided
	s.logger.Infow("loan decided",
		"loan_id", l.ID,
		"outcome", rec.Outcome,
		"rule", rec.Rule,
		"max_amount", rec.MaxAmount,
	)

	res := &Result{Loan: *l, Decision: *rec}
	if rec.Outcome == entity.OutcomeApproved {
		if err := s.disburse(ctx, c, res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// abort rejects a loan that could not be decided so it never counts as open
// for later requests. It runs detached from ctx.
func (s *Service) abort(ctx context.Context, l *entity.Loan, cause error) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	rec := decisionRecord(scoring.Decision{
		Outcome: entity.OutcomeRejected,
		Rule:    RuleProcessingError,
		Reason:  processingErrorReason,
	})
	if _, err := s.loans.ApplyDecision(actx, l.ID, l.Status, rec); err != nil {
		s.logger.Errorw("loan left undecided", "loan_id", l.ID, "status", l.Status, "cause", cause, "err", err)
		return
	}
	s.logger.Warnw("loan closed after processing error", "loan_id", l.ID, "err", cause)
}

// transition writes a status change, retrying store failures. It runs
// detached from ctx because the partner side already happened.
func (s *Service) transition(ctx context.Context, id string, t repo.Transition) (*entity.Loan, error) {
	wctx := context.WithoutCancel(ctx)
	var err error
	for attempt := 0; attempt < statusWriteAttempts; attempt++ {
		var l *entity.Loan
		l, err = s.loans.UpdateStatus(wctx, id, t)
		if err == nil || errors.Is(err, repo.ErrIllegalTransition) || errors.Is(err, repo.ErrStatusConflict) || errors.Is(err, repo.ErrNotFound) {
			return l, err
		}
	}
	return nil, err
}

func (s *Service) decide(ctx context.Context, c *customerentity.Customer, l *entity.Loan) (scoring.Decision, error) {
	loans, err := s.loans.ListByPhone(ctx, c.PhoneNumber)
	if err != nil {
		return scoring.Decision{}, fmt.Errorf("load loan history: %w", err)
	}
	a := scoring.Applicant{
		Profession: c.Profession,
		Salary:     c.Salary,
		History:    scoring.HistoryFrom(loans, l.ID, s.clock.Now()),
	}
	if c.Profession == customerentity.ProfessionPublicEmployee && c.Salary <= 0 {
		s.logger.Warnw("public employee without salary, using default", "phone", c.PhoneNumber, "default", s.cfg.DefaultSalary)
	}
	var limit *float64
	if a.History.OpenLoans == 0 && c.Profession != customerentity.ProfessionPublicEmployee {
		v := s.bankLimit(ctx, c)
		limit = &v
	}
	return scoring.Evaluate(a, scoring.Candidate{Amount: l.Amount, TermMonths: l.TermMonths}, limit, s.cfg.DefaultSalary), nil
}

// bankLimit asks the assigned bank for the current limit, falling back to
// DefaultBankLimit when no answer or no limit comes back.
func (s *Service) bankLimit(ctx context.Context, c *customerentity.Customer) float64 {
	if c.AssignedBank == "" || s.gw == nil {
		return s.cfg.DefaultBankLimit
	}
	el, err := s.gw.CheckEligibility(ctx, c.AssignedBank, identity(c))
	if err != nil {
		s.logger.Warnw("bank limit unavailable, using default", "partner", c.AssignedBank, "default", s.cfg.DefaultBankLimit, "err", err)
		return s.cfg.DefaultBankLimit
	}
	if !el.Eligible {
		return 0
	}
	if el.MaxAmount <= 0 {
		return s.cfg.DefaultBankLimit
	}
	return el.MaxAmount
}

// disburse pays out through the operator serving the phone, or the assigned
// bank when no operator does. A failed payout leaves the loan APPROVED.
func (s *Service) disburse(ctx context.Context, c *customerentity.Customer, res *Result) error {
	code := c.AssignedBank
	if e, ok := s.gw.Registry().ForPhone(c.PhoneNumber); ok {
		code = e.Partner.Code()
	}
	l := res.Loan
	d, err := s.gw.Disburse(ctx, code, partner.DisbursementRequest{
		LoanID:      l.ID,
		Amount:      l.Amount,
		Destination: c.PhoneNumber,
		Reference:   utilities.NewULID(),
	})
	if err != nil {
		s.logger.Warnw("disbursement failed", "loan_id", l.ID, "partner", code, "err", err)
		s.notify(ctx, c.PhoneNumber, fmt.Sprintf("Your loan of %.2f MZN was approved. The transfer is delayed and will be retried.", l.Amount))
		return nil
	}

	now := s.clock.Now().UTC()
	tx := d.TransactionID
	disbursed, err := s.transition(ctx, l.ID, repo.Transition{
		From:          entity.StatusApproved,
		To:            entity.StatusDisbursed,
		PartnerCode:   code,
		TransactionID: &tx,
		DisbursedAt:   &now,
	})
	if err != nil {
		s.logger.Errorw("payout not recorded, reconcile manually", "loan_id", l.ID, "partner", code, "transaction_id", tx, "err", err)
		return fmt.Errorf("record disbursement: %w", err)
	}
	due := now.AddDate(0, l.TermMonths, 0)
	active, err := s.transition(ctx, l.ID, repo.Transition{From: entity.StatusDisbursed, To: entity.StatusActive, DueAt: &due})
	if err != nil {
		res.Loan = *disbursed
		return fmt.Errorf("activate loan: %w", err)
	}
	res.Loan = *active
	res.Disbursed = true
	s.notify(ctx, c.PhoneNumber, fmt.Sprintf("%.2f MZN sent to your account. Ref %s. Due %s.", l.Amount, tx, due.Format("02/01/2006")))
	return nil
}

func (s *Service) notify(ctx context.Context, phone, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Enqueue(ctx, phone, message); err != nil {
		s.logger.Errorw("queue notification", "phone", phone, "err", err)
	}
}

func (s *Service) result(ctx context.Context, l *entity.Loan) (*Result, error) {
	d, err := s.loans.GetDecision(ctx, l.ID)
	if err != nil {
		return nil, fmt.Errorf("load decision: %w", err)
	}
	res := &Result{Loan: *l, Decision: *d}
	switch l.Status {
	case entity.StatusDisbursed, entity.StatusActive, entity.StatusCompleted, entity.StatusDefaulted:
		res.Disbursed = true
	}
	return res, nil
}

func decisionRecord(d scoring.Decision) *entity.Decision {
	rec := &entity.Decision{
		ID:           utilities.NewUUID(),
		Outcome:      d.Outcome,
		Rule:         d.Rule,
		MaxAmount:    d.MaxAmount,
		AllowedTerms: entity.Terms(d.AllowedTerms),
		Reason:       d.Reason,
		BankLimit:    d.BankLimit,
		Factors:      types.JSONText("{}"),
	}
	if d.Score != nil {
		score := d.Score.FinalScore
		tier := string(d.Score.RiskTier)
		rec.FinalScore = &score
		rec.RiskTier = &tier
		if raw, err := json.Marshal(d.Score.Factors); err == nil {
			rec.Factors = types.JSONText(raw)
		}
	}
	return rec
}

// Latest returns the customer's most recent loan.
func (s *Service) Latest(ctx context.Context, phone string) (*entity.Loan, error) {
	loans, err := s.loans.ListByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if len(loans) == 0 {
		return nil, repo.ErrNotFound
	}
	return &loans[0], nil
}

// ActiveLoanCount counts loans still in a non-terminal status.
func (s *Service) ActiveLoanCount(ctx context.Context, phone string) (int, error) {
	loans, err := s.loans.ListByPhone(ctx, phone)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, l := range loans {
		if l.Status.Open() {
			n++
		}
	}
	return n, nil
}

// Simulate returns installments for amount at the configured rate.
func (s *Service) Simulate(amount float64, terms []int) []scoring.Installment {
	if len(terms) == 0 {
		terms = scoring.DefaultSimulationTerms
	}
	return scoring.Simulate(amount, s.cfg.MonthlyRate, terms)
}

func identity(c *customerentity.Customer) partner.Identity {
	id := partner.Identity{
		PhoneNumber: c.PhoneNumber,
		FullName:    c.FullName,
		NationalID:  c.NationalID,
		Salary:      c.Salary,
		SalaryBank:  c.SalaryBank,
	}
	if c.NUIT != nil {
		id.NUIT = *c.NUIT
	}
	return id
}
