package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/loan/entity"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/pkg/database"
)

var (
	ErrNotFound          = errors.New("loan not found")
	ErrDuplicateRequest  = errors.New("loan already exists for request key")
	ErrStatusConflict    = errors.New("loan status changed concurrently")
	ErrIllegalTransition = errors.New("illegal loan status transition")
)

// Transition moves a loan from one status to the next. Optional fields are
// written only when set.
type Transition struct {
	From          entity.Status
	To            entity.Status
	PartnerCode   string
	TransactionID *string
	DisbursedAt   *time.Time
	DueAt         *time.Time
}

// Store is the persistence contract for loans and their decisions.
type Store interface {
	Create(ctx context.Context, l *entity.Loan) error
	GetByRequestKey(ctx context.Context, key string) (*entity.Loan, error)
	// ListByPhone returns loans newest first.
	ListByPhone(ctx context.Context, phone string) ([]entity.Loan, error)
	// ApplyDecision stores d and moves the loan from expected to the status
	// the outcome implies, atomically.
	ApplyDecision(ctx context.Context, loanID string, expected entity.Status, d *entity.Decision) (*entity.Loan, error)
	UpdateStatus(ctx context.Context, loanID string, t Transition) (*entity.Loan, error)
	GetDecision(ctx context.Context, loanID string) (*entity.Decision, error)
}

// LoanRepo is the Postgres Store.
type LoanRepo struct {
	db *sqlx.DB
}

func NewLoanRepo(db *sqlx.DB) *LoanRepo { return &LoanRepo{db: db} }

// EnsureTable creates the loans and loan_decisions tables if not exists.
func (r *LoanRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS loans (
  id TEXT PRIMARY KEY,
  phone_number TEXT NOT NULL,
  request_key TEXT NOT NULL UNIQUE,
  amount NUMERIC(14,2) NOT NULL,
  term_months INT NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'PENDING',
  max_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
  decision_id TEXT,
  partner_code TEXT NOT NULL DEFAULT '',
  transaction_id TEXT,
  rejected_reason TEXT,
  approved_at TIMESTAMPTZ,
  disbursed_at TIMESTAMPTZ,
  due_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_loans_phone_number ON loans(phone_number, created_at DESC);

CREATE TABLE IF NOT EXISTS loan_decisions (
  id TEXT PRIMARY KEY,
  loan_id TEXT NOT NULL UNIQUE REFERENCES loans(id),
  outcome TEXT NOT NULL,
  rule TEXT NOT NULL,
  max_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
  allowed_terms JSONB NOT NULL DEFAULT '[]'::jsonb,
  reason TEXT NOT NULL DEFAULT '',
  final_score INT,
  risk_tier TEXT,
  factors JSONB NOT NULL DEFAULT '{}'::jsonb,
  bank_limit NUMERIC(14,2),
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

const loanColumns = `id, phone_number, request_key, amount, term_months, status, max_amount, decision_id,
	partner_code, transaction_id, rejected_reason, approved_at, disbursed_at, due_at, created_at, updated_at`

// Create inserts a new loan. A reused request key yields ErrDuplicateRequest.
func (r *LoanRepo) Create(ctx context.Context, l *entity.Loan) error {
	const q = `INSERT INTO loans (` + loanColumns + `)
		VALUES (:id, :phone_number, :request_key, :amount, :term_months, :status, :max_amount, :decision_id,
			:partner_code, :transaction_id, :rejected_reason, :approved_at, :disbursed_at, :due_at, :created_at, :updated_at)`
	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	if _, err := r.db.NamedExecContext(ctx, q, l); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateRequest
		}
		return err
	}
	return nil
}

func (r *LoanRepo) GetByRequestKey(ctx context.Context, key string) (*entity.Loan, error) {
	var l entity.Loan
	if err := r.db.GetContext(ctx, &l, `SELECT `+loanColumns+` FROM loans WHERE request_key=$1`, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (r *LoanRepo) ListByPhone(ctx context.Context, phone string) ([]entity.Loan, error) {
	var out []entity.Loan
	err := r.db.SelectContext(ctx, &out, `SELECT `+loanColumns+` FROM loans WHERE phone_number=$1 ORDER BY created_at DESC, id DESC`, phone)
	return out, err
}

func (r *LoanRepo) ApplyDecision(ctx context.Context, loanID string, expected entity.Status, d *entity.Decision) (*entity.Loan, error) {
	next := entity.StatusFor(d.Outcome)
	if next != expected && !entity.CanTransition(expected, next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, expected, next)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	d.LoanID = loanID
	if len(d.Factors) == 0 {
		d.Factors = types.JSONText("{}")
	}

	var out entity.Loan
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const ins = `INSERT INTO loan_decisions (id, loan_id, outcome, rule, max_amount, allowed_terms, reason,
				final_score, risk_tier, factors, bank_limit, created_at)
			VALUES (:id, :loan_id, :outcome, :rule, :max_amount, :allowed_terms, :reason,
				:final_score, :risk_tier, :factors, :bank_limit, :created_at)`
		if _, err := tx.NamedExecContext(ctx, ins, d); err != nil {
			return err
		}

		var approvedAt *time.Time
		var reason *string
		switch d.Outcome {
		case entity.OutcomeApproved:
			approvedAt = &d.CreatedAt
		case entity.OutcomeRejected:
			reason = &d.Reason
		}
		const upd = `UPDATE loans SET status=$3, max_amount=$4, decision_id=$5, approved_at=$6,
				rejected_reason=$7, updated_at=$8
			WHERE id=$1 AND status=$2
			RETURNING ` + loanColumns
		err := tx.GetContext(ctx, &out, upd, loanID, expected, next, d.MaxAmount, d.ID, approvedAt, reason, d.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrStatusConflict
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *LoanRepo) UpdateStatus(ctx context.Context, loanID string, t Transition) (*entity.Loan, error) {
	if !entity.CanTransition(t.From, t.To) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, t.From, t.To)
	}
	const q = `UPDATE loans SET status=$3,
			partner_code=COALESCE(NULLIF($4, ''), partner_code),
			transaction_id=COALESCE($5, transaction_id),
			disbursed_at=COALESCE($6, disbursed_at),
			due_at=COALESCE($7, due_at),
			updated_at=NOW()
		WHERE id=$1 AND status=$2
		RETURNING ` + loanColumns
	var l entity.Loan
	err := r.db.GetContext(ctx, &l, q, loanID, t.From, t.To, t.PartnerCode, t.TransactionID, t.DisbursedAt, t.DueAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStatusConflict
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *LoanRepo) GetDecision(ctx context.Context, loanID string) (*entity.Decision, error) {
	const q = `SELECT id, loan_id, outcome, rule, max_amount, allowed_terms, reason, final_score, risk_tier,
			factors, bank_limit, created_at
		FROM loan_decisions WHERE loan_id=$1`
	var d entity.Decision
	if err := r.db.GetContext(ctx, &d, q, loanID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}
