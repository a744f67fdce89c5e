package flow

import (
	"time"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/session/entity"
)

// EffectKind names the side effect a transition needs.
type EffectKind string

const (
	EffectSendCode    EffectKind = "SEND_CODE"
	EffectCheckCode   EffectKind = "CHECK_CODE"
	EffectLoadDraft   EffectKind = "LOAD_DRAFT"
	EffectFinalize    EffectKind = "FINALIZE_REGISTRATION"
	EffectLoanStatus  EffectKind = "LOAN_STATUS"
	EffectProcessLoan EffectKind = "PROCESS_LOAN"
)

type Effect struct {
	Kind EffectKind
	// Code is the keystroke to verify for EffectCheckCode.
	Code string
}

// Result is what running an effect produced. Err is only for unexpected
// failures; expected outcomes travel in the typed fields.
type Result struct {
	Err error

	Code         CodeCheck
	Draft        *DraftResult
	Registration *RegistrationResult
	Loan         *LoanResult
	Status       *LoanSummary
}

// CodeCheck is the verification outcome.
type CodeCheck string

const (
	CodeOK       CodeCheck = "OK"
	CodeMismatch CodeCheck = "MISMATCH"
	CodeExpired  CodeCheck = "EXPIRED"
	CodeMissing  CodeCheck = "MISSING"
	CodeLocked   CodeCheck = "LOCKED"
)

// DraftResult carries the unfinished registration found for option 3.
// Fields is nil when there is nothing to resume.
type DraftResult struct {
	SessionID string
	Fields    *entity.RegistrationFields
}

type RegistrationOutcome string

const (
	Registered  RegistrationOutcome = "REGISTERED"
	NotEligible RegistrationOutcome = "NOT_ELIGIBLE"
	NoPartner   RegistrationOutcome = "NO_PARTNER"
)

type RegistrationResult struct {
	Outcome     RegistrationOutcome
	BankCode    string
	BankName    string
	CreditLimit float64
}

type LoanOutcome string

const (
	LoanApproved     LoanOutcome = "APPROVED"
	LoanRejected     LoanOutcome = "REJECTED"
	LoanManualReview LoanOutcome = "MANUAL_REVIEW"
	LoanNotCustomer  LoanOutcome = "NOT_CUSTOMER"
)

type LoanResult struct {
	Outcome       LoanOutcome
	LoanID        string
	MaxAmount     float64
	Reason        string
	Disbursed     bool
	TransactionID string
	DueAt         *time.Time
}

// LoanSummary describes the customer's latest loan. Found is false when the
// customer has none.
type LoanSummary struct {
	Found      bool
	Status     string
	Amount     float64
	TermMonths int
	DueAt      *time.Time
}
