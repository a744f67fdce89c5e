// Package flow is the USSD state machine. It is pure: every method maps the
// current state, the accumulated fields and one keystroke to the next state,
// the new fields and the screen to show. Work that needs the outside world is
// returned as an Effect; the caller runs it and hands the outcome back through
// Resume.
package flow

import (
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/session/entity"
)

// CancelInput ends any active dialogue.
const CancelInput = "00"

// ResendInput asks for a new verification code.
const ResendInput = "9"

// Facts are what the caller knows about the customer when a session starts.
type Facts struct {
	Verified     bool
	CustomerName string
	CreditLimit  float64
}

// Snapshot is the part of a session the engine reads.
type Snapshot struct {
	Flow   entity.Flow
	State  entity.State
	Fields entity.Fields
}

// Transition is the engine's answer. When Effect is set, State and Fields
// describe the session while the effect runs and Message is empty; the final
// answer comes from Resume.
type Transition struct {
	State   entity.State
	Fields  entity.Fields
	Status  entity.Status
	Message string
	Effect  *Effect
	// Accepted is false when the input was rejected and the same prompt is
	// shown again.
	Accepted bool
}

// BankOption is one entry of the salary bank menu.
type BankOption struct {
	Code string
	Name string
}

type Config struct {
	Banks       []BankOption
	Terms       []int
	MonthlyRate float64
	ServiceName string
}

// Engine holds immutable menu configuration only.
type Engine struct {
	cfg Config
}

var defaultTerms = []int{3, 6, 12, 18, 24}

func New(cfg Config) *Engine {
	if len(cfg.Terms) == 0 {
		cfg.Terms = defaultTerms
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "Credito Movel"
	}
	return &Engine{cfg: cfg}
}

// Start opens a flow.
func (e *Engine) Start(flow entity.Flow, facts Facts) Transition {
	switch flow {
	case entity.FlowLoanRequest:
		if !facts.Verified {
			return end(entity.StateCancelled, &entity.LoanRequestFields{}, "You are not registered yet. Dial again to register.")
		}
		f := &entity.LoanRequestFields{CustomerName: facts.CustomerName, CreditLimit: facts.CreditLimit}
		return e.prompt(entity.StateCheckCustomer, f, "")
	default:
		f := &entity.RegistrationFields{}
		if facts.Verified {
			return end(entity.StateAlreadyMember, f, "You are already registered. Dial again to request a loan.")
		}
		return e.prompt(entity.StateWelcome, f, "")
	}
}

// Prompt renders the current screen again without consuming input.
func (e *Engine) Prompt(snap Snapshot) Transition {
	if snap.State.Terminal() {
		return end(snap.State, snap.Fields, "This session has ended.")
	}
	return e.prompt(snap.State, snap.Fields, "")
}

// Step consumes one keystroke.
func (e *Engine) Step(snap Snapshot, input string) Transition {
	if snap.State.Terminal() {
		return end(snap.State, snap.Fields, "This session has ended.")
	}
	if input == CancelInput && snap.State != entity.StateProcessing {
		return end(entity.StateCancelled, snap.Fields, "Session cancelled.")
	}
	switch f := snap.Fields.(type) {
	case *entity.RegistrationFields:
		return e.stepRegistration(snap.State, f.Clone().(*entity.RegistrationFields), input)
	case *entity.LoanRequestFields:
		return e.stepLoan(snap.State, f.Clone().(*entity.LoanRequestFields), input)
	}
	return e.Abort()
}

// Resume finishes a transition whose effect has run.
func (e *Engine) Resume(snap Snapshot, eff Effect, res Result) Transition {
	if res.Err != nil {
		return e.Abort()
	}
	switch f := snap.Fields.(type) {
	case *entity.RegistrationFields:
		return e.resumeRegistration(snap.State, f.Clone().(*entity.RegistrationFields), eff, res)
	case *entity.LoanRequestFields:
		return e.resumeLoan(snap.State, f.Clone().(*entity.LoanRequestFields), eff, res)
	}
	return e.Abort()
}

// Abort is the generic failure screen. Causes are never shown.
func (e *Engine) Abort() Transition {
	return Transition{
		State:   entity.StateError,
		Status:  entity.StatusError,
		Message: "END Sorry, something went wrong. Please try again later.",
	}
}

func (e *Engine) prompt(state entity.State, f entity.Fields, errLine string) Transition {
	return Transition{
		State:    state,
		Fields:   f,
		Status:   entity.StatusActive,
		Message:  con(errLine, e.screen(state, f)),
		Accepted: errLine == "",
	}
}

func (e *Engine) invalid(state entity.State, f entity.Fields, err error) Transition {
	return e.prompt(state, f, errorLine(err))
}

func (e *Engine) pending(state entity.State, f entity.Fields, eff Effect) Transition {
	return Transition{State: state, Fields: f, Status: entity.StatusActive, Effect: &eff, Accepted: true}
}

func end(state entity.State, f entity.Fields, text string) Transition {
	status := entity.StatusCompleted
	if state == entity.StateError {
		status = entity.StatusError
	}
	return Transition{State: state, Fields: f, Status: status, Message: "END " + text, Accepted: true}
}
