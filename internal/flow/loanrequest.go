package flow

import (
	"strings"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/session/entity"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/validate"
)

func (e *Engine) stepLoan(state entity.State, f *entity.LoanRequestFields, input string) Transition {
	in := strings.TrimSpace(input)
	switch state {
	case entity.StateCheckCustomer:
		choice, err := validate.MenuChoice(in, "1", "2", "3", "0")
		if err != nil {
			return e.invalid(state, f, err)
		}
		switch choice {
		case "1":
			return e.prompt(entity.StateRequestAmount, f, "")
		case "2":
			return e.pending(state, f, Effect{Kind: EffectLoanStatus})
		case "3":
			return e.prompt(entity.StateSimulateAmount, f, "")
		default:
			return end(entity.StateCancelled, f, "Thank you. Goodbye.")
		}

	case entity.StateRequestAmount:
		v, err := validate.Amount("amount", in)
		if err != nil {
			return e.invalid(state, f, err)
		}
		if v > f.CreditLimit {
			return e.prompt(state, f, "Amount above your limit of "+money(f.CreditLimit))
		}
		f.Amount = v
		return e.prompt(entity.StateRequestTerm, f, "")

	case entity.StateSimulateAmount:
		v, err := validate.Amount("amount", in)
		if err != nil {
			return e.invalid(state, f, err)
		}
		f.Amount = v
		return end(entity.StateSimulation, f, e.simulationTable(v))

	case entity.StateRequestTerm:
		i, err := e.menuIndex(in, len(e.cfg.Terms))
		if err != nil {
			return e.invalid(state, f, err)
		}
		f.TermMonths = e.cfg.Terms[i]
		return e.prompt(entity.StateConfirmLoan, f, "")

	case entity.StateConfirmLoan:
		choice, err := validate.MenuChoice(in, "1", "0")
		if err != nil {
			return e.invalid(state, f, err)
		}
		if choice == "0" {
			return end(entity.StateCancelled, f, "Loan request cancelled.")
		}
		return e.pending(entity.StateProcessing, f, Effect{Kind: EffectProcessLoan})
	}
	return e.Abort()
}

func (e *Engine) resumeLoan(state entity.State, f *entity.LoanRequestFields, eff Effect, res Result) Transition {
	switch eff.Kind {
	case EffectLoanStatus:
		s := res.Status
		if s == nil || !s.Found {
			return end(entity.StateLoanStatus, f, "You have no loans.")
		}
		text := "Last loan: " + money(s.Amount) + "\nStatus: " + s.Status
		if s.DueAt != nil {
			text += "\nDue: " + s.DueAt.Format(validate.DateLayout)
		}
		return end(entity.StateLoanStatus, f, text)

	case EffectProcessLoan:
		r := res.Loan
		if r == nil {
			return e.Abort()
		}
		f.LoanID = r.LoanID
		f.Outcome = string(r.Outcome)
		switch r.Outcome {
		case LoanApproved:
			if r.Disbursed {
				text := "Loan approved. " + money(f.Amount) + " sent to your account."
				if r.TransactionID != "" {
					text += "\nRef: " + r.TransactionID
				}
				return end(entity.StateLoanComplete, f, text)
			}
			return end(entity.StateLoanComplete, f, "Loan approved. The transfer is delayed; you will receive an SMS.")
		case LoanManualReview:
			return end(entity.StateLoanComplete, f, "Your request is under review. You will receive an SMS.")
		case LoanRejected:
			reason := r.Reason
			if reason == "" {
				reason = "not approved"
			}
			return end(entity.StateLoanComplete, f, "Loan not approved: "+reason)
		case LoanNotCustomer:
			return end(entity.StateCancelled, f, "You are not registered yet. Dial again to register.")
		}
	}
	return e.Abort()
}
