package flow

import (
	"strconv"
	"strings"

	customerentity "github.com/ovaphlow/pitchfork/service-ussd-credit/internal/customer/entity"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/session/entity"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/validate"
)

func (e *Engine) stepRegistration(state entity.State, f *entity.RegistrationFields, input string) Transition {
	in := strings.TrimSpace(input)
	switch state {
	case entity.StateWelcome:
		choice, err := validate.MenuChoice(in, "1", "2", "3")
		if err != nil {
			return e.invalid(state, f, err)
		}
		switch choice {
		case "1":
			return e.prompt(entity.StateNUIT, f, "")
		case "2":
			return end(entity.StateCancelled, f, "Thank you. Goodbye.")
		default:
			return e.pending(state, f, Effect{Kind: EffectLoadDraft})
		}

	case entity.StateNUIT:
		v, err := validate.NUIT(in)
		if err != nil {
			return e.invalid(state, f, err)
		}
		f.NUIT = v
		return e.prompt(entity.StateName, f, "")

	case entity.StateName:
		v, err := validate.FullName(in)
		if err != nil {
			return e.invalid(state, f, err)
		}
		f.FullName = v
		return e.prompt(entity.StateNationalID, f, "")

	case entity.StateNationalID:
		v, err := validate.NationalID(in)
		if err != nil {
			return e.invalid(state, f, err)
		}
		f.NationalID = v
		return e.prompt(entity.StateIDIssueDate, f, "")

	case entity.StateIDIssueDate:
		d, err := validate.Date("id_issue_date", in)
		if err != nil {
			return e.invalid(state, f, err)
		}
		f.IDIssueDate = d.Format(validate.DateLayout)
		return e.prompt(entity.StateIDExpiryDate, f, "")

	case entity.StateIDExpiryDate:
		d, err := validate.Date("id_expiry_date", in)
		if err != nil {
			return e.invalid(state, f, err)
		}
		if issued, perr := validate.Date("id_issue_date", f.IDIssueDate); perr == nil {
			if err := validate.DateAfter("id_expiry_date", issued, d); err != nil {
				return e.invalid(state, f, err)
			}
		}
		f.IDExpiryDate = d.Format(validate.DateLayout)
		return e.prompt(entity.StateProfession, f, "")

	case entity.StateProfession:
		i, err := e.menuIndex(in, len(customerentity.Professions))
		if err != nil {
			return e.invalid(state, f, err)
		}
		f.Profession = customerentity.Professions[i]
		return e.prompt(entity.StateSalary, f, "")

	case entity.StateSalary:
		v, err := validate.Salary(in)
		if err != nil {
			return e.invalid(state, f, err)
		}
		f.Salary = v
		return e.prompt(entity.StateBank, f, "")

	case entity.StateBank:
		i, err := e.menuIndex(in, len(e.cfg.Banks))
		if err != nil {
			return e.invalid(state, f, err)
		}
		f.BankCode = e.cfg.Banks[i].Code
		return e.pending(state, f, Effect{Kind: EffectSendCode})

	case entity.StateVerifyCode:
		if in == ResendInput {
			return e.pending(state, f, Effect{Kind: EffectSendCode})
		}
		code, err := validate.VerificationCode(in)
		if err != nil {
			return e.invalid(state, f, err)
		}
		return e.pending(state, f, Effect{Kind: EffectCheckCode, Code: code})

	case entity.StateConfirm:
		choice, err := validate.MenuChoice(in, "1", "2")
		if err != nil {
			return e.invalid(state, f, err)
		}
		if choice == "2" {
			return end(entity.StateCancelled, f, "Registration cancelled.")
		}
		if !f.CodeVerified {
			return e.Abort()
		}
		return e.pending(state, f, Effect{Kind: EffectFinalize})
	}
	return e.Abort()
}

func (e *Engine) resumeRegistration(state entity.State, f *entity.RegistrationFields, eff Effect, res Result) Transition {
	switch eff.Kind {
	case EffectLoadDraft:
		if res.Draft == nil || res.Draft.Fields == nil {
			return e.prompt(state, f, "No pending registration found")
		}
		draft := res.Draft.Fields.Clone().(*entity.RegistrationFields)
		draft.CodeVerified = false
		draft.ResumedFrom = res.Draft.SessionID
		return e.prompt(entity.StateVerifyCode, draft, "")

	case EffectSendCode:
		if state == entity.StateVerifyCode {
			return e.prompt(entity.StateVerifyCode, f, "A new code was sent")
		}
		return e.prompt(entity.StateVerifyCode, f, "")

	case EffectCheckCode:
		switch res.Code {
		case CodeOK:
			f.CodeVerified = true
			return e.prompt(entity.StateConfirm, f, "")
		case CodeMismatch:
			return e.prompt(state, f, "Wrong code")
		case CodeExpired:
			return e.prompt(state, f, "Code expired. Reply "+ResendInput+" for a new one")
		case CodeMissing:
			return e.prompt(state, f, "No active code. Reply "+ResendInput+" to receive one")
		case CodeLocked:
			return end(entity.StateCancelled, f, "Too many wrong codes. Dial again to restart.")
		}

	case EffectFinalize:
		r := res.Registration
		if r == nil {
			return e.Abort()
		}
		switch r.Outcome {
		case Registered:
			f.CreditLimit = r.CreditLimit
			f.AssignedBank = r.BankCode
			name := r.BankName
			if name == "" {
				name = e.bankName(r.BankCode)
			}
			return end(entity.StateRegistered, f, "Registration complete.\nPartner: "+name+"\nCredit limit: "+money(r.CreditLimit))
		case NotEligible:
			return end(entity.StateNotEligible, f, "We could not approve your registration. You will receive an SMS.")
		case NoPartner:
			return end(entity.StateNoPartner, f, "No partner is available right now. Please try again later.")
		}
	}
	return e.Abort()
}

// menuIndex maps a 1-based option to a slice index.
func (e *Engine) menuIndex(in string, n int) (int, error) {
	v, err := strconv.Atoi(in)
	if err != nil || v < 1 || v > n {
		return 0, &validate.Error{Field: "option", Message: "Invalid option"}
	}
	return v - 1, nil
}
