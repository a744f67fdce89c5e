package flow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	customerentity "github.com/ovaphlow/pitchfork/service-ussd-credit/internal/customer/entity"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/scoring"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/session/entity"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/validate"
)

func con(errLine, body string) string {
	if errLine == "" {
		return "CON " + body
	}
	return "CON " + errLine + "\n" + body
}

func errorLine(err error) string {
	var ve *validate.Error
	if errors.As(err, &ve) {
		return ve.Message
	}
	return err.Error()
}

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2) + " MZN"
}

func (e *Engine) screen(state entity.State, f entity.Fields) string {
	switch state {
	case entity.StateWelcome:
		return "Welcome to " + e.cfg.ServiceName + "\n1. Register\n2. Exit\n3. I have an SMS code"
	case entity.StateNUIT:
		return "Enter your NUIT (9 digits)"
	case entity.StateName:
		return "Enter your full name"
	case entity.StateNationalID:
		return "Enter your ID document number"
	case entity.StateIDIssueDate:
		return "ID issue date (DD/MM/YYYY)"
	case entity.StateIDExpiryDate:
		return "ID expiry date (DD/MM/YYYY)"
	case entity.StateProfession:
		var b strings.Builder
		b.WriteString("Profession")
		for i, p := range customerentity.Professions {
			fmt.Fprintf(&b, "\n%d. %s", i+1, p.Label())
		}
		return b.String()
	case entity.StateSalary:
		return "Monthly salary (MZN)"
	case entity.StateBank:
		var b strings.Builder
		b.WriteString("Bank that pays your salary")
		for i, bank := range e.cfg.Banks {
			fmt.Fprintf(&b, "\n%d. %s", i+1, bank.Name)
		}
		return b.String()
	case entity.StateVerifyCode:
		return "Enter the 6 digit code sent by SMS\n" + ResendInput + ". Resend code"
	case entity.StateConfirm:
		reg, _ := f.(*entity.RegistrationFields)
		if reg == nil {
			reg = &entity.RegistrationFields{}
		}
		return fmt.Sprintf("Confirm registration\n%s\nNUIT %s\nBank %s\n1. Confirm\n2. Cancel",
			reg.FullName, reg.NUIT, e.bankName(reg.BankCode))
	case entity.StateCheckCustomer:
		lf, _ := f.(*entity.LoanRequestFields)
		name := ""
		if lf != nil {
			name = firstName(lf.CustomerName)
		}
		return fmt.Sprintf("Hello %s\n1. Request loan\n2. Loan status\n3. Simulate loan\n0. Exit", name)
	case entity.StateRequestAmount:
		lf, _ := f.(*entity.LoanRequestFields)
		if lf != nil {
			return "Loan amount (max " + money(lf.CreditLimit) + ")"
		}
		return "Loan amount (MZN)"
	case entity.StateSimulateAmount:
		return "Amount to simulate (MZN)"
	case entity.StateRequestTerm:
		var b strings.Builder
		b.WriteString("Repayment term")
		for i, m := range e.cfg.Terms {
			fmt.Fprintf(&b, "\n%d. %d months", i+1, m)
		}
		return b.String()
	case entity.StateConfirmLoan:
		lf, _ := f.(*entity.LoanRequestFields)
		if lf == nil {
			lf = &entity.LoanRequestFields{}
		}
		plan := scoring.Simulate(lf.Amount, e.cfg.MonthlyRate, []int{lf.TermMonths})
		monthly := 0.0
		if len(plan) == 1 {
			monthly = plan[0].Monthly
		}
		return fmt.Sprintf("Confirm loan\nAmount %s\nTerm %d months\nMonthly %s\n1. Confirm\n0. Cancel",
			money(lf.Amount), lf.TermMonths, money(monthly))
	case entity.StateProcessing:
		return "Your request is being processed"
	}
	return ""
}

func (e *Engine) simulationTable(amount float64) string {
	var b strings.Builder
	b.WriteString("Simulation for " + money(amount))
	for _, row := range scoring.Simulate(amount, e.cfg.MonthlyRate, scoring.DefaultSimulationTerms) {
		fmt.Fprintf(&b, "\n%dm: %s/month", row.TermMonths, money(row.Monthly))
	}
	return b.String()
}

func (e *Engine) bankName(code string) string {
	for _, b := range e.cfg.Banks {
		if b.Code == code {
			return b.Name
		}
	}
	return code
}

func firstName(full string) string {
	if parts := strings.Fields(full); len(parts) > 0 {
		return parts[0]
	}
	return ""
}
