package scoring

import (
	"fmt"
	"slices"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/customer/entity"
	loanentity "github.com/ovaphlow/pitchfork/service-ussd-credit/internal/loan/entity"
)

const (
	// ApprovalThreshold is the lowest score allowed to go to manual review
	// when the amount is above the cap.
	ApprovalThreshold = 550
	minApprovalScore  = 500

	publicEmployeeSalaryMultiple = 2
)

// Rules that can produce a decision.
const (
	RuleOpenLoan       = "open_loan"
	RulePublicEmployee = "public_employee"
	RuleScoreBand      = "score_band"
)

// Band is a score-banded lending limit.
type Band struct {
	MinScore int
	Cap      float64
	Terms    []int
	Message  string
}

// Bands are ordered from the highest score down.
var Bands = []Band{
	{MinScore: 750, Cap: 50000, Terms: []int{3, 6, 12, 18, 24}, Message: "No restrictions"},
	{MinScore: 600, Cap: 30000, Terms: []int{3, 6, 12}},
	{MinScore: 500, Cap: 10000, Terms: []int{3, 6}},
}

var publicEmployeeTerms = []int{3, 6, 12}

// BandFor returns the band a score falls in, or false below the minimum.
func BandFor(score int) (Band, bool) {
	for _, b := range Bands {
		if score >= b.MinScore {
			return b, true
		}
	}
	return Band{}, false
}

// Decision is the verdict for one candidate loan. Score is nil when a rule
// decided before the formula ran.
type Decision struct {
	Outcome      loanentity.Outcome
	MaxAmount    float64
	AllowedTerms []int
	Reason       string
	Rule         string
	Score        *Result
	BankLimit    *float64
}

// Decide applies the score bands. A present bankLimit lowers the cap.
// TermMonths zero skips the term check.
func Decide(score int, c Candidate, bankLimit *float64) Decision {
	d := Decision{Rule: RuleScoreBand, BankLimit: bankLimit}
	band, ok := BandFor(score)
	if !ok || score < minApprovalScore {
		d.Outcome = loanentity.OutcomeRejected
		d.Reason = "Credit score too low"
		return d
	}
	limit := band.Cap
	if bankLimit != nil && *bankLimit < limit {
		limit = *bankLimit
	}
	d.MaxAmount = limit
	d.AllowedTerms = slices.Clone(band.Terms)

	switch {
	case c.Amount > limit && score >= ApprovalThreshold:
		d.Outcome = loanentity.OutcomeManualReview
		d.Reason = fmt.Sprintf("Amount above limit of %.2f, sent for review", limit)
	case c.Amount > limit:
		d.Outcome = loanentity.OutcomeRejected
		d.Reason = fmt.Sprintf("Maximum amount is %.2f", limit)
	case c.TermMonths != 0 && !slices.Contains(band.Terms, c.TermMonths):
		d.Outcome = loanentity.OutcomeRejected
		d.Reason = fmt.Sprintf("Term of %d months not available", c.TermMonths)
	default:
		d.Outcome = loanentity.OutcomeApproved
		d.Reason = band.Message
	}
	return d
}

// Evaluate runs the full decision: an open loan rejects outright, public
// employees get the salary-based limit, everyone else is scored.
// defaultSalary stands in when a public employee has no declared salary.
func Evaluate(a Applicant, c Candidate, bankLimit *float64, defaultSalary float64) Decision {
	if a.History.OpenLoans > 0 {
		reason := "You already have an active loan"
		if len(a.History.OpenLoanIDs) > 0 {
			reason = fmt.Sprintf("You already have an active loan (%s)", a.History.OpenLoanIDs[0])
		}
		return Decision{
			Outcome: loanentity.OutcomeRejected,
			Rule:    RuleOpenLoan,
			Reason:  reason,
		}
	}

	if a.Profession == entity.ProfessionPublicEmployee {
		salary := a.Salary
		if salary <= 0 {
			salary = defaultSalary
		}
		d := Decision{
			Rule:         RulePublicEmployee,
			MaxAmount:    salary * publicEmployeeSalaryMultiple,
			AllowedTerms: slices.Clone(publicEmployeeTerms),
		}
		switch {
		case c.Amount > d.MaxAmount:
			d.Outcome = loanentity.OutcomeRejected
			d.Reason = fmt.Sprintf("Maximum amount is %.2f", d.MaxAmount)
		case c.TermMonths != 0 && !slices.Contains(publicEmployeeTerms, c.TermMonths):
			d.Outcome = loanentity.OutcomeRejected
			d.Reason = fmt.Sprintf("Term of %d months not available", c.TermMonths)
		default:
			d.Outcome = loanentity.OutcomeApproved
			d.Reason = "Automatic approval"
		}
		return d
	}

	r := Score(a, c)
	d := Decide(r.FinalScore, c, bankLimit)
	d.Score = &r
	return d
}
