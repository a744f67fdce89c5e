// Package scoring is the credit decision engine. Everything here is pure:
// callers load the applicant and loan history and persist the outcome.
package scoring

import (
	"math"
	"time"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/customer/entity"
	loanentity "github.com/ovaphlow/pitchfork/service-ussd-credit/internal/loan/entity"
)

const (
	MinScore = 300
	MaxScore = 850

	// amount at which amountScore reaches zero
	amountReference = 50000
	recentWindow    = 30 * 24 * time.Hour
	maxRecentLoans  = 2
)

// RiskTier buckets a final score.
type RiskTier string

const (
	TierVeryLow  RiskTier = "VERY_LOW"
	TierLow      RiskTier = "LOW"
	TierMedium   RiskTier = "MEDIUM"
	TierHigh     RiskTier = "HIGH"
	TierVeryHigh RiskTier = "VERY_HIGH"
)

// History summarises a customer's previous loans.
type History struct {
	PriorLoans         int
	CompletedLoans     int
	RecentLoans        int
	OverdueOrDefaulted int
	OpenLoans          int
	OpenLoanIDs        []string
}

// HistoryFrom summarises loans, skipping the candidate loan itself. Prior and
// recent counts only include originated loans, so rejected or undecided
// requests never move the score. A loan counts as overdue when it is ACTIVE
// past its due date.
func HistoryFrom(loans []loanentity.Loan, excludeID string, now time.Time) History {
	var h History
	for _, l := range loans {
		if l.ID == excludeID {
			continue
		}
		if l.Status.Originated() {
			h.PriorLoans++
			if now.Sub(l.CreatedAt) <= recentWindow {
				h.RecentLoans++
			}
		}
		if l.Status == loanentity.StatusCompleted {
			h.CompletedLoans++
		}
		if l.Status == loanentity.StatusDefaulted || (l.Status == loanentity.StatusActive && l.DueAt != nil && now.After(*l.DueAt)) {
			h.OverdueOrDefaulted++
		}
		if l.Status.Open() {
			h.OpenLoans++
			h.OpenLoanIDs = append(h.OpenLoanIDs, l.ID)
		}
	}
	return h
}

// Applicant is the customer data the engine reads.
type Applicant struct {
	Profession entity.Profession
	Salary     float64
	History    History
}

// Candidate is the loan being decided.
type Candidate struct {
	Amount     float64
	TermMonths int
}

// Factors are the independently computed score components.
type Factors struct {
	Base           float64 `json:"base"`
	History        float64 `json:"history"`
	Amount         float64 `json:"amount"`
	Frequency      float64 `json:"frequency"`
	PaymentHistory float64 `json:"payment_history"`
}

// Result is an immutable scoring outcome.
type Result struct {
	Factors    Factors  `json:"factors"`
	FinalScore int      `json:"final_score"`
	RiskTier   RiskTier `json:"risk_tier"`
}

// Score computes the weighted score for a candidate loan.
func Score(a Applicant, c Candidate) Result {
	f := Factors{
		Base:           400,
		History:        math.Min(float64(a.History.CompletedLoans)*50, 150),
		Amount:         math.Max(0, 100-(c.Amount/amountReference)*100),
		Frequency:      100,
		PaymentHistory: math.Max(0, 100-float64(a.History.OverdueOrDefaulted)*50),
	}
	if a.History.PriorLoans > 0 {
		f.Base = 500
	}
	if a.History.RecentLoans > maxRecentLoans {
		f.Frequency = 0
	}
	raw := f.Base + f.History + f.Amount*0.5 + f.Frequency*0.5 + f.PaymentHistory*0.8
	final := int(math.Round(math.Max(MinScore, math.Min(MaxScore, raw))))
	return Result{Factors: f, FinalScore: final, RiskTier: Tier(final)}
}

// Tier maps a score to its risk tier.
func Tier(score int) RiskTier {
	switch {
	case score >= 750:
		return TierVeryLow
	case score >= 650:
		return TierLow
	case score >= 550:
		return TierMedium
	case score >= 450:
		return TierHigh
	default:
		return TierVeryHigh
	}
}
