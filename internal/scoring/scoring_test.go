package scoring

import (
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/customer/entity"
	loanentity "github.com/ovaphlow/pitchfork/service-ussd-credit/internal/loan/entity"
)

func TestScoreFactors(t *testing.T) {
	cases := []struct {
		name  string
		a     Applicant
		c     Candidate
		score int
		tier  RiskTier
	}{
		{"first loan, small amount", Applicant{}, Candidate{Amount: 10000}, 570, TierMedium},
		{"first loan, larger amount", Applicant{}, Candidate{Amount: 25000}, 555, TierMedium},
		{"good history", Applicant{History: History{PriorLoans: 2, CompletedLoans: 2}}, Candidate{Amount: 10000}, 770, TierVeryLow},
		{"history capped at 150", Applicant{History: History{PriorLoans: 5, CompletedLoans: 5}}, Candidate{Amount: 0}, 830, TierVeryLow},
		{"frequent borrower", Applicant{History: History{PriorLoans: 3, CompletedLoans: 3, RecentLoans: 3}}, Candidate{Amount: 50000}, 730, TierLow},
		{"defaults", Applicant{History: History{PriorLoans: 2, OverdueOrDefaulted: 2}}, Candidate{Amount: 60000}, 550, TierMedium},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := Score(tc.a, tc.c)
			if r.FinalScore != tc.score || r.RiskTier != tc.tier {
				t.Fatalf("expected %d/%s, got %d/%s (%+v)", tc.score, tc.tier, r.FinalScore, r.RiskTier, r.Factors)
			}
			if r.FinalScore < MinScore || r.FinalScore > MaxScore {
				t.Fatalf("score %d out of bounds", r.FinalScore)
			}
		})
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	a := Applicant{Profession: entity.ProfessionSelfEmployed, Salary: 12000, History: History{PriorLoans: 1, CompletedLoans: 1}}
	c := Candidate{Amount: 17500, TermMonths: 6}
	first := Score(a, c)
	for i := 0; i < 50; i++ {
		if got := Score(a, c); got != first {
			t.Fatalf("run %d: %+v != %+v", i, got, first)
		}
	}
}

func TestTier(t *testing.T) {
	cases := map[int]RiskTier{850: TierVeryLow, 750: TierVeryLow, 749: TierLow, 650: TierLow, 550: TierMedium, 549: TierHigh, 450: TierHigh, 449: TierVeryHigh, 300: TierVeryHigh}
	for score, want := range cases {
		if got := Tier(score); got != want {
			t.Fatalf("Tier(%d) = %s, want %s", score, got, want)
		}
	}
}

func TestDecideScenarioApprovedWithinBand(t *testing.T) {
	d := Decide(620, Candidate{Amount: 25000, TermMonths: 12}, nil)
	if d.Outcome != loanentity.OutcomeApproved {
		t.Fatalf("expected APPROVED, got %s (%s)", d.Outcome, d.Reason)
	}
	if d.MaxAmount != 30000 || !slices.Equal(d.AllowedTerms, []int{3, 6, 12}) {
		t.Fatalf("unexpected cap %v terms %v", d.MaxAmount, d.AllowedTerms)
	}
}

func TestDecideLowScoreRejectedRegardlessOfAmount(t *testing.T) {
	for _, amount := range []float64{1, 500, 25000, 100000} {
		d := Decide(480, Candidate{Amount: amount, TermMonths: 3}, nil)
		if d.Outcome != loanentity.OutcomeRejected || d.MaxAmount != 0 {
			t.Fatalf("amount %v: expected REJECTED with max 0, got %s %v", amount, d.Outcome, d.MaxAmount)
		}
	}
}

func TestDecideCapBoundary(t *testing.T) {
	cases := []struct {
		name   string
		score  int
		amount float64
		term   int
		limit  *float64
		want   loanentity.Outcome
		max    float64
	}{
		{"exactly at cap", 620, 30000, 12, nil, loanentity.OutcomeApproved, 30000},
		{"one above cap, score clears threshold", 620, 30001, 12, nil, loanentity.OutcomeManualReview, 30000},
		{"one above cap, score below threshold", 540, 10001, 3, nil, loanentity.OutcomeRejected, 10000},
		{"low band within cap", 540, 10000, 6, nil, loanentity.OutcomeApproved, 10000},
		{"low band disallowed term", 540, 5000, 12, nil, loanentity.OutcomeRejected, 10000},
		{"bank limit lowers cap", 800, 20000, 18, ptr(15000), loanentity.OutcomeManualReview, 15000},
		{"bank limit above cap ignored", 800, 50000, 24, ptr(200000), loanentity.OutcomeApproved, 50000},
		{"equal to bank limit", 700, 12000, 6, ptr(12000), loanentity.OutcomeApproved, 12000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Decide(tc.score, Candidate{Amount: tc.amount, TermMonths: tc.term}, tc.limit)
			if d.Outcome != tc.want || d.MaxAmount != tc.max {
				t.Fatalf("expected %s/%v, got %s/%v (%s)", tc.want, tc.max, d.Outcome, d.MaxAmount, d.Reason)
			}
		})
	}
}

func TestEvaluatePublicEmployeeWithOpenLoanRejectedBeforeScoring(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	loans := []loanentity.Loan{
		{ID: "L-OLD", Status: loanentity.StatusActive, CreatedAt: now.AddDate(0, -2, 0)},
		{ID: "L-NEW", Status: loanentity.StatusPending, CreatedAt: now},
	}
	a := Applicant{
		Profession: entity.ProfessionPublicEmployee,
		Salary:     20000,
		History:    HistoryFrom(loans, "L-NEW", now),
	}
	d := Evaluate(a, Candidate{Amount: 1000, TermMonths: 3}, nil, 15000)
	if d.Outcome != loanentity.OutcomeRejected || d.Rule != RuleOpenLoan {
		t.Fatalf("expected open loan rejection, got %s/%s", d.Outcome, d.Rule)
	}
	if d.Score != nil {
		t.Fatal("scoring must not run when an open loan exists")
	}
	if d.Reason == "" || !strings.Contains(d.Reason, "L-OLD") {
		t.Fatalf("reason should cite the open loan, got %q", d.Reason)
	}
}

func TestEvaluatePublicEmployeeOverride(t *testing.T) {
	a := Applicant{Profession: entity.ProfessionPublicEmployee, Salary: 20000}
	d := Evaluate(a, Candidate{Amount: 40000, TermMonths: 12}, ptr(1000), 15000)
	if d.Outcome != loanentity.OutcomeApproved || d.MaxAmount != 40000 || d.Rule != RulePublicEmployee {
		t.Fatalf("unexpected decision %+v", d)
	}
	if d.Score != nil {
		t.Fatal("public employee override skips scoring")
	}

	d = Evaluate(Applicant{Profession: entity.ProfessionPublicEmployee}, Candidate{Amount: 30000, TermMonths: 6}, nil, 15000)
	if d.Outcome != loanentity.OutcomeApproved || d.MaxAmount != 30000 {
		t.Fatalf("default salary should give 30000, got %+v", d)
	}

	d = Evaluate(a, Candidate{Amount: 1000, TermMonths: 24}, nil, 15000)
	if d.Outcome != loanentity.OutcomeRejected {
		t.Fatalf("24 months is not offered to public employees, got %s", d.Outcome)
	}
}

func TestEvaluateScoresOtherProfessions(t *testing.T) {
	a := Applicant{Profession: entity.ProfessionPrivateEmployee, Salary: 20000}
	d := Evaluate(a, Candidate{Amount: 10000, TermMonths: 6}, nil, 15000)
	if d.Score == nil || d.Score.FinalScore != 570 {
		t.Fatalf("expected a score of 570, got %+v", d.Score)
	}
	if d.Outcome != loanentity.OutcomeApproved || d.MaxAmount != 10000 {
		t.Fatalf("unexpected decision %s/%v", d.Outcome, d.MaxAmount)
	}
}

func TestHistoryFrom(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	past := now.AddDate(0, -1, 0)
	loans := []loanentity.Loan{
		{ID: "1", Status: loanentity.StatusCompleted, CreatedAt: now.AddDate(-1, 0, 0)},
		{ID: "2", Status: loanentity.StatusDefaulted, CreatedAt: now.AddDate(0, -6, 0)},
		{ID: "3", Status: loanentity.StatusActive, DueAt: &past, CreatedAt: now.AddDate(0, 0, -10)},
		{ID: "4", Status: loanentity.StatusRejected, CreatedAt: now.AddDate(0, 0, -2)},
		{ID: "5", Status: loanentity.StatusPending, CreatedAt: now},
	}
	h := HistoryFrom(loans, "5", now)
	want := History{PriorLoans: 3, CompletedLoans: 1, RecentLoans: 1, OverdueOrDefaulted: 2, OpenLoans: 1, OpenLoanIDs: []string{"3"}}
	if h.PriorLoans != want.PriorLoans || h.CompletedLoans != want.CompletedLoans || h.RecentLoans != want.RecentLoans ||
		h.OverdueOrDefaulted != want.OverdueOrDefaulted || h.OpenLoans != want.OpenLoans || !slices.Equal(h.OpenLoanIDs, want.OpenLoanIDs) {
		t.Fatalf("expected %+v, got %+v", want, h)
	}
}

func TestRejectedRequestsDoNotRaiseScore(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c := Candidate{Amount: 50000, TermMonths: 6}
	fresh := Score(Applicant{History: HistoryFrom(nil, "", now)}, c).FinalScore

	var loans []loanentity.Loan
	for i, st := range []loanentity.Status{loanentity.StatusRejected, loanentity.StatusRejected, loanentity.StatusAnalyzing, loanentity.StatusPending} {
		loans = append(loans, loanentity.Loan{ID: fmt.Sprint(i), Status: st, CreatedAt: now.Add(-time.Hour)})
	}
	h := HistoryFrom(loans, "", now)
	if h.PriorLoans != 0 || h.RecentLoans != 0 {
		t.Fatalf("unoriginated loans must not count as history, got %+v", h)
	}
	if got := Score(Applicant{History: h}, c).FinalScore; got != fresh {
		t.Fatalf("score moved from %d to %d after rejected requests", fresh, got)
	}

	loans = append(loans, loanentity.Loan{ID: "ok", Status: loanentity.StatusApproved, CreatedAt: now.Add(-time.Hour)})
	if h := HistoryFrom(loans, "", now); h.PriorLoans != 1 || h.RecentLoans != 1 {
		t.Fatalf("an approved loan is history, got %+v", h)
	}
}

func TestSimulate(t *testing.T) {
	rows := Simulate(10000, 0.05, []int{3, 0, 6})
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].TermMonths != 3 || rows[0].Monthly != 3672.09 || rows[0].Total != 11016.27 {
		t.Fatalf("unexpected 3 month row %+v", rows[0])
	}
	flat := Simulate(10000, 0, []int{3})
	if flat[0].Monthly != 3333.33 {
		t.Fatalf("zero rate should split evenly, got %+v", flat[0])
	}
}

func ptr(v float64) *float64 { return &v }

