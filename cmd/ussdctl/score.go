package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/customer/entity"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/scoring"
)

type scoreFlags struct {
	profession string
	salary     float64
	amount     float64
	term       int
	bankLimit  float64
	prior      int
	completed  int
	recent     int
	overdue    int
	open       int

	defaultSalary float64
}

func scoreCmd() *cobra.Command {
	var f scoreFlags
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Run the credit decision offline",
		Long: `Run the credit decision for a hypothetical applicant without touching
any store. Useful when tuning bands or answering support questions.

Examples:
  ussdctl score --amount 20000 --term 6
  ussdctl score --profession PUBLIC_EMPLOYEE --salary 25000 --amount 40000
  ussdctl score --amount 15000 --prior 3 --completed 3 --bank-limit 12000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.profession, "profession", string(entity.ProfessionPrivateEmployee), "declared profession")
	cmd.Flags().Float64Var(&f.salary, "salary", 0, "declared monthly salary")
	cmd.Flags().Float64Var(&f.amount, "amount", 0, "requested amount")
	cmd.Flags().IntVar(&f.term, "term", 0, "term in months, 0 skips the term check")
	cmd.Flags().Float64Var(&f.bankLimit, "bank-limit", 0, "bank credit limit, 0 means none")
	cmd.Flags().IntVar(&f.prior, "prior", 0, "previous loans")
	cmd.Flags().IntVar(&f.completed, "completed", 0, "previous loans fully repaid")
	cmd.Flags().IntVar(&f.recent, "recent", 0, "loans in the last 30 days")
	cmd.Flags().IntVar(&f.overdue, "overdue", 0, "overdue or defaulted loans")
	cmd.Flags().IntVar(&f.open, "open", 0, "loans still open")
	cmd.Flags().Float64Var(&f.defaultSalary, "default-salary", 15000, "salary assumed for a public employee who declared none")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func runScore(cmd *cobra.Command, f scoreFlags) error {
	profession := entity.Profession(strings.ToUpper(f.profession))
	known := false
	for _, p := range entity.Professions {
		if p == profession {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown profession %q", f.profession)
	}

	a := scoring.Applicant{
		Profession: profession,
		Salary:     f.salary,
		History: scoring.History{
			PriorLoans:         f.prior,
			CompletedLoans:     f.completed,
			RecentLoans:        f.recent,
			OverdueOrDefaulted: f.overdue,
			OpenLoans:          f.open,
		},
	}
	c := scoring.Candidate{Amount: f.amount, TermMonths: f.term}

	var limit *float64
	if f.bankLimit > 0 {
		limit = &f.bankLimit
	}
	d := scoring.Evaluate(a, c, limit, f.defaultSalary)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}
