package scoring

import "github.com/shopspring/decimal"

// DefaultSimulationTerms are the terms shown by the loan simulator.
var DefaultSimulationTerms = []int{3, 6, 12}

// Installment is one row of a loan simulation.
type Installment struct {
	TermMonths int     `json:"term_months"`
	Monthly    float64 `json:"monthly"`
	Total      float64 `json:"total"`
}

// Simulate returns amortised monthly installments for each term, rounded to
// two decimals. monthlyRate is a fraction, 0.05 for 5%.
func Simulate(amount, monthlyRate float64, terms []int) []Installment {
	p := decimal.NewFromFloat(amount)
	r := decimal.NewFromFloat(monthlyRate)
	out := make([]Installment, 0, len(terms))
	for _, n := range terms {
		if n <= 0 {
			continue
		}
		months := decimal.NewFromInt(int64(n))
		var monthly decimal.Decimal
		if r.IsZero() {
			monthly = p.Div(months)
		} else {
			// p*r / (1 - (1+r)^-n)
			growth := decimal.NewFromInt(1).Add(r).Pow(months)
			monthly = p.Mul(r).Mul(growth).Div(growth.Sub(decimal.NewFromInt(1)))
		}
		monthly = monthly.Round(2)
		m, _ := monthly.Float64()
		t, _ := monthly.Mul(months).Round(2).Float64()
		out = append(out, Installment{TermMonths: n, Monthly: m, Total: t})
	}
	return out
}
