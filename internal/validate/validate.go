// Package validate holds the input checks applied to every USSD keystroke.
// Each check returns a *Error whose Message is safe to render on a handset.
package validate

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the DD/MM/YYYY layout used for document dates.
const DateLayout = "02/01/2006"

// MinSalary is the smallest declared monthly salary accepted at registration.
const MinSalary = 1000

var (
	nuitRx = regexp.MustCompile(`^\d{9}$`)
	codeRx = regexp.MustCompile(`^\d{6}$`)
	dateRx = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)
)

// Error is a user-correctable input problem.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string { return e.Field + ": " + e.Message }

func invalid(field, msg string) *Error { return &Error{Field: field, Message: msg} }

// NUIT checks a 9 digit taxpayer number.
func NUIT(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !nuitRx.MatchString(s) {
		return "", invalid("nuit", "NUIT must have 9 digits")
	}
	return s, nil
}

// FullName requires at least 3 characters.
func FullName(s string) (string, error) {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) < 3 {
		return "", invalid("name", "Name must have at least 3 characters")
	}
	return s, nil
}

// NationalID requires at least 9 characters; letters are upper-cased.
func NationalID(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len([]rune(s)) < 9 {
		return "", invalid("national_id", "ID number must have at least 9 characters")
	}
	return s, nil
}

// Date parses a DD/MM/YYYY calendar date.
func Date(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if !dateRx.MatchString(s) {
		return time.Time{}, invalid(field, "Use the format DD/MM/YYYY")
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, invalid(field, "Date does not exist")
	}
	return t, nil
}

// DateAfter checks that later is strictly after earlier.
func DateAfter(field string, earlier, later time.Time) error {
	if !later.After(earlier) {
		return invalid(field, "Expiry date must be after issue date")
	}
	return nil
}

// Amount parses a positive monetary amount. Both "1500.50" and "1500,50"
// are accepted; more than two decimal places is rejected.
func Amount(field, s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" {
		return 0, invalid(field, "Enter an amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, invalid(field, "Enter numbers only")
	}
	if !d.IsPositive() {
		return 0, invalid(field, "Amount must be greater than zero")
	}
	if d.Exponent() < -2 && !d.Equal(d.Round(2)) {
		return 0, invalid(field, "Use at most 2 decimal places")
	}
	f, _ := d.Float64()
	return f, nil
}

// Salary is an Amount of at least MinSalary.
func Salary(s string) (float64, error) {
	v, err := Amount("salary", s)
	if err != nil {
		return 0, err
	}
	if v < MinSalary {
		return 0, invalid("salary", "Salary must be at least 1000 MZN")
	}
	return v, nil
}

// VerificationCode checks a 6 digit SMS code.
func VerificationCode(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !codeRx.MatchString(s) {
		return "", invalid("code", "Code must have 6 digits")
	}
	return s, nil
}

// MenuChoice returns the trimmed input when it is one of options.
func MenuChoice(s string, options ...string) (string, error) {
	s = strings.TrimSpace(s)
	for _, o := range options {
		if s == o {
			return s, nil
		}
	}
	return "", invalid("option", "Invalid option")
}
