package entity

import "time"

// Profession is the occupation declared at registration.
type Profession string

const (
	ProfessionPublicEmployee  Profession = "PUBLIC_EMPLOYEE"
	ProfessionPrivateEmployee Profession = "PRIVATE_EMPLOYEE"
	ProfessionSelfEmployed    Profession = "SELF_EMPLOYED"
	ProfessionBusinessOwner   Profession = "BUSINESS_OWNER"
	ProfessionInformalWorker  Profession = "INFORMAL_WORKER"
	ProfessionOther           Profession = "OTHER"
)

// Professions lists the registration menu in display order (option 1..6).
var Professions = []Profession{
	ProfessionPublicEmployee,
	ProfessionPrivateEmployee,
	ProfessionSelfEmployed,
	ProfessionBusinessOwner,
	ProfessionInformalWorker,
	ProfessionOther,
}

// Label is the short menu text for a profession.
func (p Profession) Label() string {
	switch p {
	case ProfessionPublicEmployee:
		return "Public employee"
	case ProfessionPrivateEmployee:
		return "Private employee"
	case ProfessionSelfEmployed:
		return "Self-employed"
	case ProfessionBusinessOwner:
		return "Business owner"
	case ProfessionInformalWorker:
		return "Informal worker"
	default:
		return "Other"
	}
}

// Customer is a borrower keyed by phone number. Rows are written only when a
// registration finishes with a positive partner cross-check.
type Customer struct {
	ID           string     `db:"id" json:"id"`
	PhoneNumber  string     `db:"phone_number" json:"phone_number"`
	NUIT         *string    `db:"nuit" json:"nuit,omitempty"`
	FullName     string     `db:"full_name" json:"full_name"`
	NationalID   string     `db:"national_id" json:"national_id"`
	IDIssueDate  *time.Time `db:"id_issue_date" json:"id_issue_date,omitempty"`
	IDExpiryDate *time.Time `db:"id_expiry_date" json:"id_expiry_date,omitempty"`
	Profession   Profession `db:"profession" json:"profession"`
	Salary       float64    `db:"salary" json:"salary"`
	SalaryBank   string     `db:"salary_bank" json:"salary_bank"`
	AssignedBank string     `db:"assigned_bank" json:"assigned_bank"`
	CreditLimit  float64    `db:"credit_limit" json:"credit_limit"`
	Verified     bool       `db:"verified" json:"verified"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`

	// ActiveLoanCount is derived from the loans table, not stored.
	ActiveLoanCount int `db:"-" json:"active_loan_count"`
}
