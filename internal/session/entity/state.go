package entity

// State is a position inside a flow.
type State string

const (
	StateWelcome       State = "WELCOME"
	StateNUIT          State = "NUIT"
	StateName          State = "NAME"
	StateNationalID    State = "NATIONAL_ID"
	StateIDIssueDate   State = "ID_ISSUE_DATE"
	StateIDExpiryDate  State = "ID_EXPIRY_DATE"
	StateProfession    State = "PROFESSION"
	StateSalary        State = "SALARY"
	StateBank          State = "BANK"
	StateVerifyCode    State = "VERIFY_CODE"
	StateConfirm       State = "CONFIRM"
	StateRegistered    State = "REGISTERED"
	StateNotEligible   State = "NOT_ELIGIBLE"
	StateNoPartner     State = "NO_PARTNER"
	StateAlreadyMember State = "ALREADY_REGISTERED"

	StateCheckCustomer  State = "CHECK_CUSTOMER"
	StateSimulateAmount State = "SIMULATE_AMOUNT"
	StateRequestAmount  State = "REQUEST_AMOUNT"
	StateRequestTerm    State = "REQUEST_TERM"
	StateConfirmLoan    State = "CONFIRM_LOAN"
	StateProcessing     State = "PROCESSING"
	StateLoanComplete   State = "LOAN_COMPLETE"
	StateLoanStatus     State = "LOAN_STATUS"
	StateSimulation     State = "SIMULATION"

	StateCancelled State = "CANCELLED"
	StateError     State = "ERROR"
)

const terminalRank = 100

var ranks = map[State]int{
	StateWelcome:      0,
	StateNUIT:         1,
	StateName:         2,
	StateNationalID:   3,
	StateIDIssueDate:  4,
	StateIDExpiryDate: 5,
	StateProfession:   6,
	StateSalary:       7,
	StateBank:         8,
	StateVerifyCode:   9,
	StateConfirm:      10,

	StateCheckCustomer:  0,
	StateSimulateAmount: 1,
	StateRequestAmount:  1,
	StateRequestTerm:    2,
	StateConfirmLoan:    3,
	StateProcessing:     4,
}

// Rank orders the steps of a flow. Terminal states rank above every step.
func (s State) Rank() int {
	if r, ok := ranks[s]; ok {
		return r
	}
	return terminalRank
}

// Terminal reports whether no further input is accepted.
func (s State) Terminal() bool { return s.Rank() == terminalRank }
