package partner

import (
	"context"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

// MobileMoney is the adapter for wallet operators. Operators address
// customers by MSISDN without the leading "+" and exchange amounts as
// decimal strings.
type MobileMoney struct {
	settings Settings
	http     httpCaller
}

func NewMobileMoney(s Settings, client *http.Client, signer *TokenSigner) *MobileMoney {
	return &MobileMoney{
		settings: s,
		http:     httpCaller{code: s.Code, baseURL: s.BaseURL, client: client, signer: signer},
	}
}

func (m *MobileMoney) Code() string { return m.settings.Code }
func (m *MobileMoney) Name() string { return m.settings.Name }
func (m *MobileMoney) Kind() Kind   { return m.settings.Kind }

// minimum KYC tier for credit products
const minKYCLevel = 2

// payout result code for success
const payoutOK = "INS-0"

func msisdn(phone string) string { return strings.TrimPrefix(phone, "+") }

type walletKYCResponse struct {
	Status        string          `json:"status"`
	KYCLevel      int             `json:"kyc_level"`
	CreditCeiling decimal.Decimal `json:"credit_ceiling"`
}

func (m *MobileMoney) CheckEligibility(ctx context.Context, id Identity) (Eligibility, error) {
	var resp walletKYCResponse
	if err := m.http.do(ctx, http.MethodGet, "/v1/wallets/"+msisdn(id.PhoneNumber)+"/kyc", nil, nil, &resp); err != nil {
		return Eligibility{PartnerCode: m.settings.Code}, err
	}
	e := Eligibility{PartnerCode: m.settings.Code}
	switch {
	case resp.Status != "ACTIVE":
		e.Reason = "wallet " + strings.ToLower(resp.Status)
	case resp.KYCLevel < minKYCLevel:
		e.Reason = "kyc level too low"
	default:
		e.Eligible = true
		e.MaxAmount, _ = resp.CreditCeiling.Float64()
	}
	return e, nil
}

type payoutRequest struct {
	MSISDN    string `json:"msisdn"`
	Amount    string `json:"amount"`
	Reference string `json:"reference"`
	Narration string `json:"narration"`
}

type payoutResponse struct {
	Code          string `json:"code"`
	TransactionID string `json:"transaction_id"`
	Description   string `json:"description"`
}

func (m *MobileMoney) Disburse(ctx context.Context, req DisbursementRequest) (Disbursement, error) {
	body := payoutRequest{
		MSISDN:    msisdn(req.Destination),
		Amount:    decimal.NewFromFloat(req.Amount).StringFixed(2),
		Reference: req.Reference,
		Narration: "Loan " + req.LoanID,
	}
	var resp payoutResponse
	if err := m.http.do(ctx, http.MethodPost, "/v1/payouts", body, nil, &resp); err != nil {
		return Disbursement{}, err
	}
	return Disbursement{
		Success:       resp.Code == payoutOK,
		TransactionID: resp.TransactionID,
		Message:       resp.Description,
	}, nil
}

type walletResponse struct {
	Status  string          `json:"status"`
	Balance decimal.Decimal `json:"balance"`
}

func (m *MobileMoney) Balance(ctx context.Context, phone string) (Balance, error) {
	var resp walletResponse
	if err := m.http.do(ctx, http.MethodGet, "/v1/wallets/"+msisdn(phone), nil, nil, &resp); err != nil {
		return Balance{}, err
	}
	bal, _ := resp.Balance.Float64()
	return Balance{Active: resp.Status == "ACTIVE", Balance: bal}, nil
}

func (m *MobileMoney) TestConnection(ctx context.Context) error {
	return m.http.do(ctx, http.MethodGet, "/v1/ping", nil, nil, nil)
}
