package partner

import (
	"context"
	"net/http"
	"net/url"
)

// Bank is the adapter for partner banks exposing the JSON lending API.
type Bank struct {
	settings Settings
	http     httpCaller
}

func NewBank(s Settings, client *http.Client, signer *TokenSigner) *Bank {
	return &Bank{
		settings: s,
		http:     httpCaller{code: s.Code, baseURL: s.BaseURL, client: client, signer: signer},
	}
}

func (b *Bank) Code() string { return b.settings.Code }
func (b *Bank) Name() string { return b.settings.Name }
func (b *Bank) Kind() Kind   { return b.settings.Kind }

type bankEligibilityResponse struct {
	Eligible  bool    `json:"eligible"`
	MaxAmount float64 `json:"max_amount"`
	Terms     []int   `json:"terms"`
	Reason    string  `json:"reason"`
}

func (b *Bank) CheckEligibility(ctx context.Context, id Identity) (Eligibility, error) {
	var resp bankEligibilityResponse
	if err := b.http.do(ctx, http.MethodPost, "/eligibility", id, nil, &resp); err != nil {
		return Eligibility{PartnerCode: b.settings.Code}, err
	}
	return Eligibility{
		PartnerCode: b.settings.Code,
		Eligible:    resp.Eligible,
		MaxAmount:   resp.MaxAmount,
		Terms:       resp.Terms,
		Reason:      resp.Reason,
	}, nil
}

type bankDisbursementRequest struct {
	LoanID      string  `json:"loan_id"`
	Amount      float64 `json:"amount"`
	Destination string  `json:"destination"`
	Reference   string  `json:"reference"`
}

type bankDisbursementResponse struct {
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	Message       string `json:"message"`
}

func (b *Bank) Disburse(ctx context.Context, req DisbursementRequest) (Disbursement, error) {
	body := bankDisbursementRequest{LoanID: req.LoanID, Amount: req.Amount, Destination: req.Destination, Reference: req.Reference}
	var resp bankDisbursementResponse
	headers := map[string]string{"Idempotency-Key": req.Reference}
	if err := b.http.do(ctx, http.MethodPost, "/disbursements", body, headers, &resp); err != nil {
		return Disbursement{}, err
	}
	return Disbursement{
		Success:       resp.Status == "COMPLETED",
		TransactionID: resp.TransactionID,
		Message:       resp.Message,
	}, nil
}

type bankBalanceResponse struct {
	Active  bool    `json:"active"`
	Balance float64 `json:"balance"`
}

func (b *Bank) Balance(ctx context.Context, phone string) (Balance, error) {
	var resp bankBalanceResponse
	if err := b.http.do(ctx, http.MethodGet, "/accounts/"+url.PathEscape(phone)+"/balance", nil, nil, &resp); err != nil {
		return Balance{}, err
	}
	return Balance{Active: resp.Active, Balance: resp.Balance}, nil
}

func (b *Bank) TestConnection(ctx context.Context) error {
	return b.http.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}
