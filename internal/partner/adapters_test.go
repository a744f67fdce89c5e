package partner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestBankAdapter(t *testing.T) {
	signer := NewTokenSigner("ussd-credit", "s3cret")
	var gotIdempotency string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if _, err := signer.Verify(auth, "BIM"); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/eligibility":
			var id Identity
			if err := json.NewDecoder(r.Body).Decode(&id); err != nil {
				http.Error(w, "bad json", http.StatusBadRequest)
				return
			}
			if id.NUIT != "123456789" {
				http.Error(w, "unexpected nuit", http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`{"eligible":true,"max_amount":40000,"terms":[3,6,12]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/disbursements":
			gotIdempotency = r.Header.Get("Idempotency-Key")
			_, _ = w.Write([]byte(`{"status":"COMPLETED","transaction_id":"TX-9"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/accounts/+258841234567/balance":
			_, _ = w.Write([]byte(`{"active":true,"balance":1500.5}`))
		case r.URL.Path == "/health":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	b := NewBank(Settings{Code: "BIM", Name: "Millennium BIM", Kind: KindBank, BaseURL: srv.URL}, srv.Client(), signer)
	ctx := context.Background()

	el, err := b.CheckEligibility(ctx, Identity{NUIT: "123456789", PhoneNumber: "+258841234567"})
	if err != nil {
		t.Fatalf("eligibility: %v", err)
	}
	if !el.Eligible || el.MaxAmount != 40000 || len(el.Terms) != 3 {
		t.Fatalf("unexpected eligibility %+v", el)
	}

	d, err := b.Disburse(ctx, DisbursementRequest{LoanID: "L1", Amount: 1000, Destination: "+258841234567", Reference: "REF-1"})
	if err != nil || !d.Success || d.TransactionID != "TX-9" {
		t.Fatalf("unexpected disbursement %+v, %v", d, err)
	}
	if gotIdempotency != "REF-1" {
		t.Fatalf("expected idempotency key REF-1, got %q", gotIdempotency)
	}

	bal, err := b.Balance(ctx, "+258841234567")
	if err != nil || !bal.Active || bal.Balance != 1500.5 {
		t.Fatalf("unexpected balance %+v, %v", bal, err)
	}
	if err := b.TestConnection(ctx); err != nil {
		t.Fatalf("test connection: %v", err)
	}
}

func TestBankAdapterStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	b := NewBank(Settings{Code: "BCI", Kind: KindBank, BaseURL: srv.URL}, srv.Client(), nil)
	_, err := b.CheckEligibility(context.Background(), Identity{})
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 status error, got %v", err)
	}
	if !IsTransient(err) {
		t.Fatal("503 should be transient")
	}
}

func TestMobileMoneyAdapter(t *testing.T) {
	var payout payoutRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/wallets/258841234567/kyc":
			_, _ = w.Write([]byte(`{"status":"ACTIVE","kyc_level":2,"credit_ceiling":"15000.00"}`))
		case r.URL.Path == "/v1/wallets/258851234567/kyc":
			_, _ = w.Write([]byte(`{"status":"ACTIVE","kyc_level":1,"credit_ceiling":"0"}`))
		case r.URL.Path == "/v1/payouts":
			_ = json.NewDecoder(r.Body).Decode(&payout)
			_, _ = w.Write([]byte(`{"code":"INS-0","transaction_id":"MP-1","description":"ok"}`))
		case r.URL.Path == "/v1/wallets/258841234567":
			_, _ = w.Write([]byte(`{"status":"ACTIVE","balance":"250.75"}`))
		case r.URL.Path == "/v1/ping":
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	m := NewMobileMoney(Settings{Code: "MPESA", Kind: KindMobileMoney, BaseURL: srv.URL, Prefixes: []string{"84", "85"}}, srv.Client(), nil)
	ctx := context.Background()

	el, err := m.CheckEligibility(ctx, Identity{PhoneNumber: "+258841234567"})
	if err != nil || !el.Eligible || el.MaxAmount != 15000 {
		t.Fatalf("unexpected eligibility %+v, %v", el, err)
	}
	el, err = m.CheckEligibility(ctx, Identity{PhoneNumber: "+258851234567"})
	if err != nil || el.Eligible || el.Reason == "" {
		t.Fatalf("low kyc wallet should be ineligible: %+v, %v", el, err)
	}

	d, err := m.Disburse(ctx, DisbursementRequest{LoanID: "L7", Amount: 1500.5, Destination: "+258841234567", Reference: "R"})
	if err != nil || !d.Success || d.TransactionID != "MP-1" {
		t.Fatalf("unexpected payout %+v, %v", d, err)
	}
	if payout.Amount != "1500.50" || payout.MSISDN != "258841234567" {
		t.Fatalf("unexpected payout body %+v", payout)
	}

	bal, err := m.Balance(ctx, "+258841234567")
	if err != nil || bal.Balance != 250.75 {
		t.Fatalf("unexpected balance %+v, %v", bal, err)
	}
	if err := m.TestConnection(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestSimulatedPartner(t *testing.T) {
	s := NewSimulated(Settings{Code: "SIM", Kind: KindBank, MaxAmount: 40000, SalaryMultiple: 2, MinSalary: 5000})
	el, _ := s.CheckEligibility(context.Background(), Identity{Salary: 20000})
	if !el.Eligible || el.MaxAmount != 40000 {
		t.Fatalf("unexpected eligibility %+v", el)
	}
	el, _ = s.CheckEligibility(context.Background(), Identity{Salary: 10000})
	if el.MaxAmount != 20000 {
		t.Fatalf("expected salary multiple limit, got %+v", el)
	}
	el, _ = s.CheckEligibility(context.Background(), Identity{Salary: 1000})
	if el.Eligible {
		t.Fatal("expected salary below minimum to be ineligible")
	}
}

func TestParseSettings(t *testing.T) {
	raw := []byte(`
partners:
  - code: bim
    name: Millennium BIM
    kind: bank
    driver: bank_http
    base_url: https://bim.example/api
    secret_env: PARTNER_BIM_SECRET
    timeout: 2s
  - code: mpesa
    kind: mobile_money
    driver: simulated
    prefixes: ["84", "85"]
    disabled: true
`)
	settings, err := ParseSettings(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(settings) != 2 {
		t.Fatalf("expected 2 partners, got %d", len(settings))
	}
	if settings[0].Code != "BIM" || settings[0].Timeout != 2*time.Second || !settings[0].Active {
		t.Fatalf("unexpected first partner %+v", settings[0])
	}
	if settings[1].Active || settings[1].Timeout != defaultTimeout || settings[1].Name != "MPESA" {
		t.Fatalf("unexpected second partner %+v", settings[1])
	}

	reg, err := Build(settings, nil, "ussd-credit")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(reg.Banks()) != 1 {
		t.Fatalf("expected one active bank, got %d", len(reg.Banks()))
	}
	if _, ok := reg.ForPhone("+258841234567"); ok {
		t.Fatal("disabled operator must not serve numbers")
	}
}

func TestParseSettingsRejectsBadEntries(t *testing.T) {
	cases := []string{
		`partners: []`,
		"partners:\n  - code: X\n    kind: atm\n    driver: simulated\n",
		"partners:\n  - code: X\n    kind: bank\n    driver: bank_http\n",
		"partners:\n  - kind: bank\n    driver: simulated\n",
	}
	for _, raw := range cases {
		if _, err := ParseSettings([]byte(raw)); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestDefaultSettingsBuild(t *testing.T) {
	reg, err := Build(DefaultSettings(), nil, "ussd-credit")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got := len(reg.Banks()); got != 6 {
		t.Fatalf("expected 6 banks, got %d", got)
	}
	if e, ok := reg.ForPhone("+258861234567"); !ok || e.Partner.Code() != "EMOLA" {
		t.Fatalf("expected EMOLA for 86 prefix")
	}
}
