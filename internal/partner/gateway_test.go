package partner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// stubPartner answers from fields; delay makes it slow, block makes it ignore
// its context entirely.
type stubPartner struct {
	code  string
	kind  Kind
	delay time.Duration
	block chan struct{}

	eligible  bool
	maxAmount float64
	eligErr   error

	mu          sync.Mutex
	disburseErr []error
	disburseOK  Disbursement
	references  []string

	calls atomic.Int32
}

func (s *stubPartner) Code() string { return s.code }
func (s *stubPartner) Name() string { return s.code }
func (s *stubPartner) Kind() Kind {
	if s.kind == "" {
		return KindBank
	}
	return s.kind
}

func (s *stubPartner) CheckEligibility(ctx context.Context, id Identity) (Eligibility, error) {
	s.calls.Add(1)
	if s.block != nil {
		<-s.block
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Eligibility{}, ctx.Err()
		}
	}
	if s.eligErr != nil {
		return Eligibility{}, s.eligErr
	}
	return Eligibility{Eligible: s.eligible, MaxAmount: s.maxAmount}, nil
}

func (s *stubPartner) Disburse(ctx context.Context, req DisbursementRequest) (Disbursement, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.references = append(s.references, req.Reference)
	if len(s.disburseErr) > 0 {
		err := s.disburseErr[0]
		s.disburseErr = s.disburseErr[1:]
		return Disbursement{}, err
	}
	return s.disburseOK, nil
}

func (s *stubPartner) Balance(ctx context.Context, phone string) (Balance, error) {
	return Balance{Active: true, Balance: 10}, nil
}

func (s *stubPartner) TestConnection(ctx context.Context) error { return s.eligErr }

func newTestGateway(t *testing.T, retry RetryPolicy, partners ...*stubPartner) *Gateway {
	t.Helper()
	reg := NewRegistry()
	for _, p := range partners {
		s := Settings{Code: p.code, Kind: p.Kind(), Timeout: 200 * time.Millisecond, Active: true}
		if p.Kind() == KindMobileMoney {
			s.Prefixes = []string{"84"}
		}
		if err := reg.Register(p, s); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	return NewGateway(reg, nil, nil, retry)
}

func TestSweepPicksFirstEligibleInConfiguredOrder(t *testing.T) {
	slowFirst := &stubPartner{code: "A", eligible: true, maxAmount: 40000, delay: 50 * time.Millisecond}
	fastSecond := &stubPartner{code: "B", eligible: true, maxAmount: 90000}
	gw := newTestGateway(t, RetryPolicy{}, slowFirst, fastSecond)

	res, err := gw.Sweep(context.Background(), Identity{PhoneNumber: "+258841234567"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Winner == nil || res.Winner.PartnerCode != "A" || res.Winner.MaxAmount != 40000 {
		t.Fatalf("expected partner A to win, got %+v", res.Winner)
	}
}

func TestSweepIgnoresZeroLimitApproval(t *testing.T) {
	gw := newTestGateway(t, RetryPolicy{},
		&stubPartner{code: "A", eligible: true},
		&stubPartner{code: "B", eligible: true, maxAmount: 12000},
	)
	res, err := gw.Sweep(context.Background(), Identity{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Winner == nil || res.Winner.PartnerCode != "B" {
		t.Fatalf("expected B to win, got %+v", res.Winner)
	}
}

func TestSweepSkipsFailingAndTimedOutPartners(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	hung := &stubPartner{code: "HUNG", block: block}
	broken := &stubPartner{code: "BROKEN", eligErr: errors.New("connection refused")}
	ok := &stubPartner{code: "OK", eligible: true, maxAmount: 25000}
	gw := newTestGateway(t, RetryPolicy{}, hung, broken, ok)

	start := time.Now()
	res, err := gw.Sweep(context.Background(), Identity{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Winner == nil || res.Winner.PartnerCode != "OK" {
		t.Fatalf("expected OK to win, got %+v", res.Winner)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("sweep blocked for %v", elapsed)
	}

	health := map[string]Health{}
	for _, h := range gw.Health() {
		health[h.Code] = h
	}
	if health["HUNG"].Failures != 1 || health["BROKEN"].Failures != 1 || health["OK"].Successes != 1 {
		t.Fatalf("unexpected health counters: %+v", health)
	}
}

func TestSweepNoneEligible(t *testing.T) {
	gw := newTestGateway(t, RetryPolicy{},
		&stubPartner{code: "A"},
		&stubPartner{code: "B", eligErr: errors.New("boom")},
	)
	res, err := gw.Sweep(context.Background(), Identity{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Winner != nil {
		t.Fatalf("expected no winner, got %+v", res.Winner)
	}
	if len(res.Attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(res.Attempts))
	}
}

func TestSweepAllFailing(t *testing.T) {
	gw := newTestGateway(t, RetryPolicy{},
		&stubPartner{code: "A", eligErr: errors.New("down")},
		&stubPartner{code: "B", eligErr: errors.New("down")},
	)
	_, err := gw.Sweep(context.Background(), Identity{})
	if !errors.Is(err, ErrNoPartnerAvailable) {
		t.Fatalf("expected ErrNoPartnerAvailable, got %v", err)
	}
}

func TestSweepIgnoresMobileMoneyOperators(t *testing.T) {
	wallet := &stubPartner{code: "MPESA", kind: KindMobileMoney, eligible: true, maxAmount: 1}
	bank := &stubPartner{code: "BANK", eligible: true, maxAmount: 2}
	gw := newTestGateway(t, RetryPolicy{}, wallet, bank)
	res, err := gw.Sweep(context.Background(), Identity{})
	if err != nil || res.Winner == nil || res.Winner.PartnerCode != "BANK" {
		t.Fatalf("expected BANK to win, got %+v, %v", res.Winner, err)
	}
	if wallet.calls.Load() != 0 {
		t.Fatal("wallet operator should not be swept")
	}
}

func TestDisburseRetriesTransientFailures(t *testing.T) {
	p := &stubPartner{
		code:        "A",
		disburseErr: []error{errors.New("connection reset"), &StatusError{Partner: "A", StatusCode: 503}},
		disburseOK:  Disbursement{Success: true, TransactionID: "TX1"},
	}
	gw := newTestGateway(t, RetryPolicy{MaxAttempts: 3}, p)

	d, err := gw.Disburse(context.Background(), "A", DisbursementRequest{LoanID: "L1", Amount: 100, Reference: "REF"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.TransactionID != "TX1" {
		t.Fatalf("unexpected disbursement %+v", d)
	}
	if len(p.references) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(p.references))
	}
	for _, ref := range p.references {
		if ref != "REF" {
			t.Fatalf("reference changed between attempts: %v", p.references)
		}
	}
}

func TestDisburseStopsOnPermanentFailure(t *testing.T) {
	p := &stubPartner{code: "A", disburseErr: []error{&StatusError{Partner: "A", StatusCode: 422}}}
	gw := newTestGateway(t, RetryPolicy{MaxAttempts: 3}, p)
	_, err := gw.Disburse(context.Background(), "A", DisbursementRequest{LoanID: "L1", Amount: 100})
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != 422 {
		t.Fatalf("expected 422 status error, got %v", err)
	}
	if len(p.references) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(p.references))
	}
}

func TestDisburseGivesUpAfterMaxAttempts(t *testing.T) {
	down := errors.New("down")
	p := &stubPartner{code: "A", disburseErr: []error{down, down, down, down}}
	gw := newTestGateway(t, RetryPolicy{MaxAttempts: 2}, p)
	_, err := gw.Disburse(context.Background(), "A", DisbursementRequest{LoanID: "L1"})
	if !errors.Is(err, ErrPartnerUnavailable) {
		t.Fatalf("expected ErrPartnerUnavailable, got %v", err)
	}
	if len(p.references) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(p.references))
	}
}

func TestDisburseDeclined(t *testing.T) {
	p := &stubPartner{code: "A", disburseOK: Disbursement{Success: false, Message: "account closed"}}
	gw := newTestGateway(t, RetryPolicy{MaxAttempts: 3}, p)
	_, err := gw.Disburse(context.Background(), "A", DisbursementRequest{LoanID: "L1"})
	if !errors.Is(err, ErrDeclined) {
		t.Fatalf("expected ErrDeclined, got %v", err)
	}
	if len(p.references) != 1 {
		t.Fatalf("declined payouts must not be retried, got %d attempts", len(p.references))
	}
}

func TestUnknownPartner(t *testing.T) {
	gw := newTestGateway(t, RetryPolicy{})
	if _, err := gw.CheckEligibility(context.Background(), "NOPE", Identity{}); !errors.Is(err, ErrUnknownPartner) {
		t.Fatalf("expected ErrUnknownPartner, got %v", err)
	}
	if _, err := gw.Disburse(context.Background(), "NOPE", DisbursementRequest{}); !errors.Is(err, ErrUnknownPartner) {
		t.Fatalf("expected ErrUnknownPartner, got %v", err)
	}
}

func TestRegistryForPhone(t *testing.T) {
	gw := newTestGateway(t, RetryPolicy{},
		&stubPartner{code: "BANK"},
		&stubPartner{code: "MPESA", kind: KindMobileMoney},
	)
	e, ok := gw.Registry().ForPhone("+258841234567")
	if !ok || e.Partner.Code() != "MPESA" {
		t.Fatalf("expected MPESA for 84 prefix, got %v", e)
	}
	if _, ok := gw.Registry().ForPhone("+258861234567"); ok {
		t.Fatal("no operator configured for 86")
	}
	if _, ok := gw.Registry().Get("mpesa"); !ok {
		t.Fatal("codes should be case-insensitive")
	}
}
