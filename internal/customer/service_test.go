package customer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/customer/entity"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/customer/repo"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/partner"
)

const phone = "+258841234567"

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Enqueue(_ context.Context, _ string, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

type downPartner struct{ code string }

func (d downPartner) Code() string       { return d.code }
func (d downPartner) Name() string       { return d.code }
func (d downPartner) Kind() partner.Kind { return partner.KindBank }
func (d downPartner) CheckEligibility(context.Context, partner.Identity) (partner.Eligibility, error) {
	return partner.Eligibility{}, errors.New("connection refused")
}
func (d downPartner) Disburse(context.Context, partner.DisbursementRequest) (partner.Disbursement, error) {
	return partner.Disbursement{}, errors.New("connection refused")
}
func (d downPartner) Balance(context.Context, string) (partner.Balance, error) {
	return partner.Balance{}, errors.New("connection refused")
}
func (d downPartner) TestConnection(context.Context) error { return errors.New("connection refused") }

func simulatedService(t *testing.T) (*Service, *repo.MemoryRepo, *recordingNotifier) {
	t.Helper()
	reg, err := partner.Build(partner.DefaultSettings(), nil, "test")
	if err != nil {
		t.Fatal(err)
	}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC))
	customers := repo.NewMemoryRepo()
	n := &recordingNotifier{}
	return NewService(customers, partner.NewGateway(reg, nil, clock, partner.RetryPolicy{}), n, clock, nil), customers, n
}

func application(salary float64) Application {
	return Application{
		NUIT:         "123456789",
		FullName:     "Ana Maria Cossa",
		NationalID:   "110100123456A",
		IDIssueDate:  "01/01/2020",
		IDExpiryDate: "01/01/2030",
		Profession:   entity.ProfessionPublicEmployee,
		Salary:       salary,
		SalaryBank:   "BIM",
	}
}

func TestRegisterPicksFirstEligibleBank(t *testing.T) {
	svc, customers, n := simulatedService(t)
	ctx := context.Background()

	if ok, err := svc.CheckExists(ctx, phone); err != nil || ok {
		t.Fatalf("expected unknown phone, got %v, %v", ok, err)
	}
	r, err := svc.Register(ctx, phone, application(20000))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if r.Outcome != Registered || r.PartnerName != "Millennium BIM" {
		t.Fatalf("unexpected registration %+v", r)
	}
	c, err := customers.GetByPhone(ctx, phone)
	if err != nil {
		t.Fatalf("customer not stored: %v", err)
	}
	if !c.Verified || c.AssignedBank != "BIM" || c.CreditLimit != 40000 {
		t.Fatalf("unexpected customer %+v", c)
	}
	if c.IDExpiryDate == nil || c.IDExpiryDate.Year() != 2030 {
		t.Fatalf("expiry date not parsed: %v", c.IDExpiryDate)
	}
	if ok, _ := svc.CheckExists(ctx, phone); !ok {
		t.Fatal("registered phone must exist")
	}
	if len(n.messages) != 1 {
		t.Fatalf("expected a welcome sms, got %v", n.messages)
	}

	again, err := svc.Register(ctx, phone, application(90000))
	if err != nil || again.Outcome != Registered || again.Customer.CreditLimit != 40000 {
		t.Fatalf("second registration must return the stored customer, got %+v, %v", again, err)
	}
}

func TestRegisterNotEligible(t *testing.T) {
	svc, customers, n := simulatedService(t)
	r, err := svc.Register(context.Background(), phone, application(3000))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if r.Outcome != NotEligible {
		t.Fatalf("expected NOT_ELIGIBLE, got %s", r.Outcome)
	}
	if _, err := customers.GetByPhone(context.Background(), phone); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("no customer must be stored, got %v", err)
	}
	if len(n.messages) != 1 {
		t.Fatalf("expected a rejection sms, got %v", n.messages)
	}
}

func TestRegisterNoPartner(t *testing.T) {
	reg := partner.NewRegistry()
	for _, code := range []string{"BIM", "BCI"} {
		if err := reg.Register(downPartner{code: code}, partner.Settings{Code: code, Kind: partner.KindBank, Timeout: time.Second, Active: true}); err != nil {
			t.Fatal(err)
		}
	}
	customers := repo.NewMemoryRepo()
	svc := NewService(customers, partner.NewGateway(reg, nil, clockwork.NewFakeClock(), partner.RetryPolicy{}), nil, nil, nil)
	r, err := svc.Register(context.Background(), phone, application(20000))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if r.Outcome != NoPartner || len(r.Attempts) != 2 {
		t.Fatalf("expected NO_PARTNER after two attempts, got %+v", r)
	}
}

func TestRegisterDuplicateNUIT(t *testing.T) {
	svc, _, _ := simulatedService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, phone, application(20000)); err != nil {
		t.Fatal(err)
	}
	r, err := svc.Register(ctx, "+258821234567", application(20000))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if r.Outcome != NotEligible {
		t.Fatalf("a NUIT owned by another phone must not register, got %s", r.Outcome)
	}
}
