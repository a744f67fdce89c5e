// Package customer finishes registrations: it runs the partner eligibility
// sweep and stores the verified customer with the winning partner's limit.
package customer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/customer/entity"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/customer/repo"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/partner"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/validate"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/pkg/utilities"
)

// Outcome of a registration.
type Outcome string

const (
	Registered  Outcome = "REGISTERED"
	NotEligible Outcome = "NOT_ELIGIBLE"
	NoPartner   Outcome = "NO_PARTNER"
)

// Notifier queues an SMS for the customer.
type Notifier interface {
	Enqueue(ctx context.Context, phone, message string) error
}

// Application is what the registration dialogue collected. Dates use
// validate.DateLayout.
type Application struct {
	NUIT         string
	FullName     string
	NationalID   string
	IDIssueDate  string
	IDExpiryDate string
	Profession   entity.Profession
	Salary       float64
	SalaryBank   string
}

type Registration struct {
	Outcome     Outcome
	Customer    *entity.Customer
	PartnerName string
	Reason      string
	Attempts    []partner.Attempt
}

type Service struct {
	customers repo.Store
	gw        *partner.Gateway
	notifier  Notifier
	clock     clockwork.Clock
	logger    *zap.SugaredLogger
}

func NewService(customers repo.Store, gw *partner.Gateway, notifier Notifier, clock clockwork.Clock, logger *zap.SugaredLogger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{customers: customers, gw: gw, notifier: notifier, clock: clock, logger: logger}
}

// Get returns the customer for phone or repo.ErrNotFound.
func (s *Service) Get(ctx context.Context, phone string) (*entity.Customer, error) {
	return s.customers.GetByPhone(ctx, phone)
}

// CheckExists reports whether phone belongs to a verified customer.
func (s *Service) CheckExists(ctx context.Context, phone string) (bool, error) {
	c, err := s.customers.GetByPhone(ctx, phone)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return c.Verified, nil
}

// Register asks every active bank about the applicant and stores a verified
// customer when one of them accepts. A phone that is already verified is
// returned unchanged.
func (s *Service) Register(ctx context.Context, phone string, app Application) (*Registration, error) {
	if existing, err := s.customers.GetByPhone(ctx, phone); err == nil && existing.Verified {
		return &Registration{Outcome: Registered, Customer: existing, PartnerName: s.partnerName(existing.AssignedBank)}, nil
	} else if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("load customer: %w", err)
	}

	id := partner.Identity{
		PhoneNumber: phone,
		NUIT:        app.NUIT,
		FullName:    app.FullName,
		NationalID:  app.NationalID,
		Salary:      app.Salary,
		SalaryBank:  app.SalaryBank,
	}
	sweep, err := s.gw.Sweep(ctx, id)
	if errors.Is(err, partner.ErrNoPartnerAvailable) {
		s.logger.Warnw("registration without reachable partner", "phone", phone, "attempts", len(sweep.Attempts))
		return &Registration{Outcome: NoPartner, Attempts: sweep.Attempts}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("eligibility sweep: %w", err)
	}
	if sweep.Winner == nil {
		s.notify(ctx, phone, "Your registration was not approved by our partner banks. You can try again later.")
		s.logger.Infow("registration not eligible", "phone", phone, "attempts", len(sweep.Attempts))
		return &Registration{Outcome: NotEligible, Reason: "no partner accepted", Attempts: sweep.Attempts}, nil
	}

	w := sweep.Winner
	nuit := app.NUIT
	c := &entity.Customer{
		ID:           utilities.NewSnowflakeID(),
		PhoneNumber:  phone,
		NUIT:         &nuit,
		FullName:     app.FullName,
		NationalID:   app.NationalID,
		IDIssueDate:  parseDate(app.IDIssueDate),
		IDExpiryDate: parseDate(app.IDExpiryDate),
		Profession:   app.Profession,
		Salary:       app.Salary,
		SalaryBank:   app.SalaryBank,
		AssignedBank: w.PartnerCode,
		CreditLimit:  w.MaxAmount,
		Verified:     true,
		CreatedAt:    s.clock.Now().UTC(),
	}
	if err := s.customers.Upsert(ctx, c); err != nil {
		if errors.Is(err, repo.ErrDuplicateNUIT) {
			s.logger.Warnw("nuit registered to another phone", "phone", phone)
			return &Registration{Outcome: NotEligible, Reason: "nuit already registered", Attempts: sweep.Attempts}, nil
		}
		return nil, fmt.Errorf("save customer: %w", err)
	}
	name := s.partnerName(w.PartnerCode)
	s.notify(ctx, phone, fmt.Sprintf("Welcome! Your registration is complete. Partner: %s. Credit limit: %.2f MZN.", name, w.MaxAmount))
	s.logger.Infow("customer registered", "phone", phone, "partner", w.PartnerCode, "credit_limit", w.MaxAmount)
	return &Registration{Outcome: Registered, Customer: c, PartnerName: name, Attempts: sweep.Attempts}, nil
}

func (s *Service) partnerName(code string) string {
	if e, ok := s.gw.Registry().Get(code); ok && e.Partner.Name() != "" {
		return e.Partner.Name()
	}
	return code
}

func (s *Service) notify(ctx context.Context, phone, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Enqueue(ctx, phone, message); err != nil {
		s.logger.Errorw("queue sms", "phone", phone, "err", err)
	}
}

func parseDate(v string) *time.Time {
	t, err := time.Parse(validate.DateLayout, v)
	if err != nil {
		return nil
	}
	return &t
}
