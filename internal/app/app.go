// Package app wires stores, partners and services from a Config. The API
// server and the operator CLI share it.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/config"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/customer"
	customerrepo "github.com/ovaphlow/pitchfork/service-ussd-credit/internal/customer/repo"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/flow"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/loan"
	loanrepo "github.com/ovaphlow/pitchfork/service-ussd-credit/internal/loan/repo"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/notify"
	notifyrepo "github.com/ovaphlow/pitchfork/service-ussd-credit/internal/notify/repo"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/partner"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/router"
	sessionrepo "github.com/ovaphlow/pitchfork/service-ussd-credit/internal/session/repo"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/ussd"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/verification"
	verificationrepo "github.com/ovaphlow/pitchfork/service-ussd-credit/internal/verification/repo"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/pkg/database"
)

type tableEnsurer interface {
	EnsureTable(ctx context.Context) error
}

// Stores groups the persistence layer.
type Stores struct {
	Sessions  sessionrepo.Store
	Customers customerrepo.Store
	Loans     loanrepo.Store
	Codes     verificationrepo.Store
	Outbox    notifyrepo.Outbox

	db     *sqlx.DB
	tables []tableEnsurer
}

// OpenStores connects to Postgres or builds in-memory stores.
func OpenStores(cfg config.Storage) (*Stores, error) {
	if cfg.Driver == "memory" {
		return &Stores{
			Sessions:  sessionrepo.NewMemoryRepo(),
			Customers: customerrepo.NewMemoryRepo(),
			Loans:     loanrepo.NewMemoryRepo(),
			Codes:     verificationrepo.NewMemoryRepo(),
			Outbox:    notifyrepo.NewMemoryOutbox(),
		}, nil
	}
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	sessions := sessionrepo.NewSessionRepo(db)
	customers := customerrepo.NewCustomerRepo(db)
	loans := loanrepo.NewLoanRepo(db)
	codes := verificationrepo.NewCodeRepo(db)
	outbox := notifyrepo.NewOutboxRepo(db)
	return &Stores{
		Sessions:  sessions,
		Customers: customers,
		Loans:     loans,
		Codes:     codes,
		Outbox:    outbox,
		db:        db,
		tables:    []tableEnsurer{customers, sessions, loans, codes, outbox},
	}, nil
}

// Migrate creates missing tables. It is a no-op for memory stores.
func (s *Stores) Migrate(ctx context.Context) error {
	for _, t := range s.tables {
		if err := t.EnsureTable(ctx); err != nil {
			return fmt.Errorf("ensure table: %w", err)
		}
	}
	return nil
}

// Ping checks the database connection when there is one.
func (s *Stores) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

func (s *Stores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// App is the assembled service.
type App struct {
	Stores     *Stores
	Gateway    *partner.Gateway
	Customers  *customer.Service
	Loans      *loan.Service
	Codes      *verification.Service
	Sessions   *ussd.Service
	Dispatcher *notify.Dispatcher
	Handler    http.Handler
}

// New builds every service on top of stores.
func New(ctx context.Context, cfg config.Config, stores *Stores, clock clockwork.Clock, logger *zap.SugaredLogger) (*App, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	settings, err := partner.LoadSettings(cfg.Partner.File)
	if err != nil {
		return nil, err
	}
	reg, err := partner.Build(settings, nil, cfg.Partner.Issuer)
	if err != nil {
		return nil, fmt.Errorf("build partners: %w", err)
	}
	gw := partner.NewGateway(reg, logger.Named("partner"), clock, partner.RetryPolicy{
		MaxAttempts: cfg.Partner.DisburseAttempts,
		BaseDelay:   cfg.Partner.DisburseBaseDelay,
	})

	sender, err := newSender(ctx, cfg.Notification, logger)
	if err != nil {
		return nil, err
	}
	queue := notify.NewQueue(stores.Outbox, clock)

	codes := verification.NewService(stores.Codes, sender, clock, logger.Named("verification"), verification.Config{
		TTL:         cfg.Session.CodeTTL,
		MaxAttempts: cfg.Session.CodeAttempts,
	})
	customers := customer.NewService(stores.Customers, gw, queue, clock, logger.Named("customer"))
	loans := loan.NewService(stores.Loans, stores.Customers, gw, queue, clock, logger.Named("loan"), loan.Config{
		DefaultSalary:    cfg.Decision.DefaultSalary,
		DefaultBankLimit: cfg.Decision.DefaultBankLimit,
		MonthlyRate:      cfg.Decision.MonthlyRate,
	})

	var banks []flow.BankOption
	for _, e := range reg.Banks() {
		banks = append(banks, flow.BankOption{Code: e.Partner.Code(), Name: e.Partner.Name()})
	}
	engine := flow.New(flow.Config{Banks: banks, MonthlyRate: cfg.Decision.MonthlyRate})
	exec := ussd.NewExecutor(customers, loans, codes, stores.Sessions, logger.Named("effects"))
	sessions := ussd.NewService(stores.Sessions, engine, exec, clock, logger.Named("ussd"), ussd.Config{
		TTL:           cfg.Session.TTL,
		ReplayWindow:  cfg.Session.ReplayWindow,
		RetryWindow:   cfg.Session.RetryWindow,
		PendingWait:   cfg.Session.PendingWait,
		EffectTimeout: cfg.Session.EffectTimeout,
	})

	handler := router.RegisterRoutes(logger,
		ussd.NewHandler(sessions, logger.Named("http")),
		partner.NewHandler(gw, logger.Named("http")))

	return &App{
		Stores:     stores,
		Gateway:    gw,
		Customers:  customers,
		Loans:      loans,
		Codes:      codes,
		Sessions:   sessions,
		Dispatcher: notify.NewDispatcher(stores.Outbox, sender, logger.Named("notify"), clock, cfg.Notification.Interval),
		Handler:    handler,
	}, nil
}

func newSender(ctx context.Context, cfg config.Notification, logger *zap.SugaredLogger) (notify.Sender, error) {
	if cfg.Provider != "sns" {
		return notify.NewLogSender(logger.Named("sms")), nil
	}
	client, err := notify.NewSNSClient(ctx, cfg.AWSRegion, cfg.SNSEndpoint)
	if err != nil {
		return nil, err
	}
	return notify.NewSNSSender(client, cfg.SenderID), nil
}
