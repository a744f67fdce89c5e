// Package verification issues and checks the SMS codes that prove a
// customer holds the phone they register from.
package verification

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/verification/entity"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/verification/repo"
)

var (
	ErrNoCode          = errors.New("no verification code issued")
	ErrCodeExpired     = errors.New("verification code expired")
	ErrCodeMismatch    = errors.New("verification code does not match")
	ErrTooManyAttempts = errors.New("too many verification attempts")
)

// Sender delivers the code by SMS.
type Sender interface {
	Send(ctx context.Context, phone, message string) error
}

type Config struct {
	TTL         time.Duration
	MaxAttempts int
	// Generate overrides the random 6 digit generator.
	Generate func() (string, error)
}

type Service struct {
	store  repo.Store
	sender Sender
	clock  clockwork.Clock
	logger *zap.SugaredLogger
	cfg    Config
}

func NewService(store repo.Store, sender Sender, clock clockwork.Clock, logger *zap.SugaredLogger, cfg Config) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Generate == nil {
		cfg.Generate = randomCode
	}
	return &Service{store: store, sender: sender, clock: clock, logger: logger, cfg: cfg}
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Issue stores a fresh code for phone and sends it by SMS.
func (s *Service) Issue(ctx context.Context, phone string) error {
	code, err := s.cfg.Generate()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash code: %w", err)
	}
	now := s.clock.Now().UTC()
	rec := &entity.Code{PhoneNumber: phone, CodeHash: string(hash), IssuedAt: now, ExpiresAt: now.Add(s.cfg.TTL)}
	if err := s.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("save code: %w", err)
	}
	msg := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(s.cfg.TTL.Minutes()))
	if err := s.sender.Send(ctx, phone, msg); err != nil {
		return fmt.Errorf("send code: %w", err)
	}
	s.logger.Debugw("verification code issued", "phone", phone)
	return nil
}

// Verify checks code against the outstanding one for phone and consumes it
// on success.
func (s *Service) Verify(ctx context.Context, phone, code string) error {
	rec, err := s.store.Get(ctx, phone)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNoCode
	}
	if err != nil {
		return err
	}
	if s.clock.Now().After(rec.ExpiresAt) {
		return ErrCodeExpired
	}
	if rec.Attempts >= s.cfg.MaxAttempts {
		return ErrTooManyAttempts
	}
	if bcrypt.CompareHashAndPassword([]byte(rec.CodeHash), []byte(code)) != nil {
		n, err := s.store.IncrementAttempts(ctx, phone)
		if err != nil {
			return err
		}
		if n >= s.cfg.MaxAttempts {
			return ErrTooManyAttempts
		}
		return ErrCodeMismatch
	}
	return s.store.Delete(ctx, phone)
}
