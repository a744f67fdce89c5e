// Package ussd is the session controller behind POST /session and
// POST /continue. It loads the session, feeds the keystroke to the flow
// engine, runs the requested effect and stores the result with an optimistic
// version check so concurrent requests for one session serialize.
package ussd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/flow"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/session/entity"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/session/repo"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/validate"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/pkg/utilities"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrBusy            = errors.New("session busy")
)

const (
	processingMessage = "CON Your request is being processed. Please wait."
	maxMenuKey        = 2
)

// Effects connects the engine to the domain services.
type Effects interface {
	Facts(ctx context.Context, phone string) (flow.Facts, error)
	Execute(ctx context.Context, s *entity.Session, eff flow.Effect) flow.Result
}

type Config struct {
	TTL          time.Duration
	ReplayWindow time.Duration
	// RetryWindow extends replay detection for free-text input, which is
	// never legitimately typed twice in a row.
	RetryWindow time.Duration
	// PendingWait bounds how long a duplicate request waits for an effect
	// already running for the same session.
	PendingWait time.Duration
	// PendingStale is the age after which an unfinished effect is treated
	// as lost and the session is ended with ERROR.
	PendingStale  time.Duration
	EffectTimeout time.Duration
	MaxRetries    int
	PollInterval  time.Duration
}

func (c *Config) defaults() {
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
	if c.ReplayWindow <= 0 {
		c.ReplayWindow = 3 * time.Second
	}
	if c.RetryWindow <= 0 {
		c.RetryWindow = time.Minute
	}
	if c.RetryWindow < c.ReplayWindow {
		c.RetryWindow = c.ReplayWindow
	}
	if c.PendingWait <= 0 {
		c.PendingWait = 5 * time.Second
	}
	if c.EffectTimeout <= 0 {
		c.EffectTimeout = 30 * time.Second
	}
	if c.PendingStale <= 0 {
		c.PendingStale = 2 * c.EffectTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 25 * time.Millisecond
	}
}

// Reply is what the handset receives.
type Reply struct {
	SessionID string        `json:"sessionId"`
	Message   string        `json:"message"`
	State     entity.State  `json:"state"`
	Status    entity.Status `json:"status"`
}

type Service struct {
	sessions repo.Store
	engine   *flow.Engine
	effects  Effects
	clock    clockwork.Clock
	logger   *zap.SugaredLogger
	cfg      Config
}

func NewService(sessions repo.Store, engine *flow.Engine, effects Effects, clock clockwork.Clock, logger *zap.SugaredLogger, cfg Config) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	cfg.defaults()
	return &Service{sessions: sessions, engine: engine, effects: effects, clock: clock, logger: logger, cfg: cfg}
}

// Start opens a dialogue for phone. An unexpired ACTIVE session for the same
// flow, or one with an effect still running, is resumed instead of forking a
// new one. When flowHint is empty,
// verified customers get LOAN_REQUEST and everyone else REGISTRATION.
func (s *Service) Start(ctx context.Context, rawPhone string, flowHint entity.Flow) (Reply, error) {
	phone, err := validate.NormalizePhone(rawPhone)
	if err != nil {
		return Reply{}, err
	}
	facts, err := s.effects.Facts(ctx, phone)
	if err != nil {
		return Reply{}, fmt.Errorf("load customer facts: %w", err)
	}
	fl := flowHint
	if !fl.Valid() {
		fl = entity.FlowRegistration
		if facts.Verified {
			fl = entity.FlowLoanRequest
		}
	}

	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		now := s.clock.Now().UTC()
		existing, err := s.sessions.FindActive(ctx, phone, fl)
		switch {
		case err == nil && (existing.Meta.Pending != nil || !existing.Expired(now)):
			return s.resume(ctx, existing, now)
		case err == nil:
			if err := s.expire(ctx, existing); err != nil && !errors.Is(err, repo.ErrVersionConflict) {
				return Reply{}, err
			}
		case !errors.Is(err, repo.ErrNotFound):
			return Reply{}, fmt.Errorf("find active session: %w", err)
		}

		tr := s.engine.Start(fl, facts)
		sess := &entity.Session{
			ID:          utilities.NewKSUID(),
			PhoneNumber: phone,
			Flow:        fl,
			StartedAt:   now,
		}
		s.apply(sess, tr, "", "", now)
		if err := s.sessions.Create(ctx, sess); err != nil {
			if errors.Is(err, repo.ErrActiveSessionExists) {
				continue
			}
			return Reply{}, fmt.Errorf("create session: %w", err)
		}
		s.logger.Infow("session started", "session_id", sess.ID, "flow", fl, "state", sess.State)
		return reply(sess), nil
	}
	return Reply{}, ErrBusy
}

func (s *Service) resume(ctx context.Context, sess *entity.Session, now time.Time) (Reply, error) {
	if sess.Meta.Pending != nil {
		return Reply{SessionID: sess.ID, Message: processingMessage, State: sess.State, Status: sess.Status}, nil
	}
	tr := s.engine.Prompt(snapshot(sess))
	expected := sess.Version
	sess.Touch(now, s.cfg.TTL)
	sess.Meta.LastResponse = tr.Message
	if err := s.sessions.Update(ctx, sess, expected); err != nil && !errors.Is(err, repo.ErrVersionConflict) {
		return Reply{}, fmt.Errorf("touch session: %w", err)
	}
	s.logger.Debugw("session resumed", "session_id", sess.ID, "state", sess.State)
	return Reply{SessionID: sess.ID, Message: tr.Message, State: sess.State, Status: sess.Status}, nil
}

// Continue feeds one keystroke to the session. requestID, when the gateway
// supplies one, identifies retries of the same request.
func (s *Service) Continue(ctx context.Context, sessionID, input, requestID string) (Reply, error) {
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		sess, err := s.sessions.Get(ctx, sessionID)
		if errors.Is(err, repo.ErrNotFound) {
			return Reply{}, ErrSessionNotFound
		}
		if err != nil {
			return Reply{}, fmt.Errorf("load session: %w", err)
		}
		now := s.clock.Now().UTC()

		if sess.Status == entity.StatusExpired {
			return Reply{}, ErrSessionExpired
		}
		if sess.Meta.Pending == nil && sess.Expired(now) {
			if err := s.expire(ctx, sess); err != nil && !errors.Is(err, repo.ErrVersionConflict) {
				return Reply{}, err
			}
			return Reply{}, ErrSessionExpired
		}
		if sess.Status != entity.StatusActive {
			return cached(sess), nil
		}
		if s.isReplay(sess, input, requestID, now) {
			s.logger.Debugw("replayed response", "session_id", sess.ID, "request_id", requestID)
			return cached(sess), nil
		}
		if p := sess.Meta.Pending; p != nil {
			if now.Sub(p.Since) > s.cfg.PendingStale {
				return s.abandon(ctx, sess, now)
			}
			return s.wait(ctx, sess)
		}

		tr := s.engine.Step(snapshot(sess), input)
		if tr.Effect == nil {
			expected := sess.Version
			s.apply(sess, tr, input, requestID, now)
			if err := s.sessions.Update(ctx, sess, expected); err != nil {
				if errors.Is(err, repo.ErrVersionConflict) {
					continue
				}
				return Reply{}, fmt.Errorf("save session: %w", err)
			}
			s.logTerminal(sess)
			return reply(sess), nil
		}

		expected := sess.Version
		sess.State = tr.State
		sess.Fields = tr.Fields
		sess.Touch(now, s.cfg.TTL)
		sess.Meta.Pending = &entity.Pending{Effect: string(tr.Effect.Kind), Input: input, RequestID: requestID, Since: now}
		if err := s.sessions.Update(ctx, sess, expected); err != nil {
			if errors.Is(err, repo.ErrVersionConflict) {
				continue
			}
			return Reply{}, fmt.Errorf("mark pending effect: %w", err)
		}
		return s.runEffect(ctx, sess, tr, input, requestID)
	}
	return Reply{}, ErrBusy
}

// runEffect executes the effect of tr and stores the resumed transition. The
// effect runs detached from the caller's cancellation so a dropped request
// never leaves it half done.
func (s *Service) runEffect(ctx context.Context, sess *entity.Session, tr flow.Transition, input, requestID string) (Reply, error) {
	eff := *tr.Effect
	marker := *sess.Meta.Pending
	ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.EffectTimeout)
	res := s.effects.Execute(ectx, sess.Clone(), eff)
	cancel()
	if res.Err != nil {
		s.logger.Errorw("session effect failed", "session_id", sess.ID, "effect", eff.Kind, "err", res.Err)
	}
	final := s.engine.Resume(flow.Snapshot{Flow: sess.Flow, State: tr.State, Fields: tr.Fields}, eff, res)

	wctx := context.WithoutCancel(ctx)
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		now := s.clock.Now().UTC()
		expected := sess.Version
		s.apply(sess, final, input, requestID, now)
		err := s.sessions.Update(wctx, sess, expected)
		if err == nil {
			s.logTerminal(sess)
			return reply(sess), nil
		}
		if !errors.Is(err, repo.ErrVersionConflict) {
			return Reply{}, fmt.Errorf("save effect result: %w", err)
		}
		fresh, gerr := s.sessions.Get(wctx, sess.ID)
		if gerr != nil {
			return Reply{}, fmt.Errorf("reload session: %w", gerr)
		}
		if fresh.Meta.Pending == nil || !fresh.Meta.Pending.Since.Equal(marker.Since) || fresh.Meta.Pending.Input != marker.Input {
			s.logger.Warnw("effect result superseded", "session_id", sess.ID, "effect", eff.Kind)
			return cached(fresh), nil
		}
		sess = fresh
	}
	return Reply{}, ErrBusy
}

// wait polls until the running effect finishes or PendingWait elapses.
func (s *Service) wait(ctx context.Context, sess *entity.Session) (Reply, error) {
	deadline := s.clock.Now().Add(s.cfg.PendingWait)
	for s.clock.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return Reply{}, ctx.Err()
		case <-s.clock.After(s.cfg.PollInterval):
		}
		cur, err := s.sessions.Get(ctx, sess.ID)
		if err != nil {
			return Reply{}, fmt.Errorf("reload session: %w", err)
		}
		if cur.Meta.Pending == nil {
			return cached(cur), nil
		}
	}
	return Reply{SessionID: sess.ID, Message: processingMessage, State: sess.State, Status: sess.Status}, nil
}

// abandon ends a session whose effect never reported back.
func (s *Service) abandon(ctx context.Context, sess *entity.Session, now time.Time) (Reply, error) {
	s.logger.Errorw("pending effect lost", "session_id", sess.ID, "effect", sess.Meta.Pending.Effect, "since", sess.Meta.Pending.Since)
	expected := sess.Version
	s.apply(sess, s.engine.Abort(), sess.Meta.Pending.Input, sess.Meta.Pending.RequestID, now)
	if err := s.sessions.Update(ctx, sess, expected); err != nil && !errors.Is(err, repo.ErrVersionConflict) {
		return Reply{}, fmt.Errorf("abort session: %w", err)
	}
	return reply(sess), nil
}

func (s *Service) isReplay(sess *entity.Session, input, requestID string, now time.Time) bool {
	m := sess.Meta
	if m.LastResponse == "" || m.LastAt.IsZero() {
		return false
	}
	if requestID != "" {
		return requestID == m.LastRequestID
	}
	if m.Pending != nil || input != m.LastInput {
		return false
	}
	age := now.Sub(m.LastAt)
	if age <= s.cfg.ReplayWindow {
		return true
	}
	// menu keys repeat legitimately from one screen to the next
	return len(strings.TrimSpace(input)) > maxMenuKey && age <= s.cfg.RetryWindow
}

func (s *Service) expire(ctx context.Context, sess *entity.Session) error {
	expected := sess.Version
	sess.Status = entity.StatusExpired
	if err := s.sessions.Update(ctx, sess, expected); err != nil {
		return err
	}
	s.logger.Infow("session expired", "session_id", sess.ID, "state", sess.State)
	return nil
}

func (s *Service) apply(sess *entity.Session, tr flow.Transition, input, requestID string, now time.Time) {
	sess.State = tr.State
	if tr.Fields != nil {
		sess.Fields = tr.Fields
	}
	if sess.Fields == nil {
		sess.Fields = entity.NewFields(sess.Flow)
	}
	sess.Status = tr.Status
	sess.Touch(now, s.cfg.TTL)
	sess.Meta = entity.RecordMeta{
		LastInput:     input,
		LastRequestID: requestID,
		LastResponse:  tr.Message,
		LastAt:        now,
	}
}

func (s *Service) logTerminal(sess *entity.Session) {
	if sess.State.Terminal() {
		s.logger.Infow("session finished", "session_id", sess.ID, "flow", sess.Flow, "state", sess.State, "status", sess.Status)
	}
}

// ExpireStale marks every ACTIVE session past its window as EXPIRED.
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	return s.sessions.ExpireStale(ctx, s.clock.Now().UTC())
}

func snapshot(sess *entity.Session) flow.Snapshot {
	return flow.Snapshot{Flow: sess.Flow, State: sess.State, Fields: sess.Fields}
}

func reply(sess *entity.Session) Reply {
	return Reply{SessionID: sess.ID, Message: sess.Meta.LastResponse, State: sess.State, Status: sess.Status}
}

func cached(sess *entity.Session) Reply {
	r := reply(sess)
	if r.Message == "" {
		r.Message = "END This session has ended."
	}
	return r
}
