package partner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/pkg/utilities"
)

// RetryPolicy bounds disbursement retries. Waits double from BaseDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Health is the per-partner call record exposed to operators.
type Health struct {
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	Kind          Kind      `json:"kind"`
	Active        bool      `json:"active"`
	Successes     int64     `json:"successes"`
	Failures      int64     `json:"failures"`
	LastError     string    `json:"last_error,omitempty"`
	LastFailureAt time.Time `json:"last_failure_at,omitempty"`
}

// Attempt records one partner's answer during a sweep.
type Attempt struct {
	PartnerCode string
	Eligibility Eligibility
	Err         error
}

// SweepResult is the outcome of an eligibility sweep. Winner is nil when no
// partner reported eligible.
type SweepResult struct {
	Winner   *Eligibility
	Attempts []Attempt
}

// Gateway is the boundary every partner call goes through.
type Gateway struct {
	registry *Registry
	logger   *zap.SugaredLogger
	clock    clockwork.Clock
	retry    RetryPolicy

	mu     sync.Mutex
	health map[string]*Health
}

func NewGateway(reg *Registry, logger *zap.SugaredLogger, clock clockwork.Clock, retry RetryPolicy) *Gateway {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	return &Gateway{registry: reg, logger: logger, clock: clock, retry: retry, health: make(map[string]*Health)}
}

func (g *Gateway) Registry() *Registry { return g.registry }

func (g *Gateway) record(e *Entry, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	code := e.Partner.Code()
	h, ok := g.health[code]
	if !ok {
		h = &Health{Code: code}
		g.health[code] = h
	}
	if err == nil {
		h.Successes++
		return
	}
	h.Failures++
	h.LastError = err.Error()
	h.LastFailureAt = g.clock.Now().UTC()
}

// Health returns counters for every registered partner in configured order.
func (g *Gateway) Health() []Health {
	entries := g.registry.All()
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Health, 0, len(entries))
	for _, e := range entries {
		h := Health{Code: e.Partner.Code()}
		if rec, ok := g.health[e.Partner.Code()]; ok {
			h = *rec
		}
		h.Name = e.Partner.Name()
		h.Kind = e.Partner.Kind()
		h.Active = e.Settings.Active
		out = append(out, h)
	}
	return out
}

// call runs fn under the entry's timeout. The timeout holds even when fn
// ignores its context.
func call[T any](ctx context.Context, e *Entry, fn func(context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, e.Settings.Timeout)
	defer cancel()
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(cctx)
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-cctx.Done():
		var zero T
		return zero, cctx.Err()
	}
}

// CheckEligibility asks one partner. Any failure is reported as not eligible
// together with an error wrapping ErrPartnerUnavailable.
func (g *Gateway) CheckEligibility(ctx context.Context, code string, id Identity) (Eligibility, error) {
	e, ok := g.registry.Get(code)
	if !ok {
		return Eligibility{PartnerCode: code}, fmt.Errorf("%w: %s", ErrUnknownPartner, code)
	}
	return g.checkEntry(ctx, e, id)
}

func (g *Gateway) checkEntry(ctx context.Context, e *Entry, id Identity) (Eligibility, error) {
	el, err := call(ctx, e, func(c context.Context) (Eligibility, error) {
		return e.Partner.CheckEligibility(c, id)
	})
	g.record(e, err)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			g.logger.Warnw("partner eligibility check failed", "partner", e.Partner.Code(), "err", err)
		}
		return Eligibility{PartnerCode: e.Partner.Code()}, fmt.Errorf("%w: %s: %v", ErrPartnerUnavailable, e.Partner.Code(), err)
	}
	el.PartnerCode = e.Partner.Code()
	return el, nil
}

// Sweep queries every active bank concurrently. The winner is the first
// partner in configured order that reports eligible with a positive limit; the sweep returns as soon
// as that partner and every partner before it have answered, cancelling the
// rest. ErrNoPartnerAvailable is returned only when every partner failed.
func (g *Gateway) Sweep(ctx context.Context, id Identity) (SweepResult, error) {
	banks := g.registry.Banks()
	if len(banks) == 0 {
		return SweepResult{}, ErrNoPartnerAvailable
	}
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type answer struct {
		idx int
		Attempt
	}
	answers := make(chan answer, len(banks))
	for i, e := range banks {
		go func(i int, e *Entry) {
			el, err := g.checkEntry(sctx, e, id)
			answers <- answer{idx: i, Attempt: Attempt{PartnerCode: e.Partner.Code(), Eligibility: el, Err: err}}
		}(i, e)
	}

	resolved := make([]*Attempt, len(banks))
	var res SweepResult
	next := 0
	for received := 0; received < len(banks); received++ {
		var a answer
		select {
		case a = <-answers:
		case <-ctx.Done():
			return res, ctx.Err()
		}
		resolved[a.idx] = &a.Attempt
		res.Attempts = append(res.Attempts, a.Attempt)
		for next < len(banks) && resolved[next] != nil {
			if cur := resolved[next]; cur.Err == nil && cur.Eligibility.Eligible && cur.Eligibility.MaxAmount > 0 {
				winner := cur.Eligibility
				res.Winner = &winner
				g.logger.Infow("eligibility sweep won", "partner", winner.PartnerCode, "max_amount", winner.MaxAmount)
				return res, nil
			}
			next++
		}
	}

	failures := 0
	for _, a := range res.Attempts {
		if a.Err != nil {
			failures++
		}
	}
	if failures == len(banks) {
		return res, ErrNoPartnerAvailable
	}
	return res, nil
}

// Disburse pays out through partner code, retrying transient failures with
// exponential backoff. The same reference is sent on every attempt.
func (g *Gateway) Disburse(ctx context.Context, code string, req DisbursementRequest) (Disbursement, error) {
	e, ok := g.registry.Get(code)
	if !ok {
		return Disbursement{}, fmt.Errorf("%w: %s", ErrUnknownPartner, code)
	}
	if req.Reference == "" {
		req.Reference = utilities.NewULID()
	}
	var lastErr error
	for attempt := 0; attempt < g.retry.MaxAttempts; attempt++ {
		if attempt > 0 && g.retry.BaseDelay > 0 {
			backoff := g.retry.BaseDelay * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return Disbursement{}, ctx.Err()
			case <-g.clock.After(backoff):
			}
		}
		d, err := call(ctx, e, func(c context.Context) (Disbursement, error) {
			return e.Partner.Disburse(c, req)
		})
		g.record(e, err)
		if err == nil {
			if !d.Success {
				return d, fmt.Errorf("%w: %s", ErrDeclined, d.Message)
			}
			return d, nil
		}
		lastErr = err
		if !IsTransient(err) {
			return Disbursement{}, err
		}
		g.logger.Warnw("transient disbursement failure, retrying",
			"partner", code,
			"loan_id", req.LoanID,
			"attempt", attempt+1,
			"err", err,
		)
	}
	return Disbursement{}, fmt.Errorf("%w: %s: %v", ErrPartnerUnavailable, code, lastErr)
}

// Balance queries a wallet or account balance.
func (g *Gateway) Balance(ctx context.Context, code, phone string) (Balance, error) {
	e, ok := g.registry.Get(code)
	if !ok {
		return Balance{}, fmt.Errorf("%w: %s", ErrUnknownPartner, code)
	}
	b, err := call(ctx, e, func(c context.Context) (Balance, error) {
		return e.Partner.Balance(c, phone)
	})
	g.record(e, err)
	if err != nil {
		return Balance{}, fmt.Errorf("%w: %s: %v", ErrPartnerUnavailable, code, err)
	}
	return b, nil
}

// TestAll tests the connection to every registered partner and returns failures keyed by code.
func (g *Gateway) TestAll(ctx context.Context) map[string]error {
	out := make(map[string]error)
	for _, e := range g.registry.All() {
		_, err := call(ctx, e, func(c context.Context) (struct{}, error) {
			return struct{}{}, e.Partner.TestConnection(c)
		})
		g.record(e, err)
		out[e.Partner.Code()] = err
	}
	return out
}
