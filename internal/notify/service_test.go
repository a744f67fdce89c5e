package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/jonboulle/clockwork"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/notify/entity"
	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/notify/repo"
)

type stubSender struct {
	mu   sync.Mutex
	err  error
	sent []string
}

func (s *stubSender) Send(_ context.Context, phone, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, phone+":"+message)
	return nil
}

func TestDispatcherDeliversPending(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))
	outbox := repo.NewMemoryOutbox()
	q := NewQueue(outbox, clock)
	ctx := context.Background()
	if err := q.Enqueue(ctx, "+258841234567", "hello"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	clock.Advance(time.Second)
	if err := q.Enqueue(ctx, "+258851234567", "world"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	sender := &stubSender{}
	d := NewDispatcher(outbox, sender, nil, clock, time.Second)
	sent, failed, err := d.RunOnce(ctx)
	if err != nil || sent != 2 || failed != 0 {
		t.Fatalf("expected 2 sent, got %d/%d, %v", sent, failed, err)
	}
	if sender.sent[0] != "+258841234567:hello" {
		t.Fatalf("expected oldest first, got %v", sender.sent)
	}
	for _, n := range outbox.All("") {
		if n.Status != entity.StatusSent || n.SentAt == nil {
			t.Fatalf("unexpected notification state %+v", n)
		}
	}
	if sent, _, _ := d.RunOnce(ctx); sent != 0 {
		t.Fatalf("sent notifications must not be resent, got %d", sent)
	}
}

func TestDispatcherGivesUpAfterMaxAttempts(t *testing.T) {
	outbox := repo.NewMemoryOutbox()
	ctx := context.Background()
	if err := NewQueue(outbox, nil).Enqueue(ctx, "+258841234567", "hi"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	d := NewDispatcher(outbox, &stubSender{err: errors.New("provider down")}, nil, nil, time.Second)
	for i := 0; i < MaxAttempts; i++ {
		if _, failed, err := d.RunOnce(ctx); err != nil || failed != 1 {
			t.Fatalf("round %d: expected one failure, got %d, %v", i, failed, err)
		}
	}
	all := outbox.All("")
	if all[0].Status != entity.StatusFailed || all[0].Attempts != MaxAttempts || all[0].LastError != "provider down" {
		t.Fatalf("unexpected notification %+v", all[0])
	}
	if _, failed, _ := d.RunOnce(ctx); failed != 0 {
		t.Fatal("failed notifications must leave the queue")
	}
}

type stubPublisher struct {
	in *sns.PublishInput
}

func (p *stubPublisher) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	p.in = in
	return &sns.PublishOutput{}, nil
}

func TestSNSSender(t *testing.T) {
	pub := &stubPublisher{}
	if err := NewSNSSender(pub, "CREDITO").Send(context.Background(), "+258841234567", "code 123456"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if *pub.in.PhoneNumber != "+258841234567" || *pub.in.Message != "code 123456" {
		t.Fatalf("unexpected input %+v", pub.in)
	}
	if *pub.in.MessageAttributes["AWS.SNS.SMS.SenderID"].StringValue != "CREDITO" {
		t.Fatal("sender id attribute missing")
	}
}
