package sender

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/DanielDenysevych/birthday-surprise/internal/providers/twilio"
)

type fakeProvider struct {
	calls     int
	responses []providerReply
}

type providerReply struct {
	resp       twilio.SendResponse
	httpStatus int
	err        error
}

func (f *fakeProvider) SendSMS(ctx context.Context, req twilio.SendRequest) (twilio.SendResponse, int, error) {
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	r := f.responses[i]
	return r.resp, r.httpStatus, r.err
}

func newTestSender(p Provider, maxAttempts int) *Sender {
	s := New(p, "1", maxAttempts)
	s.Backoff = func(int) time.Duration { return 0 }
	s.Sleep = func(context.Context, time.Duration) {}
	return s
}

func TestSendSuccess(t *testing.T) {
	p := &fakeProvider{responses: []providerReply{
		{resp: twilio.SendResponse{Sid: "SM1", Status: "queued"}, httpStatus: 201},
	}}
	s := newTestSender(p, 2)

	res := s.Send(context.Background(), "5551234567", "hello")
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.MessageID != "SM1" || res.Status != "queued" {
		t.Fatalf("result = %+v", res)
	}
	if res.Phone != "+15551234567" {
		t.Fatalf("expected normalized phone, got %q", res.Phone)
	}
}

func TestSendInvalidPhoneSkipsProvider(t *testing.T) {
	p := &fakeProvider{responses: []providerReply{{}}}
	s := newTestSender(p, 3)

	res := s.SendWithRetry(context.Background(), "12345", "hello")
	if res.Success {
		t.Fatalf("expected failure")
	}
	if res.ErrorCode != "INVALID_PHONE" {
		t.Fatalf("errorCode = %q", res.ErrorCode)
	}
	if p.calls != 0 {
		t.Fatalf("provider contacted %d times for invalid phone", p.calls)
	}
}

func TestSendWithRetryStopsOnPermanentCode(t *testing.T) {
	p := &fakeProvider{responses: []providerReply{
		{resp: twilio.SendResponse{Code: 21211, Message: "invalid 'To' number"}, httpStatus: 400, err: errors.New("invalid 'To' number")},
	}}
	s := newTestSender(p, 3)

	res := s.SendWithRetry(context.Background(), "+15551234567", "hello")
	if res.Success {
		t.Fatalf("expected failure")
	}
	if p.calls != 1 {
		t.Fatalf("expected exactly 1 attempt for permanent code, got %d", p.calls)
	}
	if res.ErrorCode != "21211" {
		t.Fatalf("errorCode = %q", res.ErrorCode)
	}
}

func TestSendWithRetryExhaustsTransientFailures(t *testing.T) {
	p := &fakeProvider{responses: []providerReply{
		{resp: twilio.SendResponse{Code: 20500}, httpStatus: 500, err: errors.New("server error")},
	}}
	s := newTestSender(p, 3)

	res := s.SendWithRetry(context.Background(), "+15551234567", "hello")
	if res.Success {
		t.Fatalf("expected terminal failure")
	}
	if p.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", p.calls)
	}
}

func TestSendWithRetrySucceedsAfterTransient(t *testing.T) {
	p := &fakeProvider{responses: []providerReply{
		{resp: twilio.SendResponse{Code: 20500}, httpStatus: 500, err: errors.New("server error")},
		{resp: twilio.SendResponse{Sid: "SM2", Status: "queued"}, httpStatus: 201},
	}}
	s := newTestSender(p, 3)

	res := s.SendWithRetry(context.Background(), "+15551234567", "hello")
	if !res.Success {
		t.Fatalf("expected eventual success, got %+v", res)
	}
	if p.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", p.calls)
	}
}

func TestBreakerIgnoresRecipientRejections(t *testing.T) {
	p := &fakeProvider{responses: []providerReply{
		{resp: twilio.SendResponse{Code: 21211, Message: "invalid 'To' number"}, httpStatus: 400, err: errors.New("invalid 'To' number")},
	}}
	s := newTestSender(p, 1)
	s.Breaker = NewBreaker("test")

	// A run of per-recipient rejections must not look like a provider
	// outage to the breaker.
	for i := 0; i < 20; i++ {
		res := s.Send(context.Background(), "+15551234567", "hello")
		if res.ErrorCode != "21211" {
			t.Fatalf("send %d result = %+v", i+1, res)
		}
	}
	if s.Breaker.State() != gobreaker.StateClosed {
		t.Fatalf("breaker state = %v, want closed", s.Breaker.State())
	}
}

func TestBreakerTripsOnTransportFailures(t *testing.T) {
	p := &fakeProvider{responses: []providerReply{
		{resp: twilio.SendResponse{Code: 20500}, httpStatus: 500, err: errors.New("server error")},
	}}
	s := newTestSender(p, 1)
	s.Breaker = NewBreaker("test")

	for i := 0; i < 10; i++ {
		s.Send(context.Background(), "+15551234567", "hello")
	}
	if s.Breaker.State() != gobreaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", s.Breaker.State())
	}

	calls := p.calls
	res := s.Send(context.Background(), "+15551234567", "hello")
	if res.ErrorCode != "CIRCUIT_OPEN" {
		t.Fatalf("result after trip = %+v", res)
	}
	if p.calls != calls {
		t.Fatalf("provider contacted while breaker open")
	}
}

func TestBackoffGrowsExponentially(t *testing.T) {
	if twilio.Backoff(1) != 2*time.Second {
		t.Fatalf("backoff(1) = %v", twilio.Backoff(1))
	}
	if twilio.Backoff(2) != 4*time.Second {
		t.Fatalf("backoff(2) = %v", twilio.Backoff(2))
	}
	if twilio.Backoff(3) != 8*time.Second {
		t.Fatalf("backoff(3) = %v", twilio.Backoff(3))
	}
}
