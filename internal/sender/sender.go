package sender

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/DanielDenysevych/birthday-surprise/internal/domain"
	"github.com/DanielDenysevych/birthday-surprise/internal/observability"
	"github.com/DanielDenysevych/birthday-surprise/internal/providers/twilio"
	"github.com/DanielDenysevych/birthday-surprise/internal/util"
)

// Provider sends one message and reports the provider's classification of
// the outcome.
type Provider interface {
	SendSMS(ctx context.Context, req twilio.SendRequest) (twilio.SendResponse, int, error)
}

// Sender delivers one message to one recipient. The rate limiter paces
// calls to the provider, the breaker sheds load when the provider is down,
// and the retry wrapper re-attempts transient failures with exponential
// backoff while never retrying permanently-invalid recipients.
type Sender struct {
	Provider    Provider
	CountryCode string
	MaxAttempts int

	Limiter *rate.Limiter
	Breaker *gobreaker.CircuitBreaker

	// Backoff and Sleep are injectable so tests run without waiting.
	Backoff func(attempt int) time.Duration
	Sleep   func(ctx context.Context, d time.Duration)
}

func New(provider Provider, countryCode string, maxAttempts int) *Sender {
	return &Sender{
		Provider:    provider,
		CountryCode: countryCode,
		MaxAttempts: maxAttempts,
		Backoff:     twilio.Backoff,
		Sleep:       sleepCtx,
	}
}

// NewBreaker builds the circuit breaker placed in front of the provider.
// Only transient transport failures (timeouts, 429, 5xx) count toward
// tripping: the provider rejecting one recipient is not a provider outage.
func NewBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Timeout:     20 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 10 },
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var pe providerError
			if errors.As(err, &pe) {
				return !twilio.ShouldRetry(pe.err, pe.outcome.httpStatus)
			}
			return false
		},
	})
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Send normalizes the phone and performs a single provider call. A
// normalization failure returns a failure result without contacting the
// provider at all.
func (s *Sender) Send(ctx context.Context, phone, body string) domain.DeliveryResult {
	formatted, err := util.NormalizePhone(phone, s.CountryCode)
	if err != nil {
		return domain.DeliveryResult{
			Phone:     phone,
			Success:   false,
			Status:    "failed",
			Error:     err.Error(),
			ErrorCode: "INVALID_PHONE",
		}
	}

	if s.Limiter != nil {
		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := s.Limiter.Wait(waitCtx)
		cancel()
		if err != nil {
			observability.ProviderSend.WithLabelValues("rate_limited_local", "0").Inc()
			return domain.DeliveryResult{
				Phone:     formatted,
				Success:   false,
				Status:    "failed",
				Error:     "local send rate exceeded",
				ErrorCode: "LOCAL_RATE_LIMIT",
			}
		}
	}

	start := time.Now()
	resp, httpStatus, err := s.callProvider(ctx, formatted, body)

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		observability.ProviderSend.WithLabelValues("cb_open", "0").Inc()
		return domain.DeliveryResult{
			Phone:     formatted,
			Success:   false,
			Status:    "failed",
			Error:     "provider circuit open",
			ErrorCode: "CIRCUIT_OPEN",
		}
	}

	if err != nil {
		observability.ProviderSend.WithLabelValues("error", strconv.Itoa(httpStatus)).Inc()
		result := domain.DeliveryResult{
			Phone:   formatted,
			Success: false,
			Status:  "failed",
			Error:   err.Error(),
		}
		if resp.Code != 0 {
			result.ErrorCode = strconv.Itoa(resp.Code)
		}
		return result
	}

	observability.ProviderSend.WithLabelValues("ok", strconv.Itoa(httpStatus)).Inc()
	observability.ProviderLatency.Observe(time.Since(start).Seconds())
	return domain.DeliveryResult{
		Phone:     formatted,
		Success:   true,
		MessageID: resp.Sid,
		Status:    resp.Status,
	}
}

// SendWithRetry attempts Send up to MaxAttempts times. Validation failures
// and permanently-invalid recipients stop immediately; transient failures
// wait an exponentially growing delay between attempts.
func (s *Sender) SendWithRetry(ctx context.Context, phone, body string) domain.DeliveryResult {
	var last domain.DeliveryResult
	for attempt := 1; attempt <= s.MaxAttempts; attempt++ {
		last = s.Send(ctx, phone, body)
		if last.Success {
			return last
		}
		if last.ErrorCode == "INVALID_PHONE" {
			return last
		}
		if code, err := strconv.Atoi(last.ErrorCode); err == nil && twilio.PermanentFailure(code) {
			slog.Info("permanent failure, not retrying",
				"phone", util.MaskPhone(last.Phone),
				"error_code", last.ErrorCode,
			)
			return last
		}
		if attempt < s.MaxAttempts {
			s.Sleep(ctx, s.Backoff(attempt))
		}
		if ctx.Err() != nil {
			break
		}
	}
	slog.Warn("send failed after retries",
		"phone", util.MaskPhone(last.Phone),
		"attempts", s.MaxAttempts,
		"err", last.Error,
	)
	return last
}

func (s *Sender) callProvider(ctx context.Context, to, body string) (twilio.SendResponse, int, error) {
	call := func() (twilio.SendResponse, int, error) {
		reqCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
		defer cancel()
		return s.Provider.SendSMS(reqCtx, twilio.SendRequest{To: to, Body: body})
	}

	if s.Breaker == nil {
		return call()
	}

	res, err := s.Breaker.Execute(func() (any, error) {
		resp, httpStatus, callErr := call()
		out := sendOutcome{resp: resp, httpStatus: httpStatus}
		if callErr != nil {
			return out, providerError{err: callErr, outcome: out}
		}
		return out, nil
	})

	var pe providerError
	if errors.As(err, &pe) {
		return pe.outcome.resp, pe.outcome.httpStatus, pe.err
	}
	if err != nil {
		return twilio.SendResponse{}, 0, err
	}
	out := res.(sendOutcome)
	return out.resp, out.httpStatus, nil
}

type sendOutcome struct {
	resp       twilio.SendResponse
	httpStatus int
}

type providerError struct {
	err     error
	outcome sendOutcome
}

func (e providerError) Error() string { return e.err.Error() }
func (e providerError) Unwrap() error { return e.err }
