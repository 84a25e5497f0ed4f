package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/DanielDenysevych/birthday-surprise/internal/domain"
	"github.com/DanielDenysevych/birthday-surprise/internal/observability"
	"github.com/DanielDenysevych/birthday-surprise/internal/util"
)

// Repository is the subscriber store the orchestrator resolves recipients
// from and writes delivery bookkeeping into.
type Repository interface {
	ListActive(ctx context.Context) ([]domain.Subscriber, error)
	RecordDelivery(ctx context.Context, id string, at time.Time) error
}

// Sender delivers one personalized message to one recipient, retrying
// transient failures internally.
type Sender interface {
	SendWithRetry(ctx context.Context, phone, body string) domain.DeliveryResult
}

// Admitter bounds how often a single origin may trigger a dispatch.
type Admitter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) bool
}

// recipient is one resolved target. ID is empty for specificPhone sends,
// which bypass the repository and never reconcile.
type recipient struct {
	ID    string
	Name  string
	Phone string
}

// Orchestrator drives a dispatch end to end: admission, recipient
// resolution, batched concurrent sends, and bookkeeping reconciliation.
// Batches run strictly sequentially; sends within a batch fan out
// concurrently into per-slot results and are joined before the next batch
// starts.
type Orchestrator struct {
	Repo    Repository
	Sender  Sender
	Limiter Admitter

	BatchSize  int
	BatchPause time.Duration
	RateLimit  int
	RateWindow time.Duration

	// Injectable for tests.
	Sleep     func(ctx context.Context, d time.Duration)
	Now       func() time.Time
	NewTestID func() string
}

func New(repo Repository, snd Sender, limiter Admitter) *Orchestrator {
	return &Orchestrator{
		Repo:       repo,
		Sender:     snd,
		Limiter:    limiter,
		BatchSize:  5,
		BatchPause: time.Second,
		RateLimit:  3,
		RateWindow: 5 * time.Minute,
		Sleep:      sleepCtx,
		Now:        time.Now,
		NewTestID:  util.NewTestMessageID,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Dispatch runs one invocation. Rejections (missing message, rate limit,
// no recipients) return a domain error before any send happens; once
// sending starts, per-recipient failures are captured in the summary and
// never abort the run.
func (o *Orchestrator) Dispatch(ctx context.Context, req domain.DispatchRequest, originKey string) (domain.DispatchSummary, error) {
	// 1) admission
	if req.Message == "" {
		return domain.DispatchSummary{}, domain.ErrMissingMessage
	}
	if !o.Limiter.Allow(ctx, "dispatch:rate:"+originKey, o.RateLimit, o.RateWindow) {
		observability.RateLimited.Inc()
		observability.Dispatches.WithLabelValues("rate_limited").Inc()
		return domain.DispatchSummary{}, domain.ErrRateLimited
	}

	// 2) recipient resolution
	var recipients []recipient
	if req.SpecificPhone != "" {
		recipients = []recipient{{Name: "Test User", Phone: req.SpecificPhone}}
	} else {
		subs, err := o.Repo.ListActive(ctx)
		if err != nil {
			return domain.DispatchSummary{}, err
		}
		recipients = make([]recipient, 0, len(subs))
		for _, sub := range subs {
			recipients = append(recipients, recipient{ID: sub.ID, Name: sub.Name, Phone: sub.Phone})
		}
	}
	if len(recipients) == 0 {
		observability.Dispatches.WithLabelValues("no_recipients").Inc()
		return domain.DispatchSummary{}, domain.ErrNoRecipients
	}

	slog.Info("dispatch starting",
		"recipients", len(recipients),
		"test_mode", req.TestMode,
		"message_len", len(req.Message),
	)

	// 3) batching + 4) concurrent aggregation
	results := make([]domain.DeliveryResult, len(recipients))
	for start := 0; start < len(recipients); start += o.BatchSize {
		end := start + o.BatchSize
		if end > len(recipients) {
			end = len(recipients)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(slot int, rcpt recipient) {
				defer wg.Done()
				results[slot] = o.sendOne(ctx, req, rcpt)
			}(i, recipients[i])
		}
		wg.Wait()

		// Smooth provider load between batches.
		if end < len(recipients) {
			o.Sleep(ctx, o.BatchPause)
		}
	}

	summary := domain.DispatchSummary{
		TotalRecipients: len(recipients),
		TestMode:        req.TestMode,
	}
	for _, res := range results {
		if res.Success {
			summary.TotalSent++
			observability.Deliveries.WithLabelValues("sent").Inc()
		} else {
			summary.TotalFailed++
			observability.Deliveries.WithLabelValues("failed").Inc()
		}
	}

	// 5) reconciliation: bookkeeping only for live sends to known
	// subscribers. A failed write never rolls back a sent message.
	if !req.TestMode && req.SpecificPhone == "" {
		now := o.Now()
		for i, res := range results {
			if !res.Success || recipients[i].ID == "" {
				continue
			}
			if err := o.Repo.RecordDelivery(ctx, recipients[i].ID, now); err != nil {
				slog.Error("delivery bookkeeping failed",
					"subscriber_id", recipients[i].ID,
					"err", err,
				)
			}
		}
	}

	// 6) done: mask phones before the summary leaves the pipeline.
	summary.Results = make([]domain.DeliveryResult, len(results))
	for i, res := range results {
		res.Phone = util.MaskPhone(res.Phone)
		summary.Results[i] = res
	}

	observability.Dispatches.WithLabelValues("completed").Inc()
	slog.Info("dispatch complete",
		"total_recipients", summary.TotalRecipients,
		"sent", summary.TotalSent,
		"failed", summary.TotalFailed,
		"test_mode", req.TestMode,
	)
	return summary, nil
}

func (o *Orchestrator) sendOne(ctx context.Context, req domain.DispatchRequest, rcpt recipient) domain.DeliveryResult {
	name := rcpt.Name
	if name == "" {
		name = "Friend"
	}
	body := util.RenderTemplate(req.Message, map[string]string{"name": name})

	if req.TestMode {
		return domain.DeliveryResult{
			Phone:     rcpt.Phone,
			Success:   true,
			MessageID: o.NewTestID(),
			Status:    "test_sent",
		}
	}
	return o.Sender.SendWithRetry(ctx, rcpt.Phone, body)
}
