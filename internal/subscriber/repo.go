package subscriber

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/DanielDenysevych/birthday-surprise/internal/domain"
	"github.com/DanielDenysevych/birthday-surprise/internal/kv"
)

const (
	recordKeyPrefix = "subscriber:id:"
	phoneKeyPrefix  = "subscriber:phone:"
	indexKey        = "subscribers:index"
)

// Repo persists subscriber records in the key-value store. Each record is
// written under three keys: the record itself, a phone index entry, and a
// membership set entry. The three writes are not transactional; reads are
// self-healing and treat any missing piece as absent.
type Repo struct {
	KV kv.Store
}

func NewRepo(store kv.Store) *Repo {
	return &Repo{KV: store}
}

func recordKey(id string) string   { return recordKeyPrefix + id }
func phoneKey(phone string) string { return phoneKeyPrefix + phone }

// ListActive resolves every membership entry to its record and filters to
// active status. Unresolvable entries are skipped, not errors: a missing
// record is treated as soft-deleted. Store failures yield an empty list so
// a dispatch degrades to "no recipients" instead of a hard fault.
func (r *Repo) ListActive(ctx context.Context) ([]domain.Subscriber, error) {
	ids, err := r.KV.SMembers(ctx, indexKey)
	if err != nil {
		slog.Error("subscriber index read failed", "err", err)
		return nil, nil
	}

	subs := make([]domain.Subscriber, 0, len(ids))
	for _, id := range ids {
		raw, found, err := r.KV.Get(ctx, recordKey(id))
		if err != nil {
			continue
		}
		if !found {
			// Dangling membership entry from a vanished record.
			// Repair the index instead of re-skipping it forever.
			if err := r.KV.SRem(ctx, indexKey, id); err != nil {
				slog.Warn("index repair failed", "id", id, "err", err)
			}
			continue
		}
		var sub domain.Subscriber
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			slog.Warn("subscriber record corrupt, skipping", "id", id, "err", err)
			continue
		}
		if sub.Status == domain.StatusActive {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

// FindByPhone resolves the phone index to a record. Absence is not an
// error; a dangling index entry reads as absent.
func (r *Repo) FindByPhone(ctx context.Context, phone string) (domain.Subscriber, bool, error) {
	id, found, err := r.KV.Get(ctx, phoneKey(phone))
	if err != nil {
		return domain.Subscriber{}, false, fmt.Errorf("phone index read: %w", err)
	}
	if !found {
		return domain.Subscriber{}, false, nil
	}
	raw, found, err := r.KV.Get(ctx, recordKey(id))
	if err != nil {
		return domain.Subscriber{}, false, fmt.Errorf("record read: %w", err)
	}
	if !found {
		return domain.Subscriber{}, false, nil
	}
	var sub domain.Subscriber
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		return domain.Subscriber{}, false, fmt.Errorf("record decode: %w", err)
	}
	return sub, true, nil
}

// Create registers a new subscriber. The candidate's phone must already be
// normalized. Duplicate phones are rejected before any write.
func (r *Repo) Create(ctx context.Context, candidate domain.Subscriber) (domain.Subscriber, error) {
	if _, exists, err := r.FindByPhone(ctx, candidate.Phone); err != nil {
		return domain.Subscriber{}, err
	} else if exists {
		return domain.Subscriber{}, domain.ErrDuplicatePhone
	}

	raw, err := json.Marshal(candidate)
	if err != nil {
		return domain.Subscriber{}, fmt.Errorf("record encode: %w", err)
	}
	if err := r.KV.Set(ctx, recordKey(candidate.ID), string(raw)); err != nil {
		return domain.Subscriber{}, fmt.Errorf("record write: %w", err)
	}
	if err := r.KV.Set(ctx, phoneKey(candidate.Phone), candidate.ID); err != nil {
		return domain.Subscriber{}, fmt.Errorf("phone index write: %w", err)
	}
	if err := r.KV.SAdd(ctx, indexKey, candidate.ID); err != nil {
		return domain.Subscriber{}, fmt.Errorf("membership write: %w", err)
	}
	return candidate, nil
}

// RecordDelivery increments the notification counter and stamps the last
// delivery time. Read-modify-write, last-write-wins: concurrent dispatches
// racing on the same subscriber may lose an update, which is accepted.
func (r *Repo) RecordDelivery(ctx context.Context, id string, at time.Time) error {
	raw, found, err := r.KV.Get(ctx, recordKey(id))
	if err != nil {
		return fmt.Errorf("record read: %w", err)
	}
	if !found {
		return fmt.Errorf("subscriber %s not found", id)
	}
	var sub domain.Subscriber
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		return fmt.Errorf("record decode: %w", err)
	}
	sub.NotificationsSent++
	sub.LastNotificationSent = &at

	buf, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("record encode: %w", err)
	}
	if err := r.KV.Set(ctx, recordKey(id), string(buf)); err != nil {
		return fmt.Errorf("record write: %w", err)
	}
	return nil
}

// Count returns the number of membership entries, including soft-deleted
// ones whose records have vanished.
func (r *Repo) Count(ctx context.Context) (int64, error) {
	return r.KV.SCard(ctx, indexKey)
}

// Clear deletes every subscriber record, phone index entry, and the
// membership set. Destructive maintenance operation.
func (r *Repo) Clear(ctx context.Context) (int, error) {
	ids, err := r.KV.SMembers(ctx, indexKey)
	if err != nil {
		return 0, fmt.Errorf("index read: %w", err)
	}

	deleted := 0
	for _, id := range ids {
		raw, found, err := r.KV.Get(ctx, recordKey(id))
		if err == nil && found {
			var sub domain.Subscriber
			if json.Unmarshal([]byte(raw), &sub) == nil && sub.Phone != "" {
				if err := r.KV.Del(ctx, phoneKey(sub.Phone)); err == nil {
					deleted++
				}
			}
		}
		if err := r.KV.Del(ctx, recordKey(id)); err == nil {
			deleted++
		}
	}
	if err := r.KV.Del(ctx, indexKey); err != nil {
		return deleted, fmt.Errorf("index delete: %w", err)
	}
	return deleted, nil
}
