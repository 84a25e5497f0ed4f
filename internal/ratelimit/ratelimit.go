package ratelimit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/DanielDenysevych/birthday-surprise/internal/kv"
)

// Limiter bounds how many requests a single origin key may trigger within
// a sliding window. The timestamp log lives in the key-value store so the
// limit holds across restarts. Storage failures fail open: availability of
// the dispatch wins over strict limiting.
type Limiter struct {
	KV  kv.Store
	Now func() time.Time
}

func New(store kv.Store) *Limiter {
	return &Limiter{KV: store, Now: time.Now}
}

// Allow prunes entries older than the window, denies when the remaining
// count has reached the limit, and otherwise appends the current timestamp
// and refreshes the log's expiry.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	now := l.Now()

	raw, found, err := l.KV.Get(ctx, key)
	if err != nil {
		slog.Warn("rate limit check failed, allowing", "key", key, "err", err)
		return true
	}

	var stamps []int64
	if found {
		if err := json.Unmarshal([]byte(raw), &stamps); err != nil {
			slog.Warn("rate limit log corrupt, resetting", "key", key, "err", err)
			stamps = nil
		}
	}

	windowStart := now.Add(-window).UnixMilli()
	recent := stamps[:0]
	for _, ts := range stamps {
		if ts > windowStart {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= limit {
		return false
	}

	recent = append(recent, now.UnixMilli())
	buf, _ := json.Marshal(recent)
	if err := l.KV.Set(ctx, key, string(buf)); err != nil {
		slog.Warn("rate limit log write failed, allowing", "key", key, "err", err)
		return true
	}
	// Round the expiry up to whole seconds so a sub-second window still
	// outlives its newest entry.
	ttl := window.Truncate(time.Second)
	if ttl < window {
		ttl += time.Second
	}
	if err := l.KV.Expire(ctx, key, ttl); err != nil {
		slog.Warn("rate limit expire failed", "key", key, "err", err)
	}
	return true
}
