package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// ReadyzCheck probes one dependency, typically the key-value store.
type ReadyzCheck func(ctx context.Context) error

func Healthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, envelope{Success: true, Message: "ok"})
	}
}

func Readyz(timeout time.Duration, checks ...ReadyzCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		for _, check := range checks {
			if err := check(ctx); err != nil {
				slog.Warn("readiness check failed", "err", err)
				writeError(w, http.StatusServiceUnavailable, "NOT_READY", "A dependency is not ready")
				return
			}
		}
		writeJSON(w, http.StatusOK, envelope{Success: true, Message: "ready"})
	}
}
