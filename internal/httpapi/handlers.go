package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/DanielDenysevych/birthday-surprise/internal/domain"
	"github.com/DanielDenysevych/birthday-surprise/internal/observability"
	"github.com/DanielDenysevych/birthday-surprise/internal/util"
)

// Dispatcher runs one notification fan-out keyed by the caller's origin.
type Dispatcher interface {
	Dispatch(ctx context.Context, req domain.DispatchRequest, originKey string) (domain.DispatchSummary, error)
}

// SubscriberRepo is the subset of the repository the HTTP surface needs.
type SubscriberRepo interface {
	Create(ctx context.Context, candidate domain.Subscriber) (domain.Subscriber, error)
	Count(ctx context.Context) (int64, error)
	Clear(ctx context.Context) (int, error)
}

type API struct {
	Dispatcher  Dispatcher
	Subscribers SubscriberRepo

	CountryCode   string
	ProviderReady bool

	IDGen func() string
	Now   func() time.Time
}

func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/api/dispatch", a.handleDispatch).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/subscribers", a.handleSignup).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/subscribers", a.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/api/subscribers", a.handleReset).Methods(http.MethodDelete)
}

// envelope matches the response shape the microsite pages consume.
type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: code, Message: msg})
}

func (a *API) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req domain.DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Request body must be valid JSON")
		return
	}

	if !a.ProviderReady && !req.TestMode {
		writeError(w, http.StatusInternalServerError, "CONFIGURATION_ERROR", "Twilio configuration is missing")
		return
	}

	origin := ClientIP(r)
	slog.Info("dispatch request",
		"test_mode", req.TestMode,
		"specific_phone", util.MaskPhone(req.SpecificPhone),
		"message_len", len(req.Message),
	)

	summary, err := a.Dispatcher.Dispatch(r.Context(), req, origin)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrMissingMessage):
			writeError(w, http.StatusBadRequest, "MISSING_MESSAGE", "SMS message is required")
		case errors.Is(err, domain.ErrRateLimited):
			writeError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Too many SMS requests. Please wait before trying again.")
		case errors.Is(err, domain.ErrNoRecipients):
			writeError(w, http.StatusBadRequest, "NO_RECIPIENTS", "No subscribers found to send SMS to")
		default:
			slog.Error("dispatch failed", "err", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Failed to send SMS. Please try again.")
		}
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "SMS dispatch complete",
		Data: map[string]any{
			"totalSent":       summary.TotalSent,
			"totalFailed":     summary.TotalFailed,
			"totalRecipients": summary.TotalRecipients,
			"testMode":        summary.TestMode,
			"results":         summary.Results,
			"timestamp":       a.Now().Format(time.RFC3339),
		},
	})
}

type signupRequest struct {
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Timestamp string `json:"timestamp"`
	UserAgent string `json:"userAgent"`
	Referrer  string `json:"referrer"`
	Source    string `json:"source"`
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Request body must be valid JSON")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || strings.TrimSpace(req.Phone) == "" {
		observability.Signups.WithLabelValues("missing_fields").Inc()
		writeError(w, http.StatusBadRequest, "MISSING_REQUIRED_FIELDS", "Name and phone number are required")
		return
	}

	phone, err := util.NormalizePhone(req.Phone, a.CountryCode)
	if err != nil {
		observability.Signups.WithLabelValues("invalid_phone").Inc()
		writeError(w, http.StatusBadRequest, "INVALID_PHONE", "Please enter a valid phone number")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email != "" && !util.ValidEmail(email) {
		observability.Signups.WithLabelValues("invalid_email").Inc()
		writeError(w, http.StatusBadRequest, "INVALID_EMAIL", "Please enter a valid email address")
		return
	}

	source := req.Source
	if source == "" {
		source = "signup_form"
	}
	createdAt := a.Now()
	if ts, err := time.Parse(time.RFC3339, req.Timestamp); err == nil {
		createdAt = ts
	}
	candidate := domain.Subscriber{
		ID:        a.IDGen(),
		Name:      req.Name,
		Phone:     phone,
		Email:     email,
		Status:    domain.StatusActive,
		Source:    source,
		UserAgent: req.UserAgent,
		Referrer:  req.Referrer,
		CreatedAt: createdAt,
	}

	created, err := a.Subscribers.Create(r.Context(), candidate)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicatePhone) {
			observability.Signups.WithLabelValues("duplicate").Inc()
			writeError(w, http.StatusConflict, "DUPLICATE_PHONE", "This phone number is already registered for notifications!")
			return
		}
		slog.Error("signup failed", "err", err)
		observability.Signups.WithLabelValues("error").Inc()
		writeError(w, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Something went wrong. Please try again.")
		return
	}

	total, err := a.Subscribers.Count(r.Context())
	if err != nil {
		slog.Warn("subscriber count failed", "err", err)
		total = 1
	}
	observability.Signups.WithLabelValues("ok").Inc()
	slog.Info("new subscriber", "name", created.Name, "phone", util.MaskPhone(created.Phone), "total", total)

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Successfully registered for birthday notifications!",
		Data: map[string]any{
			"userId":           created.ID,
			"name":             created.Name,
			"phone":            created.Phone,
			"totalSubscribers": total,
			"registeredAt":     created.CreatedAt.Format(time.RFC3339),
		},
	})
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	total, err := a.Subscribers.Count(r.Context())
	if err != nil {
		slog.Warn("subscriber count failed", "err", err)
		total = 0
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data: map[string]any{
			"totalSubscribers": total,
			"timestamp":        a.Now().Format(time.RFC3339),
		},
	})
}

// handleReset bulk-clears every subscriber. Guarded by an explicit confirm
// query parameter so a stray DELETE cannot wipe the store.
func (a *API) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("reset") != "confirm" {
		writeError(w, http.StatusBadRequest, "CONFIRMATION_REQUIRED", "Pass reset=confirm to clear all subscribers")
		return
	}
	deleted, err := a.Subscribers.Clear(r.Context())
	if err != nil {
		slog.Error("subscriber clear failed", "err", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Reset failed")
		return
	}
	slog.Info("subscriber store cleared", "deleted_keys", deleted)
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Database reset complete",
		Data:    map[string]any{"deletedKeys": deleted},
	})
}
