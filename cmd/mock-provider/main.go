package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/kelseyhightower/envconfig"
)

// Mock Twilio Messages endpoint for local testing of the dispatch
// pipeline. Outcomes are scripted through MOCK_OUTCOMES, e.g.
// "ok,invalid:21211,server_error" with round_robin mode to exercise the
// retry and permanent-failure paths.
type config struct {
	AccountSID  string `envconfig:"TWILIO_ACCOUNT_SID" default:"mock_sid"`
	AuthToken   string `envconfig:"TWILIO_AUTH_TOKEN" default:"mock_token"`
	Port        string `envconfig:"PORT" default:"8081"`
	OutcomeMode string `envconfig:"MOCK_OUTCOME_MODE" default:"fixed"`
	OutcomesRaw string `envconfig:"MOCK_OUTCOMES" default:"ok"`
	DelayMs     int    `envconfig:"MOCK_DELAY_MS" default:"0"`

	Outcomes []string
	Delay    time.Duration
}

type sendResponse struct {
	Sid     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type server struct {
	cfg config
	idx uint64
}

func main() {
	cfg := loadConfig()

	h := slog.NewJSONHandler(os.Stdout, nil)
	slog.SetDefault(slog.New(h).With("service", "mock-provider"))

	s := &server{cfg: cfg}

	router := mux.NewRouter()
	router.HandleFunc("/2010-04-01/Accounts/{AccountSid}/Messages.json", s.handleSend).Methods(http.MethodPost)

	slog.Info("mock provider listening", "port", cfg.Port, "outcomes", cfg.Outcomes)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		slog.Error("mock provider server failed", "err", err)
		os.Exit(1)
	}
}

func loadConfig() config {
	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	cfg.OutcomeMode = strings.ToLower(cfg.OutcomeMode)
	cfg.Delay = time.Duration(cfg.DelayMs) * time.Millisecond
	for _, p := range strings.Split(cfg.OutcomesRaw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cfg.Outcomes = append(cfg.Outcomes, p)
		}
	}
	if len(cfg.Outcomes) == 0 {
		cfg.Outcomes = []string{"ok"}
	}
	return cfg
}

func (s *server) handleSend(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != s.cfg.AccountSID || pass != s.cfg.AuthToken {
		writeJSON(w, http.StatusUnauthorized, sendResponse{Status: "failed", Code: 20003, Message: "Authentication Error"})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, sendResponse{Status: "failed", Code: 21620, Message: "Invalid form data"})
		return
	}
	if r.Form.Get("To") == "" || r.Form.Get("Body") == "" {
		writeJSON(w, http.StatusBadRequest, sendResponse{Status: "failed", Code: 21602, Message: "Missing required parameter"})
		return
	}
	if r.Form.Get("From") == "" {
		writeJSON(w, http.StatusBadRequest, sendResponse{Status: "failed", Code: 21606, Message: "From is required"})
		return
	}

	if s.cfg.Delay > 0 {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(s.cfg.Delay):
		}
	}

	outcome := s.nextOutcome()
	kind, code := parseOutcome(outcome)
	switch kind {
	case "ok", "success":
		n := atomic.AddUint64(&s.idx, 1) - 1
		writeJSON(w, http.StatusCreated, sendResponse{Sid: fmt.Sprintf("SM%06d", n), Status: "queued"})
	case "invalid":
		if code == 0 {
			code = 21211
		}
		writeJSON(w, http.StatusBadRequest, sendResponse{Status: "failed", Code: code, Message: "The 'To' number is not a valid phone number"})
	case "rate_limit", "429":
		if code == 0 {
			code = 20429
		}
		writeJSON(w, http.StatusTooManyRequests, sendResponse{Status: "failed", Code: code, Message: "Too many requests"})
	case "server_error", "500":
		if code == 0 {
			code = 20500
		}
		writeJSON(w, http.StatusInternalServerError, sendResponse{Status: "failed", Code: code, Message: "Internal server error"})
	default:
		if code == 0 {
			code = 30008
		}
		writeJSON(w, http.StatusInternalServerError, sendResponse{Status: "failed", Code: code, Message: "mock error: " + kind})
	}
}

func (s *server) nextOutcome() string {
	if s.cfg.OutcomeMode == "round_robin" {
		idx := atomic.AddUint64(&s.idx, 1) - 1
		return s.cfg.Outcomes[int(idx)%len(s.cfg.Outcomes)]
	}
	return s.cfg.Outcomes[0]
}

// parseOutcome splits "invalid:21614" into kind and error code.
func parseOutcome(raw string) (string, int) {
	parts := strings.SplitN(strings.TrimSpace(raw), ":", 2)
	code := 0
	if len(parts) == 2 {
		if v, err := strconv.Atoi(parts[1]); err == nil {
			code = v
		}
	}
	return parts[0], code
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
