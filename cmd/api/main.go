package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/DanielDenysevych/birthday-surprise/internal/config"
	"github.com/DanielDenysevych/birthday-surprise/internal/dispatch"
	"github.com/DanielDenysevych/birthday-surprise/internal/httpapi"
	"github.com/DanielDenysevych/birthday-surprise/internal/kv"
	"github.com/DanielDenysevych/birthday-surprise/internal/logging"
	"github.com/DanielDenysevych/birthday-surprise/internal/observability"
	"github.com/DanielDenysevych/birthday-surprise/internal/providers/twilio"
	"github.com/DanielDenysevych/birthday-surprise/internal/ratelimit"
	"github.com/DanielDenysevych/birthday-surprise/internal/sender"
	"github.com/DanielDenysevych/birthday-surprise/internal/subscriber"
	"github.com/DanielDenysevych/birthday-surprise/internal/util"
)

func main() {
	cfg := config.LoadAPI()
	logging.Init("api", cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store kv.Store
	switch cfg.Store {
	case "memory":
		slog.Warn("using in-memory store, data will not survive restarts")
		store = kv.NewMemory()
	default:
		redisStore := kv.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer redisStore.Close()

		startupCtx, startupCancel := context.WithTimeout(ctx, 3*time.Second)
		if err := redisStore.Ping(startupCtx); err != nil {
			startupCancel()
			slog.Error("redis not reachable", "addr", cfg.RedisAddr, "err", err)
			os.Exit(1)
		}
		startupCancel()
		store = redisStore
	}

	observability.Register(prometheus.DefaultRegisterer)

	if !cfg.TwilioConfigured() {
		slog.Warn("twilio not configured, only test-mode dispatches will succeed")
	}

	tw := &twilio.Client{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		FromNumber: cfg.TwilioFromNumber,
		BaseURL:    cfg.TwilioBaseURL,
		HTTP:       &http.Client{Timeout: 10 * time.Second},
	}

	snd := sender.New(tw, cfg.DefaultCountryCode, cfg.SendMaxRetries)
	snd.Limiter = rate.NewLimiter(rate.Limit(cfg.ProviderRPS), cfg.ProviderBurst)
	snd.Breaker = sender.NewBreaker("twilio")

	repo := subscriber.NewRepo(store)
	limiter := ratelimit.New(store)

	orch := dispatch.New(repo, snd, limiter)
	orch.BatchSize = cfg.BatchSize
	orch.RateLimit = cfg.DispatchRateLimit
	if d, err := time.ParseDuration(cfg.BatchPause); err == nil {
		orch.BatchPause = d
	}
	if d, err := time.ParseDuration(cfg.DispatchRateWindow); err == nil {
		orch.RateWindow = d
	}

	s := httpapi.New()
	api := &httpapi.API{
		Dispatcher:    orch,
		Subscribers:   repo,
		CountryCode:   cfg.DefaultCountryCode,
		ProviderReady: cfg.TwilioConfigured(),
		IDGen:         util.NewSubscriberID,
		Now:           util.NowUTC,
	}
	api.Register(s.Mux)

	s.Mux.HandleFunc("/healthz", httpapi.Healthz())
	s.Mux.HandleFunc("/readyz", httpapi.Readyz(2*time.Second, func(ctx context.Context) error {
		return store.Ping(ctx)
	}))

	handler := httpapi.Logging(httpapi.CORS(httpapi.Metrics(observability.APIRequests)(s.Mux)))
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	go func() {
		slog.Info("metrics listening", "port", cfg.MetricsPort)
		if err := http.ListenAndServe(":"+cfg.MetricsPort, metricsMux); err != nil {
			slog.Error("metrics server failed", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("api shutdown", "signal", sig.String())
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("api listening", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("api server failed", "err", err)
		os.Exit(1)
	}
}
