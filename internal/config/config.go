package config

import "github.com/kelseyhightower/envconfig"

type APIConfig struct {
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	// Key-value store. STORE=memory runs without Redis for local dev.
	Store         string `envconfig:"STORE" default:"redis"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Twilio
	TwilioAccountSID string `envconfig:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `envconfig:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber string `envconfig:"TWILIO_PHONE_NUMBER"`
	TwilioBaseURL    string `envconfig:"TWILIO_BASE_URL" default:"https://api.twilio.com"`

	// Phone normalization
	DefaultCountryCode string `envconfig:"DEFAULT_COUNTRY_CODE" default:"1"`

	// Dispatch admission: how many dispatch requests one origin may
	// trigger per window.
	DispatchRateLimit  int    `envconfig:"DISPATCH_RATE_LIMIT" default:"3"`
	DispatchRateWindow string `envconfig:"DISPATCH_RATE_WINDOW" default:"5m"`

	// Provider pacing
	BatchSize      int     `envconfig:"DISPATCH_BATCH_SIZE" default:"5"`
	BatchPause     string  `envconfig:"DISPATCH_BATCH_PAUSE" default:"1s"`
	SendMaxRetries int     `envconfig:"SEND_MAX_RETRIES" default:"2"`
	ProviderRPS    float64 `envconfig:"PROVIDER_RPS" default:"5"`
	ProviderBurst  int     `envconfig:"PROVIDER_BURST" default:"10"`
}

// TwilioConfigured reports whether live sends are possible. Dispatches in
// live mode fail with a configuration error when this is false; test mode
// still works.
func (c APIConfig) TwilioConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFromNumber != ""
}

func LoadAPI() APIConfig {
	var cfg APIConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}
