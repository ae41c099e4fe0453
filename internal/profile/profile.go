// Package profile holds the worker process configuration, populated from
// flags and environment variables by cmd/worker.
package profile

import (
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
)

// Profile is the configuration for a single worker/watchdog process.
type Profile struct {
	// Storage
	Driver string // postgres or sqlite
	DSN    string
	Mode   string // dev, demo or prod; selects the log format and the default sqlite file name

	WorkerID string

	// Queue / retry tuning
	MaxRetries                     int
	WorkerTimeoutSeconds           int
	CheckoutTimeoutMinutes         int
	WatchdogStaleHoursTranscribe   int
	WatchdogStaleHoursProcessContent int
	AlertThreshold                 int
	PollStartupIntervalMS          int
	PollBackoffMinMS               int
	PollBackoffMaxMS               int
	CleanupDays                    int

	// Health/metrics surface (ambient, not the excluded admin/API surface)
	HealthAddr string

	// Outbound gateways
	LLMProvider string
	LLMAPIKey   string
	LLMBaseURL  string
	LLMModel    string
	LLMTimeoutSeconds int

	HTTPTimeoutSeconds    int
	HTTPRateLimitPerSec   float64
	HTTPRateLimitBurst    int

	TelegramBotToken string
	TelegramChatID   int64

	WebhookAlertURL string
}

// FromEnv fills unset fields from environment variables.
func (p *Profile) FromEnv() {
	p.Driver = getEnvOrDefault("CONTENTPIPE_DRIVER", orDefault(p.Driver, "postgres"))
	p.DSN = getEnvOrDefault("CONTENTPIPE_DSN", p.DSN)
	p.Mode = getEnvOrDefault("CONTENTPIPE_MODE", orDefault(p.Mode, "dev"))

	if p.WorkerID == "" {
		p.WorkerID = getEnvOrDefault("CONTENTPIPE_WORKER_ID", "worker-"+uuid.NewString()[:8])
	}

	p.MaxRetries = getEnvOrDefaultInt("CONTENTPIPE_MAX_RETRIES", orDefaultInt(p.MaxRetries, 3))
	p.WorkerTimeoutSeconds = getEnvOrDefaultInt("CONTENTPIPE_WORKER_TIMEOUT_SECONDS", orDefaultInt(p.WorkerTimeoutSeconds, 120))
	p.CheckoutTimeoutMinutes = getEnvOrDefaultInt("CONTENTPIPE_CHECKOUT_TIMEOUT_MINUTES", orDefaultInt(p.CheckoutTimeoutMinutes, 30))
	p.WatchdogStaleHoursTranscribe = getEnvOrDefaultInt("CONTENTPIPE_WATCHDOG_STALE_HOURS_TRANSCRIBE", orDefaultInt(p.WatchdogStaleHoursTranscribe, 4))
	p.WatchdogStaleHoursProcessContent = getEnvOrDefaultInt("CONTENTPIPE_WATCHDOG_STALE_HOURS_PROCESS_CONTENT", orDefaultInt(p.WatchdogStaleHoursProcessContent, 2))
	p.AlertThreshold = getEnvOrDefaultInt("CONTENTPIPE_ALERT_THRESHOLD", orDefaultInt(p.AlertThreshold, 10))
	p.PollStartupIntervalMS = getEnvOrDefaultInt("CONTENTPIPE_POLL_STARTUP_INTERVAL_MS", orDefaultInt(p.PollStartupIntervalMS, 100))
	p.PollBackoffMinMS = getEnvOrDefaultInt("CONTENTPIPE_POLL_BACKOFF_MIN_MS", orDefaultInt(p.PollBackoffMinMS, 1000))
	p.PollBackoffMaxMS = getEnvOrDefaultInt("CONTENTPIPE_POLL_BACKOFF_MAX_MS", orDefaultInt(p.PollBackoffMaxMS, 5000))
	p.CleanupDays = getEnvOrDefaultInt("CONTENTPIPE_CLEANUP_DAYS", orDefaultInt(p.CleanupDays, 7))

	p.HealthAddr = getEnvOrDefault("CONTENTPIPE_HEALTH_ADDR", orDefault(p.HealthAddr, ":9090"))

	p.LLMProvider = getEnvOrDefault("CONTENTPIPE_LLM_PROVIDER", orDefault(p.LLMProvider, "openai"))
	p.LLMAPIKey = getEnvOrDefault("CONTENTPIPE_LLM_API_KEY", p.LLMAPIKey)
	p.LLMBaseURL = getEnvOrDefault("CONTENTPIPE_LLM_BASE_URL", p.LLMBaseURL)
	p.LLMModel = getEnvOrDefault("CONTENTPIPE_LLM_MODEL", orDefault(p.LLMModel, "gpt-4o-mini"))
	p.LLMTimeoutSeconds = getEnvOrDefaultInt("CONTENTPIPE_LLM_TIMEOUT_SECONDS", orDefaultInt(p.LLMTimeoutSeconds, 120))

	p.HTTPTimeoutSeconds = getEnvOrDefaultInt("CONTENTPIPE_HTTP_TIMEOUT_SECONDS", orDefaultInt(p.HTTPTimeoutSeconds, 20))
	p.HTTPRateLimitPerSec = getEnvOrDefaultFloat("CONTENTPIPE_HTTP_RATE_LIMIT_PER_SEC", orDefaultFloat(p.HTTPRateLimitPerSec, 5))
	p.HTTPRateLimitBurst = getEnvOrDefaultInt("CONTENTPIPE_HTTP_RATE_LIMIT_BURST", orDefaultInt(p.HTTPRateLimitBurst, 10))

	p.TelegramBotToken = getEnvOrDefault("CONTENTPIPE_TELEGRAM_BOT_TOKEN", p.TelegramBotToken)
	p.WebhookAlertURL = getEnvOrDefault("CONTENTPIPE_WATCHDOG_ALERT_WEBHOOK_URL", p.WebhookAlertURL)
}

// Validate checks invariants and fills in driver-specific defaults.
func (p *Profile) Validate() error {
	switch p.Mode {
	case "dev", "demo", "prod":
	default:
		p.Mode = "dev"
	}

	switch p.Driver {
	case "postgres":
		if p.DSN == "" {
			return fmt.Errorf("dsn required for postgres driver")
		}
	case "sqlite":
		if p.DSN == "" {
			p.DSN = fmt.Sprintf("contentpipe_%s.db", p.Mode)
		}
	default:
		return fmt.Errorf("unsupported driver %q (want postgres or sqlite)", p.Driver)
	}
	return nil
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func orDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

func orDefaultInt(value, def int) int {
	if value == 0 {
		return def
	}
	return value
}

func orDefaultFloat(value, def float64) float64 {
	if value == 0 {
		return def
	}
	return value
}
