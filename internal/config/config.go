// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database access, payment and calendar
// provider credentials, notification delivery, reconciliation sweeps, rate
// limiting, and observability.
package config

import (
	"errors"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "consult-booking")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	Driver       string // sqlite|postgres
	Path         string // SQLite file path
	URL          string // Postgres DSN
	MaxOpenConns int
}

// PaystackConfig holds payment gateway credentials and endpoints.
type PaystackConfig struct {
	SecretKey   string        // PAYSTACK_SECRET_KEY, also the webhook HMAC key
	BaseURL     string        // PAYSTACK_BASE_URL
	CallbackURL string        // where the gateway redirects the browser after checkout
	Timeout     time.Duration // per outbound call
}

// CalendlyConfig holds scheduling provider credentials and endpoints.
type CalendlyConfig struct {
	APIToken           string        // CALENDLY_API_TOKEN (personal access token)
	BaseURL            string        // CALENDLY_BASE_URL
	WebhookSigningKey  string        // CALENDLY_WEBHOOK_SIGNING_KEY
	SchedulingURL      string        // public event type link embedded in emails
	Timeout            time.Duration // per outbound call
	SignatureTolerance time.Duration // max age of a t=...,v1=... signature
}

// SMTPConfig configures the SMTP notification backend.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Timeout  time.Duration // bounds one DialAndSend
}

// AMQPConfig configures the AMQP notification backend.
type AMQPConfig struct {
	URL            string
	Exchange       string
	ConfirmTimeout time.Duration
}

// NotifyConfig selects and configures the notification dispatcher.
type NotifyConfig struct {
	Backend   string // log|smtp|amqp
	From      string
	TeamEmail string
	SMTP      SMTPConfig
	AMQP      AMQPConfig
}

// SweepConfig configures the reconciliation sweeps and their optional
// in-process scheduler.
type SweepConfig struct {
	BatchSize       int
	AbandonedAfter  time.Duration // pending older than this is abandoned
	IncompleteAfter time.Duration // paid but unbooked for longer than this
	ReminderLead    time.Duration // centre of the reminder window before the meeting
	ReminderWindow  time.Duration // full width of the reminder window

	SchedulerEnabled   bool
	AbandonedInterval  time.Duration
	IncompleteInterval time.Duration
	ReminderInterval   time.Duration
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	Database DatabaseConfig

	// Booking
	AppBaseURL      string          // public site used in emailed links
	ReferencePrefix string          // payment reference prefix, e.g. "CNS"
	Price           decimal.Decimal // consultation price in major units
	Currency        string          // ISO-4217
	BookingTokenTTL time.Duration

	// Providers
	Paystack PaystackConfig
	Calendly CalendlyConfig
	Notify   NotifyConfig

	// Reconciliation
	Sweeps SweepConfig

	// Shared secrets for machine callers
	CronSecret string
	AdminToken string

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Storage
		Database: DatabaseConfig{
			Driver:       strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:         getenv("DB_PATH", "booking.db"),
			URL:          getenv("DATABASE_URL", ""),
			MaxOpenConns: getint("DB_MAX_OPEN_CONNS", 10),
		},

		// Booking
		AppBaseURL:      strings.TrimRight(getenv("APP_BASE_URL", "http://localhost:3000"), "/"),
		ReferencePrefix: strings.ToUpper(getenv("REFERENCE_PREFIX", "CNS")),
		Currency:        strings.ToUpper(getenv("CONSULTATION_CURRENCY", "NGN")),
		BookingTokenTTL: getdur("BOOKING_TOKEN_TTL", 24*time.Hour),

		// Providers
		Paystack: PaystackConfig{
			SecretKey:   getenv("PAYSTACK_SECRET_KEY", ""),
			BaseURL:     strings.TrimRight(getenv("PAYSTACK_BASE_URL", "https://api.paystack.co"), "/"),
			CallbackURL: getenv("PAYSTACK_CALLBACK_URL", ""),
			Timeout:     getdur("PAYSTACK_TIMEOUT", 10*time.Second),
		},
		Calendly: CalendlyConfig{
			APIToken:           getenv("CALENDLY_API_TOKEN", ""),
			BaseURL:            strings.TrimRight(getenv("CALENDLY_BASE_URL", "https://api.calendly.com"), "/"),
			WebhookSigningKey:  getenv("CALENDLY_WEBHOOK_SIGNING_KEY", ""),
			SchedulingURL:      getenv("CALENDLY_SCHEDULING_URL", ""),
			Timeout:            getdur("CALENDLY_TIMEOUT", 10*time.Second),
			SignatureTolerance: getdur("CALENDLY_SIGNATURE_TOLERANCE", 5*time.Minute),
		},
		Notify: NotifyConfig{
			Backend:   strings.ToLower(getenv("NOTIFY_BACKEND", "log")),
			From:      getenv("NOTIFY_FROM", "no-reply@localhost"),
			TeamEmail: getenv("TEAM_EMAIL", ""),
			SMTP: SMTPConfig{
				Host:     getenv("SMTP_HOST", ""),
				Port:     getint("SMTP_PORT", 587),
				User:     getenv("SMTP_USER", ""),
				Password: getenv("SMTP_PASSWORD", ""),
				Timeout:  getdur("SMTP_TIMEOUT", 15*time.Second),
			},
			AMQP: AMQPConfig{
				URL:            getenv("AMQP_URL", ""),
				Exchange:       getenv("AMQP_EXCHANGE", "booking.notifications"),
				ConfirmTimeout: getdur("AMQP_CONFIRM_TIMEOUT", 5*time.Second),
			},
		},

		// Reconciliation
		Sweeps: SweepConfig{
			BatchSize:          getint("SWEEP_BATCH_SIZE", 100),
			AbandonedAfter:     getdur("SWEEP_ABANDONED_AFTER", 24*time.Hour),
			IncompleteAfter:    getdur("SWEEP_INCOMPLETE_AFTER", 3*time.Hour),
			ReminderLead:       getdur("SWEEP_REMINDER_LEAD", 24*time.Hour),
			ReminderWindow:     getdur("SWEEP_REMINDER_WINDOW", 2*time.Hour),
			SchedulerEnabled:   getbool("SCHEDULER_ENABLED", false),
			AbandonedInterval:  getdur("SCHEDULER_ABANDONED_INTERVAL", time.Hour),
			IncompleteInterval: getdur("SCHEDULER_INCOMPLETE_INTERVAL", time.Hour),
			ReminderInterval:   getdur("SCHEDULER_REMINDER_INTERVAL", time.Hour),
		},

		CronSecret: getenv("CRON_SECRET", ""),
		AdminToken: getenv("ADMIN_TOKEN", ""),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "consult-booking"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.Database.Driver == "postgresql" || cfg.Database.Driver == "pg" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Paystack.CallbackURL == "" {
		cfg.Paystack.CallbackURL = cfg.AppBaseURL + "/payment/callback"
	}

	price, err := decimal.NewFromString(strings.TrimSpace(getenv("CONSULTATION_PRICE", "150.00")))
	if err != nil {
		return cfg, errors.New("CONSULTATION_PRICE must be a decimal amount")
	}
	cfg.Price = price

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.Database.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.Database.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.Database.URL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.Database.MaxOpenConns < 1 {
		return cfg, errors.New("DB_MAX_OPEN_CONNS must be >= 1")
	}
	if _, err := url.ParseRequestURI(cfg.AppBaseURL); err != nil {
		return cfg, errors.New("APP_BASE_URL must be an absolute URL")
	}
	if !cfg.Price.IsPositive() || !cfg.Price.Shift(2).IsInteger() {
		return cfg, errors.New("CONSULTATION_PRICE must be positive with at most two decimals")
	}
	if len(cfg.Currency) != 3 {
		return cfg, errors.New("CONSULTATION_CURRENCY must be an ISO-4217 code")
	}
	if cfg.BookingTokenTTL <= 0 {
		return cfg, errors.New("BOOKING_TOKEN_TTL must be > 0")
	}
	if cfg.Paystack.Timeout <= 0 || cfg.Calendly.Timeout <= 0 {
		return cfg, errors.New("provider timeouts must be positive durations")
	}
	if cfg.Calendly.SignatureTolerance < 0 {
		return cfg, errors.New("CALENDLY_SIGNATURE_TOLERANCE must be >= 0")
	}
	switch cfg.Notify.Backend {
	case "log":
	case "smtp":
		if strings.TrimSpace(cfg.Notify.SMTP.Host) == "" {
			return cfg, errors.New("SMTP_HOST is required when NOTIFY_BACKEND=smtp")
		}
		if cfg.Notify.SMTP.Timeout <= 0 {
			return cfg, errors.New("SMTP_TIMEOUT must be > 0")
		}
	case "amqp":
		if strings.TrimSpace(cfg.Notify.AMQP.URL) == "" {
			return cfg, errors.New("AMQP_URL is required when NOTIFY_BACKEND=amqp")
		}
	default:
		return cfg, errors.New("NOTIFY_BACKEND must be one of: log, smtp, amqp")
	}
	if cfg.Sweeps.BatchSize < 1 {
		return cfg, errors.New("SWEEP_BATCH_SIZE must be >= 1")
	}
	if cfg.Sweeps.AbandonedAfter <= 0 || cfg.Sweeps.IncompleteAfter <= 0 || cfg.Sweeps.ReminderLead <= 0 || cfg.Sweeps.ReminderWindow <= 0 {
		return cfg, errors.New("sweep ages and windows must be positive durations")
	}
	if cfg.Sweeps.ReminderWindow >= 2*cfg.Sweeps.ReminderLead {
		return cfg, errors.New("SWEEP_REMINDER_WINDOW must be narrower than twice SWEEP_REMINDER_LEAD")
	}
	if cfg.Sweeps.SchedulerEnabled {
		if cfg.Sweeps.AbandonedInterval <= 0 || cfg.Sweeps.IncompleteInterval <= 0 || cfg.Sweeps.ReminderInterval <= 0 {
			return cfg, errors.New("scheduler intervals must be positive durations")
		}
		// A reminder run must land inside every window at least once.
		if cfg.Sweeps.ReminderInterval > cfg.Sweeps.ReminderWindow {
			return cfg, errors.New("SCHEDULER_REMINDER_INTERVAL must not exceed SWEEP_REMINDER_WINDOW")
		}
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// PriceMinorUnits returns the configured price in the currency's minor unit.
func (c Config) PriceMinorUnits() int64 {
	return c.Price.Shift(2).IntPart()
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
