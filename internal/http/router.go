// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, idempotency, and rate limiting.
//
// Route groups under the API base path:
//   - public customer routes: rate limited, no-store
//   - provider webhooks: signature-verified in the handler, never limited
//   - cron triggers: bearer CRON_SECRET
//   - admin: bearer ADMIN_TOKEN
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/consult-booking/internal/config"
	"github.com/tbourn/consult-booking/internal/docs"
	"github.com/tbourn/consult-booking/internal/http/handlers"
	"github.com/tbourn/consult-booking/internal/http/middleware"
	"github.com/tbourn/consult-booking/internal/integrations/calendly"
	"github.com/tbourn/consult-booking/internal/integrations/paystack"
	"github.com/tbourn/consult-booking/internal/repo"
	"github.com/tbourn/consult-booking/internal/services"
)

// checkoutScope is the idempotency scope of POST /sessions.
const checkoutScope = "checkout"

// idempotencyShim adapts the repository free functions to
// handlers.IdempotencyStore.
type idempotencyShim struct {
	db  *gorm.DB
	ttl time.Duration
}

// Lookup proxies repo.GetIdempotency.
func (s idempotencyShim) Lookup(ctx context.Context, scope, key string) (string, bool, error) {
	rec, err := repo.GetIdempotency(ctx, s.db, scope, key, time.Now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return rec.SessionID, true, nil
}

// Save proxies repo.CreateIdempotency. A concurrent duplicate is not an
// error: the first writer's record stands.
func (s idempotencyShim) Save(ctx context.Context, scope, key, sessionID string, status int) error {
	_, err := repo.CreateIdempotency(ctx, s.db, scope, key, sessionID, status, s.ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII and secret scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter (webhook bodies are read raw under this cap)
//  6. Metrics
//  7. Gzip (except /metrics)
//  8. CORS and Security headers
//
// Idempotency and rate limiting are scoped to the public group.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, svc *services.Set, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{paystack.SignatureHeader, calendly.SignatureHeader},
		MaskQuery:   []string{"reference", "sessionId"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	// promhttp negotiates gzip itself; scrapes are served uncompressed.
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		DisableCompression: true,
	})))

	// 7) Response compression
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// 8) CORS posture and security headers
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	idem := idempotencyShim{db: db, ttl: cfg.IdempotencyTTL}
	h := handlers.New(handlers.Services{
		Payments:    svc.Payments,
		Tokens:      svc.Tokens,
		Calendar:    svc.Calendar,
		Sweeps:      svc.Sweeps,
		Sessions:    svc.Sessions,
		Idempotency: idem,
	}, handlers.Options{
		PaystackSecret:     cfg.Paystack.SecretKey,
		CalendlySigningKey: cfg.Calendly.WebhookSigningKey,
		CalendlyTolerance:  cfg.Calendly.SignatureTolerance,
		SchedulingURL:      cfg.Calendly.SchedulingURL,
		Ping: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	})

	// Liveness/health
	r.GET("/health", h.Health)

	// API docs
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := groupWithPrefix(r, cfg.APIBasePath)

	// Customer-facing routes
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientIP())
	noStore := middleware.SecurityHeaders(middleware.SecurityOptions{NoStore: true})
	public := api.Group("",
		middleware.IdempotencyValidator(
			middleware.IdempotencyOptions{
				MaxLen: 200,
				Scope:  func(*gin.Context) string { return checkoutScope },
			},
			func(ctx context.Context, scope, key string, _ time.Time) (bool, error) {
				_, seen, err := idem.Lookup(ctx, scope, key)
				return seen, err
			},
		),
		rl.Handler(),
		noStore,
	)
	{
		public.POST("/sessions", h.CreateSession)
		public.GET("/payments/verify", h.VerifyPayment)
		public.GET("/booking/verify", h.VerifyBooking)
	}

	// Provider webhooks
	hooks := api.Group("/webhooks")
	{
		hooks.POST("/paystack", h.PaystackWebhook)
		hooks.POST("/calendly", h.CalendlyWebhook)
	}

	// Sweep triggers
	cron := api.Group("/cron", middleware.BearerAuth("cron", cfg.CronSecret))
	for path, name := range handlers.SweepRoutes {
		cron.POST("/"+path, h.RunSweep(name))
	}

	// Staff
	admin := api.Group("/admin", middleware.BearerAuth("admin", cfg.AdminToken), noStore)
	{
		admin.GET("/sessions", h.ListSessions)
		admin.GET("/sessions/:id", h.GetSession)
		admin.POST("/sessions/:id/booking-token", h.ReissueBookingToken)
	}
}

// corsMiddleware returns the CORS posture: allow all origins when none are
// configured, otherwise echo allowlisted origins.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", middleware.HeaderIdempotencyReplayed},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		base.AllowAllOrigins = true
		// Force ACAO: * even for requests without an Origin header.
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
