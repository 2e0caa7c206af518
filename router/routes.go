package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mstgnz/academypay/handler"
	"github.com/mstgnz/academypay/infra/middle"
	"github.com/mstgnz/academypay/infra/response"
	v1 "github.com/mstgnz/academypay/router/v1"
)

const requestTimeout = 60 * time.Second

// Handlers are the HTTP handlers mounted by New
type Handlers struct {
	Payment *handler.PaymentHandler
	Webhook *handler.WebhookHandler
	Config  *handler.ConfigHandler
	Health  *handler.HealthHandler
}

// Options configures the middleware stack. WebhookRateLimit is the number of
// webhook requests a client IP may send per minute; zero disables the limit.
type Options struct {
	APIKey            string
	TrustProxy        bool
	CORSOrigins       []string
	WebhookAllowlists map[string][]string
	WebhookRateLimit  int
}

// New builds the application router
func New(h Handlers, opts Options) http.Handler {
	r := chi.NewRouter()

	if opts.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middle.RequestLogMiddleware())
	r.Use(middle.PanicRecoveryMiddleware())
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middle.SecurityHeadersMiddleware())
	r.Use(middle.RequestValidationMiddleware())

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", middle.TenantHeader, middle.RequestIDHeader, handler.IdempotencyKeyHeader},
		ExposedHeaders: []string{middle.RequestIDHeader},
		MaxAge:         300,
	}))

	if h.Health != nil {
		r.Get("/health", h.Health.CheckHealth)
	}

	// gateways authenticate with signatures, not the API key
	if h.Webhook != nil {
		var limiter *middle.RateLimiter
		if opts.WebhookRateLimit > 0 {
			limiter = middle.NewRateLimiter(opts.WebhookRateLimit, time.Minute)
		}
		r.With(
			middle.WebhookAllowlistMiddleware(opts.WebhookAllowlists),
			middle.RateLimitMiddleware(limiter),
		).Post("/webhooks/{gateway}", h.Webhook.HandleWebhook)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(middle.AuthMiddleware(opts.APIKey))
		v1.Routes(r, h.Payment, h.Config)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, "Not Found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
	})

	return r
}
