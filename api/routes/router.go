package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cactilia/cactilia-backend/api/controllers"
	checkoutcontrollers "github.com/cactilia/cactilia-backend/api/controllers/checkout"
	shippingcontrollers "github.com/cactilia/cactilia-backend/api/controllers/shipping"
	"github.com/cactilia/cactilia-backend/api/middleware"
	checkoutsvc "github.com/cactilia/cactilia-backend/internal/checkout"
	shippingsvc "github.com/cactilia/cactilia-backend/internal/shipping"
	"github.com/cactilia/cactilia-backend/pkg/config"
	"github.com/cactilia/cactilia-backend/pkg/logger"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	readyChecks []controllers.ReadyCheck,
	rateStore middleware.RateLimitStore,
	shippingService shippingsvc.Service,
	checkoutService checkoutsvc.Service,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	quotePolicy := middleware.NewRateLimitPolicy(
		"shipping_quote",
		cfg.Shipping.QuoteRateWindow,
		cfg.Shipping.QuoteRateLimit,
	)
	quoteLimit := middleware.RateLimit(quotePolicy, rateStore, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readyChecks...))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	currency := cfg.Shipping.Currency
	r.Route("/api/v1/shipping", func(r chi.Router) {
		r.Use(quoteLimit)
		r.Post("/quote", shippingcontrollers.Quote(shippingService, currency, logg))
		r.Post("/groups", shippingcontrollers.Groups(shippingService, currency, logg))
	})

	r.Route("/api/v1/checkout", func(r chi.Router) {
		r.With(quoteLimit).Post("/shipping", checkoutcontrollers.SelectShipping(checkoutService, logg))
		r.Get("/{sessionID}/shipping", checkoutcontrollers.GetShipping(checkoutService, logg))
	})

	return r
}
