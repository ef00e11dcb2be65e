package routes

import (
	"github.com/BradenHooton/autopay/internal/auth"
	"github.com/BradenHooton/autopay/internal/handlers"
	"github.com/BradenHooton/autopay/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// Handlers groups every HTTP handler the router mounts
type Handlers struct {
	Account *handlers.AccountHandler
	Payment *handlers.PaymentHandler
	Product *handlers.ProductHandler
	Mandate *handlers.MandateHandler
	Health  *handlers.HealthHandler
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	h Handlers,
	tokens auth.TokenValidator,
	authLimit middleware.RateLimitConfig,
	accountLimit middleware.RateLimitConfig,
) {
	router.Get("/health", h.Health.Health)

	// Public routes - credential guessing is rate limited per client IP
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(authLimit))
		r.Post("/auth/register", h.Account.Register)
		r.Post("/auth/login", h.Account.Login)
	})

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokens))
		r.Use(middleware.RateLimitByAccount(accountLimit))

		r.Post("/auth/forget-password", h.Account.ForgetPassword)
		r.Post("/auth/forget-pin", h.Account.ForgetPIN)
		r.Get("/auth/details", h.Account.Details)

		r.Post("/payment/initiate", h.Payment.Initiate)
		r.Get("/payment/logs/{userId}", h.Payment.Logs)

		r.Route("/products", func(r chi.Router) {
			r.Post("/", h.Product.Save)
			r.Get("/", h.Product.List)
			r.Get("/{id}", h.Product.Get)
			r.Post("/{id}/pay", h.Product.Pay)
		})

		r.Route("/mandate", func(r chi.Router) {
			r.Get("/", h.Mandate.List)
			r.Post("/create", h.Mandate.Create)
			r.Patch("/status/{mandateId}", h.Mandate.UpdateStatus)
			r.Get("/events/{mandateId}", h.Mandate.Events)
		})
	})
}
