package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/ultraorca/ultraorca-api/internal/api/auth"
	"github.com/ultraorca/ultraorca-api/internal/api/billing"
	"github.com/ultraorca/ultraorca-api/internal/api/budget"
	"github.com/ultraorca/ultraorca-api/internal/api/product"
	"github.com/ultraorca/ultraorca-api/internal/api/profile"
)

// Config carries the handlers and middleware the router wires together.
type Config struct {
	AuthHandler    *auth.AuthHandler
	ProfileHandler *profile.HandlerImpl
	ProductHandler *product.HandlerImpl
	BudgetHandler  *budget.BudgetHandler
	BillingHandler *billing.BillingHandler
	WebhookHandler *billing.WebhookHandler

	AuthenticateMiddleware func(http.Handler) http.Handler
	RequireAdminMiddleware func(http.Handler) http.Handler
}

// SetupRouter wires the full HTTP surface. Server-wide middleware (request id,
// recoverer, structured logging) is applied in main.go before mounting.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000", "https://app.ultraorca.com.br"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})

	// Gateway notification sinks live outside the JWT group; each endpoint
	// authenticates its own provider's way.
	r.Post("/webhooks/stripe", cfg.WebhookHandler.StripeWebhook)
	r.Post("/webhooks/asaas", cfg.WebhookHandler.AsaasWebhook)

	// Paths from the serverless era, kept so deployed clients and gateway
	// configurations keep working.
	r.Post("/webhook-stripe", cfg.WebhookHandler.StripeWebhook)
	r.Post("/webhook-asaas", cfg.WebhookHandler.AsaasWebhook)
	r.Post("/webhook", cfg.WebhookHandler.AsaasWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		// Public auth routes.
		r.Group(func(r chi.Router) {
			r.Post("/auth/register", cfg.AuthHandler.Register)
			r.Post("/auth/login", cfg.AuthHandler.Login)
			r.Post("/auth/refresh", cfg.AuthHandler.RefreshSession)
		})

		// Everything below requires a valid access token.
		r.Group(func(r chi.Router) {
			r.Use(cfg.AuthenticateMiddleware)

			r.Post("/auth/logout", cfg.AuthHandler.Logout)

			r.Get("/profile", cfg.ProfileHandler.GetProfile)
			r.Put("/profile", cfg.ProfileHandler.UpdateProfile)

			r.Get("/products", cfg.ProductHandler.ListProducts)
			r.Post("/products", cfg.ProductHandler.CreateProduct)
			r.Put("/products/{id}", cfg.ProductHandler.UpdateProduct)
			r.Delete("/products/{id}", cfg.ProductHandler.DeleteProduct)

			r.Post("/budgets", cfg.BudgetHandler.CreateBudget)
			r.Get("/budgets", cfg.BudgetHandler.ListBudgets)
			r.Get("/budgets/{id}", cfg.BudgetHandler.GetBudget)
			r.Put("/budgets/{id}", cfg.BudgetHandler.UpdateBudget)
			r.Delete("/budgets/{id}", cfg.BudgetHandler.DeleteBudget)

			r.Post("/billing/checkout/stripe", cfg.BillingHandler.StripeCheckout)
			r.Post("/billing/checkout/asaas", cfg.BillingHandler.AsaasCheckout)
			r.Post("/billing/payment", cfg.BillingHandler.CreatePayment)
			r.Post("/billing/cancel", cfg.BillingHandler.CancelSubscription)
			r.Get("/billing/subscription", cfg.BillingHandler.GetSubscription)
			r.Get("/billing/entitlement", cfg.BillingHandler.GetEntitlement)
		})

		// Admin routes check the role claim server-side.
		r.Group(func(r chi.Router) {
			r.Use(cfg.AuthenticateMiddleware)
			r.Use(cfg.RequireAdminMiddleware)

			r.Get("/admin/subscriptions/{userID}", cfg.BillingHandler.AdminGetSubscription)
		})
	})

	// Serverless-era aliases for the billing endpoints, authenticated like
	// their /api/v1 counterparts.
	r.Group(func(r chi.Router) {
		r.Use(cfg.AuthenticateMiddleware)

		r.Post("/checkout-stripe", cfg.BillingHandler.StripeCheckout)
		r.Post("/checkout-asaas", cfg.BillingHandler.AsaasCheckout)
		r.Post("/create-payment", cfg.BillingHandler.CreatePayment)
		r.Post("/cancel-subscription", cfg.BillingHandler.CancelSubscription)
	})

	return r
}
