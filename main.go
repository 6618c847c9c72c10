package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	database "github.com/ultraorca/ultraorca-api/app/db"
	appLogger "github.com/ultraorca/ultraorca-api/app/logger"
	"github.com/ultraorca/ultraorca-api/app/observability/metrics"
	"github.com/ultraorca/ultraorca-api/app/tracer"
	"github.com/ultraorca/ultraorca-api/config"
	"github.com/ultraorca/ultraorca-api/internal/api/auth"
	"github.com/ultraorca/ultraorca-api/internal/api/billing"
	"github.com/ultraorca/ultraorca-api/internal/api/budget"
	"github.com/ultraorca/ultraorca-api/internal/api/entitlement"
	"github.com/ultraorca/ultraorca-api/internal/api/product"
	"github.com/ultraorca/ultraorca-api/internal/api/profile"
	"github.com/ultraorca/ultraorca-api/internal/gateway/asaas"
	"github.com/ultraorca/ultraorca-api/internal/gateway/stripe"
	"github.com/ultraorca/ultraorca-api/internal/router"
)

func main() {
	// Use standard log until slog is configured, in case godotenv fails.
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found or error loading:", err)
	}

	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("FATAL: Error initializing config: %v", err)
	}

	logger := setupLogger(cfg.Mode)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Tracing, metrics providers and the /metrics listener.
	tracer.InitTracingAndMetrics(cfg.Handlers.Prometheus.Port)
	metrics.InitAppMetrics()

	// --- Database ---
	dbConfig, err := database.NewDatabaseConfig(&cfg, logger)
	if err != nil {
		logger.Error("Failed to generate database config", slog.Any("error", err))
		os.Exit(1)
	}

	if err := database.RunMigrations(dbConfig.ConnectionURL, logger); err != nil {
		logger.Error("Failed to run database migrations", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := database.Init(dbConfig.ConnectionURL, logger)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if !database.WaitForDB(ctx, pool, logger) {
		logger.Error("Database not ready after waiting, exiting.")
		os.Exit(1)
	}

	// --- Gateways ---
	stripeClient := stripe.NewClient(cfg.Stripe, logger)
	asaasClient := asaas.NewClient(cfg.Asaas, logger)

	// --- Repositories, services, handlers ---
	entitlementRepo := entitlement.NewPostgresEntitlementRepo(pool, logger)
	entitlementService := entitlement.NewEntitlementService(entitlementRepo, logger)

	authRepo := auth.NewPostgresAuthRepo(pool, logger)
	authService := auth.NewAuthService(authRepo, entitlementRepo, &cfg, logger)
	authHandler := auth.NewAuthHandler(authService, logger)

	profileRepo := profile.NewPostgresProfileRepo(pool, logger)
	profileService := profile.NewProfileService(profileRepo, logger)
	profileHandler := profile.NewHandlerImpl(profileService, logger)

	productRepo := product.NewPostgresProductRepo(pool, logger)
	productService := product.NewProductService(productRepo, logger)
	productHandler := product.NewHandlerImpl(productService, logger)

	budgetRepo := budget.NewPostgresBudgetRepo(pool, logger)
	budgetService := budget.NewBudgetService(budgetRepo, entitlementService, logger)
	budgetHandler := budget.NewBudgetHandler(budgetService, logger)

	billingRepo := billing.NewPostgresBillingRepo(pool, logger)
	billingService := billing.NewBillingService(billingRepo, stripeClient, asaasClient, cfg.Stripe, logger)
	billingHandler := billing.NewBillingHandler(billingService, entitlementService, logger)
	webhookHandler := billing.NewWebhookHandler(billingService, cfg.Stripe, cfg.Asaas, logger)

	mainRouter := router.SetupRouter(&router.Config{
		AuthHandler:            authHandler,
		ProfileHandler:         profileHandler,
		ProductHandler:         productHandler,
		BudgetHandler:          budgetHandler,
		BillingHandler:         billingHandler,
		WebhookHandler:         webhookHandler,
		AuthenticateMiddleware: auth.Authenticate(logger, cfg.JWT),
		RequireAdminMiddleware: auth.RequireRole(logger, "admin"),
	})

	r := chi.NewMux()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appLogger.StructuredLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(middleware.Timeout(cfg.Server.Timeout))
	r.Use(middleware.Compress(5, "application/json"))
	r.Mount("/", mainRouter)

	serverAddress := fmt.Sprintf(":%s", cfg.Server.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddress,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	go func() {
		logger.Info("Starting HTTP server", slog.String("address", serverAddress))
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server ListenAndServe error", slog.Any("error", err))
			cancel()
		}
	}()

	<-ctx.Done()

	logger.Info("Shutdown signal received, starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server graceful shutdown failed", slog.Any("error", err))
	} else {
		logger.Info("HTTP server gracefully stopped")
	}

	logger.Info("Application shut down complete.")
}

// setupLogger returns tinted logs in development and JSON elsewhere.
func setupLogger(mode string) *slog.Logger {
	if mode == "development" || mode == "" {
		tintOpts := &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.Kitchen,
			AddSource:  true,
		}
		return slog.New(tint.NewHandler(os.Stdout, tintOpts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
