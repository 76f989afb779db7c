package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DukeRupert/tradeflow/internal"
	"github.com/DukeRupert/tradeflow/internal/ai"
	"github.com/DukeRupert/tradeflow/internal/ai/anthropic"
	"github.com/DukeRupert/tradeflow/internal/ai/mock"
	"github.com/DukeRupert/tradeflow/internal/auth"
	"github.com/DukeRupert/tradeflow/internal/billing"
	"github.com/DukeRupert/tradeflow/internal/handler"
	"github.com/DukeRupert/tradeflow/internal/metrics"
	"github.com/DukeRupert/tradeflow/internal/middleware"
	"github.com/DukeRupert/tradeflow/internal/repository"
	"github.com/DukeRupert/tradeflow/internal/service"
	"github.com/DukeRupert/tradeflow/internal/storage"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(ctx, db, logger); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	store := repository.NewStore(db)

	archive, err := newArchive(cfg, logger)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}

	analyzer, err := newAnalyzer(cfg, logger)
	if err != nil {
		return fmt.Errorf("AI provider initialization failed: %w", err)
	}

	providers, err := newBillingRegistry(cfg, logger)
	if err != nil {
		return fmt.Errorf("billing initialization failed: %w", err)
	}
	logger.Info("Billing providers enabled", "webhooks", providers.WebhookNames())

	// Initialize services
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
	userService := service.NewUserService(store, tokens, logger)
	ledger := service.NewLedger(store, logger)
	gate := service.NewUsageGate(ledger, logger)
	recorder := service.NewAnalysisRecorder(store, archive, logger)
	analysisService := service.NewAnalysisService(
		gate,
		recorder,
		analyzer,
		service.NewChartNormalizer(cfg.ChartMaxDimension, cfg.ChartMaxPixels),
		archive,
		logger,
	)
	reconciler := service.NewReconciler(ledger, logger)

	// Initialize middleware
	isSecure := !cfg.IsDevelopment()
	authMw := middleware.NewAuthMiddleware(tokens, userService, logger)
	authLimiter := middleware.NewAuthRateLimiter(logger)
	defer authLimiter.Close()
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure)
	metricsAuth := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)

	guards := handler.Guards{
		RequireUser:   authMw.RequireUser,
		LimitLogin:    authLimiter.LimitLogin,
		LimitRegister: authLimiter.LimitRegister,
	}

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			logger.Error("health check failed", "error", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("GET /{$}", handler.StatusBanner)

	if metricsAuth.Enabled() {
		mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))
	} else {
		logger.Warn("Metrics endpoint is unprotected, set METRICS_USERNAME and METRICS_PASSWORD")
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	handler.NewAuthHandler(userService, logger).RegisterRoutes(mux, guards)
	handler.NewAccountHandler(userService, ledger, recorder, logger).RegisterRoutes(mux, guards, cfg.DebugEndpointsEnabled)
	handler.NewAnalysisHandler(analysisService, recorder, archive, cfg.MaxUploadBytes, logger).RegisterRoutes(mux, guards)
	handler.NewBillingHandler(providers, cfg.BaseURL, logger).RegisterRoutes(mux, guards)
	handler.NewWebhookHandler(providers, reconciler, logger).RegisterRoutes(mux)
	if cfg.StorageProvider == storage.ProviderLocal {
		handler.NewChartFileHandler(archive, logger).RegisterRoutes(mux, guards)
	}

	if cfg.DebugEndpointsEnabled {
		logger.Warn("Debug endpoints enabled, plans can be changed without payment")
	}

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           middleware.Stack(loggingMw.Handler, securityMw.Handler, metrics.Middleware)(mux),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.AIRequestTimeout*time.Duration(cfg.AIMaxRetries+1) + 30*time.Second,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

// newArchive returns the chart archive, or nil when archiving is off.
func newArchive(cfg *internal.Config, logger *slog.Logger) (storage.Storage, error) {
	switch cfg.StorageProvider {
	case storage.ProviderR2:
		s, err := storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		}, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Chart archive ready", "provider", "r2", "bucket", cfg.R2BucketName)
		return s, nil
	case storage.ProviderLocal:
		s, err := storage.NewLocalStorage(storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
			BaseURL:  cfg.LocalStorageURL,
		}, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Chart archive ready", "provider", "local", "path", cfg.LocalStoragePath)
		return s, nil
	default:
		logger.Info("Chart archiving disabled")
		return nil, nil
	}
}

func newAnalyzer(cfg *internal.Config, logger *slog.Logger) (ai.ChartAnalyzer, error) {
	if cfg.AIProvider != "anthropic" {
		logger.Warn("Using mock chart analyzer")
		return mock.New(logger), nil
	}
	p, err := anthropic.New(anthropic.Config{
		APIKey: cfg.AnthropicAPIKey,
		Model:  cfg.AnthropicModel,
		ProviderConfig: ai.ProviderConfig{
			MaxRetries:     cfg.AIMaxRetries,
			RetryBaseDelay: cfg.AIRetryBaseDelay,
			RequestTimeout: cfg.AIRequestTimeout,
		},
	}, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Chart analyzer ready", "provider", "anthropic", "model", cfg.AnthropicModel)
	return p, nil
}

// newBillingRegistry enables Lemon Squeezy always and Stripe and Paddle
// when they have credentials.
func newBillingRegistry(cfg *internal.Config, logger *slog.Logger) (*billing.Registry, error) {
	registry := billing.NewRegistry()

	ls := billing.NewLemonSqueezy(billing.LemonSqueezyConfig{
		APIKey:        cfg.LemonSqueezyAPIKey,
		StoreID:       cfg.LemonSqueezyStoreID,
		WebhookSecret: cfg.LemonSqueezyWebhookSecret,
		AllowUnsigned: cfg.WebhookAllowUnsigned,
		Variants: billing.PlanCatalog{
			Pro:     cfg.LemonSqueezyProVariantID,
			Premium: cfg.LemonSqueezyPremiumVariantID,
		},
	}, logger)
	registry.RegisterWebhook(ls)
	registry.RegisterCheckout(ls)
	if !ls.SignatureRequired() {
		logger.Warn("Accepting unsigned Lemon Squeezy webhooks, set LEMON_SQUEEZY_WEBHOOK_SECRET")
	}

	if cfg.StripeSecretKey != "" || cfg.StripeWebhookSecret != "" {
		st := billing.NewStripe(billing.StripeConfig{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			Prices: billing.PlanCatalog{
				Pro:     cfg.StripeProPriceID,
				Premium: cfg.StripePremiumPriceID,
			},
		}, logger)
		registry.RegisterWebhook(st)
		registry.RegisterCheckout(st)
	}

	if cfg.PaddleAPIKey != "" || cfg.PaddleWebhookSecret != "" {
		pd, err := billing.NewPaddle(billing.PaddleConfig{
			APIKey:        cfg.PaddleAPIKey,
			WebhookSecret: cfg.PaddleWebhookSecret,
			Environment:   cfg.PaddleEnvironment,
			Prices: billing.PlanCatalog{
				Pro:     cfg.PaddleProPriceID,
				Premium: cfg.PaddlePremiumPriceID,
			},
		}, logger)
		if err != nil {
			return nil, err
		}
		registry.RegisterWebhook(pd)
		registry.RegisterCheckout(pd)
	}

	return registry, nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
