package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prestadia/prestadia-api-go/internal/config"
	"github.com/prestadia/prestadia-api-go/internal/domain"
	"github.com/prestadia/prestadia-api-go/internal/handler"
	"github.com/prestadia/prestadia-api-go/internal/infra/cache"
	"github.com/prestadia/prestadia-api-go/internal/infra/observability"
	"github.com/prestadia/prestadia-api-go/internal/infra/resilience"
	"github.com/prestadia/prestadia-api-go/internal/infra/supabase"
	"github.com/prestadia/prestadia-api-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Duration("watch_interval", cfg.WatchInterval),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Duration("jwt_access_ttl", cfg.JWTAccessTTL),
		zap.Float64("interest_rate", cfg.InterestRate),
		zap.Int("installment_count", cfg.InstallmentCount),
	)

	if cfg.SupabaseURL == "" {
		logger.Fatal("SUPABASE_URL is required")
	}

	// --- Loan terms ---
	terms := domain.Terms{
		InterestRate:     cfg.InterestRate,
		InstallmentCount: cfg.InstallmentCount,
		ReinvestShare:    cfg.ReinvestShare,
		AgentShare:       cfg.AgentShare,
		AdminShare:       cfg.AdminShare,
	}
	if err := terms.Validate(); err != nil {
		logger.Fatal("invalid loan terms", zap.Error(err))
	}

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "prestadia-api")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	summaryCache := cache.New[*domain.PortfolioSummary](cfg.CacheTTL)

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("supabase")

	// --- Record store ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	store := supabase.NewClient(
		httpClient,
		cfg.SupabaseURL,
		cfg.SupabaseAnonKey,
		cfg.SupabaseServiceKey,
		cb,
		resilienceCfg,
		logger,
	)

	// --- Services ---
	lendingSvc := service.NewLendingService(store, terms, metrics, logger)
	portfolioSvc := service.NewPortfolioService(store, terms, summaryCache, metrics, logger)
	reportSvc := service.NewReportService(store, terms, time.Local, logger)
	authSvc := service.NewAuthService(store, cfg.JWTSecret, cfg.JWTAccessTTL, logger)

	// --- Change watcher ---
	// Any movement in loans or agents drops the cached summary so dashboards
	// converge without waiting out the TTL.
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	watcher := supabase.NewPollWatcher(store, cfg.WatchInterval, logger)
	for _, collection := range []string{"loans", "agents"} {
		unsubscribe := watcher.Subscribe(watchCtx, collection, portfolioSvc.InvalidateCache)
		defer unsubscribe()
	}

	// --- Router ---
	router := handler.NewRouter(lendingSvc, portfolioSvc, reportSvc, authSvc, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stopWatch()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}
