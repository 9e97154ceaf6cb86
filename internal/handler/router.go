package handler

import (
	"net/http"
	"time"

	"github.com/prestadia/prestadia-api-go/internal/domain"
	"github.com/prestadia/prestadia-api-go/internal/infra/observability"
	"github.com/prestadia/prestadia-api-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(
	lendingSvc *service.LendingService,
	portfolioSvc *service.PortfolioService,
	reportSvc *service.ReportService,
	authSvc *service.AuthService,
	metrics *observability.Metrics,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(lendingSvc, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// Authentication (public)
		// =============================================
		r.Post("/auth/login", authLoginHandler(authSvc, logger))

		// Everything below requires an agent session.
		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(authSvc, logger))

			// =============================================
			// Agents
			// =============================================
			r.Get("/agents/{agentId}", getAgentHandler(lendingSvc, logger))
			r.Get("/agents/{agentId}/clients", listAgentClientsHandler(lendingSvc, logger))

			// =============================================
			// Clients
			// =============================================
			r.Post("/clients", createClientHandler(lendingSvc, logger))
			r.Get("/clients/{clientId}", getClientHandler(lendingSvc, logger))
			r.Put("/clients/{clientId}", updateClientHandler(lendingSvc, logger))
			r.Delete("/clients/{clientId}", deleteClientHandler(lendingSvc, logger))
			r.Get("/clients/{clientId}/loans", listClientLoansHandler(lendingSvc, logger))

			// =============================================
			// Loans
			// =============================================
			r.Post("/loans", createLoanHandler(lendingSvc, logger))
			r.Get("/loans/{loanId}", getLoanHandler(lendingSvc, logger))
			r.Post("/loans/{loanId}/payments", collectPaymentHandler(lendingSvc, logger))
			r.Delete("/loans/{loanId}/payments/last", undoPaymentHandler(lendingSvc, logger))
			r.Delete("/loans/{loanId}", deleteLoanHandler(lendingSvc, logger))

			// =============================================
			// Portfolio dashboards
			// =============================================
			r.Get("/portfolio/summary", portfolioSummaryHandler(portfolioSvc, logger))
			r.Get("/portfolio/leaderboard", leaderboardHandler(portfolioSvc, logger))
			r.Get("/portfolio/delinquency", delinquencyHandler(portfolioSvc, logger))

			// =============================================
			// Reports
			// =============================================
			r.Get("/reports/daily", dailyReportHandler(reportSvc, logger))

			// =============================================
			// Ops
			// =============================================
			r.Get("/metrics/ops", opsMetricsHandler(metrics, logger))

			// =============================================
			// Admin-only
			// =============================================
			r.Group(func(r chi.Router) {
				r.Use(AdminOnly(logger))
				r.Get("/agents", listAgentsHandler(lendingSvc, logger))
				r.Post("/agents", registerAgentHandler(authSvc, logger))
				r.Put("/agents/{agentId}", updateAgentHandler(lendingSvc, logger))
				r.Post("/agents/{agentId}/capital", adjustCapitalHandler(lendingSvc, logger))
				r.Post("/loans/{loanId}/force-paid", forcePaidHandler(lendingSvc, logger))
				r.Get("/portfolio/reconciliation", reconciliationHandler(portfolioSvc, logger))
			})
		})
	})

	return r
}

// ============================================================
// Probes
// ============================================================

func healthzHandler(lendingSvc *service.LendingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "prestadia-api", Status: "healthy", LatencyMs: 0, LastChecked: now},
		}

		if lendingSvc != nil {
			start := time.Now()
			_, err := lendingSvc.ListAgents(ctx)
			latency := time.Since(start).Milliseconds()
			status := "healthy"
			if err != nil {
				status = "degraded"
			}
			services = append(services, domain.ServiceHealth{
				Name: "supabase", Status: status, LatencyMs: latency, LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func opsMetricsHandler(metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetOpsSnapshot())
	}
}
