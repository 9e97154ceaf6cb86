package handler

import (
	"net/http"

	"github.com/prestadia/prestadia-api-go/internal/domain"
	"github.com/prestadia/prestadia-api-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Portfolio dashboards
// ============================================================

func portfolioSummaryHandler(svc *service.PortfolioService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/portfolio/summary")
		defer span.End()

		agentID := r.URL.Query().Get("agentId")
		if agentID == "" && !IsAdminFromContext(ctx) {
			// Non-admin sessions see their own book by default.
			agentID = AgentIDFromContext(ctx)
		}
		if agentID != "" && !canAccessAgent(ctx, agentID) {
			handleServiceError(w, &domain.ErrForbidden{Action: "read another agent's summary"}, logger)
			return
		}

		if agentID != "" {
			summary, err := svc.AgentSummary(ctx, agentID)
			if err != nil {
				handleServiceError(w, err, logger)
				return
			}
			writeJSON(w, http.StatusOK, summary)
			return
		}

		summary, err := svc.Summary(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func leaderboardHandler(svc *service.PortfolioService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/portfolio/leaderboard")
		defer span.End()

		board, err := svc.Leaderboard(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, board)
	}
}

func delinquencyHandler(svc *service.PortfolioService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/portfolio/delinquency")
		defer span.End()

		agentID := r.URL.Query().Get("agentId")
		if agentID == "" && !IsAdminFromContext(ctx) {
			agentID = AgentIDFromContext(ctx)
		}
		if agentID != "" && !canAccessAgent(ctx, agentID) {
			handleServiceError(w, &domain.ErrForbidden{Action: "read another agent's delinquency"}, logger)
			return
		}

		report, err := svc.Delinquency(ctx, agentID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, report)
	}
}

func reconciliationHandler(svc *service.PortfolioService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/portfolio/reconciliation")
		defer span.End()

		report, err := svc.Reconciliation(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, report)
	}
}
