package handler

import (
	"net/http"

	"github.com/prestadia/prestadia-api-go/internal/domain"
	"github.com/prestadia/prestadia-api-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Reports
// ============================================================

func dailyReportHandler(svc *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/reports/daily")
		defer span.End()

		agentID := r.URL.Query().Get("agentId")
		if agentID == "" && !IsAdminFromContext(ctx) {
			// Non-admin sessions report on their own book by default.
			agentID = AgentIDFromContext(ctx)
		}
		if agentID != "" && !canAccessAgent(ctx, agentID) {
			handleServiceError(w, &domain.ErrForbidden{Action: "read another agent's report"}, logger)
			return
		}

		report, err := svc.Daily(ctx, r.URL.Query().Get("date"), agentID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, report)
	}
}
