package handler

import (
	"encoding/json"
	"net/http"

	"github.com/prestadia/prestadia-api-go/internal/domain"
	"github.com/prestadia/prestadia-api-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Agents
// ============================================================

func listAgentsHandler(svc *service.LendingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/agents")
		defer span.End()

		agents, err := svc.ListAgents(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, agents)
	}
}

func getAgentHandler(svc *service.LendingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/agents/{agentId}")
		defer span.End()

		agentID := chi.URLParam(r, "agentId")
		if !canAccessAgent(ctx, agentID) {
			handleServiceError(w, &domain.ErrForbidden{Action: "read another agent's record"}, logger)
			return
		}

		agent, err := svc.GetAgent(ctx, agentID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, agent)
	}
}

type capitalAdjustRequest struct {
	Delta float64 `json:"delta"`
}

func adjustCapitalHandler(svc *service.LendingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/agents/{agentId}/capital")
		defer span.End()

		agentID := chi.URLParam(r, "agentId")

		var req capitalAdjustRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Delta == 0 {
			writeError(w, http.StatusBadRequest, "delta must be non-zero")
			return
		}

		agent, err := svc.AdjustAgentCapital(ctx, agentID, req.Delta)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, agent)
	}
}

type updateAgentRequest struct {
	Name   *string `json:"name,omitempty"`
	Color  *string `json:"color,omitempty"`
	Status *string `json:"status,omitempty"`
}

func updateAgentHandler(svc *service.LendingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/agents/{agentId}")
		defer span.End()

		agentID := chi.URLParam(r, "agentId")

		var req updateAgentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		updates := map[string]any{}
		if req.Name != nil {
			updates["name"] = *req.Name
		}
		if req.Color != nil {
			updates["color"] = *req.Color
		}
		if req.Status != nil {
			updates["status"] = *req.Status
		}
		if len(updates) == 0 {
			writeError(w, http.StatusBadRequest, "no fields to update")
			return
		}

		if err := svc.UpdateAgentProfile(ctx, agentID, updates); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "agent updated"})
	}
}

func listAgentClientsHandler(svc *service.LendingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/agents/{agentId}/clients")
		defer span.End()

		agentID := chi.URLParam(r, "agentId")
		if !canAccessAgent(ctx, agentID) {
			handleServiceError(w, &domain.ErrForbidden{Action: "read another agent's clients"}, logger)
			return
		}

		clients, err := svc.ListClientsByAgent(ctx, agentID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, clients)
	}
}
