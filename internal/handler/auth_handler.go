package handler

import (
	"encoding/json"
	"net/http"

	"github.com/prestadia/prestadia-api-go/internal/domain"
	"github.com/prestadia/prestadia-api-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Authentication
// ============================================================

func authLoginHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/login")
		defer span.End()

		var req domain.LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		resp, err := authSvc.Login(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

type registerAgentRequest struct {
	Name        string  `json:"name"`
	PIN         string  `json:"pin"`
	Color       string  `json:"color"`
	SeedCapital float64 `json:"seed_capital"`
	IsAdmin     bool    `json:"is_admin"`
}

func registerAgentHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/agents")
		defer span.End()

		var req registerAgentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		agent, err := authSvc.RegisterAgent(ctx, req.Name, req.PIN, req.Color, req.SeedCapital, req.IsAdmin)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, agent)
	}
}
