package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/prestadia/prestadia-api-go/internal/domain"
	"github.com/prestadia/prestadia-api-go/internal/port"
)

var authTracer = otel.Tracer("service/auth")

// SessionClaims are the JWT claims carried by an agent session token.
type SessionClaims struct {
	AgentName string `json:"agent_name"`
	IsAdmin   bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// AuthService authenticates agents by PIN and issues HS256 session tokens.
type AuthService struct {
	store     port.LendingStore
	jwtSecret []byte
	accessTTL time.Duration
	logger    *zap.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(store port.LendingStore, jwtSecret string, accessTTL time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		store:     store,
		jwtSecret: []byte(jwtSecret),
		accessTTL: accessTTL,
		logger:    logger,
	}
}

// Login verifies the agent's PIN and returns a signed session token. The
// agent can be addressed by ID or by name. Failed lookups and wrong PINs
// return the same unauthorized error so names cannot be probed.
func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Login")
	defer span.End()

	if req.PIN == "" {
		return nil, &domain.ErrValidation{Field: "pin", Message: "must not be empty"}
	}
	if req.AgentID == "" && req.Name == "" {
		return nil, &domain.ErrValidation{Field: "agent_id", Message: "agent_id or name required"}
	}

	var (
		agent *domain.Agent
		err   error
	)
	if req.AgentID != "" {
		agent, err = s.store.GetAgent(ctx, req.AgentID)
	} else {
		agent, err = s.store.GetAgentByName(ctx, req.Name)
	}
	if err != nil {
		s.logger.Warn("auth: agent lookup failed", zap.Error(err))
		return nil, &domain.ErrUnauthorized{Message: "invalid credentials"}
	}

	if agent.Status != "" && agent.Status != "active" {
		return nil, &domain.ErrUnauthorized{Message: "invalid credentials"}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(agent.PINHash), []byte(req.PIN)); err != nil {
		s.logger.Warn("auth: PIN mismatch", zap.String("agent_id", agent.ID))
		return nil, &domain.ErrUnauthorized{Message: "invalid credentials"}
	}

	token, err := s.signAccessToken(agent)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	s.logger.Info("auth: login", zap.String("agent_id", agent.ID), zap.Bool("is_admin", agent.IsAdmin))
	return &domain.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int(s.accessTTL.Seconds()),
		AgentID:     agent.ID,
		AgentName:   agent.Name,
		IsAdmin:     agent.IsAdmin,
	}, nil
}

func (s *AuthService) signAccessToken(agent *domain.Agent) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		AgentName: agent.Name,
		IsAdmin:   agent.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   agent.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			Issuer:    "prestadia-api",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateAccessToken parses and verifies a session token.
func (s *AuthService) ValidateAccessToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	return claims, nil
}

// RegisterAgent creates a new agent with a bcrypt-hashed PIN and seed
// capital. Admin-only; the handler enforces the guard.
func (s *AuthService) RegisterAgent(ctx context.Context, name, pin, color string, seedCapital float64, isAdmin bool) (*domain.Agent, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.RegisterAgent")
	defer span.End()

	if name == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "must not be empty"}
	}
	if len(pin) < 4 {
		return nil, &domain.ErrValidation{Field: "pin", Message: "must be at least 4 digits"}
	}
	if seedCapital < 0 {
		return nil, &domain.ErrValidation{Field: "seed_capital", Message: "must not be negative"}
	}

	if existing, err := s.store.GetAgentByName(ctx, name); err == nil && existing != nil {
		return nil, &domain.ErrConflict{Message: fmt.Sprintf("agent %q already exists", name)}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash pin: %w", err)
	}

	agent := &domain.Agent{
		ID:               uuid.NewString(),
		Name:             name,
		PINHash:          string(hash),
		Color:            color,
		AvailableCapital: seedCapital,
		IsAdmin:          isAdmin,
		Status:           "active",
		CreatedAt:        time.Now().UTC(),
	}

	created, err := s.store.CreateAgent(ctx, agent)
	if err != nil {
		return nil, err
	}
	created.PINHash = ""

	s.logger.Info("auth: agent registered",
		zap.String("agent_id", created.ID),
		zap.String("name", created.Name),
		zap.Bool("is_admin", created.IsAdmin),
	)
	return created, nil
}
