// Package service provides the business logic layer (use cases).
// LendingService owns the loan lifecycle state machine and the agent/client
// registries; PortfolioService owns aggregation and reporting.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/prestadia/prestadia-api-go/internal/domain"
	"github.com/prestadia/prestadia-api-go/internal/infra/observability"
	"github.com/prestadia/prestadia-api-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var lendingTracer = otel.Tracer("service/lending")

// LendingService orchestrates loan lifecycle operations via the record store.
//
// Loan and agent-capital writes are two store calls; there is no cross-row
// transaction in PostgREST, so every paired mutation applies the loan side
// first and compensates it if the capital side fails. Aggregation never
// trusts intermediate state: it recomputes from full snapshots.
type LendingService struct {
	store   port.LendingStore
	terms   domain.Terms
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewLendingService creates a new lending service.
func NewLendingService(store port.LendingStore, terms domain.Terms, metrics *observability.Metrics, logger *zap.Logger) *LendingService {
	return &LendingService{store: store, terms: terms, metrics: metrics, logger: logger}
}

// Terms exposes the configured loan terms (read-only).
func (s *LendingService) Terms() domain.Terms { return s.terms }

// ============================================================
// Loan lifecycle
// ============================================================

// CreateLoan disburses a new loan to a client, funded by the client's agent.
// The derived figures are stored precomputed so legacy consumers reading the
// raw record see consistent numbers.
func (s *LendingService) CreateLoan(ctx context.Context, req *domain.CreateLoanRequest) (*domain.Loan, error) {
	ctx, span := lendingTracer.Start(ctx, "LendingService.CreateLoan")
	defer span.End()
	span.SetAttributes(attribute.String("client.id", req.ClientID), attribute.Float64("principal", req.Principal))

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("create_loan", time.Since(start)) }()

	if req.Principal <= 0 {
		return nil, &domain.ErrValidation{Field: "principal", Message: "must be positive"}
	}
	if req.ClientID == "" {
		return nil, &domain.ErrValidation{Field: "client_id", Message: "required"}
	}

	client, err := s.store.GetClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	// One active loan per client. The store does not enforce this.
	existing, err := s.store.ListLoansByClient(ctx, client.ID)
	if err != nil {
		return nil, err
	}
	for i := range existing {
		if existing[i].Status == domain.LoanActive {
			return nil, &domain.ErrConflict{
				Message: fmt.Sprintf("client %s already has an active loan (%s)", client.ID, existing[i].ID),
			}
		}
	}

	agent, err := s.store.GetAgent(ctx, client.AgentID)
	if err != nil {
		return nil, err
	}
	if agent.AvailableCapital < req.Principal {
		return nil, &domain.ErrInsufficientCapital{
			Available: agent.AvailableCapital,
			Required:  req.Principal,
		}
	}

	totalPayable := req.Principal * (1 + s.terms.InterestRate)
	daily := totalPayable / float64(s.terms.InstallmentCount)
	interest := req.Principal * s.terms.InterestRate

	loan := &domain.Loan{
		ID:               uuid.New().String(),
		ClientID:         client.ID,
		AgentID:          agent.ID,
		Principal:        req.Principal,
		TotalPayable:     &totalPayable,
		DailyInstallment: &daily,
		InterestAmount:   &interest,
		InstallmentsPaid: 0,
		Status:           domain.LoanActive,
		CreatedAt:        time.Now(),
	}

	created, err := s.store.CreateLoan(ctx, loan)
	if err != nil {
		s.metrics.IncrStoreError("loans")
		return nil, err
	}

	if err := s.adjustCapital(ctx, agent, -req.Principal); err != nil {
		// Compensate the half-applied create so loan ledger and capital
		// cannot diverge.
		if delErr := s.store.HardDeleteLoan(ctx, created.ID); delErr != nil {
			s.logger.Error("create loan: compensation failed, ledger and capital may diverge",
				zap.String("loan_id", created.ID),
				zap.String("agent_id", agent.ID),
				zap.Error(delErr),
			)
		}
		return nil, fmt.Errorf("debit agent capital: %w", err)
	}

	s.metrics.IncrLoanEvent("created")
	s.logger.Info("loan created",
		zap.String("loan_id", created.ID),
		zap.String("client_id", client.ID),
		zap.String("agent_id", agent.ID),
		zap.Float64("principal", req.Principal),
		zap.Float64("total_payable", totalPayable),
	)
	return created, nil
}

// CollectInstallment records one daily payment: installment count moves up
// by exactly one, the agent's capital is credited the daily quota, and the
// loan flips to paid when the final installment lands.
func (s *LendingService) CollectInstallment(ctx context.Context, loanID string) (*domain.Loan, error) {
	ctx, span := lendingTracer.Start(ctx, "LendingService.CollectInstallment")
	defer span.End()
	span.SetAttributes(attribute.String("loan.id", loanID))

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("collect_installment", time.Since(start)) }()

	loan, err := s.store.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != domain.LoanActive {
		return nil, &domain.ErrLoanState{LoanID: loanID, Status: loan.Status, Op: "collect installment"}
	}
	if loan.InstallmentsPaid >= s.terms.InstallmentCount {
		return nil, &domain.ErrLoanState{LoanID: loanID, Status: loan.Status, Op: "collect installment"}
	}

	now := time.Now()
	newPaid := loan.InstallmentsPaid + 1
	newStatus := domain.LoanActive
	if newPaid >= s.terms.InstallmentCount {
		newStatus = domain.LoanPaid
	}

	// The timestamp key is always present so a rollback clears it again on a
	// first collection (JSON null nulls the column).
	prev := map[string]any{
		"installments_paid": loan.InstallmentsPaid,
		"status":            loan.Status,
		"last_payment_at":   nil,
	}
	if loan.LastPaymentAt != nil {
		prev["last_payment_at"] = loan.LastPaymentAt.Format(time.RFC3339)
	}

	if err := s.store.UpdateLoan(ctx, loanID, map[string]any{
		"installments_paid": newPaid,
		"last_payment_at":   now.Format(time.RFC3339),
		"status":            newStatus,
	}); err != nil {
		s.metrics.IncrStoreError("loans")
		return nil, err
	}

	daily := s.terms.DailyInstallment(loan)
	agent, err := s.store.GetAgent(ctx, loan.AgentID)
	if err == nil {
		err = s.adjustCapital(ctx, agent, daily)
	}
	if err != nil {
		if rbErr := s.store.UpdateLoan(ctx, loanID, prev); rbErr != nil {
			s.logger.Error("collect: rollback failed, ledger and capital may diverge",
				zap.String("loan_id", loanID),
				zap.Error(rbErr),
			)
		}
		return nil, fmt.Errorf("credit agent capital: %w", err)
	}

	s.metrics.IncrLoanEvent("collected")
	s.metrics.AddCollectedAmount(loan.AgentID, daily)
	s.logger.Info("installment collected",
		zap.String("loan_id", loanID),
		zap.String("agent_id", loan.AgentID),
		zap.Int("installments_paid", newPaid),
		zap.String("status", newStatus),
		zap.Float64("amount", daily),
	)

	loan.InstallmentsPaid = newPaid
	loan.Status = newStatus
	loan.LastPaymentAt = &now
	return loan, nil
}

// UndoLastPayment reverses the most recent installment. The agent's capital
// is debited the reversed quota so the books stay balanced with collection.
func (s *LendingService) UndoLastPayment(ctx context.Context, loanID string) (*domain.Loan, error) {
	ctx, span := lendingTracer.Start(ctx, "LendingService.UndoLastPayment")
	defer span.End()
	span.SetAttributes(attribute.String("loan.id", loanID))

	loan, err := s.store.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status == domain.LoanDeleted {
		return nil, &domain.ErrLoanState{LoanID: loanID, Status: loan.Status, Op: "undo payment"}
	}
	if loan.InstallmentsPaid <= 0 {
		return nil, &domain.ErrLoanState{LoanID: loanID, Status: loan.Status, Op: "undo payment"}
	}

	newPaid := loan.InstallmentsPaid - 1
	prev := map[string]any{
		"installments_paid": loan.InstallmentsPaid,
		"status":            loan.Status,
	}

	if err := s.store.UpdateLoan(ctx, loanID, map[string]any{
		"installments_paid": newPaid,
		"status":            domain.LoanActive,
	}); err != nil {
		s.metrics.IncrStoreError("loans")
		return nil, err
	}

	daily := s.terms.DailyInstallment(loan)
	agent, err := s.store.GetAgent(ctx, loan.AgentID)
	if err == nil {
		err = s.adjustCapital(ctx, agent, -daily)
	}
	if err != nil {
		if rbErr := s.store.UpdateLoan(ctx, loanID, prev); rbErr != nil {
			s.logger.Error("undo: rollback failed, ledger and capital may diverge",
				zap.String("loan_id", loanID),
				zap.Error(rbErr),
			)
		}
		return nil, fmt.Errorf("debit agent capital: %w", err)
	}

	s.metrics.IncrLoanEvent("undone")
	s.logger.Info("last payment undone",
		zap.String("loan_id", loanID),
		zap.String("agent_id", loan.AgentID),
		zap.Int("installments_paid", newPaid),
	)

	loan.InstallmentsPaid = newPaid
	loan.Status = domain.LoanActive
	return loan, nil
}

// DeleteLoan voids a loan and returns its remaining balance to the agent's
// capital. Returning the remaining balance (not the full principal) avoids
// double-crediting the capital already recovered through installments.
func (s *LendingService) DeleteLoan(ctx context.Context, loanID string) error {
	ctx, span := lendingTracer.Start(ctx, "LendingService.DeleteLoan")
	defer span.End()
	span.SetAttributes(attribute.String("loan.id", loanID))

	loan, err := s.store.GetLoan(ctx, loanID)
	if err != nil {
		return err
	}
	if loan.Status == domain.LoanDeleted {
		return &domain.ErrLoanState{LoanID: loanID, Status: loan.Status, Op: "delete"}
	}

	refund := s.terms.RemainingBalance(loan)

	if err := s.store.UpdateLoan(ctx, loanID, map[string]any{
		"status": domain.LoanDeleted,
	}); err != nil {
		s.metrics.IncrStoreError("loans")
		return err
	}

	if refund > 0 {
		agent, err := s.store.GetAgent(ctx, loan.AgentID)
		if err == nil {
			err = s.adjustCapital(ctx, agent, refund)
		}
		if err != nil {
			if rbErr := s.store.UpdateLoan(ctx, loanID, map[string]any{"status": loan.Status}); rbErr != nil {
				s.logger.Error("delete: rollback failed, ledger and capital may diverge",
					zap.String("loan_id", loanID),
					zap.Error(rbErr),
				)
			}
			return fmt.Errorf("credit agent capital: %w", err)
		}
	}

	s.metrics.IncrLoanEvent("deleted")
	s.logger.Info("loan deleted",
		zap.String("loan_id", loanID),
		zap.String("agent_id", loan.AgentID),
		zap.Float64("refund", refund),
	)
	return nil
}

// ForceMarkPaid is an administrative data correction: the loan is closed as
// fully paid without any capital movement.
func (s *LendingService) ForceMarkPaid(ctx context.Context, loanID string) (*domain.Loan, error) {
	ctx, span := lendingTracer.Start(ctx, "LendingService.ForceMarkPaid")
	defer span.End()
	span.SetAttributes(attribute.String("loan.id", loanID))

	loan, err := s.store.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status == domain.LoanDeleted {
		return nil, &domain.ErrLoanState{LoanID: loanID, Status: loan.Status, Op: "force mark paid"}
	}

	if err := s.store.UpdateLoan(ctx, loanID, map[string]any{
		"installments_paid": s.terms.InstallmentCount,
		"status":            domain.LoanPaid,
	}); err != nil {
		s.metrics.IncrStoreError("loans")
		return nil, err
	}

	s.metrics.IncrLoanEvent("force_paid")
	s.logger.Warn("loan force-marked as paid",
		zap.String("loan_id", loanID),
		zap.Int("previous_installments", loan.InstallmentsPaid),
	)

	loan.InstallmentsPaid = s.terms.InstallmentCount
	loan.Status = domain.LoanPaid
	return loan, nil
}

// GetLoan returns a single loan.
func (s *LendingService) GetLoan(ctx context.Context, loanID string) (*domain.Loan, error) {
	ctx, span := lendingTracer.Start(ctx, "LendingService.GetLoan")
	defer span.End()

	return s.store.GetLoan(ctx, loanID)
}

// ListLoansByClient returns a client's loan history, newest first.
func (s *LendingService) ListLoansByClient(ctx context.Context, clientID string) ([]domain.Loan, error) {
	ctx, span := lendingTracer.Start(ctx, "LendingService.ListLoansByClient")
	defer span.End()

	return s.store.ListLoansByClient(ctx, clientID)
}

// adjustCapital applies a capital delta to an already-fetched agent record.
func (s *LendingService) adjustCapital(ctx context.Context, agent *domain.Agent, delta float64) error {
	if err := s.store.UpdateAgent(ctx, agent.ID, map[string]any{
		"available_capital": agent.AvailableCapital + delta,
	}); err != nil {
		s.metrics.IncrStoreError("agents")
		return err
	}
	return nil
}

// ============================================================
// Clients
// ============================================================

// CreateClient registers a client under an agent.
func (s *LendingService) CreateClient(ctx context.Context, client *domain.Client) (*domain.Client, error) {
	ctx, span := lendingTracer.Start(ctx, "LendingService.CreateClient")
	defer span.End()

	if client.Name == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "required"}
	}
	if client.AgentID == "" {
		return nil, &domain.ErrValidation{Field: "agent_id", Message: "required"}
	}
	if _, err := s.store.GetAgent(ctx, client.AgentID); err != nil {
		return nil, err
	}

	client.ID = uuid.New().String()
	client.Status = "active"
	client.CreatedAt = time.Now()

	return s.store.CreateClient(ctx, client)
}

// GetClient returns a single client.
func (s *LendingService) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	ctx, span := lendingTracer.Start(ctx, "LendingService.GetClient")
	defer span.End()

	return s.store.GetClient(ctx, clientID)
}

// ListClientsByAgent returns all clients owned by an agent.
func (s *LendingService) ListClientsByAgent(ctx context.Context, agentID string) ([]domain.Client, error) {
	ctx, span := lendingTracer.Start(ctx, "LendingService.ListClientsByAgent")
	defer span.End()

	return s.store.ListClientsByAgent(ctx, agentID)
}

// UpdateClient applies partial field updates to a client.
func (s *LendingService) UpdateClient(ctx context.Context, clientID string, updates map[string]any) error {
	ctx, span := lendingTracer.Start(ctx, "LendingService.UpdateClient")
	defer span.End()

	if _, err := s.store.GetClient(ctx, clientID); err != nil {
		return err
	}
	return s.store.UpdateClient(ctx, clientID, updates)
}

// DeleteClient removes a client. Refused while the client has an active
// loan; delete the loan first so the capital reversal is explicit.
func (s *LendingService) DeleteClient(ctx context.Context, clientID string) error {
	ctx, span := lendingTracer.Start(ctx, "LendingService.DeleteClient")
	defer span.End()

	loans, err := s.store.ListLoansByClient(ctx, clientID)
	if err != nil {
		return err
	}
	for i := range loans {
		if loans[i].Status == domain.LoanActive {
			return &domain.ErrConflict{
				Message: fmt.Sprintf("client %s has an active loan (%s)", clientID, loans[i].ID),
			}
		}
	}
	return s.store.DeleteClient(ctx, clientID)
}

// ============================================================
// Agents
// ============================================================

// ListAgents returns all agents.
func (s *LendingService) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	ctx, span := lendingTracer.Start(ctx, "LendingService.ListAgents")
	defer span.End()

	agents, err := s.store.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	for i := range agents {
		agents[i].PINHash = ""
	}
	return agents, nil
}

// GetAgent returns a single agent, with credentials stripped.
func (s *LendingService) GetAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	ctx, span := lendingTracer.Start(ctx, "LendingService.GetAgent")
	defer span.End()

	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	agent.PINHash = ""
	return agent, nil
}

// AdjustAgentCapital applies an administrative capital delta (top-up or
// correction). The resulting balance must not go negative.
func (s *LendingService) AdjustAgentCapital(ctx context.Context, agentID string, delta float64) (*domain.Agent, error) {
	ctx, span := lendingTracer.Start(ctx, "LendingService.AdjustAgentCapital")
	defer span.End()
	span.SetAttributes(attribute.String("agent.id", agentID), attribute.Float64("delta", delta))

	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	newCapital := agent.AvailableCapital + delta
	if newCapital < 0 {
		return nil, &domain.ErrValidation{
			Field:   "delta",
			Message: fmt.Sprintf("would leave capital negative (%.2f)", newCapital),
		}
	}

	if err := s.store.UpdateAgent(ctx, agentID, map[string]any{"available_capital": newCapital}); err != nil {
		s.metrics.IncrStoreError("agents")
		return nil, err
	}

	s.logger.Info("agent capital adjusted",
		zap.String("agent_id", agentID),
		zap.Float64("delta", delta),
		zap.Float64("new_capital", newCapital),
	)

	agent.AvailableCapital = newCapital
	agent.PINHash = ""
	return agent, nil
}

// UpdateAgentProfile applies partial profile updates (name, color, status).
// Setting status to "inactive" deactivates the agent: login is refused but
// the agent's book stays intact and keeps counting in the portfolio.
func (s *LendingService) UpdateAgentProfile(ctx context.Context, agentID string, updates map[string]any) error {
	ctx, span := lendingTracer.Start(ctx, "LendingService.UpdateAgentProfile")
	defer span.End()
	span.SetAttributes(attribute.String("agent.id", agentID))

	if status, ok := updates["status"].(string); ok {
		if status != "active" && status != "inactive" {
			return &domain.ErrValidation{Field: "status", Message: "must be active or inactive"}
		}
	}

	if _, err := s.store.GetAgent(ctx, agentID); err != nil {
		return err
	}
	return s.store.UpdateAgent(ctx, agentID, updates)
}
