package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/prestadia/prestadia-api-go/internal/domain"
)

// ============================================================
// LendingStore implementation — agents, clients, loans via PostgREST
// ============================================================

// --- Agents ---

func (c *Client) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListAgents")
	defer span.End()

	body, err := c.doGet(ctx, "agents?order=created_at.asc")
	if err != nil {
		return nil, err
	}

	var rows []domain.Agent
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode agents: %w", err)
	}
	return rows, nil
}

func (c *Client) GetAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetAgent")
	defer span.End()

	path := fmt.Sprintf("agents?id=eq.%s&limit=1", url.QueryEscape(agentID))
	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, err
	}

	var rows []domain.Agent
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode agent: %w", err)
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "agent", ID: agentID}
	}
	return &rows[0], nil
}

func (c *Client) GetAgentByName(ctx context.Context, name string) (*domain.Agent, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetAgentByName")
	defer span.End()

	path := fmt.Sprintf("agents?name=eq.%s&limit=1", url.QueryEscape(name))
	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, err
	}

	var rows []domain.Agent
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode agent by name: %w", err)
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "agent", ID: name}
	}
	return &rows[0], nil
}

func (c *Client) CreateAgent(ctx context.Context, agent *domain.Agent) (*domain.Agent, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateAgent")
	defer span.End()

	row := map[string]any{
		"id":                agent.ID,
		"name":              agent.Name,
		"pin_hash":          agent.PINHash,
		"color":             agent.Color,
		"available_capital": agent.AvailableCapital,
		"is_admin":          agent.IsAdmin,
		"status":            agent.Status,
		"created_at":        agent.CreatedAt.Format(time.RFC3339),
	}

	body, err := c.doPost(ctx, "agents", row)
	if err != nil {
		return nil, err
	}

	var results []domain.Agent
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("decode agent insert: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no result returned from agents insert")
	}
	return &results[0], nil
}

func (c *Client) UpdateAgent(ctx context.Context, agentID string, updates map[string]any) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateAgent")
	defer span.End()

	return c.doPatch(ctx, fmt.Sprintf("agents?id=eq.%s", url.QueryEscape(agentID)), updates)
}

// --- Clients ---

func (c *Client) ListClients(ctx context.Context) ([]domain.Client, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListClients")
	defer span.End()

	body, err := c.doGet(ctx, "clients?order=created_at.asc")
	if err != nil {
		return nil, err
	}

	var rows []domain.Client
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode clients: %w", err)
	}
	return rows, nil
}

func (c *Client) ListClientsByAgent(ctx context.Context, agentID string) ([]domain.Client, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListClientsByAgent")
	defer span.End()

	path := fmt.Sprintf("clients?agent_id=eq.%s&order=created_at.asc", url.QueryEscape(agentID))
	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, err
	}

	var rows []domain.Client
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode clients by agent: %w", err)
	}
	return rows, nil
}

func (c *Client) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetClient")
	defer span.End()

	path := fmt.Sprintf("clients?id=eq.%s&limit=1", url.QueryEscape(clientID))
	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, err
	}

	var rows []domain.Client
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode client: %w", err)
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "client", ID: clientID}
	}
	return &rows[0], nil
}

func (c *Client) CreateClient(ctx context.Context, client *domain.Client) (*domain.Client, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateClient")
	defer span.End()

	row := map[string]any{
		"id":         client.ID,
		"name":       client.Name,
		"id_number":  client.IDNumber,
		"phone":      client.Phone,
		"address":    client.Address,
		"agent_id":   client.AgentID,
		"status":     client.Status,
		"created_at": client.CreatedAt.Format(time.RFC3339),
	}

	body, err := c.doPost(ctx, "clients", row)
	if err != nil {
		return nil, err
	}

	var results []domain.Client
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("decode client insert: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no result returned from clients insert")
	}
	return &results[0], nil
}

func (c *Client) UpdateClient(ctx context.Context, clientID string, updates map[string]any) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateClient")
	defer span.End()

	return c.doPatch(ctx, fmt.Sprintf("clients?id=eq.%s", url.QueryEscape(clientID)), updates)
}

func (c *Client) DeleteClient(ctx context.Context, clientID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteClient")
	defer span.End()

	return c.doDelete(ctx, fmt.Sprintf("clients?id=eq.%s", url.QueryEscape(clientID)))
}

// --- Loans ---

func (c *Client) ListLoans(ctx context.Context) ([]domain.Loan, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListLoans")
	defer span.End()

	body, err := c.doGet(ctx, "loans?order=created_at.desc")
	if err != nil {
		return nil, err
	}

	var rows []domain.Loan
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode loans: %w", err)
	}
	return rows, nil
}

func (c *Client) ListLoansByClient(ctx context.Context, clientID string) ([]domain.Loan, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListLoansByClient")
	defer span.End()

	path := fmt.Sprintf("loans?client_id=eq.%s&order=created_at.desc", url.QueryEscape(clientID))
	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, err
	}

	var rows []domain.Loan
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode loans by client: %w", err)
	}
	return rows, nil
}

func (c *Client) ListLoansByAgent(ctx context.Context, agentID string) ([]domain.Loan, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListLoansByAgent")
	defer span.End()

	path := fmt.Sprintf("loans?agent_id=eq.%s&order=created_at.desc", url.QueryEscape(agentID))
	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, err
	}

	var rows []domain.Loan
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode loans by agent: %w", err)
	}
	return rows, nil
}

func (c *Client) GetLoan(ctx context.Context, loanID string) (*domain.Loan, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetLoan")
	defer span.End()

	path := fmt.Sprintf("loans?id=eq.%s&limit=1", url.QueryEscape(loanID))
	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, err
	}

	var rows []domain.Loan
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode loan: %w", err)
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "loan", ID: loanID}
	}
	return &rows[0], nil
}

func (c *Client) CreateLoan(ctx context.Context, loan *domain.Loan) (*domain.Loan, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateLoan")
	defer span.End()

	row := map[string]any{
		"id":                loan.ID,
		"client_id":         loan.ClientID,
		"agent_id":          loan.AgentID,
		"principal":         loan.Principal,
		"installments_paid": loan.InstallmentsPaid,
		"status":            loan.Status,
		"created_at":        loan.CreatedAt.Format(time.RFC3339),
	}
	if loan.TotalPayable != nil {
		row["total_payable"] = *loan.TotalPayable
	}
	if loan.DailyInstallment != nil {
		row["daily_installment"] = *loan.DailyInstallment
	}
	if loan.InterestAmount != nil {
		row["interest_amount"] = *loan.InterestAmount
	}

	body, err := c.doPost(ctx, "loans", row)
	if err != nil {
		return nil, err
	}

	var results []domain.Loan
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("decode loan insert: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no result returned from loans insert")
	}
	return &results[0], nil
}

func (c *Client) UpdateLoan(ctx context.Context, loanID string, updates map[string]any) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateLoan")
	defer span.End()

	return c.doPatch(ctx, fmt.Sprintf("loans?id=eq.%s", url.QueryEscape(loanID)), updates)
}

func (c *Client) HardDeleteLoan(ctx context.Context, loanID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.HardDeleteLoan")
	defer span.End()

	return c.doDelete(ctx, fmt.Sprintf("loans?id=eq.%s", url.QueryEscape(loanID)))
}
