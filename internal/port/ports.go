// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/prestadia/prestadia-api-go/internal/domain"
)

// LendingStore is the record-store contract the core consumes. Implemented
// by the Supabase adapter (or any other persistence layer). It deliberately
// stays a thin get/create/update/delete surface; all business rules live in
// the service layer.
type LendingStore interface {
	// Agents
	ListAgents(ctx context.Context) ([]domain.Agent, error)
	GetAgent(ctx context.Context, agentID string) (*domain.Agent, error)
	GetAgentByName(ctx context.Context, name string) (*domain.Agent, error)
	CreateAgent(ctx context.Context, agent *domain.Agent) (*domain.Agent, error)
	UpdateAgent(ctx context.Context, agentID string, updates map[string]any) error

	// Clients
	ListClients(ctx context.Context) ([]domain.Client, error)
	ListClientsByAgent(ctx context.Context, agentID string) ([]domain.Client, error)
	GetClient(ctx context.Context, clientID string) (*domain.Client, error)
	CreateClient(ctx context.Context, client *domain.Client) (*domain.Client, error)
	UpdateClient(ctx context.Context, clientID string, updates map[string]any) error
	DeleteClient(ctx context.Context, clientID string) error

	// Loans
	ListLoans(ctx context.Context) ([]domain.Loan, error)
	ListLoansByClient(ctx context.Context, clientID string) ([]domain.Loan, error)
	ListLoansByAgent(ctx context.Context, agentID string) ([]domain.Loan, error)
	GetLoan(ctx context.Context, loanID string) (*domain.Loan, error)
	CreateLoan(ctx context.Context, loan *domain.Loan) (*domain.Loan, error)
	UpdateLoan(ctx context.Context, loanID string, updates map[string]any) error
	// HardDeleteLoan removes the record entirely. Only used to compensate a
	// half-applied create; lifecycle deletion is a status update.
	HardDeleteLoan(ctx context.Context, loanID string) error
}

// Watcher pushes change notifications for a collection. The callback must
// be safe to invoke on every notification; consumers recompute from a full
// snapshot rather than applying increments.
type Watcher interface {
	Subscribe(ctx context.Context, collection string, onChange func()) (unsubscribe func())
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
