package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prestadia/prestadia-api-go/internal/domain"
	"github.com/prestadia/prestadia-api-go/internal/infra/observability"
	"github.com/prestadia/prestadia-api-go/internal/service"

	"go.uber.org/zap"
)

// --- Fake store ---

// fakeStore is an in-memory LendingStore. Error fields inject failures per
// method so rollback paths can be exercised.
type fakeStore struct {
	agents  map[string]*domain.Agent
	clients map[string]*domain.Client
	loans   map[string]*domain.Loan

	updateAgentErr error
	updateLoanErr  error
	createLoanErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		agents:  map[string]*domain.Agent{},
		clients: map[string]*domain.Client{},
		loans:   map[string]*domain.Loan{},
	}
}

func (f *fakeStore) ListAgents(_ context.Context) ([]domain.Agent, error) {
	out := []domain.Agent{}
	for _, a := range f.agents {
		out = append(out, *a)
	}
	return out, nil
}

func (f *fakeStore) GetAgent(_ context.Context, id string) (*domain.Agent, error) {
	a, ok := f.agents[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "agent", ID: id}
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) GetAgentByName(_ context.Context, name string) (*domain.Agent, error) {
	for _, a := range f.agents {
		if a.Name == name {
			cp := *a
			return &cp, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "agent", ID: name}
}

func (f *fakeStore) CreateAgent(_ context.Context, agent *domain.Agent) (*domain.Agent, error) {
	cp := *agent
	f.agents[agent.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeStore) UpdateAgent(_ context.Context, id string, updates map[string]any) error {
	if f.updateAgentErr != nil {
		return f.updateAgentErr
	}
	a, ok := f.agents[id]
	if !ok {
		return &domain.ErrNotFound{Resource: "agent", ID: id}
	}
	if v, ok := updates["available_capital"].(float64); ok {
		a.AvailableCapital = v
	}
	return nil
}

func (f *fakeStore) ListClients(_ context.Context) ([]domain.Client, error) {
	out := []domain.Client{}
	for _, c := range f.clients {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeStore) ListClientsByAgent(_ context.Context, agentID string) ([]domain.Client, error) {
	out := []domain.Client{}
	for _, c := range f.clients {
		if c.AgentID == agentID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeStore) GetClient(_ context.Context, id string) (*domain.Client, error) {
	c, ok := f.clients[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "client", ID: id}
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) CreateClient(_ context.Context, client *domain.Client) (*domain.Client, error) {
	cp := *client
	f.clients[client.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeStore) UpdateClient(_ context.Context, id string, updates map[string]any) error {
	c, ok := f.clients[id]
	if !ok {
		return &domain.ErrNotFound{Resource: "client", ID: id}
	}
	if v, ok := updates["name"].(string); ok {
		c.Name = v
	}
	if v, ok := updates["status"].(string); ok {
		c.Status = v
	}
	return nil
}

func (f *fakeStore) DeleteClient(_ context.Context, id string) error {
	delete(f.clients, id)
	return nil
}

func (f *fakeStore) ListLoans(_ context.Context) ([]domain.Loan, error) {
	out := []domain.Loan{}
	for _, l := range f.loans {
		out = append(out, *l)
	}
	return out, nil
}

func (f *fakeStore) ListLoansByClient(_ context.Context, clientID string) ([]domain.Loan, error) {
	out := []domain.Loan{}
	for _, l := range f.loans {
		if l.ClientID == clientID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (f *fakeStore) ListLoansByAgent(_ context.Context, agentID string) ([]domain.Loan, error) {
	out := []domain.Loan{}
	for _, l := range f.loans {
		if l.AgentID == agentID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (f *fakeStore) GetLoan(_ context.Context, id string) (*domain.Loan, error) {
	l, ok := f.loans[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "loan", ID: id}
	}
	cp := *l
	return &cp, nil
}

func (f *fakeStore) CreateLoan(_ context.Context, loan *domain.Loan) (*domain.Loan, error) {
	if f.createLoanErr != nil {
		return nil, f.createLoanErr
	}
	cp := *loan
	f.loans[loan.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeStore) UpdateLoan(_ context.Context, id string, updates map[string]any) error {
	if f.updateLoanErr != nil {
		return f.updateLoanErr
	}
	l, ok := f.loans[id]
	if !ok {
		return &domain.ErrNotFound{Resource: "loan", ID: id}
	}
	if v, ok := updates["installments_paid"].(int); ok {
		l.InstallmentsPaid = v
	}
	if v, ok := updates["status"].(string); ok {
		l.Status = v
	}
	if v, ok := updates["last_payment_at"]; ok {
		switch ts := v.(type) {
		case string:
			if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
				l.LastPaymentAt = &parsed
			}
		case nil:
			l.LastPaymentAt = nil
		}
	}
	return nil
}

func (f *fakeStore) HardDeleteLoan(_ context.Context, id string) error {
	delete(f.loans, id)
	return nil
}

// --- Fixtures ---

func seededStore() *fakeStore {
	store := newFakeStore()
	store.agents["agent-1"] = &domain.Agent{
		ID:               "agent-1",
		Name:             "Maria",
		AvailableCapital: 20_000_000,
		Status:           "active",
		CreatedAt:        time.Now(),
	}
	store.clients["client-1"] = &domain.Client{
		ID:        "client-1",
		Name:      "Rosa Perez",
		AgentID:   "agent-1",
		Status:    "active",
		CreatedAt: time.Now(),
	}
	return store
}

func newLendingService(store *fakeStore) *service.LendingService {
	return service.NewLendingService(store, domain.DefaultTerms(), observability.NewMetrics(), zap.NewNop())
}

// --- Loan creation ---

func TestCreateLoan_DebitsAgentCapital(t *testing.T) {
	store := seededStore()
	svc := newLendingService(store)

	loan, err := svc.CreateLoan(context.Background(), &domain.CreateLoanRequest{
		ClientID:  "client-1",
		Principal: 500_000,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if loan.Status != domain.LoanActive {
		t.Errorf("expected active loan, got %s", loan.Status)
	}
	if loan.TotalPayable == nil || *loan.TotalPayable != 600_000 {
		t.Errorf("expected stored total payable 600000, got %v", loan.TotalPayable)
	}
	if loan.DailyInstallment == nil || *loan.DailyInstallment != 25_000 {
		t.Errorf("expected stored daily installment 25000, got %v", loan.DailyInstallment)
	}

	agent := store.agents["agent-1"]
	if agent.AvailableCapital != 19_500_000 {
		t.Errorf("expected agent capital 19500000, got %f", agent.AvailableCapital)
	}
}

func TestCreateLoan_InsufficientCapital(t *testing.T) {
	store := seededStore()
	store.agents["agent-1"].AvailableCapital = 100_000
	svc := newLendingService(store)

	_, err := svc.CreateLoan(context.Background(), &domain.CreateLoanRequest{
		ClientID:  "client-1",
		Principal: 500_000,
	})

	var insufficient *domain.ErrInsufficientCapital
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected ErrInsufficientCapital, got %v", err)
	}
	if len(store.loans) != 0 {
		t.Error("no loan should have been created")
	}
	if store.agents["agent-1"].AvailableCapital != 100_000 {
		t.Error("agent capital should be untouched")
	}
}

func TestCreateLoan_SecondActiveLoanRejected(t *testing.T) {
	store := seededStore()
	svc := newLendingService(store)

	if _, err := svc.CreateLoan(context.Background(), &domain.CreateLoanRequest{
		ClientID: "client-1", Principal: 100_000,
	}); err != nil {
		t.Fatalf("first loan: %v", err)
	}

	_, err := svc.CreateLoan(context.Background(), &domain.CreateLoanRequest{
		ClientID: "client-1", Principal: 100_000,
	})

	var conflict *domain.ErrConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCreateLoan_InvalidPrincipal(t *testing.T) {
	svc := newLendingService(seededStore())

	_, err := svc.CreateLoan(context.Background(), &domain.CreateLoanRequest{
		ClientID: "client-1", Principal: -100,
	})

	var validation *domain.ErrValidation
	if !errors.As(err, &validation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCreateLoan_CompensatesWhenDebitFails(t *testing.T) {
	store := seededStore()
	store.updateAgentErr = errors.New("supabase down")
	svc := newLendingService(store)

	_, err := svc.CreateLoan(context.Background(), &domain.CreateLoanRequest{
		ClientID: "client-1", Principal: 500_000,
	})
	if err == nil {
		t.Fatal("expected error when capital debit fails")
	}
	if len(store.loans) != 0 {
		t.Error("half-applied loan should have been compensated away")
	}
}

// --- Collection lifecycle ---

func TestCollectInstallment_FullCycle(t *testing.T) {
	store := seededStore()
	svc := newLendingService(store)

	loan, err := svc.CreateLoan(context.Background(), &domain.CreateLoanRequest{
		ClientID: "client-1", Principal: 240_000,
	})
	if err != nil {
		t.Fatalf("create loan: %v", err)
	}
	// Capital after disbursement: 20,000,000 - 240,000.
	capitalAfterCreate := store.agents["agent-1"].AvailableCapital

	terms := domain.DefaultTerms()
	for i := 1; i <= terms.InstallmentCount; i++ {
		updated, err := svc.CollectInstallment(context.Background(), loan.ID)
		if err != nil {
			t.Fatalf("collect %d: %v", i, err)
		}
		if updated.InstallmentsPaid != i {
			t.Fatalf("collect %d: expected %d paid, got %d", i, i, updated.InstallmentsPaid)
		}
		if i < terms.InstallmentCount && updated.Status != domain.LoanActive {
			t.Fatalf("collect %d: expected active, got %s", i, updated.Status)
		}
	}

	final := store.loans[loan.ID]
	if final.Status != domain.LoanPaid {
		t.Errorf("expected paid after final installment, got %s", final.Status)
	}
	if got := terms.RemainingBalance(final); got != 0 {
		t.Errorf("expected zero remaining balance, got %f", got)
	}

	// 24 x 12,000 = 288,000 credited back.
	wantCapital := capitalAfterCreate + 288_000
	if got := store.agents["agent-1"].AvailableCapital; got != wantCapital {
		t.Errorf("expected agent capital %f, got %f", wantCapital, got)
	}
}

func TestCollectInstallment_SetsLastPaymentTimestamp(t *testing.T) {
	store := seededStore()
	svc := newLendingService(store)

	loan, _ := svc.CreateLoan(context.Background(), &domain.CreateLoanRequest{
		ClientID: "client-1", Principal: 100_000,
	})

	updated, err := svc.CollectInstallment(context.Background(), loan.ID)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if updated.LastPaymentAt == nil {
		t.Fatal("expected last payment timestamp to be set")
	}
	if time.Since(*updated.LastPaymentAt) > time.Minute {
		t.Error("last payment timestamp should be recent")
	}
}

func TestCollectInstallment_OnPaidLoanRejected(t *testing.T) {
	store := seededStore()
	svc := newLendingService(store)

	loan, _ := svc.CreateLoan(context.Background(), &domain.CreateLoanRequest{
		ClientID: "client-1", Principal: 100_000,
	})
	store.loans[loan.ID].Status = domain.LoanPaid
	store.loans[loan.ID].InstallmentsPaid = 24

	_, err := svc.CollectInstallment(context.Background(), loan.ID)

	var state *domain.ErrLoanState
	if !errors.As(err, &state) {
		t.Fatalf("expected ErrLoanState, got %v", err)
	}
}

func TestCollectInstallment_OnDeletedLoanRejected(t *testing.T) {
	store := seededStore()
	svc := newLendingService(store)

	loan, _ := svc.CreateLoan(context.Background(), &domain.CreateLoanRequest{
		ClientID: "client-1", Principal: 100_000,
	})
	store.loans[loan.ID].Status = domain.LoanDeleted

	_, err := svc.CollectInstallment(context.Background(), loan.ID)

	var state *domain.ErrLoanState
	if !errors.As(err, &state) {
		t.Fatalf("expected ErrLoanState, got %v", err)
	}
}

func TestCollectInstallment_RollsBackWhenCreditFails(t *testing.T) {
	store := seededStore()
	svc := newLendingService(store)

	loan, _ := svc.CreateLoan(context.Background(), &domain.CreateLoanRequest{
		ClientID: "client-1", Principal: 240_000,
	})

	store.updateAgentErr = errors.New("supabase down")
	_, err := svc.CollectInstallment(context.Background(), loan.ID)
	if err == nil {
		t.Fatal("expected error when capital credit fails")
	}

	if got := store.loans[loan.ID].InstallmentsPaid; got != 0 {
		t.Errorf("expected installment count rolled back to 0, got %d", got)
	}
	if got := store.loans[loan.ID].Status; got != domain.LoanActive {
		t.Errorf("expected status rolled back to active, got %s", got)
	}
	// A failed first collection must not leave a payment stamp behind, or
	// the daily report would count it and the delinquency clock would reset.
	if store.loans[loan.ID].LastPaymentAt != nil {
		t.Error("expected last payment timestamp cleared by rollback")
	}
}

func TestCollectInstallment_RollbackRestoresPriorTimestamp(t *testing.T) {
	store := seededStore()
	svc := newLendingService(store)

	loan, _ := svc.CreateLoan(context.Background(), &domain.CreateLoanRequest{
		ClientID: "client-1", Principal: 240_000,
	})
	if _, err := svc.CollectInstallment(context.Background(), loan.ID); err != nil {
		t.Fatalf("collect: %v", err)
	}
	firstPaidAt := store.loans[loan.ID].LastPaymentAt
	if firstPaidAt == nil {
		t.Fatal("expected a payment timestamp after the first collection")
	}

	store.updateAgentErr = errors.New("supabase down")
	if _, err := svc.CollectInstallment(context.Background(), loan.ID); err == nil {
		t.Fatal("expected error when capital credit fails")
	}

	got := store.loans[loan.ID].LastPaymentAt
	if got == nil || !got.Truncate(time.Second).Equal(firstPaidAt.Truncate(time.Second)) {
		t.Errorf("expected timestamp restored to %v, got %v", firstPaidAt, got)
	}
}

// --- Undo ---

func TestUndoLastPayment_DebitsAgentCapital(t *testing.T) {
	store := seededStore()
	svc := newLendingService(store)

	loan, _ := svc.CreateLoan(context.Background(), &domain.CreateLoanRequest{
		ClientID: "client-1", Principal: 240_000,
	})
	if _, err := svc.CollectInstallment(context.Background(), loan.ID); err != nil {
		t.Fatalf("collect: %v", err)
	}
	capitalBefore := store.agents["agent-1"].AvailableCapital

	updated, err := svc.UndoLastPayment(context.Background(), loan.ID)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if updated.InstallmentsPaid != 0 {
		t.Errorf("expected 0 installments after undo, got %d", updated.InstallmentsPaid)
	}

	// Daily quota is 12,000; the undo takes it back out.
	if got := store.agents["agent-1"].AvailableCapital; got != capitalBefore-12_000 {
		t.Errorf("expected capital %f, got %f", capitalBefore-12_000, got)
	}
}

func TestUndoLastPayment_ReactivatesPaidLoan(t *testing.T) {
	store := seededStore()
	svc := newLendingService(store)

	loan, _ := svc.CreateLoan(context.Background(), &domain.CreateLoanRequest{
		ClientID: "client-1", Principal: 240_000,
	})
	store.loans[loan.ID].Status = domain.LoanPaid
	store.loans[loan.ID].InstallmentsPaid = 24

	updated, err := svc.UndoLastPayment(context.Background(), loan.ID)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if updated.Status != domain.LoanActive {
		t.Errorf("expected loan reactivated, got %s", updated.Status)
	}
	if updated.InstallmentsPaid != 23 {
		t.Errorf("expected 23 installments, got %d", updated.InstallmentsPaid)
	}
}

func TestUndoLastPayment_NothingToUndo(t *testing.T) {
	store := seededStore()
	svc := newLendingService(store)

	loan, _ := svc.CreateLoan(context.Background(), &domain.CreateLoanRequest{
		ClientID: "client-1", Principal: 100_000,
	})

	_, err := svc.UndoLastPayment(context.Background(), loan.ID)

	var state *domain.ErrLoanState
	if !errors.As(err, &state) {
		t.Fatalf("expected ErrLoanState, got %v", err)
	}
}

// --- Delete ---

func TestDeleteLoan_RefundsRemainingBalance(t *testing.T) {
	store := seededStore()
	svc := newLendingService(store)

	loan, _ := svc.CreateLoan(context.Background(), &domain.CreateLoanRequest{
		ClientID: "client-1", Principal: 240_000,
	})
	for i := 0; i < 10; i++ {
		if _, err := svc.CollectInstallment(context.Background(), loan.ID); err != nil {
			t.Fatalf("collect %d: %v", i, err)
		}
	}
	capitalBefore := store.agents["agent-1"].AvailableCapital

	if err := svc.DeleteLoan(context.Background(), loan.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if got := store.loans[loan.ID].Status; got != domain.LoanDeleted {
		t.Errorf("expected deleted status, got %s", got)
	}

	// Remaining balance: 288,000 - 10*12,000 = 168,000 goes back to capital.
	wantCapital := capitalBefore + 168_000
	if got := store.agents["agent-1"].AvailableCapital; got != wantCapital {
		t.Errorf("expected capital %f, got %f", wantCapital, got)
	}
}

func TestDeleteLoan_AlreadyDeletedRejected(t *testing.T) {
	store := seededStore()
	svc := newLendingService(store)

	loan, _ := svc.CreateLoan(context.Background(), &domain.CreateLoanRequest{
		ClientID: "client-1", Principal: 100_000,
	})
	if err := svc.DeleteLoan(context.Background(), loan.ID); err != nil {
		t.Fatalf("first delete: %v", err)
	}

	err := svc.DeleteLoan(context.Background(), loan.ID)

	var state *domain.ErrLoanState
	if !errors.As(err, &state) {
		t.Fatalf("expected ErrLoanState on double delete, got %v", err)
	}
}

// --- Force paid ---

func TestForceMarkPaid_NoCapitalMovement(t *testing.T) {
	store := seededStore()
	svc := newLendingService(store)

	loan, _ := svc.CreateLoan(context.Background(), &domain.CreateLoanRequest{
		ClientID: "client-1", Principal: 240_000,
	})
	capitalBefore := store.agents["agent-1"].AvailableCapital

	updated, err := svc.ForceMarkPaid(context.Background(), loan.ID)
	if err != nil {
		t.Fatalf("force paid: %v", err)
	}
	if updated.Status != domain.LoanPaid {
		t.Errorf("expected paid, got %s", updated.Status)
	}
	if updated.InstallmentsPaid != 24 {
		t.Errorf("expected 24 installments, got %d", updated.InstallmentsPaid)
	}
	if got := store.agents["agent-1"].AvailableCapital; got != capitalBefore {
		t.Errorf("capital should be untouched, got %f want %f", got, capitalBefore)
	}
}

// --- Clients ---

func TestDeleteClient_WithActiveLoanRejected(t *testing.T) {
	store := seededStore()
	svc := newLendingService(store)

	if _, err := svc.CreateLoan(context.Background(), &domain.CreateLoanRequest{
		ClientID: "client-1", Principal: 100_000,
	}); err != nil {
		t.Fatalf("create loan: %v", err)
	}

	err := svc.DeleteClient(context.Background(), "client-1")

	var conflict *domain.ErrConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestAdjustAgentCapital_RejectsNegativeResult(t *testing.T) {
	store := seededStore()
	svc := newLendingService(store)

	_, err := svc.AdjustAgentCapital(context.Background(), "agent-1", -30_000_000)

	var validation *domain.ErrValidation
	if !errors.As(err, &validation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	agent, _ := svc.AdjustAgentCapital(context.Background(), "agent-1", 1_000_000)
	if agent.AvailableCapital != 21_000_000 {
		t.Errorf("expected capital 21000000, got %f", agent.AvailableCapital)
	}
}
