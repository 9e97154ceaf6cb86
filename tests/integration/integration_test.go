package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prestadia/prestadia-api-go/internal/domain"
	"github.com/prestadia/prestadia-api-go/internal/handler"
	"github.com/prestadia/prestadia-api-go/internal/infra/cache"
	"github.com/prestadia/prestadia-api-go/internal/infra/observability"
	"github.com/prestadia/prestadia-api-go/internal/infra/resilience"
	"github.com/prestadia/prestadia-api-go/internal/infra/supabase"
	"github.com/prestadia/prestadia-api-go/internal/service"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// fakePostgREST serves a minimal PostgREST dialect over in-memory tables:
// eq filters, POST with representation, PATCH/DELETE by id filter.
type fakePostgREST struct {
	mu     sync.Mutex
	tables map[string][]map[string]any
}

func newFakePostgREST() *fakePostgREST {
	return &fakePostgREST{tables: map[string][]map[string]any{
		"agents": {}, "clients": {}, "loans": {},
	}}
}

func (f *fakePostgREST) matches(row map[string]any, query map[string][]string) bool {
	for key, vals := range query {
		switch key {
		case "select", "order", "limit":
			continue
		}
		want, ok := strings.CutPrefix(vals[0], "eq.")
		if !ok {
			continue
		}
		if fmt.Sprintf("%v", row[key]) != want {
			return false
		}
	}
	return true
}

func (f *fakePostgREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	table := strings.TrimPrefix(r.URL.Path, "/rest/v1/")
	rows, ok := f.tables[table]
	if !ok {
		http.NotFound(w, r)
		return
	}
	query := r.URL.Query()

	switch r.Method {
	case http.MethodGet:
		out := []map[string]any{}
		for _, row := range rows {
			if f.matches(row, query) {
				out = append(out, row)
			}
		}
		json.NewEncoder(w).Encode(out)

	case http.MethodPost:
		var row map[string]any
		json.NewDecoder(r.Body).Decode(&row)
		f.tables[table] = append(rows, row)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode([]map[string]any{row})

	case http.MethodPatch:
		var updates map[string]any
		json.NewDecoder(r.Body).Decode(&updates)
		for _, row := range rows {
			if f.matches(row, query) {
				for k, v := range updates {
					row[k] = v
				}
			}
		}
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		kept := rows[:0]
		for _, row := range rows {
			if !f.matches(row, query) {
				kept = append(kept, row)
			}
		}
		f.tables[table] = kept
		w.WriteHeader(http.StatusNoContent)
	}
}

// TestIntegration_FullFlow drives login, client registration, loan issuance
// and collection through the real router against a fake record store.
func TestIntegration_FullFlow(t *testing.T) {
	backend := newFakePostgREST()
	backendSrv := httptest.NewServer(backend)
	defer backendSrv.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte("1234"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash pin: %v", err)
	}
	backend.tables["agents"] = append(backend.tables["agents"], map[string]any{
		"id": "agent-1", "name": "Maria", "pin_hash": string(hash),
		"available_capital": 20_000_000.0, "is_admin": false,
		"status": "active", "created_at": "2026-01-10T08:00:00Z",
	})

	// --- Wire the real stack ---
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	terms := domain.DefaultTerms()

	store := supabase.NewClient(
		backendSrv.Client(),
		backendSrv.URL,
		"anon-key",
		"service-key",
		resilience.NewCircuitBreaker("integration"),
		resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxConcurrency: 8},
		logger,
	)

	lendingSvc := service.NewLendingService(store, terms, metrics, logger)
	portfolioSvc := service.NewPortfolioService(store, terms, cache.New[*domain.PortfolioSummary](time.Minute), metrics, logger)
	reportSvc := service.NewReportService(store, terms, time.UTC, logger)
	authSvc := service.NewAuthService(store, "integration-secret", time.Hour, logger)

	router := handler.NewRouter(lendingSvc, portfolioSvc, reportSvc, authSvc, metrics, logger)
	api := httptest.NewServer(router)
	defer api.Close()

	do := func(method, path, token string, payload any) (*http.Response, []byte) {
		t.Helper()
		var body bytes.Buffer
		if payload != nil {
			json.NewEncoder(&body).Encode(payload)
		}
		req, _ := http.NewRequest(method, api.URL+path, &body)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", method, path, err)
		}
		defer resp.Body.Close()
		var buf bytes.Buffer
		buf.ReadFrom(resp.Body)
		return resp, buf.Bytes()
	}

	// --- Login ---
	resp, body := do(http.MethodPost, "/v1/auth/login", "", domain.LoginRequest{AgentID: "agent-1", PIN: "1234"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: %d %s", resp.StatusCode, body)
	}
	var session domain.LoginResponse
	json.Unmarshal(body, &session)
	token := session.AccessToken

	// --- Register a client ---
	resp, body = do(http.MethodPost, "/v1/clients", token, map[string]any{
		"name": "Rosa Perez", "phone": "555-0101",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create client: %d %s", resp.StatusCode, body)
	}
	var client domain.Client
	json.Unmarshal(body, &client)
	if client.AgentID != "agent-1" {
		t.Errorf("client should be owned by the session agent, got %q", client.AgentID)
	}

	// --- Issue a loan ---
	resp, body = do(http.MethodPost, "/v1/loans", token, domain.CreateLoanRequest{
		ClientID: client.ID, Principal: 240_000,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create loan: %d %s", resp.StatusCode, body)
	}
	var loan domain.Loan
	json.Unmarshal(body, &loan)

	// Disbursement debits the agent.
	resp, body = do(http.MethodGet, "/v1/agents/agent-1", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get agent: %d %s", resp.StatusCode, body)
	}
	var agent domain.Agent
	json.Unmarshal(body, &agent)
	if agent.AvailableCapital != 19_760_000 {
		t.Errorf("expected capital 19760000 after disbursement, got %f", agent.AvailableCapital)
	}

	// --- Collect an installment ---
	resp, body = do(http.MethodPost, fmt.Sprintf("/v1/loans/%s/payments", loan.ID), token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("collect: %d %s", resp.StatusCode, body)
	}
	var view struct {
		InstallmentsPaid int     `json:"installments_paid"`
		RemainingBalance float64 `json:"remaining_balance"`
	}
	json.Unmarshal(body, &view)
	if view.InstallmentsPaid != 1 || view.RemainingBalance != 276_000 {
		t.Errorf("unexpected loan view after collection: %+v", view)
	}

	// --- Portfolio summary reflects the book ---
	resp, body = do(http.MethodGet, "/v1/portfolio/summary", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("summary: %d %s", resp.StatusCode, body)
	}
	var summary domain.PortfolioSummary
	json.Unmarshal(body, &summary)
	if summary.ActiveLoans != 1 {
		t.Errorf("expected 1 active loan, got %d", summary.ActiveLoans)
	}
	if summary.OutstandingCapital != 276_000 {
		t.Errorf("expected outstanding 276000, got %f", summary.OutstandingCapital)
	}

	// --- Daily report sees today's collection ---
	resp, body = do(http.MethodGet, "/v1/reports/daily", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("daily report: %d %s", resp.StatusCode, body)
	}
	var report domain.DailyReport
	json.Unmarshal(body, &report)
	if report.LoansCollected != 1 || report.Collected != 12_000 {
		t.Errorf("unexpected daily report: %+v", report)
	}
}
