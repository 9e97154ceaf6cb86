// Package domain holds the core lending models and the pure business rules
// derived from them: loan amortization, delinquency classification, and the
// typed errors shared across layers.
package domain

import "time"

// Loan statuses. Every write sets the status explicitly; no defaults.
const (
	LoanActive  = "active"
	LoanPaid    = "paid"
	LoanDeleted = "deleted"
)

// Loan is a single fixed-term disbursement to a client.
//
// totalPayable, dailyInstallment and interestAmount may be stored
// precomputed; when absent they are derived from principal and the
// configured Terms (see finance.go). installmentsPaid defaults to zero.
type Loan struct {
	ID               string     `json:"id"`
	ClientID         string     `json:"client_id"`
	AgentID          string     `json:"agent_id"`
	Principal        float64    `json:"principal"`
	TotalPayable     *float64   `json:"total_payable,omitempty"`
	DailyInstallment *float64   `json:"daily_installment,omitempty"`
	InterestAmount   *float64   `json:"interest_amount,omitempty"`
	InstallmentsPaid int        `json:"installments_paid"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	LastPaymentAt    *time.Time `json:"last_payment_at,omitempty"`
}

// Client belongs to exactly one agent. A client may have many historical
// loans but at most one active loan at a time (enforced by the lending
// service, not by the store).
type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IDNumber  string    `json:"id_number"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	AgentID   string    `json:"agent_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Agent is a field sales representative ("vendedora"). AvailableCapital is
// the cash on hand to fund new loans; it moves with every loan event.
type Agent struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	PINHash          string    `json:"pin_hash,omitempty"`
	Color            string    `json:"color"`
	AvailableCapital float64   `json:"available_capital"`
	IsAdmin          bool      `json:"is_admin"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

// Snapshot is an immutable view of the three collections, fetched together.
// All aggregation is a pure function of a Snapshot so that recomputation on
// every change notification is idempotent.
type Snapshot struct {
	Loans   []Loan
	Clients []Client
	Agents  []Agent
}

// ============================================================
// Aggregation results
// ============================================================

// PortfolioSummary is the organization-wide (or agent-scoped) rollup.
type PortfolioSummary struct {
	OutstandingCapital     float64 `json:"outstanding_capital"`
	TotalInterestGenerated float64 `json:"total_interest_generated"`
	ReinvestmentAmount     float64 `json:"reinvestment_amount"`
	AgentCommission        float64 `json:"agent_commission"`
	AdminWithdrawal        float64 `json:"admin_withdrawal"`
	TotalWealth            float64 `json:"total_wealth"`
	ActiveLoans            int     `json:"active_loans"`
	PaidLoans              int     `json:"paid_loans"`
	DelinquentLoans        int     `json:"delinquent_loans"`
	DelinquencyRate        float64 `json:"delinquency_rate"`
	SkippedLoans           int     `json:"skipped_loans,omitempty"`

	Agents []AgentSummary `json:"agents,omitempty"`
}

// AgentSummary is one agent's slice of the portfolio, used for the
// leaderboard (ranked by outstanding capital descending).
type AgentSummary struct {
	AgentID            string  `json:"agent_id"`
	AgentName          string  `json:"agent_name"`
	Color              string  `json:"color"`
	AvailableCapital   float64 `json:"available_capital"`
	OutstandingCapital float64 `json:"outstanding_capital"`
	InterestGenerated  float64 `json:"interest_generated"`
	Commission         float64 `json:"commission"`
	ActiveLoans        int     `json:"active_loans"`
	ShareOfOutstanding float64 `json:"share_of_outstanding"` // percent of org total, 0 when total is 0
}

// DelinquentLoan is one flagged loan with its severity tier.
type DelinquentLoan struct {
	LoanID              string  `json:"loan_id"`
	ClientID            string  `json:"client_id"`
	ClientName          string  `json:"client_name,omitempty"`
	AgentID             string  `json:"agent_id"`
	DaysLate            int     `json:"days_late"`
	Severity            string  `json:"severity"`
	PendingInstallments int     `json:"pending_installments"`
	RemainingBalance    float64 `json:"remaining_balance"`
}

// DelinquencyReport lists delinquent loans, most overdue first.
type DelinquencyReport struct {
	ActiveLoans     int              `json:"active_loans"`
	DelinquentLoans int              `json:"delinquent_loans"`
	Rate            float64          `json:"rate"`
	Loans           []DelinquentLoan `json:"loans"`
}

// DailyReport compares what was collected on a calendar day against the
// theoretical full daily obligation of the portfolio.
type DailyReport struct {
	Date              string  `json:"date"` // YYYY-MM-DD, local wall clock
	Collected         float64 `json:"collected"`
	CollectedCapital  float64 `json:"collected_capital"`
	CollectedInterest float64 `json:"collected_interest"`
	LoansCollected    int     `json:"loans_collected"`
	Target            float64 `json:"target"`
	LoansDue          int     `json:"loans_due"`
	Variance          float64 `json:"variance"` // collected - target; >= 0 means goal met
}

// AgentReconciliation reports an agent's capital movements recomputed from
// the loan ledger, so loan/capital drift is detectable.
type AgentReconciliation struct {
	AgentID          string  `json:"agent_id"`
	AgentName        string  `json:"agent_name"`
	AvailableCapital float64 `json:"available_capital"`
	Disbursed        float64 `json:"disbursed"`  // principal out on non-deleted loans
	Collected        float64 `json:"collected"`  // installments credited back
	LedgerNet        float64 `json:"ledger_net"` // collected - disbursed
}

// ============================================================
// Requests / responses
// ============================================================

// CreateLoanRequest is the payload for loan creation.
type CreateLoanRequest struct {
	ClientID  string  `json:"client_id"`
	Principal float64 `json:"principal"`
}

// LoginRequest authenticates an agent by PIN.
type LoginRequest struct {
	AgentID string `json:"agent_id,omitempty"`
	Name    string `json:"name,omitempty"`
	PIN     string `json:"pin"`
}

// LoginResponse carries the signed session token.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	AgentID     string `json:"agent_id"`
	AgentName   string `json:"agent_name"`
	IsAdmin     bool   `json:"is_admin"`
}

// SuccessResponse is a generic message envelope.
type SuccessResponse struct {
	Message string `json:"message"`
}

// ServiceHealth describes one dependency in the health report.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latency_ms"`
	LastChecked string `json:"last_checked"`
}

// HealthStatus is the /healthz response.
type HealthStatus struct {
	Status   string          `json:"status"`
	Services []ServiceHealth `json:"services"`
}

// OpsSnapshot exposes the service's own counters for the ops endpoint.
type OpsSnapshot struct {
	CollectionsTotal  int64   `json:"collections_total"`
	LoansCreatedTotal int64   `json:"loans_created_total"`
	StoreErrorsTotal  int64   `json:"store_errors_total"`
	CacheHitRate      float64 `json:"cache_hit_rate"`
	Period            string  `json:"period"`
}
