package service

import (
	"context"
	"sort"
	"time"

	"github.com/prestadia/prestadia-api-go/internal/domain"
	"github.com/prestadia/prestadia-api-go/internal/infra/observability"
	"github.com/prestadia/prestadia-api-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var portfolioTracer = otel.Tracer("service/portfolio")

const summaryCacheKey = "portfolio:summary"

// PortfolioService folds the loan ledger into dashboard figures. Every
// computation is a pure function of a freshly fetched snapshot, so
// re-running on any change notification always converges to the same
// output; the cache only trims redundant recomputation inside its TTL.
type PortfolioService struct {
	store   port.LendingStore
	terms   domain.Terms
	cache   port.Cache[*domain.PortfolioSummary]
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewPortfolioService creates a new portfolio service.
func NewPortfolioService(
	store port.LendingStore,
	terms domain.Terms,
	cache port.Cache[*domain.PortfolioSummary],
	metrics *observability.Metrics,
	logger *zap.Logger,
) *PortfolioService {
	return &PortfolioService{store: store, terms: terms, cache: cache, metrics: metrics, logger: logger}
}

// InvalidateCache drops the cached summary. Wired to the store watcher.
func (s *PortfolioService) InvalidateCache() {
	s.cache.Delete(summaryCacheKey)
}

// Snapshot fetches the three collections concurrently.
func (s *PortfolioService) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	ctx, span := portfolioTracer.Start(ctx, "PortfolioService.Snapshot")
	defer span.End()

	snap := &domain.Snapshot{}
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		loans, err := s.store.ListLoans(gCtx)
		if err != nil {
			s.metrics.IncrStoreError("loans")
			return err
		}
		snap.Loans = loans
		return nil
	})
	g.Go(func() error {
		clients, err := s.store.ListClients(gCtx)
		if err != nil {
			s.metrics.IncrStoreError("clients")
			return err
		}
		snap.Clients = clients
		return nil
	})
	g.Go(func() error {
		agents, err := s.store.ListAgents(gCtx)
		if err != nil {
			s.metrics.IncrStoreError("agents")
			return err
		}
		snap.Agents = agents
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Summary returns the organization-wide rollup, cached for the TTL window.
func (s *PortfolioService) Summary(ctx context.Context) (*domain.PortfolioSummary, error) {
	ctx, span := portfolioTracer.Start(ctx, "PortfolioService.Summary")
	defer span.End()

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("portfolio_summary", time.Since(start)) }()

	if cached, ok := s.cache.Get(summaryCacheKey); ok {
		s.metrics.IncrCacheHit("portfolio")
		return cached, nil
	}
	s.metrics.IncrCacheMiss("portfolio")

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	summary := Summarize(snap, s.terms, time.Now(), s.logger)
	s.cache.Set(summaryCacheKey, summary)
	return summary, nil
}

// AgentSummary returns the rollup scoped to one agent's loans.
func (s *PortfolioService) AgentSummary(ctx context.Context, agentID string) (*domain.PortfolioSummary, error) {
	ctx, span := portfolioTracer.Start(ctx, "PortfolioService.AgentSummary")
	defer span.End()
	span.SetAttributes(attribute.String("agent.id", agentID))

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	scoped := &domain.Snapshot{Clients: snap.Clients}
	for i := range snap.Agents {
		if snap.Agents[i].ID == agentID {
			scoped.Agents = append(scoped.Agents, snap.Agents[i])
		}
	}
	if len(scoped.Agents) == 0 {
		return nil, &domain.ErrNotFound{Resource: "agent", ID: agentID}
	}
	for i := range snap.Loans {
		if snap.Loans[i].AgentID == agentID {
			scoped.Loans = append(scoped.Loans, snap.Loans[i])
		}
	}

	return Summarize(scoped, s.terms, time.Now(), s.logger), nil
}

// Leaderboard returns the per-agent breakdown ranked by outstanding capital.
func (s *PortfolioService) Leaderboard(ctx context.Context) ([]domain.AgentSummary, error) {
	ctx, span := portfolioTracer.Start(ctx, "PortfolioService.Leaderboard")
	defer span.End()

	summary, err := s.Summary(ctx)
	if err != nil {
		return nil, err
	}
	return summary.Agents, nil
}

// Summarize is the pure aggregation core. Loans without a usable principal
// are skipped with a warning so one malformed record cannot blank the
// dashboard. Deleted and paid loans contribute nothing to outstanding
// capital or interest distribution.
func Summarize(snap *domain.Snapshot, terms domain.Terms, now time.Time, logger *zap.Logger) *domain.PortfolioSummary {
	summary := &domain.PortfolioSummary{}

	perAgent := make(map[string]*domain.AgentSummary)
	for i := range snap.Agents {
		a := &snap.Agents[i]
		if a.IsAdmin {
			continue
		}
		perAgent[a.ID] = &domain.AgentSummary{
			AgentID:          a.ID,
			AgentName:        a.Name,
			Color:            a.Color,
			AvailableCapital: a.AvailableCapital,
		}
		summary.TotalWealth += a.AvailableCapital
	}

	for i := range snap.Loans {
		l := &snap.Loans[i]
		if l.Principal <= 0 {
			logger.Warn("aggregation: skipping loan without principal",
				zap.String("loan_id", l.ID),
				zap.String("client_id", l.ClientID),
			)
			summary.SkippedLoans++
			continue
		}

		switch l.Status {
		case domain.LoanPaid:
			summary.PaidLoans++
			continue
		case domain.LoanDeleted:
			continue
		case domain.LoanActive:
			// fallthrough to accumulation
		default:
			continue
		}

		summary.ActiveLoans++
		remaining := terms.RemainingBalance(l)
		interest := terms.InterestAmount(l)
		summary.OutstandingCapital += remaining
		summary.TotalInterestGenerated += interest
		if domain.IsDelinquent(l, now) {
			summary.DelinquentLoans++
		}

		if as, ok := perAgent[l.AgentID]; ok {
			as.OutstandingCapital += remaining
			as.InterestGenerated += interest
			as.ActiveLoans++
		}
	}

	summary.ReinvestmentAmount = summary.TotalInterestGenerated * terms.ReinvestShare
	summary.AgentCommission = summary.TotalInterestGenerated * terms.AgentShare
	summary.AdminWithdrawal = summary.TotalInterestGenerated * terms.AdminShare
	summary.TotalWealth += summary.OutstandingCapital

	if summary.ActiveLoans > 0 {
		summary.DelinquencyRate = float64(summary.DelinquentLoans) / float64(summary.ActiveLoans) * 100
	}

	agents := make([]domain.AgentSummary, 0, len(perAgent))
	for _, as := range perAgent {
		as.Commission = as.InterestGenerated * terms.AgentShare
		if summary.OutstandingCapital > 0 {
			as.ShareOfOutstanding = as.OutstandingCapital / summary.OutstandingCapital * 100
		}
		agents = append(agents, *as)
	}
	sort.Slice(agents, func(i, j int) bool {
		if agents[i].OutstandingCapital != agents[j].OutstandingCapital {
			return agents[i].OutstandingCapital > agents[j].OutstandingCapital
		}
		return agents[i].AgentName < agents[j].AgentName
	})
	summary.Agents = agents

	return summary
}

// Delinquency builds the overdue-loan report, optionally scoped to one
// agent. Loans are ordered most overdue first.
func (s *PortfolioService) Delinquency(ctx context.Context, agentID string) (*domain.DelinquencyReport, error) {
	ctx, span := portfolioTracer.Start(ctx, "PortfolioService.Delinquency")
	defer span.End()

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	clientNames := make(map[string]string, len(snap.Clients))
	for i := range snap.Clients {
		clientNames[snap.Clients[i].ID] = snap.Clients[i].Name
	}

	now := time.Now()
	report := &domain.DelinquencyReport{Loans: []domain.DelinquentLoan{}}

	for i := range snap.Loans {
		l := &snap.Loans[i]
		if agentID != "" && l.AgentID != agentID {
			continue
		}
		if l.Status != domain.LoanActive {
			continue
		}
		report.ActiveLoans++

		if !domain.IsDelinquent(l, now) {
			continue
		}
		daysLate := domain.DaysLate(l, now)
		report.Loans = append(report.Loans, domain.DelinquentLoan{
			LoanID:              l.ID,
			ClientID:            l.ClientID,
			ClientName:          clientNames[l.ClientID],
			AgentID:             l.AgentID,
			DaysLate:            daysLate,
			Severity:            domain.Severity(daysLate),
			PendingInstallments: s.terms.PendingInstallments(l),
			RemainingBalance:    s.terms.RemainingBalance(l),
		})
	}

	report.DelinquentLoans = len(report.Loans)
	if report.ActiveLoans > 0 {
		report.Rate = float64(report.DelinquentLoans) / float64(report.ActiveLoans) * 100
	}

	sort.Slice(report.Loans, func(i, j int) bool {
		return report.Loans[i].DaysLate > report.Loans[j].DaysLate
	})
	return report, nil
}

// Reconciliation recomputes each agent's capital movements from the loan
// ledger so operators can spot loan/capital drift caused by the paired
// non-transactional writes.
func (s *PortfolioService) Reconciliation(ctx context.Context) ([]domain.AgentReconciliation, error) {
	ctx, span := portfolioTracer.Start(ctx, "PortfolioService.Reconciliation")
	defer span.End()

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	byAgent := make(map[string]*domain.AgentReconciliation)
	for i := range snap.Agents {
		a := &snap.Agents[i]
		if a.IsAdmin {
			continue
		}
		byAgent[a.ID] = &domain.AgentReconciliation{
			AgentID:          a.ID,
			AgentName:        a.Name,
			AvailableCapital: a.AvailableCapital,
		}
	}

	for i := range snap.Loans {
		l := &snap.Loans[i]
		rec, ok := byAgent[l.AgentID]
		if !ok || l.Principal <= 0 || l.Status == domain.LoanDeleted {
			continue
		}
		rec.Disbursed += l.Principal
		rec.Collected += s.terms.AmountCollected(l)
	}

	out := make([]domain.AgentReconciliation, 0, len(byAgent))
	for _, rec := range byAgent {
		rec.LedgerNet = rec.Collected - rec.Disbursed
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentName < out[j].AgentName })
	return out, nil
}
