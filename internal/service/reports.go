package service

import (
	"context"
	"time"

	"github.com/prestadia/prestadia-api-go/internal/domain"
	"github.com/prestadia/prestadia-api-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var reportsTracer = otel.Tracer("service/reports")

// ReportService builds the end-of-day collection report: what actually came
// in on a local calendar date versus what the portfolio should have produced
// if every active loan paid its daily quota.
type ReportService struct {
	store    port.LendingStore
	terms    domain.Terms
	location *time.Location
	logger   *zap.Logger
}

// NewReportService creates a report service. Dates are interpreted in loc;
// pass time.Local when the API serves a single-region operation.
func NewReportService(store port.LendingStore, terms domain.Terms, loc *time.Location, logger *zap.Logger) *ReportService {
	if loc == nil {
		loc = time.Local
	}
	return &ReportService{store: store, terms: terms, location: loc, logger: logger}
}

// Daily builds the collection report for the calendar date given as
// YYYY-MM-DD. An empty date means today; a non-empty agentID restricts the
// report to that agent's loans.
func (s *ReportService) Daily(ctx context.Context, date, agentID string) (*domain.DailyReport, error) {
	ctx, span := reportsTracer.Start(ctx, "ReportService.Daily")
	defer span.End()

	var day time.Time
	if date == "" {
		now := time.Now().In(s.location)
		day = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.location)
	} else {
		parsed, err := time.ParseInLocation("2006-01-02", date, s.location)
		if err != nil {
			return nil, &domain.ErrValidation{Field: "date", Message: "expected YYYY-MM-DD"}
		}
		day = parsed
	}
	span.SetAttributes(attribute.String("report.date", day.Format("2006-01-02")))

	var (
		loans []domain.Loan
		err   error
	)
	if agentID != "" {
		loans, err = s.store.ListLoansByAgent(ctx, agentID)
	} else {
		loans, err = s.store.ListLoans(ctx)
	}
	if err != nil {
		return nil, err
	}

	return BuildDailyReport(loans, s.terms, day), nil
}

// BuildDailyReport folds the loan list into the report for the day starting
// at dayStart (inclusive) and ending 24h later (exclusive).
//
// A loan counts as collected when its last payment lands inside the window,
// regardless of whether that payment happened to close the loan. The target
// side counts every loan that was open and owed a quota on that day: active
// or closed-later loans created on or before the day, with installments
// still pending at the time. Deleted loans never contribute to either side.
func BuildDailyReport(loans []domain.Loan, terms domain.Terms, dayStart time.Time) *domain.DailyReport {
	dayEnd := dayStart.Add(24 * time.Hour)

	report := &domain.DailyReport{Date: dayStart.Format("2006-01-02")}

	for i := range loans {
		l := &loans[i]
		if l.Status == domain.LoanDeleted || l.Principal <= 0 {
			continue
		}

		daily := terms.DailyInstallment(l)

		if l.LastPaymentAt != nil {
			paidAt := l.LastPaymentAt.In(dayStart.Location())
			if !paidAt.Before(dayStart) && paidAt.Before(dayEnd) {
				capital := terms.PrincipalPortion(l)
				report.Collected += daily
				report.CollectedCapital += capital
				report.CollectedInterest += daily - capital
				report.LoansCollected++
			}
		}

		// Due that day: created on or before the day, not yet fully paid.
		if l.CreatedAt.Before(dayEnd) && l.InstallmentsPaid < terms.InstallmentCount {
			report.Target += daily
			report.LoansDue++
		} else if l.Status == domain.LoanPaid && l.LastPaymentAt != nil &&
			!l.LastPaymentAt.In(dayStart.Location()).Before(dayStart) &&
			l.LastPaymentAt.In(dayStart.Location()).Before(dayEnd) {
			// The closing installment was due today even though the loan now
			// shows zero pending.
			report.Target += daily
			report.LoansDue++
		}
	}

	report.Variance = report.Collected - report.Target
	return report
}
