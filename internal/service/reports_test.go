package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/prestadia/prestadia-api-go/internal/domain"
	"github.com/prestadia/prestadia-api-go/internal/service"

	"go.uber.org/zap"
)

func TestBuildDailyReport_CollectedVsTarget(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 8, 28, 0, 0, 0, 0, loc)

	paidToday := day.Add(10 * time.Hour)
	paidYesterday := day.Add(-14 * time.Hour)

	loans := []domain.Loan{
		// Collected today: contributes 12,000 to collected and to target.
		{
			ID: "loan-1", ClientID: "c1", AgentID: "a1",
			Principal: 240_000, InstallmentsPaid: 5, Status: domain.LoanActive,
			CreatedAt: day.Add(-10 * 24 * time.Hour), LastPaymentAt: &paidToday,
		},
		// Missed today: due but not collected.
		{
			ID: "loan-2", ClientID: "c2", AgentID: "a1",
			Principal: 240_000, InstallmentsPaid: 3, Status: domain.LoanActive,
			CreatedAt: day.Add(-5 * 24 * time.Hour), LastPaymentAt: &paidYesterday,
		},
		// Created after the report day: out of scope.
		{
			ID: "loan-3", ClientID: "c3", AgentID: "a2",
			Principal: 120_000, Status: domain.LoanActive,
			CreatedAt: day.Add(30 * time.Hour),
		},
		// Deleted: out of scope even with a payment stamp inside the window.
		{
			ID: "loan-4", ClientID: "c4", AgentID: "a2",
			Principal: 120_000, InstallmentsPaid: 2, Status: domain.LoanDeleted,
			CreatedAt: day.Add(-20 * 24 * time.Hour), LastPaymentAt: &paidToday,
		},
	}

	report := service.BuildDailyReport(loans, domain.DefaultTerms(), day)

	if report.Date != "2026-08-28" {
		t.Errorf("expected date 2026-08-28, got %s", report.Date)
	}
	if report.Collected != 12_000 {
		t.Errorf("expected collected 12000, got %f", report.Collected)
	}
	if report.LoansCollected != 1 {
		t.Errorf("expected 1 loan collected, got %d", report.LoansCollected)
	}
	// Principal slice of a 240,000 loan: 10,000 per day, rest is interest.
	if report.CollectedCapital != 10_000 {
		t.Errorf("expected collected capital 10000, got %f", report.CollectedCapital)
	}
	if report.CollectedInterest != 2_000 {
		t.Errorf("expected collected interest 2000, got %f", report.CollectedInterest)
	}

	// Both open loans owed a quota: 24,000 target.
	if report.Target != 24_000 {
		t.Errorf("expected target 24000, got %f", report.Target)
	}
	if report.LoansDue != 2 {
		t.Errorf("expected 2 loans due, got %d", report.LoansDue)
	}
	if report.Variance != 12_000-24_000 {
		t.Errorf("expected variance -12000, got %f", report.Variance)
	}
}

func TestBuildDailyReport_ClosingPaymentStillCountsAsDue(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 8, 28, 0, 0, 0, 0, loc)
	paidToday := day.Add(9 * time.Hour)

	loans := []domain.Loan{
		// Final installment landed today; the loan closed but both sides of
		// the report must still see it.
		{
			ID: "loan-1", ClientID: "c1", AgentID: "a1",
			Principal: 240_000, InstallmentsPaid: 24, Status: domain.LoanPaid,
			CreatedAt: day.Add(-30 * 24 * time.Hour), LastPaymentAt: &paidToday,
		},
	}

	report := service.BuildDailyReport(loans, domain.DefaultTerms(), day)

	if report.Collected != 12_000 {
		t.Errorf("expected collected 12000, got %f", report.Collected)
	}
	if report.Target != 12_000 {
		t.Errorf("expected target 12000, got %f", report.Target)
	}
	if report.Variance != 0 {
		t.Errorf("expected variance 0, got %f", report.Variance)
	}
}

func TestDaily_RejectsBadDate(t *testing.T) {
	svc := service.NewReportService(newFakeStore(), domain.DefaultTerms(), time.UTC, zap.NewNop())

	_, err := svc.Daily(context.Background(), "28-08-2026", "")
	if err == nil {
		t.Fatal("expected validation error for malformed date")
	}
}

func TestDaily_ScopesToAgent(t *testing.T) {
	store := newFakeStore()
	now := time.Now().UTC()
	store.loans["loan-1"] = &domain.Loan{
		ID: "loan-1", ClientID: "c1", AgentID: "agent-1",
		Principal: 240_000, InstallmentsPaid: 1, Status: domain.LoanActive,
		CreatedAt: now.Add(-48 * time.Hour), LastPaymentAt: &now,
	}
	store.loans["loan-2"] = &domain.Loan{
		ID: "loan-2", ClientID: "c2", AgentID: "agent-2",
		Principal: 120_000, InstallmentsPaid: 1, Status: domain.LoanActive,
		CreatedAt: now.Add(-48 * time.Hour), LastPaymentAt: &now,
	}

	svc := service.NewReportService(store, domain.DefaultTerms(), time.UTC, zap.NewNop())

	report, err := svc.Daily(context.Background(), "", "agent-1")
	if err != nil {
		t.Fatalf("daily: %v", err)
	}
	if report.LoansCollected != 1 || report.Collected != 12_000 {
		t.Errorf("expected only agent-1's collection, got %+v", report)
	}
}

func TestDaily_DefaultsToToday(t *testing.T) {
	store := newFakeStore()
	svc := service.NewReportService(store, domain.DefaultTerms(), time.UTC, zap.NewNop())

	report, err := svc.Daily(context.Background(), "", "")
	if err != nil {
		t.Fatalf("daily: %v", err)
	}

	want := time.Now().UTC().Format("2006-01-02")
	if report.Date != want {
		t.Errorf("expected today's date %s, got %s", want, report.Date)
	}
}
