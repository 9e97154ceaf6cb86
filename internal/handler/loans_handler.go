package handler

import (
	"encoding/json"
	"net/http"

	"github.com/prestadia/prestadia-api-go/internal/domain"
	"github.com/prestadia/prestadia-api-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Loans
// ============================================================

func createLoanHandler(svc *service.LendingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/loans")
		defer span.End()

		var req domain.CreateLoanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		loan, err := svc.CreateLoan(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, loan)
	}
}

// loanView decorates a raw loan record with its derived figures so frontends
// never recompute amortization themselves.
type loanView struct {
	domain.Loan
	TotalPayableCalc    float64 `json:"total_payable_calc"`
	DailyInstallment    float64 `json:"daily_installment_calc"`
	AmountCollected     float64 `json:"amount_collected"`
	RemainingBalance    float64 `json:"remaining_balance"`
	PercentCollected    float64 `json:"percent_collected"`
	PendingInstallments int     `json:"pending_installments"`
}

func newLoanView(loan *domain.Loan, terms domain.Terms) loanView {
	return loanView{
		Loan:                *loan,
		TotalPayableCalc:    terms.TotalPayable(loan),
		DailyInstallment:    terms.DailyInstallment(loan),
		AmountCollected:     terms.AmountCollected(loan),
		RemainingBalance:    terms.RemainingBalance(loan),
		PercentCollected:    terms.PercentCollected(loan),
		PendingInstallments: terms.PendingInstallments(loan),
	}
}

func getLoanHandler(svc *service.LendingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/loans/{loanId}")
		defer span.End()

		loanID := chi.URLParam(r, "loanId")
		loan, err := svc.GetLoan(ctx, loanID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, newLoanView(loan, svc.Terms()))
	}
}

func collectPaymentHandler(svc *service.LendingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/loans/{loanId}/payments")
		defer span.End()

		loanID := chi.URLParam(r, "loanId")
		loan, err := svc.CollectInstallment(ctx, loanID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, newLoanView(loan, svc.Terms()))
	}
}

func undoPaymentHandler(svc *service.LendingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/loans/{loanId}/payments/last")
		defer span.End()

		loanID := chi.URLParam(r, "loanId")
		loan, err := svc.UndoLastPayment(ctx, loanID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, newLoanView(loan, svc.Terms()))
	}
}

func forcePaidHandler(svc *service.LendingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/loans/{loanId}/force-paid")
		defer span.End()

		loanID := chi.URLParam(r, "loanId")
		loan, err := svc.ForceMarkPaid(ctx, loanID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, newLoanView(loan, svc.Terms()))
	}
}

func deleteLoanHandler(svc *service.LendingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/loans/{loanId}")
		defer span.End()

		loanID := chi.URLParam(r, "loanId")
		if err := svc.DeleteLoan(ctx, loanID); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "loan deleted"})
	}
}
