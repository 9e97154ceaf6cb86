package domain

import "fmt"

// payoffEpsilon absorbs float residue at the installmentsPaid == count
// boundary so a fully collected loan reports exactly zero balance.
const payoffEpsilon = 1e-6

// Terms are the system-wide loan constants: fixed interest as a fraction of
// principal, a fixed daily installment count, and the split applied to
// generated interest. Historically these were scattered literals; they are
// hoisted here and passed explicitly into every derivation.
type Terms struct {
	InterestRate     float64
	InstallmentCount int
	ReinvestShare    float64
	AgentShare       float64
	AdminShare       float64
}

// DefaultTerms returns the production terms: 20% interest over 24 daily
// installments, interest split 65% reinvestment / 25% agent / 10% admin.
func DefaultTerms() Terms {
	return Terms{
		InterestRate:     0.20,
		InstallmentCount: 24,
		ReinvestShare:    0.65,
		AgentShare:       0.25,
		AdminShare:       0.10,
	}
}

// Validate rejects terms whose interest shares do not cover exactly 100%
// or whose installment count would make the daily quota undefined.
func (t Terms) Validate() error {
	if t.InstallmentCount <= 0 {
		return &ErrValidation{Field: "installment_count", Message: "must be positive"}
	}
	if t.InterestRate < 0 {
		return &ErrValidation{Field: "interest_rate", Message: "must not be negative"}
	}
	sum := t.ReinvestShare + t.AgentShare + t.AdminShare
	if sum < 1.0-payoffEpsilon || sum > 1.0+payoffEpsilon {
		return &ErrValidation{
			Field:   "interest_shares",
			Message: fmt.Sprintf("must sum to 1.0, got %.4f", sum),
		}
	}
	return nil
}

// ============================================================
// Amortization calculator
//
// All functions are total for any loan with principal set. Stored
// precomputed fields win; absent fields are recomputed, never defaulted
// to principal alone.
// ============================================================

// TotalPayable is principal plus fixed interest.
func (t Terms) TotalPayable(l *Loan) float64 {
	if l.TotalPayable != nil {
		return *l.TotalPayable
	}
	return l.Principal * (1 + t.InterestRate)
}

// DailyInstallment is the equal daily quota covering principal + interest.
func (t Terms) DailyInstallment(l *Loan) float64 {
	if l.DailyInstallment != nil {
		return *l.DailyInstallment
	}
	return t.TotalPayable(l) / float64(t.InstallmentCount)
}

// InterestAmount is the fixed interest charged on the loan.
func (t Terms) InterestAmount(l *Loan) float64 {
	if l.InterestAmount != nil {
		return *l.InterestAmount
	}
	return l.Principal * t.InterestRate
}

// AmountCollected is the total already paid in across installments.
func (t Terms) AmountCollected(l *Loan) float64 {
	return float64(l.InstallmentsPaid) * t.DailyInstallment(l)
}

// RemainingBalance is what the client still owes, never negative.
func (t Terms) RemainingBalance(l *Loan) float64 {
	rem := t.TotalPayable(l) - t.AmountCollected(l)
	if rem <= payoffEpsilon {
		return 0
	}
	return rem
}

// PercentCollected is collection progress, capped at 100.
func (t Terms) PercentCollected(l *Loan) float64 {
	pct := float64(l.InstallmentsPaid) / float64(t.InstallmentCount) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// PrincipalPortion is the capital slice of one daily installment; the rest
// of the installment is interest.
func (t Terms) PrincipalPortion(l *Loan) float64 {
	return l.Principal / float64(t.InstallmentCount)
}

// PendingInstallments is how many daily quotas remain, never negative.
func (t Terms) PendingInstallments(l *Loan) int {
	pending := t.InstallmentCount - l.InstallmentsPaid
	if pending < 0 {
		return 0
	}
	return pending
}
