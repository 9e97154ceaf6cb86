package domain

import "time"

// Delinquency severity tiers, in increasing order of urgency.
const (
	SeverityWarning  = "warning"
	SeverityElevated = "elevated"
	SeverityCritical = "critical"
)

// delinquencyGrace is how long an active loan may go without a payment
// before it is flagged.
const delinquencyGrace = 48 * time.Hour

// IsDelinquent reports whether a loan has gone more than two days without a
// payment. Loans that never received a payment are newly issued, not
// delinquent; elapsed time since the last payment is the trigger, not the
// count of pending installments.
func IsDelinquent(l *Loan, now time.Time) bool {
	if l.Status != LoanActive || l.LastPaymentAt == nil {
		return false
	}
	return now.Sub(*l.LastPaymentAt) > delinquencyGrace
}

// DaysLate is the number of whole days since the last payment, zero for
// loans that are not delinquent.
func DaysLate(l *Loan, now time.Time) int {
	if !IsDelinquent(l, now) {
		return 0
	}
	return int(now.Sub(*l.LastPaymentAt).Hours() / 24)
}

// Severity maps days late to a display tier.
func Severity(daysLate int) string {
	switch {
	case daysLate > 10:
		return SeverityCritical
	case daysLate > 5:
		return SeverityElevated
	default:
		return SeverityWarning
	}
}
