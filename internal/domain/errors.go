package domain

import "fmt"

// Error types for consistent error handling across the API.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrValidation indicates a validation error (bad input). Rejected before
// any write; never partially applied.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrLoanState indicates an invalid loan lifecycle transition, e.g.
// collecting on a paid or deleted loan. The loan is left unchanged.
type ErrLoanState struct {
	LoanID string
	Status string
	Op     string
}

func (e *ErrLoanState) Error() string {
	return fmt.Sprintf("loan %s: cannot %s while %s", e.LoanID, e.Op, e.Status)
}

// ErrInsufficientCapital indicates the agent cannot fund the disbursement.
type ErrInsufficientCapital struct {
	Available float64
	Required  float64
}

func (e *ErrInsufficientCapital) Error() string {
	return fmt.Sprintf("insufficient capital: available=%.2f required=%.2f", e.Available, e.Required)
}

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrForbidden indicates the agent lacks permission for the operation.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}

// ErrConflict indicates a resource already exists or conflicts, e.g. a
// client that already has an active loan.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}
