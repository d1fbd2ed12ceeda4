/*
errors.go - Centralized error taxonomy for the fund engine

PURPOSE:
  All error kinds in one place. The API layer maps these to HTTP status
  codes; services return them verbatim after the enclosing database
  transaction has rolled back, so a returned error always means "nothing
  happened".

ERROR CATEGORIES:
  1. State errors     - operation attempted in the wrong status
  2. Precondition errors - algorithmic requirements unmet
  3. Input errors     - malformed caller input

USAGE:
  if errors.Is(err, fund.ErrAlreadySettled) { ... }

  var insuf *fund.InsufficientBalanceError
  if errors.As(err, &insuf) { ... insuf.Shortfalls ... }
*/
package fund

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidState is returned when an operation is attempted against a
	// session, menu, or request in the wrong status.
	ErrInvalidState = errors.New("invalid state for operation")

	// ErrNotFound is returned when a referenced entity is missing or not
	// eligible for the operation.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the actor lacks rights over the entity,
	// e.g. confirming someone else's reimbursement.
	ErrForbidden = errors.New("forbidden")

	// ErrNoParticipants is returned when a session has no confirmed, active
	// participants.
	ErrNoParticipants = errors.New("no participants")

	// ErrNoEligibleBuyers is returned when rotation selection finds nobody
	// to pick even after backfilling.
	ErrNoEligibleBuyers = errors.New("no eligible buyers")

	// ErrAlreadySettled guards settlement idempotency: a second settle call
	// on the same session or menu fails with this, changing nothing.
	ErrAlreadySettled = errors.New("already settled")

	// ErrAlreadyProcessed guards deposit approval idempotency.
	ErrAlreadyProcessed = errors.New("already processed")

	// ErrNotABuyer is returned when the reported payer was not among the
	// session's selected buyers.
	ErrNotABuyer = errors.New("payer is not a selected buyer")

	// ErrInsufficientBalance is returned by itemized settlement when any
	// participant cannot cover their computed cost.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrValidation is returned for malformed caller input.
	ErrValidation = errors.New("validation error")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// Shortfall names one underfunded participant in an itemized settlement.
type Shortfall struct {
	UserID   string
	Name     string
	Balance  int64
	Required int64
}

// InsufficientBalanceError lists every participant who cannot cover
// their itemized cost. The check runs for all participants before any
// deduction, so the whole settlement fails or none of it does.
type InsufficientBalanceError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientBalanceError) Error() string {
	names := make([]string, len(e.Shortfalls))
	for i, s := range e.Shortfalls {
		names[i] = fmt.Sprintf("%s (has %d, needs %d)", s.Name, s.Balance, s.Required)
	}
	return "insufficient balance: " + strings.Join(names, ", ")
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// ValidationError describes a single bad input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// StateError records the status that blocked an operation.
type StateError struct {
	Entity string
	Status string
	Want   string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s is %s, want %s", e.Entity, e.Status, e.Want)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidState
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the caller can fix the input and retry.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientBalance)
}

// IsConflict reports "the world changed under you" errors.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrAlreadySettled) ||
		errors.Is(err, ErrAlreadyProcessed) ||
		errors.Is(err, ErrNoParticipants) ||
		errors.Is(err, ErrNoEligibleBuyers) ||
		errors.Is(err, ErrNotABuyer)
}

// IsNotFound reports whether the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
