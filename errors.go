package fundpool

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound     = errors.New("fundpool: not found")
	ErrInvalidInput = errors.New("fundpool: invalid input")

	// Validation errors
	ErrInvalidAmount    = errors.New("fundpool: amount must be positive")
	ErrInvalidProfit    = errors.New("fundpool: profit must not be negative")
	ErrMissingReference = errors.New("fundpool: external reference required")
	ErrInvestorNotFound = errors.New("fundpool: investor not found")
	ErrInvestorInactive = errors.New("fundpool: investor is inactive")

	// Withdrawal errors
	ErrWithdrawalNotFound  = errors.New("fundpool: withdrawal not found")
	ErrWithdrawalResolved  = errors.New("fundpool: withdrawal already resolved")
	ErrNoticePeriodActive  = errors.New("fundpool: notice period still active")
	ErrOverrideNeedsReason = errors.New("fundpool: override requires a reason")
	ErrInsufficientBalance = errors.New("fundpool: amount exceeds contribution balance")

	// Cycle errors
	ErrCycleNotFound = errors.New("fundpool: cycle not found")
	ErrNoOpenCycle   = errors.New("fundpool: no open cycle")
	ErrCycleExists   = errors.New("fundpool: an open cycle already exists")
	ErrCycleSettling = errors.New("fundpool: cycle is settling")
	ErrCycleClosed   = errors.New("fundpool: cycle is closed")

	// Concurrency errors
	ErrCycleBusy            = errors.New("fundpool: cycle is busy, try again")
	ErrRevisionConflict     = errors.New("fundpool: cycle revision conflict")
	ErrSerializationFailure = errors.New("fundpool: transaction serialization failure")

	// Deposit errors
	ErrDepositNotFound = errors.New("fundpool: deposit not found")

	// Event dispatch errors
	ErrEventBufferFull = errors.New("fundpool: event buffer full")

	// Store errors
	ErrStoreNotReady     = errors.New("fundpool: store not ready")
	ErrStoreClosed       = errors.New("fundpool: store is closed")
	ErrTransactionFailed = errors.New("fundpool: transaction failed")
	ErrMigrationFailed   = errors.New("fundpool: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("fundpool: validation failed for %s: %s", e.Field, e.Message)
}

// Is lets ValidationError match the ErrInvalidInput sentinel.
func (e ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvestorNotFound) ||
		errors.Is(err, ErrWithdrawalNotFound) ||
		errors.Is(err, ErrCycleNotFound) ||
		errors.Is(err, ErrDepositNotFound)
}

// IsValidation returns true if the error reflects a malformed request.
// The caller's input was wrong; retrying unchanged will not help.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidProfit) ||
		errors.Is(err, ErrMissingReference) ||
		errors.Is(err, ErrInvestorNotFound) ||
		errors.Is(err, ErrInvestorInactive)
}

// IsStateConflict returns true if the operation is legal in general but not
// in the ledger's current state (wrong status, notice period running,
// balance exceeded).
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrNoticePeriodActive) ||
		errors.Is(err, ErrWithdrawalResolved) ||
		errors.Is(err, ErrOverrideNeedsReason) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrNoOpenCycle) ||
		errors.Is(err, ErrCycleExists) ||
		errors.Is(err, ErrCycleSettling) ||
		errors.Is(err, ErrCycleClosed)
}

// IsRetryable returns true if the error is temporary and the operation can
// be retried as-is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrCycleBusy) ||
		errors.Is(err, ErrRevisionConflict) ||
		errors.Is(err, ErrSerializationFailure) ||
		errors.Is(err, ErrEventBufferFull) ||
		errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTransactionFailed)
}
