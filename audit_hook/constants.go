package audithook

// Action constants for audit events.
const (
	// Investor actions
	ActionInvestorJoined = "investor.joined"

	// Deposit actions
	ActionDepositRecorded = "deposit.recorded"

	// Withdrawal actions
	ActionWithdrawalRequested        = "withdrawal.requested"
	ActionWithdrawalApproved         = "withdrawal.approved"
	ActionWithdrawalOverrideApproved = "withdrawal.override_approved"
	ActionWithdrawalDenied           = "withdrawal.denied"

	// Cycle actions
	ActionCycleOpened   = "cycle.opened"
	ActionCycleSettling = "cycle.settling"
	ActionCycleSettled  = "cycle.settled"

	// Share actions
	ActionSharesRecomputed = "shares.recomputed"
)

// Resource constants for audit events.
const (
	ResourceInvestor   = "investor"
	ResourceDeposit    = "deposit"
	ResourceWithdrawal = "withdrawal"
	ResourceCycle      = "cycle"
	ResourceShare      = "share"
)

// Category constants for audit events.
const (
	CategoryMembership = "membership"
	CategoryCapital    = "capital"
	CategorySettlement = "settlement"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
