// Package plugin provides an extensible plugin system for Fundpool.
// Plugins can hook into ledger lifecycle events to extend functionality.
package plugin

import "context"

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Investor hooks
// ──────────────────────────────────────────────────

// OnInvestorJoined is called when an investor is created on first deposit.
type OnInvestorJoined interface {
	Plugin
	OnInvestorJoined(ctx context.Context, ivr interface{}) error
}

// ──────────────────────────────────────────────────
// Deposit hooks
// ──────────────────────────────────────────────────

// OnDepositRecorded is called after a deposit commits, for every deposit
// type including engine-generated reinvestments and carryovers.
type OnDepositRecorded interface {
	Plugin
	OnDepositRecorded(ctx context.Context, dep interface{}) error
}

// ──────────────────────────────────────────────────
// Withdrawal hooks
// ──────────────────────────────────────────────────

// OnWithdrawalRequested is called when a withdrawal request is filed.
type OnWithdrawalRequested interface {
	Plugin
	OnWithdrawalRequested(ctx context.Context, w interface{}) error
}

// OnWithdrawalApproved is called after an approval commits, with its split
// already populated. Override approvals carry the override flag and reason.
type OnWithdrawalApproved interface {
	Plugin
	OnWithdrawalApproved(ctx context.Context, w interface{}) error
}

// OnWithdrawalDenied is called after a denial commits.
type OnWithdrawalDenied interface {
	Plugin
	OnWithdrawalDenied(ctx context.Context, w interface{}) error
}

// ──────────────────────────────────────────────────
// Cycle hooks
// ──────────────────────────────────────────────────

// OnCycleOpened is called when a cycle opens, at bootstrap or settlement.
type OnCycleOpened interface {
	Plugin
	OnCycleOpened(ctx context.Context, c interface{}) error
}

// OnCycleSettling is called when settlement flips a cycle to settling.
type OnCycleSettling interface {
	Plugin
	OnCycleSettling(ctx context.Context, c interface{}) error
}

// OnCycleSettled is called after a settlement commits, with the closed
// cycle's totals and per-investor payout summary populated.
type OnCycleSettled interface {
	Plugin
	OnCycleSettled(ctx context.Context, c interface{}) error
}

// ──────────────────────────────────────────────────
// Share hooks
// ──────────────────────────────────────────────────

// OnSharesRecomputed is called after a share recomputation commits.
type OnSharesRecomputed interface {
	Plugin
	OnSharesRecomputed(ctx context.Context, cycleID string, shares []interface{}) error
}
