package store

import (
	"context"

	"github.com/xraph/fundpool/cycle"
	"github.com/xraph/fundpool/deposit"
	"github.com/xraph/fundpool/id"
	"github.com/xraph/fundpool/investor"
	"github.com/xraph/fundpool/share"
	"github.com/xraph/fundpool/withdrawal"
)

// Store is the unified storage interface for all Fundpool entities.
// Instead of embedding sub-interfaces, all methods are declared explicitly
// to avoid naming conflicts.
//
// The composite methods (ApplyDeposit, ApproveWithdrawal, BeginSettlement,
// CompleteSettlement) are the transaction boundaries of the ledger: each is
// all-or-nothing, and each mutation of a cycle aggregate checks the caller's
// expected revision and bumps it on success. A revision that moved
// underneath the caller fails the whole operation with a revision-conflict
// error so the engine can re-read and retry.
type Store interface {
	// Investor methods
	CreateInvestor(ctx context.Context, ivr *investor.Investor) error
	GetInvestor(ctx context.Context, investorID id.InvestorID) (*investor.Investor, error)
	GetInvestorByReference(ctx context.Context, reference string) (*investor.Investor, error)
	ListInvestors(ctx context.Context, opts investor.ListOpts) ([]*investor.Investor, error)
	DeactivateInvestor(ctx context.Context, investorID id.InvestorID) error

	// Cycle methods
	CreateCycle(ctx context.Context, c *cycle.Cycle) error
	GetCycle(ctx context.Context, cycleID id.CycleID) (*cycle.Cycle, error)
	GetOpenCycle(ctx context.Context) (*cycle.Cycle, error)
	GetSettlingCycle(ctx context.Context) (*cycle.Cycle, error)
	GetCycleByMonth(ctx context.Context, year int, month int) (*cycle.Cycle, error)
	ListCycles(ctx context.Context, opts cycle.ListOpts) ([]*cycle.Cycle, error)

	// Deposit methods
	GetDeposit(ctx context.Context, depositID id.DepositID) (*deposit.Deposit, error)
	ListDeposits(ctx context.Context, cycleID id.CycleID) ([]*deposit.Deposit, error)

	// Withdrawal methods
	CreateWithdrawal(ctx context.Context, w *withdrawal.Withdrawal) error
	GetWithdrawal(ctx context.Context, withdrawalID id.WithdrawalID) (*withdrawal.Withdrawal, error)
	ListWithdrawals(ctx context.Context, cycleID id.CycleID, opts withdrawal.ListOpts) ([]*withdrawal.Withdrawal, error)

	// Share methods
	ListShares(ctx context.Context, cycleID id.CycleID) ([]*share.Share, error)

	// Composite methods (single-transaction aggregate mutations)

	// ApplyDeposit inserts the deposit, replaces the cycle's share set and
	// bumps the cycle revision, all in one transaction. The cycle must be
	// open and at expectedRevision.
	ApplyDeposit(ctx context.Context, dep *deposit.Deposit, shares []*share.Share, expectedRevision int64) error

	// ApproveWithdrawal flips the pending withdrawal to approved, inserts
	// the mandatory reinvestment deposit into the same cycle, replaces the
	// share set and bumps the cycle revision, all in one transaction.
	ApproveWithdrawal(ctx context.Context, w *withdrawal.Withdrawal, reinvest *deposit.Deposit, shares []*share.Share, expectedRevision int64) error

	// DenyWithdrawal flips the pending withdrawal to denied. No monetary
	// effects, no share recomputation, no revision bump.
	DenyWithdrawal(ctx context.Context, w *withdrawal.Withdrawal) error

	// BeginSettlement flips the open cycle to settling and records the
	// declared profit and notes, so an interrupted settlement can resume.
	BeginSettlement(ctx context.Context, cycleID id.CycleID, profit cycle.SettlementInput, expectedRevision int64) error

	// CompleteSettlement closes the settling cycle with its final totals
	// and payout summary, inserts the next open cycle, its carryover seed
	// deposits and its initial share set, all in one transaction.
	CompleteSettlement(ctx context.Context, closed *cycle.Cycle, next *cycle.Cycle, seeds []*deposit.Deposit, shares []*share.Share) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
