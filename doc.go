// Package fundpool provides a pooled-capital investment ledger for Go applications.
//
// Fundpool is designed as a library, not a service. Import it directly into your
// Go application for maximum performance and flexibility. It provides:
//
//   - Monthly investment cycles with a single open cycle at a time
//   - Deposit tracking with automatic investor onboarding
//   - Exact percentage shares (six decimal places, always summing to 100%)
//   - Withdrawal lifecycle with a seven-day notice period and a mandatory
//     84/16 net-payout/reinvestment split on approval
//   - Monthly settlement splitting profit 64/16/20 into payouts,
//     reinvestment and performance fee, with carryover into the next cycle
//   - Pluggable lifecycle hooks for audit trails, notifications and metrics
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/xraph/fundpool"
//	    "github.com/xraph/fundpool/store/memory"
//	)
//
//	eng := fundpool.New(memory.New())
//
//	// Start the engine (runs migrations, begins the event worker)
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
//	// Open the first cycle
//	if _, err := eng.Bootstrap(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Core Concepts
//
// Deposits fund the open cycle; the investor is created on first deposit:
//
//	result, err := eng.Deposit(ctx, fundpool.DepositRequest{
//	    InvestorReference: "acct-1042",
//	    Amount:            fundpool.USD(100_000),
//	    ExternalReference: "wire-8841",
//	})
//
// Withdrawals start a notice period and only move money when an
// administrator approves them:
//
//	receipt, err := eng.RequestWithdrawal(ctx, fundpool.WithdrawalRequest{
//	    InvestorID: result.InvestorID,
//	    Amount:     fundpool.USD(25_000),
//	})
//
//	// After the notice period:
//	_, err = eng.ResolveWithdrawal(ctx, fundpool.ResolveWithdrawalRequest{
//	    WithdrawalID: receipt.WithdrawalID,
//	    Action:       fundpool.ActionApprove,
//	})
//
// Settlement closes the month and rolls capital forward:
//
//	summary, err := eng.Settle(ctx, fundpool.SettleRequest{
//	    Profit: fundpool.USD(300_000),
//	})
//
// # Money
//
// All monetary calculations use integer arithmetic to avoid floating-point
// precision issues. The Money type represents amounts in the smallest
// currency unit (cents for USD, pence for GBP, etc). Percentage shares use
// shopspring/decimal with largest-remainder rounding so every share set
// sums to exactly 100.000000%.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	ivr_01h2xcejqtf2nbrexx3vqjhp41  // Investor ID
//	cyc_01h2xcejqtf2nbrexx3vqjhp41  // Cycle ID
//	dep_01h455vb4pex5vsknk084sn02q  // Deposit ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package fundpool
