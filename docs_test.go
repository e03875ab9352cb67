package fundpool_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/fundpool"
	"github.com/xraph/fundpool/store/memory"
)

// TestDocumentationExamples verifies that the examples in the package
// documentation compile and run against the memory store.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (memory for demo, use PostgreSQL in production)
		store := memory.New()

		eng := fundpool.New(store,
			fundpool.WithLogger(slog.Default()),
			fundpool.WithCurrency("usd"),
			fundpool.WithNoticePeriod(7*24*time.Hour),
		)

		ctx := context.Background()
		if err := eng.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer eng.Stop() //nolint:errcheck

		// Open the first cycle
		c, err := eng.Bootstrap(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if c == nil {
			t.Fatal("expected an open cycle")
		}

		// Record a deposit; the investor is created on first contact
		result, err := eng.Deposit(ctx, fundpool.DepositRequest{
			InvestorReference: "acct-1042",
			Amount:            fundpool.USD(100_000),
			ExternalReference: "wire-8841",
		})
		if err != nil {
			t.Fatal(err)
		}
		if !result.SharePercent.Equal(decimal.NewFromInt(100)) {
			t.Fatalf("sole investor share = %s, want 100", result.SharePercent)
		}

		// Request a withdrawal; nothing moves until it is resolved
		receipt, err := eng.RequestWithdrawal(ctx, fundpool.WithdrawalRequest{
			InvestorID: result.InvestorID,
			Amount:     fundpool.USD(25_000),
		})
		if err != nil {
			t.Fatal(err)
		}
		if receipt.NoticeExpiresAt.IsZero() {
			t.Fatal("expected a notice expiry")
		}

		// Settle the month: 64% payout, 16% reinvestment, 20% fee
		summary, err := eng.Settle(ctx, fundpool.SettleRequest{
			Profit: fundpool.USD(300_000),
		})
		if err != nil {
			t.Fatal(err)
		}
		if summary.PayoutTotal != fundpool.USD(192_000) {
			t.Fatalf("payout = %v, want $1920.00", summary.PayoutTotal)
		}
		if summary.ReinvestmentTotal != fundpool.USD(48_000) {
			t.Fatalf("reinvestment = %v, want $480.00", summary.ReinvestmentTotal)
		}
		if summary.PerformanceFeeTotal != fundpool.USD(60_000) {
			t.Fatalf("fee = %v, want $600.00", summary.PerformanceFeeTotal)
		}
	})
}
