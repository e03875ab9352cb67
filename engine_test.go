package fundpool_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/xraph/fundpool"
	"github.com/xraph/fundpool/cycle"
	"github.com/xraph/fundpool/deposit"
	"github.com/xraph/fundpool/investor"
	"github.com/xraph/fundpool/share"
	"github.com/xraph/fundpool/types"
	"github.com/xraph/fundpool/withdrawal"

	"github.com/xraph/fundpool/store/memory"
)

var testEpoch = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

// newTestEngine returns a started engine on a memory store with a fake clock
// and an open cycle for the epoch month.
func newTestEngine(t *testing.T, opts ...fundpool.Option) (*fundpool.Engine, *clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClockAt(testEpoch)

	opts = append([]fundpool.Option{fundpool.WithClock(clock)}, opts...)
	eng := fundpool.New(memory.New(), opts...)

	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		_ = eng.Stop() //nolint:errcheck
	})

	if _, err := eng.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	return eng, clock
}

var extSeq int

func mustDeposit(t *testing.T, eng *fundpool.Engine, ref string, cents int64) *fundpool.DepositResult {
	t.Helper()
	extSeq++
	result, err := eng.Deposit(context.Background(), fundpool.DepositRequest{
		InvestorReference: ref,
		Amount:            fundpool.USD(cents),
		ExternalReference: fmt.Sprintf("ext-%s-%d", ref, extSeq),
	})
	if err != nil {
		t.Fatalf("Deposit(%s, %d): %v", ref, cents, err)
	}
	return result
}

func percentOf(t *testing.T, eng *fundpool.Engine, c *cycle.Cycle, ref string) decimal.Decimal {
	t.Helper()
	ctx := context.Background()
	ivr, err := eng.GetInvestorByReference(ctx, ref)
	if err != nil {
		t.Fatalf("GetInvestorByReference(%s): %v", ref, err)
	}
	shares, err := eng.ListShares(ctx, c.ID)
	if err != nil {
		t.Fatalf("ListShares: %v", err)
	}
	for _, sh := range shares {
		if sh.InvestorID == ivr.ID {
			return sh.Percent
		}
	}
	t.Fatalf("no share for %s in cycle %s", ref, c.ID)
	return decimal.Zero
}

func TestBootstrapIdempotent(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	first, err := eng.GetOpenCycle(ctx)
	if err != nil {
		t.Fatalf("GetOpenCycle: %v", err)
	}
	if first.Year != 2026 || first.Month != time.March {
		t.Fatalf("open cycle period = %d-%d, want 2026-3", first.Year, first.Month)
	}

	again, err := eng.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("second Bootstrap: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("second Bootstrap opened a new cycle: %s != %s", again.ID, first.ID)
	}
}

func TestDepositValidation(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		req     fundpool.DepositRequest
		wantErr error
	}{
		{
			name: "empty investor reference",
			req: fundpool.DepositRequest{
				Amount:            fundpool.USD(1000),
				ExternalReference: "wire-1",
			},
			wantErr: fundpool.ErrInvalidInput,
		},
		{
			name: "missing external reference",
			req: fundpool.DepositRequest{
				InvestorReference: "alice",
				Amount:            fundpool.USD(1000),
			},
			wantErr: fundpool.ErrMissingReference,
		},
		{
			name: "zero amount",
			req: fundpool.DepositRequest{
				InvestorReference: "alice",
				Amount:            fundpool.USD(0),
				ExternalReference: "wire-1",
			},
			wantErr: fundpool.ErrInvalidAmount,
		},
		{
			name: "negative amount",
			req: fundpool.DepositRequest{
				InvestorReference: "alice",
				Amount:            fundpool.USD(-500),
				ExternalReference: "wire-1",
			},
			wantErr: fundpool.ErrInvalidAmount,
		},
		{
			name: "foreign currency",
			req: fundpool.DepositRequest{
				InvestorReference: "alice",
				Amount:            fundpool.EUR(1000),
				ExternalReference: "wire-1",
			},
			wantErr: fundpool.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.Deposit(ctx, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Deposit error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDepositCreatesInvestorAndShares(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	result := mustDeposit(t, eng, "alice", 500_000)

	ivr, err := eng.GetInvestorByReference(ctx, "alice")
	if err != nil {
		t.Fatalf("investor not created: %v", err)
	}
	if ivr.ID != result.InvestorID {
		t.Fatalf("result investor = %s, stored = %s", result.InvestorID, ivr.ID)
	}
	if !result.SharePercent.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("sole investor share = %s, want 100", result.SharePercent)
	}

	// A second deposit reuses the investor record.
	second := mustDeposit(t, eng, "alice", 100_000)
	if second.InvestorID != ivr.ID {
		t.Fatalf("second deposit created a new investor: %s", second.InvestorID)
	}
	if second.TotalContribution != fundpool.USD(600_000) {
		t.Fatalf("pool total = %v, want $6000.00", second.TotalContribution)
	}
}

func TestSharesProportional(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	mustDeposit(t, eng, "alice", 500_000)
	mustDeposit(t, eng, "bob", 300_000)
	mustDeposit(t, eng, "carol", 200_000)

	c, err := eng.GetOpenCycle(ctx)
	if err != nil {
		t.Fatalf("GetOpenCycle: %v", err)
	}

	want := map[string]string{
		"alice": "50",
		"bob":   "30",
		"carol": "20",
	}
	for ref, pct := range want {
		got := percentOf(t, eng, c, ref)
		if !got.Equal(decimal.RequireFromString(pct)) {
			t.Errorf("share(%s) = %s, want %s", ref, got, pct)
		}
	}
}

func TestSharesSumToHundred(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	// Three equal contributions cannot divide evenly at 6 decimal places;
	// the largest-remainder correction keeps the sum exact.
	mustDeposit(t, eng, "alice", 100_000)
	mustDeposit(t, eng, "bob", 100_000)
	mustDeposit(t, eng, "carol", 100_000)

	c, err := eng.GetOpenCycle(ctx)
	if err != nil {
		t.Fatalf("GetOpenCycle: %v", err)
	}
	shares, err := eng.ListShares(ctx, c.ID)
	if err != nil {
		t.Fatalf("ListShares: %v", err)
	}
	if len(shares) != 3 {
		t.Fatalf("len(shares) = %d, want 3", len(shares))
	}

	sum := decimal.Zero
	for _, sh := range shares {
		sum = sum.Add(sh.Percent)
	}
	if !sum.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("share sum = %s, want exactly 100", sum)
	}
}

func TestRequestWithdrawal(t *testing.T) {
	eng, clock := newTestEngine(t)
	ctx := context.Background()

	result := mustDeposit(t, eng, "alice", 100_000)

	receipt, err := eng.RequestWithdrawal(ctx, fundpool.WithdrawalRequest{
		InvestorID: result.InvestorID,
		Amount:     fundpool.USD(40_000),
	})
	if err != nil {
		t.Fatalf("RequestWithdrawal: %v", err)
	}
	if receipt.Status != withdrawal.StatusPending {
		t.Fatalf("status = %s, want pending", receipt.Status)
	}
	wantExpiry := clock.Now().UTC().Add(7 * 24 * time.Hour)
	if !receipt.NoticeExpiresAt.Equal(wantExpiry) {
		t.Fatalf("notice expires %v, want %v", receipt.NoticeExpiresAt, wantExpiry)
	}

	// A pending withdrawal does not reduce the contribution basis.
	c, err := eng.GetOpenCycle(ctx)
	if err != nil {
		t.Fatalf("GetOpenCycle: %v", err)
	}
	got := percentOf(t, eng, c, "alice")
	if !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("share after pending request = %s, want 100", got)
	}
}

func TestRequestWithdrawalInsufficientBalance(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	result := mustDeposit(t, eng, "alice", 100_000)

	_, err := eng.RequestWithdrawal(ctx, fundpool.WithdrawalRequest{
		InvestorID: result.InvestorID,
		Amount:     fundpool.USD(100_001),
	})
	if !errors.Is(err, fundpool.ErrInsufficientBalance) {
		t.Fatalf("error = %v, want ErrInsufficientBalance", err)
	}
}

func TestApproveWithdrawalAfterNotice(t *testing.T) {
	eng, clock := newTestEngine(t)
	ctx := context.Background()

	alice := mustDeposit(t, eng, "alice", 600_000)
	mustDeposit(t, eng, "bob", 400_000)

	receipt, err := eng.RequestWithdrawal(ctx, fundpool.WithdrawalRequest{
		InvestorID: alice.InvestorID,
		Amount:     fundpool.USD(100_000),
	})
	if err != nil {
		t.Fatalf("RequestWithdrawal: %v", err)
	}

	// Approval during the notice period fails without an override.
	_, err = eng.ResolveWithdrawal(ctx, fundpool.ResolveWithdrawalRequest{
		WithdrawalID: receipt.WithdrawalID,
		Action:       fundpool.ActionApprove,
	})
	if !errors.Is(err, fundpool.ErrNoticePeriodActive) {
		t.Fatalf("early approval error = %v, want ErrNoticePeriodActive", err)
	}

	clock.Advance(7*24*time.Hour + time.Second)

	res, err := eng.ResolveWithdrawal(ctx, fundpool.ResolveWithdrawalRequest{
		WithdrawalID: receipt.WithdrawalID,
		Action:       fundpool.ActionApprove,
	})
	if err != nil {
		t.Fatalf("ResolveWithdrawal: %v", err)
	}
	w := res.Withdrawal
	if w.Status != withdrawal.StatusApproved {
		t.Fatalf("status = %s, want approved", w.Status)
	}
	if res.NetAmount != fundpool.USD(84_000) {
		t.Fatalf("net = %v, want $840.00", res.NetAmount)
	}
	if res.ReinvestedAmount != fundpool.USD(16_000) {
		t.Fatalf("reinvested = %v, want $160.00", res.ReinvestedAmount)
	}
	if sum := res.NetAmount.Add(res.ReinvestedAmount); sum != w.RequestedAmount {
		t.Fatalf("split does not sum: %v + %v != %v", res.NetAmount, res.ReinvestedAmount, w.RequestedAmount)
	}

	// The resolution carries the recomputed share set.
	if len(res.UpdatedShares) != 2 {
		t.Fatalf("len(UpdatedShares) = %d, want 2", len(res.UpdatedShares))
	}
	sum := decimal.Zero
	for _, sh := range res.UpdatedShares {
		sum = sum.Add(sh.Percent)
	}
	if !sum.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("UpdatedShares sum = %s, want 100", sum)
	}

	// The 16% reinvestment landed as a new deposit in the same cycle.
	c, err := eng.GetOpenCycle(ctx)
	if err != nil {
		t.Fatalf("GetOpenCycle: %v", err)
	}
	deposits, err := eng.ListDeposits(ctx, c.ID)
	if err != nil {
		t.Fatalf("ListDeposits: %v", err)
	}
	var reinvest *deposit.Deposit
	for _, d := range deposits {
		if d.Type == deposit.TypeReinvestment {
			reinvest = d
		}
	}
	if reinvest == nil {
		t.Fatal("no reinvestment deposit recorded")
	}
	if reinvest.Amount != fundpool.USD(16_000) {
		t.Fatalf("reinvestment deposit = %v, want $160.00", reinvest.Amount)
	}
	if reinvest.InvestorID != alice.InvestorID {
		t.Fatalf("reinvestment credited to %s, want %s", reinvest.InvestorID, alice.InvestorID)
	}

	// Shares recomputed on the new basis: alice 6000-1000+160 = 5160,
	// bob 4000; total 9160.
	aliceShare := percentOf(t, eng, c, "alice")
	bobShare := percentOf(t, eng, c, "bob")
	if !aliceShare.Add(bobShare).Equal(decimal.NewFromInt(100)) {
		t.Fatalf("shares sum = %s, want 100", aliceShare.Add(bobShare))
	}
	wantAlice := decimal.NewFromInt(516_000).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(916_000)).Round(6)
	if !aliceShare.Equal(wantAlice) {
		t.Fatalf("alice share = %s, want %s", aliceShare, wantAlice)
	}
}

func TestOverrideApproval(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	alice := mustDeposit(t, eng, "alice", 100_000)

	receipt, err := eng.RequestWithdrawal(ctx, fundpool.WithdrawalRequest{
		InvestorID: alice.InvestorID,
		Amount:     fundpool.USD(50_000),
	})
	if err != nil {
		t.Fatalf("RequestWithdrawal: %v", err)
	}

	// Override without a reason is rejected.
	_, err = eng.ResolveWithdrawal(ctx, fundpool.ResolveWithdrawalRequest{
		WithdrawalID: receipt.WithdrawalID,
		Action:       fundpool.ActionApprove,
		Override:     true,
	})
	if !errors.Is(err, fundpool.ErrOverrideNeedsReason) {
		t.Fatalf("error = %v, want ErrOverrideNeedsReason", err)
	}

	res, err := eng.ResolveWithdrawal(ctx, fundpool.ResolveWithdrawalRequest{
		WithdrawalID:   receipt.WithdrawalID,
		Action:         fundpool.ActionApprove,
		Override:       true,
		OverrideReason: "medical emergency",
	})
	if err != nil {
		t.Fatalf("override approval: %v", err)
	}
	w := res.Withdrawal
	if !w.Override || w.OverrideReason != "medical emergency" {
		t.Fatalf("override not recorded: %+v", w)
	}
	if w.Status != withdrawal.StatusApproved {
		t.Fatalf("status = %s, want approved", w.Status)
	}
}

func TestDenyWithdrawal(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	alice := mustDeposit(t, eng, "alice", 100_000)

	receipt, err := eng.RequestWithdrawal(ctx, fundpool.WithdrawalRequest{
		InvestorID: alice.InvestorID,
		Amount:     fundpool.USD(50_000),
	})
	if err != nil {
		t.Fatalf("RequestWithdrawal: %v", err)
	}

	res, err := eng.ResolveWithdrawal(ctx, fundpool.ResolveWithdrawalRequest{
		WithdrawalID: receipt.WithdrawalID,
		Action:       fundpool.ActionDeny,
		Notes:        "cycle closing soon",
	})
	if err != nil {
		t.Fatalf("deny: %v", err)
	}
	w := res.Withdrawal
	if w.Status != withdrawal.StatusDenied {
		t.Fatalf("status = %s, want denied", w.Status)
	}
	if w.ResolvedAt == nil {
		t.Fatal("denied withdrawal has no resolution time")
	}
	if res.UpdatedShares != nil {
		t.Fatalf("denial recomputed shares: %v", res.UpdatedShares)
	}

	// Denial leaves the basis untouched.
	c, err := eng.GetOpenCycle(ctx)
	if err != nil {
		t.Fatalf("GetOpenCycle: %v", err)
	}
	got := percentOf(t, eng, c, "alice")
	if !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("share after denial = %s, want 100", got)
	}

	// Resolution is terminal.
	_, err = eng.ResolveWithdrawal(ctx, fundpool.ResolveWithdrawalRequest{
		WithdrawalID:   receipt.WithdrawalID,
		Action:         fundpool.ActionApprove,
		Override:       true,
		OverrideReason: "changed my mind",
	})
	if !errors.Is(err, fundpool.ErrWithdrawalResolved) {
		t.Fatalf("second resolution error = %v, want ErrWithdrawalResolved", err)
	}
}

func TestSettle(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	alice := mustDeposit(t, eng, "alice", 600_000)
	bob := mustDeposit(t, eng, "bob", 400_000)

	open, err := eng.GetOpenCycle(ctx)
	if err != nil {
		t.Fatalf("GetOpenCycle: %v", err)
	}

	summary, err := eng.Settle(ctx, fundpool.SettleRequest{
		Profit: fundpool.USD(300_000),
	})
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}

	// 64/16/20 of $3000.00.
	if summary.PayoutTotal != fundpool.USD(192_000) {
		t.Errorf("payout = %v, want $1920.00", summary.PayoutTotal)
	}
	if summary.ReinvestmentTotal != fundpool.USD(48_000) {
		t.Errorf("reinvestment = %v, want $480.00", summary.ReinvestmentTotal)
	}
	if summary.PerformanceFeeTotal != fundpool.USD(60_000) {
		t.Errorf("performance fee = %v, want $600.00", summary.PerformanceFeeTotal)
	}
	if summary.ClosedCycleID != open.ID {
		t.Errorf("closed cycle = %s, want %s", summary.ClosedCycleID, open.ID)
	}

	// Per-investor allocation follows the 60/40 share split.
	byInvestor := make(map[string]cycle.Payout, len(summary.PerInvestor))
	for _, p := range summary.PerInvestor {
		byInvestor[p.InvestorID.String()] = p
	}
	if p := byInvestor[alice.InvestorID.String()]; p.Payout != fundpool.USD(115_200) {
		t.Errorf("alice payout = %v, want $1152.00", p.Payout)
	}
	if p := byInvestor[bob.InvestorID.String()]; p.Payout != fundpool.USD(76_800) {
		t.Errorf("bob payout = %v, want $768.00", p.Payout)
	}

	// The closed cycle carries its totals.
	closed, err := eng.GetCycle(ctx, open.ID)
	if err != nil {
		t.Fatalf("GetCycle: %v", err)
	}
	if closed.Status != cycle.StatusClosed {
		t.Fatalf("closed cycle status = %s", closed.Status)
	}
	if closed.SettledAt == nil {
		t.Fatal("closed cycle has no settlement time")
	}

	// The next cycle opened for the following month, seeded with carryover:
	// principal plus reinvestment share.
	next, err := eng.GetOpenCycle(ctx)
	if err != nil {
		t.Fatalf("no open cycle after settlement: %v", err)
	}
	if next.ID == open.ID {
		t.Fatal("settlement did not open a new cycle")
	}
	wantYear, wantMonth := closed.NextPeriod()
	if next.Year != wantYear || next.Month != wantMonth {
		t.Fatalf("next period = %d-%d, want %d-%d", next.Year, next.Month, wantYear, wantMonth)
	}

	seeds, err := eng.ListDeposits(ctx, next.ID)
	if err != nil {
		t.Fatalf("ListDeposits(next): %v", err)
	}
	seedByInvestor := make(map[string]types.Money, len(seeds))
	for _, d := range seeds {
		if d.Type != deposit.TypeCarryover {
			t.Errorf("seed deposit type = %s, want carryover", d.Type)
		}
		seedByInvestor[d.InvestorID.String()] = d.Amount
	}
	// alice: 6000 principal + 60% of $480 reinvestment = 6288.
	if got := seedByInvestor[alice.InvestorID.String()]; got != fundpool.USD(628_800) {
		t.Errorf("alice carryover = %v, want $6288.00", got)
	}
	// bob: 4000 principal + 40% of $480 = 4192.
	if got := seedByInvestor[bob.InvestorID.String()]; got != fundpool.USD(419_200) {
		t.Errorf("bob carryover = %v, want $4192.00", got)
	}

	// Carryover preserves the 60/40 ownership within rounding.
	nextShares, err := eng.ListShares(ctx, next.ID)
	if err != nil {
		t.Fatalf("ListShares(next): %v", err)
	}
	sum := decimal.Zero
	for _, sh := range nextShares {
		sum = sum.Add(sh.Percent)
	}
	if !sum.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("next cycle shares sum = %s, want 100", sum)
	}
}

func TestSettleRejectsNegativeProfit(t *testing.T) {
	eng, _ := newTestEngine(t)

	mustDeposit(t, eng, "alice", 100_000)

	_, err := eng.Settle(context.Background(), fundpool.SettleRequest{
		Profit: fundpool.USD(-1),
	})
	if !errors.Is(err, fundpool.ErrInvalidProfit) {
		t.Fatalf("error = %v, want ErrInvalidProfit", err)
	}
}

func TestDepositRejectedWhileSettling(t *testing.T) {
	store := memory.New()
	clock := clockwork.NewFakeClockAt(testEpoch)
	eng := fundpool.New(store, fundpool.WithClock(clock))

	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		_ = eng.Stop() //nolint:errcheck
	})
	if _, err := eng.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	mustDeposit(t, eng, "alice", 100_000)

	// Flip the cycle to settling behind the engine's back, simulating an
	// interrupted settlement.
	open, err := eng.GetOpenCycle(ctx)
	if err != nil {
		t.Fatalf("GetOpenCycle: %v", err)
	}
	input := cycle.SettlementInput{Profit: fundpool.USD(50_000)}
	if err := store.BeginSettlement(ctx, open.ID, input, open.Revision); err != nil {
		t.Fatalf("BeginSettlement: %v", err)
	}

	_, err = eng.Deposit(ctx, fundpool.DepositRequest{
		InvestorReference: "bob",
		Amount:            fundpool.USD(1000),
		ExternalReference: "wire-2",
	})
	if !errors.Is(err, fundpool.ErrCycleSettling) {
		t.Fatalf("deposit during settling error = %v, want ErrCycleSettling", err)
	}

	// Settle resumes the interrupted run and uses the recorded profit, not
	// the newly supplied one.
	summary, err := eng.Settle(ctx, fundpool.SettleRequest{
		Profit: fundpool.USD(999_999),
	})
	if err != nil {
		t.Fatalf("resumed Settle: %v", err)
	}
	if summary.ProfitTotal != fundpool.USD(50_000) {
		t.Fatalf("resumed profit = %v, want the recorded $500.00", summary.ProfitTotal)
	}
}

func TestSettleWithoutOpenCycle(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	mustDeposit(t, eng, "alice", 100_000)

	if _, err := eng.Settle(ctx, fundpool.SettleRequest{Profit: fundpool.USD(10_000)}); err != nil {
		t.Fatalf("first Settle: %v", err)
	}

	// The next cycle is open with carryover, so settling again works; an
	// engine with no cycles at all refuses.
	empty := fundpool.New(memory.New())
	if err := empty.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		_ = empty.Stop() //nolint:errcheck
	})

	_, err := empty.Settle(ctx, fundpool.SettleRequest{Profit: fundpool.USD(10_000)})
	if !errors.Is(err, fundpool.ErrNoOpenCycle) {
		t.Fatalf("error = %v, want ErrNoOpenCycle", err)
	}
}

func TestZeroProfitSettlement(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	alice := mustDeposit(t, eng, "alice", 250_000)

	summary, err := eng.Settle(ctx, fundpool.SettleRequest{Profit: fundpool.USD(0)})
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if !summary.PayoutTotal.IsZero() || !summary.ReinvestmentTotal.IsZero() || !summary.PerformanceFeeTotal.IsZero() {
		t.Fatalf("zero profit produced non-zero split: %+v", summary)
	}

	// Principal still carries into the next cycle.
	next, err := eng.GetOpenCycle(ctx)
	if err != nil {
		t.Fatalf("GetOpenCycle: %v", err)
	}
	seeds, err := eng.ListDeposits(ctx, next.ID)
	if err != nil {
		t.Fatalf("ListDeposits: %v", err)
	}
	if len(seeds) != 1 {
		t.Fatalf("len(seeds) = %d, want 1", len(seeds))
	}
	if seeds[0].InvestorID != alice.InvestorID || seeds[0].Amount != fundpool.USD(250_000) {
		t.Fatalf("carryover = %v for %s, want $2500.00 for alice", seeds[0].Amount, seeds[0].InvestorID)
	}
}

func TestDecemberRollsIntoJanuary(t *testing.T) {
	store := memory.New()
	clock := clockwork.NewFakeClockAt(time.Date(2026, time.December, 15, 9, 0, 0, 0, time.UTC))

	eng := fundpool.New(store, fundpool.WithClock(clock))
	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		_ = eng.Stop() //nolint:errcheck
	})
	if _, err := eng.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	mustDeposit(t, eng, "alice", 100_000)
	if _, err := eng.Settle(ctx, fundpool.SettleRequest{Profit: fundpool.USD(0)}); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	next, err := eng.GetOpenCycle(ctx)
	if err != nil {
		t.Fatalf("GetOpenCycle: %v", err)
	}
	if next.Year != 2027 || next.Month != time.January {
		t.Fatalf("next period = %d-%d, want 2027-1", next.Year, next.Month)
	}
}

func TestConcurrentEqualDeposits(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	const investors = 8
	var wg sync.WaitGroup
	errs := make(chan error, investors)

	for i := 0; i < investors; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := eng.Deposit(ctx, fundpool.DepositRequest{
				InvestorReference: fmt.Sprintf("investor-%d", n),
				Amount:            fundpool.USD(100_000),
				ExternalReference: fmt.Sprintf("wire-%d", n),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent deposit: %v", err)
		}
	}

	c, err := eng.GetOpenCycle(ctx)
	if err != nil {
		t.Fatalf("GetOpenCycle: %v", err)
	}
	shares, err := eng.ListShares(ctx, c.ID)
	if err != nil {
		t.Fatalf("ListShares: %v", err)
	}
	if len(shares) != investors {
		t.Fatalf("len(shares) = %d, want %d", len(shares), investors)
	}

	each := decimal.RequireFromString("12.5")
	sum := decimal.Zero
	for _, sh := range shares {
		if !sh.Percent.Equal(each) {
			t.Errorf("share = %s, want 12.5", sh.Percent)
		}
		sum = sum.Add(sh.Percent)
	}
	if !sum.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("share sum = %s, want 100", sum)
	}
}

func TestInactiveInvestorRejected(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	alice := mustDeposit(t, eng, "alice", 100_000)

	if err := eng.DeactivateInvestor(ctx, alice.InvestorID); err != nil {
		t.Fatalf("DeactivateInvestor: %v", err)
	}

	_, err := eng.Deposit(ctx, fundpool.DepositRequest{
		InvestorReference: "alice",
		Amount:            fundpool.USD(1000),
		ExternalReference: "wire-late",
	})
	if !errors.Is(err, fundpool.ErrInvestorInactive) {
		t.Fatalf("deposit error = %v, want ErrInvestorInactive", err)
	}

	_, err = eng.RequestWithdrawal(ctx, fundpool.WithdrawalRequest{
		InvestorID: alice.InvestorID,
		Amount:     fundpool.USD(1000),
	})
	if !errors.Is(err, fundpool.ErrInvestorInactive) {
		t.Fatalf("withdrawal error = %v, want ErrInvestorInactive", err)
	}

	// Deactivation does not disturb the existing share set.
	c, err := eng.GetOpenCycle(ctx)
	if err != nil {
		t.Fatalf("GetOpenCycle: %v", err)
	}
	got := percentOf(t, eng, c, "alice")
	if !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("share after deactivation = %s, want 100", got)
	}
}

// blockingStore parks the first GetInvestorByReference call until release
// is closed, keeping the caller inside the gate.
type blockingStore struct {
	*memory.Store
	entered chan struct{}
	release chan struct{}
}

func (s *blockingStore) GetInvestorByReference(ctx context.Context, reference string) (*investor.Investor, error) {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.release
	return s.Store.GetInvestorByReference(ctx, reference)
}

func TestGateTimeoutReportsBusy(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testEpoch)
	st := &blockingStore{
		Store:   memory.New(),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	eng := fundpool.New(st, fundpool.WithClock(clock), fundpool.WithLockTimeout(2*time.Second))
	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		_ = eng.Stop() //nolint:errcheck
	})

	first := make(chan error, 1)
	go func() {
		_, err := eng.Deposit(ctx, fundpool.DepositRequest{
			InvestorReference: "alice",
			Amount:            fundpool.USD(1000),
			ExternalReference: "wire-hold",
		})
		first <- err
	}()
	<-st.entered // alice's deposit now holds the gate inside the store call

	second := make(chan error, 1)
	go func() {
		_, err := eng.Deposit(ctx, fundpool.DepositRequest{
			InvestorReference: "bob",
			Amount:            fundpool.USD(1000),
			ExternalReference: "wire-wait",
		})
		second <- err
	}()

	// Two gate timers are pending on the fake clock: the holder's unfired
	// one and the waiter's. Fire them both.
	clock.BlockUntil(2)
	clock.Advance(2*time.Second + time.Millisecond)

	if err := <-second; !errors.Is(err, fundpool.ErrCycleBusy) {
		t.Fatalf("blocked caller error = %v, want ErrCycleBusy", err)
	}

	// The holder was never bootstrapped a cycle; releasing it surfaces the
	// state error rather than a gate error.
	close(st.release)
	if err := <-first; !errors.Is(err, fundpool.ErrNoOpenCycle) {
		t.Fatalf("gate holder error = %v, want ErrNoOpenCycle", err)
	}
}

// conflictStore fails ApplyDeposit with a revision conflict a fixed number
// of times before delegating.
type conflictStore struct {
	*memory.Store
	mu       sync.Mutex
	failures int
	calls    int
}

func (s *conflictStore) ApplyDeposit(ctx context.Context, dep *deposit.Deposit, shares []*share.Share, expectedRevision int64) error {
	s.mu.Lock()
	s.calls++
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()

	if fail {
		return fundpool.ErrRevisionConflict
	}
	return s.Store.ApplyDeposit(ctx, dep, shares, expectedRevision)
}

func TestRetryAfterRevisionConflict(t *testing.T) {
	st := &conflictStore{Store: memory.New(), failures: 1}
	clock := clockwork.NewFakeClockAt(testEpoch)
	eng := fundpool.New(st, fundpool.WithClock(clock))
	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		_ = eng.Stop() //nolint:errcheck
	})
	if _, err := eng.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	result, err := eng.Deposit(ctx, fundpool.DepositRequest{
		InvestorReference: "alice",
		Amount:            fundpool.USD(100_000),
		ExternalReference: "wire-retry",
	})
	if err != nil {
		t.Fatalf("Deposit after one conflict: %v", err)
	}
	if st.calls != 2 {
		t.Fatalf("ApplyDeposit calls = %d, want 2", st.calls)
	}
	if !result.SharePercent.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("share after retry = %s, want 100", result.SharePercent)
	}
}

func TestRetryExhaustsAfterMaxRetries(t *testing.T) {
	st := &conflictStore{Store: memory.New(), failures: 10}
	clock := clockwork.NewFakeClockAt(testEpoch)
	eng := fundpool.New(st, fundpool.WithClock(clock), fundpool.WithMaxRetries(2))
	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		_ = eng.Stop() //nolint:errcheck
	})
	if _, err := eng.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	_, err := eng.Deposit(ctx, fundpool.DepositRequest{
		InvestorReference: "alice",
		Amount:            fundpool.USD(100_000),
		ExternalReference: "wire-exhaust",
	})
	if !errors.Is(err, fundpool.ErrRevisionConflict) {
		t.Fatalf("exhausted retry error = %v, want ErrRevisionConflict", err)
	}
	if st.calls != 2 {
		t.Fatalf("ApplyDeposit calls = %d, want 2", st.calls)
	}
}
