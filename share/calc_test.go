package share_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xraph/fundpool/deposit"
	"github.com/xraph/fundpool/id"
	"github.com/xraph/fundpool/share"
	"github.com/xraph/fundpool/types"
	"github.com/xraph/fundpool/withdrawal"
)

func TestComputeTwoInvestors(t *testing.T) {
	cycleID := id.NewCycleID()
	a := id.NewInvestorID()
	b := id.NewInvestorID()

	shares := share.Compute(cycleID, []share.Contribution{
		{InvestorID: a, Amount: types.USD(15000)}, // $150
		{InvestorID: b, Amount: types.USD(20000)}, // $200
	})

	if len(shares) != 2 {
		t.Fatalf("expected 2 shares, got %d", len(shares))
	}

	// Ordered by descending contribution: b first.
	assertPercent(t, shares[0], b, "57.142857")
	assertPercent(t, shares[1], a, "42.857143")
	assertSumIs100(t, shares)
}

func TestComputeAfterTopUp(t *testing.T) {
	cycleID := id.NewCycleID()
	a := id.NewInvestorID()
	b := id.NewInvestorID()

	// a deposits another $100 on top of the 150/200 split.
	shares := share.Compute(cycleID, []share.Contribution{
		{InvestorID: a, Amount: types.USD(25000)},
		{InvestorID: b, Amount: types.USD(20000)},
	})

	if len(shares) != 2 {
		t.Fatalf("expected 2 shares, got %d", len(shares))
	}

	assertPercent(t, shares[0], a, "55.555556")
	assertPercent(t, shares[1], b, "44.444444")
	assertSumIs100(t, shares)
}

func TestComputeDriftCorrection(t *testing.T) {
	cycleID := id.NewCycleID()
	investors := []id.InvestorID{id.NewInvestorID(), id.NewInvestorID(), id.NewInvestorID()}

	// Equal thirds round to 33.333333 each; the missing 0.000001 must land
	// on the first (largest) holder.
	contribs := make([]share.Contribution, len(investors))
	for i, ivr := range investors {
		contribs[i] = share.Contribution{InvestorID: ivr, Amount: types.USD(10000)}
	}

	shares := share.Compute(cycleID, contribs)
	if len(shares) != 3 {
		t.Fatalf("expected 3 shares, got %d", len(shares))
	}

	if shares[0].Percent.String() != "33.333334" {
		t.Errorf("largest holder: got %s, want 33.333334", shares[0].Percent)
	}
	for _, s := range shares[1:] {
		if s.Percent.String() != "33.333333" {
			t.Errorf("got %s, want 33.333333", s.Percent)
		}
	}
	assertSumIs100(t, shares)
}

func TestComputeSumProperty(t *testing.T) {
	cycleID := id.NewCycleID()

	tests := []struct {
		name    string
		amounts []int64
	}{
		{"sevenths", []int64{100, 200, 400}},
		{"primes", []int64{3, 5, 7, 11, 13}},
		{"lopsided", []int64{1, 999999}},
		{"many equal", []int64{100, 100, 100, 100, 100, 100, 100}},
		{"single", []int64{12345}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			contribs := make([]share.Contribution, len(tt.amounts))
			for i, amt := range tt.amounts {
				contribs[i] = share.Contribution{
					InvestorID: id.NewInvestorID(),
					Amount:     types.USD(amt),
				}
			}

			shares := share.Compute(cycleID, contribs)
			if len(shares) != len(tt.amounts) {
				t.Fatalf("expected %d shares, got %d", len(tt.amounts), len(shares))
			}
			assertSumIs100(t, shares)

			for _, s := range shares {
				if s.Percent.Exponent() < -6 {
					t.Errorf("percent %s has more than 6 decimal places", s.Percent)
				}
			}
		})
	}
}

func TestComputeSkipsNonPositive(t *testing.T) {
	cycleID := id.NewCycleID()
	a := id.NewInvestorID()

	shares := share.Compute(cycleID, []share.Contribution{
		{InvestorID: a, Amount: types.USD(10000)},
		{InvestorID: id.NewInvestorID(), Amount: types.USD(0)},
		{InvestorID: id.NewInvestorID(), Amount: types.USD(-500)},
	})

	if len(shares) != 1 {
		t.Fatalf("expected 1 share, got %d", len(shares))
	}
	assertPercent(t, shares[0], a, "100")
}

func TestComputeZeroTotal(t *testing.T) {
	shares := share.Compute(id.NewCycleID(), []share.Contribution{
		{InvestorID: id.NewInvestorID(), Amount: types.USD(0)},
	})
	if len(shares) != 0 {
		t.Errorf("expected empty share set, got %d", len(shares))
	}

	if got := share.Compute(id.NewCycleID(), nil); len(got) != 0 {
		t.Errorf("expected empty share set for nil input, got %d", len(got))
	}
}

func TestContributionBasis(t *testing.T) {
	cycleID := id.NewCycleID()
	a := id.NewInvestorID()
	b := id.NewInvestorID()

	deposits := []*deposit.Deposit{
		{ID: id.NewDepositID(), InvestorID: a, CycleID: cycleID, Amount: types.USD(15000), Type: deposit.TypeInitial},
		{ID: id.NewDepositID(), InvestorID: b, CycleID: cycleID, Amount: types.USD(20000), Type: deposit.TypeInitial},
		{ID: id.NewDepositID(), InvestorID: a, CycleID: cycleID, Amount: types.USD(5000), Type: deposit.TypeReinvestment},
	}
	withdrawals := []*withdrawal.Withdrawal{
		{ID: id.NewWithdrawalID(), InvestorID: a, CycleID: cycleID, RequestedAmount: types.USD(10000), Status: withdrawal.StatusApproved},
		{ID: id.NewWithdrawalID(), InvestorID: b, CycleID: cycleID, RequestedAmount: types.USD(9999), Status: withdrawal.StatusPending},
		{ID: id.NewWithdrawalID(), InvestorID: b, CycleID: cycleID, RequestedAmount: types.USD(9999), Status: withdrawal.StatusDenied},
	}

	contribs := share.ContributionBasis(deposits, withdrawals)
	if len(contribs) != 2 {
		t.Fatalf("expected 2 contributions, got %d", len(contribs))
	}

	// Order follows first-deposit order: a then b.
	if contribs[0].InvestorID != a || contribs[0].Amount.Amount != 10000 {
		t.Errorf("a: got %v %v", contribs[0].InvestorID, contribs[0].Amount)
	}
	if contribs[1].InvestorID != b || contribs[1].Amount.Amount != 20000 {
		t.Errorf("b: got %v %v", contribs[1].InvestorID, contribs[1].Amount)
	}
}

func TestContributionBasisFullWithdrawal(t *testing.T) {
	cycleID := id.NewCycleID()
	a := id.NewInvestorID()
	b := id.NewInvestorID()

	deposits := []*deposit.Deposit{
		{ID: id.NewDepositID(), InvestorID: a, CycleID: cycleID, Amount: types.USD(10000), Type: deposit.TypeInitial},
		{ID: id.NewDepositID(), InvestorID: b, CycleID: cycleID, Amount: types.USD(10000), Type: deposit.TypeInitial},
	}
	withdrawals := []*withdrawal.Withdrawal{
		{ID: id.NewWithdrawalID(), InvestorID: a, CycleID: cycleID, RequestedAmount: types.USD(10000), Status: withdrawal.StatusApproved},
	}

	contribs := share.ContributionBasis(deposits, withdrawals)
	if len(contribs) != 1 {
		t.Fatalf("expected 1 contribution, got %d", len(contribs))
	}
	if contribs[0].InvestorID != b {
		t.Errorf("expected only b to remain, got %v", contribs[0].InvestorID)
	}

	shares := share.Compute(cycleID, contribs)
	if len(shares) != 1 {
		t.Fatalf("expected 1 share, got %d", len(shares))
	}
	assertPercent(t, shares[0], b, "100")
}

func TestBasisFor(t *testing.T) {
	cycleID := id.NewCycleID()
	a := id.NewInvestorID()

	deposits := []*deposit.Deposit{
		{ID: id.NewDepositID(), InvestorID: a, CycleID: cycleID, Amount: types.USD(15000)},
		{ID: id.NewDepositID(), InvestorID: id.NewInvestorID(), CycleID: cycleID, Amount: types.USD(99999)},
	}
	withdrawals := []*withdrawal.Withdrawal{
		{ID: id.NewWithdrawalID(), InvestorID: a, CycleID: cycleID, RequestedAmount: types.USD(5000), Status: withdrawal.StatusApproved},
	}

	got := share.BasisFor(a, deposits, withdrawals, "usd")
	if !got.Equal(types.USD(10000)) {
		t.Errorf("got %v, want $100.00", got)
	}

	none := share.BasisFor(id.NewInvestorID(), deposits, withdrawals, "usd")
	if !none.IsZero() {
		t.Errorf("expected zero basis for stranger, got %v", none)
	}
}

func assertPercent(t *testing.T, s *share.Share, ivr id.InvestorID, want string) {
	t.Helper()
	if s.InvestorID != ivr {
		t.Errorf("investor: got %v, want %v", s.InvestorID, ivr)
	}
	if !s.Percent.Equal(decimal.RequireFromString(want)) {
		t.Errorf("percent: got %s, want %s", s.Percent, want)
	}
}

func assertSumIs100(t *testing.T, shares []*share.Share) {
	t.Helper()
	sum := decimal.Zero
	for _, s := range shares {
		sum = sum.Add(s.Percent)
	}
	if !sum.Equal(decimal.NewFromInt(100)) {
		t.Errorf("share set sums to %s, want 100", sum)
	}
}
