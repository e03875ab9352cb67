package settlement_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xraph/fundpool/id"
	"github.com/xraph/fundpool/settlement"
	"github.com/xraph/fundpool/share"
	"github.com/xraph/fundpool/types"
)

func TestSplitProfit(t *testing.T) {
	tests := []struct {
		name         string
		profit       types.Money
		payout       types.Money
		reinvestment types.Money
		fee          types.Money
	}{
		{"$3000 profit", types.USD(300000), types.USD(192000), types.USD(48000), types.USD(60000)},
		{"$1.00", types.USD(100), types.USD(64), types.USD(16), types.USD(20)},
		{"$0.01 all fee", types.USD(1), types.USD(0), types.USD(0), types.USD(1)},
		{"$0.07 rounds to fee", types.USD(7), types.USD(4), types.USD(1), types.USD(2)},
		{"zero profit", types.USD(0), types.USD(0), types.USD(0), types.USD(0)},
		{"odd cents", types.USD(99999), types.USD(63999), types.USD(15999), types.USD(20001)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := settlement.SplitProfit(tt.profit)
			if !s.Payout.Equal(tt.payout) {
				t.Errorf("payout: got %v, want %v", s.Payout, tt.payout)
			}
			if !s.Reinvestment.Equal(tt.reinvestment) {
				t.Errorf("reinvestment: got %v, want %v", s.Reinvestment, tt.reinvestment)
			}
			if !s.Fee.Equal(tt.fee) {
				t.Errorf("fee: got %v, want %v", s.Fee, tt.fee)
			}

			sum := s.Payout.Add(s.Reinvestment).Add(s.Fee)
			if !sum.Equal(tt.profit) {
				t.Errorf("parts sum to %v, want %v", sum, tt.profit)
			}
		})
	}
}

func TestSplitProfitExactSumProperty(t *testing.T) {
	for amount := int64(0); amount < 1000; amount++ {
		s := settlement.SplitProfit(types.USD(amount))
		sum := s.Payout.Amount + s.Reinvestment.Amount + s.Fee.Amount
		if sum != amount {
			t.Fatalf("amount %d: parts sum to %d", amount, sum)
		}
		if s.Fee.IsNegative() {
			t.Fatalf("amount %d: negative fee %v", amount, s.Fee)
		}
	}
}

func TestAllocate(t *testing.T) {
	cycleID := id.NewCycleID()
	shares := share.Compute(cycleID, []share.Contribution{
		{InvestorID: id.NewInvestorID(), Amount: types.USD(15000)},
		{InvestorID: id.NewInvestorID(), Amount: types.USD(20000)},
	})

	s := settlement.SplitProfit(types.USD(300000))
	allocs := settlement.Allocate(s, shares)

	if len(allocs) != 2 {
		t.Fatalf("expected 2 allocations, got %d", len(allocs))
	}

	var payoutSum, reinvestSum, feeSum int64
	for _, a := range allocs {
		payoutSum += a.Payout.Amount
		reinvestSum += a.Reinvestment.Amount
		feeSum += a.FeeShare.Amount
	}
	if payoutSum != s.Payout.Amount {
		t.Errorf("payouts sum to %d, want %d", payoutSum, s.Payout.Amount)
	}
	if reinvestSum != s.Reinvestment.Amount {
		t.Errorf("reinvestments sum to %d, want %d", reinvestSum, s.Reinvestment.Amount)
	}
	if feeSum != s.Fee.Amount {
		t.Errorf("fee shares sum to %d, want %d", feeSum, s.Fee.Amount)
	}

	// The leftover cent of the $1920.00 payout lands on the larger
	// fractional remainder, which here is the smaller holder.
	if got := allocs[0].Payout; !got.Equal(types.USD(109714)) {
		t.Errorf("larger holder payout: got %v, want $1097.14", got)
	}
	if got := allocs[1].Payout; !got.Equal(types.USD(82286)) {
		t.Errorf("smaller holder payout: got %v, want $822.86", got)
	}
}

func TestAllocateAwkwardShares(t *testing.T) {
	cycleID := id.NewCycleID()
	amounts := []int64{300, 500, 700, 1100, 1300}

	contribs := make([]share.Contribution, len(amounts))
	for i, amt := range amounts {
		contribs[i] = share.Contribution{InvestorID: id.NewInvestorID(), Amount: types.USD(amt)}
	}
	shares := share.Compute(cycleID, contribs)

	for _, profit := range []int64{1, 99, 101, 12345, 999999} {
		s := settlement.SplitProfit(types.USD(profit))
		allocs := settlement.Allocate(s, shares)

		var payoutSum int64
		for _, a := range allocs {
			payoutSum += a.Payout.Amount
			if a.Payout.IsNegative() || a.Reinvestment.IsNegative() || a.FeeShare.IsNegative() {
				t.Fatalf("profit %d: negative allocation %+v", profit, a)
			}
		}
		if payoutSum != s.Payout.Amount {
			t.Errorf("profit %d: payouts sum to %d, want %d", profit, payoutSum, s.Payout.Amount)
		}
	}
}

func TestAllocateEmptyShares(t *testing.T) {
	s := settlement.SplitProfit(types.USD(100))
	if got := settlement.Allocate(s, nil); got != nil {
		t.Errorf("expected nil allocations for empty share set, got %v", got)
	}
}

func TestAllocateSingleHolder(t *testing.T) {
	shares := []*share.Share{{
		ID:           id.NewShareID(),
		InvestorID:   id.NewInvestorID(),
		CycleID:      id.NewCycleID(),
		Percent:      decimal.NewFromInt(100),
		Contribution: types.USD(10000),
	}}

	s := settlement.SplitProfit(types.USD(333))
	allocs := settlement.Allocate(s, shares)
	if len(allocs) != 1 {
		t.Fatalf("expected 1 allocation, got %d", len(allocs))
	}
	if !allocs[0].Payout.Equal(s.Payout) {
		t.Errorf("payout: got %v, want %v", allocs[0].Payout, s.Payout)
	}
	if !allocs[0].FeeShare.Equal(s.Fee) {
		t.Errorf("fee share: got %v, want %v", allocs[0].FeeShare, s.Fee)
	}
}
