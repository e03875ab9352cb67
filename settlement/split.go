// Package settlement holds the pure profit-split math for closing a cycle.
package settlement

import (
	"github.com/shopspring/decimal"

	"github.com/xraph/fundpool/share"
	"github.com/xraph/fundpool/types"
)

// Profit split percentages. Payout goes to investors, reinvestment seeds the
// next cycle, and the remainder is the manager's performance fee.
const (
	PayoutPercent       int64 = 64
	ReinvestmentPercent int64 = 16
	FeePercent          int64 = 20
)

// Split is the three-way division of a cycle's profit. The parts always sum
// exactly to the profit: payout and reinvestment are floored and the fee
// absorbs the remainder.
type Split struct {
	Profit       types.Money
	Payout       types.Money
	Reinvestment types.Money
	Fee          types.Money
}

// SplitProfit divides profit 64/16/20 on integer cents.
func SplitProfit(profit types.Money) Split {
	payout, _ := profit.SplitPercent(PayoutPercent)
	reinvestment, _ := profit.SplitPercent(ReinvestmentPercent)
	fee := profit.Subtract(payout).Subtract(reinvestment)

	return Split{
		Profit:       profit,
		Payout:       payout,
		Reinvestment: reinvestment,
		Fee:          fee,
	}
}

// Allocation is one investor's cut of a settlement. The fee share is
// recorded for audit only; it is never paid out.
type Allocation struct {
	Share        *share.Share
	Payout       types.Money
	Reinvestment types.Money
	FeeShare     types.Money
}

// Allocate distributes each component of the split across the share set by
// share percentage, using largest-remainder cent distribution so every
// component's per-investor amounts sum exactly to its total. The allocations
// follow the share set's order.
func Allocate(s Split, shares []*share.Share) []Allocation {
	if len(shares) == 0 {
		return nil
	}

	pcts := sharePercents(shares)
	payouts := s.Payout.Allocate(pcts)
	reinvestments := s.Reinvestment.Allocate(pcts)
	fees := s.Fee.Allocate(pcts)

	allocs := make([]Allocation, len(shares))
	for i, sh := range shares {
		allocs[i] = Allocation{
			Share:        sh,
			Payout:       payouts[i],
			Reinvestment: reinvestments[i],
			FeeShare:     fees[i],
		}
	}

	return allocs
}

func sharePercents(shares []*share.Share) []decimal.Decimal {
	pcts := make([]decimal.Decimal, len(shares))
	for i, sh := range shares {
		pcts[i] = sh.Percent
	}
	return pcts
}
