// Package share holds the ownership-share model and the pure calculator
// that turns net contributions into percentages summing to exactly 100.
package share

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/xraph/fundpool/deposit"
	"github.com/xraph/fundpool/id"
	"github.com/xraph/fundpool/types"
	"github.com/xraph/fundpool/withdrawal"
)

// Places is the fixed precision of share percentages.
const Places = int32(6)

var hundred = decimal.NewFromInt(100)

// Contribution is one investor's net basis in a cycle, the input to Compute.
type Contribution struct {
	InvestorID id.InvestorID
	Amount     types.Money
}

// Compute derives the share set for a cycle from net contributions.
//
// Each percentage is contribution/total × 100 rounded half-up to 6 decimal
// places. Rounding drift is corrected on the largest contributor so the set
// sums to exactly 100.000000. Zero and negative contributions are skipped;
// a zero total yields an empty set. The result is ordered by descending
// contribution (ties by investor ID) so the correction target is stable.
func Compute(cycleID id.CycleID, contribs []Contribution) []*Share {
	kept := make([]Contribution, 0, len(contribs))
	var total int64
	for _, c := range contribs {
		if c.Amount.IsPositive() {
			kept = append(kept, c)
			total += c.Amount.Amount
		}
	}
	if total == 0 {
		return nil
	}

	sort.Slice(kept, func(a, b int) bool {
		if kept[a].Amount.Amount != kept[b].Amount.Amount {
			return kept[a].Amount.Amount > kept[b].Amount.Amount
		}
		return kept[a].InvestorID.String() < kept[b].InvestorID.String()
	})

	totalDec := decimal.NewFromInt(total)
	shares := make([]*Share, len(kept))
	sum := decimal.Zero

	for i, c := range kept {
		pct := decimal.NewFromInt(c.Amount.Amount).
			Mul(hundred).
			Div(totalDec).
			Round(Places)
		shares[i] = &Share{
			Entity:       types.NewEntity(),
			ID:           id.NewShareID(),
			InvestorID:   c.InvestorID,
			CycleID:      cycleID,
			Percent:      pct,
			Contribution: c.Amount,
		}
		sum = sum.Add(pct)
	}

	// Absorb rounding drift into the largest holder.
	if drift := hundred.Sub(sum); !drift.IsZero() {
		shares[0].Percent = shares[0].Percent.Add(drift)
	}

	return shares
}

// ContributionBasis nets approved-withdrawal principal out of the cycle's
// deposits per investor. Pending and denied withdrawals do not reduce the
// basis. Investors whose basis nets to zero or below drop out of the result.
func ContributionBasis(deposits []*deposit.Deposit, withdrawals []*withdrawal.Withdrawal) []Contribution {
	if len(deposits) == 0 {
		return nil
	}

	currency := deposits[0].Amount.Currency
	basis := make(map[string]int64)
	order := make([]id.InvestorID, 0, len(deposits))

	for _, d := range deposits {
		key := d.InvestorID.String()
		if _, seen := basis[key]; !seen {
			order = append(order, d.InvestorID)
		}
		basis[key] += d.Amount.Amount
	}

	for _, w := range withdrawals {
		if w.Status != withdrawal.StatusApproved {
			continue
		}
		key := w.InvestorID.String()
		if _, seen := basis[key]; !seen {
			continue
		}
		basis[key] -= w.RequestedAmount.Amount
	}

	contribs := make([]Contribution, 0, len(order))
	for _, ivr := range order {
		net := basis[ivr.String()]
		if net <= 0 {
			continue
		}
		contribs = append(contribs, Contribution{
			InvestorID: ivr,
			Amount:     types.Money{Amount: net, Currency: currency},
		})
	}

	return contribs
}

// BasisFor returns one investor's net basis from the cycle's deposits and
// withdrawals, zero if they have none.
func BasisFor(investorID id.InvestorID, deposits []*deposit.Deposit, withdrawals []*withdrawal.Withdrawal, currency string) types.Money {
	total := types.Zero(currency)
	for _, d := range deposits {
		if d.InvestorID == investorID {
			total = total.Add(d.Amount)
		}
	}
	for _, w := range withdrawals {
		if w.InvestorID == investorID && w.Status == withdrawal.StatusApproved {
			total = total.Subtract(w.RequestedAmount)
		}
	}
	return total
}
