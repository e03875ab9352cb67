package share

import (
	"github.com/shopspring/decimal"
	"github.com/xraph/fundpool/id"
	"github.com/xraph/fundpool/types"
)

// Share is one investor's ownership slice of a cycle. The full set for a
// cycle is replaced on every recomputation and always sums to exactly
// 100.000000 percent (or is empty when the cycle holds no capital).
type Share struct {
	types.Entity
	ID         id.ShareID    `json:"id"`
	InvestorID id.InvestorID `json:"investor_id"`
	CycleID    id.CycleID    `json:"cycle_id"`
	// Percent is the ownership percentage in [0, 100] at 6 decimal places.
	Percent decimal.Decimal `json:"percent"`
	// Contribution is the net basis the percentage was derived from:
	// deposits minus approved-withdrawal principal.
	Contribution types.Money `json:"contribution"`
}
