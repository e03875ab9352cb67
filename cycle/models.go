package cycle

import (
	"fmt"
	"time"

	"github.com/xraph/fundpool/id"
	"github.com/xraph/fundpool/types"
)

type Status string

const (
	StatusOpen     Status = "open"
	StatusSettling Status = "settling"
	StatusClosed   Status = "closed"
)

// Cycle is one monthly settlement period. At most one cycle is open at a
// time; the status machine is open → settling → closed with no way back.
type Cycle struct {
	types.Entity
	ID       id.CycleID `json:"id"`
	Year     int        `json:"year"`
	Month    time.Month `json:"month"`
	Status   Status     `json:"status"`
	Revision int64      `json:"revision"` // Optimistic-concurrency counter for the cycle aggregate

	// Settlement totals, populated when the cycle closes. ProfitTotal is
	// recorded when settlement begins so an interrupted run can resume.
	ProfitTotal         types.Money `json:"profit_total"`
	PayoutTotal         types.Money `json:"payout_total"`
	ReinvestmentTotal   types.Money `json:"reinvestment_total"`
	PerformanceFeeTotal types.Money `json:"performance_fee_total"`
	Payouts             []Payout    `json:"payouts,omitempty"`

	OpenedAt  time.Time  `json:"opened_at"`
	SettledAt *time.Time `json:"settled_at,omitempty"`
	Notes     string     `json:"notes,omitempty"`
}

// Payout is the per-investor settlement summary kept on the closed cycle.
// The fee share is recorded for audit only; it is never paid to the investor.
type Payout struct {
	InvestorID   id.InvestorID `json:"investor_id"`
	Percent      string        `json:"percent"` // 6-dp share percentage at settlement
	Payout       types.Money   `json:"payout"`
	Reinvestment types.Money   `json:"reinvestment"`
	FeeShare     types.Money   `json:"fee_share"`
}

// IsOpen reports whether the cycle accepts deposits and withdrawal approvals.
func (c *Cycle) IsOpen() bool { return c.Status == StatusOpen }

// IsSettling reports whether settlement has begun but not completed.
func (c *Cycle) IsSettling() bool { return c.Status == StatusSettling }

// Label returns the human-readable period, e.g. "2026-03".
func (c *Cycle) Label() string {
	return fmt.Sprintf("%04d-%02d", c.Year, int(c.Month))
}

// NextPeriod returns the year and month of the calendar month after this
// cycle, rolling over December into January.
func (c *Cycle) NextPeriod() (int, time.Month) {
	if c.Month == time.December {
		return c.Year + 1, time.January
	}
	return c.Year, c.Month + 1
}

// SettlementInput is what the settlement run declares when it flips a cycle
// to settling. It is persisted on the cycle so a crashed run can resume.
type SettlementInput struct {
	Profit types.Money
	Notes  string
}

type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
