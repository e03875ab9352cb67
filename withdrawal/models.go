package withdrawal

import (
	"time"

	"github.com/xraph/fundpool/id"
	"github.com/xraph/fundpool/types"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
)

// ReinvestPercent is the mandatory cut of every approved withdrawal that
// stays in the pool as a reinvestment deposit. The investor receives the
// remaining NetPercent.
const (
	ReinvestPercent int64 = 16
	NetPercent      int64 = 84
)

// DefaultNoticePeriod is how long a withdrawal request must age before it
// can be approved without an override.
const DefaultNoticePeriod = 7 * 24 * time.Hour

// Withdrawal is a request to take capital out of the pool. It is resolved
// exactly once: approved (after the notice period, or early with an
// override) or denied.
type Withdrawal struct {
	types.Entity
	ID              id.WithdrawalID `json:"id"`
	InvestorID      id.InvestorID   `json:"investor_id"`
	CycleID         id.CycleID      `json:"cycle_id"`
	RequestedAmount types.Money     `json:"requested_amount"`
	Status          Status          `json:"status"`
	NoticeExpiresAt time.Time       `json:"notice_expires_at"`

	// Populated on approval: the mandatory split of the requested amount.
	// NetAmount + ReinvestedAmount == RequestedAmount, cent for cent.
	NetAmount        types.Money `json:"net_amount"`
	ReinvestedAmount types.Money `json:"reinvested_amount"`

	Override       bool       `json:"override,omitempty"`
	OverrideReason string     `json:"override_reason,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// IsPending reports whether the withdrawal is still awaiting resolution.
func (w *Withdrawal) IsPending() bool { return w.Status == StatusPending }

// NoticeActive reports whether the notice period is still running at now.
func (w *Withdrawal) NoticeActive(now time.Time) bool {
	return now.Before(w.NoticeExpiresAt)
}

// Split returns the mandatory reinvestment cut and the net amount paid to
// the investor for the requested amount. The reinvestment is floored so the
// two parts always sum exactly to the request.
func Split(requested types.Money) (reinvested, net types.Money) {
	reinvested, net = requested.SplitPercent(ReinvestPercent)
	return reinvested, net
}

type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
