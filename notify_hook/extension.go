// Package notifyhook turns Fundpool lifecycle events into human-readable
// notifications.
//
// Like audit_hook, it defines a local Dispatcher interface instead of
// importing a delivery backend. Callers inject a DispatcherFunc that
// bridges to email, chat, or webhook delivery at wiring time.
package notifyhook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/fundpool/cycle"
	"github.com/xraph/fundpool/deposit"
	"github.com/xraph/fundpool/investor"
	"github.com/xraph/fundpool/plugin"
	"github.com/xraph/fundpool/withdrawal"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnInvestorJoined      = (*Extension)(nil)
	_ plugin.OnDepositRecorded     = (*Extension)(nil)
	_ plugin.OnWithdrawalRequested = (*Extension)(nil)
	_ plugin.OnWithdrawalApproved  = (*Extension)(nil)
	_ plugin.OnWithdrawalDenied    = (*Extension)(nil)
	_ plugin.OnCycleSettled        = (*Extension)(nil)
)

// Notification topics.
const (
	TopicMembership = "membership"
	TopicCapital    = "capital"
	TopicSettlement = "settlement"
)

// Notification is a rendered message ready for delivery.
type Notification struct {
	Topic    string         `json:"topic"`
	Subject  string         `json:"subject"`
	Body     string         `json:"body"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Dispatcher delivers rendered notifications. Implementations decide the
// channel (email, chat, webhook) and are responsible for their own retries.
type Dispatcher interface {
	Dispatch(ctx context.Context, n *Notification) error
}

// DispatcherFunc is an adapter to use a plain function as a Dispatcher.
type DispatcherFunc func(ctx context.Context, n *Notification) error

// Dispatch implements Dispatcher.
func (f DispatcherFunc) Dispatch(ctx context.Context, n *Notification) error {
	return f(ctx, n)
}

// Extension renders Fundpool lifecycle events into notifications and hands
// them to a Dispatcher. Delivery failures are logged, never propagated.
type Extension struct {
	dispatcher Dispatcher
	topics     map[string]bool // nil = all topics
	logger     *slog.Logger
}

// New creates an Extension that sends notifications through the provided Dispatcher.
func New(d Dispatcher, opts ...Option) *Extension {
	e := &Extension{
		dispatcher: d,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "notify-hook" }

// OnInvestorJoined implements plugin.OnInvestorJoined.
func (e *Extension) OnInvestorJoined(ctx context.Context, ivr interface{}) error {
	i, ok := ivr.(*investor.Investor)
	if !ok {
		return nil
	}
	return e.send(ctx, &Notification{
		Topic:   TopicMembership,
		Subject: "New investor joined",
		Body:    fmt.Sprintf("Investor %s joined the pool.", i.Reference),
		Metadata: map[string]any{
			"investor_id": i.ID.String(),
			"reference":   i.Reference,
		},
	})
}

// OnDepositRecorded implements plugin.OnDepositRecorded.
func (e *Extension) OnDepositRecorded(ctx context.Context, dep interface{}) error {
	d, ok := dep.(*deposit.Deposit)
	if !ok {
		return nil
	}
	return e.send(ctx, &Notification{
		Topic:   TopicCapital,
		Subject: "Deposit recorded",
		Body:    fmt.Sprintf("Deposit of %s recorded for investor %s.", d.Amount.String(), d.InvestorID),
		Metadata: map[string]any{
			"deposit_id":   d.ID.String(),
			"investor_id":  d.InvestorID.String(),
			"cycle_id":     d.CycleID.String(),
			"amount_cents": d.Amount.Amount,
			"type":         string(d.Type),
		},
	})
}

// OnWithdrawalRequested implements plugin.OnWithdrawalRequested.
func (e *Extension) OnWithdrawalRequested(ctx context.Context, wd interface{}) error {
	w, ok := wd.(*withdrawal.Withdrawal)
	if !ok {
		return nil
	}
	return e.send(ctx, &Notification{
		Topic:   TopicCapital,
		Subject: "Withdrawal requested",
		Body: fmt.Sprintf("Withdrawal of %s requested by investor %s; notice expires %s.",
			w.RequestedAmount.String(), w.InvestorID, w.NoticeExpiresAt.Format("2006-01-02")),
		Metadata: map[string]any{
			"withdrawal_id":     w.ID.String(),
			"investor_id":       w.InvestorID.String(),
			"requested_cents":   w.RequestedAmount.Amount,
			"notice_expires_at": w.NoticeExpiresAt,
		},
	})
}

// OnWithdrawalApproved implements plugin.OnWithdrawalApproved.
func (e *Extension) OnWithdrawalApproved(ctx context.Context, wd interface{}) error {
	w, ok := wd.(*withdrawal.Withdrawal)
	if !ok {
		return nil
	}
	subject := "Withdrawal approved"
	body := fmt.Sprintf("Withdrawal of %s approved: %s paid out, %s reinvested.",
		w.RequestedAmount.String(), w.NetAmount.String(), w.ReinvestedAmount.String())
	if w.Override {
		subject = "Withdrawal approved by override"
		body = fmt.Sprintf("%s Notice period overridden: %s.", body, w.OverrideReason)
	}
	return e.send(ctx, &Notification{
		Topic:   TopicCapital,
		Subject: subject,
		Body:    body,
		Metadata: map[string]any{
			"withdrawal_id":    w.ID.String(),
			"investor_id":      w.InvestorID.String(),
			"net_cents":        w.NetAmount.Amount,
			"reinvested_cents": w.ReinvestedAmount.Amount,
			"override":         w.Override,
		},
	})
}

// OnWithdrawalDenied implements plugin.OnWithdrawalDenied.
func (e *Extension) OnWithdrawalDenied(ctx context.Context, wd interface{}) error {
	w, ok := wd.(*withdrawal.Withdrawal)
	if !ok {
		return nil
	}
	body := fmt.Sprintf("Withdrawal of %s denied.", w.RequestedAmount.String())
	if w.Notes != "" {
		body = fmt.Sprintf("Withdrawal of %s denied: %s.", w.RequestedAmount.String(), w.Notes)
	}
	return e.send(ctx, &Notification{
		Topic:   TopicCapital,
		Subject: "Withdrawal denied",
		Body:    body,
		Metadata: map[string]any{
			"withdrawal_id": w.ID.String(),
			"investor_id":   w.InvestorID.String(),
		},
	})
}

// OnCycleSettled implements plugin.OnCycleSettled.
func (e *Extension) OnCycleSettled(ctx context.Context, c interface{}) error {
	cy, ok := c.(*cycle.Cycle)
	if !ok {
		return nil
	}
	return e.send(ctx, &Notification{
		Topic:   TopicSettlement,
		Subject: fmt.Sprintf("Cycle %s settled", cy.Label()),
		Body: fmt.Sprintf("Cycle %s settled with %s profit: %s paid out, %s reinvested, %s performance fee across %d investors.",
			cy.Label(), cy.ProfitTotal.String(), cy.PayoutTotal.String(),
			cy.ReinvestmentTotal.String(), cy.PerformanceFeeTotal.String(), len(cy.Payouts)),
		Metadata: map[string]any{
			"cycle_id":     cy.ID.String(),
			"period":       cy.Label(),
			"profit_cents": cy.ProfitTotal.Amount,
			"investors":    len(cy.Payouts),
		},
	})
}

// send delivers a notification if its topic is enabled. Dispatcher failures
// are logged and swallowed so delivery problems never block the ledger.
func (e *Extension) send(ctx context.Context, n *Notification) error {
	if e.topics != nil && !e.topics[n.Topic] {
		return nil
	}
	if err := e.dispatcher.Dispatch(ctx, n); err != nil {
		e.logger.Warn("notify_hook: failed to dispatch notification",
			"topic", n.Topic,
			"subject", n.Subject,
			"error", err,
		)
	}
	return nil
}
