// Package audithook bridges Fundpool lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

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
	_ plugin.OnCycleOpened         = (*Extension)(nil)
	_ plugin.OnCycleSettling       = (*Extension)(nil)
	_ plugin.OnCycleSettled        = (*Extension)(nil)
	_ plugin.OnSharesRecomputed    = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly — callers inject
// the concrete *chronicle.Chronicle at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Fundpool lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Investor lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvestorJoined implements plugin.OnInvestorJoined.
func (e *Extension) OnInvestorJoined(ctx context.Context, ivr interface{}) error {
	var resourceID, reference string
	if i, ok := ivr.(*investor.Investor); ok {
		resourceID = i.ID.String()
		reference = i.Reference
	}
	return e.record(ctx, ActionInvestorJoined, SeverityInfo, OutcomeSuccess,
		ResourceInvestor, resourceID, CategoryMembership, nil,
		"reference", reference,
	)
}

// ──────────────────────────────────────────────────
// Deposit lifecycle hooks
// ──────────────────────────────────────────────────

// OnDepositRecorded implements plugin.OnDepositRecorded.
func (e *Extension) OnDepositRecorded(ctx context.Context, dep interface{}) error {
	var resourceID string
	kv := []any{}
	if d, ok := dep.(*deposit.Deposit); ok {
		resourceID = d.ID.String()
		kv = append(kv,
			"investor_id", d.InvestorID.String(),
			"cycle_id", d.CycleID.String(),
			"amount_cents", d.Amount.Amount,
			"currency", d.Amount.Currency,
			"type", string(d.Type),
		)
	}
	return e.record(ctx, ActionDepositRecorded, SeverityInfo, OutcomeSuccess,
		ResourceDeposit, resourceID, CategoryCapital, nil, kv...)
}

// ──────────────────────────────────────────────────
// Withdrawal lifecycle hooks
// ──────────────────────────────────────────────────

// OnWithdrawalRequested implements plugin.OnWithdrawalRequested.
func (e *Extension) OnWithdrawalRequested(ctx context.Context, wd interface{}) error {
	var resourceID string
	kv := []any{}
	if w, ok := wd.(*withdrawal.Withdrawal); ok {
		resourceID = w.ID.String()
		kv = append(kv,
			"investor_id", w.InvestorID.String(),
			"cycle_id", w.CycleID.String(),
			"requested_cents", w.RequestedAmount.Amount,
			"notice_expires_at", w.NoticeExpiresAt,
		)
	}
	return e.record(ctx, ActionWithdrawalRequested, SeverityInfo, OutcomeSuccess,
		ResourceWithdrawal, resourceID, CategoryCapital, nil, kv...)
}

// OnWithdrawalApproved implements plugin.OnWithdrawalApproved.
// Override approvals bypass the notice period and are audited at warning
// severity with the operator's stated reason.
func (e *Extension) OnWithdrawalApproved(ctx context.Context, wd interface{}) error {
	action := ActionWithdrawalApproved
	severity := SeverityInfo

	var resourceID string
	kv := []any{}
	if w, ok := wd.(*withdrawal.Withdrawal); ok {
		resourceID = w.ID.String()
		kv = append(kv,
			"investor_id", w.InvestorID.String(),
			"cycle_id", w.CycleID.String(),
			"requested_cents", w.RequestedAmount.Amount,
			"net_cents", w.NetAmount.Amount,
			"reinvested_cents", w.ReinvestedAmount.Amount,
		)
		if w.Override {
			action = ActionWithdrawalOverrideApproved
			severity = SeverityWarning
			kv = append(kv, "override_reason", w.OverrideReason)
		}
	}
	return e.record(ctx, action, severity, OutcomeSuccess,
		ResourceWithdrawal, resourceID, CategoryCapital, nil, kv...)
}

// OnWithdrawalDenied implements plugin.OnWithdrawalDenied.
func (e *Extension) OnWithdrawalDenied(ctx context.Context, wd interface{}) error {
	var resourceID string
	kv := []any{}
	if w, ok := wd.(*withdrawal.Withdrawal); ok {
		resourceID = w.ID.String()
		kv = append(kv,
			"investor_id", w.InvestorID.String(),
			"requested_cents", w.RequestedAmount.Amount,
			"notes", w.Notes,
		)
	}
	return e.record(ctx, ActionWithdrawalDenied, SeverityInfo, OutcomeSuccess,
		ResourceWithdrawal, resourceID, CategoryCapital, nil, kv...)
}

// ──────────────────────────────────────────────────
// Cycle lifecycle hooks
// ──────────────────────────────────────────────────

// OnCycleOpened implements plugin.OnCycleOpened.
func (e *Extension) OnCycleOpened(ctx context.Context, c interface{}) error {
	var resourceID, period string
	if cy, ok := c.(*cycle.Cycle); ok {
		resourceID = cy.ID.String()
		period = cy.Label()
	}
	return e.record(ctx, ActionCycleOpened, SeverityInfo, OutcomeSuccess,
		ResourceCycle, resourceID, CategorySettlement, nil,
		"period", period,
	)
}

// OnCycleSettling implements plugin.OnCycleSettling.
func (e *Extension) OnCycleSettling(ctx context.Context, c interface{}) error {
	var resourceID string
	kv := []any{}
	if cy, ok := c.(*cycle.Cycle); ok {
		resourceID = cy.ID.String()
		kv = append(kv,
			"period", cy.Label(),
			"profit_cents", cy.ProfitTotal.Amount,
		)
	}
	return e.record(ctx, ActionCycleSettling, SeverityInfo, OutcomeSuccess,
		ResourceCycle, resourceID, CategorySettlement, nil, kv...)
}

// OnCycleSettled implements plugin.OnCycleSettled.
func (e *Extension) OnCycleSettled(ctx context.Context, c interface{}) error {
	var resourceID string
	kv := []any{}
	if cy, ok := c.(*cycle.Cycle); ok {
		resourceID = cy.ID.String()
		kv = append(kv,
			"period", cy.Label(),
			"profit_cents", cy.ProfitTotal.Amount,
			"payout_cents", cy.PayoutTotal.Amount,
			"reinvestment_cents", cy.ReinvestmentTotal.Amount,
			"fee_cents", cy.PerformanceFeeTotal.Amount,
			"investors", len(cy.Payouts),
		)
	}
	return e.record(ctx, ActionCycleSettled, SeverityInfo, OutcomeSuccess,
		ResourceCycle, resourceID, CategorySettlement, nil, kv...)
}

// ──────────────────────────────────────────────────
// Share lifecycle hooks
// ──────────────────────────────────────────────────

// OnSharesRecomputed implements plugin.OnSharesRecomputed.
func (e *Extension) OnSharesRecomputed(ctx context.Context, cycleID string, shares []interface{}) error {
	return e.record(ctx, ActionSharesRecomputed, SeverityInfo, OutcomeSuccess,
		ResourceShare, cycleID, CategoryCapital, nil,
		"cycle_id", cycleID,
		"holders", len(shares),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
