// Package observability provides a metrics extension for Fundpool that records
// lifecycle event counts via go-utils MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/fundpool/cycle"
	"github.com/xraph/fundpool/deposit"
	"github.com/xraph/fundpool/plugin"
	"github.com/xraph/fundpool/withdrawal"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnInvestorJoined      = (*MetricsExtension)(nil)
	_ plugin.OnDepositRecorded     = (*MetricsExtension)(nil)
	_ plugin.OnWithdrawalRequested = (*MetricsExtension)(nil)
	_ plugin.OnWithdrawalApproved  = (*MetricsExtension)(nil)
	_ plugin.OnWithdrawalDenied    = (*MetricsExtension)(nil)
	_ plugin.OnCycleOpened         = (*MetricsExtension)(nil)
	_ plugin.OnCycleSettling       = (*MetricsExtension)(nil)
	_ plugin.OnCycleSettled        = (*MetricsExtension)(nil)
	_ plugin.OnSharesRecomputed    = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Fundpool plugin to automatically track pool metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Membership metrics
	InvestorsJoined Counter

	// Deposit metrics
	DepositsRecorded Counter
	DepositAmount    Histogram

	// Withdrawal metrics
	WithdrawalsRequested Counter
	WithdrawalsApproved  Counter
	WithdrawalsOverride  Counter
	WithdrawalsDenied    Counter
	WithdrawalNetAmount  Histogram

	// Cycle metrics
	CyclesOpened  Counter
	CyclesSettled Counter
	CycleProfit   Histogram
	CyclePayout   Histogram

	// Share metrics
	SharesRecomputed Counter
	ShareHolders     Histogram

	// Error metrics
	StoreErrors  Counter
	PluginErrors Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Membership metrics
		InvestorsJoined: factory.Counter("fundpool.investor.joined"),

		// Deposit metrics
		DepositsRecorded: factory.Counter("fundpool.deposit.recorded"),
		DepositAmount:    factory.Histogram("fundpool.deposit.amount_cents"),

		// Withdrawal metrics
		WithdrawalsRequested: factory.Counter("fundpool.withdrawal.requested"),
		WithdrawalsApproved:  factory.Counter("fundpool.withdrawal.approved"),
		WithdrawalsOverride:  factory.Counter("fundpool.withdrawal.override_approved"),
		WithdrawalsDenied:    factory.Counter("fundpool.withdrawal.denied"),
		WithdrawalNetAmount:  factory.Histogram("fundpool.withdrawal.net_cents"),

		// Cycle metrics
		CyclesOpened:  factory.Counter("fundpool.cycle.opened"),
		CyclesSettled: factory.Counter("fundpool.cycle.settled"),
		CycleProfit:   factory.Histogram("fundpool.cycle.profit_cents"),
		CyclePayout:   factory.Histogram("fundpool.cycle.payout_cents"),

		// Share metrics
		SharesRecomputed: factory.Counter("fundpool.shares.recomputed"),
		ShareHolders:     factory.Histogram("fundpool.shares.holders"),

		// Error metrics
		StoreErrors:  factory.Counter("fundpool.store.errors"),
		PluginErrors: factory.Counter("fundpool.plugin.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Investor lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvestorJoined implements plugin.OnInvestorJoined.
func (m *MetricsExtension) OnInvestorJoined(_ context.Context, _ interface{}) error {
	m.InvestorsJoined.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Deposit lifecycle hooks
// ──────────────────────────────────────────────────

// OnDepositRecorded implements plugin.OnDepositRecorded.
func (m *MetricsExtension) OnDepositRecorded(_ context.Context, dep interface{}) error {
	m.DepositsRecorded.Inc()
	if d, ok := dep.(*deposit.Deposit); ok {
		m.DepositAmount.Observe(float64(d.Amount.Amount))
	}
	return nil
}

// ──────────────────────────────────────────────────
// Withdrawal lifecycle hooks
// ──────────────────────────────────────────────────

// OnWithdrawalRequested implements plugin.OnWithdrawalRequested.
func (m *MetricsExtension) OnWithdrawalRequested(_ context.Context, _ interface{}) error {
	m.WithdrawalsRequested.Inc()
	return nil
}

// OnWithdrawalApproved implements plugin.OnWithdrawalApproved.
func (m *MetricsExtension) OnWithdrawalApproved(_ context.Context, wd interface{}) error {
	m.WithdrawalsApproved.Inc()
	if w, ok := wd.(*withdrawal.Withdrawal); ok {
		if w.Override {
			m.WithdrawalsOverride.Inc()
		}
		m.WithdrawalNetAmount.Observe(float64(w.NetAmount.Amount))
	}
	return nil
}

// OnWithdrawalDenied implements plugin.OnWithdrawalDenied.
func (m *MetricsExtension) OnWithdrawalDenied(_ context.Context, _ interface{}) error {
	m.WithdrawalsDenied.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Cycle lifecycle hooks
// ──────────────────────────────────────────────────

// OnCycleOpened implements plugin.OnCycleOpened.
func (m *MetricsExtension) OnCycleOpened(_ context.Context, _ interface{}) error {
	m.CyclesOpened.Inc()
	return nil
}

// OnCycleSettling implements plugin.OnCycleSettling.
func (m *MetricsExtension) OnCycleSettling(_ context.Context, _ interface{}) error {
	// Settling is transient; the settled hook records the totals.
	return nil
}

// OnCycleSettled implements plugin.OnCycleSettled.
func (m *MetricsExtension) OnCycleSettled(_ context.Context, c interface{}) error {
	m.CyclesSettled.Inc()
	if cy, ok := c.(*cycle.Cycle); ok {
		m.CycleProfit.Observe(float64(cy.ProfitTotal.Amount))
		m.CyclePayout.Observe(float64(cy.PayoutTotal.Amount))
	}
	return nil
}

// ──────────────────────────────────────────────────
// Share lifecycle hooks
// ──────────────────────────────────────────────────

// OnSharesRecomputed implements plugin.OnSharesRecomputed.
func (m *MetricsExtension) OnSharesRecomputed(_ context.Context, _ string, shares []interface{}) error {
	m.SharesRecomputed.Inc()
	m.ShareHolders.Observe(float64(len(shares)))
	return nil
}
