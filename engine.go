package fundpool

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/xraph/fundpool/cycle"
	"github.com/xraph/fundpool/deposit"
	"github.com/xraph/fundpool/id"
	"github.com/xraph/fundpool/investor"
	"github.com/xraph/fundpool/plugin"
	"github.com/xraph/fundpool/settlement"
	"github.com/xraph/fundpool/share"
	"github.com/xraph/fundpool/store"
	"github.com/xraph/fundpool/types"
	"github.com/xraph/fundpool/withdrawal"
)

// Engine is the pooled-capital ledger engine. All mutating operations are
// serialized through an in-process gate and committed as single store
// transactions guarded by the cycle revision, so the cycle aggregate
// (deposits, withdrawals, shares) never tears.
type Engine struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	clock   clockwork.Clock

	// gate serializes mutating operations within this process. Capacity 1;
	// acquisition is bounded by lockTimeout rather than queueing forever.
	gate chan struct{}

	// Background event dispatch
	eventBuffer chan Event
	stopChan    chan struct{}
	wg          sync.WaitGroup

	// Configuration
	currency     string
	noticePeriod time.Duration
	lockTimeout  time.Duration
	maxRetries   int
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:        s,
		plugins:      plugin.NewRegistry(),
		logger:       slog.Default(),
		clock:        clockwork.NewRealClock(),
		gate:         make(chan struct{}, 1),
		eventBuffer:  make(chan Event, 1024),
		stopChan:     make(chan struct{}),
		currency:     "usd",
		noticePeriod: withdrawal.DefaultNoticePeriod,
		lockTimeout:  5 * time.Second,
		maxRetries:   3,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithCurrency sets the single pool currency (default "usd").
func WithCurrency(currency string) Option {
	return func(e *Engine) {
		e.currency = strings.ToLower(currency)
	}
}

// WithNoticePeriod sets the withdrawal notice period (default 7 days).
func WithNoticePeriod(d time.Duration) Option {
	return func(e *Engine) {
		e.noticePeriod = d
	}
}

// WithLockTimeout bounds how long a mutating call waits for the in-process
// gate before failing with ErrCycleBusy (default 5s).
func WithLockTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.lockTimeout = d
	}
}

// WithMaxRetries sets how many times a revision or serialization conflict
// is retried before it is surfaced (default 3).
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		e.maxRetries = n
	}
}

// WithClock sets the clock. Tests use a fake clock to advance the
// withdrawal notice period without sleeping.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// Start runs migrations, initializes plugins and begins the event worker.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.wg.Add(1)
	go e.eventWorker(ctx)

	e.logger.Info("fundpool started",
		"currency", e.currency,
		"notice_period", e.noticePeriod,
		"lock_timeout", e.lockTimeout,
	)

	return nil
}

// Stop drains the event buffer and shuts down the Engine.
func (e *Engine) Stop() error {
	close(e.stopChan)
	e.wg.Wait()

	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// ──────────────────────────────────────────────────
// Events
// ──────────────────────────────────────────────────

// Event kinds emitted after a transaction commits.
const (
	EventInvestorJoined      = "investor.joined"
	EventDepositRecorded     = "deposit.recorded"
	EventWithdrawalRequested = "withdrawal.requested"
	EventWithdrawalApproved  = "withdrawal.approved"
	EventWithdrawalDenied    = "withdrawal.denied"
	EventCycleOpened         = "cycle.opened"
	EventCycleSettling       = "cycle.settling"
	EventCycleSettled        = "cycle.settled"
	EventSharesRecomputed    = "shares.recomputed"
)

// Event is a post-commit notification handed to the plugin registry by the
// background worker. Payload is the committed entity.
type Event struct {
	Kind    string
	At      time.Time
	Payload interface{}
}

// SharesRecomputed is the payload of a shares.recomputed event.
type SharesRecomputed struct {
	CycleID id.CycleID
	Shares  []*share.Share
}

// emit queues an event for post-commit dispatch. Dispatch is best-effort:
// a full buffer drops the event with a warning, never blocking or rolling
// back the committed transaction.
func (e *Engine) emit(kind string, payload interface{}) {
	ev := Event{Kind: kind, At: e.clock.Now().UTC(), Payload: payload}

	select {
	case e.eventBuffer <- ev:
	default:
		e.logger.Warn("event buffer full, dropping event", "kind", kind)
	}
}

// eventWorker drains the event buffer and dispatches to plugins.
func (e *Engine) eventWorker(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-e.stopChan:
			// Drain what is already queued before exiting.
			for {
				select {
				case ev := <-e.eventBuffer:
					e.dispatch(ctx, ev)
				default:
					return
				}
			}

		case ev := <-e.eventBuffer:
			e.dispatch(ctx, ev)
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventInvestorJoined:
		e.plugins.EmitInvestorJoined(ctx, ev.Payload)
	case EventDepositRecorded:
		e.plugins.EmitDepositRecorded(ctx, ev.Payload)
	case EventWithdrawalRequested:
		e.plugins.EmitWithdrawalRequested(ctx, ev.Payload)
	case EventWithdrawalApproved:
		e.plugins.EmitWithdrawalApproved(ctx, ev.Payload)
	case EventWithdrawalDenied:
		e.plugins.EmitWithdrawalDenied(ctx, ev.Payload)
	case EventCycleOpened:
		e.plugins.EmitCycleOpened(ctx, ev.Payload)
	case EventCycleSettling:
		e.plugins.EmitCycleSettling(ctx, ev.Payload)
	case EventCycleSettled:
		e.plugins.EmitCycleSettled(ctx, ev.Payload)
	case EventSharesRecomputed:
		if sr, ok := ev.Payload.(SharesRecomputed); ok {
			payload := make([]interface{}, len(sr.Shares))
			for i, sh := range sr.Shares {
				payload[i] = sh
			}
			e.plugins.EmitSharesRecomputed(ctx, sr.CycleID.String(), payload)
		}
	default:
		e.logger.Warn("unknown event kind", "kind", ev.Kind)
	}
}

// ──────────────────────────────────────────────────
// Bootstrap
// ──────────────────────────────────────────────────

// Bootstrap opens the first cycle for the current calendar month when no
// open cycle exists. Idempotent: an existing open cycle is returned as-is.
func (e *Engine) Bootstrap(ctx context.Context) (*cycle.Cycle, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if existing, err := e.store.GetOpenCycle(ctx); err == nil {
		return existing, nil
	}

	now := e.clock.Now().UTC()
	c := &cycle.Cycle{
		Entity:              types.NewEntityAt(now),
		ID:                  id.NewCycleID(),
		Year:                now.Year(),
		Month:               now.Month(),
		Status:              cycle.StatusOpen,
		ProfitTotal:         types.Zero(e.currency),
		PayoutTotal:         types.Zero(e.currency),
		ReinvestmentTotal:   types.Zero(e.currency),
		PerformanceFeeTotal: types.Zero(e.currency),
		OpenedAt:            now,
	}

	if err := e.store.CreateCycle(ctx, c); err != nil {
		// A concurrent bootstrap may have won the race.
		if errors.Is(err, ErrCycleExists) {
			return e.store.GetOpenCycle(ctx)
		}
		return nil, err
	}

	e.logger.Info("cycle opened", "cycle", c.ID, "period", c.Label())
	e.emit(EventCycleOpened, c)

	return c, nil
}

// ──────────────────────────────────────────────────
// Deposits
// ──────────────────────────────────────────────────

// DepositRequest is an externally funded contribution to the open cycle.
// ExternalReference identifies the already-verified funding transaction.
type DepositRequest struct {
	InvestorReference string
	Amount            types.Money
	ExternalReference string
}

// DepositResult reports the committed deposit and the investor's share
// position after recomputation.
type DepositResult struct {
	DepositID         id.DepositID
	CycleID           id.CycleID
	InvestorID        id.InvestorID
	SharePercent      decimal.Decimal
	Contribution      types.Money
	TotalContribution types.Money
}

// Deposit records a contribution into the open cycle, creating the investor
// on their first deposit, and recomputes the cycle's share set atomically
// with the deposit insert.
func (e *Engine) Deposit(ctx context.Context, req DepositRequest) (*DepositResult, error) {
	if req.InvestorReference == "" {
		return nil, ValidationError{Field: "investor_reference", Message: "must not be empty"}
	}
	if req.ExternalReference == "" {
		return nil, ErrMissingReference
	}
	amount, err := e.poolAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	release, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	ivr, joined, err := e.findOrCreateInvestor(ctx, req.InvestorReference)
	if err != nil {
		return nil, err
	}
	if !ivr.IsActive() {
		return nil, ErrInvestorInactive
	}

	var (
		dep    *deposit.Deposit
		shares []*share.Share
		result *DepositResult
	)

	err = e.withRetry(ctx, func() error {
		c, err := e.openCycle(ctx)
		if err != nil {
			return err
		}

		deposits, err := e.store.ListDeposits(ctx, c.ID)
		if err != nil {
			return err
		}
		withdrawals, err := e.store.ListWithdrawals(ctx, c.ID, withdrawal.ListOpts{})
		if err != nil {
			return err
		}

		now := e.clock.Now().UTC()
		dep = &deposit.Deposit{
			Entity:            types.NewEntityAt(now),
			ID:                id.NewDepositID(),
			InvestorID:        ivr.ID,
			CycleID:           c.ID,
			Amount:            amount,
			Type:              deposit.TypeInitial,
			ExternalReference: req.ExternalReference,
		}

		contribs := share.ContributionBasis(append(deposits, dep), withdrawals)
		shares = share.Compute(c.ID, contribs)

		if err := e.store.ApplyDeposit(ctx, dep, shares, c.Revision); err != nil {
			return err
		}

		result = &DepositResult{
			DepositID:         dep.ID,
			CycleID:           c.ID,
			InvestorID:        ivr.ID,
			TotalContribution: totalContribution(contribs, e.currency),
		}
		for _, sh := range shares {
			if sh.InvestorID == ivr.ID {
				result.SharePercent = sh.Percent
				result.Contribution = sh.Contribution
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("deposit recorded",
		"deposit", dep.ID,
		"investor", ivr.ID,
		"amount", dep.Amount,
	)

	if joined {
		e.emit(EventInvestorJoined, ivr)
	}
	e.emit(EventDepositRecorded, dep)
	e.emit(EventSharesRecomputed, SharesRecomputed{CycleID: dep.CycleID, Shares: shares})

	return result, nil
}

// findOrCreateInvestor resolves the external reference, creating an active
// investor record on first contact.
func (e *Engine) findOrCreateInvestor(ctx context.Context, reference string) (*investor.Investor, bool, error) {
	ivr, err := e.store.GetInvestorByReference(ctx, reference)
	if err == nil {
		return ivr, false, nil
	}
	if !IsNotFound(err) {
		return nil, false, err
	}

	now := e.clock.Now().UTC()
	ivr = &investor.Investor{
		Entity:    types.NewEntityAt(now),
		ID:        id.NewInvestorID(),
		Reference: reference,
		Status:    investor.StatusActive,
		JoinedAt:  now,
	}

	if err := e.store.CreateInvestor(ctx, ivr); err != nil {
		// Lost a creation race; the winner's record is authoritative.
		if existing, getErr := e.store.GetInvestorByReference(ctx, reference); getErr == nil {
			return existing, false, nil
		}
		return nil, false, err
	}

	e.logger.Info("investor joined", "investor", ivr.ID)
	return ivr, true, nil
}

// ──────────────────────────────────────────────────
// Withdrawals
// ──────────────────────────────────────────────────

// WithdrawalRequest asks to take capital out of the pool.
type WithdrawalRequest struct {
	InvestorID id.InvestorID
	Amount     types.Money
}

// WithdrawalReceipt acknowledges a filed withdrawal request.
type WithdrawalReceipt struct {
	WithdrawalID    id.WithdrawalID
	Status          withdrawal.Status
	NoticeExpiresAt time.Time
}

// RequestWithdrawal files a withdrawal request against the open cycle. The
// request starts its notice period immediately; nothing moves until it is
// resolved.
func (e *Engine) RequestWithdrawal(ctx context.Context, req WithdrawalRequest) (*WithdrawalReceipt, error) {
	amount, err := e.poolAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	release, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	ivr, err := e.store.GetInvestor(ctx, req.InvestorID)
	if err != nil {
		return nil, err
	}
	if !ivr.IsActive() {
		return nil, ErrInvestorInactive
	}

	c, err := e.openCycle(ctx)
	if err != nil {
		return nil, err
	}

	// Early feedback only; the approval transaction re-checks the basis
	// authoritatively.
	basis, err := e.basisFor(ctx, c.ID, ivr.ID)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(basis) {
		return nil, ErrInsufficientBalance
	}

	now := e.clock.Now().UTC()
	w := &withdrawal.Withdrawal{
		Entity:           types.NewEntityAt(now),
		ID:               id.NewWithdrawalID(),
		InvestorID:       ivr.ID,
		CycleID:          c.ID,
		RequestedAmount:  amount,
		Status:           withdrawal.StatusPending,
		NoticeExpiresAt:  now.Add(e.noticePeriod),
		NetAmount:        types.Zero(e.currency),
		ReinvestedAmount: types.Zero(e.currency),
	}

	if err := e.store.CreateWithdrawal(ctx, w); err != nil {
		return nil, err
	}

	e.logger.Info("withdrawal requested",
		"withdrawal", w.ID,
		"investor", ivr.ID,
		"amount", amount,
		"notice_expires_at", w.NoticeExpiresAt,
	)
	e.emit(EventWithdrawalRequested, w)

	return &WithdrawalReceipt{
		WithdrawalID:    w.ID,
		Status:          w.Status,
		NoticeExpiresAt: w.NoticeExpiresAt,
	}, nil
}

// ResolveAction is the administrator's decision on a pending withdrawal.
type ResolveAction string

const (
	ActionApprove ResolveAction = "approve"
	ActionDeny    ResolveAction = "deny"
)

// ResolveWithdrawalRequest resolves a pending withdrawal. Override approves
// before the notice period expires and requires a reason.
type ResolveWithdrawalRequest struct {
	WithdrawalID   id.WithdrawalID
	Action         ResolveAction
	Notes          string
	Override       bool
	OverrideReason string
}

// WithdrawalResolution reports a resolved withdrawal. Approvals carry the
// 84/16 split amounts and the share set recomputed on the post-approval
// basis. Denials leave shares untouched, so UpdatedShares is nil.
type WithdrawalResolution struct {
	Withdrawal       *withdrawal.Withdrawal
	NetAmount        types.Money
	ReinvestedAmount types.Money
	UpdatedShares    []*share.Share
}

// ResolveWithdrawal approves or denies a pending withdrawal. Approval
// applies the mandatory 16% reinvestment split, inserts the reinvestment
// deposit and recomputes shares in one transaction. Denial flips status
// only. A second resolution attempt fails with ErrWithdrawalResolved.
func (e *Engine) ResolveWithdrawal(ctx context.Context, req ResolveWithdrawalRequest) (*WithdrawalResolution, error) {
	switch req.Action {
	case ActionApprove, ActionDeny:
	default:
		return nil, ValidationError{Field: "action", Message: "must be approve or deny"}
	}
	if req.Override && strings.TrimSpace(req.OverrideReason) == "" {
		return nil, ErrOverrideNeedsReason
	}

	release, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	w, err := e.store.GetWithdrawal(ctx, req.WithdrawalID)
	if err != nil {
		return nil, err
	}
	if !w.IsPending() {
		return nil, ErrWithdrawalResolved
	}

	if req.Action == ActionDeny {
		return e.denyWithdrawal(ctx, w, req.Notes)
	}
	return e.approveWithdrawal(ctx, w, req)
}

func (e *Engine) denyWithdrawal(ctx context.Context, w *withdrawal.Withdrawal, notes string) (*WithdrawalResolution, error) {
	now := e.clock.Now().UTC()
	w.Status = withdrawal.StatusDenied
	w.Notes = notes
	w.ResolvedAt = &now
	w.TouchAt(now)

	if err := e.store.DenyWithdrawal(ctx, w); err != nil {
		return nil, err
	}

	e.logger.Info("withdrawal denied", "withdrawal", w.ID, "investor", w.InvestorID)
	e.emit(EventWithdrawalDenied, w)

	return &WithdrawalResolution{Withdrawal: w}, nil
}

func (e *Engine) approveWithdrawal(ctx context.Context, w *withdrawal.Withdrawal, req ResolveWithdrawalRequest) (*WithdrawalResolution, error) {
	now := e.clock.Now().UTC()

	if w.NoticeActive(now) {
		if !req.Override {
			return nil, ErrNoticePeriodActive
		}
		e.logger.Warn("withdrawal approved before notice expiry",
			"withdrawal", w.ID,
			"investor", w.InvestorID,
			"notice_expires_at", w.NoticeExpiresAt,
			"reason", req.OverrideReason,
		)
	}

	reinvested, net := withdrawal.Split(w.RequestedAmount)

	var (
		reinvest *deposit.Deposit
		shares   []*share.Share
	)

	err := e.withRetry(ctx, func() error {
		c, err := e.store.GetCycle(ctx, w.CycleID)
		if err != nil {
			return err
		}
		switch c.Status {
		case cycle.StatusSettling:
			return ErrCycleSettling
		case cycle.StatusClosed:
			return ErrCycleClosed
		}

		deposits, err := e.store.ListDeposits(ctx, c.ID)
		if err != nil {
			return err
		}
		withdrawals, err := e.store.ListWithdrawals(ctx, c.ID, withdrawal.ListOpts{})
		if err != nil {
			return err
		}

		// Authoritative basis check inside the transaction boundary.
		basis := share.BasisFor(w.InvestorID, deposits, withdrawals, e.currency)
		if w.RequestedAmount.GreaterThan(basis) {
			return ErrInsufficientBalance
		}

		w.Status = withdrawal.StatusApproved
		w.NetAmount = net
		w.ReinvestedAmount = reinvested
		w.Override = req.Override
		w.OverrideReason = req.OverrideReason
		w.Notes = req.Notes
		w.ResolvedAt = &now
		w.TouchAt(now)

		reinvest = &deposit.Deposit{
			Entity:     types.NewEntityAt(now),
			ID:         id.NewDepositID(),
			InvestorID: w.InvestorID,
			CycleID:    c.ID,
			Amount:     reinvested,
			Type:       deposit.TypeReinvestment,
		}

		// Recompute shares as the post-commit world will look: this
		// withdrawal approved, its reinvestment deposited.
		next := make([]*withdrawal.Withdrawal, 0, len(withdrawals))
		for _, existing := range withdrawals {
			if existing.ID == w.ID {
				continue
			}
			next = append(next, existing)
		}
		next = append(next, w)

		contribs := share.ContributionBasis(append(deposits, reinvest), next)
		shares = share.Compute(c.ID, contribs)

		return e.store.ApproveWithdrawal(ctx, w, reinvest, shares, c.Revision)
	})
	if err != nil {
		// Leave the entity pending for the caller on failure.
		w.Status = withdrawal.StatusPending
		return nil, err
	}

	e.logger.Info("withdrawal approved",
		"withdrawal", w.ID,
		"investor", w.InvestorID,
		"net", w.NetAmount,
		"reinvested", w.ReinvestedAmount,
		"override", w.Override,
	)
	e.emit(EventWithdrawalApproved, w)
	e.emit(EventDepositRecorded, reinvest)
	e.emit(EventSharesRecomputed, SharesRecomputed{CycleID: w.CycleID, Shares: shares})

	return &WithdrawalResolution{
		Withdrawal:       w,
		NetAmount:        w.NetAmount,
		ReinvestedAmount: w.ReinvestedAmount,
		UpdatedShares:    shares,
	}, nil
}

// ──────────────────────────────────────────────────
// Settlement
// ──────────────────────────────────────────────────

// SettleRequest declares the open cycle's profit for settlement.
type SettleRequest struct {
	Profit types.Money
	Notes  string
}

// SettlementResult reports a completed settlement.
type SettlementResult struct {
	ClosedCycleID       id.CycleID
	NewCycleID          id.CycleID
	ProfitTotal         types.Money
	PayoutTotal         types.Money
	ReinvestmentTotal   types.Money
	PerformanceFeeTotal types.Money
	PerInvestor         []cycle.Payout
}

// Settle closes the open cycle: splits the declared profit 64/16/20 into
// payout, reinvestment and performance fee, allocates the payout and
// reinvestment per investor by share, opens the next calendar month's cycle
// and seeds it with each investor's carryover (un-withdrawn principal plus
// reinvestment share).
//
// If a previous settlement was interrupted between begin and complete, the
// cycle is still settling; calling Settle again resumes it using the profit
// recorded when settlement began.
func (e *Engine) Settle(ctx context.Context, req SettleRequest) (*SettlementResult, error) {
	profit, err := e.poolAmount(req.Profit)
	if err != nil {
		return nil, err
	}
	if profit.IsNegative() {
		return nil, ErrInvalidProfit
	}

	release, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	c, resumed, err := e.beginSettlement(ctx, profit, req.Notes)
	if err != nil {
		return nil, err
	}
	if resumed {
		profit = c.ProfitTotal
		e.logger.Warn("resuming interrupted settlement",
			"cycle", c.ID,
			"profit", profit,
		)
	}
	e.emit(EventCycleSettling, c)

	// The cycle is settling: deposits and approvals fail fast from here,
	// so these reads see the final state of the cycle.
	deposits, err := e.store.ListDeposits(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	withdrawals, err := e.store.ListWithdrawals(ctx, c.ID, withdrawal.ListOpts{})
	if err != nil {
		return nil, err
	}
	shares, err := e.store.ListShares(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	split := settlement.SplitProfit(profit)
	allocs := settlement.Allocate(split, shares)

	now := e.clock.Now().UTC()
	nextYear, nextMonth := c.NextPeriod()
	next := &cycle.Cycle{
		Entity:              types.NewEntityAt(now),
		ID:                  id.NewCycleID(),
		Year:                nextYear,
		Month:               nextMonth,
		Status:              cycle.StatusOpen,
		ProfitTotal:         types.Zero(e.currency),
		PayoutTotal:         types.Zero(e.currency),
		ReinvestmentTotal:   types.Zero(e.currency),
		PerformanceFeeTotal: types.Zero(e.currency),
		OpenedAt:            now,
	}

	payouts := make([]cycle.Payout, 0, len(allocs))
	seeds := make([]*deposit.Deposit, 0, len(allocs))
	seedContribs := make([]share.Contribution, 0, len(allocs))

	for _, alloc := range allocs {
		payouts = append(payouts, cycle.Payout{
			InvestorID:   alloc.Share.InvestorID,
			Percent:      alloc.Share.Percent.StringFixed(share.Places),
			Payout:       alloc.Payout,
			Reinvestment: alloc.Reinvestment,
			FeeShare:     alloc.FeeShare,
		})

		principal := share.BasisFor(alloc.Share.InvestorID, deposits, withdrawals, e.currency)
		carryover := principal.Add(alloc.Reinvestment)
		if !carryover.IsPositive() {
			continue
		}

		seed := &deposit.Deposit{
			Entity:     types.NewEntityAt(now),
			ID:         id.NewDepositID(),
			InvestorID: alloc.Share.InvestorID,
			CycleID:    next.ID,
			Amount:     carryover,
			Type:       deposit.TypeCarryover,
		}
		seeds = append(seeds, seed)
		seedContribs = append(seedContribs, share.Contribution{
			InvestorID: alloc.Share.InvestorID,
			Amount:     carryover,
		})
	}

	nextShares := share.Compute(next.ID, seedContribs)

	closed := c
	closed.Status = cycle.StatusClosed
	closed.ProfitTotal = profit
	closed.PayoutTotal = split.Payout
	closed.ReinvestmentTotal = split.Reinvestment
	closed.PerformanceFeeTotal = split.Fee
	closed.Payouts = payouts
	closed.SettledAt = &now
	closed.TouchAt(now)

	if err := e.store.CompleteSettlement(ctx, closed, next, seeds, nextShares); err != nil {
		return nil, err
	}

	e.logger.Info("cycle settled",
		"cycle", closed.ID,
		"period", closed.Label(),
		"profit", profit,
		"payout", split.Payout,
		"reinvestment", split.Reinvestment,
		"performance_fee", split.Fee,
		"next_cycle", next.ID,
	)

	e.emit(EventCycleSettled, closed)
	e.emit(EventCycleOpened, next)
	e.emit(EventSharesRecomputed, SharesRecomputed{CycleID: next.ID, Shares: nextShares})

	return &SettlementResult{
		ClosedCycleID:       closed.ID,
		NewCycleID:          next.ID,
		ProfitTotal:         profit,
		PayoutTotal:         split.Payout,
		ReinvestmentTotal:   split.Reinvestment,
		PerformanceFeeTotal: split.Fee,
		PerInvestor:         payouts,
	}, nil
}

// beginSettlement flips the open cycle to settling, or picks up an already
// settling cycle left behind by an interrupted run.
func (e *Engine) beginSettlement(ctx context.Context, profit types.Money, notes string) (*cycle.Cycle, bool, error) {
	var (
		c       *cycle.Cycle
		resumed bool
	)

	err := e.withRetry(ctx, func() error {
		open, err := e.store.GetOpenCycle(ctx)
		if err != nil {
			if !IsNotFound(err) {
				return err
			}
			settling, settlingErr := e.store.GetSettlingCycle(ctx)
			if settlingErr != nil {
				return ErrNoOpenCycle
			}
			c = settling
			resumed = true
			return nil
		}

		input := cycle.SettlementInput{Profit: profit, Notes: notes}
		if err := e.store.BeginSettlement(ctx, open.ID, input, open.Revision); err != nil {
			return err
		}

		open.Status = cycle.StatusSettling
		open.ProfitTotal = profit
		open.Notes = notes
		open.Revision++
		c = open
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return c, resumed, nil
}

// ──────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────

// GetOpenCycle returns the open cycle, or ErrNoOpenCycle.
func (e *Engine) GetOpenCycle(ctx context.Context) (*cycle.Cycle, error) {
	c, err := e.store.GetOpenCycle(ctx)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrNoOpenCycle
		}
		return nil, err
	}
	return c, nil
}

// GetCycle retrieves a cycle by ID.
func (e *Engine) GetCycle(ctx context.Context, cycleID id.CycleID) (*cycle.Cycle, error) {
	return e.store.GetCycle(ctx, cycleID)
}

// ListCycles lists cycles, newest period first.
func (e *Engine) ListCycles(ctx context.Context, opts cycle.ListOpts) ([]*cycle.Cycle, error) {
	return e.store.ListCycles(ctx, opts)
}

// GetInvestor retrieves an investor by ID.
func (e *Engine) GetInvestor(ctx context.Context, investorID id.InvestorID) (*investor.Investor, error) {
	return e.store.GetInvestor(ctx, investorID)
}

// GetInvestorByReference retrieves an investor by external reference.
func (e *Engine) GetInvestorByReference(ctx context.Context, reference string) (*investor.Investor, error) {
	return e.store.GetInvestorByReference(ctx, reference)
}

// ListInvestors lists investors.
func (e *Engine) ListInvestors(ctx context.Context, opts investor.ListOpts) ([]*investor.Investor, error) {
	return e.store.ListInvestors(ctx, opts)
}

// DeactivateInvestor marks an investor inactive. History and shares are
// kept; further deposits and withdrawal requests are rejected.
func (e *Engine) DeactivateInvestor(ctx context.Context, investorID id.InvestorID) error {
	if err := e.store.DeactivateInvestor(ctx, investorID); err != nil {
		return err
	}
	e.logger.Info("investor deactivated", "investor", investorID)
	return nil
}

// GetWithdrawal retrieves a withdrawal by ID.
func (e *Engine) GetWithdrawal(ctx context.Context, withdrawalID id.WithdrawalID) (*withdrawal.Withdrawal, error) {
	return e.store.GetWithdrawal(ctx, withdrawalID)
}

// ListWithdrawals lists a cycle's withdrawals.
func (e *Engine) ListWithdrawals(ctx context.Context, cycleID id.CycleID, opts withdrawal.ListOpts) ([]*withdrawal.Withdrawal, error) {
	return e.store.ListWithdrawals(ctx, cycleID, opts)
}

// GetDeposit returns a deposit by ID.
func (e *Engine) GetDeposit(ctx context.Context, depositID id.DepositID) (*deposit.Deposit, error) {
	return e.store.GetDeposit(ctx, depositID)
}

// ListDeposits lists a cycle's deposits.
func (e *Engine) ListDeposits(ctx context.Context, cycleID id.CycleID) ([]*deposit.Deposit, error) {
	return e.store.ListDeposits(ctx, cycleID)
}

// ListShares lists a cycle's current share set.
func (e *Engine) ListShares(ctx context.Context, cycleID id.CycleID) ([]*share.Share, error) {
	return e.store.ListShares(ctx, cycleID)
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// acquire takes the in-process gate, waiting at most lockTimeout.
func (e *Engine) acquire(ctx context.Context) (func(), error) {
	select {
	case e.gate <- struct{}{}:
		return func() { <-e.gate }, nil
	case <-e.clock.After(e.lockTimeout):
		return nil, ErrCycleBusy
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// withRetry runs op, retrying revision and serialization conflicts with
// exponential backoff up to maxRetries attempts. All other errors are
// surfaced immediately.
func (e *Engine) withRetry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := op(); err != nil {
			if errors.Is(err, ErrRevisionConflict) || errors.Is(err, ErrSerializationFailure) {
				e.logger.Debug("retrying after concurrency conflict", "error", err)
				return struct{}{}, err
			}
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(e.maxRetries)),
	)
	return err
}

// openCycle returns the open cycle for a mutation, mapping its absence to
// the caller-facing state error: settling cycles fail fast, none at all is
// ErrNoOpenCycle.
func (e *Engine) openCycle(ctx context.Context) (*cycle.Cycle, error) {
	c, err := e.store.GetOpenCycle(ctx)
	if err == nil {
		return c, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}
	if _, settlingErr := e.store.GetSettlingCycle(ctx); settlingErr == nil {
		return nil, ErrCycleSettling
	}
	return nil, ErrNoOpenCycle
}

// basisFor computes an investor's current net contribution in a cycle.
func (e *Engine) basisFor(ctx context.Context, cycleID id.CycleID, investorID id.InvestorID) (types.Money, error) {
	deposits, err := e.store.ListDeposits(ctx, cycleID)
	if err != nil {
		return types.Zero(e.currency), err
	}
	withdrawals, err := e.store.ListWithdrawals(ctx, cycleID, withdrawal.ListOpts{})
	if err != nil {
		return types.Zero(e.currency), err
	}
	return share.BasisFor(investorID, deposits, withdrawals, e.currency), nil
}

// poolAmount validates that a request amount is denominated in the pool
// currency, defaulting an unset currency to it.
func (e *Engine) poolAmount(m types.Money) (types.Money, error) {
	if m.Currency == "" {
		m.Currency = e.currency
	}
	if m.Currency != e.currency {
		return m, ValidationError{Field: "currency", Message: "must be the pool currency " + e.currency}
	}
	return m, nil
}

func totalContribution(contribs []share.Contribution, currency string) types.Money {
	total := types.Zero(currency)
	for _, c := range contribs {
		total = total.Add(c.Amount)
	}
	return total
}
