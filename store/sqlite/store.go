// Package sqlite provides a SQLite Store backed by Grove ORM, suitable for
// single-node deployments and integration tests. SQLite serializes writers
// itself, so the composite operations only need the revision guard to catch
// writes that interleave between the engine's read and its commit.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	fundpool "github.com/xraph/fundpool"
	"github.com/xraph/fundpool/cycle"
	"github.com/xraph/fundpool/deposit"
	"github.com/xraph/fundpool/id"
	"github.com/xraph/fundpool/investor"
	"github.com/xraph/fundpool/share"
	fundpoolstore "github.com/xraph/fundpool/store"
	"github.com/xraph/fundpool/withdrawal"
)

// compile-time interface check
var _ fundpoolstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("fundpool/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("fundpool/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Investor Store ====================

func (s *Store) CreateInvestor(ctx context.Context, ivr *investor.Investor) error {
	m := toInvestorModel(ivr)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fundpool.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) GetInvestor(ctx context.Context, investorID id.InvestorID) (*investor.Investor, error) {
	m := new(investorModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", investorID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fundpool.ErrInvestorNotFound
		}
		return nil, err
	}
	return fromInvestorModel(m)
}

func (s *Store) GetInvestorByReference(ctx context.Context, reference string) (*investor.Investor, error) {
	m := new(investorModel)
	err := s.sdb.NewSelect(m).
		Where("reference = ?", reference).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fundpool.ErrInvestorNotFound
		}
		return nil, err
	}
	return fromInvestorModel(m)
}

func (s *Store) ListInvestors(ctx context.Context, opts investor.ListOpts) ([]*investor.Investor, error) {
	var models []investorModel
	q := s.sdb.NewSelect(&models)

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*investor.Investor, len(models))
	for i := range models {
		ivr, err := fromInvestorModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = ivr
	}
	return result, nil
}

func (s *Store) DeactivateInvestor(ctx context.Context, investorID id.InvestorID) error {
	res, err := s.sdb.NewUpdate((*investorModel)(nil)).
		Set("status = ?", string(investor.StatusInactive)).
		Set("updated_at = ?", now()).
		Where("id = ?", investorID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fundpool.ErrInvestorNotFound
	}
	return nil
}

// ==================== Cycle Store ====================

func (s *Store) CreateCycle(ctx context.Context, c *cycle.Cycle) error {
	m := toCycleModel(c)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fundpool.ErrCycleExists
		}
		return err
	}
	return nil
}

func (s *Store) GetCycle(ctx context.Context, cycleID id.CycleID) (*cycle.Cycle, error) {
	m := new(cycleModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", cycleID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fundpool.ErrCycleNotFound
		}
		return nil, err
	}
	return fromCycleModel(m)
}

func (s *Store) GetOpenCycle(ctx context.Context) (*cycle.Cycle, error) {
	return s.getCycleByStatus(ctx, cycle.StatusOpen)
}

func (s *Store) GetSettlingCycle(ctx context.Context) (*cycle.Cycle, error) {
	return s.getCycleByStatus(ctx, cycle.StatusSettling)
}

func (s *Store) getCycleByStatus(ctx context.Context, status cycle.Status) (*cycle.Cycle, error) {
	m := new(cycleModel)
	err := s.sdb.NewSelect(m).
		Where("status = ?", string(status)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fundpool.ErrCycleNotFound
		}
		return nil, err
	}
	return fromCycleModel(m)
}

func (s *Store) GetCycleByMonth(ctx context.Context, year, month int) (*cycle.Cycle, error) {
	m := new(cycleModel)
	err := s.sdb.NewSelect(m).
		Where("year = ?", year).
		Where("month = ?", month).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fundpool.ErrCycleNotFound
		}
		return nil, err
	}
	return fromCycleModel(m)
}

func (s *Store) ListCycles(ctx context.Context, opts cycle.ListOpts) ([]*cycle.Cycle, error) {
	var models []cycleModel
	q := s.sdb.NewSelect(&models)

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("year DESC, month DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*cycle.Cycle, len(models))
	for i := range models {
		c, err := fromCycleModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

// ==================== Deposit Store ====================

func (s *Store) GetDeposit(ctx context.Context, depositID id.DepositID) (*deposit.Deposit, error) {
	m := new(depositModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", depositID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fundpool.ErrDepositNotFound
		}
		return nil, err
	}
	return fromDepositModel(m)
}

func (s *Store) ListDeposits(ctx context.Context, cycleID id.CycleID) ([]*deposit.Deposit, error) {
	var models []depositModel
	err := s.sdb.NewSelect(&models).
		Where("cycle_id = ?", cycleID.String()).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*deposit.Deposit, len(models))
	for i := range models {
		d, err := fromDepositModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = d
	}
	return result, nil
}

// ==================== Withdrawal Store ====================

func (s *Store) CreateWithdrawal(ctx context.Context, w *withdrawal.Withdrawal) error {
	m := toWithdrawalModel(w)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetWithdrawal(ctx context.Context, withdrawalID id.WithdrawalID) (*withdrawal.Withdrawal, error) {
	m := new(withdrawalModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", withdrawalID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fundpool.ErrWithdrawalNotFound
		}
		return nil, err
	}
	return fromWithdrawalModel(m)
}

func (s *Store) ListWithdrawals(ctx context.Context, cycleID id.CycleID, opts withdrawal.ListOpts) ([]*withdrawal.Withdrawal, error) {
	var models []withdrawalModel
	q := s.sdb.NewSelect(&models).
		Where("cycle_id = ?", cycleID.String())

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*withdrawal.Withdrawal, len(models))
	for i := range models {
		w, err := fromWithdrawalModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = w
	}
	return result, nil
}

// ==================== Share Store ====================

func (s *Store) ListShares(ctx context.Context, cycleID id.CycleID) ([]*share.Share, error) {
	var models []shareModel
	err := s.sdb.NewSelect(&models).
		Where("cycle_id = ?", cycleID.String()).
		OrderExpr("contribution_amount_cents DESC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*share.Share, len(models))
	for i := range models {
		sh, err := fromShareModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sh
	}
	return result, nil
}

// ==================== Composite operations ====================

func (s *Store) ApplyDeposit(ctx context.Context, dep *deposit.Deposit, shares []*share.Share, expectedRevision int64) error {
	return s.inTx(ctx, func(ctx context.Context, tx *sqlitedriver.SqliteTx) error {
		if err := bumpOpenCycle(ctx, tx, dep.CycleID, expectedRevision); err != nil {
			return err
		}
		if _, err := tx.NewInsert(toDepositModel(dep)).Exec(ctx); err != nil {
			return err
		}
		return replaceShares(ctx, tx, dep.CycleID, shares)
	})
}

func (s *Store) ApproveWithdrawal(ctx context.Context, w *withdrawal.Withdrawal, reinvest *deposit.Deposit, shares []*share.Share, expectedRevision int64) error {
	return s.inTx(ctx, func(ctx context.Context, tx *sqlitedriver.SqliteTx) error {
		res, err := tx.NewUpdate((*withdrawalModel)(nil)).
			Set("status = ?", string(withdrawal.StatusApproved)).
			Set("net_amount_cents = ?", w.NetAmount.Amount).
			Set("net_currency = ?", w.NetAmount.Currency).
			Set("reinvested_amount_cents = ?", w.ReinvestedAmount.Amount).
			Set("reinvested_currency = ?", w.ReinvestedAmount.Currency).
			Set("override = ?", w.Override).
			Set("override_reason = ?", w.OverrideReason).
			Set("notes = ?", w.Notes).
			Set("resolved_at = ?", w.ResolvedAt).
			Set("updated_at = ?", now()).
			Where("id = ?", w.ID.String()).
			Where("status = ?", string(withdrawal.StatusPending)).
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return withdrawalConflict(ctx, tx, w.ID)
		}

		if err := bumpOpenCycle(ctx, tx, w.CycleID, expectedRevision); err != nil {
			return err
		}
		if _, err := tx.NewInsert(toDepositModel(reinvest)).Exec(ctx); err != nil {
			return err
		}
		return replaceShares(ctx, tx, w.CycleID, shares)
	})
}

func (s *Store) DenyWithdrawal(ctx context.Context, w *withdrawal.Withdrawal) error {
	return s.inTx(ctx, func(ctx context.Context, tx *sqlitedriver.SqliteTx) error {
		res, err := tx.NewUpdate((*withdrawalModel)(nil)).
			Set("status = ?", string(withdrawal.StatusDenied)).
			Set("notes = ?", w.Notes).
			Set("resolved_at = ?", w.ResolvedAt).
			Set("updated_at = ?", now()).
			Where("id = ?", w.ID.String()).
			Where("status = ?", string(withdrawal.StatusPending)).
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return withdrawalConflict(ctx, tx, w.ID)
		}
		return nil
	})
}

func (s *Store) BeginSettlement(ctx context.Context, cycleID id.CycleID, input cycle.SettlementInput, expectedRevision int64) error {
	return s.inTx(ctx, func(ctx context.Context, tx *sqlitedriver.SqliteTx) error {
		res, err := tx.NewUpdate((*cycleModel)(nil)).
			Set("status = ?", string(cycle.StatusSettling)).
			Set("profit_amount_cents = ?", input.Profit.Amount).
			Set("profit_currency = ?", input.Profit.Currency).
			Set("notes = ?", input.Notes).
			Set("revision = revision + 1").
			Set("updated_at = ?", now()).
			Where("id = ?", cycleID.String()).
			Where("status = ?", string(cycle.StatusOpen)).
			Where("revision = ?", expectedRevision).
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return cycleConflict(ctx, tx, cycleID)
		}
		return nil
	})
}

func (s *Store) CompleteSettlement(ctx context.Context, closed *cycle.Cycle, next *cycle.Cycle, seeds []*deposit.Deposit, shares []*share.Share) error {
	return s.inTx(ctx, func(ctx context.Context, tx *sqlitedriver.SqliteTx) error {
		cm := toCycleModel(closed)
		res, err := tx.NewUpdate((*cycleModel)(nil)).
			Set("status = ?", string(cycle.StatusClosed)).
			Set("payout_amount_cents = ?", cm.PayoutAmountCents).
			Set("payout_currency = ?", cm.PayoutCurrency).
			Set("reinvestment_amount_cents = ?", cm.ReinvestmentAmountCents).
			Set("reinvestment_currency = ?", cm.ReinvestmentCurrency).
			Set("fee_amount_cents = ?", cm.FeeAmountCents).
			Set("fee_currency = ?", cm.FeeCurrency).
			Set("payouts = ?", cm.Payouts).
			Set("settled_at = ?", cm.SettledAt).
			Set("revision = revision + 1").
			Set("updated_at = ?", now()).
			Where("id = ?", cm.ID).
			Where("status = ?", string(cycle.StatusSettling)).
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			m := new(cycleModel)
			if err := tx.NewSelect(m).Where("id = ?", cm.ID).Scan(ctx); err != nil {
				if isNoRows(err) {
					return fundpool.ErrCycleNotFound
				}
				return err
			}
			return fundpool.ErrCycleClosed
		}

		if _, err := tx.NewInsert(toCycleModel(next)).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return fundpool.ErrCycleExists
			}
			return err
		}

		for _, seed := range seeds {
			if _, err := tx.NewInsert(toDepositModel(seed)).Exec(ctx); err != nil {
				return err
			}
		}
		return replaceShares(ctx, tx, next.ID, shares)
	})
}

// inTx runs fn in a transaction, mapping a busy database to the retryable
// serialization sentinel.
func (s *Store) inTx(ctx context.Context, fn func(ctx context.Context, tx *sqlitedriver.SqliteTx) error) error {
	tx, err := s.sdb.BeginTxQuery(ctx, &driver.TxOptions{})
	if err != nil {
		if isBusy(err) {
			return fundpool.ErrSerializationFailure
		}
		return err
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		if isBusy(err) {
			return fundpool.ErrSerializationFailure
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		if isBusy(err) {
			return fundpool.ErrSerializationFailure
		}
		return err
	}
	return nil
}

// bumpOpenCycle increments the cycle revision iff the cycle is still open at
// the expected revision; otherwise it reports the matching state error.
func bumpOpenCycle(ctx context.Context, tx *sqlitedriver.SqliteTx, cycleID id.CycleID, expectedRevision int64) error {
	res, err := tx.NewUpdate((*cycleModel)(nil)).
		Set("revision = revision + 1").
		Set("updated_at = ?", now()).
		Where("id = ?", cycleID.String()).
		Where("status = ?", string(cycle.StatusOpen)).
		Where("revision = ?", expectedRevision).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return cycleConflict(ctx, tx, cycleID)
	}
	return nil
}

// cycleConflict classifies why a guarded cycle update matched no rows.
func cycleConflict(ctx context.Context, tx *sqlitedriver.SqliteTx, cycleID id.CycleID) error {
	m := new(cycleModel)
	err := tx.NewSelect(m).
		Where("id = ?", cycleID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return fundpool.ErrCycleNotFound
		}
		return err
	}
	switch cycle.Status(m.Status) {
	case cycle.StatusSettling:
		return fundpool.ErrCycleSettling
	case cycle.StatusClosed:
		return fundpool.ErrCycleClosed
	default:
		return fundpool.ErrRevisionConflict
	}
}

// withdrawalConflict classifies why a guarded withdrawal update matched no rows.
func withdrawalConflict(ctx context.Context, tx *sqlitedriver.SqliteTx, withdrawalID id.WithdrawalID) error {
	m := new(withdrawalModel)
	err := tx.NewSelect(m).
		Where("id = ?", withdrawalID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return fundpool.ErrWithdrawalNotFound
		}
		return err
	}
	return fundpool.ErrWithdrawalResolved
}

// replaceShares swaps the cycle's share set for the given one.
func replaceShares(ctx context.Context, tx *sqlitedriver.SqliteTx, cycleID id.CycleID, shares []*share.Share) error {
	if _, err := tx.NewDelete((*shareModel)(nil)).
		Where("cycle_id = ?", cycleID.String()).
		Exec(ctx); err != nil {
		return err
	}
	if len(shares) == 0 {
		return nil
	}

	models := make([]shareModel, len(shares))
	for i, sh := range shares {
		models[i] = *toShareModel(sh)
	}
	_, err := tx.NewInsert(&models).Exec(ctx)
	return err
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation reports a SQLite unique-constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isBusy reports SQLITE_BUSY, raised when a concurrent writer holds the lock.
func isBusy(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "database is locked") ||
		strings.Contains(err.Error(), "SQLITE_BUSY"))
}
