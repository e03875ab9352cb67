// Package mongo provides a MongoDB Store backed by Grove ORM. Composite
// ledger operations run in a session transaction, and every cycle mutation
// additionally filters on the expected revision and increments it, so a
// writer that lost the race matches nothing and gets a conflict sentinel
// instead of clobbering state.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	fundpool "github.com/xraph/fundpool"
	"github.com/xraph/fundpool/cycle"
	"github.com/xraph/fundpool/deposit"
	"github.com/xraph/fundpool/id"
	"github.com/xraph/fundpool/investor"
	"github.com/xraph/fundpool/share"
	fundpoolstore "github.com/xraph/fundpool/store"
	"github.com/xraph/fundpool/withdrawal"
)

// Collection name constants.
const (
	colInvestors   = "fundpool_investors"
	colCycles      = "fundpool_cycles"
	colDeposits    = "fundpool_deposits"
	colWithdrawals = "fundpool_withdrawals"
	colShares      = "fundpool_shares"
)

// compile-time interface check
var _ fundpoolstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all fundpool collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("fundpool/mongo: migrate %s indexes: %w", col, err)
		}
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
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fundpool.ErrInvalidInput
		}
		return fmt.Errorf("fundpool/mongo: create investor: %w", err)
	}
	return nil
}

func (s *Store) GetInvestor(ctx context.Context, investorID id.InvestorID) (*investor.Investor, error) {
	var m investorModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": investorID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fundpool.ErrInvestorNotFound
		}
		return nil, fmt.Errorf("fundpool/mongo: get investor: %w", err)
	}
	return fromInvestorModel(&m)
}

func (s *Store) GetInvestorByReference(ctx context.Context, reference string) (*investor.Investor, error) {
	var m investorModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"reference": reference}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fundpool.ErrInvestorNotFound
		}
		return nil, fmt.Errorf("fundpool/mongo: get investor by reference: %w", err)
	}
	return fromInvestorModel(&m)
}

func (s *Store) ListInvestors(ctx context.Context, opts investor.ListOpts) ([]*investor.Investor, error) {
	var models []investorModel

	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("fundpool/mongo: list investors: %w", err)
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
	res, err := s.mdb.NewUpdate((*investorModel)(nil)).
		Filter(bson.M{"_id": investorID.String()}).
		Set("status", string(investor.StatusInactive)).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fundpool/mongo: deactivate investor: %w", err)
	}
	if res.MatchedCount() == 0 {
		return fundpool.ErrInvestorNotFound
	}
	return nil
}

// ==================== Cycle Store ====================

func (s *Store) CreateCycle(ctx context.Context, c *cycle.Cycle) error {
	m := toCycleModel(c)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fundpool.ErrCycleExists
		}
		return fmt.Errorf("fundpool/mongo: create cycle: %w", err)
	}
	return nil
}

func (s *Store) GetCycle(ctx context.Context, cycleID id.CycleID) (*cycle.Cycle, error) {
	var m cycleModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": cycleID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fundpool.ErrCycleNotFound
		}
		return nil, fmt.Errorf("fundpool/mongo: get cycle: %w", err)
	}
	return fromCycleModel(&m)
}

func (s *Store) GetOpenCycle(ctx context.Context) (*cycle.Cycle, error) {
	return s.getCycleByStatus(ctx, cycle.StatusOpen)
}

func (s *Store) GetSettlingCycle(ctx context.Context) (*cycle.Cycle, error) {
	return s.getCycleByStatus(ctx, cycle.StatusSettling)
}

func (s *Store) getCycleByStatus(ctx context.Context, status cycle.Status) (*cycle.Cycle, error) {
	var m cycleModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"status": string(status)}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fundpool.ErrCycleNotFound
		}
		return nil, fmt.Errorf("fundpool/mongo: get %s cycle: %w", status, err)
	}
	return fromCycleModel(&m)
}

func (s *Store) GetCycleByMonth(ctx context.Context, year, month int) (*cycle.Cycle, error) {
	var m cycleModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"year": year, "month": month}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fundpool.ErrCycleNotFound
		}
		return nil, fmt.Errorf("fundpool/mongo: get cycle by month: %w", err)
	}
	return fromCycleModel(&m)
}

func (s *Store) ListCycles(ctx context.Context, opts cycle.ListOpts) ([]*cycle.Cycle, error) {
	var models []cycleModel

	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "year", Value: -1}, {Key: "month", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("fundpool/mongo: list cycles: %w", err)
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
	var m depositModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": depositID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fundpool.ErrDepositNotFound
		}
		return nil, fmt.Errorf("fundpool/mongo: get deposit: %w", err)
	}
	return fromDepositModel(&m)
}

func (s *Store) ListDeposits(ctx context.Context, cycleID id.CycleID) ([]*deposit.Deposit, error) {
	var models []depositModel

	err := s.mdb.NewFind(&models).
		Filter(bson.M{"cycle_id": cycleID.String()}).
		Sort(bson.D{{Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("fundpool/mongo: list deposits: %w", err)
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
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("fundpool/mongo: create withdrawal: %w", err)
	}
	return nil
}

func (s *Store) GetWithdrawal(ctx context.Context, withdrawalID id.WithdrawalID) (*withdrawal.Withdrawal, error) {
	var m withdrawalModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": withdrawalID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fundpool.ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("fundpool/mongo: get withdrawal: %w", err)
	}
	return fromWithdrawalModel(&m)
}

func (s *Store) ListWithdrawals(ctx context.Context, cycleID id.CycleID, opts withdrawal.ListOpts) ([]*withdrawal.Withdrawal, error) {
	var models []withdrawalModel

	filter := bson.M{"cycle_id": cycleID.String()}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("fundpool/mongo: list withdrawals: %w", err)
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

	err := s.mdb.NewFind(&models).
		Filter(bson.M{"cycle_id": cycleID.String()}).
		Sort(bson.D{{Key: "contribution_amount_cents", Value: -1}, {Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("fundpool/mongo: list shares: %w", err)
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

// withTxn runs fn in a session transaction. The callback context carries
// the session, so every operation issued through it joins the transaction
// and the composite either commits whole or not at all.
func (s *Store) withTxn(ctx context.Context, fn func(ctx context.Context) error) error {
	sess, err := s.mdb.Collection(colCycles).Database().Client().StartSession()
	if err != nil {
		return fmt.Errorf("fundpool/mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc context.Context) (any, error) {
		return nil, fn(sc)
	})
	return err
}

func (s *Store) ApplyDeposit(ctx context.Context, dep *deposit.Deposit, shares []*share.Share, expectedRevision int64) error {
	return s.withTxn(ctx, func(ctx context.Context) error {
		if err := s.bumpOpenCycle(ctx, dep.CycleID, expectedRevision); err != nil {
			return err
		}
		if _, err := s.mdb.NewInsert(toDepositModel(dep)).Exec(ctx); err != nil {
			return fmt.Errorf("fundpool/mongo: apply deposit: %w", err)
		}
		return s.replaceShares(ctx, dep.CycleID, shares)
	})
}

func (s *Store) ApproveWithdrawal(ctx context.Context, w *withdrawal.Withdrawal, reinvest *deposit.Deposit, shares []*share.Share, expectedRevision int64) error {
	return s.withTxn(ctx, func(ctx context.Context) error {
		res, err := s.mdb.NewUpdate((*withdrawalModel)(nil)).
			Filter(bson.M{"_id": w.ID.String(), "status": string(withdrawal.StatusPending)}).
			Set("status", string(withdrawal.StatusApproved)).
			Set("net_amount_cents", w.NetAmount.Amount).
			Set("net_currency", w.NetAmount.Currency).
			Set("reinvested_amount_cents", w.ReinvestedAmount.Amount).
			Set("reinvested_currency", w.ReinvestedAmount.Currency).
			Set("override", w.Override).
			Set("override_reason", w.OverrideReason).
			Set("notes", w.Notes).
			Set("resolved_at", w.ResolvedAt).
			Set("updated_at", now()).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("fundpool/mongo: approve withdrawal: %w", err)
		}
		if res.MatchedCount() == 0 {
			return s.withdrawalConflict(ctx, w.ID)
		}

		if err := s.bumpOpenCycle(ctx, w.CycleID, expectedRevision); err != nil {
			return err
		}
		if _, err := s.mdb.NewInsert(toDepositModel(reinvest)).Exec(ctx); err != nil {
			return fmt.Errorf("fundpool/mongo: approve withdrawal reinvest: %w", err)
		}
		return s.replaceShares(ctx, w.CycleID, shares)
	})
}

func (s *Store) DenyWithdrawal(ctx context.Context, w *withdrawal.Withdrawal) error {
	res, err := s.mdb.NewUpdate((*withdrawalModel)(nil)).
		Filter(bson.M{"_id": w.ID.String(), "status": string(withdrawal.StatusPending)}).
		Set("status", string(withdrawal.StatusDenied)).
		Set("notes", w.Notes).
		Set("resolved_at", w.ResolvedAt).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fundpool/mongo: deny withdrawal: %w", err)
	}
	if res.MatchedCount() == 0 {
		return s.withdrawalConflict(ctx, w.ID)
	}
	return nil
}

func (s *Store) BeginSettlement(ctx context.Context, cycleID id.CycleID, input cycle.SettlementInput, expectedRevision int64) error {
	res, err := s.mdb.NewUpdate((*cycleModel)(nil)).
		Filter(bson.M{
			"_id":      cycleID.String(),
			"status":   string(cycle.StatusOpen),
			"revision": expectedRevision,
		}).
		SetUpdate(bson.M{
			"$set": bson.M{
				"status":              string(cycle.StatusSettling),
				"profit_amount_cents": input.Profit.Amount,
				"profit_currency":     input.Profit.Currency,
				"notes":               input.Notes,
				"updated_at":          now(),
			},
			"$inc": bson.M{"revision": 1},
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fundpool/mongo: begin settlement: %w", err)
	}
	if res.MatchedCount() == 0 {
		return s.cycleConflict(ctx, cycleID)
	}
	return nil
}

func (s *Store) CompleteSettlement(ctx context.Context, closed *cycle.Cycle, next *cycle.Cycle, seeds []*deposit.Deposit, shares []*share.Share) error {
	return s.withTxn(ctx, func(ctx context.Context) error {
		cm := toCycleModel(closed)
		res, err := s.mdb.NewUpdate((*cycleModel)(nil)).
			Filter(bson.M{"_id": cm.ID, "status": string(cycle.StatusSettling)}).
			SetUpdate(bson.M{
				"$set": bson.M{
					"status":                    string(cycle.StatusClosed),
					"payout_amount_cents":       cm.PayoutAmountCents,
					"payout_currency":           cm.PayoutCurrency,
					"reinvestment_amount_cents": cm.ReinvestmentAmountCents,
					"reinvestment_currency":     cm.ReinvestmentCurrency,
					"fee_amount_cents":          cm.FeeAmountCents,
					"fee_currency":              cm.FeeCurrency,
					"payouts":                   cm.Payouts,
					"settled_at":                cm.SettledAt,
					"updated_at":                now(),
				},
				"$inc": bson.M{"revision": 1},
			}).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("fundpool/mongo: complete settlement: %w", err)
		}
		if res.MatchedCount() == 0 {
			// Mirrors the settling guard: missing is not-found, anything not
			// settling has already been closed.
			if _, err := s.GetCycle(ctx, closed.ID); err != nil {
				return err
			}
			return fundpool.ErrCycleClosed
		}

		// The partial unique index on open cycles turns a concurrent open into
		// a duplicate key error here.
		if _, err := s.mdb.NewInsert(toCycleModel(next)).Exec(ctx); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return fundpool.ErrCycleExists
			}
			return fmt.Errorf("fundpool/mongo: complete settlement next cycle: %w", err)
		}

		for _, seed := range seeds {
			if _, err := s.mdb.NewInsert(toDepositModel(seed)).Exec(ctx); err != nil {
				return fmt.Errorf("fundpool/mongo: complete settlement seed: %w", err)
			}
		}
		return s.replaceShares(ctx, next.ID, shares)
	})
}

// bumpOpenCycle increments the cycle revision iff the cycle is still open at
// the expected revision; otherwise it reports the matching state error.
func (s *Store) bumpOpenCycle(ctx context.Context, cycleID id.CycleID, expectedRevision int64) error {
	res, err := s.mdb.NewUpdate((*cycleModel)(nil)).
		Filter(bson.M{
			"_id":      cycleID.String(),
			"status":   string(cycle.StatusOpen),
			"revision": expectedRevision,
		}).
		SetUpdate(bson.M{
			"$set": bson.M{"updated_at": now()},
			"$inc": bson.M{"revision": 1},
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fundpool/mongo: bump cycle revision: %w", err)
	}
	if res.MatchedCount() == 0 {
		return s.cycleConflict(ctx, cycleID)
	}
	return nil
}

// cycleConflict classifies why a guarded cycle update matched no documents.
func (s *Store) cycleConflict(ctx context.Context, cycleID id.CycleID) error {
	c, err := s.GetCycle(ctx, cycleID)
	if err != nil {
		return err
	}
	switch c.Status {
	case cycle.StatusSettling:
		return fundpool.ErrCycleSettling
	case cycle.StatusClosed:
		return fundpool.ErrCycleClosed
	default:
		return fundpool.ErrRevisionConflict
	}
}

// withdrawalConflict classifies why a guarded withdrawal update matched no
// documents.
func (s *Store) withdrawalConflict(ctx context.Context, withdrawalID id.WithdrawalID) error {
	if _, err := s.GetWithdrawal(ctx, withdrawalID); err != nil {
		return err
	}
	return fundpool.ErrWithdrawalResolved
}

// replaceShares swaps the cycle's share set for the given one.
func (s *Store) replaceShares(ctx context.Context, cycleID id.CycleID, shares []*share.Share) error {
	if _, err := s.mdb.NewDelete((*shareModel)(nil)).
		Filter(bson.M{"cycle_id": cycleID.String()}).
		Exec(ctx); err != nil {
		return fmt.Errorf("fundpool/mongo: replace shares delete: %w", err)
	}

	for _, sh := range shares {
		if _, err := s.mdb.NewInsert(toShareModel(sh)).Exec(ctx); err != nil {
			return fmt.Errorf("fundpool/mongo: replace shares insert: %w", err)
		}
	}
	return nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all fundpool collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colInvestors: {
			{
				Keys:    bson.D{{Key: "reference", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		colCycles: {
			{
				Keys:    bson.D{{Key: "year", Value: 1}, {Key: "month", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys: bson.D{{Key: "status", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"status": string(cycle.StatusOpen)}),
			},
		},
		colDeposits: {
			{Keys: bson.D{{Key: "cycle_id", Value: 1}}},
			{Keys: bson.D{{Key: "investor_id", Value: 1}, {Key: "cycle_id", Value: 1}}},
		},
		colWithdrawals: {
			{Keys: bson.D{{Key: "cycle_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "investor_id", Value: 1}}},
		},
		colShares: {
			{
				Keys:    bson.D{{Key: "cycle_id", Value: 1}, {Key: "investor_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "cycle_id", Value: 1}}},
		},
	}
}
