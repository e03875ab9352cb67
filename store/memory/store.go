// Package memory provides an in-memory Store for tests and embedded use.
// A single RWMutex serializes all writes, which gives the composite
// operations the isolation the ledger requires without a real database.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xraph/fundpool"
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

type Store struct {
	mu sync.RWMutex

	investors   map[string]*investor.Investor
	cycles      map[string]*cycle.Cycle
	deposits    map[string]*deposit.Deposit
	withdrawals map[string]*withdrawal.Withdrawal

	// shares holds the current share set per cycle; the whole set is
	// replaced on every recomputation.
	shares map[string][]*share.Share
}

func New() *Store {
	return &Store{
		investors:   make(map[string]*investor.Investor),
		cycles:      make(map[string]*cycle.Cycle),
		deposits:    make(map[string]*deposit.Deposit),
		withdrawals: make(map[string]*withdrawal.Withdrawal),
		shares:      make(map[string][]*share.Share),
	}
}

// Investor methods

func (s *Store) CreateInvestor(_ context.Context, ivr *investor.Investor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.investors {
		if existing.Reference == ivr.Reference {
			return fundpool.ErrInvalidInput
		}
	}

	cp := *ivr
	s.investors[ivr.ID.String()] = &cp
	return nil
}

func (s *Store) GetInvestor(_ context.Context, investorID id.InvestorID) (*investor.Investor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ivr, ok := s.investors[investorID.String()]; ok {
		cp := *ivr
		return &cp, nil
	}
	return nil, fundpool.ErrInvestorNotFound
}

func (s *Store) GetInvestorByReference(_ context.Context, reference string) (*investor.Investor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ivr := range s.investors {
		if ivr.Reference == reference {
			cp := *ivr
			return &cp, nil
		}
	}
	return nil, fundpool.ErrInvestorNotFound
}

func (s *Store) ListInvestors(_ context.Context, opts investor.ListOpts) ([]*investor.Investor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*investor.Investor, 0, len(s.investors))
	for _, ivr := range s.investors {
		if opts.Status != "" && ivr.Status != opts.Status {
			continue
		}
		cp := *ivr
		result = append(result, &cp)
	}

	sort.Slice(result, func(a, b int) bool {
		return result[a].ID.String() < result[b].ID.String()
	})

	return paginate(result, opts.Limit, opts.Offset), nil
}

func (s *Store) DeactivateInvestor(_ context.Context, investorID id.InvestorID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ivr, ok := s.investors[investorID.String()]
	if !ok {
		return fundpool.ErrInvestorNotFound
	}
	ivr.Status = investor.StatusInactive
	ivr.Touch()
	return nil
}

// Cycle methods

func (s *Store) CreateCycle(_ context.Context, c *cycle.Cycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.Status == cycle.StatusOpen {
		for _, existing := range s.cycles {
			if existing.Status == cycle.StatusOpen {
				return fundpool.ErrCycleExists
			}
		}
	}

	s.cycles[c.ID.String()] = cloneCycle(c)
	return nil
}

func (s *Store) GetCycle(_ context.Context, cycleID id.CycleID) (*cycle.Cycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.cycles[cycleID.String()]; ok {
		return cloneCycle(c), nil
	}
	return nil, fundpool.ErrCycleNotFound
}

func (s *Store) GetOpenCycle(_ context.Context) (*cycle.Cycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.findByStatus(cycle.StatusOpen)
}

func (s *Store) GetSettlingCycle(_ context.Context) (*cycle.Cycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.findByStatus(cycle.StatusSettling)
}

func (s *Store) findByStatus(status cycle.Status) (*cycle.Cycle, error) {
	for _, c := range s.cycles {
		if c.Status == status {
			return cloneCycle(c), nil
		}
	}
	return nil, fundpool.ErrCycleNotFound
}

func (s *Store) GetCycleByMonth(_ context.Context, year, month int) (*cycle.Cycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.cycles {
		if c.Year == year && int(c.Month) == month {
			return cloneCycle(c), nil
		}
	}
	return nil, fundpool.ErrCycleNotFound
}

func (s *Store) ListCycles(_ context.Context, opts cycle.ListOpts) ([]*cycle.Cycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*cycle.Cycle, 0, len(s.cycles))
	for _, c := range s.cycles {
		if opts.Status != "" && c.Status != opts.Status {
			continue
		}
		result = append(result, cloneCycle(c))
	}

	// Newest period first.
	sort.Slice(result, func(a, b int) bool {
		if result[a].Year != result[b].Year {
			return result[a].Year > result[b].Year
		}
		return result[a].Month > result[b].Month
	})

	return paginate(result, opts.Limit, opts.Offset), nil
}

// Deposit methods

func (s *Store) GetDeposit(_ context.Context, depositID id.DepositID) (*deposit.Deposit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if d, ok := s.deposits[depositID.String()]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, fundpool.ErrDepositNotFound
}

func (s *Store) ListDeposits(_ context.Context, cycleID id.CycleID) ([]*deposit.Deposit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listDepositsLocked(cycleID), nil
}

func (s *Store) listDepositsLocked(cycleID id.CycleID) []*deposit.Deposit {
	result := make([]*deposit.Deposit, 0)
	for _, d := range s.deposits {
		if d.CycleID == cycleID {
			cp := *d
			result = append(result, &cp)
		}
	}

	// Deposit IDs are K-sortable, so ID order is insertion order.
	sort.Slice(result, func(a, b int) bool {
		return result[a].ID.String() < result[b].ID.String()
	})
	return result
}

// Withdrawal methods

func (s *Store) CreateWithdrawal(_ context.Context, w *withdrawal.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *w
	s.withdrawals[w.ID.String()] = &cp
	return nil
}

func (s *Store) GetWithdrawal(_ context.Context, withdrawalID id.WithdrawalID) (*withdrawal.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if w, ok := s.withdrawals[withdrawalID.String()]; ok {
		cp := *w
		return &cp, nil
	}
	return nil, fundpool.ErrWithdrawalNotFound
}

func (s *Store) ListWithdrawals(_ context.Context, cycleID id.CycleID, opts withdrawal.ListOpts) ([]*withdrawal.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*withdrawal.Withdrawal, 0)
	for _, w := range s.withdrawals {
		if w.CycleID != cycleID {
			continue
		}
		if opts.Status != "" && w.Status != opts.Status {
			continue
		}
		cp := *w
		result = append(result, &cp)
	}

	sort.Slice(result, func(a, b int) bool {
		return result[a].ID.String() < result[b].ID.String()
	})

	return paginate(result, opts.Limit, opts.Offset), nil
}

// Share methods

func (s *Store) ListShares(_ context.Context, cycleID id.CycleID) ([]*share.Share, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return cloneShares(s.shares[cycleID.String()]), nil
}

// Composite methods

func (s *Store) ApplyDeposit(_ context.Context, dep *deposit.Deposit, shares []*share.Share, expectedRevision int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.openCycleAt(dep.CycleID, expectedRevision)
	if err != nil {
		return err
	}

	cp := *dep
	s.deposits[dep.ID.String()] = &cp
	s.shares[dep.CycleID.String()] = cloneShares(shares)
	c.Revision++
	c.Touch()
	return nil
}

func (s *Store) ApproveWithdrawal(_ context.Context, w *withdrawal.Withdrawal, reinvest *deposit.Deposit, shares []*share.Share, expectedRevision int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.withdrawals[w.ID.String()]
	if !ok {
		return fundpool.ErrWithdrawalNotFound
	}
	if stored.Status != withdrawal.StatusPending {
		return fundpool.ErrWithdrawalResolved
	}

	c, err := s.openCycleAt(w.CycleID, expectedRevision)
	if err != nil {
		return err
	}

	wcp := *w
	s.withdrawals[w.ID.String()] = &wcp
	dcp := *reinvest
	s.deposits[reinvest.ID.String()] = &dcp
	s.shares[w.CycleID.String()] = cloneShares(shares)
	c.Revision++
	c.Touch()
	return nil
}

func (s *Store) DenyWithdrawal(_ context.Context, w *withdrawal.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.withdrawals[w.ID.String()]
	if !ok {
		return fundpool.ErrWithdrawalNotFound
	}
	if stored.Status != withdrawal.StatusPending {
		return fundpool.ErrWithdrawalResolved
	}

	cp := *w
	s.withdrawals[w.ID.String()] = &cp
	return nil
}

func (s *Store) BeginSettlement(_ context.Context, cycleID id.CycleID, input cycle.SettlementInput, expectedRevision int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.openCycleAt(cycleID, expectedRevision)
	if err != nil {
		return err
	}

	c.Status = cycle.StatusSettling
	c.ProfitTotal = input.Profit
	c.Notes = input.Notes
	c.Revision++
	c.Touch()
	return nil
}

func (s *Store) CompleteSettlement(_ context.Context, closed *cycle.Cycle, next *cycle.Cycle, seeds []*deposit.Deposit, shares []*share.Share) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.cycles[closed.ID.String()]
	if !ok {
		return fundpool.ErrCycleNotFound
	}
	if stored.Status != cycle.StatusSettling {
		return fundpool.ErrCycleClosed
	}
	for _, existing := range s.cycles {
		if existing.Status == cycle.StatusOpen {
			return fundpool.ErrCycleExists
		}
	}

	s.cycles[closed.ID.String()] = cloneCycle(closed)
	s.cycles[next.ID.String()] = cloneCycle(next)
	for _, seed := range seeds {
		cp := *seed
		s.deposits[seed.ID.String()] = &cp
	}
	s.shares[next.ID.String()] = cloneShares(shares)
	return nil
}

// openCycleAt returns the stored cycle if it is open and at the expected
// revision, or the matching state error otherwise.
func (s *Store) openCycleAt(cycleID id.CycleID, expectedRevision int64) (*cycle.Cycle, error) {
	c, ok := s.cycles[cycleID.String()]
	if !ok {
		return nil, fundpool.ErrCycleNotFound
	}
	switch c.Status {
	case cycle.StatusSettling:
		return nil, fundpool.ErrCycleSettling
	case cycle.StatusClosed:
		return nil, fundpool.ErrCycleClosed
	}
	if c.Revision != expectedRevision {
		return nil, fundpool.ErrRevisionConflict
	}
	return c, nil
}

// Core methods

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// Helpers

func cloneCycle(c *cycle.Cycle) *cycle.Cycle {
	cp := *c
	if c.Payouts != nil {
		cp.Payouts = make([]cycle.Payout, len(c.Payouts))
		copy(cp.Payouts, c.Payouts)
	}
	if c.SettledAt != nil {
		t := *c.SettledAt
		cp.SettledAt = &t
	}
	return &cp
}

func cloneShares(shares []*share.Share) []*share.Share {
	if shares == nil {
		return nil
	}
	result := make([]*share.Share, len(shares))
	for i, sh := range shares {
		cp := *sh
		result[i] = &cp
	}
	return result
}

func paginate[T any](items []*T, limit, offset int) []*T {
	if offset > 0 {
		if offset >= len(items) {
			return []*T{}
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
