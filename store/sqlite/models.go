package sqlite

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xraph/grove"

	"github.com/xraph/fundpool/cycle"
	"github.com/xraph/fundpool/deposit"
	"github.com/xraph/fundpool/id"
	"github.com/xraph/fundpool/investor"
	"github.com/xraph/fundpool/share"
	"github.com/xraph/fundpool/types"
	"github.com/xraph/fundpool/withdrawal"
)

// SQLite has no native JSON column type, so jsonb payloads land in TEXT
// columns; the mapping is otherwise identical to the Postgres models.

// ==================== Investor models ====================

type investorModel struct {
	grove.BaseModel `grove:"table:fundpool_investors"`

	ID        string            `grove:"id,pk"`
	Reference string            `grove:"reference"`
	Status    string            `grove:"status"`
	JoinedAt  time.Time         `grove:"joined_at"`
	Metadata  map[string]string `grove:"metadata"`
	CreatedAt time.Time         `grove:"created_at"`
	UpdatedAt time.Time         `grove:"updated_at"`
}

func toInvestorModel(ivr *investor.Investor) *investorModel {
	return &investorModel{
		ID:        ivr.ID.String(),
		Reference: ivr.Reference,
		Status:    string(ivr.Status),
		JoinedAt:  ivr.JoinedAt,
		Metadata:  ivr.Metadata,
		CreatedAt: ivr.CreatedAt,
		UpdatedAt: ivr.UpdatedAt,
	}
}

func fromInvestorModel(m *investorModel) (*investor.Investor, error) {
	investorID, err := id.ParseInvestorID(m.ID)
	if err != nil {
		return nil, err
	}

	return &investor.Investor{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:        investorID,
		Reference: m.Reference,
		Status:    investor.Status(m.Status),
		JoinedAt:  m.JoinedAt,
		Metadata:  m.Metadata,
	}, nil
}

// ==================== Cycle models ====================

type cycleModel struct {
	grove.BaseModel `grove:"table:fundpool_cycles"`

	ID                      string          `grove:"id,pk"`
	Year                    int             `grove:"year"`
	Month                   int             `grove:"month"`
	Status                  string          `grove:"status"`
	Revision                int64           `grove:"revision"`
	ProfitAmountCents       int64           `grove:"profit_amount_cents"`
	ProfitCurrency          string          `grove:"profit_currency"`
	PayoutAmountCents       int64           `grove:"payout_amount_cents"`
	PayoutCurrency          string          `grove:"payout_currency"`
	ReinvestmentAmountCents int64           `grove:"reinvestment_amount_cents"`
	ReinvestmentCurrency    string          `grove:"reinvestment_currency"`
	FeeAmountCents          int64           `grove:"fee_amount_cents"`
	FeeCurrency             string          `grove:"fee_currency"`
	Payouts                 json.RawMessage `grove:"payouts"`
	OpenedAt                time.Time       `grove:"opened_at"`
	SettledAt               *time.Time      `grove:"settled_at"`
	Notes                   string          `grove:"notes"`
	CreatedAt               time.Time       `grove:"created_at"`
	UpdatedAt               time.Time       `grove:"updated_at"`
}

func toCycleModel(c *cycle.Cycle) *cycleModel {
	payouts, _ := json.Marshal(c.Payouts) //nolint:errcheck // best-effort

	return &cycleModel{
		ID:                      c.ID.String(),
		Year:                    c.Year,
		Month:                   int(c.Month),
		Status:                  string(c.Status),
		Revision:                c.Revision,
		ProfitAmountCents:       c.ProfitTotal.Amount,
		ProfitCurrency:          c.ProfitTotal.Currency,
		PayoutAmountCents:       c.PayoutTotal.Amount,
		PayoutCurrency:          c.PayoutTotal.Currency,
		ReinvestmentAmountCents: c.ReinvestmentTotal.Amount,
		ReinvestmentCurrency:    c.ReinvestmentTotal.Currency,
		FeeAmountCents:          c.PerformanceFeeTotal.Amount,
		FeeCurrency:             c.PerformanceFeeTotal.Currency,
		Payouts:                 payouts,
		OpenedAt:                c.OpenedAt,
		SettledAt:               c.SettledAt,
		Notes:                   c.Notes,
		CreatedAt:               c.CreatedAt,
		UpdatedAt:               c.UpdatedAt,
	}
}

func fromCycleModel(m *cycleModel) (*cycle.Cycle, error) {
	cycleID, err := id.ParseCycleID(m.ID)
	if err != nil {
		return nil, err
	}

	var payouts []cycle.Payout
	if len(m.Payouts) > 0 && string(m.Payouts) != "null" {
		_ = json.Unmarshal(m.Payouts, &payouts) //nolint:errcheck // best-effort
	}

	return &cycle.Cycle{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                  cycleID,
		Year:                m.Year,
		Month:               time.Month(m.Month),
		Status:              cycle.Status(m.Status),
		Revision:            m.Revision,
		ProfitTotal:         types.Money{Amount: m.ProfitAmountCents, Currency: m.ProfitCurrency},
		PayoutTotal:         types.Money{Amount: m.PayoutAmountCents, Currency: m.PayoutCurrency},
		ReinvestmentTotal:   types.Money{Amount: m.ReinvestmentAmountCents, Currency: m.ReinvestmentCurrency},
		PerformanceFeeTotal: types.Money{Amount: m.FeeAmountCents, Currency: m.FeeCurrency},
		Payouts:             payouts,
		OpenedAt:            m.OpenedAt,
		SettledAt:           m.SettledAt,
		Notes:               m.Notes,
	}, nil
}

// ==================== Deposit models ====================

type depositModel struct {
	grove.BaseModel `grove:"table:fundpool_deposits"`

	ID                string    `grove:"id,pk"`
	InvestorID        string    `grove:"investor_id"`
	CycleID           string    `grove:"cycle_id"`
	AmountCents       int64     `grove:"amount_cents"`
	AmountCurrency    string    `grove:"amount_currency"`
	Type              string    `grove:"type"`
	ExternalReference string    `grove:"external_reference"`
	CreatedAt         time.Time `grove:"created_at"`
	UpdatedAt         time.Time `grove:"updated_at"`
}

func toDepositModel(d *deposit.Deposit) *depositModel {
	return &depositModel{
		ID:                d.ID.String(),
		InvestorID:        d.InvestorID.String(),
		CycleID:           d.CycleID.String(),
		AmountCents:       d.Amount.Amount,
		AmountCurrency:    d.Amount.Currency,
		Type:              string(d.Type),
		ExternalReference: d.ExternalReference,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

func fromDepositModel(m *depositModel) (*deposit.Deposit, error) {
	depositID, err := id.ParseDepositID(m.ID)
	if err != nil {
		return nil, err
	}
	investorID, err := id.ParseInvestorID(m.InvestorID)
	if err != nil {
		return nil, err
	}
	cycleID, err := id.ParseCycleID(m.CycleID)
	if err != nil {
		return nil, err
	}

	return &deposit.Deposit{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                depositID,
		InvestorID:        investorID,
		CycleID:           cycleID,
		Amount:            types.Money{Amount: m.AmountCents, Currency: m.AmountCurrency},
		Type:              deposit.Type(m.Type),
		ExternalReference: m.ExternalReference,
	}, nil
}

// ==================== Withdrawal models ====================

type withdrawalModel struct {
	grove.BaseModel `grove:"table:fundpool_withdrawals"`

	ID                    string     `grove:"id,pk"`
	InvestorID            string     `grove:"investor_id"`
	CycleID               string     `grove:"cycle_id"`
	RequestedAmountCents  int64      `grove:"requested_amount_cents"`
	RequestedCurrency     string     `grove:"requested_currency"`
	Status                string     `grove:"status"`
	NoticeExpiresAt       time.Time  `grove:"notice_expires_at"`
	NetAmountCents        int64      `grove:"net_amount_cents"`
	NetCurrency           string     `grove:"net_currency"`
	ReinvestedAmountCents int64      `grove:"reinvested_amount_cents"`
	ReinvestedCurrency    string     `grove:"reinvested_currency"`
	Override              bool       `grove:"override"`
	OverrideReason        string     `grove:"override_reason"`
	Notes                 string     `grove:"notes"`
	ResolvedAt            *time.Time `grove:"resolved_at"`
	CreatedAt             time.Time  `grove:"created_at"`
	UpdatedAt             time.Time  `grove:"updated_at"`
}

func toWithdrawalModel(w *withdrawal.Withdrawal) *withdrawalModel {
	return &withdrawalModel{
		ID:                    w.ID.String(),
		InvestorID:            w.InvestorID.String(),
		CycleID:               w.CycleID.String(),
		RequestedAmountCents:  w.RequestedAmount.Amount,
		RequestedCurrency:     w.RequestedAmount.Currency,
		Status:                string(w.Status),
		NoticeExpiresAt:       w.NoticeExpiresAt,
		NetAmountCents:        w.NetAmount.Amount,
		NetCurrency:           w.NetAmount.Currency,
		ReinvestedAmountCents: w.ReinvestedAmount.Amount,
		ReinvestedCurrency:    w.ReinvestedAmount.Currency,
		Override:              w.Override,
		OverrideReason:        w.OverrideReason,
		Notes:                 w.Notes,
		ResolvedAt:            w.ResolvedAt,
		CreatedAt:             w.CreatedAt,
		UpdatedAt:             w.UpdatedAt,
	}
}

func fromWithdrawalModel(m *withdrawalModel) (*withdrawal.Withdrawal, error) {
	withdrawalID, err := id.ParseWithdrawalID(m.ID)
	if err != nil {
		return nil, err
	}
	investorID, err := id.ParseInvestorID(m.InvestorID)
	if err != nil {
		return nil, err
	}
	cycleID, err := id.ParseCycleID(m.CycleID)
	if err != nil {
		return nil, err
	}

	return &withdrawal.Withdrawal{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:               withdrawalID,
		InvestorID:       investorID,
		CycleID:          cycleID,
		RequestedAmount:  types.Money{Amount: m.RequestedAmountCents, Currency: m.RequestedCurrency},
		Status:           withdrawal.Status(m.Status),
		NoticeExpiresAt:  m.NoticeExpiresAt,
		NetAmount:        types.Money{Amount: m.NetAmountCents, Currency: m.NetCurrency},
		ReinvestedAmount: types.Money{Amount: m.ReinvestedAmountCents, Currency: m.ReinvestedCurrency},
		Override:         m.Override,
		OverrideReason:   m.OverrideReason,
		Notes:            m.Notes,
		ResolvedAt:       m.ResolvedAt,
	}, nil
}

// ==================== Share models ====================

type shareModel struct {
	grove.BaseModel `grove:"table:fundpool_shares"`

	ID                      string    `grove:"id,pk"`
	InvestorID              string    `grove:"investor_id"`
	CycleID                 string    `grove:"cycle_id"`
	Percent                 string    `grove:"percent"`
	ContributionAmountCents int64     `grove:"contribution_amount_cents"`
	ContributionCurrency    string    `grove:"contribution_currency"`
	CreatedAt               time.Time `grove:"created_at"`
	UpdatedAt               time.Time `grove:"updated_at"`
}

func toShareModel(sh *share.Share) *shareModel {
	return &shareModel{
		ID:                      sh.ID.String(),
		InvestorID:              sh.InvestorID.String(),
		CycleID:                 sh.CycleID.String(),
		Percent:                 sh.Percent.StringFixed(share.Places),
		ContributionAmountCents: sh.Contribution.Amount,
		ContributionCurrency:    sh.Contribution.Currency,
		CreatedAt:               sh.CreatedAt,
		UpdatedAt:               sh.UpdatedAt,
	}
}

func fromShareModel(m *shareModel) (*share.Share, error) {
	shareID, err := id.ParseShareID(m.ID)
	if err != nil {
		return nil, err
	}
	investorID, err := id.ParseInvestorID(m.InvestorID)
	if err != nil {
		return nil, err
	}
	cycleID, err := id.ParseCycleID(m.CycleID)
	if err != nil {
		return nil, err
	}
	percent, err := decimal.NewFromString(m.Percent)
	if err != nil {
		return nil, err
	}

	return &share.Share{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           shareID,
		InvestorID:   investorID,
		CycleID:      cycleID,
		Percent:      percent,
		Contribution: types.Money{Amount: m.ContributionAmountCents, Currency: m.ContributionCurrency},
	}, nil
}
