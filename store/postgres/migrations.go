package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Fundpool store.
var Migrations = migrate.NewGroup("fundpool")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_fundpool_investors",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS fundpool_investors (
    id         TEXT PRIMARY KEY,
    reference  TEXT NOT NULL DEFAULT '',
    status     TEXT NOT NULL DEFAULT 'active',
    joined_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    metadata   JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_fundpool_investors_reference ON fundpool_investors (reference);
CREATE INDEX IF NOT EXISTS idx_fundpool_investors_status ON fundpool_investors (status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS fundpool_investors`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_fundpool_cycles",
			Version: "20260101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS fundpool_cycles (
    id                        TEXT PRIMARY KEY,
    year                      INT NOT NULL DEFAULT 0,
    month                     INT NOT NULL DEFAULT 0,
    status                    TEXT NOT NULL DEFAULT 'open',
    revision                  BIGINT NOT NULL DEFAULT 0,
    profit_amount_cents       BIGINT NOT NULL DEFAULT 0,
    profit_currency           TEXT NOT NULL DEFAULT '',
    payout_amount_cents       BIGINT NOT NULL DEFAULT 0,
    payout_currency           TEXT NOT NULL DEFAULT '',
    reinvestment_amount_cents BIGINT NOT NULL DEFAULT 0,
    reinvestment_currency     TEXT NOT NULL DEFAULT '',
    fee_amount_cents          BIGINT NOT NULL DEFAULT 0,
    fee_currency              TEXT NOT NULL DEFAULT '',
    payouts                   JSONB NOT NULL DEFAULT '[]',
    opened_at                 TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    settled_at                TIMESTAMPTZ,
    notes                     TEXT NOT NULL DEFAULT '',
    created_at                TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at                TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_fundpool_cycles_period ON fundpool_cycles (year, month);
CREATE UNIQUE INDEX IF NOT EXISTS idx_fundpool_cycles_single_open ON fundpool_cycles (status) WHERE status = 'open';
CREATE INDEX IF NOT EXISTS idx_fundpool_cycles_status ON fundpool_cycles (status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS fundpool_cycles`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_fundpool_deposits",
			Version: "20260101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS fundpool_deposits (
    id                 TEXT PRIMARY KEY,
    investor_id        TEXT NOT NULL DEFAULT '',
    cycle_id           TEXT NOT NULL DEFAULT '',
    amount_cents       BIGINT NOT NULL DEFAULT 0,
    amount_currency    TEXT NOT NULL DEFAULT '',
    type               TEXT NOT NULL DEFAULT '',
    external_reference TEXT NOT NULL DEFAULT '',
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_fundpool_deposits_cycle ON fundpool_deposits (cycle_id);
CREATE INDEX IF NOT EXISTS idx_fundpool_deposits_investor ON fundpool_deposits (investor_id, cycle_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS fundpool_deposits`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_fundpool_withdrawals",
			Version: "20260101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS fundpool_withdrawals (
    id                      TEXT PRIMARY KEY,
    investor_id             TEXT NOT NULL DEFAULT '',
    cycle_id                TEXT NOT NULL DEFAULT '',
    requested_amount_cents  BIGINT NOT NULL DEFAULT 0,
    requested_currency      TEXT NOT NULL DEFAULT '',
    status                  TEXT NOT NULL DEFAULT 'pending',
    notice_expires_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    net_amount_cents        BIGINT NOT NULL DEFAULT 0,
    net_currency            TEXT NOT NULL DEFAULT '',
    reinvested_amount_cents BIGINT NOT NULL DEFAULT 0,
    reinvested_currency     TEXT NOT NULL DEFAULT '',
    override                BOOLEAN NOT NULL DEFAULT FALSE,
    override_reason         TEXT NOT NULL DEFAULT '',
    notes                   TEXT NOT NULL DEFAULT '',
    resolved_at             TIMESTAMPTZ,
    created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_fundpool_withdrawals_cycle ON fundpool_withdrawals (cycle_id, status);
CREATE INDEX IF NOT EXISTS idx_fundpool_withdrawals_investor ON fundpool_withdrawals (investor_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS fundpool_withdrawals`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_fundpool_shares",
			Version: "20260101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS fundpool_shares (
    id                        TEXT PRIMARY KEY,
    investor_id               TEXT NOT NULL DEFAULT '',
    cycle_id                  TEXT NOT NULL DEFAULT '',
    percent                   TEXT NOT NULL DEFAULT '0.000000',
    contribution_amount_cents BIGINT NOT NULL DEFAULT 0,
    contribution_currency     TEXT NOT NULL DEFAULT '',
    created_at                TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at                TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_fundpool_shares_cycle_investor ON fundpool_shares (cycle_id, investor_id);
CREATE INDEX IF NOT EXISTS idx_fundpool_shares_cycle ON fundpool_shares (cycle_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS fundpool_shares`)
				return err
			},
		},
	)
}
