package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Fundpool store (SQLite).
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
    joined_at  TEXT NOT NULL DEFAULT (datetime('now')),
    metadata   TEXT NOT NULL DEFAULT '{}',
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
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
    year                      INTEGER NOT NULL DEFAULT 0,
    month                     INTEGER NOT NULL DEFAULT 0,
    status                    TEXT NOT NULL DEFAULT 'open',
    revision                  INTEGER NOT NULL DEFAULT 0,
    profit_amount_cents       INTEGER NOT NULL DEFAULT 0,
    profit_currency           TEXT NOT NULL DEFAULT '',
    payout_amount_cents       INTEGER NOT NULL DEFAULT 0,
    payout_currency           TEXT NOT NULL DEFAULT '',
    reinvestment_amount_cents INTEGER NOT NULL DEFAULT 0,
    reinvestment_currency     TEXT NOT NULL DEFAULT '',
    fee_amount_cents          INTEGER NOT NULL DEFAULT 0,
    fee_currency              TEXT NOT NULL DEFAULT '',
    payouts                   TEXT NOT NULL DEFAULT '[]',
    opened_at                 TEXT NOT NULL DEFAULT (datetime('now')),
    settled_at                TEXT,
    notes                     TEXT NOT NULL DEFAULT '',
    created_at                TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at                TEXT NOT NULL DEFAULT (datetime('now'))
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
    amount_cents       INTEGER NOT NULL DEFAULT 0,
    amount_currency    TEXT NOT NULL DEFAULT '',
    type               TEXT NOT NULL DEFAULT '',
    external_reference TEXT NOT NULL DEFAULT '',
    created_at         TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at         TEXT NOT NULL DEFAULT (datetime('now'))
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
    requested_amount_cents  INTEGER NOT NULL DEFAULT 0,
    requested_currency      TEXT NOT NULL DEFAULT '',
    status                  TEXT NOT NULL DEFAULT 'pending',
    notice_expires_at       TEXT NOT NULL DEFAULT (datetime('now')),
    net_amount_cents        INTEGER NOT NULL DEFAULT 0,
    net_currency            TEXT NOT NULL DEFAULT '',
    reinvested_amount_cents INTEGER NOT NULL DEFAULT 0,
    reinvested_currency     TEXT NOT NULL DEFAULT '',
    override                INTEGER NOT NULL DEFAULT 0,
    override_reason         TEXT NOT NULL DEFAULT '',
    notes                   TEXT NOT NULL DEFAULT '',
    resolved_at             TEXT,
    created_at              TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at              TEXT NOT NULL DEFAULT (datetime('now'))
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
    contribution_amount_cents INTEGER NOT NULL DEFAULT 0,
    contribution_currency     TEXT NOT NULL DEFAULT '',
    created_at                TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at                TEXT NOT NULL DEFAULT (datetime('now'))
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
