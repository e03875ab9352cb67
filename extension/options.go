package extension

import (
	"time"

	"github.com/xraph/grove"

	fundpool "github.com/xraph/fundpool"
	"github.com/xraph/fundpool/plugin"
	"github.com/xraph/fundpool/store"
	"github.com/xraph/fundpool/store/mongo"
	"github.com/xraph/fundpool/store/postgres"
	"github.com/xraph/fundpool/store/sqlite"
)

// Option configures the Fundpool Forge extension.
type Option func(*Extension)

// WithStore sets the store for the fundpool engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithPostgres backs the engine with a PostgreSQL store on the given grove database.
func WithPostgres(db *grove.DB) Option {
	return func(e *Extension) {
		e.store = postgres.New(db)
	}
}

// WithSQLite backs the engine with a SQLite store on the given grove database.
func WithSQLite(db *grove.DB) Option {
	return func(e *Extension) {
		e.store = sqlite.New(db)
	}
}

// WithMongo backs the engine with a MongoDB store on the given grove database.
func WithMongo(db *grove.DB) Option {
	return func(e *Extension) {
		e.store = mongo.New(db)
	}
}

// WithEngineOption passes a fundpool.Option through to the underlying engine.
func WithEngineOption(opt fundpool.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a fundpool plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, fundpool.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithCurrency sets the pool currency.
func WithCurrency(currency string) Option {
	return func(e *Extension) { e.config.Currency = currency }
}

// WithNoticePeriod sets the withdrawal notice period.
func WithNoticePeriod(d time.Duration) Option {
	return func(e *Extension) { e.config.NoticePeriod = d }
}

// WithLockTimeout bounds how long mutating calls wait for the engine gate.
func WithLockTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.LockTimeout = d }
}

// WithMaxRetries sets the conflict retry budget for mutating calls.
func WithMaxRetries(n int) Option {
	return func(e *Extension) { e.config.MaxRetries = n }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
