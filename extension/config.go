package extension

import "time"

// Config holds the Fundpool extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.fundpool" or "fundpool" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Currency is the single pool currency (default: "usd").
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// NoticePeriod is the withdrawal notice period (default: 168h).
	NoticePeriod time.Duration `json:"notice_period" mapstructure:"notice_period" yaml:"notice_period"`

	// LockTimeout bounds how long a mutating call waits for the engine's
	// in-process gate before failing (default: 5s).
	LockTimeout time.Duration `json:"lock_timeout" mapstructure:"lock_timeout" yaml:"lock_timeout"`

	// MaxRetries is how many times a revision or serialization conflict is
	// retried before it is surfaced (default: 3).
	MaxRetries int `json:"max_retries" mapstructure:"max_retries" yaml:"max_retries"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Currency:     "usd",
		NoticePeriod: 7 * 24 * time.Hour,
		LockTimeout:  5 * time.Second,
		MaxRetries:   3,
	}
}
