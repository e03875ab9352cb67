// Package extension provides the Forge extension adapter for Fundpool.
//
// It implements the forge.Extension interface to integrate Fundpool
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.fundpool" or
// "fundpool" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	fundpool "github.com/xraph/fundpool"
	"github.com/xraph/fundpool/store"
	"github.com/xraph/fundpool/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "fundpool"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Pooled-capital investment ledger engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Fundpool as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *fundpool.Engine
	store      store.Store
	engineOpts []fundpool.Option
}

// New creates a new Fundpool Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Fundpool engine.
// This is nil until Register is called.
func (e *Extension) Engine() *fundpool.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the fundpool engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	// Build engine options from resolved config.
	opts := e.buildEngineOpts()

	eng := fundpool.New(e.store, opts...)
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*fundpool.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("fundpool: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("fundpool: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs fundpool.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []fundpool.Option {
	opts := make([]fundpool.Option, 0, len(e.engineOpts)+4)

	if e.config.Currency != "" {
		opts = append(opts, fundpool.WithCurrency(e.config.Currency))
	}
	if e.config.NoticePeriod > 0 {
		opts = append(opts, fundpool.WithNoticePeriod(e.config.NoticePeriod))
	}
	if e.config.LockTimeout > 0 {
		opts = append(opts, fundpool.WithLockTimeout(e.config.LockTimeout))
	}
	if e.config.MaxRetries > 0 {
		opts = append(opts, fundpool.WithMaxRetries(e.config.MaxRetries))
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("fundpool: configuration is required but not found in config files; " +
				"ensure 'extensions.fundpool' or 'fundpool' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("fundpool: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("currency", e.config.Currency),
		forge.F("notice_period", e.config.NoticePeriod),
		forge.F("lock_timeout", e.config.LockTimeout),
		forge.F("max_retries", e.config.MaxRetries),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.fundpool" first (namespaced pattern).
	if cm.IsSet("extensions.fundpool") {
		if err := cm.Bind("extensions.fundpool", &cfg); err == nil {
			e.Logger().Debug("fundpool: loaded config from file",
				forge.F("key", "extensions.fundpool"),
			)
			return cfg, true
		}
		e.Logger().Warn("fundpool: failed to bind extensions.fundpool config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "fundpool" key.
	if cm.IsSet("fundpool") {
		if err := cm.Bind("fundpool", &cfg); err == nil {
			e.Logger().Debug("fundpool: loaded config from file",
				forge.F("key", "fundpool"),
			)
			return cfg, true
		}
		e.Logger().Warn("fundpool: failed to bind fundpool config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Currency == "" {
		cfg.Currency = defaults.Currency
	}
	if cfg.NoticePeriod == 0 {
		cfg.NoticePeriod = defaults.NoticePeriod
	}
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = defaults.LockTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.Currency == "" && programmaticConfig.Currency != "" {
		yamlConfig.Currency = programmaticConfig.Currency
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.NoticePeriod == 0 && programmaticConfig.NoticePeriod != 0 {
		yamlConfig.NoticePeriod = programmaticConfig.NoticePeriod
	}
	if yamlConfig.LockTimeout == 0 && programmaticConfig.LockTimeout != 0 {
		yamlConfig.LockTimeout = programmaticConfig.LockTimeout
	}
	if yamlConfig.MaxRetries == 0 && programmaticConfig.MaxRetries != 0 {
		yamlConfig.MaxRetries = programmaticConfig.MaxRetries
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
