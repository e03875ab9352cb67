package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit                []OnInit
	onShutdown            []OnShutdown
	onInvestorJoined      []OnInvestorJoined
	onDepositRecorded     []OnDepositRecorded
	onWithdrawalRequested []OnWithdrawalRequested
	onWithdrawalApproved  []OnWithdrawalApproved
	onWithdrawalDenied    []OnWithdrawalDenied
	onCycleOpened         []OnCycleOpened
	onCycleSettling       []OnCycleSettling
	onCycleSettled        []OnCycleSettled
	onSharesRecomputed    []OnSharesRecomputed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnInvestorJoined); ok {
		r.onInvestorJoined = append(r.onInvestorJoined, v)
	}
	if v, ok := p.(OnDepositRecorded); ok {
		r.onDepositRecorded = append(r.onDepositRecorded, v)
	}
	if v, ok := p.(OnWithdrawalRequested); ok {
		r.onWithdrawalRequested = append(r.onWithdrawalRequested, v)
	}
	if v, ok := p.(OnWithdrawalApproved); ok {
		r.onWithdrawalApproved = append(r.onWithdrawalApproved, v)
	}
	if v, ok := p.(OnWithdrawalDenied); ok {
		r.onWithdrawalDenied = append(r.onWithdrawalDenied, v)
	}
	if v, ok := p.(OnCycleOpened); ok {
		r.onCycleOpened = append(r.onCycleOpened, v)
	}
	if v, ok := p.(OnCycleSettling); ok {
		r.onCycleSettling = append(r.onCycleSettling, v)
	}
	if v, ok := p.(OnCycleSettled); ok {
		r.onCycleSettled = append(r.onCycleSettled, v)
	}
	if v, ok := p.(OnSharesRecomputed); ok {
		r.onSharesRecomputed = append(r.onSharesRecomputed, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	// Check each interface
	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnInvestorJoined)(nil)).Elem(), "OnInvestorJoined")
	checkInterface(reflect.TypeOf((*OnDepositRecorded)(nil)).Elem(), "OnDepositRecorded")
	checkInterface(reflect.TypeOf((*OnWithdrawalRequested)(nil)).Elem(), "OnWithdrawalRequested")
	checkInterface(reflect.TypeOf((*OnWithdrawalApproved)(nil)).Elem(), "OnWithdrawalApproved")
	checkInterface(reflect.TypeOf((*OnWithdrawalDenied)(nil)).Elem(), "OnWithdrawalDenied")
	checkInterface(reflect.TypeOf((*OnCycleOpened)(nil)).Elem(), "OnCycleOpened")
	checkInterface(reflect.TypeOf((*OnCycleSettling)(nil)).Elem(), "OnCycleSettling")
	checkInterface(reflect.TypeOf((*OnCycleSettled)(nil)).Elem(), "OnCycleSettled")
	checkInterface(reflect.TypeOf((*OnSharesRecomputed)(nil)).Elem(), "OnSharesRecomputed")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInvestorJoined emits an investor joined event.
func (r *Registry) EmitInvestorJoined(ctx context.Context, ivr interface{}) {
	r.mu.RLock()
	plugins := r.onInvestorJoined
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInvestorJoined(ctx, ivr)
		}); err != nil {
			r.logger.Warn("plugin OnInvestorJoined failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitDepositRecorded emits a deposit recorded event.
func (r *Registry) EmitDepositRecorded(ctx context.Context, dep interface{}) {
	r.mu.RLock()
	plugins := r.onDepositRecorded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnDepositRecorded(ctx, dep)
		}); err != nil {
			r.logger.Warn("plugin OnDepositRecorded failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitWithdrawalRequested emits a withdrawal requested event.
func (r *Registry) EmitWithdrawalRequested(ctx context.Context, w interface{}) {
	r.mu.RLock()
	plugins := r.onWithdrawalRequested
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnWithdrawalRequested(ctx, w)
		}); err != nil {
			r.logger.Warn("plugin OnWithdrawalRequested failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitWithdrawalApproved emits a withdrawal approved event.
func (r *Registry) EmitWithdrawalApproved(ctx context.Context, w interface{}) {
	r.mu.RLock()
	plugins := r.onWithdrawalApproved
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnWithdrawalApproved(ctx, w)
		}); err != nil {
			r.logger.Warn("plugin OnWithdrawalApproved failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitWithdrawalDenied emits a withdrawal denied event.
func (r *Registry) EmitWithdrawalDenied(ctx context.Context, w interface{}) {
	r.mu.RLock()
	plugins := r.onWithdrawalDenied
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnWithdrawalDenied(ctx, w)
		}); err != nil {
			r.logger.Warn("plugin OnWithdrawalDenied failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCycleOpened emits a cycle opened event.
func (r *Registry) EmitCycleOpened(ctx context.Context, c interface{}) {
	r.mu.RLock()
	plugins := r.onCycleOpened
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCycleOpened(ctx, c)
		}); err != nil {
			r.logger.Warn("plugin OnCycleOpened failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCycleSettling emits a cycle settling event.
func (r *Registry) EmitCycleSettling(ctx context.Context, c interface{}) {
	r.mu.RLock()
	plugins := r.onCycleSettling
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCycleSettling(ctx, c)
		}); err != nil {
			r.logger.Warn("plugin OnCycleSettling failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCycleSettled emits a cycle settled event.
func (r *Registry) EmitCycleSettled(ctx context.Context, c interface{}) {
	r.mu.RLock()
	plugins := r.onCycleSettled
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCycleSettled(ctx, c)
		}); err != nil {
			r.logger.Warn("plugin OnCycleSettled failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSharesRecomputed emits a shares recomputed event.
func (r *Registry) EmitSharesRecomputed(ctx context.Context, cycleID string, shares []interface{}) {
	r.mu.RLock()
	plugins := r.onSharesRecomputed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSharesRecomputed(ctx, cycleID, shares)
		}); err != nil {
			r.logger.Warn("plugin OnSharesRecomputed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins must never block the ledger pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
