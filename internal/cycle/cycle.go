// Package cycle runs the per-tick evaluation that reconciles the declarative
// configuration with the session controller.
package cycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/grammarctl/internal/fault"
	"github.com/roach88/grammarctl/internal/grammar"
	"github.com/roach88/grammarctl/internal/session"
)

// Config is the declarative input read every tick.
type Config struct {
	Culture             string
	Enabled             bool
	ConfidenceThreshold float64
	Groups              []grammar.ChoiceGroup
}

// snapshot is the previous tick's configuration, used only for diffing.
type snapshot struct {
	culture string
	enabled bool
	groups  []grammar.ChoiceGroup
}

// Report describes one completed tick.
type Report struct {
	Tick           int
	CultureChanged bool
	EnabledChanged bool
	GroupsChanged  bool

	// Reloads is the number of grammar reloads performed this tick.
	Reloads int

	// Errors are the recoverable faults reported during the tick.
	Errors []error

	Outputs session.Outputs
}

// Changed reports whether any input changed this tick.
func (r Report) Changed() bool {
	return r.CultureChanged || r.EnabledChanged || r.GroupsChanged
}

// Option configures a Cycle.
type Option func(*Cycle)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Cycle) {
		c.logger = l
	}
}

// Cycle drives a session.Controller from per-tick configuration.
//
// The first tick treats every input as changed. Tick must be called from a
// single goroutine; it never fails, faults are logged and returned in the
// Report.
type Cycle struct {
	ctrl   *session.Controller
	logger *slog.Logger
	prev   *snapshot
	tick   int
}

// New creates a cycle around ctrl.
func New(ctrl *session.Controller, opts ...Option) *Cycle {
	c := &Cycle{ctrl: ctrl, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Controller returns the driven controller.
func (c *Cycle) Controller() *session.Controller {
	return c.ctrl
}

// Tick runs one evaluation cycle and returns the sampled outputs.
func (c *Cycle) Tick(ctx context.Context, cfg Config) Report {
	c.tick++
	rep := Report{Tick: c.tick}
	sink := c.ctrl.Sink()
	reloadsBefore := c.ctrl.Stats().Reloads

	// Step 1: clear a recognition that was sampled last cycle.
	sink.BeginCycle()
	sink.SetThreshold(cfg.ConfidenceThreshold)

	if c.prev == nil {
		rep.CultureChanged, rep.EnabledChanged, rep.GroupsChanged = true, true, true
	} else {
		rep.CultureChanged = cfg.Culture != c.prev.culture
		rep.EnabledChanged = cfg.Enabled != c.prev.enabled
		rep.GroupsChanged = !grammar.GroupsEqual(cfg.Groups, c.prev.groups)
	}

	// Step 2: rebind, then restore the grammar against the new engine.
	reloaded := false
	if rep.CultureChanged {
		c.logger.Debug("culture changed", "tick", c.tick, "culture", cfg.Culture)
		rep.record(c.ctrl.Reinitialize(cfg.Culture))
		rep.record(c.ctrl.ReloadGrammar(ctx, cfg.Groups))
		reloaded = true
		if cfg.Enabled {
			rep.record(c.ctrl.Start())
		}
	}

	// Step 3: follow the enabled flag.
	if rep.EnabledChanged {
		switch {
		case !c.ctrl.RecognizerPresent():
			err := fault.New(fault.EngineNotPresent, "set_enabled",
				"can't start/stop speech recognition: engine is not present").WithCulture(cfg.Culture)
			c.ctrl.ReportFault("set_enabled", err)
			rep.record(err)
		case cfg.Enabled:
			rep.record(c.ctrl.Start())
		default:
			rep.record(c.ctrl.Stop())
		}
	}

	// Step 4: one reload for any group change, unless step 2 already
	// reloaded these groups.
	if rep.GroupsChanged && !reloaded {
		c.logger.Debug("choice groups changed", "tick", c.tick, "groups", len(cfg.Groups))
		rep.record(c.ctrl.ReloadGrammar(ctx, cfg.Groups))
		if cfg.Enabled {
			rep.record(c.ctrl.Start())
		}
	}

	// Step 5: no stale results across a reconfiguration.
	if rep.Changed() {
		sink.ResetResult()
	}

	// Step 6
	c.prev = &snapshot{
		culture: cfg.Culture,
		enabled: cfg.Enabled,
		groups:  grammar.CloneGroups(cfg.Groups),
	}

	rep.Reloads = c.ctrl.Stats().Reloads - reloadsBefore
	rep.Outputs = sink.Snapshot()
	return rep
}

func (r *Report) record(err error) {
	if err != nil {
		r.Errors = append(r.Errors, err)
	}
}

// Source yields the configuration for the next tick.
type Source func() Config

// Run ticks the cycle every interval until ctx is done, passing each
// report to onTick (which may be nil). The controller is closed on return.
func (c *Cycle) Run(ctx context.Context, interval time.Duration, source Source, onTick func(Report)) error {
	slog.Info("evaluation cycle starting", "interval", interval.String())
	defer func() {
		if err := c.ctrl.Close(); err != nil {
			slog.Warn("failed to close session", "error", err)
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		rep := c.Tick(ctx, source())
		if onTick != nil {
			onTick(rep)
		}

		select {
		case <-ctx.Done():
			slog.Info("evaluation cycle stopping: context cancelled", "ticks", c.tick)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
