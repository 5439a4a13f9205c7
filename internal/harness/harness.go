package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"
	"time"

	"golang.org/x/text/language"

	"github.com/roach88/grammarctl/internal/cycle"
	"github.com/roach88/grammarctl/internal/fault"
	"github.com/roach88/grammarctl/internal/grammar"
	"github.com/roach88/grammarctl/internal/recognizer/simulated"
	"github.com/roach88/grammarctl/internal/session"
	"github.com/roach88/grammarctl/internal/store"
	"github.com/roach88/grammarctl/internal/testutil"
)

// DefaultUpdateTimeout bounds rendezvous waits when a scenario sets none.
const DefaultUpdateTimeout = 2 * time.Second

// Harness is the test execution engine.
// It runs scenarios with deterministic clock and session IDs.
type Harness struct {
	store    *store.Store
	recorder *store.Recorder
	engine   *simulated.Engine
	cycle    *cycle.Cycle
	clock    *testutil.DeterministicClock
	logger   *slog.Logger
	cfg      cycle.Config
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh in-memory event log and a fresh
// simulated backend.
//
// Execution flow:
// 1. Create in-memory event log and simulated backend
// 2. Execute steps, validating each expect clause
// 3. Close the session and flush the event log
// 4. Build the trace and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(scenario, st)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			h.shutdown()
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}
	h.shutdown()

	records, err := st.ReadEvents(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	for _, rec := range records {
		result.Trace = append(result.Trace, TraceEvent{
			Seq:        rec.Seq,
			Kind:       rec.Kind,
			Session:    rec.Session,
			Culture:    rec.Culture,
			State:      rec.State,
			Text:       rec.Text,
			Confidence: rec.Confidence,
			Accepted:   rec.Accepted,
			Choices:    rec.Choices,
			Code:       rec.Code,
		})
	}

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

func newHarness(scenario *Scenario, st *store.Store) (*Harness, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	var engineOpts []simulated.Option
	if len(scenario.Cultures) > 0 {
		tags := make([]language.Tag, 0, len(scenario.Cultures))
		for _, c := range scenario.Cultures {
			tag, err := grammar.ParseCulture(c)
			if err != nil {
				return nil, fmt.Errorf("cultures: %w", err)
			}
			tags = append(tags, tag)
		}
		engineOpts = append(engineOpts, simulated.WithCultures(tags...))
	}
	if scenario.RejectLoads {
		engineOpts = append(engineOpts, simulated.WithLoadRejecter(func(*grammar.Spec) error {
			return fault.New(fault.LoadRejected, "load_grammar", "grammar rejected by recognizer")
		}))
	}
	eng := simulated.New(engineOpts...)

	timeout := DefaultUpdateTimeout
	if scenario.UpdateTimeout != "" {
		d, err := time.ParseDuration(scenario.UpdateTimeout)
		if err != nil {
			return nil, fmt.Errorf("update_timeout: %w", err)
		}
		timeout = d
	}

	clock := testutil.NewDeterministicClock()
	rec := store.NewRecorder(st)
	ctrl := session.NewController(eng,
		session.WithLogger(logger),
		session.WithObserver(rec),
		session.WithIDGenerator(session.NewSequenceGenerator("session")),
		session.WithUpdateTimeout(timeout),
		session.WithClock(clock.Now),
	)

	cfg := cycle.Config{
		Culture:             scenario.Node.Culture,
		Enabled:             true,
		ConfidenceThreshold: session.DefaultConfidenceThreshold,
		Groups:              grammar.CloneGroups(scenario.Node.Groups),
	}
	if scenario.Node.Enabled != nil {
		cfg.Enabled = *scenario.Node.Enabled
	}
	if scenario.Node.ConfidenceThreshold != nil {
		cfg.ConfidenceThreshold = *scenario.Node.ConfidenceThreshold
	}

	return &Harness{
		store:    st,
		recorder: rec,
		engine:   eng,
		cycle:    cycle.New(ctrl, cycle.WithLogger(logger)),
		clock:    clock,
		logger:   logger,
		cfg:      cfg,
	}, nil
}

// shutdown closes the session and flushes every recorded event.
func (h *Harness) shutdown() {
	if inst := h.engine.Live(); inst != nil {
		inst.Unwedge()
	}
	if err := h.cycle.Controller().Close(); err != nil {
		h.logger.Warn("failed to close session", "error", err)
	}
	h.recorder.Close()
}

// executeStep applies one step and validates its expect clause.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	if step.Wedge != nil {
		inst := h.engine.Live()
		if inst == nil {
			return fmt.Errorf("wedge: no live recognizer")
		}
		if *step.Wedge {
			inst.Wedge()
		} else {
			inst.Unwedge()
		}
	}

	if step.Set != nil {
		h.applyPatch(*step.Set)
	}

	if step.Say != nil {
		if !h.engine.Say(step.Say.Text, step.Say.Confidence) {
			h.logger.Info("utterance dropped: no live recognizer", "step", index, "text", step.Say.Text)
		}
		h.engine.Drain()
	}

	ticks := step.Ticks
	if ticks == 0 {
		ticks = 1
	}

	var last TickSnapshot
	for n := 0; n < ticks; n++ {
		rep := h.cycle.Tick(ctx, h.cfg)
		last = snapshotOf(index, rep)
		result.Ticks = append(result.Ticks, last)
	}

	if step.Expect != nil {
		for _, msg := range checkExpect(index, *step.Expect, last) {
			result.AddError(msg)
		}
	}

	h.logger.Info("step completed",
		"step", index,
		"ticks", ticks,
		"state", last.State)
	return nil
}

func (h *Harness) applyPatch(p Patch) {
	if p.Culture != nil {
		h.cfg.Culture = *p.Culture
	}
	if p.Enabled != nil {
		h.cfg.Enabled = *p.Enabled
	}
	if p.ConfidenceThreshold != nil {
		h.cfg.ConfidenceThreshold = *p.ConfidenceThreshold
	}
	if p.Groups != nil {
		h.cfg.Groups = grammar.CloneGroups(*p.Groups)
	}
}

func snapshotOf(step int, rep cycle.Report) TickSnapshot {
	out := rep.Outputs
	snap := TickSnapshot{
		Step:           step,
		Tick:           rep.Tick,
		Reloads:        rep.Reloads,
		Result:         out.RecognitionResult,
		Confidence:     out.Confidence,
		Recognized:     out.OnRecognized,
		SpeechDetected: out.OnSpeechDetected,
		CultureFound:   out.RecognizerForCultureFound,
		GrammarLoaded:  out.GrammarLoaded,
		Choices:        out.Choices,
		State:          out.State.String(),
	}
	if rep.CultureChanged {
		snap.Changed = append(snap.Changed, "culture")
	}
	if rep.EnabledChanged {
		snap.Changed = append(snap.Changed, "enabled")
	}
	if rep.GroupsChanged {
		snap.Changed = append(snap.Changed, "groups")
	}
	for _, err := range rep.Errors {
		snap.Errors = append(snap.Errors, string(fault.CodeOf(err)))
	}
	return snap
}

// checkExpect compares a tick snapshot against an expect clause.
func checkExpect(step int, e ExpectClause, got TickSnapshot) []string {
	var errs []string
	mismatch := func(field string, want, actual any) {
		errs = append(errs, fmt.Sprintf("step %d (tick %d): %s = %v, expected %v",
			step, got.Tick, field, actual, want))
	}

	if e.Result != nil && *e.Result != got.Result {
		mismatch("result", *e.Result, got.Result)
	}
	if e.Confidence != nil && math.Abs(*e.Confidence-got.Confidence) > 1e-9 {
		mismatch("confidence", *e.Confidence, got.Confidence)
	}
	if e.Recognized != nil && *e.Recognized != got.Recognized {
		mismatch("recognized", *e.Recognized, got.Recognized)
	}
	if e.SpeechDetected != nil && *e.SpeechDetected != got.SpeechDetected {
		mismatch("speech_detected", *e.SpeechDetected, got.SpeechDetected)
	}
	if e.CultureFound != nil && *e.CultureFound != got.CultureFound {
		mismatch("culture_found", *e.CultureFound, got.CultureFound)
	}
	if e.GrammarLoaded != nil && *e.GrammarLoaded != got.GrammarLoaded {
		mismatch("grammar_loaded", *e.GrammarLoaded, got.GrammarLoaded)
	}
	if e.State != "" && e.State != got.State {
		mismatch("state", e.State, got.State)
	}
	if e.Choices != nil && !slices.Equal(e.Choices, got.Choices) {
		mismatch("choices", e.Choices, got.Choices)
	}
	if e.Reloads != nil && *e.Reloads != got.Reloads {
		mismatch("reloads", *e.Reloads, got.Reloads)
	}
	if e.Errors != nil && !slices.Equal(e.Errors, got.Errors) && (len(e.Errors) > 0 || len(got.Errors) > 0) {
		mismatch("errors", e.Errors, got.Errors)
	}
	return errs
}
