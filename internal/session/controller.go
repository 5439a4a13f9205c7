package session

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/grammarctl/internal/fault"
	"github.com/roach88/grammarctl/internal/grammar"
	"github.com/roach88/grammarctl/internal/recognizer"
)

// DefaultConfidenceThreshold is the threshold used until SetThreshold.
const DefaultConfidenceThreshold = 0.5

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithObserver registers an observer for session events.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		c.observer = o
	}
}

// WithIDGenerator sets the session ID generator. Defaults to UUIDv7.
func WithIDGenerator(g IDGenerator) Option {
	return func(c *Controller) {
		c.ids = g
	}
}

// WithUpdateTimeout bounds every rendezvous wait. Zero waits until the
// context passed to ReloadGrammar is done.
func WithUpdateTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.updateTimeout = d
	}
}

// WithClock sets the time source for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// Stats counts controller operations that reached the engine.
type Stats struct {
	Reinitializes int
	Reloads       int
	Starts        int
	Stops         int
}

// Controller is the session state machine.
//
// It exclusively owns the live recognizer.Handle; nothing outside the
// controller holds a reference that outlives Reinitialize.
//
// Thread-safety: every method except Sink accessors must be called from a
// single goroutine (the evaluation cycle).
type Controller struct {
	engine        recognizer.Engine
	sink          *Sink
	rv            *Rendezvous
	logger        *slog.Logger
	observer      Observer
	ids           IDGenerator
	updateTimeout time.Duration
	now           func() time.Time

	handle    *recognizer.Handle
	live      atomic.Pointer[recognizer.Handle] // read by the worker
	culture   string
	state     State
	sessionID string
	current   *grammar.Spec
	stats     Stats
}

// NewController creates a controller in StateNoEngine.
func NewController(engine recognizer.Engine, opts ...Option) *Controller {
	c := &Controller{
		engine: engine,
		logger: slog.Default(),
		ids:    UUIDv7Generator{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.rv = NewRendezvous(c.updateTimeout)
	c.sink = NewSink(DefaultConfidenceThreshold)
	c.sink.observer = c.observer
	c.sink.logger = c.logger
	c.sink.now = c.now
	return c
}

// Sink returns the output sink.
func (c *Controller) Sink() *Sink { return c.sink }

// State returns the current state.
func (c *Controller) State() State { return c.state }

// Culture returns the culture of the last reinitialize.
func (c *Controller) Culture() string { return c.culture }

// SessionID returns the ID of the current engine session, or "".
func (c *Controller) SessionID() string { return c.sessionID }

// Grammar returns the loaded grammar spec, or nil.
func (c *Controller) Grammar() *grammar.Spec { return c.current }

// Stats returns operation counters.
func (c *Controller) Stats() Stats { return c.stats }

// RecognizerPresent reports whether a recognizer is bound.
func (c *Controller) RecognizerPresent() bool {
	return c.handle.Present()
}

// LoadedGrammars lists the grammars loaded in the bound recognizer.
func (c *Controller) LoadedGrammars() []recognizer.LoadedGrammar {
	return c.handle.LoadedGrammars()
}

// SetThreshold sets the confidence threshold for the recognized bang.
func (c *Controller) SetThreshold(threshold float64) {
	c.sink.SetThreshold(threshold)
}

// Reinitialize disposes the current recognizer and binds a new one to
// culture. On failure the controller enters StateCultureRejected.
func (c *Controller) Reinitialize(culture string) error {
	c.stats.Reinitializes++
	c.disposeHandle()
	c.culture = culture

	h, err := recognizer.Create(c.engine, culture, c.callbacks())
	if err != nil {
		c.sessionID = ""
		c.sink.setSession("", culture)
		c.setState(StateCultureRejected)
		c.report("reinitialize", err)
		c.emit(Event{Kind: EventCultureRejected, Code: fault.CodeOf(err), Message: err.Error()})
		return err
	}

	c.handle = h
	c.live.Store(h)
	c.sessionID = c.ids.Generate()
	c.sink.setSession(c.sessionID, culture)
	c.setState(StateBound)

	c.logger.Info("recognizer bound",
		"session", c.sessionID,
		"culture", culture,
		"backend", h.Backend())
	c.emit(Event{Kind: EventReinitialized})
	return nil
}

// ReloadGrammar replaces the loaded grammar with one built from groups.
//
// Recognition is stopped first if running and is not resumed. The old
// grammar is unloaded and the new one loaded on the engine's turn, each
// through the rendezvous. On any failure the controller stays in
// StateBound with no grammar loaded (or, if unloading itself failed, keeps
// the old grammar).
func (c *Controller) ReloadGrammar(ctx context.Context, groups []grammar.ChoiceGroup) error {
	if !c.state.HasEngine() {
		err := fault.New(fault.EngineNotPresent, "reload_grammar",
			"can't reload grammar: speech recognition engine is not present").WithCulture(c.culture)
		c.ReportFault("reload_grammar", err)
		return err
	}
	c.stats.Reloads++

	if c.state == StateRecognizing {
		c.stopRecognition()
	}

	unloaded := false
	if c.handle.LoadedGrammarCount() > 0 {
		if err := c.rv.RequestAndWait(ctx, c.handle.RequestUpdate, c.handle.UnloadAll); err != nil {
			c.report("unload_grammar", err)
			c.emit(Event{Kind: EventGrammarFailed, Code: fault.CodeOf(err), Message: err.Error()})
			return err
		}
		unloaded = true
	}
	c.current = nil
	c.setState(StateBound)
	if unloaded {
		c.emit(Event{Kind: EventGrammarUnloaded})
	}

	spec, err := grammar.Build(groups, c.culture)
	if err != nil {
		c.report("build_grammar", err)
		c.emit(Event{Kind: EventGrammarFailed, Code: fault.CodeOf(err), Message: err.Error()})
		return err
	}

	compiled, err := c.handle.Compile(spec)
	if err != nil {
		c.report("compile_grammar", err)
		c.emit(Event{Kind: EventGrammarFailed, Code: fault.CodeOf(err), Message: err.Error()})
		return err
	}

	var loadErr error
	err = c.rv.RequestAndWait(ctx, c.handle.RequestUpdate, func() {
		loadErr = c.handle.Load(compiled)
	})
	if err == nil {
		err = loadErr
	}
	if err != nil {
		c.report("load_grammar", err)
		c.emit(Event{Kind: EventGrammarFailed, Code: fault.CodeOf(err), Message: err.Error()})
		return err
	}

	c.current = spec
	c.setState(StateGrammarReady)
	c.logger.Info("grammar loaded",
		"session", c.sessionID,
		"culture", c.culture,
		"elements", len(spec.Elements),
		"skipped", len(spec.Skipped),
		"fingerprint", spec.Fingerprint()[:12])
	c.emit(Event{Kind: EventGrammarLoaded, Fingerprint: spec.Fingerprint(), Skipped: len(spec.Skipped)})
	return nil
}

// Start begins continuous recognition. No-op unless a grammar is loaded;
// idempotent while recognizing.
func (c *Controller) Start() error {
	if c.state != StateGrammarReady {
		return nil
	}
	if err := c.handle.RecognizeStart(); err != nil {
		c.ReportFault("start", err)
		return err
	}
	c.stats.Starts++
	c.setState(StateRecognizing)
	c.logger.Info("recognition started", "session", c.sessionID, "culture", c.culture)
	c.emit(Event{Kind: EventRecognitionStarted})
	return nil
}

// Stop cancels recognition immediately. No-op unless recognizing.
func (c *Controller) Stop() error {
	if c.state != StateRecognizing {
		return nil
	}
	c.stopRecognition()
	return nil
}

func (c *Controller) stopRecognition() {
	if err := c.handle.RecognizeStop(); err != nil {
		c.ReportFault("stop", err)
	}
	c.stats.Stops++
	c.setState(StateGrammarReady)
	c.logger.Info("recognition stopped", "session", c.sessionID, "culture", c.culture)
	c.emit(Event{Kind: EventRecognitionStopped})
}

// Close disposes the recognizer and returns to StateNoEngine.
func (c *Controller) Close() error {
	c.disposeHandle()
	c.setState(StateNoEngine)
	return nil
}

// disposeHandle releases the current handle, if any, exactly once.
func (c *Controller) disposeHandle() {
	h := c.handle
	if h == nil {
		return
	}
	c.handle = nil
	c.live.Store(nil)
	c.current = nil

	if err := h.Dispose(); err != nil {
		c.logger.Warn("failed to dispose recognizer", "session", c.sessionID, "error", err)
	}
	c.emit(Event{Kind: EventDisposed})
	c.setState(StateNoEngine)
}

func (c *Controller) setState(s State) {
	c.state = s
	c.sink.setEngine(s, s.HasEngine(), s.GrammarLoaded())
}

// report logs a recoverable fault.
func (c *Controller) report(op string, err error) {
	c.logger.Error("session operation failed",
		"op", op,
		"session", c.sessionID,
		"culture", c.culture,
		"code", string(fault.CodeOf(err)),
		"error", err)
}

// ReportFault logs err and reports it to observers as a fault event.
// Operations whose own event already carries the fault code use report.
func (c *Controller) ReportFault(op string, err error) {
	c.report(op, err)
	c.emit(Event{Kind: EventFault, Code: fault.CodeOf(err), Message: err.Error()})
}

func (c *Controller) emit(e Event) {
	if c.observer == nil {
		return
	}
	e.At = c.now()
	e.Session = c.sessionID
	e.Culture = c.culture
	e.State = c.state
	c.observer.Observe(e)
}

// callbacks wires engine events to the sink and the rendezvous.
func (c *Controller) callbacks() recognizer.Callbacks {
	return recognizer.Callbacks{
		SpeechRecognized:          c.sink.Recognized,
		SpeechRecognitionRejected: c.sink.Rejected,
		SpeechDetected:            c.sink.SpeechDetected,
		UpdateReached:             c.updateReached,
		LoadGrammarCompleted:      c.loadGrammarCompleted,
	}
}

// updateReached runs on the engine worker.
func (c *Controller) updateReached(token any) {
	if !c.rv.Reached(token) {
		return
	}
	if !c.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	h := c.live.Load()
	c.logger.Debug("update reached")
	for _, g := range h.LoadedGrammars() {
		qualifier := "disabled"
		if g.Enabled {
			qualifier = "enabled"
		}
		c.logger.Debug("grammar is loaded", "name", g.Name, "status", qualifier)
	}
}

// loadGrammarCompleted runs on the engine worker. It is informational only.
func (c *Controller) loadGrammarCompleted(name string, err error) {
	if err != nil {
		c.logger.Debug("grammar load completed with error", "name", name, "error", err)
		return
	}
	c.logger.Debug("grammar load completed", "name", name)
}
