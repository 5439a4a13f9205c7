package simulated

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/text/language"

	"github.com/roach88/grammarctl/internal/fault"
	"github.com/roach88/grammarctl/internal/grammar"
	"github.com/roach88/grammarctl/internal/recognizer"
)

// Stats counts calls made against an Instance.
type Stats struct {
	RecognizeStarts  int
	RecognizeCancels int
	UpdatesRequested int
	UpdatesReached   int
	Loads            int
	Unloads          int
	Utterances       int
	Closes           int

	// UnsafeMutations counts grammar loads/unloads performed while
	// recognizing but outside an UpdateReached callback.
	UnsafeMutations int
}

// compiledGrammar is the simulated engine's loadable grammar.
type compiledGrammar struct {
	spec   *grammar.Spec
	engine *Engine
}

func (g *compiledGrammar) Name() string        { return g.spec.Name }
func (g *compiledGrammar) Spec() *grammar.Spec { return g.spec }

// Instance is the simulated recognizer.Instance.
//
// INVARIANTS:
//   - Callbacks fire only on the worker goroutine, never with mu held.
//   - No callback fires after Close returns.
type Instance struct {
	engine  *Engine
	culture language.Tag
	queue   *eventQueue
	done    chan struct{} // closed when the worker exits

	// inUpdate is true while UpdateReached runs on the worker.
	inUpdate atomic.Bool

	mu          sync.Mutex
	cb          recognizer.Callbacks
	audioBound  bool
	grammars    []*compiledGrammar
	recognizing bool
	closed      bool
	wedged      bool
	parked      []event
	stats       Stats
}

func newInstance(e *Engine, culture language.Tag) *Instance {
	inst := &Instance{
		engine:  e,
		culture: culture,
		queue:   newEventQueue(),
		done:    make(chan struct{}),
	}
	go inst.run()
	return inst
}

// run is the worker loop. It exits once the queue is closed and drained.
func (i *Instance) run() {
	defer close(i.done)

	for {
		ev, ok := i.queue.TryDequeue()
		if ok {
			i.process(ev)
			continue
		}

		<-i.queue.Wait()
		if i.queue.Done() {
			return
		}
	}
}

// process handles one event. Called only from run.
func (i *Instance) process(ev event) {
	switch ev.kind {
	case eventBarrier:
		close(ev.done)
	case eventUpdate:
		i.processUpdate(ev)
	case eventUtterance:
		i.processUtterance(ev)
	}
}

func (i *Instance) processUpdate(ev event) {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return
	}
	if i.wedged {
		i.parked = append(i.parked, ev)
		i.mu.Unlock()
		return
	}
	cb := i.cb.UpdateReached
	i.stats.UpdatesReached++
	i.mu.Unlock()

	if cb == nil {
		return
	}
	i.inUpdate.Store(true)
	defer i.inUpdate.Store(false)
	cb(ev.token)
}

func (i *Instance) processUtterance(ev event) {
	i.mu.Lock()
	if i.closed || !i.recognizing {
		i.mu.Unlock()
		slog.Debug("utterance dropped: not recognizing", "seq", ev.seq, "text", ev.text)
		return
	}
	i.stats.Utterances++
	cb := i.cb
	grammars := append([]*compiledGrammar(nil), i.grammars...)
	i.mu.Unlock()

	if cb.SpeechDetected != nil {
		cb.SpeechDetected()
	}

	for _, g := range grammars {
		m, ok := g.spec.Match(ev.text)
		if !ok {
			continue
		}
		if cb.SpeechRecognized != nil {
			cb.SpeechRecognized(recognizer.Result{
				Text:       m.Text,
				Confidence: ev.confidence,
				Choices:    m.Choices,
				Grammar:    g.Name(),
			})
		}
		return
	}

	if cb.SpeechRecognitionRejected != nil {
		cb.SpeechRecognitionRejected()
	}
}

// Culture implements recognizer.Instance.
func (i *Instance) Culture() language.Tag {
	return i.culture
}

// SetCallbacks implements recognizer.Instance.
func (i *Instance) SetCallbacks(cb recognizer.Callbacks) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.cb = cb
}

// BindDefaultAudioInput implements recognizer.Instance.
func (i *Instance) BindDefaultAudioInput() error {
	if i.engine.audioErr != nil {
		return i.engine.audioErr
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.audioBound = true
	return nil
}

// Compile implements recognizer.Instance.
func (i *Instance) Compile(spec *grammar.Spec) (recognizer.Grammar, error) {
	if spec == nil || len(spec.Elements) == 0 {
		return nil, fault.New(fault.EmptyGrammar, "compile", "grammar has no elements")
	}
	return &compiledGrammar{spec: spec, engine: i.engine}, nil
}

// RequestUpdate implements recognizer.Instance.
func (i *Instance) RequestUpdate(token any) {
	i.mu.Lock()
	i.stats.UpdatesRequested++
	i.mu.Unlock()
	i.queue.Enqueue(event{kind: eventUpdate, seq: i.engine.clock.Next(), token: token})
}

// UnloadAllGrammars implements recognizer.Instance.
func (i *Instance) UnloadAllGrammars() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.checkMutation("unload_all")
	i.grammars = nil
	i.stats.Unloads++
}

// LoadGrammar implements recognizer.Instance.
func (i *Instance) LoadGrammar(g recognizer.Grammar) error {
	cg, ok := g.(*compiledGrammar)
	if !ok || cg.engine != i.engine {
		return fault.New(fault.LoadRejected, "load", "grammar was not compiled by this engine")
	}

	if err := i.checkCulture(cg.spec); err != nil {
		i.notifyLoad(cg.Name(), err)
		return err
	}
	if i.engine.rejecter != nil {
		if err := i.engine.rejecter(cg.spec); err != nil {
			err = fault.Wrap(fault.LoadRejected, "load", err).WithCulture(i.culture.String())
			i.notifyLoad(cg.Name(), err)
			return err
		}
	}

	i.mu.Lock()
	i.checkMutation("load")
	i.grammars = append(i.grammars, cg)
	i.stats.Loads++
	i.mu.Unlock()

	i.notifyLoad(cg.Name(), nil)
	return nil
}

func (i *Instance) checkCulture(spec *grammar.Spec) error {
	want, _ := i.culture.Base()
	got, _ := spec.Culture.Base()
	if want != got {
		return fault.New(fault.LoadRejected, "load",
			fmt.Sprintf("grammar culture %s does not match recognizer culture %s", spec.Culture, i.culture)).
			WithCulture(i.culture.String())
	}
	return nil
}

// checkMutation records grammar changes made outside the worker's turn
// while recognizing. Caller holds mu.
func (i *Instance) checkMutation(op string) {
	if i.recognizing && !i.inUpdate.Load() {
		i.stats.UnsafeMutations++
		slog.Warn("grammar mutated while recognizing outside an update", "op", op, "culture", i.culture.String())
	}
}

func (i *Instance) notifyLoad(name string, err error) {
	i.mu.Lock()
	cb := i.cb.LoadGrammarCompleted
	i.mu.Unlock()
	if cb != nil {
		cb(name, err)
	}
}

// Grammars implements recognizer.Instance.
func (i *Instance) Grammars() []recognizer.LoadedGrammar {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]recognizer.LoadedGrammar, 0, len(i.grammars))
	for _, g := range i.grammars {
		out = append(out, recognizer.LoadedGrammar{Name: g.Name(), Enabled: true})
	}
	return out
}

// ErrNoGrammars is returned by RecognizeAsync when nothing is loaded.
var ErrNoGrammars = errors.New("no grammars loaded")

// ErrAlreadyRecognizing is returned by RecognizeAsync during recognition.
var ErrAlreadyRecognizing = errors.New("recognition already in progress")

// RecognizeAsync implements recognizer.Instance.
func (i *Instance) RecognizeAsync(mode recognizer.Mode) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	switch {
	case mode != recognizer.ModeContinuous:
		return fmt.Errorf("%w: %s", recognizer.ErrUnsupportedMode, mode)
	case i.closed:
		return fault.New(fault.EngineNotPresent, "recognize_start", "recognizer is closed")
	case i.recognizing:
		return ErrAlreadyRecognizing
	case len(i.grammars) == 0:
		return ErrNoGrammars
	}
	i.recognizing = true
	i.stats.RecognizeStarts++
	return nil
}

// RecognizeAsyncCancel implements recognizer.Instance.
func (i *Instance) RecognizeAsyncCancel() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.recognizing = false
	i.stats.RecognizeCancels++
}

// Close implements recognizer.Instance. Waits for the worker to exit.
func (i *Instance) Close() error {
	i.mu.Lock()
	i.stats.Closes++
	if i.closed {
		i.mu.Unlock()
		return nil
	}
	i.closed = true
	i.recognizing = false
	i.parked = nil
	i.mu.Unlock()

	i.queue.Close()
	<-i.done
	return nil
}

// Closed reports whether Close was called.
func (i *Instance) Closed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closed
}

// Recognizing reports whether asynchronous recognition is running.
func (i *Instance) Recognizing() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.recognizing
}

// AudioBound reports whether the default audio input was bound.
func (i *Instance) AudioBound() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.audioBound
}

// Stats returns a copy of the call counters.
func (i *Instance) Stats() Stats {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.stats
}

// Say queues an utterance with the given recognition confidence. Returns
// false if the instance is closed.
func (i *Instance) Say(text string, confidence float64) bool {
	return i.queue.Enqueue(event{
		kind:       eventUtterance,
		seq:        i.engine.clock.Next(),
		text:       text,
		confidence: confidence,
	})
}

// Drain blocks until every event queued before the call was processed.
// Returns immediately if the instance is closed.
func (i *Instance) Drain() {
	done := make(chan struct{})
	if !i.queue.Enqueue(event{kind: eventBarrier, done: done}) {
		return
	}
	select {
	case <-done:
	case <-i.done:
	}
}

// Wedge stops the worker from reaching updates. Requested updates are
// parked until Unwedge.
func (i *Instance) Wedge() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.wedged = true
}

// Unwedge releases parked updates, in order, back to the worker.
func (i *Instance) Unwedge() {
	i.mu.Lock()
	parked := i.parked
	i.parked = nil
	i.wedged = false
	i.mu.Unlock()

	for _, ev := range parked {
		i.queue.Enqueue(ev)
	}
}
