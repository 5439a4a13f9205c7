package recognizer

import (
	"fmt"
	"sync"

	"golang.org/x/text/language"

	"github.com/roach88/grammarctl/internal/fault"
	"github.com/roach88/grammarctl/internal/grammar"
)

// Handle owns one engine Instance bound to one culture.
//
// A Handle is created by Create and destroyed by Dispose. Once disposed,
// every operation reports fault.EngineNotPresent (or a zero value), so a
// stale reference can never reach a released engine.
type Handle struct {
	mu      sync.RWMutex
	inst    Instance
	culture language.Tag
	name    string
	backend string
}

// Create parses the culture, creates an engine instance for it, registers
// the callbacks and binds the default audio input.
//
// Fails with fault.CultureNotFound if the culture does not parse and with
// fault.NoRecognizerForCulture if no installed recognizer supports it. A
// partially constructed instance is closed before returning an error.
func Create(eng Engine, culture string, cb Callbacks) (*Handle, error) {
	if eng == nil {
		return nil, fault.New(fault.EngineNotPresent, "create", "no engine backend configured").WithCulture(culture)
	}

	tag, err := grammar.ParseCulture(culture)
	if err != nil {
		return nil, err
	}

	inst, err := eng.Create(tag)
	if err != nil {
		if fault.CodeOf(err) == "" {
			err = &fault.Error{
				Code:    fault.NoRecognizerForCulture,
				Op:      "create",
				Culture: culture,
				Message: fmt.Sprintf("no recognizer found for culture %q", culture),
				Err:     err,
			}
		}
		return nil, err
	}

	inst.SetCallbacks(cb)
	if err := inst.BindDefaultAudioInput(); err != nil {
		_ = inst.Close()
		return nil, fault.Wrap(fault.AudioInputUnavailable, "bind_audio_input", err).WithCulture(culture)
	}

	return &Handle{
		inst:    inst,
		culture: tag,
		name:    culture,
		backend: eng.Name(),
	}, nil
}

// Culture returns the bound language tag.
func (h *Handle) Culture() language.Tag {
	return h.culture
}

// Backend returns the name of the engine backend.
func (h *Handle) Backend() string {
	return h.backend
}

// Present reports whether the handle still owns a live instance.
func (h *Handle) Present() bool {
	if h == nil {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.inst != nil
}

// Dispose closes the instance. Idempotent; safe on a nil Handle.
func (h *Handle) Dispose() error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	inst := h.inst
	h.inst = nil
	h.mu.Unlock()

	if inst == nil {
		return nil
	}
	return inst.Close()
}

func (h *Handle) instance(op string) (Instance, error) {
	if h == nil {
		return nil, fault.New(fault.EngineNotPresent, op, "speech recognition engine is not present")
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.inst == nil {
		return nil, fault.New(fault.EngineNotPresent, op, "speech recognition engine is not present").WithCulture(h.name)
	}
	return h.inst, nil
}

// LoadedGrammarCount returns the number of grammars loaded in the engine.
func (h *Handle) LoadedGrammarCount() int {
	inst, err := h.instance("loaded_grammar_count")
	if err != nil {
		return 0
	}
	return len(inst.Grammars())
}

// LoadedGrammars returns the loaded grammars for diagnostics.
func (h *Handle) LoadedGrammars() []LoadedGrammar {
	inst, err := h.instance("loaded_grammars")
	if err != nil {
		return nil
	}
	return inst.Grammars()
}

// Compile turns a Spec into a grammar loadable by this handle's engine.
func (h *Handle) Compile(spec *grammar.Spec) (Grammar, error) {
	inst, err := h.instance("compile")
	if err != nil {
		return nil, err
	}
	return inst.Compile(spec)
}

// RequestUpdate asks the engine to fire UpdateReached(token) on its turn.
func (h *Handle) RequestUpdate(token any) error {
	inst, err := h.instance("request_update")
	if err != nil {
		return err
	}
	inst.RequestUpdate(token)
	return nil
}

// UnloadAll removes every loaded grammar. Must run on the engine's turn.
func (h *Handle) UnloadAll() {
	inst, err := h.instance("unload_all")
	if err != nil {
		return
	}
	inst.UnloadAllGrammars()
}

// Load loads a compiled grammar. Must run on the engine's turn.
func (h *Handle) Load(g Grammar) error {
	inst, err := h.instance("load")
	if err != nil {
		return err
	}
	if err := inst.LoadGrammar(g); err != nil {
		if fault.CodeOf(err) == "" {
			return fault.Wrap(fault.LoadRejected, "load", err).WithCulture(h.name)
		}
		return err
	}
	return nil
}

// RecognizeStart starts continuous asynchronous recognition.
func (h *Handle) RecognizeStart() error {
	inst, err := h.instance("recognize_start")
	if err != nil {
		return err
	}
	return inst.RecognizeAsync(ModeContinuous)
}

// RecognizeStop cancels recognition immediately, without draining.
func (h *Handle) RecognizeStop() error {
	inst, err := h.instance("recognize_stop")
	if err != nil {
		return err
	}
	inst.RecognizeAsyncCancel()
	return nil
}
