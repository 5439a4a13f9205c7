package simulated

import (
	"fmt"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/roach88/grammarctl/internal/fault"
	"github.com/roach88/grammarctl/internal/grammar"
	"github.com/roach88/grammarctl/internal/recognizer"
)

// BackendName is the registry name of the simulated backend.
const BackendName = "simulated"

// DefaultCultures are installed when no WithCultures option is given.
var DefaultCultures = []language.Tag{
	language.AmericanEnglish,
	language.BritishEnglish,
	language.MustParse("de-DE"),
	language.MustParse("fr-FR"),
	language.MustParse("es-ES"),
	language.MustParse("it-IT"),
	language.MustParse("ja-JP"),
}

// LoadRejecter decides whether a compiled grammar may be loaded.
// A non-nil error rejects the load.
type LoadRejecter func(spec *grammar.Spec) error

// Option configures an Engine.
type Option func(*Engine)

// WithCultures sets the installed recognizer cultures.
func WithCultures(tags ...language.Tag) Option {
	return func(e *Engine) {
		e.cultures = append([]language.Tag(nil), tags...)
	}
}

// WithLoadRejecter installs a hook that can refuse grammar loads.
func WithLoadRejecter(fn LoadRejecter) Option {
	return func(e *Engine) {
		e.rejecter = fn
	}
}

// WithAudioError makes BindDefaultAudioInput fail with err.
func WithAudioError(err error) Option {
	return func(e *Engine) {
		e.audioErr = err
	}
}

// WithClock shares a logical clock with the caller.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// Engine is the simulated recognizer.Engine.
type Engine struct {
	cultures []language.Tag
	rejecter LoadRejecter
	audioErr error
	clock    *Clock

	mu        sync.Mutex
	instances []*Instance
}

// New creates a simulated engine.
func New(opts ...Option) *Engine {
	e := &Engine{cultures: DefaultCultures}
	for _, opt := range opts {
		opt(e)
	}
	if e.clock == nil {
		e.clock = NewClock()
	}
	return e
}

// Name implements recognizer.Engine.
func (e *Engine) Name() string {
	return BackendName
}

// InstalledRecognizers implements recognizer.Engine.
func (e *Engine) InstalledRecognizers() []recognizer.Info {
	namer := display.English.Tags()
	out := make([]recognizer.Info, 0, len(e.cultures))
	for _, tag := range e.cultures {
		out = append(out, recognizer.Info{
			Culture:     tag,
			Name:        fmt.Sprintf("Simulated Recognizer (%s)", tag),
			Description: fmt.Sprintf("Simulated text-driven recognizer for %s", namer.Name(tag)),
		})
	}
	return out
}

// Create implements recognizer.Engine. The culture must match an installed
// recognizer exactly.
func (e *Engine) Create(culture language.Tag) (recognizer.Instance, error) {
	supported := false
	for _, tag := range e.cultures {
		if tag.String() == culture.String() {
			supported = true
			break
		}
	}
	if !supported {
		return nil, fault.New(fault.NoRecognizerForCulture, "create",
			fmt.Sprintf("no recognizer found for culture %q", culture)).WithCulture(culture.String())
	}

	inst := newInstance(e, culture)
	e.mu.Lock()
	e.instances = append(e.instances, inst)
	e.mu.Unlock()
	return inst, nil
}

// Instances returns every instance created so far, oldest first.
func (e *Engine) Instances() []*Instance {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Instance(nil), e.instances...)
}

// Live returns the newest instance that has not been closed, or nil.
func (e *Engine) Live() *Instance {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.instances) - 1; i >= 0; i-- {
		if !e.instances[i].Closed() {
			return e.instances[i]
		}
	}
	return nil
}

// LiveCount returns the number of instances that have not been closed.
func (e *Engine) LiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, inst := range e.instances {
		if !inst.Closed() {
			n++
		}
	}
	return n
}

// Say delivers an utterance to the live instance. Returns false if no
// instance is live.
func (e *Engine) Say(text string, confidence float64) bool {
	inst := e.Live()
	if inst == nil {
		return false
	}
	return inst.Say(text, confidence)
}

// Drain waits until the live instance processed every queued event.
func (e *Engine) Drain() {
	if inst := e.Live(); inst != nil {
		inst.Drain()
	}
}
