package recognizer

import (
	"errors"

	"golang.org/x/text/language"

	"github.com/roach88/grammarctl/internal/grammar"
)

// Mode selects how long a recognition pass runs.
type Mode int

// ModeContinuous keeps recognizing until cancelled. It is the only mode
// the session controller requests.
const ModeContinuous Mode = 1

func (m Mode) String() string {
	if m == ModeContinuous {
		return "continuous"
	}
	return "unknown"
}

// ErrUnsupportedMode is returned by RecognizeAsync for any mode other than
// ModeContinuous.
var ErrUnsupportedMode = errors.New("unsupported recognition mode")

// Info describes one installed recognizer.
type Info struct {
	Culture     language.Tag
	Name        string
	Description string
}

// Result is a recognized utterance.
type Result struct {
	Text       string
	Confidence float64

	// Choices holds, per grammar element, the matched phrase's index in its
	// choice group or -1 for a skipped optional element. Nil when the backend cannot tell.
	Choices []int

	// Grammar is the name of the grammar that accepted the utterance.
	Grammar string
}

// Callbacks are the engine event channels. All of them fire on the
// instance's worker goroutine; nil entries are skipped.
type Callbacks struct {
	SpeechRecognized          func(Result)
	SpeechRecognitionRejected func()
	SpeechDetected            func()
	UpdateReached             func(token any)
	LoadGrammarCompleted      func(name string, err error)
}

// Grammar is an engine-loadable artifact compiled from a grammar.Spec.
type Grammar interface {
	Name() string
	Spec() *grammar.Spec
}

// LoadedGrammar is a diagnostic view of a grammar loaded in an instance.
type LoadedGrammar struct {
	Name    string
	Enabled bool
}

// Engine is an installed speech recognition engine.
type Engine interface {
	// Name identifies the backend (e.g. "simulated", "azure").
	Name() string

	// InstalledRecognizers lists the cultures this engine can recognize.
	InstalledRecognizers() []Info

	// Create binds a new instance to a culture. Fails with
	// fault.NoRecognizerForCulture when no installed recognizer supports it.
	Create(culture language.Tag) (Instance, error)
}

// Instance is one recognition engine bound to one culture.
//
// Apart from RequestUpdate, every method is a primitive, non-synchronizing
// operation. Implementations must be safe for use from the caller's
// goroutine and from their own worker goroutine.
type Instance interface {
	Culture() language.Tag

	// SetCallbacks registers the event channels. Called once, before
	// BindDefaultAudioInput.
	SetCallbacks(cb Callbacks)

	BindDefaultAudioInput() error

	// Compile turns a Spec into a loadable grammar tagged with spec.Name.
	Compile(spec *grammar.Spec) (Grammar, error)

	// RequestUpdate asks the engine to pause at its next safe point and fire
	// UpdateReached(token) on its worker goroutine.
	RequestUpdate(token any)

	UnloadAllGrammars()

	// LoadGrammar fails with fault.LoadRejected if the grammar does not suit
	// the bound culture.
	LoadGrammar(g Grammar) error

	Grammars() []LoadedGrammar

	RecognizeAsync(mode Mode) error
	RecognizeAsyncCancel()

	// Close stops recognition, releases the engine and stops the worker.
	// No callback fires after Close returns.
	Close() error
}
