//go:build azurespeech

package azure

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/Microsoft/cognitive-services-speech-sdk-go/audio"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/common"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/speech"
	"github.com/gammazero/workerpool"
	"golang.org/x/text/language"

	"github.com/roach88/grammarctl/internal/fault"
	"github.com/roach88/grammarctl/internal/grammar"
	"github.com/roach88/grammarctl/internal/recognizer"
)

// defaultCultures are the locales offered when no cultures option is given.
var defaultCultures = []string{"en-US", "en-GB", "de-DE", "fr-FR", "es-ES", "it-IT", "ja-JP"}

func init() {
	recognizer.Register(&recognizer.Backend{
		Name:        BackendName,
		Description: "Azure Cognitive Services Speech",
		Factory:     open,
	})
}

// open builds an engine from backend options.
//
// Supported options (environment fallback in parentheses):
//
//	key       subscription key (AZURE_SPEECH_KEY)
//	region    service region (AZURE_SPEECH_REGION)
//	cultures  comma-separated offered locales
func open(opts map[string]string) (recognizer.Engine, error) {
	key := opts["key"]
	if key == "" {
		key = os.Getenv("AZURE_SPEECH_KEY")
	}
	region := opts["region"]
	if region == "" {
		region = os.Getenv("AZURE_SPEECH_REGION")
	}
	if key == "" || region == "" {
		return nil, fmt.Errorf("azure backend requires key (subscription key) and region")
	}

	names := defaultCultures
	if raw := strings.TrimSpace(opts["cultures"]); raw != "" {
		names = strings.Split(raw, ",")
	}
	var cultures []language.Tag
	for _, name := range names {
		tag, err := language.Parse(strings.TrimSpace(name))
		if err != nil {
			return nil, fmt.Errorf("invalid culture %q in cultures option: %w", name, err)
		}
		cultures = append(cultures, tag)
	}

	return &Engine{key: key, region: region, cultures: cultures}, nil
}

// Engine creates Azure speech recognizers.
type Engine struct {
	key      string
	region   string
	cultures []language.Tag
}

// Name implements recognizer.Engine.
func (e *Engine) Name() string {
	return BackendName
}

// InstalledRecognizers implements recognizer.Engine.
func (e *Engine) InstalledRecognizers() []recognizer.Info {
	out := make([]recognizer.Info, 0, len(e.cultures))
	for _, tag := range e.cultures {
		out = append(out, recognizer.Info{
			Culture:     tag,
			Name:        fmt.Sprintf("Azure Speech (%s)", tag),
			Description: fmt.Sprintf("Azure Speech recognizer in region %s", e.region),
		})
	}
	return out
}

// Create implements recognizer.Engine.
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

	cfg, err := speech.NewSpeechConfigFromSubscription(e.key, e.region)
	if err != nil {
		return nil, fmt.Errorf("create speech config: %w", err)
	}
	if err := cfg.SetSpeechRecognitionLanguage(culture.String()); err != nil {
		cfg.Close()
		return nil, fmt.Errorf("set recognition language: %w", err)
	}
	if err := cfg.SetOutputFormat(common.Detailed); err != nil {
		cfg.Close()
		return nil, fmt.Errorf("set output format: %w", err)
	}

	return &Instance{
		culture: culture,
		config:  cfg,
		pool:    workerpool.New(1),
	}, nil
}

// compiledGrammar is a grammar.Spec prepared for phrase-list biasing.
type compiledGrammar struct {
	spec *grammar.Spec
}

func (g *compiledGrammar) Name() string        { return g.spec.Name }
func (g *compiledGrammar) Spec() *grammar.Spec { return g.spec }

// Instance is one Azure speech recognizer.
//
// The SDK fires events on its own threads. Every event is resubmitted to a
// single-worker pool so callbacks and update turns are serialized on one
// goroutine.
type Instance struct {
	culture language.Tag
	config  *speech.SpeechConfig
	pool    *workerpool.WorkerPool

	mu          sync.Mutex
	cb          recognizer.Callbacks
	audioConfig *audio.AudioConfig
	recognizer  *speech.SpeechRecognizer
	phrases     *speech.PhraseListGrammar
	grammars    []*compiledGrammar
	recognizing bool
	closed      bool
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

// BindDefaultAudioInput implements recognizer.Instance. Creates the SDK
// recognizer on the default microphone and wires its events.
func (i *Instance) BindDefaultAudioInput() error {
	audioConfig, err := audio.NewAudioConfigFromDefaultMicrophoneInput()
	if err != nil {
		return fmt.Errorf("default microphone: %w", err)
	}
	rec, err := speech.NewSpeechRecognizerFromConfig(i.config, audioConfig)
	if err != nil {
		audioConfig.Close()
		return fmt.Errorf("create speech recognizer: %w", err)
	}
	phrases, err := speech.NewPhraseListGrammarFromRecognizer(rec)
	if err != nil {
		rec.Close()
		audioConfig.Close()
		return fmt.Errorf("create phrase list: %w", err)
	}

	rec.SpeechStartDetected(func(e speech.RecognitionEventArgs) {
		defer e.Close()
		i.dispatch(func(cb recognizer.Callbacks) {
			if cb.SpeechDetected != nil {
				cb.SpeechDetected()
			}
		})
	})
	rec.Recognized(func(e speech.SpeechRecognitionEventArgs) {
		defer e.Close()
		reason := e.Result.Reason
		text := e.Result.Text
		payload := e.Result.Properties.GetProperty(common.SpeechServiceResponseJSONResult, "")
		i.dispatch(func(cb recognizer.Callbacks) {
			i.handleFinal(cb, reason, text, payload)
		})
	})
	rec.Canceled(func(e speech.SpeechRecognitionCanceledEventArgs) {
		defer e.Close()
		slog.Warn("azure recognition canceled",
			"culture", i.culture.String(),
			"reason", e.Reason,
			"details", e.ErrorDetails)
	})
	rec.SessionStarted(func(e speech.SessionEventArgs) {
		defer e.Close()
		slog.Debug("azure recognition session started", "culture", i.culture.String())
	})
	rec.SessionStopped(func(e speech.SessionEventArgs) {
		defer e.Close()
		slog.Debug("azure recognition session stopped", "culture", i.culture.String())
	})

	i.mu.Lock()
	i.audioConfig = audioConfig
	i.recognizer = rec
	i.phrases = phrases
	i.mu.Unlock()
	return nil
}

// handleFinal classifies a final SDK result. Runs on the worker.
func (i *Instance) handleFinal(cb recognizer.Callbacks, reason common.ResultReason, text, payload string) {
	if reason != common.RecognizedSpeech {
		if cb.SpeechRecognitionRejected != nil {
			cb.SpeechRecognitionRejected()
		}
		return
	}

	confidence, ok := parseConfidence(payload)
	if !ok {
		confidence = 1
	}

	i.mu.Lock()
	grammars := append([]*compiledGrammar(nil), i.grammars...)
	i.mu.Unlock()

	for _, g := range grammars {
		m, matched := g.spec.Match(stripPunctuation(text))
		if !matched {
			continue
		}
		if cb.SpeechRecognized != nil {
			cb.SpeechRecognized(recognizer.Result{
				Text:       m.Text,
				Confidence: confidence,
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

// dispatch runs fn with the current callbacks on the worker.
func (i *Instance) dispatch(fn func(cb recognizer.Callbacks)) {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return
	}
	cb := i.cb
	i.mu.Unlock()
	i.pool.Submit(func() { fn(cb) })
}

// Compile implements recognizer.Instance.
func (i *Instance) Compile(spec *grammar.Spec) (recognizer.Grammar, error) {
	if spec == nil || len(spec.Elements) == 0 {
		return nil, fault.New(fault.EmptyGrammar, "compile", "grammar has no elements")
	}
	return &compiledGrammar{spec: spec}, nil
}

// RequestUpdate implements recognizer.Instance. The worker's next turn is
// the safe point.
func (i *Instance) RequestUpdate(token any) {
	i.dispatch(func(cb recognizer.Callbacks) {
		if cb.UpdateReached != nil {
			cb.UpdateReached(token)
		}
	})
}

// UnloadAllGrammars implements recognizer.Instance.
func (i *Instance) UnloadAllGrammars() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.grammars = nil
	if i.phrases != nil {
		if err := i.phrases.Clear(); err != nil {
			slog.Warn("failed to clear phrase list", "error", err)
		}
	}
}

// LoadGrammar implements recognizer.Instance.
func (i *Instance) LoadGrammar(g recognizer.Grammar) error {
	cg, ok := g.(*compiledGrammar)
	if !ok {
		return fault.New(fault.LoadRejected, "load", "grammar was not compiled by this engine")
	}
	want, _ := i.culture.Base()
	got, _ := cg.spec.Culture.Base()
	if want != got {
		return fault.New(fault.LoadRejected, "load",
			fmt.Sprintf("grammar culture %s does not match recognizer culture %s", cg.spec.Culture, i.culture)).
			WithCulture(i.culture.String())
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.phrases != nil {
		for _, phrase := range cg.spec.Phrases() {
			if err := i.phrases.AddPhrase(phrase); err != nil {
				return fault.Wrap(fault.LoadRejected, "load", err).WithCulture(i.culture.String())
			}
		}
	}
	i.grammars = append(i.grammars, cg)
	return nil
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

// RecognizeAsync implements recognizer.Instance.
func (i *Instance) RecognizeAsync(mode recognizer.Mode) error {
	if mode != recognizer.ModeContinuous {
		return fmt.Errorf("%w: %s", recognizer.ErrUnsupportedMode, mode)
	}
	i.mu.Lock()
	rec := i.recognizer
	if rec == nil || i.closed {
		i.mu.Unlock()
		return fault.New(fault.EngineNotPresent, "recognize_start", "recognizer is not bound")
	}
	if i.recognizing {
		i.mu.Unlock()
		return fmt.Errorf("recognition already in progress")
	}
	i.recognizing = true
	i.mu.Unlock()

	if err := <-rec.StartContinuousRecognitionAsync(); err != nil {
		i.mu.Lock()
		i.recognizing = false
		i.mu.Unlock()
		return fmt.Errorf("start continuous recognition: %w", err)
	}
	return nil
}

// RecognizeAsyncCancel implements recognizer.Instance.
func (i *Instance) RecognizeAsyncCancel() {
	i.mu.Lock()
	rec := i.recognizer
	wasRecognizing := i.recognizing
	i.recognizing = false
	i.mu.Unlock()

	if rec == nil || !wasRecognizing {
		return
	}
	if err := <-rec.StopContinuousRecognitionAsync(); err != nil {
		slog.Warn("failed to stop continuous recognition", "error", err)
	}
}

// Close implements recognizer.Instance.
func (i *Instance) Close() error {
	i.RecognizeAsyncCancel()

	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil
	}
	i.closed = true
	rec, phrases, audioConfig := i.recognizer, i.phrases, i.audioConfig
	i.recognizer, i.phrases, i.audioConfig = nil, nil, nil
	i.mu.Unlock()

	i.pool.StopWait()

	if phrases != nil {
		phrases.Close()
	}
	if rec != nil {
		rec.Close()
	}
	if audioConfig != nil {
		audioConfig.Close()
	}
	i.config.Close()
	return nil
}

// stripPunctuation drops the trailing punctuation the service adds to
// display text.
func stripPunctuation(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), ".?!,")
}
