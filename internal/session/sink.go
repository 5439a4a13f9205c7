package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/grammarctl/internal/recognizer"
)

// Outputs is the host-visible state, sampled once per evaluation cycle.
type Outputs struct {
	RecognitionResult string
	Confidence        float64
	OnSpeechDetected  bool

	// OnRecognized is true for exactly one sampled cycle after a
	// recognition whose confidence met the threshold.
	OnRecognized bool

	RecognizerForCultureFound bool
	GrammarLoaded             bool

	// Choices holds the matched phrase index per grammar element of the
	// last recognition (-1 for a skipped optional element).
	Choices []int

	State State
}

// Sink receives engine callbacks and holds the outputs.
//
// The recognized bang is a two-phase flag. The recognized callback sets
// justSet; Snapshot marks a set flag consumed; BeginCycle clears the result
// and the bang only once they were consumed. A recognition is therefore
// visible in exactly one Snapshot, however the callback interleaves with
// the cycle.
//
// Thread-safety: all methods are safe for concurrent use. Callbacks run on
// the engine worker; everything else on the evaluation goroutine.
type Sink struct {
	mu        sync.Mutex
	out       Outputs
	threshold float64
	justSet   bool
	consumed  bool
	session   string
	culture   string

	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// NewSink creates a sink with the given confidence threshold.
func NewSink(threshold float64) *Sink {
	return &Sink{
		threshold: threshold,
		logger:    slog.Default(),
		now:       time.Now,
	}
}

// SetThreshold sets the confidence threshold applied to later recognitions.
func (s *Sink) SetThreshold(threshold float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threshold = threshold
}

// BeginCycle clears a recognition that was already sampled.
func (s *Sink) BeginCycle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.justSet && !s.consumed {
		return
	}
	s.out.RecognitionResult = ""
	s.out.OnRecognized = false
	s.out.Choices = nil
	s.justSet = false
	s.consumed = false
}

// Snapshot returns the current outputs and marks a pending recognition as
// consumed.
func (s *Sink) Snapshot() Outputs {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.justSet {
		s.consumed = true
	}
	out := s.out
	out.Choices = append([]int(nil), s.out.Choices...)
	if len(out.Choices) == 0 {
		out.Choices = nil
	}
	return out
}

// Peek returns the current outputs without consuming anything.
func (s *Sink) Peek() Outputs {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.out
	out.Choices = append([]int(nil), s.out.Choices...)
	if len(out.Choices) == 0 {
		out.Choices = nil
	}
	return out
}

// ResetResult clears the result, the bang and the confidence so stale
// results never survive a reconfiguration.
func (s *Sink) ResetResult() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.RecognitionResult = ""
	s.out.OnRecognized = false
	s.out.Confidence = 0
	s.out.Choices = nil
	s.justSet = false
	s.consumed = false
}

// setEngine publishes controller state. Called by the controller.
func (s *Sink) setEngine(state State, found, loaded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.State = state
	s.out.RecognizerForCultureFound = found
	s.out.GrammarLoaded = loaded
}

// setSession tags later events with a session ID and culture.
func (s *Sink) setSession(id, culture string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = id
	s.culture = culture
}

func (s *Sink) emit(e Event) {
	if s.observer != nil {
		s.observer.Observe(e)
	}
}

// Recognized handles a SpeechRecognized callback.
func (s *Sink) Recognized(res recognizer.Result) {
	s.mu.Lock()
	accepted := res.Confidence >= s.threshold
	if accepted {
		s.out.OnRecognized = true
	}
	s.out.RecognitionResult = res.Text
	s.out.Confidence = res.Confidence
	s.out.Choices = append([]int(nil), res.Choices...)
	s.out.OnSpeechDetected = false
	s.justSet = true
	s.consumed = false
	ev := Event{
		Kind:       EventRecognized,
		At:         s.now(),
		Session:    s.session,
		Culture:    s.culture,
		State:      s.out.State,
		Text:       res.Text,
		Confidence: res.Confidence,
		Accepted:   accepted,
		Choices:    append([]int(nil), res.Choices...),
	}
	s.mu.Unlock()

	s.logger.Debug("recognized text",
		"session", ev.Session,
		"text", res.Text,
		"confidence", res.Confidence,
		"accepted", accepted)
	s.emit(ev)
}

// Rejected handles a SpeechRecognitionRejected callback.
func (s *Sink) Rejected() {
	s.mu.Lock()
	s.out.OnSpeechDetected = false
	ev := Event{Kind: EventRejected, At: s.now(), Session: s.session, Culture: s.culture, State: s.out.State}
	s.mu.Unlock()

	s.logger.Debug("recognition attempt rejected", "session", ev.Session)
	s.emit(ev)
}

// SpeechDetected handles a SpeechDetected callback.
func (s *Sink) SpeechDetected() {
	s.mu.Lock()
	s.out.OnSpeechDetected = true
	ev := Event{Kind: EventSpeechDetected, At: s.now(), Session: s.session, Culture: s.culture, State: s.out.State}
	s.mu.Unlock()

	s.emit(ev)
}
