package session

import (
	"time"

	"github.com/roach88/grammarctl/internal/fault"
)

// EventKind names a session event.
type EventKind string

const (
	EventReinitialized      EventKind = "reinitialized"
	EventCultureRejected    EventKind = "culture_rejected"
	EventDisposed           EventKind = "disposed"
	EventGrammarLoaded      EventKind = "grammar_loaded"
	EventGrammarUnloaded    EventKind = "grammar_unloaded"
	EventGrammarFailed      EventKind = "grammar_failed"
	EventRecognitionStarted EventKind = "recognition_started"
	EventRecognitionStopped EventKind = "recognition_stopped"
	EventSpeechDetected     EventKind = "speech_detected"
	EventRecognized         EventKind = "recognized"
	EventRejected           EventKind = "rejected"
	EventFault              EventKind = "fault"
)

// Event is a session transition or engine event, reported to observers.
type Event struct {
	Kind    EventKind
	At      time.Time
	Session string
	Culture string
	State   State

	// Recognized events.
	Text       string
	Confidence float64
	Accepted   bool // confidence >= threshold
	Choices    []int

	// Grammar events.
	Fingerprint string
	Skipped     int

	// Failure events.
	Code    fault.Code
	Message string
}

// Observer receives session events. Observe may be called from the
// evaluation goroutine and from the engine worker; implementations must be
// safe for concurrent use and must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(e Event) { f(e) }

// Observers fans an event out to several observers in order.
type Observers []Observer

// Observe implements Observer.
func (os Observers) Observe(e Event) {
	for _, o := range os {
		if o != nil {
			o.Observe(e)
		}
	}
}
