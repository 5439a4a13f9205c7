// Package fault defines the recoverable error taxonomy shared by the grammar
// model, the recognizer handle and the session controller.
//
// Every failure in grammarctl is recoverable: it is reported to the logger,
// the controller keeps its last good state, and the evaluation cycle always
// completes. A Code identifies the failure category so callers can branch on
// it with Is without string matching.
package fault

import (
	"errors"
	"fmt"
)

// Code categorizes a fault.
type Code string

const (
	// CultureNotFound indicates the culture tag does not parse to a language.
	CultureNotFound Code = "CULTURE_NOT_FOUND"

	// NoRecognizerForCulture indicates the culture parses but no installed
	// recognizer supports it.
	NoRecognizerForCulture Code = "NO_RECOGNIZER_FOR_CULTURE"

	// EmptyGrammar indicates no choice group survived validation.
	EmptyGrammar Code = "EMPTY_GRAMMAR"

	// InvalidGroup indicates a single choice group was rejected and skipped.
	InvalidGroup Code = "INVALID_GROUP"

	// LoadRejected indicates the engine refused to load a compiled grammar,
	// typically because it does not suit the bound culture.
	LoadRejected Code = "LOAD_REJECTED"

	// EngineNotPresent indicates an operation needed a recognizer but none
	// is bound.
	EngineNotPresent Code = "ENGINE_NOT_PRESENT"

	// UpdateAlreadyInProgress indicates a second grammar update was requested
	// while one is still outstanding.
	UpdateAlreadyInProgress Code = "UPDATE_ALREADY_IN_PROGRESS"

	// UpdateTimeout indicates the engine never reached the requested update
	// within the configured bound.
	UpdateTimeout Code = "UPDATE_TIMEOUT"

	// AudioInputUnavailable indicates the default audio input could not be
	// bound to a freshly created recognizer.
	AudioInputUnavailable Code = "AUDIO_INPUT_UNAVAILABLE"
)

// Error is a coded, recoverable failure.
type Error struct {
	// Code identifies the failure category.
	Code Code

	// Op names the operation that failed (e.g. "reinitialize").
	Op string

	// Culture is the culture tag involved, if any.
	Culture string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Culture != "" {
		msg = fmt.Sprintf("%s (culture=%s)", msg, e.Culture)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a fault with the given code and message.
func New(code Code, op, message string) *Error {
	return &Error{Code: code, Op: op, Message: message}
}

// Wrap creates a fault with the given code around an underlying error.
func Wrap(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Message: describe(code), Err: err}
}

// WithCulture returns a copy of e annotated with a culture tag.
func (e *Error) WithCulture(culture string) *Error {
	cp := *e
	cp.Culture = culture
	return &cp
}

// Is reports whether err is, or wraps, a fault with the given code.
// Uses errors.As to handle wrapped errors.
func Is(err error, code Code) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return false
}

// CodeOf returns the code of the outermost fault in err's chain, or "" if
// err carries no fault.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

func describe(code Code) string {
	switch code {
	case CultureNotFound:
		return "culture not found"
	case NoRecognizerForCulture:
		return "no recognizer found for culture"
	case EmptyGrammar:
		return "grammar has no valid choice groups"
	case InvalidGroup:
		return "invalid choice group"
	case LoadRejected:
		return "grammar isn't suitable for the current culture"
	case EngineNotPresent:
		return "speech recognition engine is not present"
	case UpdateAlreadyInProgress:
		return "grammar update already in progress"
	case UpdateTimeout:
		return "engine did not reach the requested update"
	case AudioInputUnavailable:
		return "default audio input unavailable"
	default:
		return string(code)
	}
}
