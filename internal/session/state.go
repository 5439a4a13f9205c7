package session

// State is the controller's lifecycle state.
type State int

const (
	// StateNoEngine means no recognizer has been bound yet.
	StateNoEngine State = iota
	// StateBound means a recognizer is bound to a culture, no grammar loaded.
	StateBound
	// StateGrammarReady means a grammar is loaded and recognition is idle.
	StateGrammarReady
	// StateRecognizing means continuous recognition is running.
	StateRecognizing
	// StateCultureRejected means the last reinitialize failed. Absorbing
	// until the next reinitialize.
	StateCultureRejected
)

func (s State) String() string {
	switch s {
	case StateNoEngine:
		return "NoEngine"
	case StateBound:
		return "Bound"
	case StateGrammarReady:
		return "GrammarReady"
	case StateRecognizing:
		return "Recognizing"
	case StateCultureRejected:
		return "CultureRejected"
	default:
		return "Unknown"
	}
}

// HasEngine reports whether a recognizer is bound in this state.
func (s State) HasEngine() bool {
	return s == StateBound || s == StateGrammarReady || s == StateRecognizing
}

// GrammarLoaded reports whether a grammar is loaded in this state.
func (s State) GrammarLoaded() bool {
	return s == StateGrammarReady || s == StateRecognizing
}

// States returns every state in declaration order.
func States() []State {
	return []State{StateNoEngine, StateBound, StateGrammarReady, StateRecognizing, StateCultureRejected}
}
