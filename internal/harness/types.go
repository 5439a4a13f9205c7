package harness

// TraceEvent is one recorded session event.
type TraceEvent struct {
	Seq        int64   `json:"seq"`
	Kind       string  `json:"kind"`
	Session    string  `json:"session,omitempty"`
	Culture    string  `json:"culture,omitempty"`
	State      string  `json:"state"`
	Text       string  `json:"text,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Accepted   bool    `json:"accepted,omitempty"`
	Choices    []int   `json:"choices,omitempty"`
	Code       string  `json:"code,omitempty"`
}

// TickSnapshot is the outcome of one tick.
type TickSnapshot struct {
	Step           int      `json:"step"`
	Tick           int      `json:"tick"`
	Changed        []string `json:"changed,omitempty"`
	Reloads        int      `json:"reloads,omitempty"`
	Errors         []string `json:"errors,omitempty"`
	Result         string   `json:"result,omitempty"`
	Confidence     float64  `json:"confidence,omitempty"`
	Recognized     bool     `json:"recognized,omitempty"`
	SpeechDetected bool     `json:"speech_detected,omitempty"`
	CultureFound   bool     `json:"culture_found"`
	GrammarLoaded  bool     `json:"grammar_loaded"`
	Choices        []int    `json:"choices,omitempty"`
	State          string   `json:"state"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses and assertions match.
	Pass bool `json:"pass"`

	// Trace contains all recorded session events in seq order.
	Trace []TraceEvent `json:"trace"`

	// Ticks contains one snapshot per executed tick.
	Ticks []TickSnapshot `json:"ticks"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Ticks:  []TickSnapshot{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
