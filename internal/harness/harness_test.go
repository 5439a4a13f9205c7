package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/grammarctl/internal/fault"
	"github.com/roach88/grammarctl/internal/grammar"
)

func intPtr(n int) *int { return &n }
func floatPtr(f float64) *float64 { return &f }
func groupsPtr(g ...grammar.ChoiceGroup) *[]grammar.ChoiceGroup { return &g }

func lightScenario(steps ...Step) *Scenario {
	return &Scenario{
		Name:        "light",
		Description: "light switch",
		Node: NodeConfig{
			Culture: "en-US",
			Groups: []grammar.ChoiceGroup{
				{Phrases: []string{"turn on", "turn off"}},
				{Phrases: []string{"the light"}, Optional: true},
			},
		},
		Steps: steps,
	}
}

func TestRun_MinimalScenario(t *testing.T) {
	result, err := Run(lightScenario(Step{
		Expect: &ExpectClause{State: "Recognizing", GrammarLoaded: boolPtr(true), Errors: []string{}},
	}))
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Pass, result.Errors)
	require.Len(t, result.Ticks, 1)
	assert.Equal(t, []string{"culture", "enabled", "groups"}, result.Ticks[0].Changed)
	assert.Equal(t, 1, result.Ticks[0].Reloads)

	kinds := make([]string, len(result.Trace))
	for i, e := range result.Trace {
		kinds[i] = e.Kind
	}
	assert.Equal(t, []string{"reinitialized", "grammar_loaded", "recognition_started", "disposed"}, kinds)
}

func TestRun_BangVisibleForExactlyOneTick(t *testing.T) {
	result, err := Run(lightScenario(
		Step{},
		Step{
			Say:    &Utterance{Text: "turn off the light", Confidence: 0.95},
			Expect: &ExpectClause{Recognized: boolPtr(true), Result: strPtr("turn off the light"), Choices: []int{1, 0}},
		},
		Step{
			Ticks:  3,
			Expect: &ExpectClause{Recognized: boolPtr(false), Result: strPtr(""), Confidence: floatPtr(0.95)},
		},
	))
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	recognized := 0
	for _, tick := range result.Ticks {
		if tick.Recognized {
			recognized++
		}
	}
	assert.Equal(t, 1, recognized)
	assert.Len(t, result.Ticks, 5)
}

func TestRun_LowConfidenceSetsResultWithoutBang(t *testing.T) {
	s := lightScenario(
		Step{},
		Step{
			Say:    &Utterance{Text: "turn on", Confidence: 0.6},
			Expect: &ExpectClause{Recognized: boolPtr(false), Result: strPtr("turn on")},
		},
	)
	s.Node.ConfidenceThreshold = floatPtr(0.7)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_UnmatchedUtteranceIsRejected(t *testing.T) {
	result, err := Run(lightScenario(
		Step{},
		Step{
			Say:    &Utterance{Text: "open the door", Confidence: 0.9},
			Expect: &ExpectClause{Result: strPtr(""), SpeechDetected: boolPtr(false)},
		},
	))
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceCount, Kind: "rejected", Count: 1},
		{Type: AssertTraceCount, Kind: "recognized", Count: 0},
		{Type: AssertTraceOrder, Kinds: []string{"speech_detected", "rejected"}},
	}, nil)
	assert.Empty(t, errs)
}

func TestRun_GroupChangeReloadsOnce(t *testing.T) {
	result, err := Run(lightScenario(
		Step{},
		Step{
			Set: &Patch{Groups: groupsPtr(
				grammar.ChoiceGroup{Phrases: []string{"dim"}},
				grammar.ChoiceGroup{Phrases: []string{"the lamp"}},
			)},
			Expect: &ExpectClause{Reloads: intPtr(1), State: "Recognizing"},
		},
		Step{
			Say:    &Utterance{Text: "dim the lamp", Confidence: 0.9},
			Expect: &ExpectClause{Result: strPtr("dim the lamp"), Recognized: boolPtr(true)},
		},
	))
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, []string{"groups"}, result.Ticks[1].Changed)

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceCount, Kind: "grammar_loaded", Count: 2},
		{Type: AssertTraceCount, Kind: "grammar_unloaded", Count: 1},
		{Type: AssertTraceCount, Kind: "recognition_stopped", Count: 1},
		{Type: AssertTraceCount, Kind: "recognition_started", Count: 2},
	}, nil)
	assert.Empty(t, errs)
}

func TestRun_EmptyGrammarLeavesEngineBound(t *testing.T) {
	result, err := Run(lightScenario(
		Step{},
		Step{
			Set: &Patch{Groups: groupsPtr(grammar.ChoiceGroup{Phrases: []string{"  "}})},
			Expect: &ExpectClause{
				State:         "Bound",
				CultureFound:  boolPtr(true),
				GrammarLoaded: boolPtr(false),
				Errors:        []string{string(fault.EmptyGrammar)},
			},
		},
	))
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_RejectedLoad(t *testing.T) {
	s := lightScenario(Step{
		Expect: &ExpectClause{
			State:         "Bound",
			GrammarLoaded: boolPtr(false),
			Errors:        []string{string(fault.LoadRejected)},
		},
	})
	s.RejectLoads = true

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceContains, Kind: "grammar_failed", Code: strPtr(string(fault.LoadRejected))},
	}, nil)
	assert.Empty(t, errs)
}

func TestRun_WedgedEngineTimesOut(t *testing.T) {
	s := lightScenario(
		Step{},
		Step{
			Wedge: boolPtr(true),
			Set:   &Patch{Groups: groupsPtr(grammar.ChoiceGroup{Phrases: []string{"stop"}})},
			Expect: &ExpectClause{
				Errors: []string{string(fault.UpdateTimeout)},
			},
		},
		Step{
			Wedge: boolPtr(false),
			Say:   &Utterance{Text: "turn on", Confidence: 0.9},
		},
	)
	s.UpdateTimeout = "20ms"

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	// The old grammar survives the failed unload and keeps recognizing.
	last := result.Ticks[len(result.Ticks)-1]
	assert.Equal(t, "turn on", last.Result)
	assert.True(t, last.Recognized)
}

func TestRun_ExpectMismatchFails(t *testing.T) {
	result, err := Run(lightScenario(Step{
		Expect: &ExpectClause{State: "GrammarReady", Reloads: intPtr(2)},
	}))
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "state = Recognizing, expected GrammarReady")
	assert.Contains(t, result.Errors[1], "reloads = 1, expected 2")
}

func TestRun_ExplicitEmptyErrorsFailsOnFault(t *testing.T) {
	s := lightScenario(Step{Expect: &ExpectClause{Errors: []string{}}})
	s.Node.Culture = "sv-SE"

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
}

func TestRun_Deterministic(t *testing.T) {
	build := func() *Scenario {
		return lightScenario(
			Step{},
			Step{Say: &Utterance{Text: "turn on the light", Confidence: 0.9}},
			Step{Set: &Patch{Culture: strPtr("en-GB")}},
		)
	}

	first, err := Run(build())
	require.NoError(t, err)
	second, err := Run(build())
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, first.Ticks, second.Ticks)
}

func TestRun_CultureChangeStartsNewSession(t *testing.T) {
	result, err := Run(lightScenario(
		Step{},
		Step{
			Set:    &Patch{Culture: strPtr("en-GB")},
			Expect: &ExpectClause{State: "Recognizing", Reloads: intPtr(1)},
		},
	))
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceContains, Kind: "disposed", Culture: strPtr("en-US")},
		{Type: AssertTraceContains, Kind: "reinitialized", Culture: strPtr("en-GB")},
		{Type: AssertTraceCount, Kind: "reinitialized", Count: 2},
	}, nil)
	assert.Empty(t, errs)

	var sessions []string
	for _, e := range result.Trace {
		if e.Kind == "reinitialized" {
			sessions = append(sessions, e.Session)
		}
	}
	assert.Equal(t, []string{"session-1", "session-2"}, sessions)
}

func TestRun_FreshDatabasePerRun(t *testing.T) {
	for i := 0; i < 2; i++ {
		result, err := Run(lightScenario(Step{}))
		require.NoError(t, err)
		require.NotEmpty(t, result.Trace)
		assert.Equal(t, int64(1), result.Trace[0].Seq)
	}
}

func TestRun_UnknownCulturesOption(t *testing.T) {
	s := lightScenario(Step{})
	s.Cultures = []string{""}

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cultures")
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)

	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}
