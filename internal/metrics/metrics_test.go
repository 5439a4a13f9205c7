package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/grammarctl/internal/fault"
	"github.com/roach88/grammarctl/internal/session"
)

func TestCollector_CountsEventsByKind(t *testing.T) {
	c := NewCollector()

	c.Observe(session.Event{Kind: session.EventSpeechDetected, State: session.StateRecognizing})
	c.Observe(session.Event{Kind: session.EventSpeechDetected, State: session.StateRecognizing})
	c.Observe(session.Event{Kind: session.EventRejected, State: session.StateRecognizing})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.events.WithLabelValues("speech_detected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.events.WithLabelValues("rejected")))
}

func TestCollector_Recognitions(t *testing.T) {
	c := NewCollector()

	c.Observe(session.Event{Kind: session.EventRecognized, State: session.StateRecognizing, Confidence: 0.9, Accepted: true})
	c.Observe(session.Event{Kind: session.EventRecognized, State: session.StateRecognizing, Confidence: 0.2})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.recognized.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.recognized.WithLabelValues("false")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.confidence))
}

func TestCollector_StateGaugeIsOneHot(t *testing.T) {
	c := NewCollector()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.state.WithLabelValues("NoEngine")))

	c.Observe(session.Event{Kind: session.EventGrammarLoaded, State: session.StateGrammarReady, Skipped: 2})

	for _, s := range session.States() {
		want := 0.0
		if s == session.StateGrammarReady {
			want = 1
		}
		assert.Equal(t, want, testutil.ToFloat64(c.state.WithLabelValues(s.String())), s.String())
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(c.skippedGroups))

	c.Observe(session.Event{Kind: session.EventGrammarUnloaded, State: session.StateBound})
	assert.Equal(t, 0.0, testutil.ToFloat64(c.skippedGroups))
}

func TestCollector_Faults(t *testing.T) {
	c := NewCollector()

	c.Observe(session.Event{
		Kind:  session.EventCultureRejected,
		State: session.StateCultureRejected,
		Code:  fault.NoRecognizerForCulture,
	})
	c.Observe(session.Event{
		Kind:  session.EventFault,
		State: session.StateCultureRejected,
		Code:  fault.EngineNotPresent,
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.faults.WithLabelValues(string(fault.NoRecognizerForCulture))))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.faults.WithLabelValues(string(fault.EngineNotPresent))))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.Observe(session.Event{Kind: session.EventReinitialized, State: session.StateBound})

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)

	assert.True(t, strings.Contains(text, `grammarctl_session_events_total{kind="reinitialized"} 1`), text)
	assert.True(t, strings.Contains(text, `grammarctl_session_state{state="Bound"} 1`), text)
}
