package cli

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/grammarctl/internal/cycle"
	"github.com/roach88/grammarctl/internal/recognizer/simulated"
	"github.com/roach88/grammarctl/internal/session"
	"github.com/roach88/grammarctl/internal/store"
)

// syncBuffer is a bytes.Buffer safe for one writer goroutine and a polling reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunMissingConfigFlag(t *testing.T) {
	_, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "config")
}

func TestRunInvalidConfig(t *testing.T) {
	path := writeFile(t, "grammarctl.yaml", "node: {confidence_threshold: 7}\n")

	_, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), "-c", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunUnknownBackend(t *testing.T) {
	path := writeFile(t, "grammarctl.yaml", "backend: nope\n")

	_, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), "-c", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open recognizer backend")
}

func TestRunSession_RecordsAndRecognizes(t *testing.T) {
	cfgPath := writeFile(t, "grammarctl.yaml", lightConfig)
	dbPath := filepath.Join(t.TempDir(), "events.db")

	pr, pw := io.Pipe()
	defer pw.Close()

	out := &syncBuffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd.SetContext(ctx)

	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "text"},
		ConfigPath:  cfgPath,
		Database:    dbPath,
		MetricsAddr: "127.0.0.1:0",
		Input:       pr,
		IDGenerator: session.NewSequenceGenerator("run"),
	}

	done := make(chan error, 1)
	go func() { done <- runSession(opts, cmd) }()

	// Repeat the utterance until a tick has seen it; the first attempts may
	// land before the recognizer is live.
	require.Eventually(t, func() bool {
		_, _ = io.WriteString(pw, "Turn on the light|0.9\n")
		return strings.Contains(out.String(), "turn on the light (0.90)")
	}, 3*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	sessions, err := st.ReadSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "run-1", sessions[0].ID)
	assert.Equal(t, "en-US", sessions[0].Culture)
	assert.NotNil(t, sessions[0].EndedAt)

	recognized, err := st.CountEvents(context.Background(), string(session.EventRecognized))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, recognized, 1)
}

func TestParseUtterance(t *testing.T) {
	tests := []struct {
		line       string
		text       string
		confidence float64
		wantErr    bool
	}{
		{line: "turn on", text: "turn on", confidence: 1},
		{line: "  turn on | 0.4 ", text: "turn on", confidence: 0.4},
		{line: "a|b|0.7", text: "a|b", confidence: 0.7},
		{line: "turn on|high", wantErr: true},
		{line: "turn on|1.5", wantErr: true},
		{line: "turn on|-0.1", wantErr: true},
		{line: "", text: "", confidence: 1},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			text, confidence, err := parseUtterance(tt.line)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.text, text)
			assert.InDelta(t, tt.confidence, confidence, 1e-9)
		})
	}
}

func TestFeedUtterances_StopsAtEOF(t *testing.T) {
	eng := simulated.New()
	err := feedUtterances(context.Background(), strings.NewReader("hello\nbad|x\n\n"), eng)
	require.NoError(t, err)
}

func TestFeedUtterances_StopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- feedUtterances(ctx, pr, simulated.New()) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("feeder did not stop")
	}
}

func TestRecognitionWriter(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"text", "turn on (0.80)\n"},
		{"json", `{"tick":3,"text":"turn on","confidence":0.8,"choices":[0]}` + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			buf := &bytes.Buffer{}
			w := newRecognitionWriter(buf, tt.format)

			w.onTick(cycle.Report{Tick: 2, Outputs: session.Outputs{State: session.StateRecognizing}})
			w.onTick(cycle.Report{Tick: 3, Outputs: session.Outputs{
				State:             session.StateRecognizing,
				RecognitionResult: "turn on",
				Confidence:        0.8,
				OnRecognized:      true,
				Choices:           []int{0},
			}})
			// Below threshold: result set but no bang.
			w.onTick(cycle.Report{Tick: 4, Outputs: session.Outputs{
				State:             session.StateRecognizing,
				RecognitionResult: "turn off",
				Confidence:        0.1,
			}})

			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestOutputsChanged(t *testing.T) {
	base := session.Outputs{State: session.StateRecognizing, GrammarLoaded: true, RecognizerForCultureFound: true}

	assert.False(t, outputsChanged(base, base))

	withResult := base
	withResult.RecognitionResult = "turn on"
	withResult.Confidence = 0.9
	assert.False(t, outputsChanged(base, withResult))

	stopped := base
	stopped.State = session.StateGrammarReady
	assert.True(t, outputsChanged(base, stopped))

	speaking := base
	speaking.OnSpeechDetected = true
	assert.True(t, outputsChanged(base, speaking))
}
