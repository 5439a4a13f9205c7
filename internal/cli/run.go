package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/grammarctl/internal/config"
	"github.com/roach88/grammarctl/internal/cycle"
	"github.com/roach88/grammarctl/internal/metrics"
	"github.com/roach88/grammarctl/internal/recognizer"
	"github.com/roach88/grammarctl/internal/recognizer/simulated"
	"github.com/roach88/grammarctl/internal/session"
	"github.com/roach88/grammarctl/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigPath  string
	Database    string
	MetricsAddr string

	// Input is read for utterances when the backend is simulated. Defaults
	// to the command's stdin.
	Input io.Reader

	// IDGenerator allows overriding the session ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator session.IDGenerator
}

// Recognition is one accepted recognition written to stdout by run.
type Recognition struct {
	Tick       int     `json:"tick"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Choices    []int   `json:"choices,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the evaluation cycle against a recognizer",
		Long: `Run the evaluation cycle against the configured recognizer backend.

The configuration file is re-read whenever it changes on disk; every tick
applies the current culture, enabled flag, threshold and choice groups.
Accepted recognitions are written to stdout.

With the simulated backend, each stdin line is spoken into the engine as
"text" or "text|confidence".

Example:
  grammarctl run -c grammarctl.yaml
  grammarctl run -c grammarctl.yaml --db ./events.db --metrics-addr :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to configuration file (required)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite event log (overrides config)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides config)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runSession(opts *RunOptions, cmd *cobra.Command) error {
	configureLogging(opts.Verbose)

	watcher, err := config.Watch(opts.ConfigPath, nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	defer func() {
		if closeErr := watcher.Close(); closeErr != nil {
			slog.Warn("error closing config watcher", "error", closeErr)
		}
	}()
	cfg := watcher.Current()

	database := opts.Database
	if database == "" {
		database = cfg.Database
	}
	metricsAddr := opts.MetricsAddr
	if metricsAddr == "" {
		metricsAddr = cfg.MetricsAddr
	}

	slog.Info("opening recognizer backend", "backend", cfg.Backend)
	eng, err := recognizer.Open(cfg.Backend, cfg.BackendOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open recognizer backend", err)
	}

	observers := session.Observers{session.ObserverFunc(logEvent)}

	if database != "" {
		slog.Info("opening database", "path", database)
		st, err := store.Open(database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
		rec := store.NewRecorder(st)
		defer rec.Close()
		observers = append(observers, rec)
	}

	var collector *metrics.Collector
	if metricsAddr != "" {
		collector = metrics.NewCollector()
		observers = append(observers, collector)
	}

	idGen := opts.IDGenerator
	if idGen == nil {
		idGen = session.UUIDv7Generator{}
	}
	ctrl := session.NewController(eng,
		session.WithObserver(observers),
		session.WithIDGenerator(idGen),
		session.WithUpdateTimeout(cfg.UpdateTimeout),
	)
	cyc := cycle.New(ctrl)

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	out := newRecognitionWriter(cmd.OutOrStdout(), opts.Format)
	source := func() cycle.Config { return watcher.Current().Node }
	g.Go(func() error {
		return cyc.Run(gctx, cfg.TickInterval, source, out.onTick)
	})

	g.Go(func() error {
		return watcher.Run(gctx)
	})

	if sim, ok := eng.(*simulated.Engine); ok {
		input := opts.Input
		if input == nil {
			input = cmd.InOrStdin()
		}
		g.Go(func() error {
			return feedUtterances(gctx, input, sim)
		})
	}

	if collector != nil {
		server := &http.Server{
			Addr:              metricsAddr,
			Handler:           metricsMux(collector),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("serving metrics", "addr", metricsAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			return server.Shutdown(shutdownCtx)
		})
	}

	slog.Info("session starting",
		"config", opts.ConfigPath,
		"backend", cfg.Backend,
		"culture", cfg.Node.Culture,
		"tick_interval", cfg.TickInterval.String())

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "session error", err)
	}

	slog.Info("session stopped gracefully")
	return nil
}

func metricsMux(c *metrics.Collector) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	return mux
}

// logEvent mirrors session events into the process log.
func logEvent(e session.Event) {
	attrs := []any{
		"kind", string(e.Kind),
		"session", e.Session,
		"culture", e.Culture,
		"state", e.State.String(),
	}
	switch e.Kind {
	case session.EventRecognized:
		attrs = append(attrs, "text", e.Text, "confidence", e.Confidence, "accepted", e.Accepted)
	case session.EventGrammarLoaded:
		attrs = append(attrs, "fingerprint", e.Fingerprint, "skipped", e.Skipped)
	}
	if e.Code != "" {
		attrs = append(attrs, "code", string(e.Code), "message", e.Message)
	}
	slog.Debug("session event", attrs...)
}

// recognitionWriter prints accepted recognitions and logs output changes.
type recognitionWriter struct {
	w      io.Writer
	format string
	prev   *session.Outputs
}

func newRecognitionWriter(w io.Writer, format string) *recognitionWriter {
	return &recognitionWriter{w: w, format: format}
}

func (r *recognitionWriter) onTick(rep cycle.Report) {
	cur := rep.Outputs
	if r.prev == nil || outputsChanged(*r.prev, cur) {
		slog.Info("outputs changed",
			"tick", rep.Tick,
			"state", cur.State.String(),
			"culture_found", cur.RecognizerForCultureFound,
			"grammar_loaded", cur.GrammarLoaded,
			"speech_detected", cur.OnSpeechDetected)
	}
	r.prev = &cur

	if !cur.OnRecognized {
		return
	}
	rec := Recognition{
		Tick:       rep.Tick,
		Text:       cur.RecognitionResult,
		Confidence: cur.Confidence,
		Choices:    cur.Choices,
	}
	if r.format == "json" {
		if err := json.NewEncoder(r.w).Encode(rec); err != nil {
			slog.Warn("failed to write recognition", "error", err)
		}
		return
	}
	fmt.Fprintf(r.w, "%s (%.2f)\n", rec.Text, rec.Confidence)
}

func outputsChanged(a, b session.Outputs) bool {
	return a.State != b.State ||
		a.RecognizerForCultureFound != b.RecognizerForCultureFound ||
		a.GrammarLoaded != b.GrammarLoaded ||
		a.OnSpeechDetected != b.OnSpeechDetected
}

// feedUtterances speaks each input line into the simulated engine until
// ctx is done or the input is exhausted.
func feedUtterances(ctx context.Context, input io.Reader, eng *simulated.Engine) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			slog.Warn("utterance input error", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				slog.Debug("utterance input closed")
				return nil
			}
			text, confidence, err := parseUtterance(line)
			if err != nil {
				slog.Warn("ignoring utterance", "line", line, "error", err)
				continue
			}
			if text == "" {
				continue
			}
			if !eng.Say(text, confidence) {
				slog.Warn("utterance dropped: no live recognizer", "text", text)
			}
		}
	}
}

// parseUtterance splits "text|confidence". Confidence defaults to 1.
func parseUtterance(line string) (string, float64, error) {
	line = strings.TrimSpace(line)
	idx := strings.LastIndex(line, "|")
	if idx < 0 {
		return line, 1, nil
	}

	text := strings.TrimSpace(line[:idx])
	confidence, err := strconv.ParseFloat(strings.TrimSpace(line[idx+1:]), 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid confidence: %w", err)
	}
	if confidence < 0 || confidence > 1 {
		return "", 0, fmt.Errorf("confidence %v out of range [0,1]", confidence)
	}
	return text, confidence, nil
}
