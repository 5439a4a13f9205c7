package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/grammarctl/internal/session"
	"github.com/roach88/grammarctl/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string // optional - restrict to one session
	Kind     string // optional - filter to one event kind
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Session  string          `json:"session,omitempty"`
	Sessions []store.Session `json:"sessions"`
	Timeline []store.Record  `json:"timeline"`
	Stats    TraceStats      `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents  int `json:"total_events"`
	Sessions     int `json:"sessions"`
	Recognitions int `json:"recognitions"`
	Accepted     int `json:"accepted"`
	Rejected     int `json:"rejected"`
	Faults       int `json:"faults"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Print the recorded event log",
		Long: `Print the session and recognition events recorded by "grammarctl run --db".

The output includes:
- Sessions: one entry per recognizer lifetime, with its culture
- Timeline: every event in order
- Stats: summary counts

Examples:
  grammarctl trace --db ./events.db
  grammarctl trace --db ./events.db --session 0190a3c4-...
  grammarctl trace --db ./events.db --kind recognized --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite event log (required)")
	cmd.Flags().StringVar(&opts.Session, "session", "", "only show events of this session")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only show events of this kind")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	sessions, err := st.ReadSessions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read sessions", err)
	}
	events, err := st.ReadEvents(ctx, opts.Session)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	if opts.Session != "" {
		sessions = filterSessions(sessions, opts.Session)
	}
	timeline := filterKind(events, opts.Kind)

	result := TraceResult{
		Session:  opts.Session,
		Sessions: sessions,
		Timeline: timeline,
		Stats:    buildStats(timeline, len(sessions)),
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: result})
	}
	return outputTraceText(cmd.OutOrStdout(), result, opts.Verbose)
}

func filterSessions(sessions []store.Session, id string) []store.Session {
	out := []store.Session{}
	for _, s := range sessions {
		if s.ID == id {
			out = append(out, s)
		}
	}
	return out
}

func filterKind(events []store.Record, kind string) []store.Record {
	if kind == "" {
		return events
	}
	out := []store.Record{}
	for _, e := range events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func buildStats(events []store.Record, sessions int) TraceStats {
	stats := TraceStats{TotalEvents: len(events), Sessions: sessions}
	for _, e := range events {
		switch session.EventKind(e.Kind) {
		case session.EventRecognized:
			stats.Recognitions++
			if e.Accepted {
				stats.Accepted++
			}
		case session.EventRejected:
			stats.Rejected++
		}
		if e.Code != "" {
			stats.Faults++
		}
	}
	return stats
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) error {
	if result.Session != "" {
		fmt.Fprintf(w, "Trace for Session: %s\n", result.Session)
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "=== Sessions ===")
	if len(result.Sessions) == 0 {
		fmt.Fprintln(w, "  (no sessions)")
	}
	for _, s := range result.Sessions {
		ended := "open"
		if s.EndedAt != nil {
			ended = s.EndedAt.Format(timeFormat)
		}
		fmt.Fprintf(w, "  %s %-8s %s .. %s\n", truncateID(s.ID), s.Culture, s.StartedAt.Format(timeFormat), ended)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, e := range result.Timeline {
		formatTimelineEvent(w, e, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Sessions:     %d\n", result.Stats.Sessions)
	fmt.Fprintf(w, "  Recognitions: %d (%d accepted)\n", result.Stats.Recognitions, result.Stats.Accepted)
	fmt.Fprintf(w, "  Rejected:     %d\n", result.Stats.Rejected)
	fmt.Fprintf(w, "  Faults:       %d\n", result.Stats.Faults)

	return nil
}

const timeFormat = "15:04:05.000"

// formatTimelineEvent formats a single timeline event for text output.
func formatTimelineEvent(w io.Writer, e store.Record, verbose bool) {
	var detail []string
	switch session.EventKind(e.Kind) {
	case session.EventRecognized:
		mark := "rejected by threshold"
		if e.Accepted {
			mark = "accepted"
		}
		detail = append(detail, fmt.Sprintf("%q %.2f %s", e.Text, e.Confidence, mark))
	case session.EventGrammarLoaded:
		if e.Fingerprint != "" {
			detail = append(detail, "grammar "+truncateID(e.Fingerprint))
		}
	}
	if e.Code != "" {
		detail = append(detail, fmt.Sprintf("[%s] %s", e.Code, e.Message))
	}

	fmt.Fprintf(w, "  [%d] %s %-20s %s", e.Seq, e.At.Format(timeFormat), e.Kind, e.State)
	if len(detail) > 0 {
		fmt.Fprintf(w, "  %s", strings.Join(detail, " "))
	}
	fmt.Fprintln(w)

	if verbose {
		if e.Session != "" {
			fmt.Fprintf(w, "       Session: %s\n", e.Session)
		}
		if len(e.Choices) > 0 {
			fmt.Fprintf(w, "       Choices: %v\n", e.Choices)
		}
	}
}

// truncateID shortens an ID for display.
func truncateID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12] + "..."
}
