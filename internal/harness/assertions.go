package harness

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/grammarctl/internal/store"
)

// validIdentifier matches the table and column names final_state may
// interpolate into a query.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	// Header with assertion type
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)

	// Expected vs Actual (most important info)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	// Full trace for context
	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s", event.Seq, event.Kind, event.State)
		if event.Text != "" {
			fmt.Fprintf(&buf, " %q", event.Text)
		}
		if event.Code != "" {
			fmt.Fprintf(&buf, " %s", event.Code)
		}
		buf.WriteString("\n")
	}

	return buf.String()
}

// assertTraceContains checks if the trace contains an event of the
// specified kind whose fields match every filter that is set.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Kind == assertion.Kind && matchEvent(event, assertion) {
			return nil
		}
	}

	return &AssertionError{
		Type:     "trace_contains",
		Expected: fmt.Sprintf("event %s%s", assertion.Kind, describeFilters(assertion)),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if event kinds first appear in the specified order.
// Kinds don't need to be consecutive (intervening events are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	// Step 1: Find first position of each expected kind
	positions := make(map[string]int)

	for i, event := range trace {
		for _, kind := range assertion.Kinds {
			if event.Kind == kind && positions[kind] == 0 {
				positions[kind] = i + 1 // 1-indexed for readability
			}
		}
	}

	// Step 2: Verify all kinds found
	for _, kind := range assertion.Kinds {
		if positions[kind] == 0 {
			return &AssertionError{
				Type:     "trace_order",
				Expected: fmt.Sprintf("all kinds present: %v", assertion.Kinds),
				Actual:   fmt.Sprintf("missing kind: %s", kind),
				Trace:    trace,
			}
		}
	}

	// Step 3: Verify order
	for i := 1; i < len(assertion.Kinds); i++ {
		prev := assertion.Kinds[i-1]
		curr := assertion.Kinds[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     "trace_order",
				Expected: fmt.Sprintf("kinds in order: %v", assertion.Kinds),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks if the kind appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Kind == assertion.Kind {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     "trace_count",
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Kind),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertFinalState looks up the single log row selected by the where
// filters and compares the expected columns against it. Columns absent
// from Expect are not checked.
func assertFinalState(ctx context.Context, st *store.Store, a Assertion) error {
	if a.Table == "" {
		return fmt.Errorf("final_state assertion requires table name")
	}
	if !validIdentifier.MatchString(a.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", a.Table, validIdentifier)
	}

	row, columns, err := selectOneRow(ctx, st, a.Table, a.Where)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, col := range keys {
		want := a.Expect[col]
		got, ok := row[col]
		if !ok {
			return finalStateError(
				fmt.Sprintf("column %q in %s", col, a.Table),
				fmt.Sprintf("no such column (have %s)", strings.Join(columns, ", ")))
		}
		if !stateValuesEqual(want, got) {
			return finalStateError(
				fmt.Sprintf("%s = %v (%T)", col, want, want),
				fmt.Sprintf("%s = %v (%T)", col, got, got))
		}
	}
	return nil
}

// selectOneRow returns the only row of table matching where, keyed by
// column name.
func selectOneRow(ctx context.Context, st *store.Store, table string, where map[string]interface{}) (map[string]interface{}, []string, error) {
	cond, args, err := buildWhereClause(where)
	if err != nil {
		return nil, nil, err
	}
	query := "SELECT * FROM " + table
	if cond != "" {
		query += " WHERE " + cond
	}

	rows, err := st.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, finalStateError("query on "+table, fmt.Sprintf("query error: %v", err))
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("read columns of %s: %w", table, err)
	}

	desc := formatWhereClause(where)
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", table, err)
		}
		return nil, nil, finalStateError("row in "+table+" where "+desc, "row not found")
	}

	cells := make([]interface{}, len(columns))
	dest := make([]interface{}, len(columns))
	for i := range cells {
		dest[i] = &cells[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, nil, fmt.Errorf("scan %s: %w", table, err)
	}
	if rows.Next() {
		return nil, nil, finalStateError("one row in "+table+" where "+desc, "multiple rows matched")
	}

	row := make(map[string]interface{}, len(columns))
	for i, col := range columns {
		row[col] = cells[i]
	}
	return row, columns, nil
}

func finalStateError(expected, actual string) *AssertionError {
	return &AssertionError{Type: AssertFinalState, Expected: expected, Actual: actual}
}

// buildWhereClause renders where as "col = ?" terms joined by AND, in
// column order. Values are only ever bound as arguments.
func buildWhereClause(where map[string]interface{}) (string, []interface{}, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	cols := make([]string, 0, len(where))
	for col := range where {
		if !validIdentifier.MatchString(col) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", col, validIdentifier)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	terms := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, col := range cols {
		terms[i] = col + " = ?"
		args[i] = toSQLValue(where[col])
	}
	return strings.Join(terms, " AND "), args, nil
}

// toSQLValue passes scalar YAML values through and formats anything else.
func toSQLValue(v interface{}) interface{} {
	switch v.(type) {
	case string, int, int64, float64, bool:
		return v
	}
	return fmt.Sprint(v)
}

func formatWhereClause(where map[string]interface{}) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	cols := make([]string, 0, len(where))
	for col := range where {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for i, col := range cols {
		cols[i] = fmt.Sprintf("%s=%v", col, where[col])
	}
	return strings.Join(cols, " AND ")
}

// stateValuesEqual compares a YAML-decoded value with a SQLite column
// value. SQLite hands back integers as int64 and booleans as 0 or 1.
func stateValuesEqual(expected, actual interface{}) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	switch want := expected.(type) {
	case string:
		got, ok := actual.(string)
		return ok && got == want
	case bool:
		switch got := actual.(type) {
		case bool:
			return got == want
		case int64:
			return (got != 0) == want
		}
		return false
	case int, int64, float64:
		w, ok := asFloat(want)
		if !ok {
			return false
		}
		g, ok := asFloat(actual)
		return ok && g == w
	}
	return reflect.DeepEqual(expected, actual)
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// matchEvent checks the optional field filters of a trace_contains assertion.
func matchEvent(event TraceEvent, a Assertion) bool {
	if a.Text != nil && event.Text != *a.Text {
		return false
	}
	if a.Code != nil && event.Code != *a.Code {
		return false
	}
	if a.Culture != nil && event.Culture != *a.Culture {
		return false
	}
	if a.Accepted != nil && event.Accepted != *a.Accepted {
		return false
	}
	return true
}

// describeFilters renders the set filters for failure messages.
func describeFilters(a Assertion) string {
	var parts []string
	if a.Text != nil {
		parts = append(parts, fmt.Sprintf("text=%q", *a.Text))
	}
	if a.Code != nil {
		parts = append(parts, "code="+*a.Code)
	}
	if a.Culture != nil {
		parts = append(parts, "culture="+*a.Culture)
	}
	if a.Accepted != nil {
		parts = append(parts, fmt.Sprintf("accepted=%t", *a.Accepted))
	}
	if len(parts) == 0 {
		return ""
	}
	return " with " + strings.Join(parts, " ")
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for final_state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
