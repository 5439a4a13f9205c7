package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/grammarctl/internal/config"
	"github.com/roach88/grammarctl/internal/fault"
	"github.com/roach88/grammarctl/internal/grammar"
	"github.com/roach88/grammarctl/internal/recognizer"
)

// ValidationIssue is a single problem found in a configuration.
type ValidationIssue struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SkippedGroup is a choice group the grammar builder dropped.
type SkippedGroup struct {
	Group  int    `json:"group"`
	Reason string `json:"reason"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Backend  string            `json:"backend,omitempty"`
	Culture  string            `json:"culture,omitempty"`
	Elements int               `json:"elements"`
	Skipped  []SkippedGroup    `json:"skipped,omitempty"`
	Errors   []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config>",
		Short: "Validate a configuration file",
		Long: `Validate a YAML or CUE configuration against the schema and build its
grammar without starting a recognizer.

Choice groups the grammar builder skips are reported; the configuration
is invalid only if no group survives, the culture cannot be parsed, or the
backend is not registered.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if _, err := os.Stat(path); err != nil {
		_ = formatter.Error(ErrCodeConfig, fmt.Sprintf("config file not found: %s", path), nil)
		return WrapExitError(ExitCommandError, "config file not found", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return outputValidationErrors(formatter, []ValidationIssue{{
			Field:   "config",
			Code:    ErrCodeConfig,
			Message: err.Error(),
		}})
	}
	formatter.VerboseLog("Loaded %s (backend=%s, culture=%s, %d group(s))",
		path, cfg.Backend, cfg.Node.Culture, len(cfg.Node.Groups))

	result := validateConfig(cfg)
	if !result.Valid {
		return outputValidationErrors(formatter, result.Errors)
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "✓ %s is valid\n", path)
	fmt.Fprintf(w, "  Backend:  %s\n", result.Backend)
	fmt.Fprintf(w, "  Culture:  %s\n", result.Culture)
	fmt.Fprintf(w, "  Elements: %d\n", result.Elements)
	for _, s := range result.Skipped {
		fmt.Fprintf(w, "  ! group %d skipped: %s\n", s.Group, s.Reason)
	}
	return nil
}

// validateConfig checks the parts of a loaded config the schema cannot:
// the backend registry, the culture tag and the grammar itself.
func validateConfig(cfg *config.Config) ValidationResult {
	result := ValidationResult{
		Backend: cfg.Backend,
		Culture: cfg.Node.Culture,
	}

	if !backendRegistered(cfg.Backend) {
		result.Errors = append(result.Errors, ValidationIssue{
			Field:   "backend",
			Code:    ErrCodeBackend,
			Message: fmt.Sprintf("unknown recognizer backend %q", cfg.Backend),
		})
	}

	if len(cfg.Node.Groups) == 0 {
		if _, err := grammar.ParseCulture(cfg.Node.Culture); err != nil {
			result.Errors = append(result.Errors, grammarIssue("node.culture", err))
		}
	} else {
		spec, err := grammar.Build(cfg.Node.Groups, cfg.Node.Culture)
		if err != nil {
			field := "node.groups"
			if fault.Is(err, fault.CultureNotFound) {
				field = "node.culture"
			}
			result.Errors = append(result.Errors, grammarIssue(field, err))
		} else {
			result.Culture = spec.Culture.String()
			result.Elements = len(spec.Elements)
			for _, s := range spec.Skipped {
				result.Skipped = append(result.Skipped, SkippedGroup{Group: s.Group, Reason: s.Err.Error()})
			}
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

func grammarIssue(field string, err error) ValidationIssue {
	code := ErrCodeGrammar
	if c := fault.CodeOf(err); c != "" {
		code = string(c)
	}
	return ValidationIssue{Field: field, Code: code, Message: err.Error()}
}

func backendRegistered(name string) bool {
	for _, b := range recognizer.Backends() {
		if b.Name == name {
			return true
		}
	}
	return false
}

// outputValidationErrors formats validation errors and returns exit code 1.
func outputValidationErrors(f *OutputFormatter, issues []ValidationIssue) error {
	if f.Format == "json" {
		_ = f.Error(issues[0].Code, fmt.Sprintf("validation failed with %d error(s)", len(issues)), issues)
	} else {
		fmt.Fprintf(f.Writer, "✗ Validation failed with %d error(s):\n", len(issues))
		for _, issue := range issues {
			fmt.Fprintf(f.Writer, "  [%s] %s: %s\n", issue.Code, issue.Field, issue.Message)
		}
	}
	return NewExitError(ExitFailure, "validation failed")
}
