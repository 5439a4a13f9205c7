package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/grammarctl/internal/config"
	"github.com/roach88/grammarctl/internal/recognizer"
)

// RecognizersOptions holds flags for the recognizers command.
type RecognizersOptions struct {
	*RootOptions
	Backend        string
	BackendOptions map[string]string
	ListBackends   bool
}

// RecognizerInfo is one installed recognizer in command output.
type RecognizerInfo struct {
	Culture     string `json:"culture"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Default     bool   `json:"default"`
}

// BackendInfo is one registered backend in command output.
type BackendInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RecognizersResult holds the recognizers command output.
type RecognizersResult struct {
	Backend     string           `json:"backend,omitempty"`
	Recognizers []RecognizerInfo `json:"recognizers,omitempty"`
	Backends    []BackendInfo    `json:"backends,omitempty"`
}

// NewRecognizersCommand creates the recognizers command.
func NewRecognizersCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecognizersOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "recognizers",
		Short: "List installed recognizers",
		Long: `List the recognizers a backend has installed, one per culture.

The first recognizer is the backend's default. Recognizers without a
culture are not listed.

Examples:
  grammarctl recognizers
  grammarctl recognizers --backend simulated --option cultures=en-US,de-DE
  grammarctl recognizers --backends`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecognizers(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Backend, "backend", config.DefaultBackend, "recognizer backend")
	cmd.Flags().StringToStringVar(&opts.BackendOptions, "option", nil, "backend option key=value (repeatable)")
	cmd.Flags().BoolVar(&opts.ListBackends, "backends", false, "list registered backends instead")

	return cmd
}

func runRecognizers(opts *RecognizersOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if opts.ListBackends {
		result := RecognizersResult{Backends: listBackends()}
		if opts.Format == "json" {
			return formatter.Success(result)
		}
		w := cmd.OutOrStdout()
		for _, b := range result.Backends {
			fmt.Fprintf(w, "%-12s %s\n", b.Name, b.Description)
		}
		return nil
	}

	eng, err := recognizer.Open(opts.Backend, opts.BackendOptions)
	if err != nil {
		_ = formatter.Error(ErrCodeBackend, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open recognizer backend", err)
	}

	result := RecognizersResult{
		Backend:     eng.Name(),
		Recognizers: installedRecognizers(eng),
	}
	if opts.Format == "json" {
		return formatter.Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Backend: %s\n", result.Backend)
	if len(result.Recognizers) == 0 {
		fmt.Fprintln(w, "  (no recognizers installed)")
		return nil
	}
	for _, r := range result.Recognizers {
		marker := " "
		if r.Default {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %-8s %s\n", marker, r.Culture, r.Name)
		if opts.Verbose && r.Description != "" {
			fmt.Fprintf(w, "           %s\n", r.Description)
		}
	}
	return nil
}

func installedRecognizers(eng recognizer.Engine) []RecognizerInfo {
	infos := eng.InstalledRecognizers()
	out := make([]RecognizerInfo, 0, len(infos))
	for _, info := range infos {
		culture := info.Culture.String()
		if culture == "" || culture == "und" {
			continue
		}
		out = append(out, RecognizerInfo{
			Culture:     culture,
			Name:        info.Name,
			Description: info.Description,
			Default:     len(out) == 0,
		})
	}
	return out
}

func listBackends() []BackendInfo {
	backends := recognizer.Backends()
	out := make([]BackendInfo, 0, len(backends))
	for _, b := range backends {
		out = append(out, BackendInfo{Name: b.Name, Description: b.Description})
	}
	return out
}
