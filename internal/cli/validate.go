package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Diesmo/scripthost/internal/manifest"
)

// ManifestIssue is one validation problem found in a manifest file.
type ManifestIssue struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results for a scripts directory.
type ValidationResult struct {
	Valid   bool            `json:"valid"`
	Scripts []string        `json:"scripts,omitempty"`
	Errors  []ManifestIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scripts-dir>",
		Short: "Validate script manifests without starting the host",
		Long: `Validate CUE script manifests without starting the host runtime.

Checks syntax, required manifest fields, variable declarations, and
backend restrictions. All files are checked and every error is reported.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, scriptsDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	manifests, errs := manifest.LoadDir(scriptsDir)
	formatter.VerboseLog("found %d manifest(s) in %s", len(manifests), scriptsDir)

	if len(errs) > 0 {
		return outputValidationErrors(formatter, toIssues(errs))
	}

	names := make([]string, 0, len(manifests))
	for _, m := range manifests {
		names = append(names, m.Name)
	}
	return outputValidateSuccess(formatter, names)
}

// toIssues converts loader errors into reportable issues, carrying source
// positions from compile errors where available.
func toIssues(errs []error) []ManifestIssue {
	issues := make([]ManifestIssue, 0, len(errs))
	for _, err := range errs {
		var cErr *manifest.CompileError
		if errors.As(err, &cErr) {
			issue := ManifestIssue{Field: cErr.Field, Message: cErr.Message}
			if cErr.Pos.IsValid() {
				issue.Line = cErr.Pos.Line()
			}
			issues = append(issues, issue)
			continue
		}
		issues = append(issues, ManifestIssue{Message: err.Error()})
	}
	return issues
}

func outputValidateSuccess(formatter *OutputFormatter, scripts []string) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Scripts: scripts})
	}

	fmt.Fprintf(formatter.Writer, "✓ %d script manifest(s) valid\n", len(scripts))
	for _, name := range scripts {
		fmt.Fprintf(formatter.Writer, "  %s\n", name)
	}
	return nil
}

func outputValidationErrors(formatter *OutputFormatter, issues []ManifestIssue) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: issues},
			Error: &CLIError{
				Code:    ErrCodeValidation,
				Message: issues[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, issue := range issues {
		if issue.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", issue.Line)
		}
		if issue.Field != "" {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", issue.Field, issue.Message)
		} else {
			fmt.Fprintf(formatter.Writer, "  %s\n\n", issue.Message)
		}
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
}
