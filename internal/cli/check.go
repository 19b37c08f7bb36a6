package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/formulary/internal/compiler"
	"github.com/roach88/formulary/internal/ir"
)

// CheckResult holds validation and dependency analysis results.
type CheckResult struct {
	Valid        bool                       `json:"valid"`
	Formulas     int                        `json:"formulas"`
	Errors       []compiler.ValidationError `json:"errors,omitempty"`
	Dependencies *compiler.DependencyReport `json:"dependencies,omitempty"`
}

// NewCheckCommand creates the formula check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [<path>]",
		Short: "Validate formulas and report ordering problems",
		Long: `Validate formulas and analyze how they depend on each other.

Without a path the stored formulas are checked. With a path, the CUE
declarations in that file or directory are checked instead.

Reported problems:
  E201-E206  invalid field names or expressions, duplicate fields
  cycles     formulas that read each other's output
  forward    a formula reads a field produced by a later formula and
             therefore sees the previously stored value

Only E2xx errors fail the command; dependency findings are warnings.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runCheck(rootOpts, path, cmd)
		},
	}

	return cmd
}

func runCheck(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	if path == "" {
		return withApp(opts, cmd, func(ctx context.Context, app *App) error {
			formulas, err := app.Catalog.Registry().List(ctx)
			if err != nil {
				return registryFailure(formatter, err)
			}
			return checkFormulas(formatter, formulas, nil)
		})
	}

	// Use shared loader, collecting every compile error
	loadResult, loadErrors := LoadFormulas(path, LoadModeCollectAll)

	// Handle load errors (path not found, no files, etc.)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputCheckError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputCheckError(formatter, ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, path)

	var compileProblems []compiler.ValidationError
	for _, err := range loadErrors {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			compileProblems = append(compileProblems, compiler.ValidationError{
				Field:   "load",
				Message: loadErr.Message,
				Code:    loadErr.Code,
				Level:   compiler.LevelError,
				Line:    getLineFromPos(loadErr),
			})
		}
	}

	formulas := make([]ir.FormulaDefinition, len(loadResult.Formulas))
	lines := make([]int, len(loadResult.Formulas))
	for i, spec := range loadResult.Formulas {
		formulas[i] = spec.Definition()
		if spec.Pos.IsValid() {
			lines[i] = spec.Pos.Line()
		}
	}
	return checkFormulas(formatter, formulas, lines, compileProblems...)
}

// checkFormulas validates formulas, analyzes their dependencies, and
// writes the result. lines holds optional source lines per formula.
func checkFormulas(formatter *OutputFormatter, formulas []ir.FormulaDefinition, lines []int, extra ...compiler.ValidationError) error {
	problems := append([]compiler.ValidationError{}, extra...)
	for _, p := range compiler.Validate(formulas) {
		if p.Line == 0 {
			p.Line = lineOf(p.Field, formulas, lines)
		}
		problems = append(problems, p)
	}

	for _, f := range formulas {
		formatter.VerboseLog("Checked formula: %s = %s", f.FieldName, f.Expression)
	}
	deps := compiler.AnalyzeDependencies(formulas)

	result := CheckResult{
		Valid:        !compiler.HasErrors(problems),
		Formulas:     len(formulas),
		Errors:       problems,
		Dependencies: &deps,
	}

	if !result.Valid {
		return outputCheckFailure(formatter, result)
	}
	return outputCheckSuccess(formatter, result)
}

// lineOf finds the source line of the formula a problem refers to.
func lineOf(field string, formulas []ir.FormulaDefinition, lines []int) int {
	for i, f := range formulas {
		if i < len(lines) && (field == "formula."+f.FieldName || field == fmt.Sprintf("formulas[%d]", i)) {
			return lines[i]
		}
	}
	return 0
}

// getLineFromPos extracts the line number of a load error.
func getLineFromPos(err *LoadError) int {
	if err.Pos.IsValid() {
		return err.Pos.Line()
	}
	return 0
}

// outputCheckSuccess outputs a passing check, including any warnings.
func outputCheckSuccess(formatter *OutputFormatter, result CheckResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	writeProblems(formatter, result.Errors)
	writeDependencies(formatter, result.Dependencies)
	green.Fprintf(formatter.Writer, "✓ %d formula(s) valid\n", result.Formulas)
	return nil
}

// outputCheckError outputs a single command-level error.
func outputCheckError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputCheckFailure outputs a failing check.
func outputCheckFailure(formatter *OutputFormatter, result CheckResult) error {
	errCount := 0
	for _, p := range result.Errors {
		if !p.IsWarning() {
			errCount++
		}
	}

	if formatter.Format == "json" {
		first := result.Errors[0]
		for _, p := range result.Errors {
			if !p.IsWarning() {
				first = p
				break
			}
		}

		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    first.Code,
				Message: first.Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", errCount))
	}

	// Text format
	red.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	writeProblems(formatter, result.Errors)
	writeDependencies(formatter, result.Dependencies)

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", errCount))
}

// outputValidationErrors reports invalid formulas found before an import.
func outputValidationErrors(formatter *OutputFormatter, problems []compiler.ValidationError) error {
	return outputCheckFailure(formatter, CheckResult{
		Valid:  false,
		Errors: problems,
	})
}

func writeProblems(formatter *OutputFormatter, problems []compiler.ValidationError) {
	for _, p := range problems {
		if p.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", p.Line)
		}
		c := red
		if p.IsWarning() {
			c = yellow
		}
		c.Fprintf(formatter.Writer, "  %s", p.Code)
		fmt.Fprintf(formatter.Writer, ": %s: %s\n\n", p.Field, p.Message)
	}
}

func writeDependencies(formatter *OutputFormatter, deps *compiler.DependencyReport) {
	if deps == nil || !deps.HasWarnings() {
		return
	}

	for _, c := range deps.Cycles {
		yellow.Fprintf(formatter.Writer, "⚠ %s\n", c.Message)
	}
	for _, ref := range deps.ForwardReferences {
		yellow.Fprintf(formatter.Writer, "⚠ %s\n", ref.Message)
	}
	if len(deps.SuggestedOrder) > 0 {
		fmt.Fprintln(formatter.Writer, "Suggested order:")
		for i, f := range deps.SuggestedOrder {
			fmt.Fprintf(formatter.Writer, "  %d. %s = %s\n", i+1, f.FieldName, f.Expression)
		}
	}
	fmt.Fprintln(formatter.Writer)
}
