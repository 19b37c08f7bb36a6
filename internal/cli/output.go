package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/roach88/formulary/internal/catalog"
	"github.com/roach88/formulary/internal/ir"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Partial recompute, failed scenarios, invalid formulas
	ExitCommandError = 2 // Command error (invalid paths, database not found, etc.)
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "NOT_FOUND", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	red.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// ReportOutput is the JSON payload for commands that recompute records.
type ReportOutput struct {
	Outcome catalog.Outcome    `json:"outcome"`
	Summary string             `json:"summary"`
	Report  ir.RecomputeReport `json:"report"`
}

// Report outputs a recompute report. A partial failure is returned as an
// ExitFailure error after the report has been written.
func (f *OutputFormatter) Report(report ir.RecomputeReport) error {
	outcome := catalog.OutcomeOf(report)
	summary := catalog.Summary(report)

	if f.Format == "json" {
		resp := CLIResponse{
			Status: "ok",
			Data: ReportOutput{
				Outcome: outcome,
				Summary: summary,
				Report:  report,
			},
		}
		if outcome == catalog.PartialFailure {
			resp.Status = "error"
			resp.Error = &CLIError{Code: string(outcome), Message: summary}
		}
		if err := json.NewEncoder(f.Writer).Encode(resp); err != nil {
			return err
		}
	} else {
		f.reportText(report, outcome, summary)
	}

	if outcome == catalog.PartialFailure {
		return NewExitError(ExitFailure, summary)
	}
	return nil
}

func (f *OutputFormatter) reportText(report ir.RecomputeReport, outcome catalog.Outcome, summary string) {
	if outcome == catalog.AllRecomputed {
		green.Fprintf(f.Writer, "✓ %s\n", summary)
	} else {
		yellow.Fprintf(f.Writer, "⚠ %s\n", summary)
		for _, failure := range report.Failures {
			red.Fprintf(f.Writer, "  ✗ %s", failure.RecordID)
			fmt.Fprintf(f.Writer, ": %s\n", failure.Reason)
		}
		if len(report.FailedRecordIDs) > 0 {
			fmt.Fprintln(f.Writer, "  Retry with: formulary recompute --ids", strings.Join(report.FailedRecordIDs, ","))
		}
	}
	if report.Fingerprint != "" {
		f.VerboseLog("formula set %s", report.Fingerprint)
	}
}
