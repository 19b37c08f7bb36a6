package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/table"
	"github.com/jedib0t/go-pretty/text"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/formulary/internal/engine"
	"github.com/roach88/formulary/internal/ir"
)

// RecordAddOptions holds flags for the record add command.
type RecordAddOptions struct {
	*RootOptions
	ID  string
	Set []string
}

// NewRecordCommand creates the record command group.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Create and inspect catalog records",
	}

	cmd.AddCommand(newRecordAddCommand(rootOpts))
	cmd.AddCommand(newRecordGetCommand(rootOpts))
	cmd.AddCommand(newRecordListCommand(rootOpts))
	cmd.AddCommand(newRecordDeleteCommand(rootOpts))

	return cmd
}

func newRecordAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordAddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add --set key=value...",
		Short: "Create a record with its derived fields",
		Long: `Create a record. Active formulas are evaluated against the given
attributes and their results are stored with the record.

Values are read as YAML scalars: 12 and 1.5e3 are numbers, true/false are
booleans, null or an empty value is absent, anything else is text.

Example:
  formulary record add --set model=X-100 --set width=2 --set height=3`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordAdd(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "record id (generated when empty)")
	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "attribute as key=value (repeatable)")

	return cmd
}

// RecordAddResult is the JSON payload of record add.
type RecordAddResult struct {
	ID      string        `json:"id"`
	Derived ir.Attributes `json:"derived"`
}

func runRecordAdd(opts *RecordAddOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	attrs, err := ParseAssignments(opts.Set)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid --set", err)
	}

	return withApp(opts.RootOptions, cmd, func(ctx context.Context, app *App) error {
		id, derived, err := app.Catalog.CreateRecord(ctx, opts.ID, attrs)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to create record", err)
		}

		if formatter.Format == "json" {
			return formatter.Success(RecordAddResult{ID: id, Derived: derived})
		}
		fmt.Fprintf(formatter.Writer, "Created record %s\n", id)
		writeAttributes(formatter.Writer, derived)
		return nil
	})
}

func newRecordGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <id>",
		Short:         "Show one record",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App) error {
				rec, err := app.Records.Get(ctx, args[0])
				if errors.Is(err, ir.ErrNotFound) {
					_ = formatter.Error("NOT_FOUND", fmt.Sprintf("record %s not found", args[0]), nil)
					return WrapExitError(ExitCommandError, "record not found", err)
				}
				if err != nil {
					return WrapExitError(ExitFailure, "failed to read record", err)
				}

				if formatter.Format == "json" {
					return formatter.Success(rec)
				}
				fmt.Fprintf(formatter.Writer, "Record %s\n", rec.ID)
				writeAttributes(formatter.Writer, rec.Attributes)
				return nil
			})
		},
	}
}

func newRecordDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <id>",
		Short:         "Delete a record",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App) error {
				err := app.Catalog.DeleteRecord(ctx, args[0])
				if errors.Is(err, ir.ErrNotFound) {
					_ = formatter.Error("NOT_FOUND", fmt.Sprintf("record %s not found", args[0]), nil)
					return WrapExitError(ExitCommandError, "record not found", err)
				}
				if err != nil {
					return WrapExitError(ExitFailure, "failed to delete record", err)
				}

				if formatter.Format == "json" {
					return formatter.Success(map[string]string{"deleted": args[0]})
				}
				fmt.Fprintf(formatter.Writer, "Deleted record %s\n", args[0])
				return nil
			})
		},
	}
}

func newRecordListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List records in insertion order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App) error {
				records, err := app.Records.ListAll(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list records", err)
				}

				if formatter.Format == "json" {
					if records == nil {
						records = []ir.Record{}
					}
					return formatter.Success(records)
				}
				writeRecordTable(formatter.Writer, records)
				return nil
			})
		},
	}
}

// writeRecordTable renders records with one column per attribute name.
func writeRecordTable(w io.Writer, records []ir.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No records.")
		return
	}

	seen := make(map[string]bool)
	var columns []string
	for _, rec := range records {
		for _, k := range rec.Attributes.SortedKeys() {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)

	// Don't uppercase the header values.
	t.Style().Format.Header = text.FormatDefault

	header := table.Row{"id"}
	for _, c := range columns {
		header = append(header, c)
	}
	t.AppendHeader(header)

	for _, rec := range records {
		row := table.Row{rec.ID}
		for _, c := range columns {
			v, ok := rec.Attributes[c]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, ir.String(v))
		}
		t.AppendRow(row)
	}
	t.Render()
}

// ComputeOptions holds flags for the compute command.
type ComputeOptions struct {
	*RootOptions
	Set []string
}

// ComputeResult is the JSON payload of compute.
type ComputeResult struct {
	Derived  ir.Attributes    `json:"derived"`
	Failures []ComputeFailure `json:"failures,omitempty"`
}

// ComputeFailure is a formula that produced no value in a preview.
type ComputeFailure struct {
	FormulaID string `json:"formula_id"`
	Field     string `json:"field"`
	Kind      string `json:"kind,omitempty"`
	Error     string `json:"error"`
}

// NewComputeCommand creates the compute (preview) command.
func NewComputeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ComputeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compute --set key=value...",
		Short: "Preview derived fields without storing anything",
		Long: `Evaluate the active formulas against the given attributes and print the
derived fields. Formulas that cannot be evaluated yield null and are listed
with the reason.

Example:
  formulary compute --set width=2 --set height=3`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompute(opts, cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "attribute as key=value (repeatable)")

	return cmd
}

func runCompute(opts *ComputeOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	attrs, err := ParseAssignments(opts.Set)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid --set", err)
	}

	return withApp(opts.RootOptions, cmd, func(ctx context.Context, app *App) error {
		preview, err := app.Catalog.PreviewRecord(ctx, attrs)
		if err != nil {
			return registryFailure(formatter, err)
		}

		result := ComputeResult{Derived: preview.Derived, Failures: computeFailures(preview.Failures)}
		if formatter.Format == "json" {
			return formatter.Success(result)
		}

		writeAttributes(formatter.Writer, preview.Derived)
		for _, f := range result.Failures {
			yellow.Fprintf(formatter.Writer, "⚠ %s: %s\n", f.Field, f.Error)
		}
		return nil
	})
}

func computeFailures(errs []*engine.FieldError) []ComputeFailure {
	out := make([]ComputeFailure, 0, len(errs))
	for _, fe := range errs {
		out = append(out, ComputeFailure{
			FormulaID: fe.FormulaID,
			Field:     fe.FieldName,
			Kind:      string(fe.Kind()),
			Error:     fe.Err.Error(),
		})
	}
	return out
}

// ParseAssignments converts key=value pairs into attributes. Each value is
// decoded as a YAML scalar; values that are not scalars are kept as text.
func ParseAssignments(pairs []string) (ir.Attributes, error) {
	attrs := make(ir.Attributes, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q: expected key=value", pair)
		}
		attrs[key] = parseScalar(raw)
	}
	return attrs, nil
}

func parseScalar(raw string) ir.Value {
	var decoded any
	if err := yaml.Unmarshal([]byte(raw), &decoded); err != nil {
		return ir.Text(raw)
	}
	v, err := ir.ValueOf(decoded)
	if err != nil {
		return ir.Text(raw)
	}
	return v
}

// writeAttributes prints attributes one per line in key order.
func writeAttributes(w io.Writer, attrs ir.Attributes) {
	for _, k := range attrs.SortedKeys() {
		fmt.Fprintf(w, "  %s = %s\n", k, ir.String(attrs[k]))
	}
}
