package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/table"
	"github.com/jedib0t/go-pretty/text"
	"github.com/spf13/cobra"

	"github.com/roach88/formulary/internal/compiler"
	"github.com/roach88/formulary/internal/ir"
	"github.com/roach88/formulary/internal/registry"
)

// FormulaAddOptions holds flags for the formula add command.
type FormulaAddOptions struct {
	*RootOptions
	Units    string
	ID       string
	Inactive bool
}

// NewFormulaCommand creates the formula command group.
func NewFormulaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "formula",
		Short: "Manage derived-attribute formulas",
		Long: `Manage the formulas that compute derived attributes.

Adding or updating a formula recomputes every record. Enabling or disabling
recomputes only when the active set changes. Deleting a formula leaves the
values it already wrote on the records.`,
	}

	cmd.AddCommand(newFormulaListCommand(rootOpts))
	cmd.AddCommand(newFormulaAddCommand(rootOpts))
	cmd.AddCommand(newFormulaUpdateCommand(rootOpts))
	cmd.AddCommand(newFormulaDeleteCommand(rootOpts))
	cmd.AddCommand(newFormulaSetActiveCommand(rootOpts, true))
	cmd.AddCommand(newFormulaSetActiveCommand(rootOpts, false))
	cmd.AddCommand(newFormulaImportCommand(rootOpts))
	cmd.AddCommand(NewCheckCommand(rootOpts))

	return cmd
}

func newFormulaListCommand(rootOpts *RootOptions) *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List formulas in evaluation order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App) error {
				reg := app.Catalog.Registry()
				list := reg.List
				if activeOnly {
					list = reg.ListActive
				}
				formulas, err := list(ctx)
				if err != nil {
					return registryFailure(formatter, err)
				}

				if formatter.Format == "json" {
					if formulas == nil {
						formulas = []ir.FormulaDefinition{}
					}
					return formatter.Success(formulas)
				}
				writeFormulaTable(formatter.Writer, formulas)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&activeOnly, "active", false, "only list active formulas")

	return cmd
}

// writeFormulaTable renders formulas in registry order.
func writeFormulaTable(w io.Writer, formulas []ir.FormulaDefinition) {
	if len(formulas) == 0 {
		fmt.Fprintln(w, "No formulas defined.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)

	// Don't uppercase the header values.
	t.Style().Format.Header = text.FormatDefault

	t.AppendHeader(table.Row{"#", "id", "field", "expression", "units", "active"})
	for i, f := range formulas {
		t.AppendRow(table.Row{i + 1, f.ID, f.FieldName, f.Expression, f.Units, f.IsActive})
	}
	t.Render()
}

func newFormulaAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FormulaAddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <field> <expression>",
		Short: "Add a formula and recompute every record",
		Long: `Add a formula that computes <field> from other attributes.

The new formula runs after every existing one. Every record is recomputed.

Examples:
  formulary formula add area "width * height" --units m2
  formulary formula add rated_power_kw "2 * pi * rated_speed_rpm / 60 * rated_torque_nm / 1000"`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFormulaAdd(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Units, "units", "", "display units of the derived field")
	cmd.Flags().StringVar(&opts.ID, "id", "", "formula id (generated when empty)")
	cmd.Flags().BoolVar(&opts.Inactive, "inactive", false, "add the formula disabled")

	return cmd
}

func runFormulaAdd(opts *FormulaAddOptions, field, expression string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	return withApp(opts.RootOptions, cmd, func(ctx context.Context, app *App) error {
		addOpts := []registry.AddOption{registry.WithUnits(opts.Units), registry.WithActive(!opts.Inactive)}
		if opts.ID != "" {
			addOpts = append(addOpts, registry.WithID(opts.ID))
		}

		id, report, err := app.Catalog.AddFormula(ctx, field, expression, addOpts...)
		if err != nil {
			var regErr *registry.RegistryError
			if id == "" || errors.As(err, &regErr) {
				return registryFailure(formatter, err)
			}
			return WrapExitError(ExitFailure, fmt.Sprintf("formula %s added but recompute failed", id), err)
		}

		formatter.VerboseLog("formula %s added for field %s", id, field)
		if formatter.Format != "json" {
			fmt.Fprintf(formatter.Writer, "Added formula %s (%s)\n", id, field)
		}
		return formatter.Report(report)
	})
}

func newFormulaUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "update <id> <expression>",
		Short: "Replace a formula's expression and recompute every record",
		Long: `Replace the expression of formula <id> and recompute every record.

This is the administrator's "save" action. Records that fail to update keep
their previous values and are listed so the recompute can be retried.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App) error {
				report, err := app.Catalog.SaveFormula(ctx, args[0], args[1])
				if err != nil {
					var regErr *registry.RegistryError
					if errors.As(err, &regErr) {
						return registryFailure(formatter, err)
					}
					return WrapExitError(ExitFailure, "recompute failed", err)
				}
				if formatter.Format != "json" {
					fmt.Fprintf(formatter.Writer, "Updated formula %s\n", args[0])
				}
				return formatter.Report(report)
			})
		},
	}
}

func newFormulaDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a formula",
		Long: `Delete formula <id>.

Values the formula already wrote stay on the records; no recompute runs.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App) error {
				if err := app.Catalog.DeleteFormula(ctx, args[0]); err != nil {
					return registryFailure(formatter, err)
				}
				if formatter.Format == "json" {
					return formatter.Success(map[string]string{"deleted": args[0]})
				}
				fmt.Fprintf(formatter.Writer, "Deleted formula %s\n", args[0])
				return nil
			})
		},
	}
}

func newFormulaSetActiveCommand(rootOpts *RootOptions, active bool) *cobra.Command {
	use, short, state := "disable <id>", "Disable a formula", "inactive"
	if active {
		use, short, state = "enable <id>", "Enable a formula", "active"
	}

	return &cobra.Command{
		Use:           use,
		Short:         short,
		Long:          short + ". Records are recomputed only when the active set changes.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			return withApp(rootOpts, cmd, func(ctx context.Context, app *App) error {
				report, err := app.Catalog.SetFormulaActive(ctx, args[0], active)
				if err != nil {
					var regErr *registry.RegistryError
					if errors.As(err, &regErr) {
						return registryFailure(formatter, err)
					}
					return WrapExitError(ExitFailure, "recompute failed", err)
				}
				if report == nil {
					if formatter.Format == "json" {
						return formatter.Success(map[string]any{"id": args[0], "changed": false})
					}
					fmt.Fprintf(formatter.Writer, "Formula %s is already %s\n", args[0], state)
					return nil
				}
				if formatter.Format != "json" {
					fmt.Fprintf(formatter.Writer, "Formula %s is now %s\n", args[0], state)
				}
				return formatter.Report(*report)
			})
		},
	}
}

func newFormulaImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <path>",
		Short: "Add formulas declared in CUE and recompute once",
		Long: `Add the formulas declared in a .cue file or a directory of .cue files.

Formulas are validated first; nothing is added if any declaration is invalid.
They are appended in declaration order (or their explicit order), then every
record is recomputed once.

Example file:
  formula: area: {
      expression: "width * height"
      units:      "m2"
  }`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFormulaImport(rootOpts, args[0], cmd)
		},
	}
}

// ImportResult is the JSON payload of formula import.
type ImportResult struct {
	Added  []string           `json:"added"`
	Report ir.RecomputeReport `json:"report"`
}

func runFormulaImport(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	loadResult, loadErrors := LoadFormulas(path, LoadModeCollectAll)
	if len(loadErrors) > 0 {
		var loadErr *LoadError
		if !errors.As(loadErrors[0], &loadErr) {
			loadErr = &LoadError{Code: ErrCodeGeneric, Message: loadErrors[0].Error()}
		}
		_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
		if loadResult == nil {
			return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", loadErr.Code, loadErr.Message))
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d formula declaration(s) failed to compile", len(loadErrors)))
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, path)

	defs := make([]ir.FormulaDefinition, len(loadResult.Formulas))
	for i, spec := range loadResult.Formulas {
		defs[i] = spec.Definition()
	}
	if problems := compiler.Validate(defs); compiler.HasErrors(problems) {
		return outputValidationErrors(formatter, problems)
	}

	return withApp(opts, cmd, func(ctx context.Context, app *App) error {
		reg := app.Catalog.Registry()
		added := make([]string, 0, len(defs))
		for _, def := range defs {
			id, err := reg.Add(ctx, def.FieldName, def.Expression,
				registry.WithUnits(def.Units),
				registry.WithActive(def.IsActive),
			)
			if err != nil {
				if len(added) > 0 {
					fmt.Fprintf(formatter.GetErrWriter(), "%d formula(s) were added before the failure; run recompute after fixing it\n", len(added))
				}
				return registryFailure(formatter, err)
			}
			formatter.VerboseLog("added formula %s (%s)", id, def.FieldName)
			added = append(added, id)
		}

		report, err := app.Catalog.Recompute(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "recompute failed", err)
		}

		if formatter.Format == "json" {
			if err := formatter.Success(ImportResult{Added: added, Report: report}); err != nil {
				return err
			}
			if !report.OK() {
				return NewExitError(ExitFailure, "some records failed to recompute")
			}
			return nil
		}

		fmt.Fprintf(formatter.Writer, "Imported %d formula(s)\n", len(added))
		return formatter.Report(report)
	})
}
