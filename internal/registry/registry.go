package registry

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/formulary/internal/expr"
	"github.com/roach88/formulary/internal/ir"
)

// FormulaStore persists formula definitions.
//
// Implementations assign Seq on insert and return formulas ordered by Seq.
// Unknown ids must yield an error matching ir.ErrNotFound.
type FormulaStore interface {
	InsertFormula(ctx context.Context, f ir.FormulaDefinition) (ir.FormulaDefinition, error)
	GetFormula(ctx context.Context, id string) (ir.FormulaDefinition, error)
	ListFormulas(ctx context.Context, activeOnly bool) ([]ir.FormulaDefinition, error)
	UpdateFormulaExpression(ctx context.Context, id, expression string) error
	SetFormulaActive(ctx context.Context, id string, active bool) error
	DeleteFormula(ctx context.Context, id string) error
}

// Registry manages formula definitions on top of a FormulaStore.
//
// Thread-safety: Registry holds no mutable state of its own; concurrency
// guarantees are those of the store.
type Registry struct {
	store          FormulaStore
	duplicateCheck bool
	logger         *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithDuplicateCheck rejects adding or enabling a formula whose field name
// is already produced by another active formula.
func WithDuplicateCheck() Option {
	return func(r *Registry) {
		r.duplicateCheck = true
	}
}

// WithLogger sets the logger for registry changes. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// New creates a Registry backed by store.
func New(store FormulaStore, opts ...Option) *Registry {
	r := &Registry{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddOption customizes a formula created by Add.
type AddOption func(*ir.FormulaDefinition)

// WithUnits attaches a display unit (e.g. "kW") to the formula.
func WithUnits(units string) AddOption {
	return func(f *ir.FormulaDefinition) {
		f.Units = strings.TrimSpace(units)
	}
}

// WithActive sets the initial active flag. New formulas are active by default.
func WithActive(active bool) AddOption {
	return func(f *ir.FormulaDefinition) {
		f.IsActive = active
	}
}

// WithID uses id instead of a store-generated identifier.
func WithID(id string) AddOption {
	return func(f *ir.FormulaDefinition) {
		f.ID = id
	}
}

// ListActive returns the active formulas in creation order.
// This order is the evaluation order of the computation pipeline.
func (r *Registry) ListActive(ctx context.Context) ([]ir.FormulaDefinition, error) {
	formulas, err := r.store.ListFormulas(ctx, true)
	if err != nil {
		return nil, storeError("list active formulas", "", err)
	}
	return formulas, nil
}

// List returns every formula, active or not, in creation order.
func (r *Registry) List(ctx context.Context) ([]ir.FormulaDefinition, error) {
	formulas, err := r.store.ListFormulas(ctx, false)
	if err != nil {
		return nil, storeError("list formulas", "", err)
	}
	return formulas, nil
}

// Get returns the formula with the given id.
func (r *Registry) Get(ctx context.Context, id string) (ir.FormulaDefinition, error) {
	f, err := r.store.GetFormula(ctx, id)
	if err != nil {
		return ir.FormulaDefinition{}, storeError("get formula", id, err)
	}
	return f, nil
}

// Add creates a new formula and returns its id.
//
// The field name is trimmed and NFC-normalized and must be an identifier
// an expression can reference. The expression must not be blank; it is
// stored as given and not parsed here.
func (r *Registry) Add(ctx context.Context, fieldName, expression string, opts ...AddOption) (string, error) {
	field, err := NormalizeFieldName(fieldName)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(expression) == "" {
		return "", invalidInput("expression for %q is empty", field)
	}

	def := ir.FormulaDefinition{
		FieldName:  field,
		Expression: expression,
		IsActive:   true,
	}
	for _, opt := range opts {
		opt(&def)
	}

	if def.IsActive {
		if err := r.checkDuplicate(ctx, field, ""); err != nil {
			return "", err
		}
	}

	created, err := r.store.InsertFormula(ctx, def)
	if err != nil {
		return "", storeError("add formula", def.ID, err)
	}

	r.logger.Info("formula added",
		"id", created.ID,
		"field", created.FieldName,
		"expression", created.Expression,
		"active", created.IsActive,
	)
	return created.ID, nil
}

// Update replaces the expression of formula id. Field name, order, and
// active flag are unchanged.
func (r *Registry) Update(ctx context.Context, id, expression string) error {
	if strings.TrimSpace(expression) == "" {
		return &RegistryError{Code: CodeInvalidInput, Message: "expression is empty", FormulaID: id}
	}
	if err := r.store.UpdateFormulaExpression(ctx, id, expression); err != nil {
		return storeError("update formula", id, err)
	}

	r.logger.Info("formula updated", "id", id, "expression", expression)
	return nil
}

// Delete removes formula id. Values it previously wrote to records are not touched.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.store.DeleteFormula(ctx, id); err != nil {
		return storeError("delete formula", id, err)
	}

	r.logger.Info("formula deleted", "id", id)
	return nil
}

// SetActive enables or disables formula id and reports whether the active
// set changed. Setting the current value again is a no-op.
func (r *Registry) SetActive(ctx context.Context, id string, active bool) (bool, error) {
	current, err := r.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if current.IsActive == active {
		return false, nil
	}

	if active {
		if err := r.checkDuplicate(ctx, current.FieldName, id); err != nil {
			return false, err
		}
	}

	if err := r.store.SetFormulaActive(ctx, id, active); err != nil {
		return false, storeError("set formula active", id, err)
	}

	r.logger.Info("formula active flag changed", "id", id, "field", current.FieldName, "active", active)
	return true, nil
}

// checkDuplicate rejects field when another active formula (other than
// exceptID) already produces it. No-op unless WithDuplicateCheck is set.
func (r *Registry) checkDuplicate(ctx context.Context, field, exceptID string) error {
	if !r.duplicateCheck {
		return nil
	}
	active, err := r.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, f := range active {
		if f.FieldName == field && f.ID != exceptID {
			return &RegistryError{
				Code:      CodeDuplicate,
				Message:   "field " + field + " is already produced by an active formula",
				FormulaID: f.ID,
			}
		}
	}
	return nil
}

// NormalizeFieldName trims and NFC-normalizes name and checks that an
// expression can reference it.
func NormalizeFieldName(name string) (string, error) {
	field := norm.NFC.String(strings.TrimSpace(name))
	if field == "" {
		return "", invalidInput("field name is empty")
	}
	if !expr.IsIdentifier(field) {
		return "", invalidInput("field name %q is not an identifier", field)
	}
	return field, nil
}

// storeError wraps a store failure, mapping ir.ErrNotFound to CodeNotFound.
func storeError(op, id string, err error) error {
	if errors.Is(err, ir.ErrNotFound) {
		return &RegistryError{Code: CodeNotFound, Message: op + ": formula not found", FormulaID: id, Err: err}
	}
	return &RegistryError{Code: CodeStore, Message: op, FormulaID: id, Err: err}
}
