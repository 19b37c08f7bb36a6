package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/formulary/internal/ir"
)

const chainedFormulas = `
package formulas

formula: {
	area: {
		expression: "width * height"
		units:      "m2"
	}
	volume: expression: "area * depth"
}
`

func writeCUE(t *testing.T, name, src string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

func listFormulas(t *testing.T, db string, extra ...string) []ir.FormulaDefinition {
	t.Helper()
	args := append([]string{"formula", "list", "--format", "json", "--db", db}, extra...)
	out, err := runCLI(t, args...)
	require.NoError(t, err)

	var formulas []ir.FormulaDefinition
	resp := decodeData(t, out, &formulas)
	require.Equal(t, "ok", resp.Status)
	return formulas
}

func getRecord(t *testing.T, db, id string) ir.Record {
	t.Helper()
	out, err := runCLI(t, "record", "get", id, "--format", "json", "--db", db)
	require.NoError(t, err)

	var rec ir.Record
	decodeData(t, out, &rec)
	return rec
}

func TestFormulaListEmpty(t *testing.T) {
	db := tempDB(t)

	out, err := runCLI(t, "formula", "list", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "No formulas defined.")

	assert.Empty(t, listFormulas(t, db))
}

func TestFormulaAddAndList(t *testing.T) {
	db := tempDB(t)

	out, err := runCLI(t, "formula", "add", "area", "width * height", "--units", "m2", "--id", "f-area", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Added formula f-area (area)")
	assert.Contains(t, out, "all 0 records recomputed")

	formulas := listFormulas(t, db)
	require.Len(t, formulas, 1)
	assert.Equal(t, "f-area", formulas[0].ID)
	assert.Equal(t, "area", formulas[0].FieldName)
	assert.Equal(t, "width * height", formulas[0].Expression)
	assert.Equal(t, "m2", formulas[0].Units)
	assert.True(t, formulas[0].IsActive)

	out, err = runCLI(t, "formula", "list", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "f-area")
	assert.Contains(t, out, "width * height")
}

func TestFormulaAddInactive(t *testing.T) {
	db := tempDB(t)

	_, err := runCLI(t, "formula", "add", "area", "width * height", "--inactive", "--db", db)
	require.NoError(t, err)

	assert.Len(t, listFormulas(t, db), 1)
	assert.Empty(t, listFormulas(t, db, "--active"))
}

func TestFormulaAddInvalidField(t *testing.T) {
	out, err := runCLI(t, "formula", "add", "1bad", "x + 1", "--db", tempDB(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "INVALID_INPUT")
}

func TestFormulaUpdateRecomputesRecords(t *testing.T) {
	db := tempDB(t)

	_, err := runCLI(t, "record", "add", "--id", "r1", "--set", "width=2", "--set", "height=3", "--db", db)
	require.NoError(t, err)

	_, err = runCLI(t, "formula", "add", "area", "width * height", "--id", "f-area", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, ir.Number(6), getRecord(t, db, "r1").Attributes["area"])

	out, err := runCLI(t, "formula", "update", "f-area", "width * height * 2", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Updated formula f-area")
	assert.Contains(t, out, "all 1 records recomputed")
	assert.Equal(t, ir.Number(12), getRecord(t, db, "r1").Attributes["area"])
}

func TestFormulaUpdateUnknown(t *testing.T) {
	out, err := runCLI(t, "formula", "update", "missing", "1", "--db", tempDB(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "NOT_FOUND")
}

func TestFormulaEnableDisable(t *testing.T) {
	db := tempDB(t)

	_, err := runCLI(t, "formula", "add", "area", "width * height", "--id", "f-area", "--db", db)
	require.NoError(t, err)

	out, err := runCLI(t, "formula", "disable", "f-area", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Formula f-area is now inactive")
	assert.Contains(t, out, "records recomputed")

	out, err = runCLI(t, "formula", "disable", "f-area", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Formula f-area is already inactive")
	assert.NotContains(t, out, "recomputed")

	out, err = runCLI(t, "formula", "enable", "f-area", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Formula f-area is now active")
}

func TestFormulaDeleteKeepsDerivedValues(t *testing.T) {
	db := tempDB(t)

	_, err := runCLI(t, "record", "add", "--id", "r1", "--set", "width=2", "--set", "height=3", "--db", db)
	require.NoError(t, err)
	_, err = runCLI(t, "formula", "add", "area", "width * height", "--id", "f-area", "--db", db)
	require.NoError(t, err)

	out, err := runCLI(t, "formula", "delete", "f-area", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted formula f-area")

	assert.Empty(t, listFormulas(t, db))
	assert.Equal(t, ir.Number(6), getRecord(t, db, "r1").Attributes["area"])

	_, err = runCLI(t, "formula", "delete", "f-area", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestFormulaImport(t *testing.T) {
	db := tempDB(t)
	path := writeCUE(t, "formulas.cue", chainedFormulas)

	_, err := runCLI(t, "record", "add", "--id", "r1", "--set", "width=2", "--set", "height=3", "--set", "depth=4", "--db", db)
	require.NoError(t, err)

	out, err := runCLI(t, "formula", "import", path, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 formula(s)")
	assert.Contains(t, out, "all 1 records recomputed")

	formulas := listFormulas(t, db)
	require.Len(t, formulas, 2)
	assert.Equal(t, []string{"area", "volume"}, ir.DerivedFields(formulas))
	assert.Equal(t, "m2", formulas[0].Units)

	rec := getRecord(t, db, "r1")
	assert.Equal(t, ir.Number(6), rec.Attributes["area"])
	assert.Equal(t, ir.Number(24), rec.Attributes["volume"])
}

func TestFormulaImportRejectsInvalid(t *testing.T) {
	db := tempDB(t)
	path := writeCUE(t, "bad.cue", `
package formulas

formula: {
	area: expression: "width * height"
	broken: expression: "width +"
}
`)

	out, err := runCLI(t, "formula", "import", path, "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "E204")

	assert.Empty(t, listFormulas(t, db))
}

func TestFormulaImportMissingPath(t *testing.T) {
	out, err := runCLI(t, "formula", "import", "/nonexistent/formulas.cue", "--db", tempDB(t))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeNotFound)
}
