package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/formulary/internal/ir"
)

func withID(id string, f ir.FormulaDefinition) ir.FormulaDefinition {
	f.ID = id
	return f
}

func TestAnalyzeDependenciesEmpty(t *testing.T) {
	report := AnalyzeDependencies(nil)
	assert.Empty(t, report.Cycles)
	assert.Empty(t, report.ForwardReferences)
	assert.Nil(t, report.SuggestedOrder)
	assert.False(t, report.HasWarnings())
}

func TestAnalyzeDependenciesChainInOrder(t *testing.T) {
	report := AnalyzeDependencies([]ir.FormulaDefinition{
		def("area", "width * height"),
		def("volume", "area * depth"),
		def("mass", "volume * density"),
	})
	assert.False(t, report.HasWarnings())
	assert.Nil(t, report.SuggestedOrder)
}

func TestAnalyzeDependenciesTwoNodeCycle(t *testing.T) {
	report := AnalyzeDependencies([]ir.FormulaDefinition{
		def("a", "b + 1"),
		def("b", "a + 1"),
	})

	require.Len(t, report.Cycles, 1)
	assert.Equal(t, []string{"a", "b", "a"}, report.Cycles[0].Path)
	assert.Equal(t, "warning", report.Cycles[0].Level)
	assert.Contains(t, report.Cycles[0].Message, "a → b → a")
	assert.Nil(t, report.SuggestedOrder)
}

func TestAnalyzeDependenciesSelfLoop(t *testing.T) {
	report := AnalyzeDependencies([]ir.FormulaDefinition{
		def("x", "x * 2"),
	})

	require.Len(t, report.Cycles, 1)
	assert.Equal(t, []string{"x", "x"}, report.Cycles[0].Path)
	assert.Contains(t, report.Cycles[0].Message, "own stored value")
	assert.Empty(t, report.ForwardReferences)
}

func TestAnalyzeDependenciesThreeNodeCycle(t *testing.T) {
	report := AnalyzeDependencies([]ir.FormulaDefinition{
		def("a", "c * 2"),
		def("b", "a + 1"),
		def("c", "b - 1"),
		def("d", "width"),
	})

	require.Len(t, report.Cycles, 1)
	path := report.Cycles[0].Path
	require.Len(t, path, 4)
	assert.Equal(t, path[0], path[3])
	assert.ElementsMatch(t, []string{"a", "b", "c"}, path[:3])
}

func TestAnalyzeDependenciesForwardReference(t *testing.T) {
	volume := withID("f1", def("volume", "area * depth"))
	area := withID("f2", def("area", "width * height"))

	report := AnalyzeDependencies([]ir.FormulaDefinition{volume, area})

	assert.Empty(t, report.Cycles)
	require.Len(t, report.ForwardReferences, 1)
	ref := report.ForwardReferences[0]
	assert.Equal(t, "f1", ref.FormulaID)
	assert.Equal(t, "volume", ref.FieldName)
	assert.Equal(t, "area", ref.Reads)
	assert.Equal(t, "f2", ref.ProducedBy)
	assert.Contains(t, ref.Message, "stored value")

	require.Len(t, report.SuggestedOrder, 2)
	assert.Equal(t, "f2", report.SuggestedOrder[0].ID)
	assert.Equal(t, "f1", report.SuggestedOrder[1].ID)
}

func TestAnalyzeDependenciesEarlierProducerSatisfiesRead(t *testing.T) {
	report := AnalyzeDependencies([]ir.FormulaDefinition{
		def("area", "width * height"),
		def("volume", "area * depth"),
		def("area", "w * h"),
	})
	assert.Empty(t, report.ForwardReferences)
}

func TestAnalyzeDependenciesSkipsInactiveAndMalformed(t *testing.T) {
	inactive := def("b", "a + 1")
	inactive.IsActive = false

	report := AnalyzeDependencies([]ir.FormulaDefinition{
		def("a", "b + 1"),
		inactive,
		def("c", "1 +"),
	})
	assert.False(t, report.HasWarnings())
}

func TestAnalyzeDependenciesSuggestedOrderKeepsRegistryOrderForIndependents(t *testing.T) {
	report := AnalyzeDependencies([]ir.FormulaDefinition{
		withID("f1", def("z", "y + 1")),
		withID("f2", def("independent", "width")),
		withID("f3", def("y", "width * 2")),
	})

	require.Len(t, report.ForwardReferences, 1)
	ids := make([]string, 0, len(report.SuggestedOrder))
	for _, f := range report.SuggestedOrder {
		ids = append(ids, f.ID)
	}
	assert.Equal(t, []string{"f2", "f3", "f1"}, ids)
}
