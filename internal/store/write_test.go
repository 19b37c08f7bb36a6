package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/formulary/internal/ir"
)

func TestInsert_GeneratesUUIDv7(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, newRecord("", map[string]any{"width": 2.0}))
	require.NoError(t, err)

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestInsert_KeepsProvidedID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, newRecord("actuator-1", nil))
	require.NoError(t, err)
	assert.Equal(t, "actuator-1", id)
}

func TestInsert_DuplicateIDFails(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, newRecord("r1", nil))
	require.NoError(t, err)

	_, err = s.Insert(ctx, newRecord("r1", nil))
	assert.Error(t, err)
}

func TestInsert_CustomIDGenerator(t *testing.T) {
	s := createTestStore(t, WithIDGenerator(&counterIDs{prefix: "rec"}))
	ctx := context.Background()

	first, err := s.Insert(ctx, newRecord("", nil))
	require.NoError(t, err)
	second, err := s.Insert(ctx, newRecord("", nil))
	require.NoError(t, err)

	assert.Equal(t, "rec-1", first)
	assert.Equal(t, "rec-2", second)
}

func TestUpdateFields_MergesAndKeepsOthers(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, newRecord("r1", map[string]any{"width": 2.0, "height": 3.0, "model": "X-100"}))
	require.NoError(t, err)

	err = s.UpdateFields(ctx, "r1", ir.Attributes{"area": ir.Number(6)})
	require.NoError(t, err)

	rec, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, ir.Attributes{
		"width":  ir.Number(2),
		"height": ir.Number(3),
		"model":  ir.Text("X-100"),
		"area":   ir.Number(6),
	}, rec.Attributes)
}

func TestUpdateFields_NullOverwritesStaleValue(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, newRecord("r1", map[string]any{"ratio": 4.0}))
	require.NoError(t, err)

	require.NoError(t, s.UpdateFields(ctx, "r1", ir.Attributes{"ratio": ir.Null{}}))

	rec, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	v, present := rec.Attributes["ratio"]
	assert.True(t, present, "explicit null must be kept")
	assert.True(t, ir.IsNull(v))
}

func TestUpdateFields_NotFound(t *testing.T) {
	s := createTestStore(t)

	err := s.UpdateFields(context.Background(), "missing", ir.Attributes{"a": ir.Number(1)})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateFields_ConcurrentWriters(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, err := s.Insert(ctx, newRecord(fmt.Sprintf("r%02d", i), map[string]any{"n": float64(i)}))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.UpdateFields(ctx, fmt.Sprintf("r%02d", i), ir.Attributes{"double": ir.Number(float64(2 * i))})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	rec, err := s.Get(ctx, "r07")
	require.NoError(t, err)
	assert.Equal(t, ir.Number(14), rec.Attributes["double"])
}

func TestDelete(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, newRecord("r1", nil))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "r1"))
	_, err = s.Get(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.Delete(ctx, "r1"), ErrNotFound)
}

func TestInsertFormula_AssignsIDAndSeq(t *testing.T) {
	s := createTestStore(t, WithIDGenerator(&counterIDs{prefix: "f"}))
	ctx := context.Background()

	area, err := s.InsertFormula(ctx, ir.FormulaDefinition{FieldName: "area", Expression: "width * height", IsActive: true})
	require.NoError(t, err)
	volume, err := s.InsertFormula(ctx, ir.FormulaDefinition{FieldName: "volume", Expression: "area * depth", Units: "m3", IsActive: true})
	require.NoError(t, err)

	assert.Equal(t, "f-1", area.ID)
	assert.Equal(t, "f-2", volume.ID)
	assert.Less(t, area.Seq, volume.Seq)

	got, err := s.GetFormula(ctx, volume.ID)
	require.NoError(t, err)
	assert.Equal(t, volume, got)
}

func TestUpdateFormulaExpression(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	f, err := s.InsertFormula(ctx, ir.FormulaDefinition{FieldName: "area", Expression: "width * height", IsActive: true})
	require.NoError(t, err)

	require.NoError(t, s.UpdateFormulaExpression(ctx, f.ID, "width * height / 2"))

	got, err := s.GetFormula(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "width * height / 2", got.Expression)
	assert.Equal(t, f.Seq, got.Seq, "update must not change order")

	assert.ErrorIs(t, s.UpdateFormulaExpression(ctx, "missing", "1"), ErrNotFound)
}

func TestSetFormulaActive(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	f, err := s.InsertFormula(ctx, ir.FormulaDefinition{FieldName: "area", Expression: "1", IsActive: true})
	require.NoError(t, err)

	require.NoError(t, s.SetFormulaActive(ctx, f.ID, false))
	got, err := s.GetFormula(ctx, f.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	assert.ErrorIs(t, s.SetFormulaActive(ctx, "missing", true), ErrNotFound)
}

func TestDeleteFormula(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	f, err := s.InsertFormula(ctx, ir.FormulaDefinition{FieldName: "area", Expression: "1", IsActive: true})
	require.NoError(t, err)

	require.NoError(t, s.DeleteFormula(ctx, f.ID))
	_, err = s.GetFormula(ctx, f.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteFormula(ctx, f.ID), ErrNotFound)
}
