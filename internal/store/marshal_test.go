package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/formulary/internal/ir"
)

func TestMarshalAttributes_Canonical(t *testing.T) {
	got, err := marshalAttributes(ir.Attributes{
		"width":  ir.Number(2),
		"area":   ir.Null{},
		"model":  ir.Text("<X>"),
		"active": ir.Bool(true),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"active":true,"area":null,"model":"<X>","width":2}`, got)
}

func TestMarshalAttributes_Nil(t *testing.T) {
	got, err := marshalAttributes(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", got)
}

func TestUnmarshalAttributes(t *testing.T) {
	got, err := unmarshalAttributes(`{"area":null,"width":2.5,"ok":false}`)
	require.NoError(t, err)
	assert.Equal(t, ir.Attributes{
		"area":  ir.Null{},
		"width": ir.Number(2.5),
		"ok":    ir.Bool(false),
	}, got)

	empty, err := unmarshalAttributes("")
	require.NoError(t, err)
	assert.Equal(t, ir.Attributes{}, empty)
}

func TestUnmarshalAttributes_RejectsNested(t *testing.T) {
	_, err := unmarshalAttributes(`{"dims":[1,2]}`)
	assert.Error(t, err)
}
