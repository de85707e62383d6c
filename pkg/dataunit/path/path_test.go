package path_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/strata/pkg/dataunit"
	"github.com/cuemby/strata/pkg/dataunit/path"
)

func schemas(t *testing.T) (*dataunit.Schema, *dataunit.Schema) {
	t.Helper()
	item, err := dataunit.NewSchema("item",
		dataunit.Field(1, "sku", dataunit.TypeString).WithRequired(),
		dataunit.Field(2, "qty", dataunit.TypeInt32),
	)
	require.NoError(t, err)
	order, err := dataunit.NewSchema("order",
		dataunit.Field(1, "customer", dataunit.TypeString).WithRequired(),
		dataunit.Field(2, "items", dataunit.TypeUnit).WithNested(item).WithRepeated(),
		dataunit.Field(3, "notes", dataunit.TypeString).WithRepeated(),
	)
	require.NoError(t, err)
	return order, item
}

func TestParsePath(t *testing.T) {
	p, err := path.Parse("[items][2][sku]")
	require.NoError(t, err)
	require.Len(t, p, 3)
	assert.Equal(t, "items", p[0].Field)
	assert.True(t, p[1].IsIndex)
	assert.Equal(t, 2, p[1].Index)
	assert.Equal(t, "sku", p[2].Field)
}

func TestSetAutoCreatesNestedElements(t *testing.T) {
	order, _ := schemas(t)
	u := dataunit.New(order)
	require.NoError(t, u.Set(1, "acme"))

	p, err := path.Parse("[items][1][sku]")
	require.NoError(t, err)
	require.NoError(t, path.Set(u, p, "WIDGET-1"))

	items, ok := u.GetRepeatedUnit(2)
	require.True(t, ok)
	require.Len(t, items, 2) // index 0 auto-created as a default element

	sku, ok, err := path.Get(u, p)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "WIDGET-1", sku)

	sku0, ok, err := path.Get(u, mustParse(t, "[items][0][sku]"))
	require.NoError(t, err)
	assert.False(t, ok) // default-constructed element has sku unset
	assert.Nil(t, sku0)
}

func TestAppendToRepeatedScalar(t *testing.T) {
	order, _ := schemas(t)
	u := dataunit.New(order)
	require.NoError(t, u.Set(1, "acme"))

	p := mustParse(t, "[notes]")
	require.NoError(t, path.Append(u, p, "first"))
	require.NoError(t, path.Append(u, p, "second"))

	notes, ok, err := path.Get(u, p)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []any{"first", "second"}, notes)
}

func TestResizeAndClear(t *testing.T) {
	order, _ := schemas(t)
	u := dataunit.New(order)
	require.NoError(t, u.Set(1, "acme"))
	p := mustParse(t, "[notes]")

	require.NoError(t, path.Resize(u, p, 3))
	notes, _, err := path.Get(u, p)
	require.NoError(t, err)
	assert.Equal(t, []any{"", "", ""}, notes)

	require.NoError(t, path.Resize(u, p, 1))
	notes, _, err = path.Get(u, p)
	require.NoError(t, err)
	assert.Equal(t, []any{""}, notes)

	require.NoError(t, path.Clear(u, p))
	notes, ok, err := path.Get(u, p)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, notes)
}

func TestResizeNoopOnScalarField(t *testing.T) {
	order, _ := schemas(t)
	u := dataunit.New(order)
	require.NoError(t, u.Set(1, "acme"))
	p := mustParse(t, "[customer]")

	require.NoError(t, path.Resize(u, p, 5)) // no-op, not an error
	v, ok, err := path.Get(u, p)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "acme", v)
}

func mustParse(t *testing.T, s string) path.Path {
	t.Helper()
	p, err := path.Parse(s)
	require.NoError(t, err)
	return p
}
