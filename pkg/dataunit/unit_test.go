package dataunit_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/strata/pkg/dataunit"
	"github.com/cuemby/strata/pkg/dataunit/objectid"
	"github.com/cuemby/strata/pkg/dataunit/wire"
	"github.com/cuemby/strata/pkg/serr"
)

func widgetSchema(t *testing.T) *dataunit.Schema {
	t.Helper()
	s, err := dataunit.NewSchema("widget",
		dataunit.Field(1, "name", dataunit.TypeString).WithRequired(),
		dataunit.Field(2, "count", dataunit.TypeInt32),
		dataunit.Field(3, "tags", dataunit.TypeString).WithRepeated().WithRequired(),
	)
	require.NoError(t, err)
	return s
}

func TestValidateReportsFirstMissingRequiredField(t *testing.T) {
	schema := widgetSchema(t)
	u := dataunit.New(schema)

	err := u.Validate()
	require.Error(t, err)
	require.Equal(t, serr.FieldRequiredMissing, serr.Of(err))

	require.NoError(t, u.SetByName("name", "gadget"))
	// "name" is now present but "tags" (required + repeated) is still
	// empty, so Validate must still fail on it.
	err = u.Validate()
	require.Error(t, err)
	require.Equal(t, serr.FieldRequiredMissing, serr.Of(err))

	require.NoError(t, u.SetRepeated(3, []any{"x"}))
	require.NoError(t, u.Validate())
}

func TestValidatePassesOnDefaultForMissingScalar(t *testing.T) {
	schema, err := dataunit.NewSchema("configured",
		dataunit.Field(1, "mode", dataunit.TypeString).WithRequired().WithDefault("auto"),
	)
	require.NoError(t, err)

	u := dataunit.New(schema)
	require.NoError(t, u.Validate())

	v, ok := u.GetByName("mode")
	require.True(t, ok)
	require.Equal(t, "auto", v)
}

func TestNewSchemaRejectsDefaultOnRepeatedField(t *testing.T) {
	_, err := dataunit.NewSchema("bad",
		dataunit.Field(1, "tags", dataunit.TypeString).WithRepeated().WithDefault("x"),
	)
	require.Error(t, err)
	require.Equal(t, serr.ValidationFailed, serr.Of(err))
}

func TestNewSchemaRejectsDefaultOnNestedUnitField(t *testing.T) {
	inner, err := dataunit.NewSchema("inner", dataunit.Field(1, "v", dataunit.TypeInt32))
	require.NoError(t, err)

	_, err = dataunit.NewSchema("outer",
		dataunit.Field(1, "child", dataunit.TypeUnit).WithNested(inner).WithDefault(42),
	)
	require.Error(t, err)
	require.Equal(t, serr.ValidationFailed, serr.Of(err))
}

func TestWireRoundTripIsLossless(t *testing.T) {
	addr, err := dataunit.NewSchema("address",
		dataunit.Field(1, "city", dataunit.TypeString).WithRequired(),
	)
	require.NoError(t, err)

	schema, err := dataunit.NewSchema("account",
		dataunit.Field(1, "name", dataunit.TypeString).WithRequired(),
		dataunit.Field(2, "balance", dataunit.TypeInt64),
		dataunit.Field(3, "home", dataunit.TypeUnit).WithNested(addr),
		dataunit.Field(4, "nicknames", dataunit.TypeString).WithRepeated(),
		dataunit.Field(5, "ref", dataunit.TypeObjectID),
	)
	require.NoError(t, err)

	home := dataunit.New(addr)
	require.NoError(t, home.SetByName("city", "springfield"))

	u := dataunit.New(schema)
	require.NoError(t, u.SetByName("name", "ada"))
	require.NoError(t, u.SetByName("balance", int64(500)))
	require.NoError(t, u.SetUnit(3, home))
	require.NoError(t, u.SetRepeated(4, []any{"ace", "lovelace"}))
	require.NoError(t, u.SetByName("ref", objectid.New()))

	data, err := wire.Serialize(u)
	require.NoError(t, err)

	got, err := wire.Parse(schema, data)
	require.NoError(t, err)

	require.True(t, u.Equal(got), "round-tripped unit diverged from the original")
}
