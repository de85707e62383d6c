package wire_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/strata/pkg/dataunit"
	"github.com/cuemby/strata/pkg/dataunit/objectid"
	"github.com/cuemby/strata/pkg/dataunit/wire"
)

func addressSchema(t *testing.T) *dataunit.Schema {
	t.Helper()
	s, err := dataunit.NewSchema("address",
		dataunit.Field(1, "city", dataunit.TypeString).WithRequired(),
		dataunit.Field(2, "zip", dataunit.TypeString),
	)
	require.NoError(t, err)
	return s
}

func personSchema(t *testing.T, addr *dataunit.Schema) *dataunit.Schema {
	t.Helper()
	s, err := dataunit.NewSchema("person",
		dataunit.Field(1, "name", dataunit.TypeString).WithRequired(),
		dataunit.Field(2, "age", dataunit.TypeInt32),
		dataunit.Field(3, "id", dataunit.TypeObjectID),
		dataunit.Field(4, "address", dataunit.TypeUnit).WithNested(addr),
		dataunit.Field(5, "tags", dataunit.TypeString).WithRepeated(),
		dataunit.Field(6, "balance", dataunit.TypeFloat64),
		dataunit.Field(7, "born", dataunit.TypeDate),
	)
	require.NoError(t, err)
	return s
}

func TestSerializeParseRoundTrip(t *testing.T) {
	addr := addressSchema(t)
	person := personSchema(t, addr)

	a := dataunit.New(addr)
	require.NoError(t, a.Set(1, "Springfield"))
	require.NoError(t, a.Set(2, "00000"))

	id := objectid.NewAt(time.Unix(1500000000, 0))
	p := dataunit.New(person)
	require.NoError(t, p.Set(1, "Homer"))
	require.NoError(t, p.Set(2, int32(39)))
	require.NoError(t, p.Set(3, id))
	require.NoError(t, p.SetUnit(4, a))
	require.NoError(t, p.SetRepeated(5, []any{"dad", "driver"}))
	require.NoError(t, p.Set(6, 12.5))
	require.NoError(t, p.Set(7, dataunit.Date{Year: 1987, Month: 4, Day: 19}))

	data, err := wire.Serialize(p)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	back, err := wire.Parse(person, data)
	require.NoError(t, err)
	assert.True(t, p.Equal(back))

	name, ok := back.GetByName("name")
	require.True(t, ok)
	assert.Equal(t, "Homer", name)

	gotAddr, ok := back.GetUnit(4)
	require.True(t, ok)
	city, _ := gotAddr.GetByName("city")
	assert.Equal(t, "Springfield", city)

	tags, ok := back.GetRepeated(5)
	require.True(t, ok)
	assert.Equal(t, []any{"dad", "driver"}, tags)
}

func TestParseMissingRequiredFieldFails(t *testing.T) {
	addr := addressSchema(t)
	a := dataunit.New(addr)
	require.NoError(t, a.Set(2, "00000")) // city (required) left unset

	data, err := wire.Serialize(a)
	require.NoError(t, err)

	_, err = wire.Parse(addr, data)
	require.Error(t, err)
}

func TestParseSkipsUnknownFields(t *testing.T) {
	addr := addressSchema(t)
	a := dataunit.New(addr)
	require.NoError(t, a.Set(1, "Shelbyville"))
	require.NoError(t, a.Set(2, "12345"))
	data, err := wire.Serialize(a)
	require.NoError(t, err)

	// A narrower schema without the zip field should still parse fine,
	// skipping tag 2, and round-trip the known field.
	narrow, err := dataunit.NewSchema("address", dataunit.Field(1, "city", dataunit.TypeString).WithRequired())
	require.NoError(t, err)
	back, err := wire.Parse(narrow, data)
	require.NoError(t, err)
	city, _ := back.GetByName("city")
	assert.Equal(t, "Shelbyville", city)
}
