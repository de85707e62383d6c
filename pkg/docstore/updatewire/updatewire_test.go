package updatewire_test

import (
	"testing"

	"github.com/cuemby/strata/pkg/dataunit"
	"github.com/cuemby/strata/pkg/docstore/updatewire"
	"github.com/stretchr/testify/require"
)

func itemSchema(t *testing.T) *dataunit.Schema {
	t.Helper()
	s, err := dataunit.NewSchema("item",
		dataunit.Field(1, "x", dataunit.TypeInt32),
		dataunit.Field(2, "y", dataunit.TypeInt32),
		dataunit.Field(3, "tags", dataunit.TypeString).WithRepeated(),
	)
	require.NoError(t, err)
	return s
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	req := updatewire.Request{
		{Path: "[x]", Kind: updatewire.KindSet, Type: dataunit.TypeInt32, Value: int32(2)},
		{Path: "[y]", Kind: updatewire.KindSet, Type: dataunit.TypeInt32, Value: int32(5)},
		{Path: "[tags]", Kind: updatewire.KindAppend, Type: dataunit.TypeString, Value: "new"},
	}
	data, err := updatewire.Encode(req)
	require.NoError(t, err)

	back, err := updatewire.Decode(data)
	require.NoError(t, err)
	require.Len(t, back, 3)
	require.Equal(t, int32(2), back[0].Value)
	require.Equal(t, "new", back[2].Value)
}

func TestApplyCoalescesOntoStagedUnit(t *testing.T) {
	schema := itemSchema(t)
	u := dataunit.New(schema)
	require.NoError(t, u.SetByName("x", int32(1)))

	req := updatewire.Request{
		{Path: "[x]", Kind: updatewire.KindSet, Value: int32(2)},
		{Path: "[y]", Kind: updatewire.KindSet, Value: int32(5)},
	}
	require.NoError(t, req.Apply(u))

	x, _ := u.GetByName("x")
	y, _ := u.GetByName("y")
	require.Equal(t, int32(2), x)
	require.Equal(t, int32(5), y)
}

func TestApplyIncOnlyAppliesToIntegers(t *testing.T) {
	schema := itemSchema(t)
	u := dataunit.New(schema)
	require.NoError(t, u.SetByName("x", int32(10)))

	req := updatewire.Request{{Path: "[x]", Kind: updatewire.KindInc, N: 5}}
	require.NoError(t, req.Apply(u))
	x, _ := u.GetByName("x")
	require.Equal(t, int32(15), x)

	negReq := updatewire.Request{{Path: "[x]", Kind: updatewire.KindInc, N: -20}}
	require.NoError(t, negReq.Apply(u))
	x, _ = u.GetByName("x")
	require.Equal(t, int32(-5), x)

	badReq := updatewire.Request{{Path: "[tags]", Kind: updatewire.KindInc, N: 1}}
	require.Error(t, badReq.Apply(u))
}

func TestApplyPushPopPrependEraseOnRepeatedField(t *testing.T) {
	schema := itemSchema(t)
	u := dataunit.New(schema)

	req := updatewire.Request{
		{Path: "[tags]", Kind: updatewire.KindPush, Type: dataunit.TypeString, Value: "b"},
		{Path: "[tags]", Kind: updatewire.KindPush, Type: dataunit.TypeString, Value: "c"},
		{Path: "[tags]", Kind: updatewire.KindPrependTo, Type: dataunit.TypeString, Value: "a"},
	}
	require.NoError(t, req.Apply(u))
	tags, _ := u.GetRepeated(3)
	require.Equal(t, []any{"a", "b", "c"}, tags)

	require.NoError(t, (updatewire.Request{{Path: "[tags]", Kind: updatewire.KindEraseElement, N: 1}}).Apply(u))
	tags, _ = u.GetRepeated(3)
	require.Equal(t, []any{"a", "c"}, tags)

	require.NoError(t, (updatewire.Request{{Path: "[tags]", Kind: updatewire.KindPop}}).Apply(u))
	tags, _ = u.GetRepeated(3)
	require.Equal(t, []any{"a"}, tags)
}

func TestEncodeDecodeRoundTripNewOperators(t *testing.T) {
	req := updatewire.Request{
		{Path: "[x]", Kind: updatewire.KindInc, N: -3},
		{Path: "[tags]", Kind: updatewire.KindPush, Type: dataunit.TypeString, Value: "b"},
		{Path: "[tags]", Kind: updatewire.KindPrependTo, Type: dataunit.TypeString, Value: "a"},
		{Path: "[tags]", Kind: updatewire.KindPop},
		{Path: "[tags]", Kind: updatewire.KindEraseElement, N: 0},
	}
	data, err := updatewire.Encode(req)
	require.NoError(t, err)

	back, err := updatewire.Decode(data)
	require.NoError(t, err)
	require.Len(t, back, 5)
	require.Equal(t, -3, back[0].N)
	require.Equal(t, "b", back[1].Value)
	require.Equal(t, "a", back[2].Value)
	require.Equal(t, 0, back[4].N)
}
