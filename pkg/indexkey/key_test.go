package indexkey_test

import (
	"bytes"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/strata/pkg/dataunit"
	"github.com/cuemby/strata/pkg/dataunit/objectid"
	"github.com/cuemby/strata/pkg/indexkey"
)

func TestEncodeInt32OrderingMatchesNumericOrdering(t *testing.T) {
	values := []int32{-100, -1, 0, 1, 42, 1000}
	var keys [][]byte
	for _, v := range values {
		b, err := indexkey.EncodeValue(dataunit.TypeInt32, v)
		require.NoError(t, err)
		keys = append(keys, b)
	}
	sorted := append([][]byte(nil), keys...)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i], sorted[j]) < 0 })
	assert.Equal(t, keys, sorted, "byte ordering should match value ordering for int32")
}

func TestEncodeFloat64OrderingMatchesNumericOrdering(t *testing.T) {
	values := []float64{-3.5, -0.001, 0, 0.001, 2.25, 100}
	var keys [][]byte
	for _, v := range values {
		b, err := indexkey.EncodeValue(dataunit.TypeFloat64, v)
		require.NoError(t, err)
		keys = append(keys, b)
	}
	sorted := append([][]byte(nil), keys...)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i], sorted[j]) < 0 })
	assert.Equal(t, keys, sorted)
}

func TestEscapePartHandlesEmbeddedZeroBytes(t *testing.T) {
	id := objectid.NewAt(time.Unix(1600000000, 0))
	k1, err := indexkey.Encode([]indexkey.TypedValue{{Type: dataunit.TypeBytes, Value: []byte{0x00, 0x01}}}, id)
	require.NoError(t, err)
	k2, err := indexkey.Encode([]indexkey.TypedValue{{Type: dataunit.TypeBytes, Value: []byte{0x01}}}, id)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)
}

func TestPrefixUpperBoundStrictlyGreater(t *testing.T) {
	prefix, err := indexkey.Prefix([]indexkey.TypedValue{{Type: dataunit.TypeString, Value: "abc"}})
	require.NoError(t, err)
	upper, ok := indexkey.PrefixUpperBound(prefix)
	require.True(t, ok)
	assert.True(t, bytes.Compare(upper, prefix) > 0)

	longer, err := indexkey.Prefix([]indexkey.TypedValue{{Type: dataunit.TypeString, Value: "abcd"}})
	require.NoError(t, err)
	assert.True(t, bytes.Compare(longer, upper) > 0, "an abcd key is outside the abc equality range, so it must sort above the abc-prefix upper bound")
}
