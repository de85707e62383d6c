package stream_test

import (
	"testing"

	"github.com/cuemby/strata/pkg/stream"
	"github.com/stretchr/testify/require"
)

func TestStateLifecycle(t *testing.T) {
	var s stream.State
	require.False(t, s.IsOpen())
	require.False(t, s.IsClosed())

	s.MarkPrepared()
	require.True(t, s.IsOpen())
	require.True(t, s.IsActive())

	require.True(t, s.MarkClosed())
	require.False(t, s.IsOpen())
	require.True(t, s.IsClosed())

	// a second close is reported as a no-op
	require.False(t, s.MarkClosed())
}

func TestChainForwardsToInstalledStage(t *testing.T) {
	var c stream.Chain
	_, err := c.WriteNext([]byte("x"))
	require.Error(t, err)

	var written []byte
	c.SetWriteNext(func(p []byte) (int, error) {
		written = append(written, p...)
		return len(p), nil
	})
	n, err := c.WriteNext([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(written))
}
