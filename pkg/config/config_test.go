package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/strata/pkg/config"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
thread_count: 4
threads: ["a", "b"]
db:
  provider: bolt
  thread_count: 2
producer:
  message_ttl: 30s
  dequeue_retry_interval: 5s
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoadDecodesAndValidates(t *testing.T) {
	path := writeFile(t, sampleYAML)
	cfg, tree, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.ThreadCount)
	require.Equal(t, []string{"a", "b"}, cfg.Threads)
	require.Equal(t, "bolt", cfg.DB.Provider)

	v, ok := tree.GetString("db.provider")
	require.True(t, ok)
	require.Equal(t, "bolt", v)
}

func TestLoadRejectsMissingRequiredField(t *testing.T) {
	path := writeFile(t, "thread_count: 2\ndb:\n  thread_count: 1\n")
	_, _, err := config.Load(path)
	require.Error(t, err)
}

func TestTreeGetSetNestedAndIndexed(t *testing.T) {
	tree, err := config.ParseTree([]byte(sampleYAML))
	require.NoError(t, err)

	v, ok := tree.Get("threads.1")
	require.True(t, ok)
	require.Equal(t, "b", v)

	_, ok = tree.Get("threads.5")
	require.False(t, ok)

	require.NoError(t, tree.Set("db.provider", "memory"))
	got, ok := tree.GetString("db.provider")
	require.True(t, ok)
	require.Equal(t, "memory", got)
}

func TestMergeOverlaysNestedMapsAndReplacesScalars(t *testing.T) {
	base, err := config.ParseTree([]byte(sampleYAML))
	require.NoError(t, err)
	overlay, err := config.ParseTree([]byte("db:\n  provider: memory\n"))
	require.NoError(t, err)

	require.NoError(t, base.Merge(overlay))

	provider, ok := base.GetString("db.provider")
	require.True(t, ok)
	require.Equal(t, "memory", provider)

	// untouched sibling field survives the merge
	n, ok := base.GetInt("db.thread_count")
	require.True(t, ok)
	require.Equal(t, 2, n)
}

func TestLoadMergedRevalidatesAfterMerge(t *testing.T) {
	path := writeFile(t, sampleYAML)
	fragment := config.NewTree(map[string]any{"thread_count": 0})

	_, _, err := config.LoadMerged(path, fragment)
	require.Error(t, err) // merged thread_count=0 must fail Validate
}
