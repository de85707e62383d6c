package cryptoplug_test

import (
	"io"
	"testing"

	"github.com/cuemby/strata/pkg/cryptoplug"
	"github.com/stretchr/testify/require"
)

type stubPlugin struct{ name string }

func (s *stubPlugin) Name() string                   { return s.name }
func (s *stubPlugin) Init() error                     { return nil }
func (s *stubPlugin) NewRandomGenerator() io.Reader   { return nil }
func (s *stubPlugin) NewDigest(string) (cryptoplug.Digest, error) {
	return nil, nil
}
func (s *stubPlugin) CertAuthority() (cryptoplug.CertAuthority, error) { return nil, nil }

func TestRegisterAndGet(t *testing.T) {
	cryptoplug.Register(&stubPlugin{name: "stub-a"})

	p, err := cryptoplug.Get("stub-a")
	require.NoError(t, err)
	require.Equal(t, "stub-a", p.Name())
}

func TestGetUnknownPluginErrors(t *testing.T) {
	_, err := cryptoplug.Get("does-not-exist")
	require.Error(t, err)
}

func TestRegisterReplacesSameName(t *testing.T) {
	cryptoplug.Register(&stubPlugin{name: "stub-b"})
	cryptoplug.Register(&stubPlugin{name: "stub-b"})

	p, err := cryptoplug.Get("stub-b")
	require.NoError(t, err)
	require.Equal(t, "stub-b", p.Name())
}
