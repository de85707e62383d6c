package x509plugin_test

import (
	"net"
	"testing"

	"github.com/cuemby/strata/pkg/cryptoplug"
	"github.com/cuemby/strata/pkg/cryptoplug/x509plugin"
	"github.com/cuemby/strata/pkg/kvstore/boltkv"
	"github.com/stretchr/testify/require"
)

func newPlugin(t *testing.T) *x509plugin.Plugin {
	t.Helper()
	db, err := boltkv.Open(t.TempDir(), "x509")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	p := x509plugin.New(db)
	require.NoError(t, p.Init())
	return p
}

func TestInitGeneratesRootCA(t *testing.T) {
	p := newPlugin(t)

	authority, err := p.CertAuthority()
	require.NoError(t, err)
	require.NotEmpty(t, authority.RootCertDER())
}

func TestInitIsIdempotentAcrossRestarts(t *testing.T) {
	db, err := boltkv.Open(t.TempDir(), "x509")
	require.NoError(t, err)
	defer db.Close()

	first := x509plugin.New(db)
	require.NoError(t, first.Init())
	firstAuthority, err := first.CertAuthority()
	require.NoError(t, err)
	rootDER := firstAuthority.RootCertDER()

	second := x509plugin.New(db)
	require.NoError(t, second.Init())
	secondAuthority, err := second.CertAuthority()
	require.NoError(t, err)

	require.Equal(t, rootDER, secondAuthority.RootCertDER())
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	p := newPlugin(t)
	authority, err := p.CertAuthority()
	require.NoError(t, err)

	issued, err := authority.Issue(cryptoplugCertRequest("node-1", "127.0.0.1"))
	require.NoError(t, err)
	require.NotEmpty(t, issued.CertDER)
	require.NotEmpty(t, issued.KeyDER)

	require.NoError(t, authority.Verify(issued.Cert))
}

func TestVerifyRejectsCertFromAnotherCA(t *testing.T) {
	p1 := newPlugin(t)
	p2 := newPlugin(t)

	authority1, err := p1.CertAuthority()
	require.NoError(t, err)
	authority2, err := p2.CertAuthority()
	require.NoError(t, err)

	issued, err := authority1.Issue(cryptoplugCertRequest("node-1", "127.0.0.1"))
	require.NoError(t, err)

	require.Error(t, authority2.Verify(issued.Cert))
}

func TestNewDigestRejectsUnknownAlgorithm(t *testing.T) {
	p := newPlugin(t)
	_, err := p.NewDigest("md5")
	require.Error(t, err)
}

func TestNewDigestSHA256(t *testing.T) {
	p := newPlugin(t)
	d, err := p.NewDigest("sha256")
	require.NoError(t, err)

	_, err = d.Write([]byte("hello"))
	require.NoError(t, err)
	require.Len(t, d.Sum(), 32)
}

func cryptoplugCertRequest(cn, ip string) cryptoplug.CertRequest {
	return cryptoplug.CertRequest{
		CommonName:  cn,
		IPAddresses: []net.IP{net.ParseIP(ip)},
	}
}
