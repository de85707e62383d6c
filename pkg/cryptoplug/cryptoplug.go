/*
Package cryptoplug is the pluggable crypto-provider surface: a base
interface a concrete crypto backend implements so the rest of the
framework talks to "a crypto plugin" rather than a fixed TLS/X.509
library. Plugin is scoped down to the slice this project actually
drives a transport with — random bytes, digests, and issuing/verifying
X.509 certificates for peer authentication — while keeping the
"plugin implements an interface, callers never import the backend
directly" shape. pkg/cryptoplug/x509plugin is the one concrete Plugin,
grounded on the same certificate-authority idiom as the rest of the
module's storage-backed components.
*/
package cryptoplug

import (
	"crypto/x509"
	"io"
	"net"
	"time"

	"github.com/cuemby/strata/pkg/serr"
)

// Digest is a running hash, the Go shape of CryptPlugin::createDigest.
type Digest interface {
	io.Writer
	Sum() []byte
}

// CertRequest describes the certificate a CA Plugin is asked to issue.
type CertRequest struct {
	CommonName  string
	DNSNames    []string
	IPAddresses []net.IP
	Validity    time.Duration
}

// IssuedCert is a freshly-issued leaf certificate and its private key,
// both DER-encoded, plus the parsed certificate for convenience.
type IssuedCert struct {
	Cert    *x509.Certificate
	CertDER []byte
	KeyDER  []byte
}

// CertAuthority issues and verifies certificates for peer
// authentication (the X.509 slice of CryptPlugin's surface this
// project actually needs).
type CertAuthority interface {
	// RootCertDER returns the CA's own self-signed certificate, DER
	// encoded, for distribution to peers that need to verify issued
	// certificates.
	RootCertDER() []byte
	// Issue mints a new leaf certificate signed by the CA.
	Issue(req CertRequest) (*IssuedCert, error)
	// Verify checks that cert chains to this CA's root.
	Verify(cert *x509.Certificate) error
}

// Plugin is a crypto backend: given a name, it can mint a
// RandomGenerator, a Digest of a named algorithm, and a CertAuthority.
// A process registers exactly the plugins it was built with; callers
// depend only on this interface.
type Plugin interface {
	Name() string
	// Init prepares the plugin (e.g. loading/initializing CA key
	// material) and is called once before first use.
	Init() error
	NewRandomGenerator() io.Reader
	NewDigest(algorithm string) (Digest, error)
	CertAuthority() (CertAuthority, error)
}

// registry is a process-wide set of named plugins, the Go analogue of
// the original's plugin-loading registry (there, plugins are
// dynamically loaded shared libraries selected by name; here, callers
// Register a concrete Plugin value at init time instead).
var registry = map[string]Plugin{}

// Register adds p under its own Name(). Re-registering the same name
// replaces the previous plugin.
func Register(p Plugin) {
	registry[p.Name()] = p
}

// Get looks up a previously-registered plugin by name.
func Get(name string) (Plugin, error) {
	p, ok := registry[name]
	if !ok {
		return nil, serr.New(serr.NotFound, "cryptoplug: no plugin registered as %q", name)
	}
	return p, nil
}
