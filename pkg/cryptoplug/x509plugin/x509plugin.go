/*
Package x509plugin is the stdlib-crypto implementation of
cryptoplug.Plugin: RSA root CA generation, node-certificate issuance,
and persistence of the root key pair. It persists through
pkg/kvstore.DB directly — the same ordered key-value store docstore
and outbox already depend on — so a deployment doesn't need a second
storage backend just to keep its CA alive across restarts.
*/
package x509plugin

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"io"
	"math/big"
	"sync"
	"time"

	"github.com/cuemby/strata/pkg/cryptoplug"
	"github.com/cuemby/strata/pkg/kvstore"
	"github.com/cuemby/strata/pkg/serr"
)

const (
	rootCAValidity   = 10 * 365 * 24 * time.Hour
	defaultValidity  = 90 * 24 * time.Hour
	rootKeySize      = 4096
	leafKeySize      = 2048
	caTable          = "_x509plugin_ca"
	caRecordKey      = "root"
	pluginName       = "x509"
)

// caRecord is the JSON-serialized form of the root CA's key material,
// the Go analogue of ca.go's CAData.
type caRecord struct {
	RootCertDER []byte `json:"root_cert_der"`
	RootKeyDER  []byte `json:"root_key_der"`
}

// Plugin is a cryptoplug.Plugin backed by crypto/rsa and crypto/x509.
type Plugin struct {
	db kvstore.DB

	mu       sync.RWMutex
	rootCert *x509.Certificate
	rootKey  *rsa.PrivateKey
}

// New returns a Plugin that persists its root CA material in db.
func New(db kvstore.DB) *Plugin {
	return &Plugin{db: db}
}

func (p *Plugin) Name() string { return pluginName }

// Init loads existing CA material from db, generating and persisting a
// fresh root CA on first run — mirroring ca.go's Initialize, which
// generates a root key/cert only when LoadFromStore finds nothing.
func (p *Plugin) Init() error {
	ctx := context.Background()
	if err := p.db.EnsureBucket(ctx, caTable); err != nil {
		return serr.Wrap(serr.BackendRead, err, "x509plugin: ensuring CA bucket")
	}

	loaded, err := p.load(ctx)
	if err != nil {
		return err
	}
	if loaded {
		return nil
	}
	return p.generateRoot(ctx)
}

func (p *Plugin) load(ctx context.Context) (bool, error) {
	var raw []byte
	var ok bool
	err := p.db.View(ctx, func(tx kvstore.Tx) error {
		v, found, err := tx.Get(caTable, []byte(caRecordKey))
		if err != nil {
			return err
		}
		ok = found
		if found {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return false, serr.Wrap(serr.BackendRead, err, "x509plugin: reading CA record")
	}
	if !ok {
		return false, nil
	}

	var rec caRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return false, serr.Wrap(serr.ParseFailed, err, "x509plugin: decoding CA record")
	}
	cert, err := x509.ParseCertificate(rec.RootCertDER)
	if err != nil {
		return false, serr.Wrap(serr.ParseFailed, err, "x509plugin: parsing root certificate")
	}
	key, err := x509.ParsePKCS1PrivateKey(rec.RootKeyDER)
	if err != nil {
		return false, serr.Wrap(serr.ParseFailed, err, "x509plugin: parsing root key")
	}

	p.mu.Lock()
	p.rootCert, p.rootKey = cert, key
	p.mu.Unlock()
	return true, nil
}

func (p *Plugin) generateRoot(ctx context.Context) error {
	key, err := rsa.GenerateKey(rand.Reader, rootKeySize)
	if err != nil {
		return serr.Wrap(serr.SerializeFailed, err, "x509plugin: generating root key")
	}

	serial, err := randomSerial()
	if err != nil {
		return err
	}
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "strata-root-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(rootCAValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            1,
		MaxPathLenZero:        false,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return serr.Wrap(serr.SerializeFailed, err, "x509plugin: self-signing root certificate")
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return serr.Wrap(serr.SerializeFailed, err, "x509plugin: parsing freshly minted root certificate")
	}

	rec := caRecord{RootCertDER: der, RootKeyDER: x509.MarshalPKCS1PrivateKey(key)}
	raw, err := json.Marshal(rec)
	if err != nil {
		return serr.Wrap(serr.SerializeFailed, err, "x509plugin: encoding CA record")
	}
	err = p.db.Update(ctx, func(tx kvstore.RwTx) error {
		return tx.Put(caTable, []byte(caRecordKey), raw)
	})
	if err != nil {
		return serr.Wrap(serr.BackendRead, err, "x509plugin: persisting CA record")
	}

	p.mu.Lock()
	p.rootCert, p.rootKey = cert, key
	p.mu.Unlock()
	return nil
}

func randomSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return nil, serr.Wrap(serr.SerializeFailed, err, "x509plugin: generating serial number")
	}
	return serial, nil
}

// NewRandomGenerator returns crypto/rand's reader, the Go stand-in for
// CryptPlugin::createRandomGenerator.
func (p *Plugin) NewRandomGenerator() io.Reader {
	return rand.Reader
}

// NewDigest returns a running hash for algorithm. Only sha256 is
// wired: it's the only digest this module's components (request
// signing) actually need today.
func (p *Plugin) NewDigest(algorithm string) (cryptoplug.Digest, error) {
	switch algorithm {
	case "sha256":
		return &sha256Digest{h: sha256.New()}, nil
	default:
		return nil, serr.New(serr.Unsupported, "x509plugin: unsupported digest algorithm %q", algorithm)
	}
}

type sha256Digest struct {
	h interface {
		Write([]byte) (int, error)
		Sum([]byte) []byte
	}
}

func (d *sha256Digest) Write(p []byte) (int, error) { return d.h.Write(p) }
func (d *sha256Digest) Sum() []byte                 { return d.h.Sum(nil) }

// CertAuthority returns this plugin's CA, ready to issue and verify
// certificates. Init must have run first.
func (p *Plugin) CertAuthority() (cryptoplug.CertAuthority, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.rootCert == nil || p.rootKey == nil {
		return nil, serr.New(serr.Unsupported, "x509plugin: CA not initialized, call Init first")
	}
	return &ca{p: p}, nil
}

// ca adapts Plugin's root key material to cryptoplug.CertAuthority,
// mirroring ca.go's IssueNodeCertificate.
type ca struct {
	p *Plugin
}

func (c *ca) RootCertDER() []byte {
	c.p.mu.RLock()
	defer c.p.mu.RUnlock()
	return c.p.rootCert.Raw
}

func (c *ca) Issue(req cryptoplug.CertRequest) (*cryptoplug.IssuedCert, error) {
	c.p.mu.RLock()
	rootCert, rootKey := c.p.rootCert, c.p.rootKey
	c.p.mu.RUnlock()

	key, err := rsa.GenerateKey(rand.Reader, leafKeySize)
	if err != nil {
		return nil, serr.Wrap(serr.SerializeFailed, err, "x509plugin: generating leaf key")
	}
	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}
	validity := req.Validity
	if validity <= 0 {
		validity = defaultValidity
	}
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: req.CommonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(validity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		DNSNames:     req.DNSNames,
		IPAddresses:  req.IPAddresses,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, rootCert, &key.PublicKey, rootKey)
	if err != nil {
		return nil, serr.Wrap(serr.SerializeFailed, err, "x509plugin: issuing certificate for %q", req.CommonName)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, serr.Wrap(serr.SerializeFailed, err, "x509plugin: parsing issued certificate")
	}
	return &cryptoplug.IssuedCert{
		Cert:    cert,
		CertDER: der,
		KeyDER:  x509.MarshalPKCS1PrivateKey(key),
	}, nil
}

func (c *ca) Verify(cert *x509.Certificate) error {
	c.p.mu.RLock()
	rootCert := c.p.rootCert
	c.p.mu.RUnlock()

	roots := x509.NewCertPool()
	roots.AddCert(rootCert)
	opts := x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}
	if _, err := cert.Verify(opts); err != nil {
		return serr.Wrap(serr.MACForbidden, err, "x509plugin: certificate %q does not chain to CA", cert.Subject.CommonName)
	}
	return nil
}
