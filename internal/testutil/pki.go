// Package testutil mints throwaway certificates and key files for tests.
package testutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// PKI is a single-level certificate authority rooted in a temp directory.
type PKI struct {
	CA    *x509.Certificate
	CAKey ed25519.PrivateKey
	Dir   string
}

// Leaf is an issued certificate and its private key.
type Leaf struct {
	Cert *x509.Certificate
	Key  ed25519.PrivateKey
}

// NewPKI creates a fresh CA.
func NewPKI(t testing.TB) *PKI {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("ed25519.GenerateKey: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          serial(t),
		Subject:               pkix.Name{CommonName: "portfwd test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, pub, priv)
	if err != nil {
		t.Fatalf("create CA: %v", err)
	}
	ca, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse CA: %v", err)
	}
	return &PKI{CA: ca, CAKey: priv, Dir: t.TempDir()}
}

// IssueServer signs a server-auth leaf certificate for commonName.
func (p *PKI) IssueServer(t testing.TB, commonName string) Leaf {
	t.Helper()
	return p.issue(t, commonName, x509.ExtKeyUsageServerAuth)
}

// IssueClient signs a client-auth leaf certificate for commonName.
func (p *PKI) IssueClient(t testing.TB, commonName string) Leaf {
	t.Helper()
	return p.issue(t, commonName, x509.ExtKeyUsageClientAuth)
}

func (p *PKI) issue(t testing.TB, commonName string, usage x509.ExtKeyUsage) Leaf {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("ed25519.GenerateKey: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: serial(t),
		Subject:      pkix.Name{CommonName: commonName},
		DNSNames:     []string{commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{usage},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, p.CA, pub, p.CAKey)
	if err != nil {
		t.Fatalf("issue %s: %v", commonName, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse %s: %v", commonName, err)
	}
	return Leaf{Cert: cert, Key: priv}
}

// WriteCA writes the CA certificate as PEM and returns its path.
func (p *PKI) WriteCA(t testing.TB) string {
	t.Helper()
	return p.WriteCert(t, "ca.pem", p.CA)
}

// WriteCert writes cert as PEM under name and returns its path.
func (p *PKI) WriteCert(t testing.TB, name string, cert *x509.Certificate) string {
	t.Helper()
	return p.write(t, name, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}))
}

// WriteKey writes key as a PKCS#8 PEM under name and returns its path.
func (p *PKI) WriteKey(t testing.TB, name string, key ed25519.PrivateKey) string {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	return p.write(t, name, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

// WriteSecret writes raw secret bytes under name and returns its path.
func (p *PKI) WriteSecret(t testing.TB, name string, secret []byte) string {
	t.Helper()
	return p.write(t, name, secret)
}

func (p *PKI) write(t testing.TB, name string, b []byte) string {
	t.Helper()
	path := filepath.Join(p.Dir, name)
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// Secret returns 32 random bytes, hex encoded so the file survives
// whitespace trimming.
func Secret(t testing.TB) []byte {
	t.Helper()
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return []byte(hex.EncodeToString(b))
}

func serial(t testing.TB) *big.Int {
	t.Helper()
	n, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		t.Fatalf("serial: %v", err)
	}
	return n
}
