package store

import (
	"crypto/x509"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"portfwd/internal/crypto"
	"portfwd/internal/domain"
)

// ErrUnknownClient is returned when no secret is registered for a client.
var ErrUnknownClient = errors.New("no secret registered for client certificate")

// PinnedSecret serves one secret to the holder of one client certificate.
// Any other certificate is an unknown client.
type PinnedSecret struct {
	Fingerprint string // CertificateFingerprint of the client certificate
	Secret      []byte
}

// PinSecret binds secret to cert.
func PinSecret(cert *x509.Certificate, secret []byte) PinnedSecret {
	return PinnedSecret{Fingerprint: crypto.CertificateFingerprint(cert), Secret: secret}
}

// SecretFor returns the secret if cert is the pinned certificate.
func (p PinnedSecret) SecretFor(cert *x509.Certificate) ([]byte, error) {
	if cert == nil || !strings.EqualFold(crypto.CertificateFingerprint(cert), p.Fingerprint) {
		var fp string
		if cert != nil {
			fp = crypto.Fingerprint(cert.Raw)
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownClient, fp)
	}
	return p.Secret, nil
}

// registryFile is the on-disk layout of a secret registry:
//
//	{"clients": {"<sha256 of client cert DER, hex>": "alice.key", ...}}
//
// Relative paths are resolved against the registry file's directory.
type registryFile struct {
	Clients map[string]string `json:"clients"`
}

// Registry maps client certificate fingerprints to key-wrap secrets. Secret
// files are read on first use and cached.
type Registry struct {
	dir        string
	passphrase string
	paths      map[string]string

	mu    sync.Mutex
	cache map[string][]byte
}

// LoadRegistry reads the registry at path.
func LoadRegistry(path, passphrase string) (*Registry, error) {
	var rf registryFile
	if err := readJSON(path, &rf); err != nil {
		return nil, err
	}
	paths := make(map[string]string, len(rf.Clients))
	for fp, p := range rf.Clients {
		paths[strings.ToLower(fp)] = p
	}
	return &Registry{
		dir:        filepath.Dir(path),
		passphrase: passphrase,
		paths:      paths,
		cache:      make(map[string][]byte),
	}, nil
}

// SecretFor returns the secret registered for cert.
func (r *Registry) SecretFor(cert *x509.Certificate) ([]byte, error) {
	fp := crypto.CertificateFingerprint(cert)

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.cache[fp]; ok {
		return s, nil
	}
	p, ok := r.paths[fp]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClient, crypto.Fingerprint(cert.Raw))
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(r.dir, p)
	}
	s, err := LoadSecret(p, r.passphrase)
	if err != nil {
		return nil, err
	}
	r.cache[fp] = s
	return s, nil
}

var (
	_ domain.SecretResolver = PinnedSecret{}
	_ domain.SecretResolver = (*Registry)(nil)
)
