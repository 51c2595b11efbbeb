package crypto

import (
	"crypto/ed25519"
	"crypto/x509"
	"errors"
	"fmt"
	"time"
)

// ErrUntrustedCertificate is returned when a certificate does not chain to
// the configured CA or carries an unsupported key.
var ErrUntrustedCertificate = errors.New("untrusted certificate")

// VerifyCertificate checks that leaf was issued by ca, is valid at now and
// may be used for usage, and returns its Ed25519 public key.
//
// Host names are not checked: the rendezvous endpoint is identified by the
// CA that issued its certificate and the server-auth usage.
func VerifyCertificate(leaf, ca *x509.Certificate, now time.Time, usage x509.ExtKeyUsage) (ed25519.PublicKey, error) {
	if leaf == nil || ca == nil {
		return nil, fmt.Errorf("%w: missing certificate", ErrUntrustedCertificate)
	}
	roots := x509.NewCertPool()
	roots.AddCert(ca)
	opts := x509.VerifyOptions{
		Roots:       roots,
		CurrentTime: now,
		KeyUsages:   []x509.ExtKeyUsage{usage},
	}
	if _, err := leaf.Verify(opts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUntrustedCertificate, err)
	}
	pub, ok := leaf.PublicKey.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not an Ed25519 key", ErrUntrustedCertificate, leaf.PublicKey)
	}
	return pub, nil
}
