package interfaces

import "crypto/x509"

// SecretResolver returns the key-wrap secret shared with the holder of cert.
type SecretResolver interface {
	SecretFor(cert *x509.Certificate) ([]byte, error)
}
