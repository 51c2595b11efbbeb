package store

import (
	"bytes"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// MinSecretBytes is the shortest key-wrap secret accepted.
const MinSecretBytes = 16

// ClientCredentials is what the client needs to run a handshake.
type ClientCredentials struct {
	Certificate *x509.Certificate
	CA          *x509.Certificate
	Secret      []byte
}

// ServerCredentials is what the forward server needs to answer handshakes.
type ServerCredentials struct {
	Certificate *x509.Certificate
	PrivateKey  ed25519.PrivateKey
	CA          *x509.Certificate
}

// LoadClientCredentials reads the client certificate, the CA certificate and
// the key-wrap secret.
func LoadClientCredentials(certPath, caPath, keyPath, passphrase string) (ClientCredentials, error) {
	cert, err := LoadCertificate(certPath)
	if err != nil {
		return ClientCredentials{}, err
	}
	ca, err := LoadCertificate(caPath)
	if err != nil {
		return ClientCredentials{}, err
	}
	secret, err := LoadSecret(keyPath, passphrase)
	if err != nil {
		return ClientCredentials{}, err
	}
	return ClientCredentials{Certificate: cert, CA: ca, Secret: secret}, nil
}

// LoadServerCredentials reads the server certificate, its private key and
// the CA certificate, and checks that the key matches the certificate.
func LoadServerCredentials(certPath, keyPath, caPath string) (ServerCredentials, error) {
	cert, err := LoadCertificate(certPath)
	if err != nil {
		return ServerCredentials{}, err
	}
	key, err := LoadPrivateKey(keyPath)
	if err != nil {
		return ServerCredentials{}, err
	}
	ca, err := LoadCertificate(caPath)
	if err != nil {
		return ServerCredentials{}, err
	}
	pub, ok := cert.PublicKey.(ed25519.PublicKey)
	if !ok || !pub.Equal(key.Public()) {
		return ServerCredentials{}, fmt.Errorf("%s: private key does not match certificate %s", keyPath, certPath)
	}
	return ServerCredentials{Certificate: cert, PrivateKey: key, CA: ca}, nil
}

// LoadCertificate parses the first certificate in a PEM file, or a raw DER
// file when no PEM block is present.
func LoadCertificate(path string) (*x509.Certificate, error) {
	b, err := readFile(path)
	if err != nil {
		return nil, err
	}
	der := b
	if block, _ := pem.Decode(b); block != nil {
		if block.Type != "CERTIFICATE" {
			return nil, fmt.Errorf("%s: unexpected PEM block %q", path, block.Type)
		}
		der = block.Bytes
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cert, nil
}

// LoadPrivateKey parses a PKCS#8 Ed25519 private key.
func LoadPrivateKey(path string) (ed25519.PrivateKey, error) {
	b, err := readFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(b)
	if block == nil || block.Type != "PRIVATE KEY" {
		return nil, fmt.Errorf("%s: no PRIVATE KEY block", path)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	edKey, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%s: %T is not an Ed25519 key", path, key)
	}
	return edKey, nil
}

// LoadSecret reads a key-wrap secret. Sealed envelopes are opened with
// passphrase; raw files are trimmed of surrounding whitespace.
func LoadSecret(path, passphrase string) ([]byte, error) {
	b, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if bl, ok := parseEnvelope(b); ok {
		secret, err := decrypt(passphrase, bl)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return checkSecret(path, secret)
	}
	return checkSecret(path, bytes.TrimSpace(b))
}

// SealSecretFile reads the raw secret at in, seals it under passphrase and
// writes the envelope to out with mode 0600.
func SealSecretFile(in, out, passphrase string) error {
	if passphrase == "" {
		return errPassphraseRequired
	}
	secret, err := LoadSecret(in, "")
	if err != nil {
		return err
	}
	N, r, p := scryptParamsDefault()
	env, err := encrypt(passphrase, secret, N, r, p)
	if err != nil {
		return err
	}
	return writeFile(out, env, 0o600)
}

func checkSecret(path string, secret []byte) ([]byte, error) {
	if len(secret) < MinSecretBytes {
		return nil, fmt.Errorf("%s: secret shorter than %d bytes", path, MinSecretBytes)
	}
	return secret, nil
}
