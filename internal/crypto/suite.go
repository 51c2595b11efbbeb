package crypto

import (
	stdcrypto "crypto"
	"crypto/ed25519"
	"errors"

	"portfwd/internal/domain"
)

// ErrUnwrap is returned when wrapped key material fails to authenticate.
var ErrUnwrap = errors.New("key unwrap failed")

// Suite is the Ed25519 + ChaCha20-Poly1305 implementation of
// domain.CryptoSuite.
type Suite struct{}

// NewSuite returns the default suite.
func NewSuite() Suite { return Suite{} }

func (Suite) Sign(priv ed25519.PrivateKey, msg []byte) []byte { return SignEd25519(priv, msg) }

func (Suite) Verify(pub stdcrypto.PublicKey, msg, sig []byte) bool {
	return VerifyEd25519(pub, msg, sig)
}

func (Suite) Encrypt(key, plaintext, ad []byte) ([]byte, error) { return Seal(key, plaintext, ad) }

func (Suite) Decrypt(key, ciphertext, ad []byte) ([]byte, error) { return Open(key, ciphertext, ad) }

// WrapKey seals keyMaterial under kek, binding ad.
func (Suite) WrapKey(kek, keyMaterial, ad []byte) ([]byte, error) {
	if len(kek) != KeyBytes {
		return nil, errors.New("invalid key-encryption key size")
	}
	return Seal(kek, keyMaterial, ad)
}

// UnwrapKey opens key material sealed by WrapKey.
func (Suite) UnwrapKey(kek, wrapped, ad []byte) ([]byte, error) {
	if len(kek) != KeyBytes {
		return nil, errors.New("invalid key-encryption key size")
	}
	km, err := Open(kek, wrapped, ad)
	if err != nil {
		return nil, ErrUnwrap
	}
	return km, nil
}

var _ domain.CryptoSuite = Suite{}
