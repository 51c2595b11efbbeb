package interfaces

import (
	"crypto"
	"crypto/ed25519"
)

// CryptoSuite is the capability the handshake engine relies on. A single
// concrete implementation is selected at startup.
type CryptoSuite interface {
	Sign(priv ed25519.PrivateKey, msg []byte) []byte
	Verify(pub crypto.PublicKey, msg, sig []byte) bool

	Encrypt(key, plaintext, ad []byte) ([]byte, error)
	Decrypt(key, ciphertext, ad []byte) ([]byte, error)

	WrapKey(kek, keyMaterial, ad []byte) ([]byte, error)
	UnwrapKey(kek, wrapped, ad []byte) ([]byte, error)
}
