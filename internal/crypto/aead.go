package crypto

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	KeyBytes   = chacha20poly1305.KeySize
	NonceBytes = chacha20poly1305.NonceSize
	Overhead   = chacha20poly1305.Overhead
)

// ErrOpen is returned when a sealed box fails to authenticate.
var ErrOpen = errors.New("message authentication failed")

// Seal encrypts plaintext under key and returns nonce || ciphertext.
// A fresh random nonce is drawn for every call.
func Seal(key, plaintext, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, NonceBytes, NonceBytes+len(plaintext)+Overhead)
	if _, err := rand.Read(out); err != nil {
		return nil, err
	}
	return aead.Seal(out, out[:NonceBytes], plaintext, ad), nil
}

// Open reverses Seal.
func Open(key, sealed, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < NonceBytes+Overhead {
		return nil, ErrOpen
	}
	pt, err := aead.Open(nil, sealed[:NonceBytes], sealed[NonceBytes:], ad)
	if err != nil {
		return nil, ErrOpen
	}
	return pt, nil
}
