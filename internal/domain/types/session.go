package types

import "encoding/hex"

// SessionID identifies a session in logs. It is derived from the handshake
// transcript and carries no key material.
type SessionID [32]byte

// String returns a short hex form of the identifier.
func (id SessionID) String() string { return hex.EncodeToString(id[:8]) }

// Session is the result of a completed handshake: where the relay connects
// and the cipher that protects the payload. It is read-only once built and
// never persisted.
type Session struct {
	ID     SessionID
	Remote Target
	Cipher Cipher
}

// Cipher encrypts and decrypts relay chunks for one session.
//
// Encrypt and Decrypt may be called concurrently with each other, but each
// one must only be driven by a single goroutine.
type Cipher interface {
	Encrypt(plain []byte) ([]byte, error)
	Decrypt(chunk []byte) ([]byte, error)
}
