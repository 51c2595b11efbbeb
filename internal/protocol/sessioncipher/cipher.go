package sessioncipher

import (
	"crypto/cipher"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"portfwd/internal/crypto"
	"portfwd/internal/domain"
)

const (
	// KeySize is the session key length.
	KeySize = 32

	// MaxChunk is the largest plaintext chunk Encrypt accepts.
	MaxChunk = 64 * 1024

	// Overhead is the number of bytes Encrypt adds to a chunk.
	Overhead = chacha20poly1305.Overhead

	// MaxSealedChunk is the largest chunk Decrypt accepts.
	MaxSealedChunk = MaxChunk + Overhead
)

// Role selects which directional key seals.
type Role uint8

const (
	Initiator Role = iota + 1
	Responder
)

func (r Role) String() string {
	switch r {
	case Initiator:
		return "initiator"
	case Responder:
		return "responder"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

const (
	labelC2S = "client-to-server"
	labelS2C = "server-to-client"
)

var errChunkTooLarge = errors.New("chunk exceeds maximum size")

// direction is one half of the cipher. It is only ever touched by the
// goroutine that drives that direction of the relay.
type direction struct {
	aead  cipher.AEAD
	ad    []byte
	nonce counter
	buf   [chacha20poly1305.NonceSize]byte
}

// Cipher is the session cipher for one relay pair.
type Cipher struct {
	send direction
	recv direction
}

// New derives the directional keys from sessionKey. The session key itself
// is not retained.
func New(sessionKey []byte, role Role) (*Cipher, error) {
	if len(sessionKey) != KeySize {
		return nil, fmt.Errorf("session key must be %d bytes, got %d", KeySize, len(sessionKey))
	}
	var sendLabel, recvLabel string
	switch role {
	case Initiator:
		sendLabel, recvLabel = labelC2S, labelS2C
	case Responder:
		sendLabel, recvLabel = labelS2C, labelC2S
	default:
		return nil, fmt.Errorf("unknown role %v", role)
	}

	send, err := newDirection(sessionKey, sendLabel)
	if err != nil {
		return nil, err
	}
	recv, err := newDirection(sessionKey, recvLabel)
	if err != nil {
		return nil, err
	}
	return &Cipher{send: send, recv: recv}, nil
}

func newDirection(sessionKey []byte, label string) (direction, error) {
	key, err := crypto.DeriveKey(sessionKey, nil, label, chacha20poly1305.KeySize)
	if err != nil {
		return direction{}, err
	}
	defer crypto.Wipe(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return direction{}, err
	}
	return direction{aead: aead, ad: []byte(label)}, nil
}

// Encrypt seals one chunk of at most MaxChunk bytes. The result is
// len(plain)+Overhead bytes long. plain is not modified.
func (c *Cipher) Encrypt(plain []byte) ([]byte, error) {
	if len(plain) > MaxChunk {
		return nil, errChunkTooLarge
	}
	d := &c.send
	if err := d.nonce.increment(); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(plain)+Overhead)
	return d.aead.Seal(out, d.nonce.encode(&d.buf), plain, d.ad), nil
}

// Decrypt opens the next chunk sealed by the peer. Chunks that are corrupt,
// out of order or split differently from how they were sealed fail with
// domain.ErrDecryption.
func (c *Cipher) Decrypt(chunk []byte) ([]byte, error) {
	if len(chunk) < Overhead || len(chunk) > MaxSealedChunk {
		return nil, fmt.Errorf("%w: chunk of %d bytes", domain.ErrDecryption, len(chunk))
	}
	d := &c.recv
	next := d.nonce
	if err := next.increment(); err != nil {
		return nil, err
	}
	plain, err := d.aead.Open(nil, next.encode(&d.buf), chunk, d.ad)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk does not authenticate", domain.ErrDecryption)
	}
	d.nonce = next
	return plain, nil
}

var _ domain.Cipher = (*Cipher)(nil)
