package sessioncipher

import (
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

var errNonceOverflow = errors.New("nonce overflow: maximum number of chunks reached")

// counter is a 96-bit big-endian chunk counter.
type counter struct {
	low  uint64
	high uint32
}

func (n *counter) increment() error {
	if n.high == ^uint32(0) && n.low == ^uint64(0) {
		return errNonceOverflow
	}
	if n.low == ^uint64(0) {
		n.high++
		n.low = 0
	} else {
		n.low++
	}
	return nil
}

func (n *counter) encode(buf *[chacha20poly1305.NonceSize]byte) []byte {
	binary.BigEndian.PutUint32(buf[:4], n.high)
	binary.BigEndian.PutUint64(buf[4:], n.low)
	return buf[:]
}
