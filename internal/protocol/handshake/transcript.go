package handshake

import (
	"crypto/sha256"
	"hash"
)

// transcript is a running SHA-256 over every raw record exchanged, in order.
type transcript struct {
	h hash.Hash
}

func newTranscript() *transcript { return &transcript{h: sha256.New()} }

func (t *transcript) add(raw []byte) { t.h.Write(raw) }

// sum returns the digest so far without finalising the running hash.
func (t *transcript) sum() []byte { return t.h.Sum(nil) }
