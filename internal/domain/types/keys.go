package types

// X25519Public is a Curve25519 public key.
type X25519Public [32]byte

// Slice returns the key as a []byte.
func (p X25519Public) Slice() []byte { return p[:] }

// X25519Private is a Curve25519 private key.
type X25519Private [32]byte

// Slice returns the key as a []byte.
func (k X25519Private) Slice() []byte { return k[:] }

// Nonce is a 32-byte freshness token used once per handshake.
type Nonce [32]byte

// IsZero reports whether the nonce is all zero bytes.
func (n Nonce) IsZero() bool { return n == Nonce{} }
