// Package crypto exposes the primitives used by portfwd.
//
// Contents
//
//   - X25519 key generation, clamping and Diffie-Hellman (GenerateX25519, DH)
//   - Ed25519 signing and verification (SignEd25519, VerifyEd25519)
//   - ChaCha20-Poly1305 sealing with a random nonce prefix (Seal, Open)
//   - HKDF-SHA256 key derivation (DeriveKey)
//   - Certificate chain checks against a single CA (VerifyCertificate)
//   - Suite, the concrete domain.CryptoSuite the handshake engine uses
//   - Best-effort memory wiping for sensitive byte slices (Wipe)
//   - Short fingerprints for display/logging (Fingerprint)
//
// # Notes
//
// Callers should treat returned secrets as sensitive and rely on Wipe when
// practical to reduce lifetime in memory.
package crypto
