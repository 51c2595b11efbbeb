// Package store loads the credentials portfwd needs from disk.
//
// Files
//
//   - Certificates: PEM "CERTIFICATE" blocks (DER accepted as a fallback).
//   - Private keys: PKCS#8 PEM "PRIVATE KEY" blocks holding Ed25519 keys.
//   - Key-wrap secrets: either raw bytes (at least MinSecretBytes after
//     trimming surrounding whitespace) or a sealed JSON envelope protected by a
//     passphrase (scrypt + ChaCha20-Poly1305), produced by SealSecretFile.
//   - Secret registry: JSON mapping client certificate fingerprints to secret
//     files, used by the forward server to pick the secret for a client.
//
// # Errors
//
// Every error names the file involved. ErrWrongPassphrase is returned when a
// sealed secret cannot be opened.
package store
