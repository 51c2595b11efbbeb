// Package sessioncipher turns a handshake session key into the chunk cipher
// used by the relay.
//
// # Keys
//
// Two directional ChaCha20-Poly1305 keys are expanded from the 32-byte
// session key with HKDF-SHA256 ("client-to-server", "server-to-client").
// The Role decides which one seals: the initiator (client) seals with
// client-to-server and opens with server-to-client, the responder the other
// way round. A cipher therefore never opens its own output; a chunk sealed by
// an Initiator is opened by the matching Responder.
//
// # Nonces
//
// Each direction keeps its own 96-bit counter, starting at one and
// incremented per chunk, so the two relay goroutines share no mutable state.
// Chunks must be opened in the order they were sealed and with the same
// boundaries; anything else fails with domain.ErrDecryption.
//
// # Additional data
//
// The direction label is authenticated with every chunk, so a chunk cannot be
// reflected back to its sender.
package sessioncipher
