// Package relay moves bytes between a plaintext connection and a sealed one
// under a session cipher.
//
// Each pair runs two goroutines. The seal loop reads the plain side, encrypts
// each read as one chunk and writes it to the sealed side as a frame:
//
//	length u32 | sealed chunk
//
// The open loop reads frames from the sealed side, decrypts them and writes
// the plaintext out. Whichever loop stops first closes both connections, so
// neither can block forever once its peer is gone.
//
// Forward is the client entry (plain side accepted locally, sealed side
// dialled). Serve is the server entry (sealed side accepted, plain side
// dialled to the destination).
package relay
