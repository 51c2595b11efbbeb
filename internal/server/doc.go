// Package server is the rendezvous endpoint that forward clients handshake
// with.
//
// For every handshake connection it:
//
//   - answers the handshake as responder,
//   - binds a one-shot relay listener on the advertised relay host and names
//     it in ForwardResponse,
//   - accepts exactly one connection there, bounded by the accept timeout,
//   - dials the requested destination and relays the pair.
//
// Handshake connections are handled concurrently, one goroutine each.
package server
