// Package session runs the client side of the handshake end to end.
//
// It loads the client credentials, opens the handshake connection, drives
// the handshake engine and always closes the connection before returning.
package session
