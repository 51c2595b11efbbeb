// Package handshake implements the three round trip key exchange that
// precedes every forwarded connection.
//
// All records share one frame:
//
//	version u8 | type u8 | length u32 | payload
//
// Payload fields are u16 length-prefixed byte strings; ports are u16. Both
// sides keep a SHA-256 transcript over every raw record, and every
// signature, MAC and AEAD input is label || transcript || body.
//
//	client                                   server
//	ClientHello{cert, nonce, eph}    ->
//	                                 <-  ServerHello{cert, nonce, eph, sig}
//	ForwardRequest{seal(target)}     ->
//	                                 <-  ForwardResponse{relay, wrap(km), sig}
//	Finish{mac}                      ->
//	                                 <-  FinishAck{mac}
//
// The server may answer any request with an Alert instead. The session key
// is HKDF(X25519(eph, eph') || km) salted with the transcript; the Finish
// MACs prove both sides hold it before any payload moves.
package handshake
