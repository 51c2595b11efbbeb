// Package main runs the forward server: the rendezvous endpoint that
// answers forwardclient handshakes and relays each session to the
// destination the client asked for.
//
// Options
//
//	--handshakehost    bind host for the handshake listener (all interfaces)
//	--handshakeport    handshake port (2206)
//	--relayhost        host relay listeners bind and advertise (handshake
//	                   host; required when that is empty)
//	--usercert         server certificate, PEM
//	--cacert           CA certificate that issued client and server certificates
//	--key              server Ed25519 private key, PKCS#8 PEM
//	--secret           key-wrap secret of the one client named by --clientcert
//	--clientcert       certificate the --secret is pinned to
//	--secrets          JSON registry of per-client secrets by certificate fingerprint
//	--passphrase       unlocks sealed secret files
//	--handshaketimeout per round-trip timeout (10s)
//	--accepttimeout    wait for the relay connection (30s)
//
// Each relay listener is one-shot: it accepts a single connection and is
// closed afterwards, or when the accept timeout expires.
package main
