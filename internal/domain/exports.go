package domain

import (
	interfaces "portfwd/internal/domain/interfaces"
	types "portfwd/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	Target        = types.Target
	Session       = types.Session
	SessionID     = types.SessionID
	Cipher        = types.Cipher
	Nonce         = types.Nonce
	X25519Public  = types.X25519Public
	X25519Private = types.X25519Private
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	CryptoSuite    = interfaces.CryptoSuite
	SecretResolver = interfaces.SecretResolver
	Dialer         = interfaces.Dialer
)

// ParseTarget builds a Target from a host and a decimal port string.
func ParseTarget(host, port string) (Target, error) { return types.ParseTarget(host, port) }
