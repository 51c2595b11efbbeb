package domain

import "errors"

// Error taxonomy. Components wrap these with fmt.Errorf("...: %w", ...) and
// callers match them with errors.Is.
var (
	// ErrConfiguration reports a missing or invalid option. Raised before any
	// network activity.
	ErrConfiguration = errors.New("configuration error")

	// ErrHandshake reports any handshake failure: I/O, malformed message,
	// certificate or signature validation, freshness, unexpected message.
	ErrHandshake = errors.New("handshake failed")

	// ErrHandshakeTimeout reports an expired round trip. It is always
	// returned together with ErrHandshake.
	ErrHandshakeTimeout = errors.New("handshake timeout")

	// ErrConnect reports that the outbound relay connection could not be
	// established.
	ErrConnect = errors.New("connect failed")

	// ErrDecryption reports a relay chunk that does not authenticate.
	ErrDecryption = errors.New("decryption failed")

	// ErrIO reports a socket failure during relay.
	ErrIO = errors.New("relay i/o error")
)
