package handshake

import (
	"crypto/ed25519"
	"fmt"

	"portfwd/internal/domain"
)

const (
	nonceLength     = 32
	publicKeyLength = 32
	signatureLength = ed25519.SignatureSize
	confirmLength   = 32
)

// ClientHello opens the exchange: the client certificate, a fresh nonce and
// an ephemeral X25519 public key.
type ClientHello struct {
	Certificate []byte
	Nonce       domain.Nonce
	Ephemeral   domain.X25519Public
}

func (m *ClientHello) MarshalBinary() ([]byte, error) {
	var e encoder
	e.bytes(m.Certificate)
	e.bytes(m.Nonce[:])
	e.bytes(m.Ephemeral[:])
	return e.result()
}

func (m *ClientHello) UnmarshalBinary(data []byte) error {
	d := decoder{buf: data}
	m.Certificate = d.bytes()
	copy(m.Nonce[:], d.fixed(nonceLength))
	copy(m.Ephemeral[:], d.fixed(publicKeyLength))
	if err := d.finish(); err != nil {
		return fmt.Errorf("ClientHello: %w", err)
	}
	if len(m.Certificate) == 0 {
		return fmt.Errorf("ClientHello: %w: empty certificate", errMalformed)
	}
	return nil
}

// ServerHello answers ClientHello with the server certificate, nonce and
// ephemeral key, signed over the transcript.
type ServerHello struct {
	Certificate []byte
	Nonce       domain.Nonce
	Ephemeral   domain.X25519Public
	Signature   []byte
}

func (m *ServerHello) signedBody() ([]byte, error) {
	var e encoder
	e.bytes(m.Certificate)
	e.bytes(m.Nonce[:])
	e.bytes(m.Ephemeral[:])
	return e.result()
}

func (m *ServerHello) MarshalBinary() ([]byte, error) {
	if len(m.Signature) != signatureLength {
		return nil, fmt.Errorf("ServerHello: invalid signature length %d", len(m.Signature))
	}
	body, err := m.signedBody()
	if err != nil {
		return nil, err
	}
	e := encoder{buf: body}
	e.bytes(m.Signature)
	return e.result()
}

func (m *ServerHello) UnmarshalBinary(data []byte) error {
	d := decoder{buf: data}
	m.Certificate = d.bytes()
	copy(m.Nonce[:], d.fixed(nonceLength))
	copy(m.Ephemeral[:], d.fixed(publicKeyLength))
	m.Signature = d.fixed(signatureLength)
	if err := d.finish(); err != nil {
		return fmt.Errorf("ServerHello: %w", err)
	}
	if len(m.Certificate) == 0 {
		return fmt.Errorf("ServerHello: %w: empty certificate", errMalformed)
	}
	return nil
}

// ForwardRequest carries the requested target, sealed under a key derived
// from the client's key-wrap secret with the transcript as additional data.
type ForwardRequest struct {
	Sealed []byte
}

func (m *ForwardRequest) MarshalBinary() ([]byte, error) {
	var e encoder
	e.bytes(m.Sealed)
	return e.result()
}

func (m *ForwardRequest) UnmarshalBinary(data []byte) error {
	d := decoder{buf: data}
	m.Sealed = d.bytes()
	if err := d.finish(); err != nil {
		return fmt.Errorf("ForwardRequest: %w", err)
	}
	return nil
}

// ForwardResponse names the relay endpoint and carries the wrapped session
// key material, signed over the transcript.
type ForwardResponse struct {
	Relay      domain.Target
	WrappedKey []byte
	Signature  []byte
}

func (m *ForwardResponse) signedBody() ([]byte, error) {
	var e encoder
	e.string(m.Relay.Host)
	e.uint16(uint16(m.Relay.Port))
	e.bytes(m.WrappedKey)
	return e.result()
}

func (m *ForwardResponse) MarshalBinary() ([]byte, error) {
	if err := m.Relay.Validate(); err != nil {
		return nil, fmt.Errorf("ForwardResponse: relay %w", err)
	}
	if len(m.Signature) != signatureLength {
		return nil, fmt.Errorf("ForwardResponse: invalid signature length %d", len(m.Signature))
	}
	body, err := m.signedBody()
	if err != nil {
		return nil, err
	}
	e := encoder{buf: body}
	e.bytes(m.Signature)
	return e.result()
}

func (m *ForwardResponse) UnmarshalBinary(data []byte) error {
	d := decoder{buf: data}
	m.Relay.Host = d.string()
	m.Relay.Port = int(d.uint16())
	m.WrappedKey = d.bytes()
	m.Signature = d.fixed(signatureLength)
	if err := d.finish(); err != nil {
		return fmt.Errorf("ForwardResponse: %w", err)
	}
	return nil
}

// Finish proves the client derived the session key.
type Finish struct {
	Confirm []byte
}

func (m *Finish) MarshalBinary() ([]byte, error) {
	var e encoder
	e.bytes(m.Confirm)
	return e.result()
}

func (m *Finish) UnmarshalBinary(data []byte) error {
	d := decoder{buf: data}
	m.Confirm = d.fixed(confirmLength)
	if err := d.finish(); err != nil {
		return fmt.Errorf("Finish: %w", err)
	}
	return nil
}

// FinishAck proves the server derived the same session key.
type FinishAck struct {
	Confirm []byte
}

func (m *FinishAck) MarshalBinary() ([]byte, error) {
	var e encoder
	e.bytes(m.Confirm)
	return e.result()
}

func (m *FinishAck) UnmarshalBinary(data []byte) error {
	d := decoder{buf: data}
	m.Confirm = d.fixed(confirmLength)
	if err := d.finish(); err != nil {
		return fmt.Errorf("FinishAck: %w", err)
	}
	return nil
}

// encodeTarget is the plaintext sealed inside ForwardRequest.
func encodeTarget(t domain.Target) ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	var e encoder
	e.string(t.Host)
	e.uint16(uint16(t.Port))
	return e.result()
}

func decodeTarget(b []byte) (domain.Target, error) {
	d := decoder{buf: b}
	t := domain.Target{Host: d.string()}
	t.Port = int(d.uint16())
	if err := d.finish(); err != nil {
		return domain.Target{}, err
	}
	if err := t.Validate(); err != nil {
		return domain.Target{}, fmt.Errorf("%w: target %v", errMalformed, err)
	}
	return t, nil
}
