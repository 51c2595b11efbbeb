package handshake

import (
	"context"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/x509"
	"encoding"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"time"

	"portfwd/internal/crypto"
	"portfwd/internal/domain"
	"portfwd/internal/protocol/sessioncipher"
)

// ClientConfig holds what the initiator needs to run one handshake.
type ClientConfig struct {
	// Certificate is the client certificate presented in ClientHello.
	Certificate *x509.Certificate
	// CA verifies the server certificate.
	CA *x509.Certificate
	// Secret is the key-wrap secret shared with the server.
	Secret []byte
	// Target is the destination the server should forward to.
	Target domain.Target
	Suite  domain.CryptoSuite
	// Timeout bounds each round trip. Zero disables it.
	Timeout time.Duration
	Log     *log.Logger
	// Now is used for certificate validity checks; defaults to time.Now.
	Now func() time.Time
}

func (c *ClientConfig) validate() error {
	switch {
	case c.Certificate == nil:
		return errors.New("missing client certificate")
	case c.CA == nil:
		return errors.New("missing CA certificate")
	case len(c.Secret) == 0:
		return errors.New("missing key-wrap secret")
	case c.Suite == nil:
		return errors.New("missing crypto suite")
	}
	return c.Target.Validate()
}

// Client is the initiator state machine. It drives a caller-owned
// connection and is single use: once Run returns, the engine is spent.
type Client struct {
	conn net.Conn
	cfg  ClientConfig
	log  *log.Logger

	state      State
	transcript *transcript
}

// NewClient binds a handshake engine to conn.
func NewClient(conn net.Conn, cfg ClientConfig) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("handshake client: %w", err)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	lg := cfg.Log
	if lg == nil {
		lg = log.New(io.Discard, "", 0)
	}
	return &Client{conn: conn, cfg: cfg, log: lg, transcript: newTranscript()}, nil
}

// State reports the current state of the engine.
func (c *Client) State() State { return c.state }

// Run performs the three round trips and returns the negotiated session.
// Remote in the returned session is the relay endpoint named by the server.
// Every failure is an *Error matching domain.ErrHandshake.
func (c *Client) Run(ctx context.Context) (domain.Session, error) {
	if c.state != Idle {
		return domain.Session{}, &Error{State: c.state, Err: errEngineUsed}
	}
	stop := abortOnCancel(ctx, c.conn)
	defer stop()

	sess, err := c.run(ctx)
	if err != nil {
		e := &Error{State: c.state, Err: err}
		c.state = Failed
		return domain.Session{}, e
	}
	return sess, nil
}

func (c *Client) run(ctx context.Context) (domain.Session, error) {
	// Phase 1: identities, nonces and ephemeral keys.
	ephPriv, ephPub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.Session{}, err
	}
	defer crypto.Wipe(ephPriv[:])

	hello := ClientHello{Certificate: c.cfg.Certificate.Raw, Ephemeral: ephPub}
	if _, err := rand.Read(hello.Nonce[:]); err != nil {
		return domain.Session{}, err
	}
	payload, th, err := c.roundTrip(ctx, typeClientHello, &hello, HelloSent, typeServerHello)
	if err != nil {
		return domain.Session{}, err
	}
	var sh ServerHello
	if err := sh.UnmarshalBinary(payload); err != nil {
		return domain.Session{}, err
	}
	if sh.Nonce.IsZero() || sh.Nonce == hello.Nonce {
		return domain.Session{}, fmt.Errorf("%w: server nonce is zero or reflected", errFreshness)
	}
	if sh.Ephemeral == hello.Ephemeral {
		return domain.Session{}, fmt.Errorf("%w: server ephemeral key is reflected", errFreshness)
	}
	serverCert, err := x509.ParseCertificate(sh.Certificate)
	if err != nil {
		return domain.Session{}, fmt.Errorf("server certificate: %w", err)
	}
	serverKey, err := crypto.VerifyCertificate(serverCert, c.cfg.CA, c.cfg.Now(), x509.ExtKeyUsageServerAuth)
	if err != nil {
		return domain.Session{}, fmt.Errorf("server certificate: %w", err)
	}
	body, err := sh.signedBody()
	if err != nil {
		return domain.Session{}, err
	}
	if !c.cfg.Suite.Verify(serverKey, bound(labelServerHello, th, body), sh.Signature) {
		return domain.Session{}, fmt.Errorf("ServerHello: %w", errSignature)
	}
	c.state = HelloAcked
	c.log.Printf("handshake: server %q verified (fingerprint %s)", serverCert.Subject.CommonName, crypto.Fingerprint(serverCert.Raw))

	// Phase 2: destination request and wrapped key material.
	keys, err := deriveClientKeys(c.cfg.Secret, c.cfg.Certificate)
	if err != nil {
		return domain.Session{}, err
	}
	defer keys.wipe()

	km, relayTarget, err := c.forward(ctx, keys, serverKey)
	if err != nil {
		return domain.Session{}, err
	}
	defer crypto.Wipe(km)
	c.state = KeyReceived

	// Phase 3: session key derivation and confirmation.
	shared, err := crypto.DH(ephPriv, sh.Ephemeral)
	if err != nil {
		return domain.Session{}, err
	}
	defer crypto.Wipe(shared[:])
	th = c.transcript.sum()
	sched, err := deriveSchedule(shared, km, th)
	if err != nil {
		return domain.Session{}, err
	}
	defer sched.wipe()

	cipher, err := sessioncipher.New(sched.session, sessioncipher.Initiator)
	if err != nil {
		return domain.Session{}, err
	}
	fin := Finish{Confirm: confirm(sched.clientConfirm, labelClientFinished, th)}
	payload, th, err = c.roundTrip(ctx, typeFinish, &fin, KeyReceived, typeFinishAck)
	if err != nil {
		return domain.Session{}, err
	}
	var ack FinishAck
	if err := ack.UnmarshalBinary(payload); err != nil {
		return domain.Session{}, err
	}
	if !hmac.Equal(ack.Confirm, confirm(sched.serverConfirm, labelServerFinished, th)) {
		return domain.Session{}, errConfirm
	}
	c.state = Confirmed

	sess := domain.Session{ID: sched.id, Remote: relayTarget, Cipher: cipher}
	c.log.Printf("handshake: session %s confirmed, relay at %s", sess.ID, relayTarget)
	return sess, nil
}

// forward sends the sealed destination and returns the unwrapped key
// material and the relay endpoint.
func (c *Client) forward(ctx context.Context, keys clientKeys, serverKey ed25519.PublicKey) ([]byte, domain.Target, error) {
	plain, err := encodeTarget(c.cfg.Target)
	if err != nil {
		return nil, domain.Target{}, err
	}
	sealed, err := c.cfg.Suite.Encrypt(keys.request, plain, bound(labelForwardRequest, c.transcript.sum(), nil))
	if err != nil {
		return nil, domain.Target{}, err
	}
	req := ForwardRequest{Sealed: sealed}
	payload, th, err := c.roundTrip(ctx, typeForwardRequest, &req, ForwardSent, typeForwardResponse)
	if err != nil {
		return nil, domain.Target{}, err
	}
	var resp ForwardResponse
	if err := resp.UnmarshalBinary(payload); err != nil {
		return nil, domain.Target{}, err
	}
	body, err := resp.signedBody()
	if err != nil {
		return nil, domain.Target{}, err
	}
	if !c.cfg.Suite.Verify(serverKey, bound(labelForwardResponse, th, body), resp.Signature) {
		return nil, domain.Target{}, fmt.Errorf("ForwardResponse: %w", errSignature)
	}
	if err := resp.Relay.Validate(); err != nil {
		return nil, domain.Target{}, fmt.Errorf("ForwardResponse: %w: relay %v", errMalformed, err)
	}
	km, err := c.cfg.Suite.UnwrapKey(keys.wrap, resp.WrappedKey, bound(labelKeyWrap, th, nil))
	if err != nil {
		return nil, domain.Target{}, fmt.Errorf("%w: %v", errKeyMaterial, err)
	}
	if len(km) != keyMaterialLength {
		crypto.Wipe(km)
		return nil, domain.Target{}, fmt.Errorf("%w: %d bytes of key material", errMalformed, len(km))
	}
	return km, resp.Relay, nil
}

// roundTrip writes one request, moves to sent, and reads the reply. It
// returns the reply payload and the transcript digest before the reply was
// added. An Alert from the server is returned as the error.
func (c *Client) roundTrip(ctx context.Context, typ recordType, msg encoding.BinaryMarshaler, sent State, want recordType) ([]byte, []byte, error) {
	payload, err := msg.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	if err := c.conn.SetDeadline(deadlineFor(time.Now(), c.cfg.Timeout)); err != nil {
		return nil, nil, ioError(ctx, err, c.cfg.Timeout)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("aborted: %w", err)
	}
	raw, err := writeRecord(c.conn, typ, payload)
	if err != nil {
		return nil, nil, ioError(ctx, err, c.cfg.Timeout)
	}
	c.transcript.add(raw)
	c.state = sent

	rtyp, rpayload, rraw, err := readRecord(c.conn)
	if err != nil {
		if errors.Is(err, errMalformed) || errors.Is(err, errVersion) {
			return nil, nil, err
		}
		return nil, nil, ioError(ctx, err, c.cfg.Timeout)
	}
	if rtyp == typeAlert {
		var a Alert
		if err := a.UnmarshalBinary(rpayload); err != nil {
			return nil, nil, err
		}
		return nil, nil, &a
	}
	if rtyp != want {
		return nil, nil, fmt.Errorf("%w: got %s, want %s", errUnexpected, rtyp, want)
	}
	th := c.transcript.sum()
	c.transcript.add(rraw)
	return rpayload, th, nil
}
