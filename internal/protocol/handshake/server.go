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

// ServerConfig holds what the responder needs to answer handshakes.
type ServerConfig struct {
	Certificate *x509.Certificate
	PrivateKey  ed25519.PrivateKey
	// CA verifies client certificates.
	CA *x509.Certificate
	// Secrets maps a verified client certificate to its key-wrap secret.
	Secrets domain.SecretResolver
	Suite   domain.CryptoSuite
	Timeout time.Duration
	Log     *log.Logger
	Now     func() time.Time
}

func (c *ServerConfig) validate() error {
	switch {
	case c.Certificate == nil:
		return errors.New("missing server certificate")
	case len(c.PrivateKey) != ed25519.PrivateKeySize:
		return errors.New("missing or invalid server private key")
	case c.CA == nil:
		return errors.New("missing CA certificate")
	case c.Secrets == nil:
		return errors.New("missing secret resolver")
	case c.Suite == nil:
		return errors.New("missing crypto suite")
	}
	return nil
}

// Negotiator decides where the client's relay connection should land. It is
// called once the destination request has been authenticated; the returned
// endpoint is sent back in ForwardResponse. An error aborts the handshake
// with an unreachable alert.
type Negotiator func(ctx context.Context, client *x509.Certificate, target domain.Target) (domain.Target, error)

// Result is the responder's view of a completed handshake. Session.Remote is
// the destination the client asked for.
type Result struct {
	Session domain.Session
	Client  *x509.Certificate
}

// Server is the responder side of one handshake connection. Like Client it
// is single use and does not close conn.
type Server struct {
	conn net.Conn
	cfg  ServerConfig
	log  *log.Logger

	state      State
	transcript *transcript
}

// NewServer binds a responder to conn.
func NewServer(conn net.Conn, cfg ServerConfig) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("handshake server: %w", err)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	lg := cfg.Log
	if lg == nil {
		lg = log.New(io.Discard, "", 0)
	}
	return &Server{conn: conn, cfg: cfg, log: lg, transcript: newTranscript()}, nil
}

// alertError carries the alert to send before giving up.
type alertError struct {
	code AlertCode
	err  error
}

func (e *alertError) Error() string { return e.err.Error() }
func (e *alertError) Unwrap() error { return e.err }

func abort(code AlertCode, err error) error { return &alertError{code: code, err: err} }

// Handshake answers one client. On failure an Alert is sent where the
// protocol still allows it and an *Error is returned.
func (s *Server) Handshake(ctx context.Context, negotiate Negotiator) (Result, error) {
	if s.state != Idle {
		return Result{}, &Error{State: s.state, Err: errEngineUsed}
	}
	if negotiate == nil {
		return Result{}, &Error{State: s.state, Err: errors.New("nil negotiator")}
	}
	stop := abortOnCancel(ctx, s.conn)
	defer stop()

	res, err := s.run(ctx, negotiate)
	if err != nil {
		var ae *alertError
		if errors.As(err, &ae) {
			_ = s.conn.SetWriteDeadline(deadlineFor(time.Now(), s.cfg.Timeout))
			sendAlert(s.conn, ae.code, ae.err.Error())
		}
		e := &Error{State: s.state, Err: err}
		s.state = Failed
		return Result{}, e
	}
	return res, nil
}

func (s *Server) run(ctx context.Context, negotiate Negotiator) (Result, error) {
	// Phase 1.
	payload, err := s.expect(ctx, typeClientHello)
	if err != nil {
		return Result{}, err
	}
	var ch ClientHello
	if err := ch.UnmarshalBinary(payload); err != nil {
		return Result{}, abort(AlertDecodeError, err)
	}
	if ch.Nonce.IsZero() {
		return Result{}, abort(AlertDecodeError, fmt.Errorf("%w: zero client nonce", errFreshness))
	}
	clientCert, err := x509.ParseCertificate(ch.Certificate)
	if err != nil {
		return Result{}, abort(AlertBadCertificate, fmt.Errorf("client certificate: %w", err))
	}
	if _, err := crypto.VerifyCertificate(clientCert, s.cfg.CA, s.cfg.Now(), x509.ExtKeyUsageClientAuth); err != nil {
		return Result{}, abort(AlertBadCertificate, fmt.Errorf("client certificate: %w", err))
	}
	s.state = HelloSent

	ephPriv, ephPub, err := crypto.GenerateX25519()
	if err != nil {
		return Result{}, abort(AlertInternal, err)
	}
	defer crypto.Wipe(ephPriv[:])
	sh := ServerHello{Certificate: s.cfg.Certificate.Raw, Ephemeral: ephPub}
	if _, err := rand.Read(sh.Nonce[:]); err != nil {
		return Result{}, abort(AlertInternal, err)
	}
	if err := s.sign(&sh, labelServerHello); err != nil {
		return Result{}, abort(AlertInternal, err)
	}
	if err := s.send(ctx, typeServerHello, &sh); err != nil {
		return Result{}, err
	}
	s.state = HelloAcked
	fp := crypto.Fingerprint(clientCert.Raw)
	s.log.Printf("handshake: client %q presented certificate %s", clientCert.Subject.CommonName, fp)

	// Phase 2.
	secret, err := s.cfg.Secrets.SecretFor(clientCert)
	if err != nil {
		return Result{}, abort(AlertAccessDenied, err)
	}
	keys, err := deriveClientKeys(secret, clientCert)
	if err != nil {
		return Result{}, abort(AlertInternal, err)
	}
	defer keys.wipe()

	th := s.transcript.sum()
	payload, err = s.expect(ctx, typeForwardRequest)
	if err != nil {
		return Result{}, err
	}
	var req ForwardRequest
	if err := req.UnmarshalBinary(payload); err != nil {
		return Result{}, abort(AlertDecodeError, err)
	}
	plain, err := s.cfg.Suite.Decrypt(keys.request, req.Sealed, bound(labelForwardRequest, th, nil))
	if err != nil {
		return Result{}, abort(AlertAccessDenied, errRequest)
	}
	target, err := decodeTarget(plain)
	if err != nil {
		return Result{}, abort(AlertDecodeError, err)
	}
	s.state = ForwardSent

	relayTarget, err := negotiate(ctx, clientCert, target)
	if err != nil {
		return Result{}, abort(AlertUnreachable, fmt.Errorf("negotiate %s: %w", target, err))
	}
	km := make([]byte, keyMaterialLength)
	defer crypto.Wipe(km)
	if _, err := rand.Read(km); err != nil {
		return Result{}, abort(AlertInternal, err)
	}
	th = s.transcript.sum()
	wrapped, err := s.cfg.Suite.WrapKey(keys.wrap, km, bound(labelKeyWrap, th, nil))
	if err != nil {
		return Result{}, abort(AlertInternal, err)
	}
	resp := ForwardResponse{Relay: relayTarget, WrappedKey: wrapped}
	if err := s.sign(&resp, labelForwardResponse); err != nil {
		return Result{}, abort(AlertInternal, err)
	}
	if err := s.send(ctx, typeForwardResponse, &resp); err != nil {
		return Result{}, err
	}
	s.state = KeyReceived

	// Phase 3.
	shared, err := crypto.DH(ephPriv, ch.Ephemeral)
	if err != nil {
		return Result{}, abort(AlertDecodeError, err)
	}
	defer crypto.Wipe(shared[:])
	th = s.transcript.sum()
	sched, err := deriveSchedule(shared, km, th)
	if err != nil {
		return Result{}, abort(AlertInternal, err)
	}
	defer sched.wipe()

	payload, err = s.expect(ctx, typeFinish)
	if err != nil {
		return Result{}, err
	}
	var fin Finish
	if err := fin.UnmarshalBinary(payload); err != nil {
		return Result{}, abort(AlertDecodeError, err)
	}
	if !hmac.Equal(fin.Confirm, confirm(sched.clientConfirm, labelClientFinished, th)) {
		return Result{}, abort(AlertBadFinished, errConfirm)
	}
	cipher, err := sessioncipher.New(sched.session, sessioncipher.Responder)
	if err != nil {
		return Result{}, abort(AlertInternal, err)
	}
	ack := FinishAck{Confirm: confirm(sched.serverConfirm, labelServerFinished, s.transcript.sum())}
	if err := s.send(ctx, typeFinishAck, &ack); err != nil {
		return Result{}, err
	}
	s.state = Confirmed

	sess := domain.Session{ID: sched.id, Remote: target, Cipher: cipher}
	s.log.Printf("handshake: session %s confirmed for %s, target %s", sess.ID, fp, target)
	return Result{Session: sess, Client: clientCert}, nil
}

type signable interface {
	signedBody() ([]byte, error)
}

// sign fills in the Signature of a ServerHello or ForwardResponse over the
// current transcript.
func (s *Server) sign(msg signable, label string) error {
	body, err := msg.signedBody()
	if err != nil {
		return err
	}
	sig := s.cfg.Suite.Sign(s.cfg.PrivateKey, bound(label, s.transcript.sum(), body))
	switch m := msg.(type) {
	case *ServerHello:
		m.Signature = sig
	case *ForwardResponse:
		m.Signature = sig
	default:
		return fmt.Errorf("cannot sign %T", msg)
	}
	return nil
}

// expect reads the next record, which must be of type want, and adds it to
// the transcript.
func (s *Server) expect(ctx context.Context, want recordType) ([]byte, error) {
	if err := s.conn.SetReadDeadline(deadlineFor(time.Now(), s.cfg.Timeout)); err != nil {
		return nil, ioError(ctx, err, s.cfg.Timeout)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("aborted: %w", err)
	}
	typ, payload, raw, err := readRecord(s.conn)
	if err != nil {
		if errors.Is(err, errMalformed) || errors.Is(err, errVersion) {
			return nil, abort(AlertDecodeError, err)
		}
		return nil, ioError(ctx, err, s.cfg.Timeout)
	}
	if typ == typeAlert {
		var a Alert
		if err := a.UnmarshalBinary(payload); err != nil {
			return nil, err
		}
		return nil, &a
	}
	if typ != want {
		return nil, abort(AlertUnexpectedMessage, fmt.Errorf("%w: got %s, want %s", errUnexpected, typ, want))
	}
	s.transcript.add(raw)
	return payload, nil
}

func (s *Server) send(ctx context.Context, typ recordType, msg encoding.BinaryMarshaler) error {
	payload, err := msg.MarshalBinary()
	if err != nil {
		return abort(AlertInternal, err)
	}
	if err := s.conn.SetWriteDeadline(deadlineFor(time.Now(), s.cfg.Timeout)); err != nil {
		return ioError(ctx, err, s.cfg.Timeout)
	}
	raw, err := writeRecord(s.conn, typ, payload)
	if err != nil {
		return ioError(ctx, err, s.cfg.Timeout)
	}
	s.transcript.add(raw)
	return nil
}
