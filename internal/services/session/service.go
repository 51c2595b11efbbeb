package session

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"time"

	"portfwd/internal/domain"
	"portfwd/internal/protocol/handshake"
	"portfwd/internal/store"
)

// Request names everything one handshake needs.
type Request struct {
	// Rendezvous is where the handshake connection is opened.
	Rendezvous domain.Target
	// Target is the destination the server should forward to.
	Target domain.Target

	UserCertPath string
	CACertPath   string
	KeyPath      string
	Passphrase   string

	// Timeout bounds the dial and each handshake round trip.
	Timeout time.Duration
}

// Service establishes sessions with a forward server.
type Service struct {
	suite  domain.CryptoSuite
	dialer domain.Dialer
	log    *log.Logger
}

// New constructs a session Service. A nil dialer uses net.Dialer and a nil
// logger discards output.
func New(suite domain.CryptoSuite, dialer domain.Dialer, lg *log.Logger) *Service {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	if lg == nil {
		lg = log.New(io.Discard, "", 0)
	}
	return &Service{suite: suite, dialer: dialer, log: lg}
}

// Establish runs one handshake and returns the negotiated session.
//
// Steps:
//  1. Load the client certificate, the CA certificate and the key-wrap
//     secret. Failures here match domain.ErrConfiguration.
//  2. Dial the rendezvous endpoint.
//  3. Run the handshake engine as initiator.
//  4. Close the handshake connection, whatever the outcome.
//
// Network and protocol failures match domain.ErrHandshake.
func (s *Service) Establish(ctx context.Context, req Request) (domain.Session, error) {
	creds, err := store.LoadClientCredentials(req.UserCertPath, req.CACertPath, req.KeyPath, req.Passphrase)
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}

	dialCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	s.log.Printf("handshake: connecting to %s", req.Rendezvous)
	conn, err := s.dialer.DialContext(dialCtx, "tcp", req.Rendezvous.String())
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: dial %s: %v", domain.ErrHandshake, req.Rendezvous, err)
	}
	defer conn.Close()

	engine, err := handshake.NewClient(conn, handshake.ClientConfig{
		Certificate: creds.Certificate,
		CA:          creds.CA,
		Secret:      creds.Secret,
		Target:      req.Target,
		Suite:       s.suite,
		Timeout:     req.Timeout,
		Log:         s.log,
	})
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	sess, err := engine.Run(ctx)
	if err != nil {
		s.log.Printf("handshake: %v", err)
		return domain.Session{}, err
	}
	return sess, nil
}
