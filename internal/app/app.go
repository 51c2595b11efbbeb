package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"

	"portfwd/internal/domain"
	"portfwd/internal/relay"
	"portfwd/internal/services/session"
)

// App runs one forwarding session per Run: handshake, local listener, one
// accepted connection, relay.
type App struct {
	Sessions *session.Service
	Relay    *relay.Engine
	Log      *log.Logger
	// Out receives the user-facing lines naming the target and the local
	// listening address.
	Out io.Writer
	// OnListen, when set, is called once the local listener is bound.
	OnListen func(net.Addr)
}

// New builds an App from its collaborators.
func New(sessions *session.Service, engine *relay.Engine, lg *log.Logger, out io.Writer) *App {
	if lg == nil {
		lg = log.New(io.Discard, "", 0)
	}
	if out == nil {
		out = io.Discard
	}
	return &App{Sessions: sessions, Relay: engine, Log: lg, Out: out}
}

// Run establishes a session for cfg, listens on cfg.ListenHost, relays the
// first connection that arrives and returns when that relay ends.
//
// No listener is opened unless the handshake succeeds.
func (a *App) Run(ctx context.Context, cfg Config) error {
	sess, err := a.Sessions.Establish(ctx, session.Request{
		Rendezvous:   cfg.Handshake,
		Target:       cfg.Target,
		UserCertPath: cfg.UserCert,
		CACertPath:   cfg.CACert,
		KeyPath:      cfg.Key,
		Passphrase:   cfg.Passphrase,
		Timeout:      cfg.HandshakeTimeout,
	})
	if err != nil {
		return err
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(cfg.ListenHost, "0"))
	if err != nil {
		return fmt.Errorf("%w: listen on %s: %v", domain.ErrIO, cfg.ListenHost, err)
	}
	fmt.Fprintf(a.Out, "Client forwarder to target %s\n", cfg.Target)
	fmt.Fprintf(a.Out, "Waiting for incoming connections at %s\n", ln.Addr())
	if a.OnListen != nil {
		a.OnListen(ln.Addr())
	}

	conn, err := acceptOne(ctx, ln)
	if err != nil {
		return err
	}
	a.Log.Printf("session %s: accepted %s, relaying via %s", sess.ID, conn.RemoteAddr(), sess.Remote)
	if err := a.Relay.Forward(ctx, conn, sess.Remote, sess.Cipher); err != nil {
		a.Log.Printf("session %s: %v", sess.ID, err)
		return err
	}
	a.Log.Printf("session %s: closed", sess.ID)
	return nil
}

// acceptOne returns the first connection on ln and closes ln.
func acceptOne(ctx context.Context, ln net.Listener) (net.Conn, error) {
	defer ln.Close()
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: accept: %v", domain.ErrIO, err)
	}
	return conn, nil
}
