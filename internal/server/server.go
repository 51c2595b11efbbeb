package server

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"portfwd/internal/domain"
	"portfwd/internal/protocol/handshake"
	"portfwd/internal/relay"
)

// DefaultAcceptTimeout bounds how long a relay listener waits for its client.
const DefaultAcceptTimeout = 30 * time.Second

// Config holds the server wiring.
type Config struct {
	// Handshake configures the responder for every connection.
	Handshake handshake.ServerConfig
	// RelayHost is bound for relay listeners and advertised to clients.
	RelayHost string
	// AcceptTimeout bounds the wait for the relay connection.
	AcceptTimeout time.Duration
	Relay         *relay.Engine
	Log           *log.Logger
}

// Server answers handshakes and relays the resulting sessions.
type Server struct {
	cfg Config
	log *log.Logger
	wg  sync.WaitGroup
}

// New validates cfg and returns a Server.
func New(cfg Config) (*Server, error) {
	if cfg.RelayHost == "" {
		return nil, fmt.Errorf("%w: empty relay host", domain.ErrConfiguration)
	}
	if cfg.AcceptTimeout <= 0 {
		cfg.AcceptTimeout = DefaultAcceptTimeout
	}
	if cfg.Relay == nil {
		cfg.Relay = &relay.Engine{Log: cfg.Log}
	}
	lg := cfg.Log
	if lg == nil {
		lg = log.New(io.Discard, "", 0)
	}
	if cfg.Handshake.Log == nil {
		cfg.Handshake.Log = lg
	}
	return &Server{cfg: cfg, log: lg}, nil
}

// Serve accepts handshake connections on ln until ctx is cancelled or ln
// fails. It closes ln and waits for in-flight sessions before returning.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer s.wg.Wait()

	s.log.Printf("server: handshake listener on %s, relays on %s", ln.Addr(), s.cfg.RelayHost)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.handle(ctx, conn); err != nil {
				s.log.Printf("server: %s: %v", conn.RemoteAddr(), err)
			}
		}()
	}
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// handle runs one handshake and, when it succeeds, the relay it set up.
func (s *Server) handle(ctx context.Context, conn net.Conn) error {
	var relayLn net.Listener
	negotiate := func(ctx context.Context, client *x509.Certificate, target domain.Target) (domain.Target, error) {
		var lc net.ListenConfig
		ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(s.cfg.RelayHost, "0"))
		if err != nil {
			return domain.Target{}, err
		}
		_, port, err := net.SplitHostPort(ln.Addr().String())
		if err != nil {
			ln.Close()
			return domain.Target{}, err
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			ln.Close()
			return domain.Target{}, err
		}
		relayLn = ln
		return domain.Target{Host: s.cfg.RelayHost, Port: p}, nil
	}

	hs, err := handshake.NewServer(conn, s.cfg.Handshake)
	if err != nil {
		conn.Close()
		return err
	}
	res, err := hs.Handshake(ctx, negotiate)
	conn.Close()
	if err != nil {
		if relayLn != nil {
			relayLn.Close()
		}
		return err
	}

	sealed, err := s.acceptOne(ctx, relayLn)
	if err != nil {
		return fmt.Errorf("session %s: %w", res.Session.ID, err)
	}
	s.log.Printf("server: session %s relaying %s to %s", res.Session.ID, sealed.RemoteAddr(), res.Session.Remote)
	if err := s.cfg.Relay.Serve(ctx, sealed, res.Session.Remote, res.Session.Cipher); err != nil {
		return fmt.Errorf("session %s: %w", res.Session.ID, err)
	}
	s.log.Printf("server: session %s closed", res.Session.ID)
	return nil
}

// acceptOne takes the single relay connection and closes ln.
func (s *Server) acceptOne(ctx context.Context, ln net.Listener) (net.Conn, error) {
	defer ln.Close()
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	if dl, ok := ln.(interface{ SetDeadline(time.Time) error }); ok {
		if err := dl.SetDeadline(time.Now().Add(s.cfg.AcceptTimeout)); err != nil {
			return nil, err
		}
	}
	conn, err := ln.Accept()
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, fmt.Errorf("%w: no relay connection within %s", domain.ErrConnect, s.cfg.AcceptTimeout)
		}
		return nil, fmt.Errorf("%w: accept relay: %v", domain.ErrConnect, err)
	}
	return conn, nil
}
