package session_test

import (
	"context"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"golang.org/x/net/nettest"

	"portfwd/internal/crypto"
	"portfwd/internal/domain"
	"portfwd/internal/protocol/handshake"
	"portfwd/internal/services/session"
	"portfwd/internal/store"
	"portfwd/internal/testutil"
)

type env struct {
	pki    *testutil.PKI
	server testutil.Leaf
	client testutil.Leaf
	secret []byte
	req    session.Request
}

func newEnv(t *testing.T) *env {
	t.Helper()
	pki := testutil.NewPKI(t)
	client := pki.IssueClient(t, "alice")
	e := &env{pki: pki, server: pki.IssueServer(t, "rendezvous"), client: client, secret: testutil.Secret(t)}
	e.req = session.Request{
		Target:       domain.Target{Host: "localhost", Port: 8080},
		UserCertPath: pki.WriteCert(t, "alice.pem", client.Cert),
		CACertPath:   pki.WriteCA(t),
		KeyPath:      pki.WriteSecret(t, "alice.key", e.secret),
		Timeout:      2 * time.Second,
	}
	return e
}

// rendezvous accepts one handshake connection, answers it, then reports
// whether the client closed the connection afterwards.
func (e *env) rendezvous(t *testing.T, ca *x509.Certificate) (addr domain.Target, closed <-chan error) {
	t.Helper()
	ln, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	host, port, _ := net.SplitHostPort(ln.Addr().String())
	p, _ := strconv.Atoi(port)

	out := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			out <- err
			return
		}
		defer conn.Close()
		srv, err := handshake.NewServer(conn, handshake.ServerConfig{
			Certificate: e.server.Cert,
			PrivateKey:  e.server.Key,
			CA:          ca,
			Secrets:     store.PinSecret(e.client.Cert, e.secret),
			Suite:       crypto.NewSuite(),
			Timeout:     2 * time.Second,
		})
		if err != nil {
			out <- err
			return
		}
		_, _ = srv.Handshake(context.Background(), func(context.Context, *x509.Certificate, domain.Target) (domain.Target, error) {
			return domain.Target{Host: "127.0.0.1", Port: 40001}, nil
		})
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, err = conn.Read(make([]byte, 1))
		out <- err
	}()
	return domain.Target{Host: host, Port: p}, out
}

func TestEstablish_Success(t *testing.T) {
	e := newEnv(t)
	addr, closed := e.rendezvous(t, e.pki.CA)
	e.req.Rendezvous = addr

	sess, err := session.New(crypto.NewSuite(), nil, nil).Establish(context.Background(), e.req)
	if err != nil {
		t.Fatalf("Establish: %v", err)
	}
	if sess.Remote.Host != "127.0.0.1" || sess.Remote.Port != 40001 {
		t.Fatalf("remote %v", sess.Remote)
	}
	if sess.Cipher == nil {
		t.Fatalf("no cipher")
	}
	if err := <-closed; !errors.Is(err, io.EOF) {
		t.Fatalf("handshake socket not closed: %v", err)
	}
}

func TestEstablish_UntrustedServerClosesSocket(t *testing.T) {
	e := newEnv(t)
	addr, closed := e.rendezvous(t, e.pki.CA)
	e.req.Rendezvous = addr
	rogue := testutil.NewPKI(t)
	e.req.CACertPath = rogue.WriteCA(t)

	_, err := session.New(crypto.NewSuite(), nil, nil).Establish(context.Background(), e.req)
	if !errors.Is(err, domain.ErrHandshake) {
		t.Fatalf("err = %v, want ErrHandshake", err)
	}
	if err := <-closed; !errors.Is(err, io.EOF) {
		t.Fatalf("handshake socket not closed: %v", err)
	}
}

type countingDialer struct{ calls int }

func (d *countingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.calls++
	return nil, errors.New("unreachable")
}

func TestEstablish_MissingFilesAreConfigurationErrors(t *testing.T) {
	e := newEnv(t)
	e.req.Rendezvous = domain.Target{Host: "localhost", Port: 2206}
	e.req.UserCertPath = filepath.Join(t.TempDir(), "missing.pem")

	d := &countingDialer{}
	_, err := session.New(crypto.NewSuite(), d, nil).Establish(context.Background(), e.req)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
	if d.calls != 0 {
		t.Fatalf("dialed %d times before credentials loaded", d.calls)
	}
}

func TestEstablish_DialFailure(t *testing.T) {
	e := newEnv(t)
	e.req.Rendezvous = domain.Target{Host: "localhost", Port: 2206}

	d := &countingDialer{}
	_, err := session.New(crypto.NewSuite(), d, nil).Establish(context.Background(), e.req)
	if !errors.Is(err, domain.ErrHandshake) {
		t.Fatalf("err = %v, want ErrHandshake", err)
	}
	if d.calls != 1 {
		t.Fatalf("dial calls = %d", d.calls)
	}
}
