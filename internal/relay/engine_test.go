package relay_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"golang.org/x/net/nettest"

	"portfwd/internal/domain"
	"portfwd/internal/protocol/sessioncipher"
	"portfwd/internal/relay"
)

func ciphers(t *testing.T) (client, server *sessioncipher.Cipher) {
	t.Helper()
	key := make([]byte, sessioncipher.KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand: %v", err)
	}
	client, err := sessioncipher.New(key, sessioncipher.Initiator)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	server, err = sessioncipher.New(key, sessioncipher.Responder)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client, server
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	return ln
}

func targetOf(t *testing.T, ln net.Listener) domain.Target {
	t.Helper()
	host, port, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("split %s: %v", ln.Addr(), err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	return domain.Target{Host: host, Port: p}
}

// localPair returns an application-side connection and the accepted end
// handed to the relay.
func localPair(t *testing.T) (app, accepted net.Conn) {
	t.Helper()
	ln := listen(t)
	ch := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(ch)
			return
		}
		ch <- c
	}()
	app, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	accepted, ok := <-ch
	if !ok {
		t.Fatalf("accept failed")
	}
	t.Cleanup(func() {
		app.Close()
		accepted.Close()
	})
	return app, accepted
}

// closedTarget returns an address nothing is listening on.
func closedTarget(t *testing.T) domain.Target {
	t.Helper()
	ln, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	target := targetOf(t, ln)
	ln.Close()
	return target
}

type result struct{ err error }

func waitFor(t *testing.T, ch <-chan result, d time.Duration) error {
	t.Helper()
	select {
	case r := <-ch:
		return r.err
	case <-time.After(d):
		t.Fatalf("relay did not return within %s", d)
		return nil
	}
}

// chain wires app -> Forward -> Serve -> destination and returns the
// destination's accepted connection.
type chain struct {
	app         net.Conn
	destination net.Conn
	client      chan result
	server      chan result
}

func newChain(t *testing.T, ctx context.Context, chunk int) *chain {
	t.Helper()
	clientCipher, serverCipher := ciphers(t)
	dest := listen(t)
	rendezvous := listen(t)
	app, local := localPair(t)

	destTarget, rendezvousTarget := targetOf(t, dest), targetOf(t, rendezvous)
	c := &chain{app: app, client: make(chan result, 1), server: make(chan result, 1)}
	go func() {
		sealed, err := rendezvous.Accept()
		if err != nil {
			c.server <- result{err}
			return
		}
		eng := &relay.Engine{ChunkSize: chunk}
		c.server <- result{eng.Serve(ctx, sealed, destTarget, serverCipher)}
	}()
	go func() {
		eng := &relay.Engine{ChunkSize: chunk}
		c.client <- result{eng.Forward(ctx, local, rendezvousTarget, clientCipher)}
	}()

	dest.(*net.TCPListener).SetDeadline(time.Now().Add(5 * time.Second))
	d, err := dest.Accept()
	if err != nil {
		t.Fatalf("destination accept: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	c.destination = d
	return c
}

func TestForward_ConnectFailure(t *testing.T) {
	_, serverCipher := ciphers(t)
	app, local := localPair(t)

	err := (&relay.Engine{}).Forward(context.Background(), local, closedTarget(t), serverCipher)
	if !errors.Is(err, domain.ErrConnect) {
		t.Fatalf("err = %v, want ErrConnect", err)
	}

	app.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := app.Read(make([]byte, 1))
	if n != 0 || !errors.Is(err, io.EOF) {
		t.Fatalf("local side read %d, %v; want closed with nothing written", n, err)
	}
}

func TestServe_ConnectFailure(t *testing.T) {
	_, serverCipher := ciphers(t)
	peer, sealed := localPair(t)

	err := (&relay.Engine{}).Serve(context.Background(), sealed, closedTarget(t), serverCipher)
	if !errors.Is(err, domain.ErrConnect) {
		t.Fatalf("err = %v, want ErrConnect", err)
	}
	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := peer.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Fatalf("sealed side not closed: %v", err)
	}
}

func TestForward_EndToEnd(t *testing.T) {
	c := newChain(t, context.Background(), 0)

	if _, err := c.app.Write([]byte("GET /\r\n")); err != nil {
		t.Fatalf("app write: %v", err)
	}
	c.destination.SetReadDeadline(time.Now().Add(2 * time.Second))
	got := make([]byte, len("GET /\r\n"))
	if _, err := io.ReadFull(c.destination, got); err != nil {
		t.Fatalf("destination read: %v", err)
	}
	if string(got) != "GET /\r\n" {
		t.Fatalf("destination got %q", got)
	}

	if _, err := c.destination.Write([]byte("HTTP/1.0 200 OK\r\n")); err != nil {
		t.Fatalf("destination write: %v", err)
	}
	c.app.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp := make([]byte, len("HTTP/1.0 200 OK\r\n"))
	if _, err := io.ReadFull(c.app, resp); err != nil {
		t.Fatalf("app read: %v", err)
	}
	if string(resp) != "HTTP/1.0 200 OK\r\n" {
		t.Fatalf("app got %q", resp)
	}

	c.app.Close()
	if err := waitFor(t, c.client, 2*time.Second); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if err := waitFor(t, c.server, 2*time.Second); err != nil {
		t.Fatalf("Serve: %v", err)
	}
}

func TestForward_LargeTransferSmallChunks(t *testing.T) {
	c := newChain(t, context.Background(), 1000)
	payload := make([]byte, 1<<20)
	if _, err := rand.Read(payload); err != nil {
		t.Fatalf("rand: %v", err)
	}
	go func() {
		c.app.Write(payload)
		c.app.(*net.TCPConn).CloseWrite()
	}()
	c.destination.SetReadDeadline(time.Now().Add(5 * time.Second))
	got, err := io.ReadAll(c.destination)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("received %d bytes, payload differs", len(got))
	}
}

func TestForward_DestinationCloseTearsDownPair(t *testing.T) {
	c := newChain(t, context.Background(), 0)
	c.destination.Close()

	if err := waitFor(t, c.server, 2*time.Second); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if err := waitFor(t, c.client, 2*time.Second); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	c.app.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := c.app.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Fatalf("app side still open: %v", err)
	}
}

func TestForward_AppCloseClosesRemote(t *testing.T) {
	clientCipher, _ := ciphers(t)
	remote := listen(t)
	app, local := localPair(t)

	target := targetOf(t, remote)
	done := make(chan result, 1)
	go func() {
		done <- result{(&relay.Engine{}).Forward(context.Background(), local, target, clientCipher)}
	}()
	remote.(*net.TCPListener).SetDeadline(time.Now().Add(5 * time.Second))
	r, err := remote.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	defer r.Close()

	app.Close()
	start := time.Now()
	r.SetReadDeadline(time.Now().Add(2 * time.Second))
	if n, err := r.Read(make([]byte, 1)); n != 0 || !errors.Is(err, io.EOF) {
		t.Fatalf("remote got %d bytes, %v; want EOF", n, err)
	}
	if d := time.Since(start); d > time.Second {
		t.Fatalf("remote closed after %s", d)
	}
	if err := waitFor(t, done, 2*time.Second); err != nil {
		t.Fatalf("Forward: %v", err)
	}
}

func TestForward_ContextCancelClosesBoth(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := newChain(t, ctx, 0)
	cancel()

	if err := waitFor(t, c.client, 2*time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("Forward err = %v, want context.Canceled", err)
	}
	waitFor(t, c.server, 2*time.Second)
	c.destination.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := c.destination.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Fatalf("destination still open: %v", err)
	}
}

func TestServe_RejectsForgedFrame(t *testing.T) {
	_, serverCipher := ciphers(t)
	dest := listen(t)
	peer, sealed := localPair(t)

	target := targetOf(t, dest)
	done := make(chan result, 1)
	go func() {
		done <- result{(&relay.Engine{}).Serve(context.Background(), sealed, target, serverCipher)}
	}()
	d, err := dest.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	defer d.Close()

	forged := make([]byte, 4+32)
	forged[3] = 32
	if _, err := peer.Write(forged); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := waitFor(t, done, 2*time.Second); !errors.Is(err, domain.ErrDecryption) {
		t.Fatalf("err = %v, want ErrDecryption", err)
	}
	d.SetReadDeadline(time.Now().Add(2 * time.Second))
	if n, err := d.Read(make([]byte, 1)); n != 0 || !errors.Is(err, io.EOF) {
		t.Fatalf("destination got %d bytes, %v; want closed", n, err)
	}
}

func TestServe_RejectsOversizedFrame(t *testing.T) {
	_, serverCipher := ciphers(t)
	dest := listen(t)
	peer, sealed := localPair(t)

	target := targetOf(t, dest)
	done := make(chan result, 1)
	go func() {
		done <- result{(&relay.Engine{}).Serve(context.Background(), sealed, target, serverCipher)}
	}()
	d, err := dest.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	defer d.Close()

	if _, err := peer.Write([]byte{0xff, 0xff, 0xff, 0xff}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := waitFor(t, done, 2*time.Second); !errors.Is(err, domain.ErrDecryption) {
		t.Fatalf("err = %v, want ErrDecryption", err)
	}
}
