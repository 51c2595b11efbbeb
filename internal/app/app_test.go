package app_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/nettest"

	"portfwd/internal/app"
	"portfwd/internal/domain"
	"portfwd/internal/testutil"
)

// syncBuffer is a bytes.Buffer safe for the App goroutine and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type deployment struct {
	pki      *testutil.PKI
	clientFS map[string]string
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

func hostPort(t *testing.T, addr net.Addr) (string, string) {
	t.Helper()
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		t.Fatalf("split %s: %v", addr, err)
	}
	return host, port
}

// deploy starts a forward server built from files and returns the client
// options that reach it.
func deploy(t *testing.T, targetHost, targetPort string) *deployment {
	t.Helper()
	pki := testutil.NewPKI(t)
	server := pki.IssueServer(t, "rendezvous")
	client := pki.IssueClient(t, "alice")
	secret := pki.WriteSecret(t, "alice.key", testutil.Secret(t))
	clientCert := pki.WriteCert(t, "client.pem", client.Cert)

	ln := listen(t)
	host, port := hostPort(t, ln.Addr())
	scfg, err := app.ParseServerConfig(map[string]string{
		"handshakehost":    host,
		"relayhost":        host,
		"usercert":         pki.WriteCert(t, "server.pem", server.Cert),
		"cacert":           pki.WriteCA(t),
		"key":              pki.WriteKey(t, "server.key", server.Key),
		"secret":           secret,
		"clientcert":       clientCert,
		"handshaketimeout": "2s",
		"accepttimeout":    "5s",
	})
	if err != nil {
		t.Fatalf("ParseServerConfig: %v", err)
	}
	srv, err := app.NewServer(scfg, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &deployment{pki: pki, clientFS: map[string]string{
		"targethost":       targetHost,
		"targetport":       targetPort,
		"handshakehost":    host,
		"handshakeport":    port,
		"usercert":         clientCert,
		"cacert":           pki.WriteCA(t),
		"key":              secret,
		"handshaketimeout": "2s",
		"listenhost":       host,
	}}
}

func TestRun_EndToEnd(t *testing.T) {
	dest := listen(t)
	destHost, destPort := hostPort(t, dest.Addr())
	received := make(chan []byte, 1)
	go func() {
		c, err := dest.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		c.SetReadDeadline(time.Now().Add(5 * time.Second))
		buf := make([]byte, len("GET /\r\n"))
		if _, err := io.ReadFull(c, buf); err != nil {
			return
		}
		received <- buf
		c.Write([]byte("HTTP/1.0 200 OK\r\n\r\n"))
	}()

	d := deploy(t, destHost, destPort)
	cfg, err := app.ParseConfig(d.clientFS)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	out := &syncBuffer{}
	a := app.NewClient(log.New(io.Discard, "", 0), out)
	listening := make(chan net.Addr, 1)
	a.OnListen = func(addr net.Addr) { listening <- addr }
	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background(), cfg) }()

	var addr net.Addr
	select {
	case addr = <-listening:
	case err := <-done:
		t.Fatalf("Run returned before listening: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("client never listened")
	}
	if !strings.Contains(out.String(), "Client forwarder to target "+net.JoinHostPort(destHost, destPort)) {
		t.Fatalf("output %q lacks the target line", out.String())
	}
	if !strings.Contains(out.String(), "Waiting for incoming connections at "+addr.String()) {
		t.Fatalf("output %q lacks the listening address", out.String())
	}

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial forwarder: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("GET /\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case got := <-received:
		if string(got) != "GET /\r\n" {
			t.Fatalf("destination got %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("destination received nothing")
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	resp, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	if string(resp) != "HTTP/1.0 200 OK\r\n\r\n" {
		t.Fatalf("response %q", resp)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after the relay ended")
	}
}

func TestRun_UntrustedServerOpensNoListener(t *testing.T) {
	d := deploy(t, "127.0.0.1", strconv.Itoa(9))
	d.clientFS["cacert"] = testutil.NewPKI(t).WriteCA(t)
	cfg, err := app.ParseConfig(d.clientFS)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	out := &syncBuffer{}
	a := app.NewClient(log.New(io.Discard, "", 0), out)
	listened := false
	a.OnListen = func(net.Addr) { listened = true }

	err = a.Run(context.Background(), cfg)
	if !errors.Is(err, domain.ErrHandshake) {
		t.Fatalf("err = %v, want ErrHandshake", err)
	}
	if listened || strings.Contains(out.String(), "Waiting for incoming connections") {
		t.Fatalf("listener opened after failed handshake; output %q", out.String())
	}
}

func TestRun_CancelWhileWaiting(t *testing.T) {
	d := deploy(t, "127.0.0.1", "9")
	cfg, err := app.ParseConfig(d.clientFS)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := app.NewClient(nil, nil)
	a.OnListen = func(net.Addr) { cancel() }

	if err := a.Run(ctx, cfg); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
