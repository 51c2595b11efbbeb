package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"portfwd/internal/domain"
	"portfwd/internal/protocol/sessioncipher"
)

const (
	// DefaultChunkSize is how much plaintext one seal loop read may carry.
	DefaultChunkSize = 16 * 1024

	defaultDialTimeout = 10 * time.Second
)

// Engine relays one connection pair per call. The zero value is usable.
type Engine struct {
	// Dialer opens the outbound leg of a pair; defaults to a net.Dialer.
	Dialer domain.Dialer
	Log    *log.Logger
	// ChunkSize caps each plaintext read; clamped to sessioncipher.MaxChunk.
	ChunkSize int
}

func (e *Engine) dialer() domain.Dialer {
	if e.Dialer != nil {
		return e.Dialer
	}
	return &net.Dialer{Timeout: defaultDialTimeout}
}

func (e *Engine) logf(format string, args ...any) {
	if e.Log != nil {
		e.Log.Printf(format, args...)
	}
}

func (e *Engine) chunkSize() int {
	switch {
	case e.ChunkSize <= 0:
		return DefaultChunkSize
	case e.ChunkSize > sessioncipher.MaxChunk:
		return sessioncipher.MaxChunk
	default:
		return e.ChunkSize
	}
}

// Forward dials remote and relays local to it, sealing what local sends and
// opening what comes back. If the dial fails local is closed without
// anything written to it and the error matches domain.ErrConnect.
//
// Forward takes ownership of local and returns once both directions have
// stopped and both connections are closed.
func (e *Engine) Forward(ctx context.Context, local net.Conn, remote domain.Target, cipher domain.Cipher) error {
	sealed, err := e.dialer().DialContext(ctx, "tcp", remote.String())
	if err != nil {
		local.Close()
		return fmt.Errorf("%w: %s: %v", domain.ErrConnect, remote, err)
	}
	e.logf("relay: %s <-> %s (sealed)", local.RemoteAddr(), remote)
	return e.pipe(ctx, local, sealed, cipher)
}

// Serve is the mirror of Forward: sealed is an accepted connection from a
// client and target is dialled in the clear.
func (e *Engine) Serve(ctx context.Context, sealed net.Conn, target domain.Target, cipher domain.Cipher) error {
	plain, err := e.dialer().DialContext(ctx, "tcp", target.String())
	if err != nil {
		sealed.Close()
		return fmt.Errorf("%w: %s: %v", domain.ErrConnect, target, err)
	}
	e.logf("relay: %s (sealed) <-> %s", sealed.RemoteAddr(), target)
	return e.pipe(ctx, plain, sealed, cipher)
}

func (e *Engine) pipe(ctx context.Context, plain, sealed net.Conn, cipher domain.Cipher) error {
	var (
		once    sync.Once
		closing atomic.Bool
	)
	closeBoth := func() {
		once.Do(func() {
			closing.Store(true)
			plain.Close()
			sealed.Close()
		})
	}
	stop := context.AfterFunc(ctx, closeBoth)
	defer stop()

	var up, down atomic.Int64
	var g errgroup.Group
	g.Go(func() error {
		defer closeBoth()
		return quiet(&closing, e.seal(sealed, plain, cipher, &up))
	})
	g.Go(func() error {
		defer closeBoth()
		return quiet(&closing, e.open(plain, sealed, cipher, &down))
	})
	err := g.Wait()
	closeBoth()

	e.logf("relay: pair closed, %d bytes sealed, %d bytes opened", up.Load(), down.Load())
	if err == nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// quiet drops I/O errors caused by the pair being torn down from the other
// loop. Decryption failures are always reported.
func quiet(closing *atomic.Bool, err error) error {
	if err == nil || errors.Is(err, domain.ErrDecryption) {
		return err
	}
	if closing.Load() && errors.Is(err, domain.ErrIO) {
		return nil
	}
	return err
}

// seal reads plaintext from src and writes sealed frames to dst.
func (e *Engine) seal(dst io.Writer, src io.Reader, cipher domain.Cipher, n *atomic.Int64) error {
	buf := make([]byte, e.chunkSize())
	for {
		r, rerr := src.Read(buf)
		if r > 0 {
			chunk, err := cipher.Encrypt(buf[:r])
			if err != nil {
				return fmt.Errorf("relay seal: %w", err)
			}
			if err := writeFrame(dst, chunk); err != nil {
				return fmt.Errorf("%w: write sealed: %v", domain.ErrIO, err)
			}
			n.Add(int64(r))
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return nil
			}
			return fmt.Errorf("%w: read plain: %v", domain.ErrIO, rerr)
		}
	}
}

// open reads sealed frames from src and writes plaintext to dst.
func (e *Engine) open(dst io.Writer, src io.Reader, cipher domain.Cipher, n *atomic.Int64) error {
	for {
		chunk, err := readFrame(src)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return nil
			case errors.Is(err, domain.ErrDecryption):
				return fmt.Errorf("relay open: %w", err)
			}
			return fmt.Errorf("%w: read sealed: %v", domain.ErrIO, err)
		}
		plain, err := cipher.Decrypt(chunk)
		if err != nil {
			return fmt.Errorf("relay open: %w", err)
		}
		if _, err := dst.Write(plain); err != nil {
			return fmt.Errorf("%w: write plain: %v", domain.ErrIO, err)
		}
		n.Add(int64(len(plain)))
	}
}
