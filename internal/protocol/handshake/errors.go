package handshake

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"portfwd/internal/domain"
)

var (
	errUnexpected  = errors.New("unexpected message")
	errFreshness   = errors.New("freshness check failed")
	errSignature   = errors.New("signature does not verify")
	errConfirm     = errors.New("key confirmation failed")
	errRequest     = errors.New("forward request does not authenticate")
	errEngineUsed  = errors.New("handshake engine already used")
	errKeyMaterial = errors.New("wrapped key does not authenticate")
)

// Error is returned by both sides of the handshake. It matches
// domain.ErrHandshake and the underlying cause with errors.Is.
type Error struct {
	// State is how far the exchange got before it failed.
	State State
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("handshake failed in %s: %v", e.State, e.Err)
}

func (e *Error) Unwrap() []error { return []error{domain.ErrHandshake, e.Err} }

// ioError classifies a socket error. An expired deadline reports
// domain.ErrHandshakeTimeout unless ctx was cancelled first.
func ioError(ctx context.Context, err error, timeout time.Duration) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("aborted: %w", ctxErr)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: no response within %s", domain.ErrHandshakeTimeout, timeout)
	}
	return fmt.Errorf("connection: %w", err)
}

// deadlineFor returns the absolute deadline for one round trip. A zero
// timeout means no deadline.
func deadlineFor(now time.Time, timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return now.Add(timeout)
}

// abortOnCancel expires conn's deadline when ctx is cancelled, unblocking any
// pending read or write. The returned func detaches it.
func abortOnCancel(ctx context.Context, conn net.Conn) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
}
