package interfaces

import (
	"context"
	"net"
)

// Dialer opens outbound TCP connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}
