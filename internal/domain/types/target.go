package types

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// MaxHostLength bounds host names carried on the wire.
const MaxHostLength = 255

// Target is a host/port pair, either requested by the client or negotiated
// by the rendezvous endpoint.
type Target struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// String returns host:port.
func (t Target) String() string { return net.JoinHostPort(t.Host, strconv.Itoa(t.Port)) }

// Validate checks the host is present and the port is in [1,65535].
func (t Target) Validate() error {
	if t.Host == "" {
		return errors.New("empty host")
	}
	if len(t.Host) > MaxHostLength {
		return fmt.Errorf("host longer than %d bytes", MaxHostLength)
	}
	if t.Port < 1 || t.Port > 65535 {
		return fmt.Errorf("port %d out of range", t.Port)
	}
	return nil
}

// ParseTarget builds a Target from a host and a decimal port string.
func ParseTarget(host, port string) (Target, error) {
	p, err := strconv.Atoi(port)
	if err != nil {
		return Target{}, fmt.Errorf("invalid port %q", port)
	}
	t := Target{Host: host, Port: p}
	if err := t.Validate(); err != nil {
		return Target{}, err
	}
	return t, nil
}
