package app

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"portfwd/internal/domain"
)

// Client option names.
const (
	OptTargetHost       = "targethost"
	OptTargetPort       = "targetport"
	OptHandshakeHost    = "handshakehost"
	OptHandshakePort    = "handshakeport"
	OptUserCert         = "usercert"
	OptCACert           = "cacert"
	OptKey              = "key"
	OptPassphrase       = "passphrase"
	OptHandshakeTimeout = "handshaketimeout"
	OptListenHost       = "listenhost"
)

// Server-only option names.
const (
	OptRelayHost     = "relayhost"
	OptSecret        = "secret"
	OptClientCert    = "clientcert"
	OptSecrets       = "secrets"
	OptAcceptTimeout = "accepttimeout"
)

// ClientDefaults are applied before the caller's options.
var ClientDefaults = map[string]string{
	OptHandshakeHost:    "localhost",
	OptHandshakePort:    "2206",
	OptHandshakeTimeout: "10s",
	OptListenHost:       "localhost",
}

// ServerDefaults are applied before the caller's options.
var ServerDefaults = map[string]string{
	OptHandshakePort:    "2206",
	OptHandshakeTimeout: "10s",
	OptAcceptTimeout:    "30s",
}

var clientRequired = []string{OptTargetHost, OptTargetPort, OptUserCert, OptCACert, OptKey}

var serverRequired = []string{OptUserCert, OptCACert, OptKey}

// Config is the validated client configuration. It is not modified after
// ParseConfig returns.
type Config struct {
	Target           domain.Target
	Handshake        domain.Target
	UserCert         string
	CACert           string
	Key              string
	Passphrase       string
	HandshakeTimeout time.Duration
	ListenHost       string
}

// ServerConfig is the validated forward server configuration.
type ServerConfig struct {
	// Listen is the handshake bind address; an empty host binds every
	// interface.
	Listen           string
	RelayHost        string
	Cert             string
	CACert           string
	Key              string
	Secret           string
	ClientCert       string // the one certificate Secret is served to
	Secrets          string
	Passphrase       string
	HandshakeTimeout time.Duration
	AcceptTimeout    time.Duration
}

// ParseConfig merges opts over ClientDefaults and validates the result.
// Empty values in opts do not override defaults.
// Every failure matches domain.ErrConfiguration.
func ParseConfig(opts map[string]string) (Config, error) {
	o := merge(ClientDefaults, opts)
	if err := requireAll(o, clientRequired); err != nil {
		return Config{}, err
	}

	target, err := parseTarget(o, OptTargetHost, OptTargetPort)
	if err != nil {
		return Config{}, err
	}
	hs, err := parseTarget(o, OptHandshakeHost, OptHandshakePort)
	if err != nil {
		return Config{}, err
	}
	timeout, err := parseDuration(o, OptHandshakeTimeout)
	if err != nil {
		return Config{}, err
	}
	if o[OptListenHost] == "" {
		return Config{}, optionError(OptListenHost, fmt.Errorf("empty host"))
	}
	return Config{
		Target:           target,
		Handshake:        hs,
		UserCert:         o[OptUserCert],
		CACert:           o[OptCACert],
		Key:              o[OptKey],
		Passphrase:       o[OptPassphrase],
		HandshakeTimeout: timeout,
		ListenHost:       o[OptListenHost],
	}, nil
}

// ParseServerConfig merges opts over ServerDefaults and validates the
// result. Exactly one of secret and secrets must be set, and secret needs
// clientcert. The relay host defaults to the handshake host and is required
// when the handshake host is empty.
func ParseServerConfig(opts map[string]string) (ServerConfig, error) {
	o := merge(ServerDefaults, opts)
	if err := requireAll(o, serverRequired); err != nil {
		return ServerConfig{}, err
	}
	if (o[OptSecret] == "") == (o[OptSecrets] == "") {
		return ServerConfig{}, fmt.Errorf("%w: exactly one of --%s and --%s is required", domain.ErrConfiguration, OptSecret, OptSecrets)
	}
	if (o[OptSecret] == "") != (o[OptClientCert] == "") {
		return ServerConfig{}, fmt.Errorf("%w: --%s and --%s go together", domain.ErrConfiguration, OptSecret, OptClientCert)
	}
	port, err := strconv.Atoi(o[OptHandshakePort])
	if err != nil || port < 0 || port > 65535 {
		return ServerConfig{}, optionError(OptHandshakePort, fmt.Errorf("invalid port %q", o[OptHandshakePort]))
	}
	hsTimeout, err := parseDuration(o, OptHandshakeTimeout)
	if err != nil {
		return ServerConfig{}, err
	}
	acceptTimeout, err := parseDuration(o, OptAcceptTimeout)
	if err != nil {
		return ServerConfig{}, err
	}

	relayHost := o[OptRelayHost]
	if relayHost == "" {
		relayHost = o[OptHandshakeHost]
	}
	if relayHost == "" {
		return ServerConfig{}, optionError(OptRelayHost, fmt.Errorf("required when --%s binds every interface", OptHandshakeHost))
	}
	return ServerConfig{
		Listen:           net.JoinHostPort(o[OptHandshakeHost], strconv.Itoa(port)),
		RelayHost:        relayHost,
		Cert:             o[OptUserCert],
		CACert:           o[OptCACert],
		Key:              o[OptKey],
		Secret:           o[OptSecret],
		ClientCert:       o[OptClientCert],
		Secrets:          o[OptSecrets],
		Passphrase:       o[OptPassphrase],
		HandshakeTimeout: hsTimeout,
		AcceptTimeout:    acceptTimeout,
	}, nil
}

// parseTarget reports host errors against hostKey and everything else
// against portKey.
func parseTarget(o map[string]string, hostKey, portKey string) (domain.Target, error) {
	t, err := domain.ParseTarget(o[hostKey], o[portKey])
	if err == nil {
		return t, nil
	}
	if herr := (domain.Target{Host: o[hostKey], Port: 1}).Validate(); herr != nil {
		return domain.Target{}, optionError(hostKey, herr)
	}
	return domain.Target{}, optionError(portKey, err)
}

func merge(defaults, opts map[string]string) map[string]string {
	out := make(map[string]string, len(defaults)+len(opts))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range opts {
		if v = strings.TrimSpace(v); v != "" {
			out[strings.ToLower(k)] = v
		}
	}
	return out
}

func requireAll(o map[string]string, keys []string) error {
	var missing []string
	for _, k := range keys {
		if o[k] == "" {
			missing = append(missing, "--"+k)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: missing required option(s) %s", domain.ErrConfiguration, strings.Join(missing, ", "))
}

func parseDuration(o map[string]string, key string) (time.Duration, error) {
	d, err := time.ParseDuration(o[key])
	if err != nil {
		return 0, optionError(key, err)
	}
	if d <= 0 {
		return 0, optionError(key, fmt.Errorf("must be positive, got %s", d))
	}
	return d, nil
}

func optionError(key string, err error) error {
	return fmt.Errorf("%w: --%s: %v", domain.ErrConfiguration, key, err)
}
