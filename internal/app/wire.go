package app

import (
	"fmt"
	"io"
	"log"

	"portfwd/internal/crypto"
	"portfwd/internal/domain"
	"portfwd/internal/protocol/handshake"
	"portfwd/internal/relay"
	"portfwd/internal/server"
	"portfwd/internal/services/session"
	"portfwd/internal/store"
)

// NewClient constructs the client dependency graph.
func NewClient(lg *log.Logger, out io.Writer) *App {
	suite := crypto.NewSuite()
	sessions := session.New(suite, nil, lg)
	engine := &relay.Engine{Log: lg}
	return New(sessions, engine, lg, out)
}

// NewServer loads the server credentials and secret resolver named by cfg
// and constructs the forward server. Credential failures match
// domain.ErrConfiguration.
func NewServer(cfg ServerConfig, lg *log.Logger) (*server.Server, error) {
	creds, err := store.LoadServerCredentials(cfg.Cert, cfg.Key, cfg.CACert)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	secrets, err := loadResolver(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	return server.New(server.Config{
		Handshake: handshake.ServerConfig{
			Certificate: creds.Certificate,
			PrivateKey:  creds.PrivateKey,
			CA:          creds.CA,
			Secrets:     secrets,
			Suite:       crypto.NewSuite(),
			Timeout:     cfg.HandshakeTimeout,
			Log:         lg,
		},
		RelayHost:     cfg.RelayHost,
		AcceptTimeout: cfg.AcceptTimeout,
		Relay:         &relay.Engine{Log: lg},
		Log:           lg,
	})
}

func loadResolver(cfg ServerConfig) (domain.SecretResolver, error) {
	if cfg.Secrets != "" {
		return store.LoadRegistry(cfg.Secrets, cfg.Passphrase)
	}
	cert, err := store.LoadCertificate(cfg.ClientCert)
	if err != nil {
		return nil, err
	}
	secret, err := store.LoadSecret(cfg.Secret, cfg.Passphrase)
	if err != nil {
		return nil, err
	}
	return store.PinSecret(cert, secret), nil
}
