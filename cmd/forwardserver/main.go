package main

import (
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"portfwd/internal/app"
	"portfwd/internal/domain"
)

var serverFlags = []struct {
	name  string
	usage string
}{
	{app.OptHandshakeHost, "bind host for the handshake listener (default all interfaces)"},
	{app.OptHandshakePort, "handshake port"},
	{app.OptRelayHost, "host relay listeners bind and advertise (default handshake host; required when that is empty)"},
	{app.OptUserCert, "server certificate, PEM (required)"},
	{app.OptCACert, "CA certificate, PEM (required)"},
	{app.OptKey, "server Ed25519 private key, PKCS#8 PEM (required)"},
	{app.OptSecret, "key-wrap secret of the single client named by --clientcert"},
	{app.OptClientCert, "certificate of the client that owns --secret"},
	{app.OptSecrets, "JSON registry of per-client key-wrap secrets"},
	{app.OptPassphrase, "passphrase for sealed secret files"},
	{app.OptHandshakeTimeout, "timeout for each handshake round trip"},
	{app.OptAcceptTimeout, "how long a relay listener waits for its client"},
}

func main() {
	root := &cobra.Command{
		Use:          "forwardserver --usercert=FILE --cacert=FILE --key=FILE (--secret=FILE --clientcert=FILE | --secrets=FILE) [--relayhost=HOST]",
		Short:        "Answer forwardclient handshakes and relay their sessions",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := make(map[string]string)
			cmd.Flags().VisitAll(func(f *pflag.Flag) { opts[f.Name] = f.Value.String() })
			cfg, err := app.ParseServerConfig(opts)
			if err != nil {
				if errors.Is(err, domain.ErrConfiguration) {
					_ = cmd.Usage()
				}
				return err
			}

			lg := log.New(os.Stderr, "forwardserver: ", log.LstdFlags)
			srv, err := app.NewServer(cfg, lg)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx, cfg.Listen)
		},
	}
	for _, f := range serverFlags {
		root.Flags().String(f.name, app.ServerDefaults[f.name], f.usage)
	}

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
