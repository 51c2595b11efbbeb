package commands

import (
	"errors"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"portfwd/internal/app"
	"portfwd/internal/domain"
)

var clientFlags = []struct {
	name  string
	usage string
}{
	{app.OptTargetHost, "destination host (required)"},
	{app.OptTargetPort, "destination port (required)"},
	{app.OptHandshakeHost, "rendezvous host"},
	{app.OptHandshakePort, "rendezvous port"},
	{app.OptUserCert, "client certificate, PEM (required)"},
	{app.OptCACert, "CA certificate, PEM (required)"},
	{app.OptKey, "key-wrap secret file (required)"},
	{app.OptPassphrase, "passphrase for a sealed key file"},
	{app.OptHandshakeTimeout, "timeout for each handshake round trip"},
	{app.OptListenHost, "host for the local listening socket"},
}

// Execute runs the forwardclient command tree.
func Execute() error {
	var quiet bool
	root := &cobra.Command{
		Use:          "forwardclient --targethost=HOST --targetport=PORT --usercert=FILE --cacert=FILE --key=FILE",
		Short:        "Forward one local TCP connection through an authenticated, encrypted relay",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ParseConfig(collect(cmd.Flags()))
			if err != nil {
				return usageError(cmd, err)
			}
			var logOut io.Writer = os.Stderr
			if quiet {
				logOut = io.Discard
			}
			lg := log.New(logOut, "forwardclient: ", log.LstdFlags)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := app.NewClient(lg, cmd.OutOrStdout()).Run(ctx, cfg); err != nil {
				return err
			}
			return nil
		},
	}

	for _, f := range clientFlags {
		root.Flags().String(f.name, app.ClientDefaults[f.name], f.usage)
	}
	root.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not log handshake and relay progress to stderr")

	root.AddCommand(sealKeyCmd(), fingerprintCmd())
	return root.Execute()
}

// collect returns every option flag as name -> value.
func collect(fs *pflag.FlagSet) map[string]string {
	opts := make(map[string]string)
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Value.Type() == "string" {
			opts[f.Name] = f.Value.String()
		}
	})
	return opts
}

// usageError prints usage for configuration errors before returning err.
func usageError(cmd *cobra.Command, err error) error {
	if errors.Is(err, domain.ErrConfiguration) {
		_ = cmd.Usage()
	}
	return err
}
