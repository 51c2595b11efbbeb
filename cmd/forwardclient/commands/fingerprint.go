package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"portfwd/internal/crypto"
	"portfwd/internal/store"
)

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint <cert.pem>",
		Short: "Print the certificate fingerprint used as a server registry key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cert, err := store.LoadCertificate(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Fingerprint: %s\n", crypto.CertificateFingerprint(cert))
			return nil
		},
	}
}
