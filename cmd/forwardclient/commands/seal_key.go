package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"portfwd/internal/store"
)

// sealKeyCmd encrypts a raw key-wrap secret into a passphrase envelope that
// --key and --passphrase can later unlock.
func sealKeyCmd() *cobra.Command {
	var in, out, passphrase string
	cmd := &cobra.Command{
		Use:   "seal-key --in RAW --out SEALED --passphrase PASS",
		Short: "Seal a key-wrap secret under a passphrase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("passphrase required (--passphrase)")
			}
			if err := store.SealSecretFile(in, out, passphrase); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sealed %s -> %s\n", in, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "raw secret file")
	cmd.Flags().StringVar(&out, "out", "", "sealed output file")
	cmd.Flags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the secret")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
