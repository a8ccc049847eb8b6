package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alapierre/go-zatca-client/zatca/hash"
)

func newHashCmd() *cobra.Command {
	var (
		genesis bool
		legacy  bool
		inv     invoiceFlags
	)

	cmd := &cobra.Command{
		Use:   "hash [file]",
		Short: "Compute invoice hashes",
		Long: `Print base64(SHA-256) of a file, the genesis previous-invoice hash
(--genesis), or the legacy hash of the QR TLV hex string built from the
invoice flags (--legacy).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()

			switch {
			case genesis:
				_, err := fmt.Fprintln(w, hash.GenesisHash)
				return err
			case legacy:
				invoice, problems := inv.invoice()
				if len(problems) > 0 {
					return fmt.Errorf("invalid invoice: %v", problems)
				}
				h, err := hash.LegacyQRHash(invoice)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(w, h)
				return err
			}

			if len(args) != 1 {
				return fmt.Errorf("a file is required unless --genesis or --legacy is set")
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(w, hash.ComputeInvoiceHash(data))
			return err
		},
	}

	inv.register(cmd)
	cmd.Flags().BoolVar(&genesis, "genesis", false, "Print the hash used before the first invoice")
	cmd.Flags().BoolVar(&legacy, "legacy", false, "Hash the TLV hex string of the invoice flags")
	return cmd
}
