package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/alapierre/go-zatca-client/zatca/keys"
	"github.com/alapierre/go-zatca-client/zatca/xades"
)

func newVerifyCmd() *cobra.Command {
	var idAttribute string

	cmd := &cobra.Command{
		Use:   "verify <signed.xml>",
		Short: "Verify the signature of a signed invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			cert, err := xades.NewSigner(xades.WithReference(idAttribute, xades.DefaultReferenceID)).Verify(string(data))
			if err != nil {
				return err
			}
			serial, err := keys.ExtractCertSerial(cert)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"valid":    true,
				"subject":  cert.Subject.String(),
				"issuer":   cert.Issuer.String(),
				"serial":   serial,
				"notAfter": cert.NotAfter,
			})
		},
	}

	cmd.Flags().StringVar(&idAttribute, "id-attr", xades.DefaultIDAttribute, "Invoice attribute the signature reference points at")
	return cmd
}
