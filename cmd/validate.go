package cmd

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alapierre/go-zatca-client/zatca/model"
	"github.com/alapierre/go-zatca-client/zatca/tlv"
)

func newValidateCmd() *cobra.Command {
	var (
		inv     invoiceFlags
		payload string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate invoice QR fields",
		Long: `Validate the QR fields of an invoice, given as flags or as an existing
base64 QR payload (--payload). The payload does not carry the UUID, pass
--uuid alongside it.

Every violated rule is reported. The command fails when the invoice is
invalid.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				invoice  model.InvoiceQR
				problems []string
			)

			if payload != "" {
				raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
				if err != nil {
					return fmt.Errorf("payload is not base64: %w", err)
				}
				invoice, err = tlv.DecodeInvoice(raw)
				if err != nil {
					return err
				}
				invoice.UUID = inv.uuid
			} else {
				invoice, problems = inv.invoice()
			}

			res := withProblems(tlv.Validate(invoice), problems)

			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			return res.Err()
		},
	}

	inv.register(cmd)
	cmd.Flags().StringVar(&payload, "payload", "", "Base64 QR payload to decode and validate")
	return cmd
}
