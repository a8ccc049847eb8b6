package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alapierre/go-zatca-client/zatca/qr"
	"github.com/alapierre/go-zatca-client/zatca/tlv"
)

func newQRCmd() *cobra.Command {
	var (
		inv    invoiceFlags
		format string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "qr",
		Short: "Build the QR code of a simplified invoice",
		Long: `Build the TLV QR payload of a simplified invoice.

Formats:
  payload   base64 of the raw TLV bytes (the QR content)
  hex       TLV bytes as hex
  data-uri  PNG image as a data URI
  png       PNG image written to --out`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			invoice, problems := inv.invoice()
			res := withProblems(tlv.Validate(invoice), problems)
			if err := res.Err(); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			switch format {
			case "payload":
				payload, err := qr.Payload(invoice)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(w, payload)
				return err
			case "hex":
				raw, err := tlv.Encode(invoice)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(w, tlv.ToHex(raw))
				return err
			case "data-uri":
				uri, err := qr.RenderQR(invoice)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(w, uri)
				return err
			case "png":
				if out == "" {
					return fmt.Errorf("--out is required for png format")
				}
				img, err := qr.Image(invoice)
				if err != nil {
					return err
				}
				return os.WriteFile(out, img, 0o644)
			default:
				return fmt.Errorf("unknown format %q (allowed: payload, hex, data-uri, png)", format)
			}
		},
	}

	inv.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "payload", "Output format (payload, hex, data-uri, png)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file for png format")
	return cmd
}
