// Package cmd implements the zatca command line tool.
package cmd

import (
	"encoding/json"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alapierre/go-zatca-client/zatca/util"
)

var version = "0.1.0"

// NewRootCmd builds the command tree. Each call returns independent flag
// state.
func NewRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "zatca",
		Short: "ZATCA e-invoicing toolkit",
		Long: `zatca builds, signs and submits Saudi e-invoices.

Examples:
  # QR payload of a simplified invoice
  zatca qr --seller "Bobs Records" --vat 310122393500003 --total 1000 --vat-total 150

  # Sign an invoice with a PKCS#12 bundle
  ZATCA_P12_PASSPHRASE=secret zatca sign invoice.xml --p12 egs.p12 -o signed.xml

  # Submit a signed invoice for clearance
  ZATCA_CSID_TOKEN=... ZATCA_CSID_SECRET=... zatca clearance signed.xml`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
			logrus.SetOutput(cmd.ErrOrStderr())
			if verbose || util.DebugEnabled() {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging (env: ZATCA_DEBUG)")

	root.AddCommand(
		newQRCmd(),
		newValidateCmd(),
		newHashCmd(),
		newSignCmd(),
		newSignBatchCmd(),
		newVerifyCmd(),
		newClearanceCmd(),
		newReportingCmd(),
		newOnboardCmd(),
		newCSIDCmd(),
	)
	return root
}

func Execute() error {
	return NewRootCmd().Execute()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
