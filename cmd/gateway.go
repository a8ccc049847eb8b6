package cmd

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alapierre/go-zatca-client/zatca/gateway"
	"github.com/alapierre/go-zatca-client/zatca/hash"
	"github.com/alapierre/go-zatca-client/zatca/model"
	"github.com/alapierre/go-zatca-client/zatca/xades"
)

// newGatewayClient reads the gateway configuration from ZATCA_* variables.
func newGatewayClient() (*gateway.Client, error) {
	cfg, err := gateway.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return gateway.New(cfg), nil
}

// printResult writes the envelope and turns a failed call into an error so
// the process exits non-zero.
func printResult(cmd *cobra.Command, res *gateway.Result, err error) error {
	if res != nil {
		if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
			return perr
		}
	}
	if err != nil {
		return err
	}
	return res.Err()
}

// submission reads a signed invoice and fills uuid and hash from the
// document when not given.
type submission struct {
	uuid        string
	invoiceHash string
}

func (s *submission) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.uuid, "uuid", "", "Invoice UUID (default: read from the document)")
	cmd.Flags().StringVar(&s.invoiceHash, "invoice-hash", "", "Invoice hash (default: SHA-256 of the signed document)")
}

func (s *submission) load(path string) (*model.SignedInvoice, string, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", "", err
	}
	id := s.uuid
	if id == "" {
		if id, err = xades.DocumentUUID(data); err != nil {
			return nil, "", "", err
		}
	}
	h := s.invoiceHash
	if h == "" {
		h = hash.ComputeInvoiceHash(data)
	}
	return &model.SignedInvoice{SignedXML: string(data), DigestBase64: hash.ComputeInvoiceHash(data)}, id, h, nil
}

func newClearanceCmd() *cobra.Command {
	var (
		sub      submission
		prevHash string
		counter  uint64
	)

	cmd := &cobra.Command{
		Use:   "clearance <signed.xml>",
		Short: "Submit a signed standard invoice for clearance",
		Long: `Submit a signed invoice to the clearance endpoint. Credentials and
endpoints come from ZATCA_ENV, ZATCA_BASE_URL, ZATCA_CSID_TOKEN and
ZATCA_CSID_SECRET. The normalized response envelope is printed as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			signed, id, h, err := sub.load(args[0])
			if err != nil {
				return err
			}
			client, err := newGatewayClient()
			if err != nil {
				return err
			}
			req := gateway.NewClearanceRequest(signed, model.InvoiceChainLink{
				UUID:                id,
				InvoiceHash:         h,
				PreviousInvoiceHash: prevHash,
				CounterValue:        counter,
			})
			res, err := client.SubmitClearance(context.Background(), req)
			return printResult(cmd, res, err)
		},
	}

	sub.register(cmd)
	cmd.Flags().StringVar(&prevHash, "previous-hash", "", "Hash of the previous invoice in the chain")
	cmd.Flags().Uint64Var(&counter, "counter", 0, "Invoice counter value")
	return cmd
}

func newReportingCmd() *cobra.Command {
	var sub submission

	cmd := &cobra.Command{
		Use:   "reporting <signed.xml>",
		Short: "Report a signed simplified invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			signed, id, h, err := sub.load(args[0])
			if err != nil {
				return err
			}
			client, err := newGatewayClient()
			if err != nil {
				return err
			}
			res, err := client.SubmitReporting(context.Background(), gateway.NewReportingRequest(signed, id, h))
			return printResult(cmd, res, err)
		},
	}

	sub.register(cmd)
	return cmd
}

func newOnboardCmd() *cobra.Command {
	var (
		csrPath string
		otp     string
	)

	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Request a compliance CSID with a CSR and OTP",
		Long: `Send a certificate signing request and the one-time password from the
Fatoora portal to the compliance endpoint. The issued token and secret are
printed and not stored anywhere.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var csr string
			if csrPath != "" {
				data, err := os.ReadFile(csrPath)
				if err != nil {
					return err
				}
				csr = strings.TrimSpace(string(data))
			}
			client, err := newGatewayClient()
			if err != nil {
				return err
			}
			res, err := client.RequestOnboarding(context.Background(), gateway.OnboardingRequest{CSR: csr}, otp)
			return printResult(cmd, res, err)
		},
	}

	cmd.Flags().StringVar(&csrPath, "csr", "", "File with the base64 CSR")
	cmd.Flags().StringVar(&otp, "otp", "", "One-time password from the Fatoora portal")
	return cmd
}

func newCSIDCmd() *cobra.Command {
	var requestID string

	cmd := &cobra.Command{
		Use:   "csid",
		Short: "Request a production CSID",
		Long: `Exchange the compliance CSID (ZATCA_CSID_TOKEN / ZATCA_CSID_SECRET) for
a production CSID.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newGatewayClient()
			if err != nil {
				return err
			}
			res, err := client.RequestProductionCSID(context.Background(), gateway.ProductionCSIDRequest{ComplianceRequestID: requestID})
			return printResult(cmd, res, err)
		},
	}

	cmd.Flags().StringVar(&requestID, "compliance-request-id", "", "Request ID returned by onboarding")
	return cmd
}
