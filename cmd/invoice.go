package cmd

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/alapierre/go-zatca-client/zatca/model"
	"github.com/alapierre/go-zatca-client/zatca/tlv"
)

// invoiceFlags collects the QR fields of an invoice from the command line.
type invoiceFlags struct {
	seller    string
	vat       string
	timestamp string
	total     string
	vatTotal  string
	uuid      string
}

func (f *invoiceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.seller, "seller", "", "Seller name")
	cmd.Flags().StringVar(&f.vat, "vat", "", "Seller VAT registration number (15 digits)")
	cmd.Flags().StringVar(&f.timestamp, "timestamp", "", "Invoice timestamp, ISO-8601 (default: now)")
	cmd.Flags().StringVar(&f.total, "total", "0", "Invoice total including VAT")
	cmd.Flags().StringVar(&f.vatTotal, "vat-total", "0", "VAT total")
	cmd.Flags().StringVar(&f.uuid, "uuid", "", "Invoice UUID (default: random)")
}

// invoice builds the value object. Unparseable amounts are reported by the
// caller through validation, not here, so every rule is listed at once.
func (f *invoiceFlags) invoice() (model.InvoiceQR, []string) {
	var problems []string

	total, err := decimal.NewFromString(f.total)
	if err != nil {
		problems = append(problems, "total is not a number")
	}
	vatTotal, err := decimal.NewFromString(f.vatTotal)
	if err != nil {
		problems = append(problems, "vatTotal is not a number")
	}

	ts := f.timestamp
	if ts == "" {
		ts = time.Now().UTC().Format(time.RFC3339)
	}
	id := f.uuid
	if id == "" {
		id = uuid.NewString()
	}

	return model.InvoiceQR{
		SellerName: f.seller,
		VATNumber:  f.vat,
		Timestamp:  ts,
		Total:      total,
		VATTotal:   vatTotal,
		UUID:       id,
	}, problems
}

// withProblems prepends flag parsing problems to a validation result.
func withProblems(res tlv.ValidationResult, problems []string) tlv.ValidationResult {
	if len(problems) == 0 {
		return res
	}
	res.Errors = append(problems, res.Errors...)
	res.IsValid = false
	return res
}
