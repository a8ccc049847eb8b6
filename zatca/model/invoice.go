package model

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// InvoiceQR holds the fields of a simplified invoice QR code. It is built once
// when the invoice is finalized and must not be changed after signing.
type InvoiceQR struct {
	SellerName string          `json:"sellerName"`
	VATNumber  string          `json:"vatNumber"`
	Timestamp  string          `json:"timestamp"`
	Total      decimal.Decimal `json:"total"`
	VATTotal   decimal.Decimal `json:"vatTotal"`
	UUID       string          `json:"uuid"`
}

// SignedInvoice is the output of one signing operation.
type SignedInvoice struct {
	RawXML    string `json:"rawXml"`
	SignedXML string `json:"signedXml"`
	// DigestBase64 is base64(SHA-256(SignedXML)).
	DigestBase64   string `json:"digestBase64"`
	CertificatePEM string `json:"certificatePem"`
}

// InvoiceChainLink ties an invoice to its predecessor in a tenant+terminal
// sequence.
type InvoiceChainLink struct {
	UUID                string `json:"uuid"`
	InvoiceHash         string `json:"invoiceHash"`
	PreviousInvoiceHash string `json:"previousInvoiceHash"`
	CounterValue        uint64 `json:"counterValue"`
}

func (l InvoiceChainLink) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("uuid")
	e.Str(l.UUID)
	e.FieldStart("invoiceHash")
	e.Str(l.InvoiceHash)
	e.FieldStart("previousInvoiceHash")
	e.Str(l.PreviousInvoiceHash)
	e.FieldStart("counterValue")
	e.UInt64(l.CounterValue)
	e.ObjEnd()
}

// Decode reads a link written by Encode. Unknown fields are skipped.
func (l *InvoiceChainLink) Decode(d *jx.Decoder) error {
	if l == nil {
		return errors.New("invalid: unable to decode InvoiceChainLink to nil")
	}
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "uuid":
			l.UUID, err = d.Str()
		case "invoiceHash":
			l.InvoiceHash, err = d.Str()
		case "previousInvoiceHash":
			l.PreviousInvoiceHash, err = d.Str()
		case "counterValue":
			l.CounterValue, err = d.UInt64()
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode field %q", key)
		}
		return nil
	})
}
