// Package tlv implements the Tag-Length-Value structure carried by the ZATCA
// simplified invoice QR code: five fields, each a 1-byte tag, a 1-byte length
// and the UTF-8 value, concatenated without separators.
package tlv

import (
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/alapierre/go-zatca-client/zatca"
	"github.com/alapierre/go-zatca-client/zatca/model"
)

const (
	TagSellerName byte = 1
	TagVATNumber  byte = 2
	TagTimestamp  byte = 3
	TagTotal      byte = 4
	TagVATTotal   byte = 5

	// MaxValueLen is the largest value a single length byte can describe.
	MaxValueLen = 255
)

// Field is a single TLV group.
type Field struct {
	Tag   byte
	Value []byte
}

// Encode serializes the invoice into raw TLV bytes in tag order 1..5.
func Encode(inv model.InvoiceQR) ([]byte, error) {
	return EncodeFields(Fields(inv))
}

// Fields maps the invoice onto its five TLV groups. Amounts are rendered
// with exactly two decimal places.
func Fields(inv model.InvoiceQR) []Field {
	return []Field{
		{Tag: TagSellerName, Value: []byte(inv.SellerName)},
		{Tag: TagVATNumber, Value: []byte(inv.VATNumber)},
		{Tag: TagTimestamp, Value: []byte(inv.Timestamp)},
		{Tag: TagTotal, Value: []byte(inv.Total.StringFixed(2))},
		{Tag: TagVATTotal, Value: []byte(inv.VATTotal.StringFixed(2))},
	}
}

// EncodeFields writes the given groups as-is. A value longer than 255 bytes
// fails with ErrFieldTooLong; nothing is truncated.
func EncodeFields(fields []Field) ([]byte, error) {
	size := 0
	for _, f := range fields {
		if len(f.Value) > MaxValueLen {
			return nil, zatca.ErrFieldTooLong.Detail("tag %d has %d bytes", f.Tag, len(f.Value))
		}
		size += 2 + len(f.Value)
	}

	out := make([]byte, 0, size)
	for _, f := range fields {
		out = append(out, f.Tag, byte(len(f.Value)))
		out = append(out, f.Value...)
	}
	return out, nil
}

// Decode splits raw TLV bytes back into groups, re-checking every declared
// length against the bytes that remain.
func Decode(data []byte) ([]Field, error) {
	var fields []Field

	for pos := 0; pos < len(data); {
		if len(data)-pos < 2 {
			return nil, zatca.ErrMalformedTLV.Detail("truncated header at offset %d", pos)
		}
		tag := data[pos]
		length := int(data[pos+1])
		pos += 2

		if tag < TagSellerName || tag > TagVATTotal {
			return nil, zatca.ErrUnknownTag.Detail("tag %d at offset %d", tag, pos-2)
		}
		if length > len(data)-pos {
			return nil, zatca.ErrMalformedTLV.Detail("tag %d declares %d bytes, %d remain", tag, length, len(data)-pos)
		}

		value := make([]byte, length)
		copy(value, data[pos:pos+length])
		fields = append(fields, Field{Tag: tag, Value: value})
		pos += length
	}

	return fields, nil
}

// DecodeInvoice decodes TLV bytes into an InvoiceQR. The UUID is not part of
// the QR payload and is left empty.
func DecodeInvoice(data []byte) (model.InvoiceQR, error) {
	fields, err := Decode(data)
	if err != nil {
		return model.InvoiceQR{}, err
	}

	var (
		inv  model.InvoiceQR
		seen [TagVATTotal + 1]bool
	)

	for _, f := range fields {
		if seen[f.Tag] {
			return model.InvoiceQR{}, zatca.ErrMalformedTLV.Detail("duplicate tag %d", f.Tag)
		}
		seen[f.Tag] = true

		switch f.Tag {
		case TagSellerName:
			inv.SellerName = string(f.Value)
		case TagVATNumber:
			inv.VATNumber = string(f.Value)
		case TagTimestamp:
			inv.Timestamp = string(f.Value)
		case TagTotal, TagVATTotal:
			d, err := decimal.NewFromString(string(f.Value))
			if err != nil {
				return model.InvoiceQR{}, zatca.ErrMalformedTLV.Detail("tag %d is not an amount", f.Tag).WithCause(err)
			}
			if f.Tag == TagTotal {
				inv.Total = d
			} else {
				inv.VATTotal = d
			}
		}
	}

	for tag := TagSellerName; tag <= TagVATTotal; tag++ {
		if !seen[tag] {
			return model.InvoiceQR{}, zatca.ErrMalformedTLV.Detail("missing tag %d", tag)
		}
	}

	return inv, nil
}

// ToHex renders TLV bytes as a lowercase hex string.
func ToHex(data []byte) string {
	return hex.EncodeToString(data)
}

// ValidationResult lists every rule the invoice violates.
type ValidationResult struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
}

// Err returns nil for a valid result, otherwise ErrInvalidQR listing all
// violations.
func (r ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	return zatca.ErrInvalidQR.Detail("%s", strings.Join(r.Errors, "; "))
}

var vatNumberRe = regexp.MustCompile(`^\d{15}$`)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// ParseTimestamp accepts the ISO-8601 forms seen in invoices.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("unparseable timestamp %q", s)
}

// Validate checks the invoice without encoding it. All violations are
// collected.
func Validate(inv model.InvoiceQR) ValidationResult {
	errs := make([]string, 0)

	if strings.TrimSpace(inv.SellerName) == "" {
		errs = append(errs, "sellerName is required")
	}
	if !vatNumberRe.MatchString(inv.VATNumber) {
		errs = append(errs, "vatNumber must be exactly 15 digits")
	}
	if _, err := ParseTimestamp(inv.Timestamp); err != nil {
		errs = append(errs, "timestamp must be a valid ISO-8601 date")
	}
	if inv.Total.IsNegative() {
		errs = append(errs, "total must not be negative")
	}
	if inv.VATTotal.IsNegative() {
		errs = append(errs, "vatTotal must not be negative")
	}
	if strings.TrimSpace(inv.UUID) == "" {
		errs = append(errs, "uuid is required")
	}

	return ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}
