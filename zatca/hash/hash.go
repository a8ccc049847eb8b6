// Package hash computes invoice digests and maintains the previous-invoice
// hash chain contract.
package hash

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/alapierre/go-zatca-client/zatca/model"
	"github.com/alapierre/go-zatca-client/zatca/tlv"
)

// GenesisHash is the previous-invoice hash of the first invoice in a chain:
// base64 of the hex SHA-256 of "0".
const GenesisHash = "NWZlY2ViNjZmZmM4NmYzOGQ5NTI3ODZjNmQ2OTZjNzljMmRiYzIzOWRkNGU5MWI0NjcyOWQ3M2EyN2ZiNTdlOQ=="

// ComputeInvoiceHash returns base64(SHA-256(data)).
func ComputeInvoiceHash(data []byte) string {
	sum := sha256.Sum256(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// ComputeInvoiceHashString hashes the UTF-8 bytes of s.
func ComputeInvoiceHashString(s string) string {
	return ComputeInvoiceHash([]byte(s))
}

// LegacyQRHash hashes the hex string of the invoice TLV, as used by the
// simplified QR hash field.
func LegacyQRHash(inv model.InvoiceQR) (string, error) {
	raw, err := tlv.Encode(inv)
	if err != nil {
		return "", err
	}
	return ComputeInvoiceHashString(tlv.ToHex(raw)), nil
}

// Source selects which digest feeds previousInvoiceHash.
type Source string

const (
	// SourceXML chains on the digest of the signed XML document.
	SourceXML Source = "xml"
	// SourceTLV chains on the legacy hash of the QR TLV hex string.
	SourceTLV Source = "tlv"
)

func (s *Source) UnmarshalText(text []byte) error {
	switch Source(strings.ToLower(strings.TrimSpace(string(text)))) {
	case SourceXML, "":
		*s = SourceXML
	case SourceTLV:
		*s = SourceTLV
	default:
		return fmt.Errorf("invalid hash source: %q (allowed: xml, tlv)", string(text))
	}
	return nil
}

// ChainHash picks the digest that represents an invoice in its chain.
func (s Source) ChainHash(signed *model.SignedInvoice, inv model.InvoiceQR) (string, error) {
	if s == SourceTLV {
		return LegacyQRHash(inv)
	}
	if signed == nil {
		return "", fmt.Errorf("signed invoice is required for %q chain source", SourceXML)
	}
	return signed.DigestBase64, nil
}
