package hash

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alapierre/go-zatca-client/zatca/model"
	"github.com/alapierre/go-zatca-client/zatca/tlv"
)

func TestComputeInvoiceHash_KnownVector(t *testing.T) {
	assert.Equal(t, "ungWv48Bz+pBQUDeXa4iI7ADYaOWF3qctBD/YfIAFa0=", ComputeInvoiceHashString("abc"))
}

func TestComputeInvoiceHash_Deterministic(t *testing.T) {
	input := []byte("<Invoice><ID>1</ID></Invoice>")

	first := ComputeInvoiceHash(input)
	second := ComputeInvoiceHash(append([]byte{}, input...))
	assert.Equal(t, first, second)

	for i := range input {
		changed := append([]byte{}, input...)
		changed[i] ^= 0x01
		assert.NotEqual(t, first, ComputeInvoiceHash(changed), "byte %d", i)
	}
}

func TestGenesisHash(t *testing.T) {
	sum := sha256.Sum256([]byte("0"))
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte(hex.EncodeToString(sum[:]))), GenesisHash)
}

func TestLegacyQRHash_HashesHexString(t *testing.T) {
	inv := model.InvoiceQR{
		SellerName: "Acme",
		VATNumber:  "300000000000003",
		Timestamp:  "2024-01-15T10:30:00Z",
		Total:      decimal.RequireFromString("115"),
		VATTotal:   decimal.RequireFromString("15"),
	}

	raw, err := tlv.Encode(inv)
	require.NoError(t, err)

	got, err := LegacyQRHash(inv)
	require.NoError(t, err)
	assert.Equal(t, ComputeInvoiceHashString(hex.EncodeToString(raw)), got)
	assert.NotEqual(t, ComputeInvoiceHash(raw), got)
}

func TestSource_ChainHash(t *testing.T) {
	inv := model.InvoiceQR{SellerName: "Acme", VATNumber: "300000000000003", Timestamp: "2024-01-15", Total: decimal.Zero, VATTotal: decimal.Zero}
	signed := &model.SignedInvoice{DigestBase64: "digest"}

	var s Source
	require.NoError(t, s.UnmarshalText([]byte("")))
	assert.Equal(t, SourceXML, s)

	h, err := s.ChainHash(signed, inv)
	require.NoError(t, err)
	assert.Equal(t, "digest", h)

	_, err = s.ChainHash(nil, inv)
	assert.Error(t, err)

	require.NoError(t, s.UnmarshalText([]byte("TLV")))
	h, err = s.ChainHash(nil, inv)
	require.NoError(t, err)
	legacy, _ := LegacyQRHash(inv)
	assert.Equal(t, legacy, h)

	assert.Error(t, s.UnmarshalText([]byte("pdf")))
}
