package model

import (
	"testing"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoiceChainLink_EncodeDecode(t *testing.T) {
	link := InvoiceChainLink{
		UUID:                "3cf5ee18-ee25-44ea-a444-2c37ba7f28be",
		InvoiceHash:         "h2",
		PreviousInvoiceHash: "h1",
		CounterValue:        18446744073709551615,
	}

	var e jx.Encoder
	link.Encode(&e)
	assert.JSONEq(t, `{"uuid":"3cf5ee18-ee25-44ea-a444-2c37ba7f28be","invoiceHash":"h2","previousInvoiceHash":"h1","counterValue":18446744073709551615}`, e.String())

	var got InvoiceChainLink
	require.NoError(t, got.Decode(jx.DecodeBytes(e.Bytes())))
	assert.Equal(t, link, got)
}

func TestInvoiceChainLink_DecodeSkipsUnknownFields(t *testing.T) {
	var got InvoiceChainLink
	require.NoError(t, got.Decode(jx.DecodeStr(`{"extra":[1,{"a":2}],"uuid":"u","counterValue":3}`)))
	assert.Equal(t, InvoiceChainLink{UUID: "u", CounterValue: 3}, got)
}

func TestInvoiceChainLink_DecodeRejectsWrongTypes(t *testing.T) {
	var got InvoiceChainLink
	assert.Error(t, got.Decode(jx.DecodeStr(`{"counterValue":"3"}`)))
	assert.Error(t, got.Decode(jx.DecodeStr(`not json`)))
}
