// Package qr builds the ZATCA simplified invoice QR code.
package qr

import (
	"encoding/base64"

	"github.com/sirupsen/logrus"

	"github.com/alapierre/go-zatca-client/png"
	"github.com/alapierre/go-zatca-client/zatca"
	"github.com/alapierre/go-zatca-client/zatca/model"
	"github.com/alapierre/go-zatca-client/zatca/tlv"
)

var logger = logrus.WithField("component", "zatca.qr")

const (
	// Size is the nominal image width in pixels.
	Size = 200
	// Margin is the quiet zone in modules.
	Margin = 1

	dataURIPrefix = "data:image/png;base64,"
)

// Payload returns the QR content: base64 of the raw TLV bytes.
func Payload(inv model.InvoiceQR) (string, error) {
	raw, err := tlv.Encode(inv)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Image renders the invoice QR code as PNG bytes.
func Image(inv model.InvoiceQR) ([]byte, error) {
	payload, err := Payload(inv)
	if err != nil {
		return nil, err
	}

	logger.Debugf("QR payload length: %d", len(payload))

	img, err := png.Render(payload, Size, Margin)
	if err != nil {
		return nil, zatca.ErrQRRender.WithCause(err)
	}
	return img, nil
}

// RenderQR renders the invoice QR code as a PNG data URI.
func RenderQR(inv model.InvoiceQR) (string, error) {
	img, err := Image(inv)
	if err != nil {
		return "", err
	}
	return dataURIPrefix + base64.StdEncoding.EncodeToString(img), nil
}
