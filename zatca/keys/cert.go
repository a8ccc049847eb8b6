package keys

import (
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

func LoadCertificateFromFile(path string) (*x509.Certificate, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cert file: %w", err)
	}
	return LoadCertificate(b)
}

// LoadCertificate accepts PEM or raw DER.
func LoadCertificate(certBytes []byte) (*x509.Certificate, error) {
	if block, _ := pem.Decode(certBytes); block != nil {
		if block.Type != "CERTIFICATE" {
			return nil, fmt.Errorf("unexpected PEM block: %s", block.Type)
		}
		certBytes = block.Bytes
	}

	cert, err := x509.ParseCertificate(certBytes)
	if err != nil {
		return nil, err
	}
	if cert == nil {
		return nil, errors.New("parsed cert is nil")
	}
	return cert, nil
}

// CertificatePEM encodes the certificate as a PEM block.
func CertificatePEM(cert *x509.Certificate) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}))
}

// CertificateBody strips the PEM header, footer and line breaks, leaving the
// base64 DER as carried in X509Certificate.
func CertificateBody(certPEM string) string {
	var b strings.Builder
	for _, line := range strings.Split(certPEM, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "-----") {
			continue
		}
		b.WriteString(line)
	}
	return b.String()
}

// ExtractCertSerial returns the certificate serial as uppercase hex.
func ExtractCertSerial(cert *x509.Certificate) (string, error) {
	if cert == nil {
		return "", errors.New("cert is nil")
	}
	if cert.SerialNumber == nil {
		return "", errors.New("cert.SerialNumber is nil")
	}

	serial := strings.ToUpper(hex.EncodeToString(cert.SerialNumber.Bytes()))
	if serial == "" {
		return "", errors.New("empty serial after encoding")
	}
	return serial, nil
}
