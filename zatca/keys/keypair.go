// Package keys extracts signing key material: PKCS#12 bundles issued with a
// CSID, or an encrypted PKCS#8 key with a PEM certificate.
package keys

import (
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"strings"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
	"software.sslmate.com/src/go-pkcs12"

	"github.com/alapierre/go-zatca-client/zatca"
)

var logger = logrus.WithField("component", "zatca.keys")

// Messages returned by pkcs12.DecodeChain.
const (
	msgCertificateMissing = "pkcs12: certificate missing"
	msgPrivateKeyMissing  = "pkcs12: private key missing"
)

// KeyPair is a private key with the certificate it belongs to, plus their
// PEM forms. It holds secrets and must never be logged.
type KeyPair struct {
	Signer         crypto.Signer
	Certificate    *x509.Certificate
	KeyPEM         string
	CertificatePEM string
}

func (k *KeyPair) String() string {
	if k == nil || k.Certificate == nil {
		return "KeyPair{}"
	}
	return "KeyPair{subject=" + k.Certificate.Subject.String() + "}"
}

// FromPKCS12Base64 decodes a base64 PKCS#12 bundle and extracts its key pair.
func FromPKCS12Base64(bundle, passphrase string) (*KeyPair, error) {
	der, err := base64.StdEncoding.DecodeString(strings.TrimSpace(bundle))
	if err != nil {
		return nil, zatca.ErrNoPrivateKeyFound.Detail("bundle is not valid base64")
	}
	return FromPKCS12(der, passphrase)
}

// FromPKCS12 extracts the private key and its certificate from a PKCS#12
// bundle. A wrong passphrase surfaces as ErrNoPrivateKeyFound.
func FromPKCS12(der []byte, passphrase string) (*KeyPair, error) {
	keyAny, cert, caCerts, err := pkcs12.DecodeChain(der, passphrase)
	if err != nil {
		// DecodeChain reports a missing bag only through its message text,
		// never as a nil certificate or key. TestFromPKCS12_MissingBags pins
		// both messages.
		switch {
		case errors.Is(err, pkcs12.ErrIncorrectPassword):
			return nil, zatca.ErrNoPrivateKeyFound.Detail("cannot decrypt bundle")
		case strings.Contains(err.Error(), msgCertificateMissing):
			return nil, zatca.ErrNoCertificateFound.Detail("bundle has no certificate bag")
		case strings.Contains(err.Error(), msgPrivateKeyMissing):
			return nil, zatca.ErrNoPrivateKeyFound.Detail("bundle has no key bag")
		default:
			// the cause carries no key bytes, only parser messages
			return nil, zatca.ErrNoPrivateKeyFound.Detail("cannot parse bundle").WithCause(err)
		}
	}
	if keyAny == nil {
		return nil, zatca.ErrNoPrivateKeyFound.Detail("bundle has no key bag")
	}

	signer, err := asSigner(keyAny)
	if err != nil {
		return nil, zatca.ErrNoPrivateKeyFound.WithCause(err)
	}

	leaf := matchingCertificate(signer, append([]*x509.Certificate{cert}, caCerts...))
	if leaf == nil {
		return nil, zatca.ErrNoCertificateFound.Detail("no certificate matches the private key")
	}

	logger.Debugf("extracted key pair for %s", leaf.Subject)

	return newKeyPair(signer, leaf)
}

// FromPEM builds a key pair from a PEM certificate and a PKCS#8 key,
// encrypted when password is set.
func FromPEM(certPEM, keyPEM, password []byte) (*KeyPair, error) {
	cert, err := LoadCertificate(certPEM)
	if err != nil {
		return nil, zatca.ErrNoCertificateFound.WithCause(err)
	}

	signer, err := LoadEncryptedPKCS8SignerFromPEM(keyPEM, password)
	if err != nil {
		return nil, zatca.ErrNoPrivateKeyFound.WithCause(err)
	}

	return pair(signer, cert)
}

// FromFiles loads a PEM or DER certificate and a PKCS#8 PEM key from disk.
func FromFiles(certPath, keyPath string, password []byte) (*KeyPair, error) {
	cert, err := LoadCertificateFromFile(certPath)
	if err != nil {
		return nil, zatca.ErrNoCertificateFound.WithCause(err)
	}

	signer, err := LoadEncryptedPKCS8SignerFromFile(keyPath, password)
	if err != nil {
		return nil, zatca.ErrNoPrivateKeyFound.WithCause(err)
	}
	return pair(signer, cert)
}

func pair(signer crypto.Signer, cert *x509.Certificate) (*KeyPair, error) {
	if matchingCertificate(signer, []*x509.Certificate{cert}) == nil {
		return nil, zatca.ErrNoCertificateFound.Detail("certificate does not match the private key")
	}
	return newKeyPair(signer, cert)
}

func newKeyPair(signer crypto.Signer, cert *x509.Certificate) (*KeyPair, error) {
	keyPEM, err := MarshalPrivateKeyPEM(signer)
	if err != nil {
		return nil, zatca.ErrNoPrivateKeyFound.WithCause(err)
	}
	return &KeyPair{
		Signer:         signer,
		Certificate:    cert,
		KeyPEM:         keyPEM,
		CertificatePEM: CertificatePEM(cert),
	}, nil
}

func matchingCertificate(signer crypto.Signer, certs []*x509.Certificate) *x509.Certificate {
	pub, ok := signer.Public().(interface{ Equal(crypto.PublicKey) bool })
	for _, c := range certs {
		if c == nil {
			continue
		}
		if !ok || pub.Equal(c.PublicKey) {
			return c
		}
	}
	return nil
}
