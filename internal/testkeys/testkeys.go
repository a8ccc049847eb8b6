// Package testkeys generates throwaway signing material for tests.
package testkeys

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/youmark/pkcs8"
	"software.sslmate.com/src/go-pkcs12"
)

// SelfSigned returns a fresh RSA key and a self-signed certificate valid
// for one day around now.
func SelfSigned(t testing.TB, commonName string) (*rsa.PrivateKey, *x509.Certificate) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject: pkix.Name{
			CommonName:         commonName,
			OrganizationalUnit: []string{"Riyadh Branch"},
			Organization:       []string{"Test Seller"},
			Country:            []string{"SA"},
		},
		NotBefore:             time.Now().Add(-12 * time.Hour),
		NotAfter:              time.Now().Add(12 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, key.Public(), key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return key, cert
}

// PKCS12 packs key and cert into a PKCS#12 bundle.
func PKCS12(t testing.TB, key crypto.PrivateKey, cert *x509.Certificate, passphrase string) []byte {
	t.Helper()

	der, err := pkcs12.Modern.Encode(key, cert, nil, passphrase)
	require.NoError(t, err)
	return der
}

// CertOnlyPKCS12 packs cert into an unprotected bundle without a key bag.
func CertOnlyPKCS12(t testing.TB, cert *x509.Certificate) []byte {
	t.Helper()

	der, err := pkcs12.Passwordless.EncodeTrustStore([]*x509.Certificate{cert}, "")
	require.NoError(t, err)
	return der
}

type contentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"tag:0,explicit,optional"`
}

type pfxPDU struct {
	Version  int
	AuthSafe contentInfo
	MacData  asn1.RawValue `asn1:"optional"`
}

// KeyOnlyPKCS12 returns an unprotected bundle holding key but no
// certificate bag. The encoder always writes a certificate, so the bundle is
// encoded with one and its certificate SafeContents is dropped afterwards.
func KeyOnlyPKCS12(t testing.TB, key crypto.PrivateKey, cert *x509.Certificate) []byte {
	t.Helper()

	der, err := pkcs12.Passwordless.Encode(key, cert, nil, "")
	require.NoError(t, err)

	var pfx pfxPDU
	rest, err := asn1.Unmarshal(der, &pfx)
	require.NoError(t, err)
	require.Empty(t, rest)

	var octets asn1.RawValue
	_, err = asn1.Unmarshal(pfx.AuthSafe.Content.Bytes, &octets)
	require.NoError(t, err)

	var safe []contentInfo
	_, err = asn1.Unmarshal(octets.Bytes, &safe)
	require.NoError(t, err)
	// certificates first, key second
	require.Len(t, safe, 2)

	keySafe, err := asn1.Marshal(safe[1:])
	require.NoError(t, err)
	wrapped, err := asn1.Marshal(keySafe)
	require.NoError(t, err)

	pfx.AuthSafe.Content = asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: wrapped}
	out, err := asn1.Marshal(pfx)
	require.NoError(t, err)
	return out
}

// Bundle returns a base64 PKCS#12 bundle together with its contents.
func Bundle(t testing.TB, passphrase string) (string, *rsa.PrivateKey, *x509.Certificate) {
	t.Helper()

	key, cert := SelfSigned(t, "EGS1-886431145")
	return base64.StdEncoding.EncodeToString(PKCS12(t, key, cert, passphrase)), key, cert
}

// EncryptedKeyPEM encodes key as an ENCRYPTED PRIVATE KEY block.
func EncryptedKeyPEM(t testing.TB, key crypto.PrivateKey, password string) []byte {
	t.Helper()

	der, err := pkcs8.MarshalPrivateKey(key, []byte(password), nil)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "ENCRYPTED PRIVATE KEY", Bytes: der})
}

// CertPEM encodes cert as PEM.
func CertPEM(cert *x509.Certificate) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}
