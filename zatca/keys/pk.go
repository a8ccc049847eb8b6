package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/youmark/pkcs8"
)

// LoadEncryptedPKCS8SignerFromFile loads a PEM key file and returns a crypto.Signer.
func LoadEncryptedPKCS8SignerFromFile(path string, password []byte) (crypto.Signer, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return LoadEncryptedPKCS8SignerFromPEM(b, password)
}

// LoadEncryptedPKCS8SignerFromPEM loads the first ENCRYPTED PRIVATE KEY block.
// Without a password the first plain PRIVATE KEY block is accepted instead.
func LoadEncryptedPKCS8SignerFromPEM(pemBytes []byte, password []byte) (crypto.Signer, error) {
	for len(pemBytes) > 0 {
		var block *pem.Block
		block, pemBytes = pem.Decode(pemBytes)
		if block == nil {
			break
		}

		var (
			keyAny any
			err    error
		)
		switch {
		case block.Type == "ENCRYPTED PRIVATE KEY":
			if len(password) == 0 {
				return nil, errors.New("password is required for ENCRYPTED PRIVATE KEY")
			}
			keyAny, err = pkcs8.ParsePKCS8PrivateKey(block.Bytes, password)
		case block.Type == "PRIVATE KEY" && len(password) == 0:
			keyAny, err = pkcs8.ParsePKCS8PrivateKey(block.Bytes)
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("decode PKCS#8 private key: %w", err)
		}
		return asSigner(keyAny)
	}

	return nil, errors.New("no PKCS#8 private key block found in PEM")
}

func asSigner(keyAny any) (crypto.Signer, error) {
	switch k := keyAny.(type) {
	case *rsa.PrivateKey:
		return k, nil
	case *ecdsa.PrivateKey:
		return k, nil
	case ed25519.PrivateKey:
		return k, nil
	default:
		return nil, fmt.Errorf("unsupported key type: %T (expected RSA, ECDSA or Ed25519)", keyAny)
	}
}

// MarshalPrivateKeyPEM encodes the key as an unencrypted PKCS#8 PEM block.
func MarshalPrivateKeyPEM(key crypto.Signer) (string, error) {
	der, err := pkcs8.MarshalPrivateKey(key, nil, nil)
	if err != nil {
		return "", fmt.Errorf("encode PKCS#8 private key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), nil
}
