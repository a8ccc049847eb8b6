package cmd

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alapierre/go-zatca-client/zatca/keys"
	"github.com/alapierre/go-zatca-client/zatca/util"
)

// keyFlags selects the signing material: a PKCS#12 bundle (DER or base64
// text) or a PEM certificate with a PKCS#8 key. The passphrase is read from
// an environment variable, never from a flag.
type keyFlags struct {
	p12     string
	cert    string
	key     string
	passEnv string
}

func (f *keyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.p12, "p12", "", "PKCS#12 bundle file, DER or base64")
	cmd.Flags().StringVar(&f.cert, "cert", "", "PEM certificate file (with --key)")
	cmd.Flags().StringVar(&f.key, "key", "", "PKCS#8 PEM private key file, optionally encrypted (with --cert)")
	cmd.Flags().StringVar(&f.passEnv, "passphrase-env", "ZATCA_P12_PASSPHRASE", "Environment variable holding the bundle or key passphrase")
}

func (f *keyFlags) load() (*keys.KeyPair, error) {
	pass, _ := util.LookupEnv(f.passEnv)

	switch {
	case f.p12 != "":
		data, err := os.ReadFile(f.p12)
		if err != nil {
			return nil, err
		}
		text := strings.TrimSpace(string(data))
		if _, err := base64.StdEncoding.DecodeString(text); err == nil {
			return keys.FromPKCS12Base64(text, pass)
		}
		return keys.FromPKCS12(data, pass)

	case f.cert != "" && f.key != "":
		var password []byte
		if pass != "" {
			password = []byte(pass)
		}
		return keys.FromFiles(f.cert, f.key, password)
	}

	return nil, fmt.Errorf("signing material required: --p12, or --cert with --key")
}
