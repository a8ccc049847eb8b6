// Package xades produces the enveloped XML digital signature of an invoice.
package xades

import (
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/go-faster/errors"
	dsig "github.com/russellhaering/goxmldsig"
	"github.com/sirupsen/logrus"

	"github.com/alapierre/go-zatca-client/zatca"
	"github.com/alapierre/go-zatca-client/zatca/hash"
	"github.com/alapierre/go-zatca-client/zatca/keys"
	"github.com/alapierre/go-zatca-client/zatca/model"
)

var logger = logrus.WithField("component", "zatca.xades")

const (
	invoiceElement   = "Invoice"
	signatureElement = "Signature"

	// DefaultIDAttribute names the attribute the signature reference points at.
	DefaultIDAttribute = "Id"
	// DefaultReferenceID is assigned to an Invoice element that has no id.
	DefaultReferenceID = "invoice"
)

// Canonicalization selects the c14n transform applied after the enveloped
// signature transform.
type Canonicalization string

const (
	C14N10   Canonicalization = "c14n"
	C14N11   Canonicalization = "c14n11"
	ExclC14N Canonicalization = "exc-c14n"
)

const defaultCN = C14N10

func (c *Canonicalization) UnmarshalText(text []byte) error {
	switch v := Canonicalization(strings.ToLower(strings.TrimSpace(string(text)))); v {
	case "":
		*c = defaultCN
	case C14N10, C14N11, ExclC14N:
		*c = v
	default:
		return fmt.Errorf("invalid canonicalization: %q (allowed: c14n, c14n11, exc-c14n)", string(text))
	}
	return nil
}

func (c Canonicalization) canonicalizer() dsig.Canonicalizer {
	switch c {
	case C14N11:
		return dsig.MakeC14N11Canonicalizer()
	case ExclC14N:
		return dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList("")
	default:
		return dsig.MakeC14N10RecCanonicalizer()
	}
}

// Signer signs invoice XML. It keeps no state between calls and may be used
// from many goroutines.
type Signer struct {
	canonicalization Canonicalization
	idAttribute      string
	referenceID      string
	onTransition     func(from, to State)
}

type Option func(*Signer)

func WithCanonicalization(c Canonicalization) Option {
	return func(s *Signer) { s.canonicalization = c }
}

// WithReference sets the id attribute name and the id given to an Invoice
// element that lacks one. Empty values keep the defaults.
func WithReference(attribute, id string) Option {
	return func(s *Signer) {
		if attribute != "" {
			s.idAttribute = attribute
		}
		if id != "" {
			s.referenceID = id
		}
	}
}

// WithTransitionHook is called on every state change of a signing operation.
func WithTransitionHook(fn func(from, to State)) Option {
	return func(s *Signer) { s.onTransition = fn }
}

func NewSigner(opts ...Option) *Signer {
	s := &Signer{
		canonicalization: defaultCN,
		idAttribute:      DefaultIDAttribute,
		referenceID:      DefaultReferenceID,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

var defaultSigner = NewSigner()

// Sign signs invoiceXML with the key pair held in a base64 PKCS#12 bundle,
// using the default signer.
func Sign(invoiceXML, bundle, passphrase string) (*model.SignedInvoice, error) {
	return defaultSigner.Sign(invoiceXML, bundle, passphrase)
}

// operation tracks the state of one Sign call.
type operation struct {
	signer *Signer
	state  State
}

func (o *operation) advance(to State) {
	from := o.state
	o.state = to
	logger.Debugf("signing: %s -> %s", from, to)
	if o.signer.onTransition != nil {
		o.signer.onTransition(from, to)
	}
}

// fail moves the operation to Failed. Key material errors keep their own
// code; everything else becomes ErrSigningFailed.
func (o *operation) fail(err error) error {
	at := o.state
	o.advance(Failed)

	if kind, ok := zatca.KindOf(err); ok && kind == zatca.KindKeyMaterial {
		return err
	}
	return zatca.ErrSigningFailed.Detail("at %s", at).WithCause(err)
}

// Sign extracts the key pair from the bundle and signs invoiceXML.
func (s *Signer) Sign(invoiceXML, bundle, passphrase string) (*model.SignedInvoice, error) {
	op := &operation{signer: s, state: Received}

	kp, err := keys.FromPKCS12Base64(bundle, passphrase)
	if err != nil {
		return nil, op.fail(err)
	}
	op.advance(KeyExtracted)

	return s.sign(op, invoiceXML, kp)
}

// SignWithKeyPair signs invoiceXML with an already extracted key pair.
func (s *Signer) SignWithKeyPair(invoiceXML string, kp *keys.KeyPair) (*model.SignedInvoice, error) {
	op := &operation{signer: s, state: Received}
	if kp == nil || kp.Signer == nil {
		return nil, op.fail(zatca.ErrNoPrivateKeyFound)
	}
	if kp.Certificate == nil {
		return nil, op.fail(zatca.ErrNoCertificateFound)
	}
	op.advance(KeyExtracted)

	return s.sign(op, invoiceXML, kp)
}

func (s *Signer) sign(op *operation, invoiceXML string, kp *keys.KeyPair) (*model.SignedInvoice, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(invoiceXML); err != nil {
		return nil, op.fail(errors.Wrap(err, "parse invoice XML"))
	}

	invoice := FindInvoice(doc)
	if invoice == nil {
		return nil, op.fail(errors.New("no Invoice element in document"))
	}
	if invoice.SelectAttr(s.idAttribute) == nil {
		invoice.CreateAttr(s.idAttribute, s.referenceID)
	}
	inheritNamespaces(invoice)

	ctx, err := dsig.NewSigningContext(kp.Signer, [][]byte{kp.Certificate.Raw})
	if err != nil {
		return nil, op.fail(errors.Wrap(err, "create signing context"))
	}
	ctx.IdAttribute = s.idAttribute
	ctx.Canonicalizer = s.canonicalization.canonicalizer()
	op.advance(Canonicalized)

	signed, err := ctx.SignEnveloped(invoice)
	if err != nil {
		return nil, op.fail(errors.Wrap(err, "compute signature"))
	}
	op.advance(SignatureComputed)

	replaceElement(doc, invoice, signed)

	out, err := doc.WriteToString()
	if err != nil {
		return nil, op.fail(errors.Wrap(err, "serialize signed XML"))
	}
	op.advance(Serialized)

	return &model.SignedInvoice{
		RawXML:         invoiceXML,
		SignedXML:      out,
		DigestBase64:   hash.ComputeInvoiceHashString(out),
		CertificatePEM: kp.CertificatePEM,
	}, nil
}

// FindInvoice returns the first element named Invoice, whatever its prefix.
func FindInvoice(doc *etree.Document) *etree.Element {
	root := doc.Root()
	if root == nil {
		return nil
	}
	return findByLocalName(root, invoiceElement)
}

// DocumentUUID returns the text of the UUID element directly under Invoice,
// or "" when the document has none.
func DocumentUUID(invoiceXML []byte) (string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(invoiceXML); err != nil {
		return "", errors.Wrap(err, "parse invoice XML")
	}
	invoice := FindInvoice(doc)
	if invoice == nil {
		return "", errors.New("no Invoice element in document")
	}
	for _, c := range invoice.ChildElements() {
		if c.Tag == "UUID" {
			return strings.TrimSpace(c.Text()), nil
		}
	}
	return "", nil
}

func findByLocalName(el *etree.Element, name string) *etree.Element {
	if el.Tag == name {
		return el
	}
	for _, c := range el.ChildElements() {
		if found := findByLocalName(c, name); found != nil {
			return found
		}
	}
	return nil
}

// inheritNamespaces copies the namespace declarations that el sees from its
// ancestors onto el itself. The signature covers el canonicalized on its own,
// and a prefix declared only on an ancestor would be undeclared there. The
// nearest declaration wins.
func inheritNamespaces(el *etree.Element) {
	for p := el.Parent(); p != nil; p = p.Parent() {
		for i := range p.Attr {
			a := &p.Attr[i]
			if a.Space != "xmlns" && !(a.Space == "" && a.Key == "xmlns") {
				continue
			}
			if el.SelectAttr(a.FullKey()) == nil {
				el.CreateAttr(a.FullKey(), a.Value)
			}
		}
	}
}

func replaceElement(doc *etree.Document, old, replacement *etree.Element) {
	parent := old.Parent()
	if parent == nil || old == doc.Root() {
		doc.SetRoot(replacement)
		return
	}
	idx := old.Index()
	parent.RemoveChildAt(idx)
	parent.InsertChildAt(idx, replacement)
}

// Verify checks the enveloped signature of signedXML against the
// certificate embedded in its KeyInfo and returns that certificate.
func Verify(signedXML string) (*x509.Certificate, error) {
	return defaultSigner.Verify(signedXML)
}

func (s *Signer) Verify(signedXML string) (*x509.Certificate, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(signedXML); err != nil {
		return nil, errors.Wrap(err, "parse signed XML")
	}

	invoice := FindInvoice(doc)
	if invoice == nil {
		return nil, errors.New("no Invoice element in document")
	}

	cert, err := embeddedCertificate(invoice)
	if err != nil {
		return nil, err
	}

	ctx := dsig.NewDefaultValidationContext(&dsig.MemoryX509CertificateStore{
		Roots: []*x509.Certificate{cert},
	})
	ctx.IdAttribute = s.idAttribute

	if _, err := ctx.Validate(invoice); err != nil {
		return nil, errors.Wrap(err, "signature validation failed")
	}
	return cert, nil
}

func embeddedCertificate(invoice *etree.Element) (*x509.Certificate, error) {
	var sig *etree.Element
	for _, c := range invoice.ChildElements() {
		if c.Tag == signatureElement {
			sig = c
			break
		}
	}
	if sig == nil {
		return nil, errors.New("no Signature element in Invoice")
	}

	certEl := sig
	for _, name := range []string{"KeyInfo", "X509Data", "X509Certificate"} {
		certEl = findByLocalName(certEl, name)
		if certEl == nil {
			return nil, errors.Errorf("no %s in Signature", name)
		}
	}

	der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(certEl.Text()), ""))
	if err != nil {
		return nil, errors.Wrap(err, "decode X509Certificate")
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, errors.Wrap(err, "parse X509Certificate")
	}
	return cert, nil
}
