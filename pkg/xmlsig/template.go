package xmlsig

import (
	"github.com/beevik/etree"
)

// TemplateBuilder constructs an enveloped ds:Signature template and appends
// it to a document's root. The template carries placeholder DigestValue and
// SignatureValue text so Signer can fill them in.
type TemplateBuilder struct {
	signatureAlgorithm string
	digestAlgorithm    string
}

// TemplateOption configures a TemplateBuilder
type TemplateOption func(*TemplateBuilder)

// WithTemplateSignatureAlgorithm selects the SignatureMethod URI
func WithTemplateSignatureAlgorithm(algorithm string) TemplateOption {
	return func(b *TemplateBuilder) { b.signatureAlgorithm = algorithm }
}

// WithTemplateDigestAlgorithm selects the DigestMethod URI
func WithTemplateDigestAlgorithm(algorithm string) TemplateOption {
	return func(b *TemplateBuilder) { b.digestAlgorithm = algorithm }
}

// NewTemplateBuilder creates a builder. Defaults are RSA-SHA256 signatures
// with SHA-256 digests over exclusive canonicalization.
func NewTemplateBuilder(opts ...TemplateOption) *TemplateBuilder {
	b := &TemplateBuilder{
		signatureAlgorithm: AlgorithmRSASHA256,
		digestAlgorithm:    AlgorithmSHA256,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AddTemplate appends an enveloped signature template to the document root.
// Documents that already carry a Signature element are left untouched.
func (b *TemplateBuilder) AddTemplate(doc *etree.Document) (*etree.Element, error) {
	root := doc.Root()
	if root == nil {
		return nil, ErrNoRootElement
	}

	if existing := FindSignature(doc); existing != nil {
		return existing, nil
	}

	sig := root.CreateElement("ds:Signature")
	sig.CreateAttr("xmlns:ds", NSXMLDSig)

	signedInfo := sig.CreateElement("ds:SignedInfo")

	c14nMethod := signedInfo.CreateElement("ds:CanonicalizationMethod")
	c14nMethod.CreateAttr("Algorithm", AlgorithmExcC14N)

	sigMethod := signedInfo.CreateElement("ds:SignatureMethod")
	sigMethod.CreateAttr("Algorithm", b.signatureAlgorithm)

	// Single enveloped reference covering the whole document
	ref := signedInfo.CreateElement("ds:Reference")
	ref.CreateAttr("URI", "")

	transforms := ref.CreateElement("ds:Transforms")
	enveloped := transforms.CreateElement("ds:Transform")
	enveloped.CreateAttr("Algorithm", AlgorithmEnvelopedSignature)
	c14n := transforms.CreateElement("ds:Transform")
	c14n.CreateAttr("Algorithm", AlgorithmExcC14N)

	digestMethod := ref.CreateElement("ds:DigestMethod")
	digestMethod.CreateAttr("Algorithm", b.digestAlgorithm)

	// Placeholders - Signer will fill these in
	digestValue := ref.CreateElement("ds:DigestValue")
	digestValue.SetText("placeholder")

	sigValue := sig.CreateElement("ds:SignatureValue")
	sigValue.SetText("placeholder")

	keyInfo := sig.CreateElement("ds:KeyInfo")
	x509Data := keyInfo.CreateElement("ds:X509Data")

	issuerSerial := x509Data.CreateElement("ds:X509IssuerSerial")
	issuerSerial.CreateElement("ds:X509IssuerName")
	issuerSerial.CreateElement("ds:X509SerialNumber")
	x509Data.CreateElement("ds:X509Certificate")

	return sig, nil
}
