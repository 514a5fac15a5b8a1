package xmlsig

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/beevik/etree"
	"github.com/leifj/signedxml"
)

// Errors reported by the signer
var (
	ErrSignatureNotFound = errors.New("Signature element not found")
	ErrNoRootElement     = errors.New("no root element found")
)

// Signer fills in an enveloped ds:Signature template: it embeds the
// certificate into ds:X509Data, computes the reference digests and the
// signature value. Uses signedxml for all canonicalization.
type Signer struct {
	key  crypto.Signer
	cert *x509.Certificate
}

// NewSigner creates a signer from a private key and its certificate
func NewSigner(key crypto.Signer, cert *x509.Certificate) (*Signer, error) {
	if key == nil {
		return nil, fmt.Errorf("private key is required")
	}
	if cert == nil {
		return nil, fmt.Errorf("certificate is required")
	}

	return &Signer{
		key:  key,
		cert: cert,
	}, nil
}

// SignFile parses the XML document at path and signs it
func (s *Signer) SignFile(path string) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return nil, fmt.Errorf("unable to parse file %q: %w", path, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("unable to parse file %q: no root element", path)
	}
	return s.SignDocument(doc)
}

// SignDocument signs the ds:Signature template found in doc and returns the
// serialized signed document. The document must already carry a template;
// see TemplateBuilder for constructing one.
func (s *Signer) SignDocument(doc *etree.Document) ([]byte, error) {
	sigElem := FindSignature(doc)
	if sigElem == nil {
		return nil, ErrSignatureNotFound
	}

	if err := s.embedCertificate(sigElem); err != nil {
		return nil, err
	}

	// RSA keys in memory go through signedxml directly. Keys behind
	// crypto.Signer (PKCS#11) take the manual path.
	if rsaKey, ok := s.key.(*rsa.PrivateKey); ok {
		xmlStr, err := doc.WriteToString()
		if err != nil {
			return nil, fmt.Errorf("failed to write XML: %w", err)
		}

		signer, err := signedxml.NewSigner(xmlStr)
		if err != nil {
			return nil, fmt.Errorf("failed to create signer: %w", err)
		}

		signedXML, err := signer.Sign(rsaKey)
		if err != nil {
			return nil, fmt.Errorf("failed to sign: %w", err)
		}
		return []byte(signedXML), nil
	}

	return s.signManual(doc, sigElem)
}

// FindSignature locates the first ds:Signature element in the document
func FindSignature(doc *etree.Document) *etree.Element {
	elem := doc.FindElement("//Signature")
	if elem == nil {
		elem = doc.FindElement("//*[local-name()='Signature']")
	}
	return elem
}

// embedCertificate fills the template's X509Data: empty X509Certificate
// elements get the base64 certificate, empty X509IssuerSerial children get
// the issuer DN and serial number.
func (s *Signer) embedCertificate(sigElem *etree.Element) error {
	x509Data := descendant(sigElem, "X509Data")
	if x509Data == nil {
		// Template carries no X509Data; nothing to embed
		return nil
	}

	certElem := descendant(x509Data, "X509Certificate")
	if certElem == nil {
		certElem = x509Data.CreateElement(prefixed(x509Data, "X509Certificate"))
	}
	if certElem.Text() == "" {
		certElem.SetText(base64.StdEncoding.EncodeToString(s.cert.Raw))
	}

	if issuerSerial := descendant(x509Data, "X509IssuerSerial"); issuerSerial != nil {
		if name := descendant(issuerSerial, "X509IssuerName"); name != nil && name.Text() == "" {
			name.SetText(s.cert.Issuer.String())
		}
		if serial := descendant(issuerSerial, "X509SerialNumber"); serial != nil && serial.Text() == "" {
			serial.SetText(s.cert.SerialNumber.String())
		}
	}

	return nil
}

// signManual computes the enveloped signature without access to raw key
// material: canonicalize with signedxml, sign the digest via crypto.Signer.
// Only exclusive canonicalization templates are supported on this path.
func (s *Signer) signManual(doc *etree.Document, sigElem *etree.Element) ([]byte, error) {
	signedInfo := descendant(sigElem, "SignedInfo")
	if signedInfo == nil {
		return nil, fmt.Errorf("signature template has no SignedInfo")
	}

	c14nMethod := descendant(signedInfo, "CanonicalizationMethod")
	if c14nMethod == nil || c14nMethod.SelectAttrValue("Algorithm", "") != AlgorithmExcC14N {
		return nil, fmt.Errorf("hardware-backed signing requires exclusive canonicalization")
	}

	sigMethod := descendant(signedInfo, "SignatureMethod")
	if sigMethod == nil {
		return nil, fmt.Errorf("signature template has no SignatureMethod")
	}
	hashAlgo, err := hashForSignatureAlgorithm(sigMethod.SelectAttrValue("Algorithm", ""))
	if err != nil {
		return nil, err
	}

	canonicalizer := signedxml.ExclusiveCanonicalization{WithComments: false}

	// Fill in the reference digests
	for _, ref := range childElements(signedInfo, "Reference") {
		if err := s.fillReferenceDigest(doc, ref, canonicalizer); err != nil {
			return nil, err
		}
	}

	// Exclusive C14N requires namespace declarations to be present on the
	// element even if they are declared on parent elements
	if signedInfo.Space != "" && signedInfo.SelectAttr("xmlns:"+signedInfo.Space) == nil {
		signedInfo.CreateAttr("xmlns:"+signedInfo.Space, NSXMLDSig)
	}

	canonicalSignedInfo, err := canonicalizer.ProcessElement(signedInfo, "")
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize SignedInfo: %w", err)
	}

	h := hashAlgo.New()
	h.Write([]byte(canonicalSignedInfo))
	digest := h.Sum(nil)

	signature, err := s.key.Sign(rand.Reader, digest, hashAlgo)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	sigValue := descendant(sigElem, "SignatureValue")
	if sigValue == nil {
		return nil, fmt.Errorf("signature template has no SignatureValue")
	}
	sigValue.SetText(base64.StdEncoding.EncodeToString(signature))

	signedXML, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize signed document: %w", err)
	}
	return signedXML, nil
}

// fillReferenceDigest computes the digest for one ds:Reference. URI=""
// covers the whole document with the Signature element removed (enveloped);
// URI="#id" covers the identified element.
func (s *Signer) fillReferenceDigest(doc *etree.Document, ref *etree.Element, canonicalizer signedxml.ExclusiveCanonicalization) error {
	uri := ref.SelectAttrValue("URI", "")

	var target *etree.Element
	switch {
	case uri == "":
		docCopy := doc.Copy()
		sigCopy := FindSignature(docCopy)
		if sigCopy != nil && sigCopy.Parent() != nil {
			sigCopy.Parent().RemoveChild(sigCopy)
		}
		target = docCopy.Root()
	case uri[0] == '#':
		id := uri[1:]
		target = doc.FindElement("//*[@Id='" + id + "']")
		if target == nil {
			target = doc.FindElement("//*[@ID='" + id + "']")
		}
		if target == nil {
			return fmt.Errorf("reference target %q not found", uri)
		}
	default:
		return fmt.Errorf("unsupported reference URI %q", uri)
	}

	canonical, err := canonicalizer.ProcessElement(target, "")
	if err != nil {
		return fmt.Errorf("failed to canonicalize reference %q: %w", uri, err)
	}

	digestMethod := descendant(ref, "DigestMethod")
	if digestMethod == nil {
		return fmt.Errorf("reference %q has no DigestMethod", uri)
	}
	hashAlgo, err := hashForDigestAlgorithm(digestMethod.SelectAttrValue("Algorithm", ""))
	if err != nil {
		return err
	}

	h := hashAlgo.New()
	h.Write([]byte(canonical))

	digestValue := descendant(ref, "DigestValue")
	if digestValue == nil {
		return fmt.Errorf("reference %q has no DigestValue", uri)
	}
	digestValue.SetText(base64.StdEncoding.EncodeToString(h.Sum(nil)))
	return nil
}

func descendant(elem *etree.Element, name string) *etree.Element {
	if e := elem.FindElement(".//" + name); e != nil {
		return e
	}
	return elem.FindElement(".//*[local-name()='" + name + "']")
}

func childElements(elem *etree.Element, name string) []*etree.Element {
	found := elem.FindElements("./" + name)
	if len(found) == 0 {
		found = elem.FindElements("./*[local-name()='" + name + "']")
	}
	return found
}

// prefixed builds a tag in the same namespace prefix as ref
func prefixed(ref *etree.Element, name string) string {
	if ref.Space != "" {
		return ref.Space + ":" + name
	}
	return name
}

func hashForSignatureAlgorithm(algorithm string) (crypto.Hash, error) {
	switch algorithm {
	case AlgorithmRSASHA1:
		return crypto.SHA1, nil
	case AlgorithmRSASHA256:
		return crypto.SHA256, nil
	case AlgorithmRSASHA384:
		return crypto.SHA384, nil
	case AlgorithmRSASHA512:
		return crypto.SHA512, nil
	default:
		return 0, fmt.Errorf("unsupported signature algorithm: %s", algorithm)
	}
}

func hashForDigestAlgorithm(algorithm string) (crypto.Hash, error) {
	switch algorithm {
	case AlgorithmSHA1:
		return crypto.SHA1, nil
	case AlgorithmSHA256:
		return crypto.SHA256, nil
	case AlgorithmSHA384:
		return crypto.SHA384, nil
	case AlgorithmSHA512:
		return crypto.SHA512, nil
	default:
		return 0, fmt.Errorf("unsupported digest algorithm: %s", algorithm)
	}
}
