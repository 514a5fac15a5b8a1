package xmlcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"fmt"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/leifj/signedxml/xmlenc"
)

// Encryptor encrypts an XML element for a recipient certificate. A fresh
// content encryption key is generated per operation and transported inside
// an xenc:EncryptedKey wrapped for the certificate's RSA public key.
type Encryptor struct {
	cert          *x509.Certificate
	publicKey     *rsa.PublicKey
	dataAlgorithm string
	keyTransport  string
}

// EncryptorOption configures an Encryptor
type EncryptorOption func(*Encryptor)

// WithDataAlgorithm selects the content encryption algorithm URI
func WithDataAlgorithm(algorithm string) EncryptorOption {
	return func(e *Encryptor) { e.dataAlgorithm = algorithm }
}

// WithKeyTransport selects the key transport algorithm URI
func WithKeyTransport(algorithm string) EncryptorOption {
	return func(e *Encryptor) { e.keyTransport = algorithm }
}

// NewEncryptor creates an encryptor for the recipient certificate.
// Defaults are AES-128-GCM content encryption with RSA-OAEP key transport.
func NewEncryptor(cert *x509.Certificate, opts ...EncryptorOption) (*Encryptor, error) {
	if cert == nil {
		return nil, fmt.Errorf("certificate is required")
	}
	publicKey, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("certificate does not contain RSA public key")
	}

	e := &Encryptor{
		cert:          cert,
		publicKey:     publicKey,
		dataAlgorithm: xmlenc.AlgorithmAES128GCM,
		keyTransport:  xmlenc.AlgorithmRSAOAEP,
	}
	for _, opt := range opts {
		opt(e)
	}

	if xmlenc.KeySize(e.dataAlgorithm) == 0 {
		return nil, fmt.Errorf("unsupported content encryption algorithm: %s", e.dataAlgorithm)
	}
	switch e.keyTransport {
	case xmlenc.AlgorithmRSAOAEP, xmlenc.AlgorithmRSAv15:
		// Supported
	default:
		return nil, fmt.Errorf("unsupported key transport algorithm: %s", e.keyTransport)
	}

	return e, nil
}

// EncryptDocument encrypts the document's root element in place
func (e *Encryptor) EncryptDocument(doc *etree.Document) error {
	root := doc.Root()
	if root == nil {
		return fmt.Errorf("no root element found")
	}
	return e.EncryptElement(doc, root)
}

// EncryptElement replaces elem with an xenc:EncryptedData element holding
// the encrypted serialization of elem.
func (e *Encryptor) EncryptElement(doc *etree.Document, elem *etree.Element) error {
	plaintext, err := serializeElement(elem)
	if err != nil {
		return err
	}

	cek := make([]byte, xmlenc.KeySize(e.dataAlgorithm))
	if _, err := rand.Read(cek); err != nil {
		return fmt.Errorf("generating content encryption key: %w", err)
	}

	ciphertext, err := encryptContent(e.dataAlgorithm, cek, plaintext)
	if err != nil {
		return err
	}

	wrappedKey, err := e.wrapKey(cek)
	if err != nil {
		return err
	}

	encElem := e.buildEncryptedData(ciphertext, wrappedKey)

	parent := elem.Parent()
	if parent == nil {
		doc.SetRoot(encElem)
		return nil
	}
	index := tokenIndex(parent, elem)
	parent.RemoveChild(elem)
	parent.InsertChildAt(index, encElem)
	return nil
}

func (e *Encryptor) wrapKey(cek []byte) ([]byte, error) {
	switch e.keyTransport {
	case xmlenc.AlgorithmRSAOAEP:
		// rsa-oaep-mgf1p fixes the mask generation function to MGF1 with
		// SHA-1, and EncryptOAEP uses one hash for both the digest and the
		// MGF, so SHA-1 is the only conformant pairing here.
		wrapped, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, e.publicKey, cek, nil)
		if err != nil {
			return nil, fmt.Errorf("RSA-OAEP key wrap: %w", err)
		}
		return wrapped, nil
	case xmlenc.AlgorithmRSAv15:
		wrapped, err := rsa.EncryptPKCS1v15(rand.Reader, e.publicKey, cek)
		if err != nil {
			return nil, fmt.Errorf("RSA-1.5 key wrap: %w", err)
		}
		return wrapped, nil
	default:
		return nil, fmt.Errorf("unsupported key transport algorithm: %s", e.keyTransport)
	}
}

// buildEncryptedData assembles the EncryptedData element:
//
//	<xenc:EncryptedData Type="...#Element">
//	  <xenc:EncryptionMethod Algorithm="...aes128-gcm"/>
//	  <ds:KeyInfo>
//	    <xenc:EncryptedKey>
//	      <xenc:EncryptionMethod Algorithm="...rsa-oaep-mgf1p">
//	        <ds:DigestMethod Algorithm="...sha1"/>
//	      </xenc:EncryptionMethod>
//	      <ds:KeyInfo><ds:X509Data>...IssuerSerial...</ds:X509Data></ds:KeyInfo>
//	      <xenc:CipherData><xenc:CipherValue/></xenc:CipherData>
//	    </xenc:EncryptedKey>
//	  </ds:KeyInfo>
//	  <xenc:CipherData><xenc:CipherValue/></xenc:CipherData>
//	</xenc:EncryptedData>
func (e *Encryptor) buildEncryptedData(ciphertext, wrappedKey []byte) *etree.Element {
	encElem := etree.NewElement("xenc:EncryptedData")
	encElem.CreateAttr("xmlns:xenc", xmlenc.NamespaceXMLEnc)
	encElem.CreateAttr("Id", "ED-"+uuid.NewString())
	encElem.CreateAttr("Type", xmlenc.TypeElement)

	method := encElem.CreateElement("xenc:EncryptionMethod")
	method.CreateAttr("Algorithm", e.dataAlgorithm)

	keyInfo := encElem.CreateElement("ds:KeyInfo")
	keyInfo.CreateAttr("xmlns:ds", xmlenc.NamespaceXMLDSig)

	encKey := keyInfo.CreateElement("xenc:EncryptedKey")
	encKey.CreateAttr("Id", "EK-"+uuid.NewString())

	keyMethod := encKey.CreateElement("xenc:EncryptionMethod")
	keyMethod.CreateAttr("Algorithm", e.keyTransport)
	if e.keyTransport == xmlenc.AlgorithmRSAOAEP {
		digest := keyMethod.CreateElement("ds:DigestMethod")
		digest.CreateAttr("Algorithm", xmlenc.AlgorithmSHA1)
	}

	// Identify the recipient key by issuer and serial
	ekKeyInfo := encKey.CreateElement("ds:KeyInfo")
	x509Data := ekKeyInfo.CreateElement("ds:X509Data")
	issuerSerial := x509Data.CreateElement("ds:X509IssuerSerial")
	issuerName := issuerSerial.CreateElement("ds:X509IssuerName")
	issuerName.SetText(e.cert.Issuer.String())
	serialNumber := issuerSerial.CreateElement("ds:X509SerialNumber")
	serialNumber.SetText(e.cert.SerialNumber.String())

	ekCipherData := encKey.CreateElement("xenc:CipherData")
	ekCipherValue := ekCipherData.CreateElement("xenc:CipherValue")
	ekCipherValue.SetText(base64.StdEncoding.EncodeToString(wrappedKey))

	cipherData := encElem.CreateElement("xenc:CipherData")
	cipherValue := cipherData.CreateElement("xenc:CipherValue")
	cipherValue.SetText(base64.StdEncoding.EncodeToString(ciphertext))

	return encElem
}

func serializeElement(elem *etree.Element) ([]byte, error) {
	tmp := etree.NewDocument()
	tmp.SetRoot(elem.Copy())
	data, err := tmp.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serializing element: %w", err)
	}
	return data, nil
}

// encryptContent encrypts plaintext with the given content cipher, IV
// prepended per XML-Enc. GCM output carries the tag at the end.
func encryptContent(algorithm string, key, plaintext []byte) ([]byte, error) {
	if xmlenc.IsGCM(algorithm) {
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("creating AES cipher: %w", err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("creating GCM: %w", err)
		}
		nonce := make([]byte, gcm.NonceSize())
		if _, err := rand.Read(nonce); err != nil {
			return nil, fmt.Errorf("generating nonce: %w", err)
		}
		return gcm.Seal(nonce, nonce, plaintext, nil), nil
	}

	switch algorithm {
	case xmlenc.AlgorithmAES128CBC, xmlenc.AlgorithmAES192CBC, xmlenc.AlgorithmAES256CBC:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("creating AES cipher: %w", err)
		}
		return encryptCBC(block, plaintext)
	case xmlenc.AlgorithmTripleDES:
		return nil, fmt.Errorf("refusing to encrypt with Triple DES; decrypt-only")
	default:
		return nil, fmt.Errorf("unsupported content encryption algorithm: %s", algorithm)
	}
}

func encryptCBC(block cipher.Block, plaintext []byte) ([]byte, error) {
	size := block.BlockSize()

	// XML-Enc padding: pad to a full block, final byte holds the pad length
	pad := size - len(plaintext)%size
	padded := make([]byte, len(plaintext)+pad)
	copy(padded, plaintext)
	padded[len(padded)-1] = byte(pad)

	out := make([]byte, size+len(padded))
	iv := out[:size]
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generating IV: %w", err)
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[size:], padded)
	return out, nil
}
