// Package xmlcrypt implements XML-Enc decryption with a keys manager
package xmlcrypt

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/rand"
	"crypto/rsa"
	_ "crypto/sha1" // register OAEP hashes
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/leifj/signedxml/xmlenc"

	"github.com/kajala/xmlseal/internal/keystore"
)

// Errors reported by the decryptor. Each maps to a distinct failure the
// decrypt tool reports on stderr.
var (
	ErrEncryptedDataNotFound = errors.New("EncryptedData element not found")
	ErrNoContentKey          = errors.New("no usable content encryption key")
	ErrDecryptFailed         = errors.New("decryption failed")
)

// Result is the outcome of decrypting a document.
//
// When the encrypted payload was itself XML the EncryptedData node has been
// replaced in place and Document holds the restored tree. Otherwise Data
// holds the raw decrypted bytes.
type Result struct {
	Replaced bool
	Document *etree.Document
	Data     []byte
}

// Decryptor decrypts the first xenc:EncryptedData element of a document
// using keys registered in a keystore.Manager.
type Decryptor struct {
	keys *keystore.Manager
}

// NewDecryptor creates a decryptor backed by the given keys manager
func NewDecryptor(keys *keystore.Manager) *Decryptor {
	return &Decryptor{keys: keys}
}

// DecryptFile parses the XML document at path and decrypts it
func (d *Decryptor) DecryptFile(path string) (*Result, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return nil, fmt.Errorf("unable to parse file %q: %w", path, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("unable to parse file %q: no root element", path)
	}
	return d.DecryptDocument(doc)
}

// DecryptDocument decrypts the first EncryptedData element in doc.
// The document is modified in place when the payload is XML.
func (d *Decryptor) DecryptDocument(doc *etree.Document) (*Result, error) {
	encElem := findEncryptedData(doc)
	if encElem == nil {
		return nil, ErrEncryptedDataNotFound
	}

	enc, err := parseEncryptedData(encElem)
	if err != nil {
		return nil, err
	}

	cek, err := d.contentKey(enc)
	if err != nil {
		return nil, err
	}

	plaintext, err := decryptContent(enc.Algorithm, cek, enc.CipherValue)
	if err != nil {
		return nil, err
	}

	switch enc.Type {
	case xmlenc.TypeElement:
		if err := replaceWithElement(doc, encElem, plaintext); err != nil {
			return nil, err
		}
		return &Result{Replaced: true, Document: doc}, nil
	case xmlenc.TypeContent:
		if err := replaceWithContent(encElem, plaintext); err != nil {
			return nil, err
		}
		return &Result{Replaced: true, Document: doc}, nil
	default:
		return &Result{Data: plaintext}, nil
	}
}

// encryptedData is the parsed form of an xenc:EncryptedData element
type encryptedData struct {
	Type         string
	Algorithm    string
	KeyName      string
	EncryptedKey *encryptedKey
	CipherValue  []byte
}

// encryptedKey is the parsed form of a nested xenc:EncryptedKey element
type encryptedKey struct {
	Algorithm       string
	DigestAlgorithm string
	MGFAlgorithm    string
	KeyName         string
	CipherValue     []byte
}

func findEncryptedData(doc *etree.Document) *etree.Element {
	elem := doc.FindElement("//EncryptedData")
	if elem == nil {
		elem = doc.FindElement("//*[local-name()='EncryptedData']")
	}
	return elem
}

// childElement finds a direct child by local name, tolerating any prefix
func childElement(elem *etree.Element, name string) *etree.Element {
	if e := elem.FindElement("./" + name); e != nil {
		return e
	}
	return elem.FindElement("./*[local-name()='" + name + "']")
}

func parseEncryptedData(elem *etree.Element) (*encryptedData, error) {
	enc := &encryptedData{
		Type: elem.SelectAttrValue("Type", ""),
	}

	if method := childElement(elem, "EncryptionMethod"); method != nil {
		enc.Algorithm = method.SelectAttrValue("Algorithm", "")
	}
	if enc.Algorithm == "" {
		return nil, fmt.Errorf("EncryptedData has no EncryptionMethod algorithm")
	}

	if keyInfo := childElement(elem, "KeyInfo"); keyInfo != nil {
		if keyName := childElement(keyInfo, "KeyName"); keyName != nil {
			enc.KeyName = strings.TrimSpace(keyName.Text())
		}
		if ekElem := childElement(keyInfo, "EncryptedKey"); ekElem != nil {
			ek, err := parseEncryptedKey(ekElem)
			if err != nil {
				return nil, err
			}
			enc.EncryptedKey = ek
		}
	}

	cipherValue, err := parseCipherValue(elem)
	if err != nil {
		return nil, err
	}
	enc.CipherValue = cipherValue

	return enc, nil
}

func parseEncryptedKey(elem *etree.Element) (*encryptedKey, error) {
	ek := &encryptedKey{}

	if method := childElement(elem, "EncryptionMethod"); method != nil {
		ek.Algorithm = method.SelectAttrValue("Algorithm", "")
		if digest := childElement(method, "DigestMethod"); digest != nil {
			ek.DigestAlgorithm = digest.SelectAttrValue("Algorithm", "")
		}
		if mgf := childElement(method, "MGF"); mgf != nil {
			ek.MGFAlgorithm = mgf.SelectAttrValue("Algorithm", "")
		}
	}
	if ek.Algorithm == "" {
		return nil, fmt.Errorf("EncryptedKey has no EncryptionMethod algorithm")
	}

	if keyInfo := childElement(elem, "KeyInfo"); keyInfo != nil {
		if keyName := childElement(keyInfo, "KeyName"); keyName != nil {
			ek.KeyName = strings.TrimSpace(keyName.Text())
		}
	}

	cipherValue, err := parseCipherValue(elem)
	if err != nil {
		return nil, err
	}
	ek.CipherValue = cipherValue

	return ek, nil
}

func parseCipherValue(elem *etree.Element) ([]byte, error) {
	cipherData := childElement(elem, "CipherData")
	if cipherData == nil {
		return nil, fmt.Errorf("%s has no CipherData", elem.Tag)
	}
	cipherValue := childElement(cipherData, "CipherValue")
	if cipherValue == nil {
		return nil, fmt.Errorf("%s has no CipherValue", elem.Tag)
	}

	// CipherValue is base64, possibly wrapped over multiple lines
	text := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, cipherValue.Text())

	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("decoding CipherValue: %w", err)
	}
	return data, nil
}

// contentKey produces the content encryption key, either by unwrapping the
// transported EncryptedKey with an asymmetric key from the manager or by
// using registered symmetric key material directly.
func (d *Decryptor) contentKey(enc *encryptedData) ([]byte, error) {
	if enc.EncryptedKey != nil {
		return d.unwrapKey(enc.EncryptedKey)
	}

	key, err := d.resolve(enc.KeyName)
	if err != nil {
		return nil, err
	}
	if len(key.Secret) == 0 {
		return nil, fmt.Errorf("%w: document carries no EncryptedKey and key %q is not symmetric",
			ErrNoContentKey, key.Name)
	}
	if size := xmlenc.KeySize(enc.Algorithm); size != 0 && len(key.Secret) != size {
		return nil, fmt.Errorf("%w: key %q is %d bytes, %s needs %d",
			ErrNoContentKey, key.Name, len(key.Secret), enc.Algorithm, size)
	}
	return key.Secret, nil
}

func (d *Decryptor) unwrapKey(ek *encryptedKey) ([]byte, error) {
	key, err := d.resolve(ek.KeyName)
	if err != nil {
		return nil, err
	}

	rsaKey, ok := key.Private.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: key %q cannot unwrap an EncryptedKey (RSA private key required)",
			ErrNoContentKey, key.Name)
	}

	switch ek.Algorithm {
	case xmlenc.AlgorithmRSAOAEP, xmlenc.AlgorithmRSAOAEP11:
		opts, err := oaepOptions(ek)
		if err != nil {
			return nil, err
		}
		cek, err := rsaKey.Decrypt(rand.Reader, ek.CipherValue, opts)
		if err != nil {
			return nil, fmt.Errorf("%w: RSA-OAEP unwrap: %v", ErrDecryptFailed, err)
		}
		return cek, nil
	case xmlenc.AlgorithmRSAv15:
		cek, err := rsa.DecryptPKCS1v15(rand.Reader, rsaKey, ek.CipherValue)
		if err != nil {
			return nil, fmt.Errorf("%w: RSA-1.5 unwrap: %v", ErrDecryptFailed, err)
		}
		return cek, nil
	default:
		return nil, fmt.Errorf("unsupported key transport algorithm: %s", ek.Algorithm)
	}
}

func (d *Decryptor) resolve(name string) (*keystore.Key, error) {
	if name == "" {
		return d.keys.Default()
	}
	key, err := d.keys.Resolve(name)
	if err == nil {
		return key, nil
	}
	// The KeyName convention is a file path; fall back to the single
	// registered key when the name does not match.
	if d.keys.Len() == 1 {
		return d.keys.Default()
	}
	return nil, err
}

// oaepOptions derives the OAEP parameters of an EncryptedKey. The digest
// comes from ds:DigestMethod, SHA-1 when absent. The MGF hash is fixed to
// SHA-1 for rsa-oaep-mgf1p; the xenc11 rsa-oaep algorithm carries it in an
// xenc11:MGF element, again defaulting to SHA-1.
func oaepOptions(ek *encryptedKey) (*rsa.OAEPOptions, error) {
	digest, err := oaepHash(ek.DigestAlgorithm)
	if err != nil {
		return nil, err
	}

	mgf := crypto.SHA1
	if ek.Algorithm == xmlenc.AlgorithmRSAOAEP11 && ek.MGFAlgorithm != "" {
		mgf, err = mgfHash(ek.MGFAlgorithm)
		if err != nil {
			return nil, err
		}
	}

	return &rsa.OAEPOptions{Hash: digest, MGFHash: mgf}, nil
}

func oaepHash(algorithm string) (crypto.Hash, error) {
	switch algorithm {
	case "", xmlenc.AlgorithmSHA1:
		return crypto.SHA1, nil
	case xmlenc.AlgorithmSHA256:
		return crypto.SHA256, nil
	case xmlenc.AlgorithmSHA384:
		return crypto.SHA384, nil
	case xmlenc.AlgorithmSHA512:
		return crypto.SHA512, nil
	default:
		return 0, fmt.Errorf("unsupported OAEP digest algorithm: %s", algorithm)
	}
}

func mgfHash(algorithm string) (crypto.Hash, error) {
	switch algorithm {
	case xmlenc.AlgorithmMGF1SHA1:
		return crypto.SHA1, nil
	case xmlenc.AlgorithmMGF1SHA256:
		return crypto.SHA256, nil
	case xmlenc.AlgorithmMGF1SHA384:
		return crypto.SHA384, nil
	case xmlenc.AlgorithmMGF1SHA512:
		return crypto.SHA512, nil
	default:
		return 0, fmt.Errorf("unsupported MGF algorithm: %s", algorithm)
	}
}

// decryptContent decrypts ciphertext with the given content cipher. Per
// XML-Enc the IV is prepended to the ciphertext; GCM ciphertext carries the
// authentication tag at the end.
func decryptContent(algorithm string, key, data []byte) ([]byte, error) {
	if size := xmlenc.KeySize(algorithm); size != 0 && len(key) != size {
		return nil, fmt.Errorf("%w: content key is %d bytes, %s needs %d",
			ErrDecryptFailed, len(key), algorithm, size)
	}

	if xmlenc.IsGCM(algorithm) {
		return decryptGCM(key, data)
	}

	switch algorithm {
	case xmlenc.AlgorithmAES128CBC, xmlenc.AlgorithmAES192CBC, xmlenc.AlgorithmAES256CBC:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
		}
		return decryptCBC(block, data)
	case xmlenc.AlgorithmTripleDES:
		block, err := des.NewTripleDESCipher(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
		}
		return decryptCBC(block, data)
	default:
		return nil, fmt.Errorf("unsupported content encryption algorithm: %s", algorithm)
	}
}

func decryptGCM(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	if len(data) < gcm.NonceSize() {
		return nil, fmt.Errorf("%w: ciphertext shorter than GCM nonce", ErrDecryptFailed)
	}
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	return plaintext, nil
}

func decryptCBC(block cipher.Block, data []byte) ([]byte, error) {
	size := block.BlockSize()
	if len(data) < 2*size || len(data)%size != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d invalid for block size %d",
			ErrDecryptFailed, len(data), size)
	}

	iv, ciphertext := data[:size], data[size:]
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	// XML-Enc padding: the final byte holds the pad length
	pad := int(plaintext[len(plaintext)-1])
	if pad < 1 || pad > size || pad > len(plaintext) {
		return nil, fmt.Errorf("%w: invalid padding", ErrDecryptFailed)
	}
	return plaintext[:len(plaintext)-pad], nil
}

// replaceWithElement swaps the EncryptedData element for the decrypted XML
// element. A root-level EncryptedData replaces the document root.
func replaceWithElement(doc *etree.Document, encElem *etree.Element, plaintext []byte) error {
	frag := etree.NewDocument()
	if err := frag.ReadFromBytes(plaintext); err != nil {
		return fmt.Errorf("%w: decrypted payload is not well-formed XML: %v", ErrDecryptFailed, err)
	}
	restored := frag.Root()
	if restored == nil {
		return fmt.Errorf("%w: decrypted payload is empty", ErrDecryptFailed)
	}

	parent := encElem.Parent()
	if parent == nil {
		doc.SetRoot(restored.Copy())
		return nil
	}

	index := tokenIndex(parent, encElem)
	parent.RemoveChild(encElem)
	parent.InsertChildAt(index, restored.Copy())
	return nil
}

// replaceWithContent swaps the EncryptedData element for the decrypted
// node sequence (Type "#Content" payloads may hold several siblings).
func replaceWithContent(encElem *etree.Element, plaintext []byte) error {
	parent := encElem.Parent()
	if parent == nil {
		return fmt.Errorf("%w: content-typed EncryptedData cannot be the document root", ErrDecryptFailed)
	}

	frag := etree.NewDocument()
	if err := frag.ReadFromString("<c>" + string(plaintext) + "</c>"); err != nil {
		return fmt.Errorf("%w: decrypted content is not well-formed XML: %v", ErrDecryptFailed, err)
	}

	index := tokenIndex(parent, encElem)
	parent.RemoveChild(encElem)
	for _, token := range frag.Root().Child {
		switch t := token.(type) {
		case *etree.Element:
			parent.InsertChildAt(index, t.Copy())
			index++
		case *etree.CharData:
			parent.InsertChildAt(index, etree.NewText(t.Data))
			index++
		}
	}
	return nil
}

func tokenIndex(parent, elem *etree.Element) int {
	for i, token := range parent.Child {
		if token == etree.Token(elem) {
			return i
		}
	}
	return len(parent.Child)
}
