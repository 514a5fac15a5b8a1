// Package keystore provides the file-based signer implementation
package keystore

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"io"
	"os"
	"sync"
)

// FileProvider implements Provider using PEM files on disk.
//
// Key and certificate references are file paths. Loaded signers are cached
// per key path for the lifetime of the provider.
type FileProvider struct {
	mu      sync.RWMutex
	signers map[string]*fileSigner
}

// NewFileProvider creates a new file-based signer provider
func NewFileProvider() *FileProvider {
	return &FileProvider{
		signers: make(map[string]*fileSigner),
	}
}

// GetSigner returns a signer backed by the PEM key at keyRef and the
// certificate at certRef.
func (p *FileProvider) GetSigner(ctx context.Context, keyRef, certRef string) (Signer, error) {
	cacheKey := keyRef + ":" + certRef

	// Check cache first
	p.mu.RLock()
	if signer, ok := p.signers[cacheKey]; ok {
		p.mu.RUnlock()
		return signer, nil
	}
	p.mu.RUnlock()

	signer, err := p.loadSigner(keyRef, certRef)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.signers[cacheKey] = signer
	p.mu.Unlock()

	return signer, nil
}

// GetCertificate returns the certificate at the given path
func (p *FileProvider) GetCertificate(ctx context.Context, certRef string) (*x509.Certificate, error) {
	return LoadCertificate(certRef)
}

// Close releases resources
func (p *FileProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signers = make(map[string]*fileSigner)
	return nil
}

func (p *FileProvider) loadSigner(keyPath, certPath string) (*fileSigner, error) {
	key, err := LoadPrivateKey(keyPath)
	if err != nil {
		return nil, err
	}

	cert, err := LoadCertificate(certPath)
	if err != nil {
		return nil, err
	}

	return &fileSigner{
		key:       key,
		cert:      cert,
		algorithm: determineAlgorithmFromKey(key),
	}, nil
}

// fileSigner implements Signer for file-based keys
type fileSigner struct {
	key       crypto.Signer
	cert      *x509.Certificate
	algorithm string
}

func (s *fileSigner) Sign(rand io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	return s.key.Sign(rand, digest, opts)
}

func (s *fileSigner) Public() crypto.PublicKey {
	return s.key.Public()
}

func (s *fileSigner) Certificate() *x509.Certificate {
	return s.cert
}

func (s *fileSigner) Algorithm() string {
	return s.algorithm
}

// LoadPrivateKey reads a PEM-encoded private key from path.
// PKCS#1, SEC1 and PKCS#8 encodings are accepted.
func LoadPrivateKey(path string) (crypto.Signer, error) {
	pemData, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, path)
		}
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	key, err := parsePrivateKey(pemData)
	if err != nil {
		return nil, fmt.Errorf("parsing private key %q: %w", path, err)
	}
	return key, nil
}

// LoadRSAPrivateKey reads a PEM-encoded key from path and requires it to be RSA.
func LoadRSAPrivateKey(path string) (*rsa.PrivateKey, error) {
	key, err := LoadPrivateKey(path)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key in %q is not an RSA key", path)
	}
	return rsaKey, nil
}

// LoadCertificate reads a PEM-encoded X.509 certificate from path.
func LoadCertificate(path string) (*x509.Certificate, error) {
	certPEM, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrCertNotFound, path)
		}
		return nil, fmt.Errorf("reading certificate file: %w", err)
	}

	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %q", path)
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing certificate %q: %w", path, err)
	}
	return cert, nil
}

// LoadSymmetricKey reads raw symmetric key material from path. The file may
// hold the key bytes directly, base64 text, or a PEM block of any type.
func LoadSymmetricKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, path)
		}
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	if block, _ := pem.Decode(data); block != nil {
		return block.Bytes, nil
	}

	// Base64 text keys are common enough to accept transparently.
	trimmed := trimSpace(data)
	if decoded, err := base64.StdEncoding.DecodeString(string(trimmed)); err == nil && len(decoded) > 0 {
		return decoded, nil
	}

	return data, nil
}

func trimSpace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func parsePrivateKey(pemData []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("key is not a signer")
		}
		return signer, nil
	default:
		return nil, fmt.Errorf("unsupported key type: %s", block.Type)
	}
}

func determineAlgorithmFromKey(key crypto.Signer) string {
	switch key.(type) {
	case *ecdsa.PrivateKey:
		return "http://www.w3.org/2001/04/xmldsig-more#ecdsa-sha256"
	case *rsa.PrivateKey:
		return "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	default:
		return "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	}
}
