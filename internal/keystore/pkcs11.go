//go:build pkcs11

// Package keystore provides the PKCS#11 signer implementation
package keystore

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/x509"
	"fmt"
	"io"
	"sync"

	"github.com/ThalesGroup/crypto11"
)

// PKCS11Provider implements Provider using a PKCS#11 token (HSM/smart card).
// Key and certificate references are object labels on the token.
type PKCS11Provider struct {
	ctx     *crypto11.Context
	mu      sync.RWMutex
	signers map[string]*pkcs11Signer
}

// PKCS11Config holds configuration for the PKCS#11 provider
type PKCS11Config struct {
	// ModulePath is the path to the PKCS#11 library (.so/.dylib/.dll)
	ModulePath string

	// SlotID is the slot number to use (optional if SlotLabel is provided)
	SlotID *uint

	// SlotLabel is the token label to search for (optional if SlotID is provided)
	SlotLabel string

	// PIN is the user PIN for authentication
	PIN string
}

// NewPKCS11Provider creates a new PKCS#11 signer provider
func NewPKCS11Provider(cfg *PKCS11Config) (*PKCS11Provider, error) {
	config := &crypto11.Config{
		Path: cfg.ModulePath,
		Pin:  cfg.PIN,
	}

	if cfg.SlotID != nil {
		slotID := int(*cfg.SlotID)
		config.SlotNumber = &slotID
	}
	if cfg.SlotLabel != "" {
		config.TokenLabel = cfg.SlotLabel
	}

	ctx, err := crypto11.Configure(config)
	if err != nil {
		return nil, fmt.Errorf("configuring PKCS#11: %w", err)
	}

	return &PKCS11Provider{
		ctx:     ctx,
		signers: make(map[string]*pkcs11Signer),
	}, nil
}

// GetSigner returns a signer for the key with the given label
func (p *PKCS11Provider) GetSigner(ctx context.Context, keyRef, certRef string) (Signer, error) {
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

// GetCertificate returns the certificate with the given label
func (p *PKCS11Provider) GetCertificate(ctx context.Context, certRef string) (*x509.Certificate, error) {
	cert, err := p.ctx.FindCertificate(nil, []byte(certRef), nil)
	if err != nil {
		return nil, fmt.Errorf("finding certificate: %w", err)
	}
	if cert == nil {
		return nil, ErrCertNotFound
	}
	return cert, nil
}

// Close releases PKCS#11 resources
func (p *PKCS11Provider) Close() error {
	return p.ctx.Close()
}

func (p *PKCS11Provider) loadSigner(keyLabel, certLabel string) (*pkcs11Signer, error) {
	key, err := p.ctx.FindKeyPair(nil, []byte(keyLabel))
	if err != nil {
		return nil, fmt.Errorf("finding key pair: %w", err)
	}
	if key == nil {
		return nil, ErrKeyNotFound
	}

	cert, err := p.ctx.FindCertificate(nil, []byte(certLabel), nil)
	if err != nil {
		return nil, fmt.Errorf("finding certificate: %w", err)
	}
	if cert == nil {
		return nil, ErrCertNotFound
	}

	return &pkcs11Signer{
		key:       key,
		cert:      cert,
		algorithm: determineAlgorithm(key),
	}, nil
}

// pkcs11Signer implements Signer using a PKCS#11 key
type pkcs11Signer struct {
	key       crypto11.Signer
	cert      *x509.Certificate
	algorithm string
}

func (s *pkcs11Signer) Sign(rand io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	return s.key.Sign(rand, digest, opts)
}

func (s *pkcs11Signer) Public() crypto.PublicKey {
	return s.key.Public()
}

func (s *pkcs11Signer) Certificate() *x509.Certificate {
	return s.cert
}

func (s *pkcs11Signer) Algorithm() string {
	return s.algorithm
}

func determineAlgorithm(key crypto.Signer) string {
	switch key.Public().(type) {
	case *ecdsa.PublicKey:
		return "http://www.w3.org/2001/04/xmldsig-more#ecdsa-sha256"
	default:
		// Assume RSA
		return "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	}
}
