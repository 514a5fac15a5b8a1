// Package keystore provides key and certificate loading for the xmlseal tools
//
// This package defines a unified interface for signing keys that can be
// implemented by different backends:
//
//   - File-based: Keys loaded from PEM files (the default)
//   - PKCS#11: Keys stored in hardware security modules (HSM) or smart cards,
//     available when built with the pkcs11 tag
//
// It also provides Manager, a small registry that maps symbolic key names to
// loaded key material for decryption. The command-line tools register exactly
// one key under the key file's path, mirroring the convention that a
// ds:KeyName holds the key file name.
package keystore

import (
	"context"
	"crypto"
	"crypto/x509"
	"errors"
	"io"
)

// Common errors
var (
	ErrKeyNotFound  = errors.New("key not found")
	ErrCertNotFound = errors.New("certificate not found")
)

// Provider supplies signing keys and certificates by reference.
//
// For the file backend the reference is a PEM file path; for PKCS#11 it is a
// key label on the token. Implementations must be safe for concurrent use.
type Provider interface {
	// GetSigner returns the signer for keyRef. The certRef names the
	// certificate that belongs with the key; the file backend reads it from
	// disk, PKCS#11 looks it up on the token.
	GetSigner(ctx context.Context, keyRef, certRef string) (Signer, error)

	// GetCertificate returns the X.509 certificate for certRef.
	GetCertificate(ctx context.Context, certRef string) (*x509.Certificate, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Signer performs cryptographic signing operations
//
// This interface is intentionally minimal - it provides just enough to sign
// an XML document. The implementation handles the complexity of key access.
type Signer interface {
	// Sign signs the digest using the underlying private key.
	// The opts parameter specifies the signature algorithm.
	Sign(rand io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error)

	// Public returns the public key corresponding to the private key.
	Public() crypto.PublicKey

	// Certificate returns the X.509 certificate for this signer.
	Certificate() *x509.Certificate

	// Algorithm returns the signature algorithm URI for XML signatures.
	Algorithm() string
}
