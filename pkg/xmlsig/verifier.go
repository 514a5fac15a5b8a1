package xmlsig

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/leifj/signedxml"
)

// Errors reported during verification
var (
	ErrCertificateExpired     = errors.New("certificate has expired")
	ErrCertificateNotYetValid = errors.New("certificate is not yet valid")
)

// Verifier validates enveloped XML signatures against a trusted certificate
type Verifier struct {
	cert            *x509.Certificate
	issuer          *x509.Certificate
	checkValidity   bool
	checkRevocation bool
	revocation      RevocationChecker
}

// VerifierOption configures a Verifier
type VerifierOption func(*Verifier)

// WithValidityCheck enables checking the certificate validity window
func WithValidityCheck() VerifierOption {
	return func(v *Verifier) { v.checkValidity = true }
}

// WithRevocationCheck enables OCSP revocation checking against the issuer
// certificate.
func WithRevocationCheck(checker RevocationChecker, issuer *x509.Certificate) VerifierOption {
	return func(v *Verifier) {
		v.checkRevocation = true
		v.revocation = checker
		v.issuer = issuer
	}
}

// NewVerifier creates a verifier trusting the given certificate
func NewVerifier(cert *x509.Certificate, opts ...VerifierOption) (*Verifier, error) {
	if cert == nil {
		return nil, fmt.Errorf("certificate is required")
	}

	v := &Verifier{cert: cert}
	for _, opt := range opts {
		opt(v)
	}
	if v.checkRevocation && v.revocation == nil {
		v.revocation = NewOCSPRevocationChecker(nil)
	}
	return v, nil
}

// Verify checks the enveloped signature in data against the trusted
// certificate. All references must validate.
func (v *Verifier) Verify(ctx context.Context, data []byte) error {
	if v.checkValidity {
		now := time.Now()
		if now.After(v.cert.NotAfter) {
			return fmt.Errorf("%w: not valid after %s", ErrCertificateExpired, v.cert.NotAfter.Format(time.RFC3339))
		}
		if now.Before(v.cert.NotBefore) {
			return fmt.Errorf("%w: not valid before %s", ErrCertificateNotYetValid, v.cert.NotBefore.Format(time.RFC3339))
		}
	}

	validator, err := signedxml.NewValidator(string(data))
	if err != nil {
		return fmt.Errorf("failed to create validator: %w", err)
	}
	validator.Certificates = append(validator.Certificates, *v.cert)

	if _, err := validator.ValidateReferences(); err != nil {
		return fmt.Errorf("signature validation failed: %w", err)
	}

	if v.checkRevocation {
		issuer := v.issuer
		if issuer == nil {
			// Self-signed certificates answer for themselves
			issuer = v.cert
		}
		if err := v.revocation.CheckRevocation(ctx, v.cert, issuer); err != nil {
			return err
		}
	}

	return nil
}
