package xmlsig

import (
	"bytes"
	"context"
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/crypto/ocsp"
)

// ErrCertificateRevoked indicates the signing certificate has been revoked
var ErrCertificateRevoked = errors.New("certificate has been revoked")

// RevocationChecker checks whether a certificate has been revoked.
// Returns nil for a good certificate, ErrCertificateRevoked for a revoked
// one, and other errors when the status could not be determined.
type RevocationChecker interface {
	CheckRevocation(ctx context.Context, cert, issuer *x509.Certificate) error
}

// OCSPConfig configures OCSP checking behavior
type OCSPConfig struct {
	// HTTPClient for OCSP requests (optional)
	HTTPClient *http.Client
	// Timeout for OCSP requests
	Timeout time.Duration
	// CRLFallback enables CRL checking if OCSP fails
	CRLFallback bool
	// CacheTimeout for caching revocation results
	CacheTimeout time.Duration
	// StrictMode fails if revocation status cannot be determined
	StrictMode bool
}

// DefaultOCSPConfig returns default configuration
func DefaultOCSPConfig() *OCSPConfig {
	return &OCSPConfig{
		Timeout:      10 * time.Second,
		CRLFallback:  true,
		CacheTimeout: 1 * time.Hour,
		StrictMode:   false,
	}
}

// OCSPRevocationChecker implements RevocationChecker using OCSP with
// optional CRL fallback. Results are cached per certificate serial.
type OCSPRevocationChecker struct {
	config     *OCSPConfig
	httpClient *http.Client

	mu       sync.RWMutex
	results  map[string]revocationResult
	crlByURL map[string]crlEntry
}

type revocationResult struct {
	err       error
	checkedAt time.Time
}

type crlEntry struct {
	crl       *x509.RevocationList
	fetchedAt time.Time
}

// NewOCSPRevocationChecker creates a new OCSP-based revocation checker
func NewOCSPRevocationChecker(config *OCSPConfig) *OCSPRevocationChecker {
	if config == nil {
		config = DefaultOCSPConfig()
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: config.Timeout,
		}
	}

	return &OCSPRevocationChecker{
		config:     config,
		httpClient: client,
		results:    make(map[string]revocationResult),
		crlByURL:   make(map[string]crlEntry),
	}
}

// CheckRevocation checks certificate revocation status
func (c *OCSPRevocationChecker) CheckRevocation(ctx context.Context, cert, issuer *x509.Certificate) error {
	if cert == nil {
		return fmt.Errorf("certificate is nil")
	}
	if issuer == nil {
		return fmt.Errorf("issuer certificate is nil")
	}

	ocspErr := c.checkOCSP(ctx, cert, issuer)
	if ocspErr == nil {
		return nil
	}
	if errors.Is(ocspErr, ErrCertificateRevoked) {
		return ocspErr
	}

	// OCSP failed for other reasons, try CRL if configured
	if c.config.CRLFallback {
		crlErr := c.checkCRL(ctx, cert)
		if crlErr == nil {
			return nil
		}
		if errors.Is(crlErr, ErrCertificateRevoked) {
			return crlErr
		}
		if c.config.StrictMode {
			return fmt.Errorf("revocation check failed: OCSP: %v, CRL: %v", ocspErr, crlErr)
		}
	}

	// In non-strict mode an undetermined status passes
	if c.config.StrictMode {
		return fmt.Errorf("OCSP check failed: %w", ocspErr)
	}
	return nil
}

func (c *OCSPRevocationChecker) checkOCSP(ctx context.Context, cert, issuer *x509.Certificate) error {
	serial := cert.SerialNumber.String()
	if cached, ok := c.cachedResult(serial); ok {
		return cached
	}

	if len(cert.OCSPServer) == 0 {
		return fmt.Errorf("no OCSP server URL in certificate")
	}
	ocspURL := cert.OCSPServer[0]

	ocspRequest, err := ocsp.CreateRequest(cert, issuer, &ocsp.RequestOptions{
		Hash: crypto.SHA256,
	})
	if err != nil {
		return fmt.Errorf("failed to create OCSP request: %w", err)
	}

	resp, err := c.doOCSPRequest(ctx, ocspURL, ocspRequest)
	if err != nil {
		return fmt.Errorf("OCSP request failed: %w", err)
	}

	ocspResp, err := ocsp.ParseResponseForCert(resp, cert, issuer)
	if err != nil {
		return fmt.Errorf("failed to parse OCSP response: %w", err)
	}

	var result error
	switch ocspResp.Status {
	case ocsp.Good:
		result = nil
	case ocsp.Revoked:
		result = ErrCertificateRevoked
	case ocsp.Unknown:
		result = fmt.Errorf("OCSP status unknown")
	default:
		result = fmt.Errorf("unexpected OCSP status: %d", ocspResp.Status)
	}

	c.storeResult(serial, result)
	return result
}

// doOCSPRequest posts the request to the OCSP responder, falling back to
// the GET encoding when POST is refused.
func (c *OCSPRevocationChecker) doOCSPRequest(ctx context.Context, ocspURL string, request []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, ocspURL, bytes.NewReader(request))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/ocsp-request")
	httpReq.Header.Set("Accept", "application/ocsp-response")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return c.doOCSPGET(ctx, ocspURL, request)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.doOCSPGET(ctx, ocspURL, request)
	}

	return io.ReadAll(resp.Body)
}

func (c *OCSPRevocationChecker) doOCSPGET(ctx context.Context, ocspURL string, request []byte) ([]byte, error) {
	encoded := base64.StdEncoding.EncodeToString(request)
	reqURL := ocspURL + "/" + url.PathEscape(encoded)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/ocsp-response")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OCSP server returned status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func (c *OCSPRevocationChecker) checkCRL(ctx context.Context, cert *x509.Certificate) error {
	if len(cert.CRLDistributionPoints) == 0 {
		return fmt.Errorf("no CRL distribution points in certificate")
	}

	var lastErr error
	for _, dp := range cert.CRLDistributionPoints {
		crl, err := c.fetchCRL(ctx, dp)
		if err != nil {
			lastErr = err
			continue
		}

		for _, revoked := range crl.RevokedCertificateEntries {
			if revoked.SerialNumber.Cmp(cert.SerialNumber) == 0 {
				return ErrCertificateRevoked
			}
		}

		// Not listed in the CRL
		return nil
	}

	return fmt.Errorf("failed to check CRL: %w", lastErr)
}

func (c *OCSPRevocationChecker) fetchCRL(ctx context.Context, crlURL string) (*x509.RevocationList, error) {
	c.mu.RLock()
	entry, ok := c.crlByURL[crlURL]
	c.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) <= c.config.CacheTimeout {
		return entry.crl, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, crlURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("CRL server returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	crl, err := x509.ParseRevocationList(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CRL: %w", err)
	}

	c.mu.Lock()
	c.crlByURL[crlURL] = crlEntry{crl: crl, fetchedAt: time.Now()}
	c.mu.Unlock()

	return crl, nil
}

func (c *OCSPRevocationChecker) cachedResult(serial string) (error, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.results[serial]
	if !ok || time.Since(entry.checkedAt) > c.config.CacheTimeout {
		return nil, false
	}
	return entry.err, true
}

func (c *OCSPRevocationChecker) storeResult(serial string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results[serial] = revocationResult{err: err, checkedAt: time.Now()}
}
