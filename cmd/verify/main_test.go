package main

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kajala/xmlseal/internal/config"
	"github.com/kajala/xmlseal/pkg/xmlsig"
)

func signedFixture(t *testing.T) (signedPath, certPath string, signedXML []byte) {
	t.Helper()
	dir := t.TempDir()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(5),
		Subject:      pkix.Name{CommonName: "verify-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(`<Envelope><Data>verify me</Data></Envelope>`))
	_, err = xmlsig.NewTemplateBuilder().AddTemplate(doc)
	require.NoError(t, err)

	signer, err := xmlsig.NewSigner(key, cert)
	require.NoError(t, err)
	signedXML, err = signer.SignDocument(doc)
	require.NoError(t, err)

	signedPath = filepath.Join(dir, "signed.xml")
	require.NoError(t, os.WriteFile(signedPath, signedXML, 0644))

	certPath = filepath.Join(dir, "test.crt")
	require.NoError(t, os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: cert.Raw,
	}), 0644))
	return signedPath, certPath, signedXML
}

func TestRun_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := run([]string{"verify"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "Usage:")
}

func TestRun_Verify(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "")
	signedPath, certPath, _ := signedFixture(t)

	var stdout, stderr bytes.Buffer
	code := run([]string{"verify", signedPath, certPath}, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())
	assert.Equal(t, "OK\n", stdout.String())
}

func TestRun_TamperedDocument(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "")
	signedPath, certPath, signedXML := signedFixture(t)

	tampered := strings.Replace(string(signedXML), "verify me", "verify ME", 1)
	require.NotEqual(t, string(signedXML), tampered)
	tamperedPath := filepath.Join(t.TempDir(), "tampered.xml")
	require.NoError(t, os.WriteFile(tamperedPath, []byte(tampered), 0644))

	var stdout, stderr bytes.Buffer
	code := run([]string{"verify", tamperedPath, certPath}, &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "verification failed")

	// Untampered file still verifies
	stdout.Reset()
	stderr.Reset()
	code = run([]string{"verify", signedPath, certPath}, &stdout, &stderr)
	assert.Equal(t, 0, code)
}

func TestRun_ValidityCheckFromConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "xmlseal.yaml")
	require.NoError(t, os.WriteFile(cfgPath,
		[]byte("verify:\n  checkCertValidity: true\n"), 0600))
	t.Setenv(config.EnvConfigPath, cfgPath)

	signedPath, certPath, _ := signedFixture(t)

	var stdout, stderr bytes.Buffer
	code := run([]string{"verify", signedPath, certPath}, &stdout, &stderr)
	assert.Equal(t, 0, code, "stderr: %s", stderr.String())
}

func TestRun_MissingCertFile(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "")
	signedPath, _, _ := signedFixture(t)

	var stdout, stderr bytes.Buffer
	code := run([]string{"verify", signedPath, filepath.Join(t.TempDir(), "nope.crt")}, &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "Error:")
}
