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
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kajala/xmlseal/internal/config"
	"github.com/kajala/xmlseal/internal/keystore"
	"github.com/kajala/xmlseal/pkg/xmlcrypt"
)

func encryptFixture(t *testing.T) (docPath, certPath string, key *rsa.PrivateKey) {
	t.Helper()
	dir := t.TempDir()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(3),
		Subject:      pkix.Name{CommonName: "encrypt-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	docPath = filepath.Join(dir, "doc.xml")
	require.NoError(t, os.WriteFile(docPath,
		[]byte(`<Envelope><Data>hide me</Data></Envelope>`), 0644))

	certPath = filepath.Join(dir, "test.crt")
	require.NoError(t, os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: der,
	}), 0644))
	return docPath, certPath, key
}

func TestRun_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := run([]string{"encrypt"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "Usage:")
}

func TestRun_EncryptRoundTrip(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "")
	docPath, certPath, key := encryptFixture(t)

	var stdout, stderr bytes.Buffer
	code := run([]string{"encrypt", docPath, certPath}, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())
	assert.Contains(t, stdout.String(), "EncryptedData")
	assert.NotContains(t, stdout.String(), "hide me")

	// The output decrypts back to the original document
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(stdout.Bytes()))

	keys := keystore.NewManager()
	require.NoError(t, keys.Add(&keystore.Key{Name: "test.key", Private: key}))
	result, err := xmlcrypt.NewDecryptor(keys).DecryptDocument(doc)
	require.NoError(t, err)
	require.True(t, result.Replaced)

	restored := result.Document.FindElement("//Data")
	require.NotNil(t, restored)
	assert.Equal(t, "hide me", restored.Text())
}

func TestRun_ConfiguredCipher(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "xmlseal.yaml")
	require.NoError(t, os.WriteFile(cfgPath,
		[]byte("encrypt:\n  dataAlgorithm: http://www.w3.org/2001/04/xmlenc#aes256-cbc\n"), 0600))
	t.Setenv(config.EnvConfigPath, cfgPath)

	docPath, certPath, _ := encryptFixture(t)

	var stdout, stderr bytes.Buffer
	code := run([]string{"encrypt", docPath, certPath}, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())
	assert.Contains(t, stdout.String(), "aes256-cbc")
}

func TestRun_MissingCertFile(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "")
	docPath, _, _ := encryptFixture(t)

	var stdout, stderr bytes.Buffer
	code := run([]string{"encrypt", docPath, filepath.Join(t.TempDir(), "nope.crt")}, &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "Error:")
}
