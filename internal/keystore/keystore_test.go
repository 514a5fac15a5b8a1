package keystore

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kajala/xmlseal/internal/config"
)

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func generateRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func writeRSAKeyPKCS1(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()
	pemData := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	return writeTempFile(t, "key.pem", pemData)
}

func selfSignedCert(t *testing.T, key *rsa.PrivateKey) []byte {
	t.Helper()
	template := &x509.Certificate{
		SerialNumber: big.NewInt(42),
		Subject:      pkix.Name{CommonName: "keystore-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func TestLoadPrivateKey_PKCS1(t *testing.T) {
	key := generateRSAKey(t)
	path := writeRSAKeyPKCS1(t, key)

	loaded, err := LoadPrivateKey(path)
	require.NoError(t, err)

	rsaKey, ok := loaded.(*rsa.PrivateKey)
	require.True(t, ok)
	assert.True(t, rsaKey.Equal(key))
}

func TestLoadPrivateKey_PKCS8(t *testing.T) {
	key := generateRSAKey(t)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	path := writeTempFile(t, "key.pem", pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: der,
	}))

	loaded, err := LoadPrivateKey(path)
	require.NoError(t, err)
	_, ok := loaded.(*rsa.PrivateKey)
	assert.True(t, ok)
}

func TestLoadPrivateKey_EC(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	path := writeTempFile(t, "key.pem", pem.EncodeToMemory(&pem.Block{
		Type:  "EC PRIVATE KEY",
		Bytes: der,
	}))

	loaded, err := LoadPrivateKey(path)
	require.NoError(t, err)
	_, ok := loaded.(*ecdsa.PrivateKey)
	assert.True(t, ok)
}

func TestLoadPrivateKey_Missing(t *testing.T) {
	_, err := LoadPrivateKey(filepath.Join(t.TempDir(), "nope.pem"))
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestLoadPrivateKey_Garbage(t *testing.T) {
	path := writeTempFile(t, "key.pem", []byte("not a pem file"))
	_, err := LoadPrivateKey(path)
	assert.Error(t, err)
}

func TestLoadRSAPrivateKey_RejectsEC(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	path := writeTempFile(t, "key.pem", pem.EncodeToMemory(&pem.Block{
		Type:  "EC PRIVATE KEY",
		Bytes: der,
	}))

	_, err = LoadRSAPrivateKey(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not an RSA key")
}

func TestLoadCertificate(t *testing.T) {
	key := generateRSAKey(t)
	path := writeTempFile(t, "cert.pem", selfSignedCert(t, key))

	cert, err := LoadCertificate(path)
	require.NoError(t, err)
	assert.Equal(t, "keystore-test", cert.Subject.CommonName)
}

func TestLoadCertificate_Missing(t *testing.T) {
	_, err := LoadCertificate(filepath.Join(t.TempDir(), "nope.pem"))
	assert.ErrorIs(t, err, ErrCertNotFound)
}

func TestLoadSymmetricKey_Raw(t *testing.T) {
	// Leading zero byte keeps the content from parsing as base64
	raw := []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
		0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F}
	path := writeTempFile(t, "key.bin", raw)

	loaded, err := LoadSymmetricKey(path)
	require.NoError(t, err)
	assert.Equal(t, raw, loaded)
}

func TestLoadSymmetricKey_Base64(t *testing.T) {
	raw := []byte("0123456789abcdef")
	encoded := base64.StdEncoding.EncodeToString(raw) + "\n"
	path := writeTempFile(t, "key.b64", []byte(encoded))

	loaded, err := LoadSymmetricKey(path)
	require.NoError(t, err)
	assert.Equal(t, raw, loaded)
}

func TestLoadSymmetricKey_PEM(t *testing.T) {
	raw := []byte("0123456789abcdef")
	pemData := pem.EncodeToMemory(&pem.Block{Type: "SYMMETRIC KEY", Bytes: raw})
	path := writeTempFile(t, "key.pem", pemData)

	loaded, err := LoadSymmetricKey(path)
	require.NoError(t, err)
	assert.Equal(t, raw, loaded)
}

func TestManager_AddKeyFile_PrivateKey(t *testing.T) {
	key := generateRSAKey(t)
	path := writeRSAKeyPKCS1(t, key)

	m := NewManager()
	require.NoError(t, m.AddKeyFile(path))
	assert.Equal(t, 1, m.Len())

	resolved, err := m.Resolve(path)
	require.NoError(t, err)
	assert.Equal(t, path, resolved.Name)
	assert.NotNil(t, resolved.Private)
	assert.Empty(t, resolved.Secret)
}

func TestManager_AddKeyFile_SymmetricKey(t *testing.T) {
	raw := []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77,
		0x88, 0x99, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	path := writeTempFile(t, "key.bin", raw)

	m := NewManager()
	require.NoError(t, m.AddKeyFile(path))

	resolved, err := m.Resolve(path)
	require.NoError(t, err)
	assert.Nil(t, resolved.Private)
	assert.Equal(t, raw, resolved.Secret)
}

func TestManager_AddKeyFile_Missing(t *testing.T) {
	m := NewManager()
	err := m.AddKeyFile(filepath.Join(t.TempDir(), "nope.pem"))
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestManager_Default(t *testing.T) {
	m := NewManager()
	_, err := m.Default()
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, m.Add(&Key{Name: "first", Secret: []byte("0123456789abcdef")}))
	require.NoError(t, m.Add(&Key{Name: "second", Secret: []byte("fedcba9876543210")}))

	key, err := m.Default()
	require.NoError(t, err)
	assert.Equal(t, "first", key.Name)
}

func TestManager_Add_Validation(t *testing.T) {
	m := NewManager()

	err := m.Add(&Key{Secret: []byte("0123456789abcdef")})
	assert.Error(t, err)

	err = m.Add(&Key{Name: "empty"})
	assert.Error(t, err)

	require.NoError(t, m.Add(&Key{Name: "dup", Secret: []byte("0123456789abcdef")}))
	err = m.Add(&Key{Name: "dup", Secret: []byte("0123456789abcdef")})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestManager_Close_WipesSecrets(t *testing.T) {
	secret := []byte("0123456789abcdef")
	m := NewManager()
	require.NoError(t, m.Add(&Key{Name: "wipe-me", Secret: secret}))

	require.NoError(t, m.Close())
	assert.Equal(t, 0, m.Len())
	for _, b := range secret {
		assert.Zero(t, b)
	}
}

func TestFileProvider_GetSigner(t *testing.T) {
	key := generateRSAKey(t)
	keyPath := writeRSAKeyPKCS1(t, key)
	certPath := writeTempFile(t, "cert.pem", selfSignedCert(t, key))

	p := NewFileProvider()
	defer p.Close()

	signer, err := p.GetSigner(context.Background(), keyPath, certPath)
	require.NoError(t, err)
	assert.Equal(t, "keystore-test", signer.Certificate().Subject.CommonName)
	assert.Equal(t, "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256", signer.Algorithm())

	// Second lookup hits the cache and returns the same signer
	again, err := p.GetSigner(context.Background(), keyPath, certPath)
	require.NoError(t, err)
	assert.Same(t, signer, again)
}

func TestFileProvider_GetSigner_BadKey(t *testing.T) {
	key := generateRSAKey(t)
	certPath := writeTempFile(t, "cert.pem", selfSignedCert(t, key))

	p := NewFileProvider()
	defer p.Close()

	_, err := p.GetSigner(context.Background(), filepath.Join(t.TempDir(), "nope.pem"), certPath)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrKeyNotFound))
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(&config.KeysConfig{Mode: "file"})
	require.NoError(t, err)
	assert.IsType(t, &FileProvider{}, p)
	require.NoError(t, p.Close())

	_, err = NewProvider(&config.KeysConfig{Mode: "vault"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown keys mode")
}

func TestPKCS11Provider_Stub(t *testing.T) {
	_, err := NewPKCS11Provider(&PKCS11Config{ModulePath: "/nonexistent.so"})
	if err == nil {
		t.Skip("built with pkcs11 support")
	}
	assert.Error(t, err)
}
