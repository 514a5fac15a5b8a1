package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "xmlseal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "file", cfg.Keys.Mode)
	assert.Equal(t, "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256", cfg.Sign.SignatureAlgorithm)
	assert.Equal(t, "http://www.w3.org/2001/04/xmlenc#sha256", cfg.Sign.DigestAlgorithm)
	assert.False(t, cfg.Sign.BuildTemplate)
	assert.Equal(t, "http://www.w3.org/2009/xmlenc11#aes128-gcm", cfg.Encrypt.DataAlgorithm)
	assert.Equal(t, "http://www.w3.org/2001/04/xmlenc#rsa-oaep-mgf1p", cfg.Encrypt.KeyTransport)
	assert.False(t, cfg.Verify.CheckRevocation)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
sign:
  buildTemplate: true
encrypt:
  dataAlgorithm: http://www.w3.org/2001/04/xmlenc#aes256-cbc
verify:
  checkCertValidity: true
  checkRevocation: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Sign.BuildTemplate)
	assert.Equal(t, "http://www.w3.org/2001/04/xmlenc#aes256-cbc", cfg.Encrypt.DataAlgorithm)
	assert.True(t, cfg.Verify.CheckCertValidity)
	assert.True(t, cfg.Verify.CheckRevocation)

	// Unset fields keep their defaults
	assert.Equal(t, "file", cfg.Keys.Mode)
	assert.Equal(t, "http://www.w3.org/2001/04/xmlenc#rsa-oaep-mgf1p", cfg.Encrypt.KeyTransport)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_HSM_PIN", "1234")
	path := writeConfig(t, `
keys:
  mode: pkcs11
  pkcs11:
    modulePath: /usr/lib/softhsm/libsofthsm2.so
    pin: ${TEST_HSM_PIN}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "1234", cfg.Keys.PKCS11.PIN)
}

func TestLoad_InvalidMode(t *testing.T) {
	path := writeConfig(t, "keys:\n  mode: vault\n")

	_, err := Load(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "keys.mode")
}

func TestLoad_PKCS11RequiresModulePath(t *testing.T) {
	path := writeConfig(t, "keys:\n  mode: pkcs11\n")

	_, err := Load(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "modulePath")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "keys: [not a map\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	path := writeConfig(t, "sign:\n  buildTemplate: true\n")
	t.Setenv(EnvConfigPath, path)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.Sign.BuildTemplate)
}

func TestLoadFromEnv_Unset(t *testing.T) {
	t.Setenv(EnvConfigPath, "")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Keys.Mode)
}
