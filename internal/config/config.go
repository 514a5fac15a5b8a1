// Package config handles configuration loading for the xmlseal tools.
//
// Configuration is loaded from a YAML file with support for environment
// variable expansion (${VAR} or $VAR syntax). The file is optional: every
// tool runs with built-in defaults when XMLSEAL_CONFIG is unset.
//
// # Configuration Sections
//
//   - keys: key management mode (file or pkcs11)
//   - sign: signature and digest algorithm URIs, template building
//   - encrypt: content cipher and key transport algorithm URIs
//   - verify: certificate validity and revocation checking
//
// # Example Configuration
//
//	keys:
//	  mode: pkcs11
//	  pkcs11:
//	    modulePath: /usr/lib/softhsm/libsofthsm2.so
//	    slotLabel: signing
//	    pin: ${HSM_PIN}
//
//	encrypt:
//	  dataAlgorithm: http://www.w3.org/2009/xmlenc11#aes128-gcm
//
//	verify:
//	  checkCertValidity: true
//	  checkRevocation: false
//
// See [Load] for loading configuration from a file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the config file path
const EnvConfigPath = "XMLSEAL_CONFIG"

// Config is the root configuration structure
type Config struct {
	Keys    KeysConfig    `yaml:"keys"`
	Sign    SignConfig    `yaml:"sign"`
	Encrypt EncryptConfig `yaml:"encrypt"`
	Verify  VerifyConfig  `yaml:"verify"`
}

// KeysConfig holds key management settings
type KeysConfig struct {
	// Mode determines how signing keys are accessed
	// - "file": Keys loaded from PEM files (the default)
	// - "pkcs11": Keys stored in a PKCS#11 token (HSM/smart card)
	Mode string `yaml:"mode"`

	// PKCS11 mode settings
	PKCS11 PKCS11Config `yaml:"pkcs11"`
}

// PKCS11Config holds PKCS#11 HSM settings
type PKCS11Config struct {
	// Path to the PKCS#11 library (.so/.dylib/.dll)
	ModulePath string `yaml:"modulePath"`
	// Slot ID or label to use
	SlotID    uint   `yaml:"slotId"`
	SlotLabel string `yaml:"slotLabel"`
	// PIN for authentication (can be an env var reference like ${HSM_PIN})
	PIN string `yaml:"pin"`
}

// SignConfig holds signing settings
type SignConfig struct {
	// SignatureAlgorithm is the XML signature algorithm URI
	SignatureAlgorithm string `yaml:"signatureAlgorithm"`
	// DigestAlgorithm is the XML digest algorithm URI
	DigestAlgorithm string `yaml:"digestAlgorithm"`
	// BuildTemplate enables building an enveloped signature template when
	// the input document has no ds:Signature node
	BuildTemplate bool `yaml:"buildTemplate"`
}

// EncryptConfig holds encryption settings
type EncryptConfig struct {
	// DataAlgorithm is the content encryption algorithm URI
	DataAlgorithm string `yaml:"dataAlgorithm"`
	// KeyTransport is the key transport algorithm URI
	KeyTransport string `yaml:"keyTransport"`
}

// VerifyConfig holds signature verification settings
type VerifyConfig struct {
	// CheckCertValidity verifies the certificate validity window
	CheckCertValidity bool `yaml:"checkCertValidity"`
	// CheckRevocation queries the certificate's OCSP responder
	CheckRevocation bool `yaml:"checkRevocation"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv loads the config file named by XMLSEAL_CONFIG, or returns the
// defaults when the variable is unset.
func LoadFromEnv() (*Config, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Default returns the built-in configuration
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Keys.Mode == "" {
		c.Keys.Mode = "file"
	}
	if c.Sign.SignatureAlgorithm == "" {
		c.Sign.SignatureAlgorithm = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	}
	if c.Sign.DigestAlgorithm == "" {
		c.Sign.DigestAlgorithm = "http://www.w3.org/2001/04/xmlenc#sha256"
	}
	if c.Encrypt.DataAlgorithm == "" {
		c.Encrypt.DataAlgorithm = "http://www.w3.org/2009/xmlenc11#aes128-gcm"
	}
	if c.Encrypt.KeyTransport == "" {
		c.Encrypt.KeyTransport = "http://www.w3.org/2001/04/xmlenc#rsa-oaep-mgf1p"
	}
}

func (c *Config) validate() error {
	switch c.Keys.Mode {
	case "file", "pkcs11":
		// Valid modes
	default:
		return fmt.Errorf("keys.mode must be 'file' or 'pkcs11', got '%s'", c.Keys.Mode)
	}

	if c.Keys.Mode == "pkcs11" && c.Keys.PKCS11.ModulePath == "" {
		return fmt.Errorf("keys.pkcs11.modulePath is required when mode is 'pkcs11'")
	}

	return nil
}
