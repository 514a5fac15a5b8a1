// Package keystore provides the factory for creating signer providers
package keystore

import (
	"fmt"

	"github.com/kajala/xmlseal/internal/config"
)

// NewProvider creates a Provider based on the configuration.
//
// The sign command only routes pkcs11 mode through here; in file mode it
// loads the PEM files itself so RSA keys stay available as raw key material.
// The "file" branch serves callers that just need the Signer interface.
func NewProvider(cfg *config.KeysConfig) (Provider, error) {
	switch cfg.Mode {
	case "pkcs11":
		return newPKCS11Provider(cfg)
	case "file":
		return NewFileProvider(), nil
	default:
		return nil, fmt.Errorf("unknown keys mode: %s", cfg.Mode)
	}
}

func newPKCS11Provider(cfg *config.KeysConfig) (Provider, error) {
	p11cfg := &PKCS11Config{
		ModulePath: cfg.PKCS11.ModulePath,
		SlotLabel:  cfg.PKCS11.SlotLabel,
		PIN:        cfg.PKCS11.PIN,
	}
	if cfg.PKCS11.SlotID > 0 {
		slotID := cfg.PKCS11.SlotID
		p11cfg.SlotID = &slotID
	}
	return NewPKCS11Provider(p11cfg)
}
