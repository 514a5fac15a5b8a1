// Command sign produces an enveloped XML digital signature.
//
// Usage:
//
//	sign <xml-file> <key-file> <cert-file>
//
// The input document must carry a ds:Signature template unless template
// building is enabled in the configuration. The signed document is written
// to stdout. In pkcs11 key mode the key and cert arguments name token
// labels instead of files.
package main

import (
	"context"
	"crypto"
	"crypto/x509"
	"fmt"
	"io"
	"os"

	"github.com/beevik/etree"

	"github.com/kajala/xmlseal/internal/config"
	"github.com/kajala/xmlseal/internal/keystore"
	"github.com/kajala/xmlseal/pkg/xmlsig"
)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) != 4 {
		fmt.Fprintf(stderr, "Usage: %s <xml-file> <key-file> <cert-file>\n", args[0])
		return 1
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	key, cert, cleanup, err := loadCredentials(cfg, args[2], args[3])
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer cleanup()

	doc := etree.NewDocument()
	if err := doc.ReadFromFile(args[1]); err != nil {
		fmt.Fprintf(stderr, "Error: unable to parse file %q: %v\n", args[1], err)
		return 2
	}

	if cfg.Sign.BuildTemplate && xmlsig.FindSignature(doc) == nil {
		builder := xmlsig.NewTemplateBuilder(
			xmlsig.WithTemplateSignatureAlgorithm(cfg.Sign.SignatureAlgorithm),
			xmlsig.WithTemplateDigestAlgorithm(cfg.Sign.DigestAlgorithm),
		)
		if _, err := builder.AddTemplate(doc); err != nil {
			fmt.Fprintf(stderr, "Error: building signature template: %v\n", err)
			return 2
		}
	}

	signer, err := xmlsig.NewSigner(key, cert)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	signedXML, err := signer.SignDocument(doc)
	if err != nil {
		fmt.Fprintf(stderr, "Error: signing failed: %v\n", err)
		return 2
	}

	if _, err := stdout.Write(signedXML); err != nil {
		fmt.Fprintf(stderr, "Error: writing output: %v\n", err)
		return 2
	}
	return 0
}

// loadCredentials resolves the key and certificate per the configured key
// mode. File mode loads PEM files directly so RSA keys stay available as
// raw key material for signedxml; pkcs11 mode goes through the provider.
func loadCredentials(cfg *config.Config, keyRef, certRef string) (crypto.Signer, *x509.Certificate, func(), error) {
	if cfg.Keys.Mode == "file" {
		key, err := keystore.LoadPrivateKey(keyRef)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to load key from %q: %w", keyRef, err)
		}
		cert, err := keystore.LoadCertificate(certRef)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to load certificate from %q: %w", certRef, err)
		}
		return key, cert, func() {}, nil
	}

	provider, err := keystore.NewProvider(&cfg.Keys)
	if err != nil {
		return nil, nil, nil, err
	}
	signer, err := provider.GetSigner(context.Background(), keyRef, certRef)
	if err != nil {
		provider.Close()
		return nil, nil, nil, err
	}
	return signer, signer.Certificate(), func() { provider.Close() }, nil
}
