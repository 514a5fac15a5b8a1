// Command encrypt encrypts an XML document for a recipient certificate.
//
// Usage:
//
//	encrypt <xml-file> <cert-file>
//
// The document root is replaced by an xenc:EncryptedData element holding
// the ciphertext, with a fresh session key wrapped for the certificate's
// RSA public key. The encrypted document is written to stdout.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/beevik/etree"

	"github.com/kajala/xmlseal/internal/config"
	"github.com/kajala/xmlseal/internal/keystore"
	"github.com/kajala/xmlseal/pkg/xmlcrypt"
)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) != 3 {
		fmt.Fprintf(stderr, "Usage: %s <xml-file> <cert-file>\n", args[0])
		return 1
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	cert, err := keystore.LoadCertificate(args[2])
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to load certificate from %q: %v\n", args[2], err)
		return 2
	}

	encryptor, err := xmlcrypt.NewEncryptor(cert,
		xmlcrypt.WithDataAlgorithm(cfg.Encrypt.DataAlgorithm),
		xmlcrypt.WithKeyTransport(cfg.Encrypt.KeyTransport),
	)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromFile(args[1]); err != nil {
		fmt.Fprintf(stderr, "Error: unable to parse file %q: %v\n", args[1], err)
		return 2
	}

	if err := encryptor.EncryptDocument(doc); err != nil {
		fmt.Fprintf(stderr, "Error: encryption failed: %v\n", err)
		return 2
	}

	if _, err := doc.WriteTo(stdout); err != nil {
		fmt.Fprintf(stderr, "Error: writing output: %v\n", err)
		return 2
	}
	return 0
}
