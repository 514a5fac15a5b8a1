// Command verify validates an enveloped XML digital signature.
//
// Usage:
//
//	verify <signed-file> <cert-file>
//
// The signature must validate against the given certificate. Certificate
// validity window and OCSP revocation checks are enabled through the
// configuration. Prints OK on success.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/kajala/xmlseal/internal/config"
	"github.com/kajala/xmlseal/internal/keystore"
	"github.com/kajala/xmlseal/pkg/xmlsig"
)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) != 3 {
		fmt.Fprintf(stderr, "Usage: %s <signed-file> <cert-file>\n", args[0])
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

	data, err := os.ReadFile(args[1])
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to read %q: %v\n", args[1], err)
		return 2
	}

	var opts []xmlsig.VerifierOption
	if cfg.Verify.CheckCertValidity {
		opts = append(opts, xmlsig.WithValidityCheck())
	}
	if cfg.Verify.CheckRevocation {
		opts = append(opts, xmlsig.WithRevocationCheck(nil, nil))
	}

	verifier, err := xmlsig.NewVerifier(cert, opts...)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if err := verifier.Verify(context.Background(), data); err != nil {
		fmt.Fprintf(stderr, "Error: verification failed: %v\n", err)
		return 2
	}

	fmt.Fprintln(stdout, "OK")
	return 0
}
