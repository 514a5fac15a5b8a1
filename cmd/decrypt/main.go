// Command decrypt decrypts an XML-encrypted document.
//
// Usage:
//
//	decrypt <enc-file> <key-file>
//
// The key file may hold a PEM private key for unwrapping an
// xenc:EncryptedKey, or raw symmetric key material for direct content
// decryption. The decrypted document is written to stdout.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/kajala/xmlseal/internal/keystore"
	"github.com/kajala/xmlseal/pkg/xmlcrypt"
)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) != 3 {
		fmt.Fprintf(stderr, "Usage: %s <enc-file> <key-file>\n", args[0])
		return 1
	}

	keys := keystore.NewManager()
	defer keys.Close()

	if err := keys.AddKeyFile(args[2]); err != nil {
		fmt.Fprintf(stderr, "Error: failed to load key from %q: %v\n", args[2], err)
		return 2
	}

	result, err := xmlcrypt.NewDecryptor(keys).DecryptFile(args[1])
	if err != nil {
		fmt.Fprintf(stderr, "Error: decryption failed: %v\n", err)
		return 2
	}

	if result.Replaced {
		if _, err := result.Document.WriteTo(stdout); err != nil {
			fmt.Fprintf(stderr, "Error: writing output: %v\n", err)
			return 2
		}
		return 0
	}

	if _, err := stdout.Write(result.Data); err != nil {
		fmt.Fprintf(stderr, "Error: writing output: %v\n", err)
		return 2
	}
	return 0
}
