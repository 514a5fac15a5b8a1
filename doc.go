/*
Package xmlseal provides command-line tools and libraries for W3C XML
Signature and XML Encryption processing.

# Overview

xmlseal signs, verifies, encrypts, and decrypts XML documents. Signing
follows the template model of XML-DSig: the document carries a ds:Signature
element whose digest and signature values are filled in, with the signing
certificate embedded in ds:X509Data. Decryption unwraps the content key
from an xenc:EncryptedKey via RSA key transport, or resolves a named
symmetric key through the file-based key manager.

# Specifications Implemented

  - XML Signature Syntax and Processing: https://www.w3.org/TR/xmldsig-core1/
  - XML Encryption Syntax and Processing: https://www.w3.org/TR/xmlenc-core1/

# Package Structure

	github.com/kajala/xmlseal/pkg/xmlsig       - Enveloped signatures, templates, verification
	github.com/kajala/xmlseal/pkg/xmlcrypt     - XML Encryption and decryption
	github.com/kajala/xmlseal/internal/keystore - Key and certificate loading (file, PKCS#11)
	github.com/kajala/xmlseal/internal/config   - YAML tool configuration
	github.com/kajala/xmlseal/cmd/sign          - sign <xml-file> <key-file> <cert-file>
	github.com/kajala/xmlseal/cmd/verify        - verify <signed-file> <cert-file>
	github.com/kajala/xmlseal/cmd/encrypt       - encrypt <xml-file> <cert-file>
	github.com/kajala/xmlseal/cmd/decrypt       - decrypt <enc-file> <key-file>

# Quick Start

To sign a document carrying a signature template:

	import (
	    "github.com/kajala/xmlseal/internal/keystore"
	    "github.com/kajala/xmlseal/pkg/xmlsig"
	)

	key, _ := keystore.LoadPrivateKey("signer.key")
	cert, _ := keystore.LoadCertificate("signer.crt")

	signer, _ := xmlsig.NewSigner(key, cert)
	signedXML, err := signer.SignFile("document.xml")

# Algorithms

Signatures use RSA with SHA-256 by default (SHA-1/384/512 selectable) over
exclusive canonicalization. Content encryption supports AES-128/192/256 in
CBC and GCM modes plus Triple DES decryption, with RSA-OAEP (mgf1p) or
RSA-1.5 key transport.

Keys may live in PEM files or a PKCS#11 token; the latter requires building
with the pkcs11 tag.
*/
package xmlseal
