// Package xmlcrypt implements XML Encryption processing for xmlseal.
//
// The package handles the xenc:EncryptedData / xenc:EncryptedKey structures
// from XML Encryption Syntax and Processing (https://www.w3.org/TR/xmlenc-core1/).
// Content encryption supports AES-CBC, AES-GCM and Triple DES; the content
// encryption key is either transported with RSA-OAEP / RSA-1.5 or resolved
// by ds:KeyName through a keystore.Manager.
//
// Algorithm identifiers come from the signedxml xmlenc package so the URIs
// stay aligned with the signature side.
package xmlcrypt
