// Package xmlsig implements enveloped XML digital signatures for xmlseal.
//
// Signing follows the template model of XML Signature Syntax and Processing:
// the document carries a ds:Signature element whose DigestValue and
// SignatureValue are filled in, with the certificate embedded in
// ds:X509Data. Canonicalization and signature computation are delegated to
// the signedxml package. Keys that cannot leave their token (PKCS#11) are
// handled by a separate code path that canonicalizes with signedxml and
// signs the digest through crypto.Signer.
package xmlsig
