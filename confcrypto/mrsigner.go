package confcrypto

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
)

// PublicKeyPEMToMRSigner parses an RSA public key in PEM form, exports its
// modulus in little-endian byte order (the modulus is stored big-endian by
// encoding/asn1, so the bytes are reversed), and returns the SHA-256 of the
// reversed modulus — the MRSIGNER identifying the signing authority of an
// enclave built with that key.
func PublicKeyPEMToMRSigner(pemBytes []byte) ([]byte, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, NewCryptoError("mrsigner: invalid PEM block")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		rsaPub, rsaErr := x509.ParsePKCS1PublicKey(block.Bytes)
		if rsaErr != nil {
			return nil, WrapCryptoError("mrsigner: failed to parse RSA public key", err)
		}
		pub = rsaPub
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, NewCryptoError("mrsigner: not an RSA public key")
	}

	modulus := rsaPub.N.Bytes()
	reversed := make([]byte, len(modulus))
	for i, b := range modulus {
		reversed[len(modulus)-1-i] = b
	}

	return SHA256Sum(reversed), nil
}
