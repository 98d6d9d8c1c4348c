package confcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// CSPRNGFill fills all of buf with cryptographically secure random bytes.
func CSPRNGFill(buf []byte) error {
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return WrapCryptoError("csprng fill failed", err)
	}
	return nil
}

// ClampCurve25519Scalar applies RFC 8032 §5.1.5 clamping in place so the
// given 32-byte seed is simultaneously a valid Curve25519 scalar and a
// valid Ed25519 seed (the dual-use secret, spec §9).
func ClampCurve25519Scalar(k []byte) error {
	if len(k) != KeySize {
		return NewCryptoError("clamp: key must be 32 bytes")
	}
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
	return nil
}

// Curve25519ScalarToPoint computes the X25519 basepoint multiplication.
func Curve25519ScalarToPoint(k []byte) ([]byte, error) {
	if len(k) != KeySize {
		return nil, NewCryptoError("curve25519 scalar must be 32 bytes")
	}
	pub, err := curve25519.X25519(k, curve25519.Basepoint)
	if err != nil {
		return nil, WrapCryptoError("curve25519 scalar mult failed", err)
	}
	return pub, nil
}

// Ed25519ScalarToPoint derives the Ed25519 public key from a 32-byte seed.
func Ed25519ScalarToPoint(seed []byte) ([]byte, error) {
	if len(seed) != KeySize {
		return nil, NewCryptoError("ed25519 seed must be 32 bytes")
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := make([]byte, ed25519.PublicKeySize)
	copy(pub, priv[ed25519.SeedSize:])
	return pub, nil
}

// X25519 computes the shared secret for ourSecret (a 32-byte scalar) and
// theirPublic (a 32-byte point).
func X25519(ourSecret, theirPublic []byte) ([]byte, error) {
	if len(ourSecret) != KeySize {
		return nil, NewCryptoError("x25519: secret must be 32 bytes")
	}
	if len(theirPublic) != KeySize {
		return nil, NewCryptoError("x25519: public key must be 32 bytes")
	}
	shared, err := curve25519.X25519(ourSecret, theirPublic)
	if err != nil {
		return nil, WrapCryptoError("x25519 failed", err)
	}
	return shared, nil
}

// HKDFExpandSHA256 expands a pseudo-random key into L bytes using the
// given info string, with an empty salt (matching confmsg's HKDF usage).
func HKDFExpandSHA256(prk, info []byte, l int) ([]byte, error) {
	r := hkdf.Expand(sha256.New, prk, info)
	out := make([]byte, l)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, WrapCryptoError("hkdf expand failed", err)
	}
	return out, nil
}

// DeriveTrafficKeys computes the directional symmetric key and static IV
// for a shared secret. role=true ("server") means "keys the server uses
// to send"; role=false ("client") means "keys the client uses to send".
// Symmetry is mandatory: client's in_key == server's out_key and
// vice versa (spec §4.1).
func DeriveTrafficKeys(shared []byte, serverRole bool) (symmetricKey, staticIV []byte, err error) {
	keyInfo := "client key"
	ivInfo := "client iv"
	if serverRole {
		keyInfo = "server key"
		ivInfo = "server iv"
	}
	symmetricKey, err = HKDFExpandSHA256(shared, []byte(keyInfo), SymmetricKeySize)
	if err != nil {
		return nil, nil, err
	}
	staticIV, err = HKDFExpandSHA256(shared, []byte(ivInfo), IVSize)
	if err != nil {
		return nil, nil, err
	}
	return symmetricKey, staticIV, nil
}

// IncrementIV treats the IV as a big-endian integer and increments it by
// one, wrapping through all bytes from the lowest-index position last.
func IncrementIV(iv []byte) {
	for i := len(iv) - 1; i >= 0; i-- {
		iv[i]++
		if iv[i] != 0 {
			return
		}
	}
}

// XorIV xors two same-length IVs into a freshly allocated result.
func XorIV(a, b []byte) ([]byte, error) {
	if len(a) != IVSize || len(b) != IVSize {
		return nil, NewCryptoError("xor iv: both operands must be 12 bytes")
	}
	out := make([]byte, IVSize)
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out, nil
}

// AEADSeal encrypts plain with AES-256-GCM under key/iv/ad, returning the
// ciphertext and the 16-byte authentication tag separately (matching the
// wire protocol's separate tag field).
func AEADSeal(key, iv, ad, plain []byte) (cipherBytes, tag []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	if len(iv) != IVSize {
		return nil, nil, NewCryptoError("aead seal: iv must be 12 bytes")
	}
	sealed := gcm.Seal(nil, iv, plain, ad)
	ctLen := len(sealed) - TagSize
	return sealed[:ctLen], sealed[ctLen:], nil
}

// AEADOpen decrypts cipherBytes with AES-256-GCM under key/iv/ad,
// verifying the detached tag.
func AEADOpen(key, iv, tag, ad, cipherBytes []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != IVSize {
		return nil, NewCryptoError("aead open: iv must be 12 bytes")
	}
	if len(tag) != TagSize {
		return nil, NewCryptoError("aead open: tag must be 16 bytes")
	}
	sealed := make([]byte, 0, len(cipherBytes)+TagSize)
	sealed = append(sealed, cipherBytes...)
	sealed = append(sealed, tag...)
	plain, err := gcm.Open(nil, iv, sealed, ad)
	if err != nil {
		return nil, WrapCryptoError("aead authentication failed", err)
	}
	return plain, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != SymmetricKeySize {
		return nil, NewCryptoError("aead: key must be 32 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, WrapCryptoError("aes cipher init failed", err)
	}
	gcm, err := cipher.NewGCMWithTagSize(block, TagSize)
	if err != nil {
		return nil, WrapCryptoError("gcm init failed", err)
	}
	return gcm, nil
}

// Ed25519Sign signs message with the clamped 32-byte seed.
func Ed25519Sign(message, seed []byte) ([]byte, error) {
	if len(seed) != KeySize {
		return nil, NewCryptoError("ed25519 sign: seed must be 32 bytes")
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return ed25519.Sign(priv, message), nil
}

// Ed25519Verify verifies a signature against message and a public key.
func Ed25519Verify(message, pub, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != SignatureSize {
		return false
	}
	return ed25519.Verify(pub, message, sig)
}

// SHA256Sum hashes a single buffer.
func SHA256Sum(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

// SHA256Concat hashes the concatenation of buffers without materializing
// the concatenation, streaming each into an incremental hash (matching
// confmsg's `SHA256({a, b})` initializer-list form).
func SHA256Concat(buffers ...[]byte) []byte {
	h := sha256.New()
	for _, b := range buffers {
		h.Write(b)
	}
	return h.Sum(nil)
}

// Wipe overwrites b with zeros in place.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
