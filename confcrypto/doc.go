// Package confcrypto implements the cryptographic core of the confidential
// channel protocol: an ephemeral Curve25519 Diffie-Hellman handshake,
// Ed25519 signatures over the same 32-byte seed, AES-256-GCM authenticated
// encryption, and the HKDF-SHA256 derivation that turns one shared secret
// into four directional traffic values.
//
// # Dual use of the 32-byte secret
//
// A single 32-byte value doubles as a Curve25519 scalar and an Ed25519
// seed. RFC 8032 §5.1.5 clamping (ClampCurve25519Scalar) is what makes this
// safe: it clears the three low bits of the first byte, clears the top bit
// of the last byte and sets the bit below it, so the value is
// simultaneously usable in both schemes. Callers that need both a DH share and a signature must clamp
// once and derive both public points from the clamped bytes — never
// introduce a second secret without also changing the wire schema, which
// advertises both public points from the same handshake.
//
// # Traffic key derivation
//
// DeriveTrafficKeys expands a shared secret into a direction-specific
// AES-256 key and a 12-byte static IV. The `serverRole` boolean selects
// which side's sending direction is being derived; the two directions are
// always derived independently and a correct implementation must call this
// twice per handshake (once per direction) and never reuse one direction's
// output for the other.
//
// # IV handling
//
// This package only derives and increments IVs; it does not decide how a
// caller combines static and dynamic IVs before sealing. See the session
// package for the asymmetric combination rule used by the client and
// server sides of the handshake.
//
// # Error taxonomy
//
// Every exported failure surfaces as one of the typed errors in errors.go
// (CryptoError, PayloadParseError, SerializationError, AttestationError,
// KeyRefreshError, KeyProvisioningDeniedError, ModelAlreadyInitializedError,
// UnknownRequestTypeError). This package itself only ever returns
// CryptoError; the others are defined here so every package in this module
// shares one taxonomy without an import cycle.
package confcrypto
