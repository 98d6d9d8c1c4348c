// Package confcrypto implements the cryptographic primitives of the
// confidential channel: Curve25519 DH, Ed25519 signatures, AES-256-GCM AEAD,
// HKDF-SHA256 traffic key derivation and the typed error taxonomy shared by
// every other package in this module.
package confcrypto

import "fmt"

// CryptoError covers size mismatches, AEAD authentication failures, DH
// failures and unknown key version lookups.
type CryptoError struct {
	Msg string
	Err error
}

func NewCryptoError(msg string) *CryptoError {
	return &CryptoError{Msg: msg}
}

func WrapCryptoError(msg string, err error) *CryptoError {
	return &CryptoError{Msg: msg, Err: err}
}

func (e *CryptoError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("crypto error: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("crypto error: %s", e.Msg)
}

func (e *CryptoError) Unwrap() error { return e.Err }

// PayloadParseError covers an invalid envelope, an unsupported version or
// body type, or a malformed wire body.
type PayloadParseError struct {
	Msg string
	Err error
}

func NewPayloadParseError(msg string) *PayloadParseError {
	return &PayloadParseError{Msg: msg}
}

func WrapPayloadParseError(msg string, err error) *PayloadParseError {
	return &PayloadParseError{Msg: msg, Err: err}
}

func (e *PayloadParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payload parse error: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("payload parse error: %s", e.Msg)
}

func (e *PayloadParseError) Unwrap() error { return e.Err }

// SerializationError covers an output buffer too small to hold an encoded
// message, or any other framing error while writing the wire format.
type SerializationError struct {
	Msg string
	Err error
}

func NewSerializationError(msg string) *SerializationError {
	return &SerializationError{Msg: msg}
}

func WrapSerializationError(msg string, err error) *SerializationError {
	return &SerializationError{Msg: msg, Err: err}
}

func (e *SerializationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("serialization error: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("serialization error: %s", e.Msg)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// AttestationError covers any quote-verification or identity-check
// failure. Fatal to the handshake.
type AttestationError struct {
	Msg string
	Err error
}

func NewAttestationError(msg string) *AttestationError {
	return &AttestationError{Msg: msg}
}

func WrapAttestationError(msg string, err error) *AttestationError {
	return &AttestationError{Msg: msg, Err: err}
}

func (e *AttestationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("attestation error: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("attestation error: %s", e.Msg)
}

func (e *AttestationError) Unwrap() error { return e.Err }

// KeyRefreshError covers a transport or policy failure during key
// rollover. Retried by the background refresher after a delay.
type KeyRefreshError struct {
	Msg string
	Err error
}

func NewKeyRefreshError(msg string) *KeyRefreshError {
	return &KeyRefreshError{Msg: msg}
}

func WrapKeyRefreshError(msg string, err error) *KeyRefreshError {
	return &KeyRefreshError{Msg: msg, Err: err}
}

func (e *KeyRefreshError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("key refresh error: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("key refresh error: %s", e.Msg)
}

func (e *KeyRefreshError) Unwrap() error { return e.Err }

// KeyProvisioningDeniedError is raised when a secret store denies release
// of a key (HTTP 403 / SKR policy rejection) during a sync-only refresh.
// Kept distinct from KeyRefreshError so automatic recovery never silently
// discards a key that may still be valid elsewhere (spec design note).
type KeyProvisioningDeniedError struct {
	Msg string
}

func NewKeyProvisioningDeniedError(msg string) *KeyProvisioningDeniedError {
	return &KeyProvisioningDeniedError{Msg: msg}
}

func (e *KeyProvisioningDeniedError) Error() string {
	return fmt.Sprintf("key provisioning denied: %s", e.Msg)
}

// ModelAlreadyInitializedError is returned when a host tries to provision
// the model key twice.
type ModelAlreadyInitializedError struct {
	Msg string
}

func NewModelAlreadyInitializedError(msg string) *ModelAlreadyInitializedError {
	return &ModelAlreadyInitializedError{Msg: msg}
}

func (e *ModelAlreadyInitializedError) Error() string {
	return fmt.Sprintf("model already initialized: %s", e.Msg)
}

// UnknownRequestTypeError is returned for an unrecognized external request
// tag.
type UnknownRequestTypeError struct {
	Msg string
}

func NewUnknownRequestTypeError(msg string) *UnknownRequestTypeError {
	return &UnknownRequestTypeError{Msg: msg}
}

func (e *UnknownRequestTypeError) Error() string {
	return fmt.Sprintf("unknown request type: %s", e.Msg)
}
