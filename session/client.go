package session

import (
	"context"
	"sync"

	"github.com/ruteri/confchannel/attestation"
	"github.com/ruteri/confchannel/confcrypto"
	"github.com/ruteri/confchannel/keyprovider"
	"github.com/ruteri/confchannel/wire"
)

// ClientResult is the discriminated return value of HandleMessage,
// mirroring spec §4.6's Result::{KeyResponse, Response}.
type ClientResult struct {
	IsKeyResponse bool
	KeyOutdated   bool
	Payload       []byte // set only when IsKeyResponse is false
}

// Client is the C6 handshake initiator, grounded algorithmically on
// confmsg's client/api.cc.
type Client struct {
	mu sync.Mutex

	keyProvider            keyprovider.KeyProvider
	verifier               attestation.Verifier
	expectedSignerPEM      []byte
	expectedEnclaveHash    []byte
	expectedServiceID      []byte
	verbose                bool

	clientNonce     []byte
	dynamicIV       []byte
	ephemeralSecret []byte // the 32-byte key material at handshake time
	ephemeralPublic []byte

	serverNonce []byte
	keyVersion  uint32
	inKey       []byte
	outKey      []byte
	staticIV    []byte
}

// NewClient initializes client_nonce and dynamic_iv, and publishes
// ephemeral_public = Curve25519-base * key_provider.current_key
// (spec §4.6).
func NewClient(kp keyprovider.KeyProvider, verifier attestation.Verifier, expectedSignerPEM, expectedEnclaveHash, expectedServiceID []byte, verbose bool) (*Client, error) {
	c := &Client{
		keyProvider:         kp,
		verifier:            verifier,
		expectedSignerPEM:   expectedSignerPEM,
		expectedEnclaveHash: expectedEnclaveHash,
		expectedServiceID:   expectedServiceID,
		verbose:             verbose,
	}

	nonce := make([]byte, confcrypto.NonceSize)
	if err := confcrypto.CSPRNGFill(nonce); err != nil {
		return nil, err
	}
	c.clientNonce = nonce

	iv := make([]byte, confcrypto.IVSize)
	if err := confcrypto.CSPRNGFill(iv); err != nil {
		return nil, err
	}
	c.dynamicIV = iv

	secret := kp.GetCurrentKey()
	pub, err := confcrypto.Curve25519ScalarToPoint(secret)
	if err != nil {
		return nil, err
	}
	c.ephemeralSecret = secret
	c.ephemeralPublic = pub

	return c, nil
}

// Verbose reports the verbose setting passed to NewClient. The client
// itself never logs, so any warning on a quote-less KeyResponse is left to
// the caller.
func (c *Client) Verbose() bool {
	return c.verbose
}

// MakeKeyRequest emits a KeyRequest carrying the stored client_nonce.
func (c *Client) MakeKeyRequest() ([]byte, error) {
	c.mu.Lock()
	nonce := c.clientNonce
	c.mu.Unlock()
	return wire.EncodeKeyRequest(wire.KeyRequest{Nonce: nonce})
}

// HandleMessage decodes an envelope and dispatches it to the
// KeyResponse or Response handler; any other body type fails with a
// parse error.
func (c *Client) HandleMessage(ctx context.Context, msg []byte) (*ClientResult, error) {
	decoded, err := wire.Decode(msg)
	if err != nil {
		return nil, err
	}

	switch body := decoded.Body.(type) {
	case wire.KeyResponse:
		if err := c.handleKeyResponse(ctx, body); err != nil {
			return nil, err
		}
		return &ClientResult{IsKeyResponse: true}, nil
	case wire.Response:
		return c.handleResponse(body)
	default:
		return nil, confcrypto.NewPayloadParseError("client received an unexpected body type")
	}
}

// handleKeyResponse implements spec §4.6's KeyResponse handling,
// including the exact single-static_iv-written-twice detail: the value
// retained after this call is the one from the second, role=client_send
// derivation (confirmed against original_source).
func (c *Client) handleKeyResponse(ctx context.Context, resp wire.KeyResponse) error {
	c.mu.Lock()
	clientNonce := c.clientNonce
	expectedServiceID := c.expectedServiceID
	secret := c.ephemeralSecret
	c.mu.Unlock()

	message := append(append([]byte{}, resp.ID.ServiceIdentifier...), clientNonce...)
	if !confcrypto.Ed25519Verify(message, resp.ID.ServerSignatureShare.XY, resp.ID.Signature) {
		return confcrypto.NewAttestationError("server signature verification failed")
	}

	hasQuote := false
	for _, e := range resp.Authenticator {
		if e.Type == wire.EvidenceTypeQuote {
			hasQuote = true
		}
	}
	expectationsSet := len(c.expectedSignerPEM) > 0 || len(c.expectedEnclaveHash) > 0

	if !hasQuote {
		if expectationsSet {
			return confcrypto.NewAttestationError("server presented no attestation quote")
		}
		// expectations empty and no quote: proceed without logging; the
		// caller decides whether to warn (see Verbose).
	} else if c.verifier != nil {
		reportData := attestation.ReportData(resp.ID.ServerShare.XY, resp.ID.ServiceIdentifier)
		if _, err := c.verifier.Verify(ctx, resp.Authenticator, reportData); err != nil {
			return err
		}
	}

	if len(expectedServiceID) > 0 {
		if string(expectedServiceID) != string(resp.ID.ServiceIdentifier) {
			return confcrypto.NewAttestationError("service identifier mismatch")
		}
	}

	shared, err := confcrypto.X25519(secret, resp.ID.ServerShare.XY)
	if err != nil {
		return err
	}

	inKey, staticIV, err := confcrypto.DeriveTrafficKeys(shared, true) // role=server_send
	if err != nil {
		return err
	}
	outKey, staticIV2, err := confcrypto.DeriveTrafficKeys(shared, false) // role=client_send
	if err != nil {
		return err
	}
	_ = staticIV // superseded by the second derivation, per original_source

	c.mu.Lock()
	c.serverNonce = resp.ID.Nonce
	c.keyVersion = resp.KeyVersion
	c.inKey = inKey
	c.outKey = outKey
	c.staticIV = staticIV2
	c.mu.Unlock()

	return nil
}

// MakeRequest emits a Request sealing plain under out_key.
func (c *Client) MakeRequest(plain []byte) ([]byte, error) {
	c.mu.Lock()
	ephemeralPublic := c.ephemeralPublic
	outKey := c.outKey
	staticIV := c.staticIV
	dynamicIV := c.dynamicIV
	serverNonce := c.serverNonce
	keyVersion := c.keyVersion
	c.mu.Unlock()

	if len(ephemeralPublic) != confcrypto.KeySize || len(outKey) != confcrypto.KeySize {
		return nil, confcrypto.NewCryptoError("no key negotiated")
	}

	xorIV, err := confcrypto.XorIV(staticIV, dynamicIV)
	if err != nil {
		return nil, err
	}

	ct, tag, err := confcrypto.AEADSeal(outKey, xorIV, serverNonce, plain)
	if err != nil {
		return nil, err
	}

	msg := wire.Request{
		KeyVersion:     keyVersion,
		IV:             dynamicIV,
		Tag:            tag,
		ClientShare:    wire.ECPoint{Format: wire.PointFormatCompressed, XY: ephemeralPublic},
		AdditionalData: serverNonce,
		Ciphertext:     ct,
	}
	encoded, err := wire.EncodeRequest(msg)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	confcrypto.IncrementIV(c.dynamicIV)
	c.mu.Unlock()

	return encoded, nil
}

// handleResponse implements spec §4.6's Response handling.
func (c *Client) handleResponse(resp wire.Response) (*ClientResult, error) {
	c.mu.Lock()
	inKey := c.inKey
	c.mu.Unlock()

	ad := resp.AdditionalData

	plain, err := confcrypto.AEADOpen(inKey, resp.IV, resp.Tag, ad, resp.Ciphertext)
	if err != nil {
		return nil, err
	}

	return &ClientResult{IsKeyResponse: false, KeyOutdated: resp.KeyOutdated, Payload: plain}, nil
}
