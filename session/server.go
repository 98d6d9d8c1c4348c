// Package session implements the stateful handshake responder (C5) and
// client (C6) built on top of the crypto primitives, wire codec, key
// provider and attestation components.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/ruteri/confchannel/attestation"
	"github.com/ruteri/confchannel/confcrypto"
	"github.com/ruteri/confchannel/keyprovider"
	"github.com/ruteri/confchannel/wire"
)

// Callback is the application hook invoked with the decrypted request
// payload; it returns the reply bytes to seal back to the client.
type Callback func(ctx context.Context, plaintext []byte) ([]byte, error)

// Server is the C5 handshake responder and request dispatcher, grounded
// structurally on kms.SimpleKMS (a mutex-guarded struct holding an
// AttestationProvider) and algorithmically on confmsg's server/api.cc.
type Server struct {
	mu sync.RWMutex

	serviceID   []byte
	callback    Callback
	keyProvider keyprovider.KeyProvider
	producer    attestation.Producer

	serverNonce       []byte
	publicKey         []byte // X25519
	publicSigningKey  []byte // Ed25519
	evidence          []wire.Evidence
}

// New constructs a Server and runs its first evidence-refresh cycle
// (spec §4.5's "new(service_id, callback, key_provider)").
func New(ctx context.Context, serviceID []byte, callback Callback, kp keyprovider.KeyProvider, producer attestation.Producer) (*Server, error) {
	s := &Server{
		serviceID:   serviceID,
		callback:    callback,
		keyProvider: kp,
		producer:    producer,
	}
	nonce := make([]byte, confcrypto.NonceSize)
	if err := confcrypto.CSPRNGFill(nonce); err != nil {
		return nil, err
	}
	s.serverNonce = nonce

	if err := s.updatePublicMaterial(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// RefreshKey delegates to the key provider; on a change it regenerates
// public_key, public_signing_key and evidence in that order, matching
// the evidence-refresh-coupling ordering in spec §9
// (RefreshKey -> MakePublicKeys -> UpdateEvidence).
func (s *Server) RefreshKey(ctx context.Context, syncOnly bool) (bool, error) {
	changed, err := s.keyProvider.RefreshKey(ctx, syncOnly)
	if err != nil {
		return false, err
	}
	if changed {
		if err := s.updatePublicMaterial(ctx); err != nil {
			return false, err
		}
	}
	return changed, nil
}

func (s *Server) updatePublicMaterial(ctx context.Context) error {
	key := s.keyProvider.GetCurrentKey()

	pub, err := confcrypto.Curve25519ScalarToPoint(key)
	if err != nil {
		return err
	}
	sigPub, err := confcrypto.Ed25519ScalarToPoint(key)
	if err != nil {
		return err
	}

	var evidence []wire.Evidence
	if s.producer != nil {
		evidence, err = s.producer.ProduceEvidence(ctx, pub, s.serviceID)
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.publicKey = pub
	s.publicSigningKey = sigPub
	s.evidence = evidence
	s.mu.Unlock()
	return nil
}

// LastKeyRefresh returns the key provider's last-refreshed timestamp
// (spec §4.5's last_key_refresh).
func (s *Server) LastKeyRefresh() time.Time {
	return s.keyProvider.LastRefreshed()
}

// Respond routes an encoded envelope by body type and returns the
// matching encoded response (spec §4.5's respond(in_bytes, out_buf)).
func (s *Server) Respond(ctx context.Context, in []byte) ([]byte, error) {
	msg, err := wire.Decode(in)
	if err != nil {
		return nil, err
	}

	switch body := msg.Body.(type) {
	case wire.KeyRequest:
		resp, err := s.handleKeyRequest(ctx, body)
		if err != nil {
			return nil, err
		}
		return wire.EncodeKeyResponse(resp)
	case wire.Request:
		resp, err := s.handleRequest(ctx, body)
		if err != nil {
			return nil, err
		}
		return wire.EncodeResponse(resp)
	default:
		return nil, confcrypto.NewUnknownRequestTypeError("server received a body type it does not respond to")
	}
}

// handleKeyRequest implements spec §4.5's KeyRequest handling.
func (s *Server) handleKeyRequest(ctx context.Context, req wire.KeyRequest) (wire.KeyResponse, error) {
	if len(req.Nonce) != confcrypto.NonceSize {
		return wire.KeyResponse{}, confcrypto.NewCryptoError("key request nonce must be 16 bytes")
	}

	currentKey := s.keyProvider.GetCurrentKey()

	message := append(append([]byte{}, s.serviceID...), req.Nonce...)
	sig, err := confcrypto.Ed25519Sign(message, currentKey)
	if err != nil {
		return wire.KeyResponse{}, err
	}

	s.mu.RLock()
	serverNonce := s.serverNonce
	pub := s.publicKey
	sigPub := s.publicSigningKey
	evidence := s.evidence
	s.mu.RUnlock()

	return wire.KeyResponse{
		ID: wire.SignedServiceIdentity{
			Nonce:                serverNonce,
			ServiceIdentifier:    s.serviceID,
			ServerShare:          wire.ECPoint{Format: wire.PointFormatCompressed, XY: pub},
			ServerSignatureShare: wire.ECPoint{Format: wire.PointFormatCompressed, XY: sigPub},
			Signature:            sig,
		},
		LifetimeHint:  0,
		KeyVersion:    s.keyProvider.GetCurrentVersion(),
		Authenticator: evidence,
	}, nil
}

// handleRequest implements spec §4.5's Request handling (steps 1-10).
func (s *Server) handleRequest(ctx context.Context, req wire.Request) (wire.Response, error) {
	if req.KeyVersion > s.keyProvider.GetCurrentVersion() {
		if _, err := s.RefreshKey(ctx, true); err != nil {
			return wire.Response{}, err
		}
		if req.KeyVersion > s.keyProvider.GetCurrentVersion() {
			return wire.Response{}, confcrypto.NewCryptoError("request key version is newer than any known key")
		}
	}

	if len(req.IV) != confcrypto.IVSize {
		return wire.Response{}, confcrypto.NewCryptoError("request iv must be 12 bytes")
	}
	if len(req.Tag) != confcrypto.TagSize {
		return wire.Response{}, confcrypto.NewCryptoError("request tag must be 16 bytes")
	}
	if len(req.ClientShare.XY) != confcrypto.KeySize {
		return wire.Response{}, confcrypto.NewCryptoError("request client_share must be 32 bytes")
	}

	privateKey, err := s.keyProvider.GetKey(req.KeyVersion)
	if err != nil {
		return wire.Response{}, err
	}

	shared, err := confcrypto.X25519(privateKey, req.ClientShare.XY)
	if err != nil {
		return wire.Response{}, err
	}

	symIn, ivS, err := confcrypto.DeriveTrafficKeys(shared, false) // role=client_send
	if err != nil {
		return wire.Response{}, err
	}

	xorIV, err := confcrypto.XorIV(ivS, req.IV)
	if err != nil {
		return wire.Response{}, err
	}

	plain, err := confcrypto.AEADOpen(symIn, xorIV, req.Tag, req.AdditionalData, req.Ciphertext)
	if err != nil {
		return wire.Response{}, err
	}

	reply, err := s.callback(ctx, plain)
	if err != nil {
		return wire.Response{}, err
	}

	symOut, ivS2, err := confcrypto.DeriveTrafficKeys(shared, true) // role=server_send
	if err != nil {
		return wire.Response{}, err
	}

	s.mu.RLock()
	serverNonce := s.serverNonce
	s.mu.RUnlock()

	ctOut, tagOut, err := confcrypto.AEADSeal(symOut, ivS2, serverNonce, reply)
	if err != nil {
		return wire.Response{}, err
	}

	outdated, err := s.keyProvider.IsKeyOutdated(req.KeyVersion)
	if err != nil {
		return wire.Response{}, err
	}

	return wire.Response{
		KeyOutdated:    outdated,
		IV:             ivS2,
		Tag:            tagOut,
		AdditionalData: serverNonce,
		Ciphertext:     ctOut,
	}, nil
}
