package wire

import "github.com/ruteri/confchannel/confcrypto"

// PointFormat mirrors the protocol's ECPoint.format field. Only
// Compressed is ever produced or accepted by this implementation.
type PointFormat byte

const PointFormatCompressed PointFormat = 1

// ECPoint carries a compressed elliptic-curve point (either the X25519
// handshake share or the Ed25519 verification key), exactly 32 bytes.
type ECPoint struct {
	Format PointFormat
	XY     []byte // len == confcrypto.KeySize
}

func (p ECPoint) marshal(w *writer) {
	w.writeByte(byte(p.Format))
	w.writeBytes(p.XY)
}

func unmarshalECPoint(r *reader) ECPoint {
	format := PointFormat(r.readByte())
	xy := r.readBytes()
	return ECPoint{Format: format, XY: xy}
}

func (p ECPoint) validate() error {
	if p.Format != PointFormatCompressed {
		return confcrypto.NewPayloadParseError("unsupported ECPoint format")
	}
	if len(p.XY) != confcrypto.KeySize {
		return confcrypto.NewPayloadParseError("ECPoint.xy must be 32 bytes")
	}
	return nil
}

// EvidenceType distinguishes a TEE quote from its collateral.
type EvidenceType byte

const (
	EvidenceTypeQuote      EvidenceType = 1
	EvidenceTypeCollateral EvidenceType = 2
)

// Evidence is one (kind, bytes) pair in a KeyResponse's authenticator
// list.
type Evidence struct {
	Type     EvidenceType
	Contents []byte
}

func (e Evidence) marshal(w *writer) {
	w.writeByte(byte(e.Type))
	w.writeBytes(e.Contents)
}

func unmarshalEvidence(r *reader) Evidence {
	t := EvidenceType(r.readByte())
	contents := r.readBytes()
	return Evidence{Type: t, Contents: contents}
}

// SignedServiceIdentity is the handshake identity block carried inside a
// KeyResponse.
type SignedServiceIdentity struct {
	Nonce                []byte // server nonce, 16 bytes
	ServiceIdentifier    []byte
	ServerShare          ECPoint // X25519 public
	ServerSignatureShare ECPoint // Ed25519 public
	Signature            []byte  // 64 bytes, Ed25519 over (service_identifier || client_nonce)
}

// KeyRequest is the handshake-initiating message.
type KeyRequest struct {
	Nonce []byte // client nonce, 16 bytes
}

// KeyResponse is the server's reply to a KeyRequest.
type KeyResponse struct {
	ID            SignedServiceIdentity
	LifetimeHint  uint32
	KeyVersion    uint32
	Authenticator []Evidence
}

// Request carries an AEAD-sealed application payload from client to
// server, along with the client's fresh ephemeral DH share.
type Request struct {
	KeyVersion     uint32
	IV             []byte // client's dynamic IV, 12 bytes
	Tag            []byte // 16 bytes
	ClientShare    ECPoint
	AdditionalData []byte // carries the server nonce
	Ciphertext     []byte
}

// Response carries the server's AEAD-sealed reply.
type Response struct {
	KeyOutdated    bool
	IV             []byte // static IV used for sealing, 12 bytes
	Tag            []byte // 16 bytes
	AdditionalData []byte // server nonce
	Ciphertext     []byte
}

func validateFixed(name string, b []byte, n int) error {
	if len(b) != n {
		return confcrypto.NewPayloadParseError(name + " has wrong length")
	}
	return nil
}

func (m KeyRequest) validate() error {
	return validateFixed("KeyRequest.nonce", m.Nonce, confcrypto.NonceSize)
}

func (m KeyResponse) validate() error {
	if err := validateFixed("KeyResponse.id.nonce", m.ID.Nonce, confcrypto.NonceSize); err != nil {
		return err
	}
	if err := m.ID.ServerShare.validate(); err != nil {
		return err
	}
	if err := m.ID.ServerSignatureShare.validate(); err != nil {
		return err
	}
	return validateFixed("KeyResponse.id.signature", m.ID.Signature, confcrypto.SignatureSize)
}

func (m Request) validate() error {
	if err := validateFixed("Request.iv", m.IV, confcrypto.IVSize); err != nil {
		return err
	}
	if err := validateFixed("Request.tag", m.Tag, confcrypto.TagSize); err != nil {
		return err
	}
	return m.ClientShare.validate()
}

func (m Response) validate() error {
	if err := validateFixed("Response.iv", m.IV, confcrypto.IVSize); err != nil {
		return err
	}
	return validateFixed("Response.tag", m.Tag, confcrypto.TagSize)
}
