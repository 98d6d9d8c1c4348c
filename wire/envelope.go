package wire

import "github.com/ruteri/confchannel/confcrypto"

// Version is the only envelope version this implementation accepts or
// produces.
const Version byte = 1

// BodyType tags the union carried by a Message envelope.
type BodyType byte

const (
	BodyTypeKeyRequest  BodyType = 1
	BodyTypeKeyResponse BodyType = 2
	BodyTypeRequest     BodyType = 3
	BodyTypeResponse    BodyType = 4
)

// Message is the top-level envelope: a version byte and one of the four
// body variants.
type Message struct {
	Version  byte
	BodyType BodyType
	Body     any // one of KeyRequest, KeyResponse, Request, Response
}

// EncodeKeyRequest, EncodeKeyResponse, EncodeRequest and EncodeResponse
// each wrap their body in a v1 envelope and serialize it.

func EncodeKeyRequest(m KeyRequest) ([]byte, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	w := newWriter()
	w.writeFixed(m.Nonce)
	return wrapEnvelope(BodyTypeKeyRequest, w.bytes()), nil
}

func EncodeKeyResponse(m KeyResponse) ([]byte, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	w := newWriter()
	w.writeFixed(m.ID.Nonce)
	w.writeBytes(m.ID.ServiceIdentifier)
	m.ID.ServerShare.marshal(w)
	m.ID.ServerSignatureShare.marshal(w)
	w.writeFixed(m.ID.Signature)
	w.writeUint32(m.LifetimeHint)
	w.writeUint32(m.KeyVersion)
	w.writeUint32(uint32(len(m.Authenticator)))
	for _, e := range m.Authenticator {
		e.marshal(w)
	}
	return wrapEnvelope(BodyTypeKeyResponse, w.bytes()), nil
}

func EncodeRequest(m Request) ([]byte, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	w := newWriter()
	w.writeUint32(m.KeyVersion)
	w.writeFixed(m.IV)
	w.writeFixed(m.Tag)
	m.ClientShare.marshal(w)
	w.writeBytes(m.AdditionalData)
	w.writeBytes(m.Ciphertext)
	return wrapEnvelope(BodyTypeRequest, w.bytes()), nil
}

func EncodeResponse(m Response) ([]byte, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	w := newWriter()
	w.writeBool(m.KeyOutdated)
	w.writeFixed(m.IV)
	w.writeFixed(m.Tag)
	w.writeBytes(m.AdditionalData)
	w.writeBytes(m.Ciphertext)
	return wrapEnvelope(BodyTypeResponse, w.bytes()), nil
}

func wrapEnvelope(bt BodyType, body []byte) []byte {
	out := make([]byte, 0, 2+len(body))
	out = append(out, Version, byte(bt))
	out = append(out, body...)
	return out
}

// Decode parses a versioned envelope and returns the typed body as one of
// KeyRequest, KeyResponse, Request or Response via Message.Body. Unknown
// versions or body types fail with PayloadParseError.
func Decode(buf []byte) (*Message, error) {
	if len(buf) < 2 {
		return nil, confcrypto.NewPayloadParseError("message too short for envelope")
	}
	version := buf[0]
	if version != Version {
		return nil, confcrypto.NewPayloadParseError("unsupported protocol version")
	}
	bt := BodyType(buf[1])
	body := buf[2:]

	switch bt {
	case BodyTypeKeyRequest:
		m, err := decodeKeyRequest(body)
		if err != nil {
			return nil, err
		}
		return &Message{Version: version, BodyType: bt, Body: m}, nil
	case BodyTypeKeyResponse:
		m, err := decodeKeyResponse(body)
		if err != nil {
			return nil, err
		}
		return &Message{Version: version, BodyType: bt, Body: m}, nil
	case BodyTypeRequest:
		m, err := decodeRequest(body)
		if err != nil {
			return nil, err
		}
		return &Message{Version: version, BodyType: bt, Body: m}, nil
	case BodyTypeResponse:
		m, err := decodeResponse(body)
		if err != nil {
			return nil, err
		}
		return &Message{Version: version, BodyType: bt, Body: m}, nil
	default:
		return nil, confcrypto.NewPayloadParseError("unhandled body type")
	}
}

func decodeKeyRequest(body []byte) (KeyRequest, error) {
	r := newReader(body)
	nonce := r.readFixed(confcrypto.NonceSize)
	if err := r.done(); err != nil {
		return KeyRequest{}, err
	}
	m := KeyRequest{Nonce: nonce}
	return m, m.validate()
}

func decodeKeyResponse(body []byte) (KeyResponse, error) {
	r := newReader(body)
	nonce := r.readFixed(confcrypto.NonceSize)
	serviceID := r.readBytes()
	serverShare := unmarshalECPoint(r)
	serverSigShare := unmarshalECPoint(r)
	sig := r.readFixed(confcrypto.SignatureSize)
	lifetimeHint := r.readUint32()
	keyVersion := r.readUint32()
	n := r.readUint32()
	var evidence []Evidence
	for i := uint32(0); i < n && r.err == nil; i++ {
		evidence = append(evidence, unmarshalEvidence(r))
	}
	if err := r.done(); err != nil {
		return KeyResponse{}, err
	}
	m := KeyResponse{
		ID: SignedServiceIdentity{
			Nonce:                nonce,
			ServiceIdentifier:    serviceID,
			ServerShare:          serverShare,
			ServerSignatureShare: serverSigShare,
			Signature:            sig,
		},
		LifetimeHint:  lifetimeHint,
		KeyVersion:    keyVersion,
		Authenticator: evidence,
	}
	return m, m.validate()
}

func decodeRequest(body []byte) (Request, error) {
	r := newReader(body)
	keyVersion := r.readUint32()
	iv := r.readFixed(confcrypto.IVSize)
	tag := r.readFixed(confcrypto.TagSize)
	clientShare := unmarshalECPoint(r)
	additionalData := r.readBytes()
	ciphertext := r.readBytes()
	if err := r.done(); err != nil {
		return Request{}, err
	}
	m := Request{
		KeyVersion:     keyVersion,
		IV:             iv,
		Tag:            tag,
		ClientShare:    clientShare,
		AdditionalData: additionalData,
		Ciphertext:     ciphertext,
	}
	return m, m.validate()
}

func decodeResponse(body []byte) (Response, error) {
	r := newReader(body)
	keyOutdated := r.readBool()
	iv := r.readFixed(confcrypto.IVSize)
	tag := r.readFixed(confcrypto.TagSize)
	additionalData := r.readBytes()
	ciphertext := r.readBytes()
	if err := r.done(); err != nil {
		return Response{}, err
	}
	m := Response{
		KeyOutdated:    keyOutdated,
		IV:             iv,
		Tag:            tag,
		AdditionalData: additionalData,
		Ciphertext:     ciphertext,
	}
	return m, m.validate()
}
