package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func bytesOf(n int, fill byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = fill
	}
	return b
}

func TestKeyRequestRoundTrip(t *testing.T) {
	in := KeyRequest{Nonce: bytesOf(16, 0xBB)}
	buf, err := EncodeKeyRequest(in)
	require.NoError(t, err)

	msg, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, BodyTypeKeyRequest, msg.BodyType)
	require.Equal(t, in, msg.Body.(KeyRequest))
}

func TestKeyResponseRoundTrip(t *testing.T) {
	in := KeyResponse{
		ID: SignedServiceIdentity{
			Nonce:             bytesOf(16, 0xAA),
			ServiceIdentifier: []byte("service-A"),
			ServerShare:       ECPoint{Format: PointFormatCompressed, XY: bytesOf(32, 0x01)},
			ServerSignatureShare: ECPoint{
				Format: PointFormatCompressed, XY: bytesOf(32, 0x02),
			},
			Signature: bytesOf(64, 0x03),
		},
		LifetimeHint: 0,
		KeyVersion:   1,
		Authenticator: []Evidence{
			{Type: EvidenceTypeQuote, Contents: []byte("quote-bytes")},
			{Type: EvidenceTypeCollateral, Contents: []byte("collateral-bytes")},
		},
	}
	buf, err := EncodeKeyResponse(in)
	require.NoError(t, err)

	msg, err := Decode(buf)
	require.NoError(t, err)
	out := msg.Body.(KeyResponse)
	require.Equal(t, in.ID.ServiceIdentifier, out.ID.ServiceIdentifier)
	require.Equal(t, in.KeyVersion, out.KeyVersion)
	require.Len(t, out.Authenticator, 2)
	require.Equal(t, in.Authenticator[0].Contents, out.Authenticator[0].Contents)
}

func TestRequestRoundTrip(t *testing.T) {
	in := Request{
		KeyVersion:     3,
		IV:             bytesOf(12, 0x10),
		Tag:            bytesOf(16, 0x20),
		ClientShare:    ECPoint{Format: PointFormatCompressed, XY: bytesOf(32, 0x30)},
		AdditionalData: []byte("server-nonce"),
		Ciphertext:     []byte("sealed-bytes"),
	}
	buf, err := EncodeRequest(in)
	require.NoError(t, err)

	msg, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, in, msg.Body.(Request))
}

func TestResponseRoundTrip(t *testing.T) {
	in := Response{
		KeyOutdated:    true,
		IV:             bytesOf(12, 0x40),
		Tag:            bytesOf(16, 0x50),
		AdditionalData: []byte("server-nonce"),
		Ciphertext:     []byte("reply-bytes"),
	}
	buf, err := EncodeResponse(in)
	require.NoError(t, err)

	msg, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, in, msg.Body.(Response))
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	buf, err := EncodeKeyRequest(KeyRequest{Nonce: bytesOf(16, 1)})
	require.NoError(t, err)
	buf[0] = 2

	_, err = Decode(buf)
	require.Error(t, err)
}

func TestDecodeRejectsUnknownBodyType(t *testing.T) {
	buf, err := EncodeKeyRequest(KeyRequest{Nonce: bytesOf(16, 1)})
	require.NoError(t, err)
	buf[1] = 0xFF

	_, err = Decode(buf)
	require.Error(t, err)
}

func TestDecodeRejectsTruncatedMessage(t *testing.T) {
	buf, err := EncodeRequest(Request{
		KeyVersion:     1,
		IV:             bytesOf(12, 1),
		Tag:            bytesOf(16, 1),
		ClientShare:    ECPoint{Format: PointFormatCompressed, XY: bytesOf(32, 1)},
		AdditionalData: []byte("n"),
		Ciphertext:     []byte("ct"),
	})
	require.NoError(t, err)

	_, err = Decode(buf[:len(buf)-3])
	require.Error(t, err)
}
