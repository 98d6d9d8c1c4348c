package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/confchannel/confcrypto"
	"github.com/ruteri/confchannel/keyprovider"
	"github.com/ruteri/confchannel/wire"
)

func pingPong(_ context.Context, plain []byte) ([]byte, error) {
	if string(plain) == "ping" {
		return []byte("pong"), nil
	}
	return plain, nil
}

func newTestServer(t *testing.T, serviceID []byte) (*Server, keyprovider.KeyProvider) {
	kp := keyprovider.NewRandomEd25519KeyProvider()
	require.NoError(t, kp.Initialize(context.Background()))

	srv, err := New(context.Background(), serviceID, pingPong, kp, nil)
	require.NoError(t, err)
	return srv, kp
}

func newTestClient(t *testing.T, expectedServiceID []byte) *Client {
	kp := keyprovider.NewRandomEd25519KeyProvider()
	require.NoError(t, kp.Initialize(context.Background()))

	c, err := NewClient(kp, nil, nil, nil, expectedServiceID, false)
	require.NoError(t, err)
	return c
}

// TestHappyPath is spec S1: handshake, then a "ping"/"pong" round trip.
func TestHappyPath(t *testing.T) {
	serviceID := confcrypto.SHA256Sum([]byte("model-A"))

	srv, _ := newTestServer(t, serviceID)
	cli := newTestClient(t, serviceID)

	keyReq, err := cli.MakeKeyRequest()
	require.NoError(t, err)

	keyRespBytes, err := srv.Respond(context.Background(), keyReq)
	require.NoError(t, err)

	result, err := cli.HandleMessage(context.Background(), keyRespBytes)
	require.NoError(t, err)
	assert.True(t, result.IsKeyResponse)

	reqBytes, err := cli.MakeRequest([]byte("ping"))
	require.NoError(t, err)

	respBytes, err := srv.Respond(context.Background(), reqBytes)
	require.NoError(t, err)

	result, err = cli.HandleMessage(context.Background(), respBytes)
	require.NoError(t, err)
	assert.False(t, result.IsKeyResponse)
	assert.False(t, result.KeyOutdated)
	assert.Equal(t, "pong", string(result.Payload))
}

// TestKeyRolloverMidFlight is spec S2: a request against a now-previous
// key version must still open, and the response reports key_outdated.
func TestKeyRolloverMidFlight(t *testing.T) {
	serviceID := confcrypto.SHA256Sum([]byte("model-A"))

	srv, _ := newTestServer(t, serviceID)
	cli := newTestClient(t, serviceID)

	keyReq, err := cli.MakeKeyRequest()
	require.NoError(t, err)
	keyRespBytes, err := srv.Respond(context.Background(), keyReq)
	require.NoError(t, err)
	_, err = cli.HandleMessage(context.Background(), keyRespBytes)
	require.NoError(t, err)

	changed, err := srv.RefreshKey(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, changed)

	reqBytes, err := cli.MakeRequest([]byte("ping"))
	require.NoError(t, err)

	respBytes, err := srv.Respond(context.Background(), reqBytes)
	require.NoError(t, err)

	result, err := cli.HandleMessage(context.Background(), respBytes)
	require.NoError(t, err)
	assert.True(t, result.KeyOutdated)
	assert.Equal(t, "pong", string(result.Payload))
}

// TestWrongServiceID is spec S3.
func TestWrongServiceID(t *testing.T) {
	serviceID := confcrypto.SHA256Sum([]byte("model-A"))
	wrongID := confcrypto.SHA256Sum([]byte("model-B"))

	srv, _ := newTestServer(t, serviceID)
	cli := newTestClient(t, wrongID)

	keyReq, err := cli.MakeKeyRequest()
	require.NoError(t, err)
	keyRespBytes, err := srv.Respond(context.Background(), keyReq)
	require.NoError(t, err)

	_, err = cli.HandleMessage(context.Background(), keyRespBytes)
	assert.Error(t, err)
}

// TestTamperedCiphertext is spec S4.
func TestTamperedCiphertext(t *testing.T) {
	serviceID := confcrypto.SHA256Sum([]byte("model-A"))

	srv, _ := newTestServer(t, serviceID)
	cli := newTestClient(t, serviceID)

	keyReq, err := cli.MakeKeyRequest()
	require.NoError(t, err)
	keyRespBytes, err := srv.Respond(context.Background(), keyReq)
	require.NoError(t, err)
	_, err = cli.HandleMessage(context.Background(), keyRespBytes)
	require.NoError(t, err)

	reqBytes, err := cli.MakeRequest([]byte("ping"))
	require.NoError(t, err)
	reqBytes[len(reqBytes)-1] ^= 0xFF

	_, err = srv.Respond(context.Background(), reqBytes)
	assert.Error(t, err)
}

// TestReplayedKeyResponseWrongNonce is spec S5: a KeyResponse whose
// signature was computed over a different client_nonce fails Ed25519
// verification before any key derivation happens.
func TestReplayedKeyResponseWrongNonce(t *testing.T) {
	serviceID := confcrypto.SHA256Sum([]byte("model-A"))

	srv, _ := newTestServer(t, serviceID)
	cli := newTestClient(t, serviceID)

	// A KeyRequest carrying a nonce the client never issued.
	otherNonce := make([]byte, confcrypto.NonceSize)
	otherNonce[0] = 0xBB

	forgedKeyReq, err := wire.EncodeKeyRequest(wire.KeyRequest{Nonce: otherNonce})
	require.NoError(t, err)

	keyRespBytes, err := srv.Respond(context.Background(), forgedKeyReq)
	require.NoError(t, err)

	_, err = cli.HandleMessage(context.Background(), keyRespBytes)
	assert.Error(t, err)
}
