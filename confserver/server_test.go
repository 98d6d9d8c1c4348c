package confserver

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/confchannel/confcommon"
	"github.com/ruteri/confchannel/keyprovider"
	"github.com/ruteri/confchannel/session"
	"github.com/ruteri/confchannel/wire"
)

func echo(_ context.Context, plain []byte) ([]byte, error) {
	return plain, nil
}

func newTestConfServer(t *testing.T) *Server {
	kp := keyprovider.NewRandomEd25519KeyProvider()
	require.NoError(t, kp.Initialize(context.Background()))

	sess, err := session.New(context.Background(), []byte("svc"), echo, kp, nil)
	require.NoError(t, err)

	cfg := &Config{
		ListenAddr:               "127.0.0.1:0",
		Log:                      confcommon.SetupLogger(&confcommon.LoggingOpts{}),
		GracefulShutdownDuration: 0,
	}

	srv, err := New(cfg, sess, "confchannel_test_confserver")
	require.NoError(t, err)
	return srv
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestConfServer(t)
	router := srv.getRouter()

	for _, path := range []string{"/livez", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestDrainThenUndrainTogglesReadiness(t *testing.T) {
	srv := newTestConfServer(t)
	router := srv.getRouter()

	drainReq := httptest.NewRequest(http.MethodGet, "/drain", nil)
	drainRec := httptest.NewRecorder()
	router.ServeHTTP(drainRec, drainReq)
	assert.Equal(t, http.StatusOK, drainRec.Code)

	readyReq := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	readyRec := httptest.NewRecorder()
	router.ServeHTTP(readyRec, readyReq)
	assert.Equal(t, http.StatusServiceUnavailable, readyRec.Code)

	undrainReq := httptest.NewRequest(http.MethodGet, "/undrain", nil)
	undrainRec := httptest.NewRecorder()
	router.ServeHTTP(undrainRec, undrainReq)
	assert.Equal(t, http.StatusOK, undrainRec.Code)
}

func TestChannelEndpointHandlesKeyRequest(t *testing.T) {
	srv := newTestConfServer(t)
	router := srv.getRouter()

	nonce := make([]byte, 16)
	body, err := wire.EncodeKeyRequest(wire.KeyRequest{Nonce: nonce})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/channel", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	respBytes, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.NotEmpty(t, respBytes)

	decoded, err := wire.Decode(respBytes)
	require.NoError(t, err)
	_, ok := decoded.Body.(wire.KeyResponse)
	assert.True(t, ok)
}

func TestChannelEndpointRejectsGarbage(t *testing.T) {
	srv := newTestConfServer(t)
	router := srv.getRouter()

	req := httptest.NewRequest(http.MethodPost, "/v1/channel", bytes.NewReader([]byte{0xFF, 0xFF, 0xFF}))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
