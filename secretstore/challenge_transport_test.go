package secretstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChallengeTransportFetchesTokenOn401AndRetries(t *testing.T) {
	var authority string

	oauth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token_type":"Bearer","resource":"https://vault.example.com","access_token":"tok-123"}`))
	}))
	defer oauth.Close()
	authority = oauth.URL

	attempts := 0
	vault := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			w.Header().Set("WWW-Authenticate", `Bearer authorization="`+authority+`", resource="https://vault.example.com"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer vault.Close()

	transport := NewChallengeTransport(nil)
	body, err := transport.Request(context.Background(), vault.URL+"/secrets/foo", nil, map[string]string{}, MethodGET)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, 2, attempts)

	// A second call reuses the cached token without hitting the OAuth server.
	body, err = transport.Request(context.Background(), vault.URL+"/secrets/foo", nil, map[string]string{}, MethodGET)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestChallengeTransportPropagatesNon401Errors(t *testing.T) {
	vault := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer vault.Close()

	transport := NewChallengeTransport(nil)
	_, err := transport.Request(context.Background(), vault.URL+"/secrets/foo", nil, map[string]string{}, MethodGET)
	require.Error(t, err)

	httpErr, ok := err.(*TransportHTTPError)
	require.True(t, ok)
	assert.Equal(t, 404, httpErr.StatusCode)
}
