package secretstore

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/confchannel/confcrypto"
)

type fakeTransport struct {
	get404  bool
	stored  softSecret
	putFunc func(body []byte) ([]byte, error)
}

func (f *fakeTransport) Request(ctx context.Context, url string, body []byte, headers map[string]string, method Method) ([]byte, error) {
	switch method {
	case MethodGET:
		if f.get404 {
			return nil, &TransportHTTPError{URL: url, StatusCode: 404}
		}
		return json.Marshal(f.stored)
	case MethodPUT:
		if f.putFunc != nil {
			return f.putFunc(body)
		}
		var secret softSecret
		_ = json.Unmarshal(body, &secret)
		f.stored = secret
		f.get404 = false
		return json.Marshal(secret)
	}
	return nil, confcrypto.NewKeyRefreshError("unsupported method in fake transport")
}

func TestSoftStoreFetchKeyNotFound(t *testing.T) {
	ft := &fakeTransport{get404: true}
	store := NewSoftStore(ft, "https://vault.example.com", "model-key")

	_, _, status, err := store.FetchKey(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, FetchNotFound, status)
}

func TestSoftStoreUpdateThenFetchRoundTrip(t *testing.T) {
	ft := &fakeTransport{get404: true}
	store := NewSoftStore(ft, "https://vault.example.com", "model-key")

	fresh := make([]byte, confcrypto.KeySize)
	for i := range fresh {
		fresh[i] = byte(i)
	}

	got, err := store.UpdateKey(context.Background(), 1, fresh)
	require.NoError(t, err)
	assert.Equal(t, fresh, got)

	key, version, status, err := store.FetchKey(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, FetchOk, status)
	assert.Equal(t, uint32(1), version)
	assert.Equal(t, fresh, key)
}

func TestSoftStoreRejectsMismatchedReturnedVersion(t *testing.T) {
	ft := &fakeTransport{
		putFunc: func(body []byte) ([]byte, error) {
			return json.Marshal(softSecret{
				Value: hex.EncodeToString(make([]byte, confcrypto.KeySize)),
				Tags:  map[string]string{"version": "99"},
			})
		},
	}
	store := NewSoftStore(ft, "https://vault.example.com", "model-key")

	_, err := store.UpdateKey(context.Background(), 1, make([]byte, confcrypto.KeySize))
	assert.Error(t, err)
}

func TestParseTagsVersionRejectsNonNumeric(t *testing.T) {
	_, err := parseTagsVersion(map[string]string{"version": "v1"})
	assert.Error(t, err)

	_, err = parseTagsVersion(map[string]string{})
	assert.Error(t, err)
}
