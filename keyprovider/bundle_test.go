package keyprovider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/confchannel/confcrypto"
)

func TestStaticKeyProviderNeverChanges(t *testing.T) {
	key := make([]byte, confcrypto.KeySize)
	for i := range key {
		key[i] = byte(i)
	}

	p, err := NewStaticKeyProvider(key, confcrypto.KeyTypeGeneric)
	require.NoError(t, err)

	assert.Equal(t, key, p.GetCurrentKey())
	assert.Equal(t, uint32(1), p.GetCurrentVersion())

	changed, err := p.RefreshKey(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, key, p.GetCurrentKey())
}

func TestStaticKeyProviderRejectsWrongSize(t *testing.T) {
	_, err := NewStaticKeyProvider(make([]byte, 16), confcrypto.KeyTypeGeneric)
	assert.Error(t, err)
}

func TestRandomKeyProviderInitializeAndRollover(t *testing.T) {
	p := NewRandomKeyProvider()
	require.NoError(t, p.Initialize(context.Background()))

	first := p.GetCurrentKey()
	assert.Equal(t, uint32(1), p.GetCurrentVersion())

	changed, err := p.RefreshKey(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, uint32(2), p.GetCurrentVersion())
	assert.NotEqual(t, first, p.GetCurrentKey())

	// The previous slot still resolves; the one before that does not.
	oldKey, err := p.GetKey(1)
	require.NoError(t, err)
	assert.Equal(t, first, oldKey)

	_, err = p.GetKey(0)
	assert.Error(t, err)
}

func TestRandomKeyProviderSyncOnlyIsNoop(t *testing.T) {
	p := NewRandomKeyProvider()
	require.NoError(t, p.Initialize(context.Background()))

	changed, err := p.RefreshKey(context.Background(), true)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestRandomEd25519KeyProviderClamps(t *testing.T) {
	p := NewRandomEd25519KeyProvider()
	require.NoError(t, p.Initialize(context.Background()))

	key := p.GetCurrentKey()
	require.Len(t, key, confcrypto.KeySize)
	assert.Equal(t, byte(0), key[0]&0x07)
	assert.Equal(t, byte(0), key[31]&0x80)
	assert.Equal(t, byte(0x40), key[31]&0x40)
}

func TestIsKeyOutdated(t *testing.T) {
	p := NewRandomKeyProvider()
	require.NoError(t, p.Initialize(context.Background()))
	_, err := p.RefreshKey(context.Background(), false)
	require.NoError(t, err)

	outdated, err := p.IsKeyOutdated(p.GetCurrentVersion())
	require.NoError(t, err)
	assert.False(t, outdated)

	outdated, err = p.IsKeyOutdated(1)
	require.NoError(t, err)
	assert.True(t, outdated)

	_, err = p.IsKeyOutdated(0)
	assert.Error(t, err)
}

func TestDeleteKeyWipesBothSlots(t *testing.T) {
	p := NewRandomKeyProvider()
	require.NoError(t, p.Initialize(context.Background()))
	_, err := p.RefreshKey(context.Background(), false)
	require.NoError(t, err)

	p.DeleteKey()

	_, err = p.GetKey(2)
	assert.Error(t, err)
	_, err = p.GetKey(1)
	assert.Error(t, err)
}
