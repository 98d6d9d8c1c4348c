package keyprovider

import (
	"context"

	"github.com/ruteri/confchannel/confcrypto"
)

// StaticKeyProvider holds a caller-supplied key. Refresh is always a
// no-op that reports no change.
type StaticKeyProvider struct {
	*Bundle
}

// NewStaticKeyProvider adopts key as version 1 immediately; refresh never
// changes it afterwards.
func NewStaticKeyProvider(key []byte, keyType confcrypto.KeyType) (*StaticKeyProvider, error) {
	if len(key) != confcrypto.KeySize {
		return nil, confcrypto.NewCryptoError("static key provider: key must be 32 bytes")
	}
	b := newBundle(keyType)
	stored := make([]byte, len(key))
	copy(stored, key)
	b.adopt(stored, 1)
	b.doRefresh = func(ctx context.Context, syncOnly bool) (bool, error) {
		return false, nil
	}
	return &StaticKeyProvider{Bundle: b}, nil
}
