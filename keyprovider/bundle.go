// Package keyprovider implements the key bundle and its five concrete
// variants (Static, RandomGeneric, RandomEd25519, SecretStore-soft,
// SecretStore-HSM) that produce, refresh and version the server's
// long-lived secret (spec §4.2).
package keyprovider

import (
	"context"
	"sync"
	"time"

	"github.com/ruteri/confchannel/confcrypto"
)

// KeyProvider is the common contract shared by every variant. refresh
// accounting (slot rotation, versioning, timestamp, initialization guard)
// lives once in Bundle; only the refresh strategy varies per variant.
type KeyProvider interface {
	// RefreshKey returns whether the active key changed. If changed, the
	// previous slot is rotated and LastRefreshed updates.
	RefreshKey(ctx context.Context, syncOnly bool) (bool, error)

	// Initialize runs one non-sync refresh and marks the provider
	// initialized, regardless of whether that refresh changed anything.
	Initialize(ctx context.Context) error

	GetCurrentKey() []byte
	GetCurrentVersion() uint32
	GetKey(version uint32) ([]byte, error)
	IsKeyOutdated(version uint32) (bool, error)
	DeleteKey()
	LastRefreshed() time.Time
	KeyType() confcrypto.KeyType
}

// Bundle is the shared lifecycle state backing every KeyProvider variant:
// two key slots (current/previous) with their versions, a last-refreshed
// timestamp, and the initialization guard. Reads take the read lock;
// RefreshKey/DeleteKey take the write lock, satisfying the "a reader
// observing version v observes the key bytes for v" invariant (spec §5).
type Bundle struct {
	mu sync.RWMutex

	currentKey     []byte
	currentVersion uint32
	previousKey    []byte
	previousVersion uint32

	keyType       confcrypto.KeyType
	lastRefreshed time.Time
	initialized   bool

	// doRefresh implements the variant-specific refresh strategy. It must
	// call adopt to publish a new key when it decides the active key
	// changed, and return (true, nil) in that case.
	doRefresh func(ctx context.Context, syncOnly bool) (bool, error)
}

func newBundle(keyType confcrypto.KeyType) *Bundle {
	return &Bundle{keyType: keyType}
}

// adopt rotates current into previous and publishes key/version as the
// new current. Called by every variant's doRefresh on a successful
// change, including the very first key (previous ends up holding the
// empty "uninitialized sentinel").
func (b *Bundle) adopt(key []byte, version uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.previousKey = b.currentKey
	b.previousVersion = b.currentVersion
	b.currentKey = key
	b.currentVersion = version
	b.lastRefreshed = time.Now()
}

func (b *Bundle) initializedLocked() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.initialized
}

func (b *Bundle) RefreshKey(ctx context.Context, syncOnly bool) (bool, error) {
	return b.doRefresh(ctx, syncOnly)
}

func (b *Bundle) Initialize(ctx context.Context) error {
	if _, err := b.RefreshKey(ctx, false); err != nil {
		return err
	}
	b.mu.Lock()
	b.initialized = true
	b.mu.Unlock()
	return nil
}

func (b *Bundle) GetCurrentKey() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]byte, len(b.currentKey))
	copy(out, b.currentKey)
	return out
}

func (b *Bundle) GetCurrentVersion() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.currentVersion
}

func (b *Bundle) GetKey(version uint32) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if version == b.currentVersion && len(b.currentKey) > 0 {
		out := make([]byte, len(b.currentKey))
		copy(out, b.currentKey)
		return out, nil
	}
	if version == b.previousVersion && len(b.previousKey) > 0 {
		out := make([]byte, len(b.previousKey))
		copy(out, b.previousKey)
		return out, nil
	}
	return nil, confcrypto.NewCryptoError("key with specified version not found")
}

func (b *Bundle) IsKeyOutdated(version uint32) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if version == b.currentVersion && len(b.currentKey) > 0 {
		return false, nil
	}
	if version == b.previousVersion && len(b.previousKey) > 0 {
		return true, nil
	}
	return false, confcrypto.NewCryptoError("key with specified version not found")
}

func (b *Bundle) DeleteKey() {
	b.mu.Lock()
	defer b.mu.Unlock()
	confcrypto.Wipe(b.currentKey)
	confcrypto.Wipe(b.previousKey)
	b.currentKey = nil
	b.previousKey = nil
	b.currentVersion = 0
	b.previousVersion = 0
	b.initialized = false
}

func (b *Bundle) LastRefreshed() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastRefreshed
}

func (b *Bundle) KeyType() confcrypto.KeyType {
	return b.keyType
}
