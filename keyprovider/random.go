package keyprovider

import (
	"context"

	"github.com/ruteri/confchannel/confcrypto"
)

// RandomKeyProvider mints key material from the local CSPRNG without any
// Curve25519 clamping (key_type = Generic).
type RandomKeyProvider struct {
	*Bundle
}

// NewRandomKeyProvider constructs an uninitialized Generic random
// provider; call Initialize to mint its first key.
func NewRandomKeyProvider() *RandomKeyProvider {
	b := newBundle(confcrypto.KeyTypeGeneric)
	b.doRefresh = randomDoRefresh(b, false)
	return &RandomKeyProvider{Bundle: b}
}

// RandomEd25519KeyProvider mints key material from the local CSPRNG and
// clamps it per RFC 8032 §5.1.5, so the same bytes double as an X25519
// scalar and an Ed25519 seed (key_type = Curve25519).
type RandomEd25519KeyProvider struct {
	*Bundle
}

// NewRandomEd25519KeyProvider constructs an uninitialized Curve25519
// random provider; call Initialize to mint its first key.
func NewRandomEd25519KeyProvider() *RandomEd25519KeyProvider {
	b := newBundle(confcrypto.KeyTypeCurve25519)
	b.doRefresh = randomDoRefresh(b, true)
	return &RandomEd25519KeyProvider{Bundle: b}
}

// randomDoRefresh implements the shared refresh strategy for both random
// variants: sync_only is always a no-op; a non-sync refresh always mints
// a fresh key at the next version, optionally clamped.
func randomDoRefresh(b *Bundle, clamp bool) func(ctx context.Context, syncOnly bool) (bool, error) {
	return func(ctx context.Context, syncOnly bool) (bool, error) {
		if syncOnly {
			return false, nil
		}

		key := make([]byte, confcrypto.KeySize)
		if err := confcrypto.CSPRNGFill(key); err != nil {
			return false, err
		}
		if clamp {
			if err := confcrypto.ClampCurve25519Scalar(key); err != nil {
				return false, err
			}
		}

		b.adopt(key, b.GetCurrentVersion()+1)
		return true, nil
	}
}
