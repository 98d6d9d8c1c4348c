package keyprovider

import (
	"context"

	"github.com/ruteri/confchannel/confcrypto"
	"github.com/ruteri/confchannel/secretstore"
)

// storeBacked is the contract both secret-store-backed variants satisfy,
// factoring out everything rollover needs from the concrete store
// (soft HTTPS secret vs. HSM secure-key-release) so storeDoRefresh can
// implement spec §4.2's six-step algorithm exactly once.
type storeBacked interface {
	fetch(ctx context.Context) (key []byte, version uint32, status secretstore.FetchStatus, err error)
	upload(ctx context.Context, newVersion uint32) (key []byte, err error)
}

// storeDoRefresh implements the rollover algorithm shared by
// SecretStoreKeyProvider and SecretStoreHSMKeyProvider (spec §4.2):
//
//  1. Fetch the most-recent key version from the store.
//  2. Map the outcome to Ok(key,v) / NotFound / Denied.
//  3. NotFound: upload a new key at version 1, adopt, return true.
//  4. Denied: if sync_only, fail (KeyProvisioningDeniedError, per the
//     spec's distinct-logic-error design note); else overwrite with a
//     new version-1 key and adopt, return true.
//  5. Ok and (not initialized or v > current_version): move
//     current->previous and adopt the fetched key, return true.
//  6. Ok and v == current_version: sync_only -> no-op; else upload
//     current_version+1 and adopt, return true.
func storeDoRefresh(b *Bundle, store storeBacked) func(ctx context.Context, syncOnly bool) (bool, error) {
	return func(ctx context.Context, syncOnly bool) (bool, error) {
		key, version, status, err := store.fetch(ctx)
		if err != nil {
			return false, err
		}

		switch status {
		case secretstore.FetchNotFound:
			newKey, err := store.upload(ctx, 1)
			if err != nil {
				return false, err
			}
			b.adopt(newKey, 1)
			return true, nil

		case secretstore.FetchDenied:
			if syncOnly {
				return false, confcrypto.NewKeyProvisioningDeniedError("secret store denied key release during sync-only refresh")
			}
			newKey, err := store.upload(ctx, 1)
			if err != nil {
				return false, err
			}
			b.adopt(newKey, 1)
			return true, nil

		default: // FetchOk
			current := b.GetCurrentVersion()
			if !b.initializedLocked() || version > current {
				b.adopt(key, version)
				return true, nil
			}
			if version == current {
				if syncOnly {
					return false, nil
				}
				newKey, err := store.upload(ctx, current+1)
				if err != nil {
					return false, err
				}
				b.adopt(newKey, current+1)
				return true, nil
			}
			// version < current: the store regressed; treat as no change.
			return false, nil
		}
	}
}
