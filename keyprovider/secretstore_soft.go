package keyprovider

import (
	"context"

	"github.com/ruteri/confchannel/confcrypto"
	"github.com/ruteri/confchannel/secretstore"
)

// SecretStoreKeyProvider is the soft (plain versioned secret) variant:
// key material is minted locally by an auxiliary random Ed25519 provider
// and uploaded to the store, grounded on key_vault_provider.cc.
type SecretStoreKeyProvider struct {
	*Bundle
	store *secretstore.SoftStore
	aux   *RandomEd25519KeyProvider
}

func NewSecretStoreKeyProvider(store *secretstore.SoftStore) *SecretStoreKeyProvider {
	b := newBundle(confcrypto.KeyTypeCurve25519)
	p := &SecretStoreKeyProvider{
		Bundle: b,
		store:  store,
		aux:    NewRandomEd25519KeyProvider(),
	}
	b.doRefresh = storeDoRefresh(b, softStoreOps{store: store, aux: p.aux})
	return p
}

type softStoreOps struct {
	store *secretstore.SoftStore
	aux   *RandomEd25519KeyProvider
}

func (o softStoreOps) fetch(ctx context.Context) ([]byte, uint32, secretstore.FetchStatus, error) {
	return o.store.FetchKey(ctx, nil)
}

func (o softStoreOps) upload(ctx context.Context, newVersion uint32) ([]byte, error) {
	if _, err := o.aux.RefreshKey(ctx, false); err != nil {
		return nil, err
	}
	fresh := o.aux.GetCurrentKey()
	return o.store.UpdateKey(ctx, newVersion, fresh)
}
