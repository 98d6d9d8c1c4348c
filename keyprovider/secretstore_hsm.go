package keyprovider

import (
	"context"

	"github.com/ruteri/confchannel/confcrypto"
	"github.com/ruteri/confchannel/secretstore"
)

// SecretStoreHSMKeyProvider is the HSM-backed, release-bound variant: the
// key never leaves the HSM un-escrowed, and export is gated by a release
// policy keyed to the TEE's own signer identity, grounded on
// key_vault_hsm_provider.cc.
type SecretStoreHSMKeyProvider struct {
	*Bundle
	store    *secretstore.HSMStore
	mrsigner []byte
}

// NewSecretStoreHSMKeyProvider takes the TEE's own MRSIGNER, used to build
// the release policy on key creation (spec §4.7's UpdateKey step).
func NewSecretStoreHSMKeyProvider(store *secretstore.HSMStore, mrsigner []byte) *SecretStoreHSMKeyProvider {
	b := newBundle(confcrypto.KeyTypeCurve25519)
	p := &SecretStoreHSMKeyProvider{Bundle: b, store: store, mrsigner: mrsigner}
	b.doRefresh = storeDoRefresh(b, hsmStoreOps{store: store, mrsigner: mrsigner})
	return p
}

type hsmStoreOps struct {
	store    *secretstore.HSMStore
	mrsigner []byte
}

func (o hsmStoreOps) fetch(ctx context.Context) ([]byte, uint32, secretstore.FetchStatus, error) {
	return o.store.FetchKey(ctx, nil)
}

func (o hsmStoreOps) upload(ctx context.Context, newVersion uint32) ([]byte, error) {
	return o.store.UpdateKey(ctx, newVersion, o.mrsigner)
}
