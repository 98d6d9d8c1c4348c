package secretstore

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ruteri/confchannel/confcrypto"
)

// FetchStatus classifies the outcome of a versioned-secret lookup.
type FetchStatus int

const (
	FetchOk FetchStatus = iota
	FetchNotFound
	FetchDenied
)

type softSecret struct {
	Value string            `json:"value"`
	Tags  map[string]string `json:"tags"`
}

// SoftStore implements the plain versioned-secret half of the C7 adapter
// (spec §4.7): the key's raw bytes live directly in the secret value, with
// no release policy or HSM involvement.
type SoftStore struct {
	Transport Transport
	VaultURL  string
	Name      string
}

func NewSoftStore(t Transport, vaultURL, name string) *SoftStore {
	return &SoftStore{Transport: t, VaultURL: vaultURL, Name: name}
}

// FetchKey retrieves a specific version (or the latest, if version is nil)
// and returns the decoded 32-byte key, its version, and the outcome.
func (s *SoftStore) FetchKey(ctx context.Context, version *uint32) ([]byte, uint32, FetchStatus, error) {
	url := fmt.Sprintf("%s/secrets/%s", s.VaultURL, s.Name)
	if version != nil {
		url = fmt.Sprintf("%s/%d", url, *version)
	}

	body, err := s.Transport.Request(ctx, url, nil, map[string]string{"Accept": "application/json"}, MethodGET)
	if err != nil {
		if httpErr, ok := err.(*TransportHTTPError); ok && httpErr.StatusCode == 404 {
			return nil, 0, FetchNotFound, nil
		}
		return nil, 0, FetchOk, confcrypto.WrapKeyRefreshError("soft store fetch failed", err)
	}

	var secret softSecret
	if err := json.Unmarshal(body, &secret); err != nil {
		return nil, 0, FetchOk, confcrypto.WrapKeyRefreshError("malformed secret response", err)
	}

	key, err := hex.DecodeString(secret.Value)
	if err != nil || len(key) != confcrypto.KeySize {
		return nil, 0, FetchOk, confcrypto.NewKeyRefreshError("soft store secret value is not a 32-byte hex string")
	}

	gotVersion, err := parseTagsVersion(secret.Tags)
	if err != nil {
		return nil, 0, FetchOk, err
	}

	return key, gotVersion, FetchOk, nil
}

// UpdateKey uploads the caller-minted 32 freshBytes as newVersion,
// requiring the store to echo the same version back.
func (s *SoftStore) UpdateKey(ctx context.Context, newVersion uint32, freshBytes []byte) ([]byte, error) {
	if len(freshBytes) != confcrypto.KeySize {
		return nil, confcrypto.NewCryptoError("soft store update: key must be 32 bytes")
	}

	payload, err := json.Marshal(softSecret{
		Value: hex.EncodeToString(freshBytes),
		Tags:  map[string]string{"version": strconv.FormatUint(uint64(newVersion), 10)},
	})
	if err != nil {
		return nil, confcrypto.WrapSerializationError("soft store update payload", err)
	}

	url := fmt.Sprintf("%s/secrets/%s", s.VaultURL, s.Name)
	body, err := s.Transport.Request(ctx, url, payload, map[string]string{"Content-Type": "application/json"}, MethodPUT)
	if err != nil {
		return nil, confcrypto.WrapKeyRefreshError("soft store update failed", err)
	}

	var secret softSecret
	if err := json.Unmarshal(body, &secret); err != nil {
		return nil, confcrypto.WrapKeyRefreshError("malformed update response", err)
	}
	gotVersion, err := parseTagsVersion(secret.Tags)
	if err != nil {
		return nil, err
	}
	if gotVersion != newVersion {
		return nil, confcrypto.NewKeyRefreshError("soft store update: returned version does not match request")
	}

	return freshBytes, nil
}

// parseTagsVersion enforces spec.md §9's strict-parse redesign: a decimal
// uint32 only, rejecting anything with leading garbage, leading zeros or
// non-numeric content (the original's loose stoi-like behavior is
// explicitly not carried over).
func parseTagsVersion(tags map[string]string) (uint32, error) {
	raw, ok := tags["version"]
	if !ok {
		return 0, confcrypto.NewKeyRefreshError("secret missing tags.version")
	}
	if len(raw) > 1 && raw[0] == '0' {
		return 0, confcrypto.NewKeyRefreshError("tags.version has a leading zero")
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, confcrypto.WrapKeyRefreshError("tags.version is not a valid uint32", err)
	}
	return uint32(v), nil
}
