package secretstore

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ruteri/confchannel/confcrypto"
)

// QuoteProducer builds a TEE attestation quote binding the enclave-held
// data it returns alongside it (spec §4.7's "build a TEE quote whose
// report_data is the server's enclave-held data; base64url-encode quote
// and EHD").
type QuoteProducer interface {
	ProduceQuote(ctx context.Context) (quote, enclaveHeldData []byte, err error)
}

type hsmExportRequest struct {
	Quote           string `json:"Quote"`
	EnclaveHeldData string `json:"EnclaveHeldData"`
}

type hsmExportBody struct {
	Env string `json:"env"`
}

type hsmKeyBundle struct {
	K    string            `json:"k"`
	Tags map[string]string `json:"tags"`
}

type hsmCreateReleasePolicy struct {
	SGXMrsigner string `json:"sgx-mrsigner"`
}

type hsmCreateRequest struct {
	Kty           string                             `json:"kty"`
	KeySize       int                                `json:"key_size"`
	Exportable    bool                               `json:"exportable"`
	ReleasePolicy map[string]hsmCreateReleasePolicy `json:"release_policy"`
	Tags          map[string]string                 `json:"tags"`
}

// HSMStore implements the secure-key-release half of the C7 adapter
// (spec §4.7): the key never leaves the HSM un-escrowed; release is gated
// on a fresh attestation token matching the key's release policy.
type HSMStore struct {
	Transport     Transport
	Quotes        QuoteProducer
	VaultURL      string
	AASURL        string
	AASAPIVersion string
	Name          string
}

func NewHSMStore(t Transport, quotes QuoteProducer, vaultURL, aasURL, aasAPIVersion, name string) *HSMStore {
	return &HSMStore{Transport: t, Quotes: quotes, VaultURL: vaultURL, AASURL: aasURL, AASAPIVersion: aasAPIVersion, Name: name}
}

// FetchKey performs the full secure-key-release round trip: quote -> MAA
// attestation token -> key export, returning the clamped 32-byte scalar.
func (s *HSMStore) FetchKey(ctx context.Context, version *uint32) ([]byte, uint32, FetchStatus, error) {
	token, err := s.fetchAttestationToken(ctx)
	if err != nil {
		return nil, 0, FetchOk, err
	}

	exportURL := fmt.Sprintf("%s/keys/%s", s.VaultURL, s.Name)
	if version != nil {
		exportURL = fmt.Sprintf("%s/%d", exportURL, *version)
	}
	exportURL += "/export"

	payload, err := json.Marshal(hsmExportBody{Env: token})
	if err != nil {
		return nil, 0, FetchOk, confcrypto.WrapSerializationError("hsm export request", err)
	}

	body, err := s.Transport.Request(ctx, exportURL, payload, map[string]string{"Content-Type": "application/json"}, MethodPOST)
	if err != nil {
		if httpErr, ok := err.(*TransportHTTPError); ok {
			switch httpErr.StatusCode {
			case 404:
				return nil, 0, FetchNotFound, nil
			case 403:
				return nil, 0, FetchDenied, nil
			}
		}
		return nil, 0, FetchOk, confcrypto.WrapKeyRefreshError("hsm key export failed", err)
	}

	var bundle hsmKeyBundle
	if err := json.Unmarshal(body, &bundle); err != nil {
		return nil, 0, FetchOk, confcrypto.WrapKeyRefreshError("malformed key bundle response", err)
	}

	key, err := base64.URLEncoding.DecodeString(padBase64(bundle.K))
	if err != nil {
		key, err = base64.StdEncoding.DecodeString(padBase64(bundle.K))
	}
	if err != nil || len(key) != confcrypto.KeySize {
		return nil, 0, FetchOk, confcrypto.NewKeyRefreshError("hsm key bundle 'k' value is not a 32-byte key")
	}
	if err := confcrypto.ClampCurve25519Scalar(key); err != nil {
		return nil, 0, FetchOk, err
	}

	gotVersion, err := parseTagsVersion(bundle.Tags)
	if err != nil {
		return nil, 0, FetchOk, err
	}

	return key, gotVersion, FetchOk, nil
}

// UpdateKey creates a new exportable AES-256 key in the HSM whose export is
// gated by a release policy bound to the TEE's own MRSIGNER, then
// re-fetches it by exact version to obtain the clamped bytes.
func (s *HSMStore) UpdateKey(ctx context.Context, newVersion uint32, mrsigner []byte) ([]byte, error) {
	createReq := hsmCreateRequest{
		Kty:        "AES-HSM",
		KeySize:    256,
		Exportable: true,
		ReleasePolicy: map[string]hsmCreateReleasePolicy{
			s.AASURL: {SGXMrsigner: hex.EncodeToString(mrsigner)},
		},
		Tags: map[string]string{"version": strconv.FormatUint(uint64(newVersion), 10)},
	}
	payload, err := json.Marshal(createReq)
	if err != nil {
		return nil, confcrypto.WrapSerializationError("hsm create request", err)
	}

	createURL := fmt.Sprintf("%s/keys/%s/create", s.VaultURL, s.Name)
	if _, err := s.Transport.Request(ctx, createURL, payload, map[string]string{"Content-Type": "application/json"}, MethodPOST); err != nil {
		return nil, confcrypto.WrapKeyRefreshError("hsm key create failed", err)
	}

	key, gotVersion, status, err := s.FetchKey(ctx, &newVersion)
	if err != nil {
		return nil, err
	}
	switch status {
	case FetchNotFound:
		return nil, confcrypto.NewKeyRefreshError("hsm key create: key not found immediately after create")
	case FetchDenied:
		return nil, confcrypto.NewKeyProvisioningDeniedError("hsm key create: release denied immediately after create")
	}
	if gotVersion < newVersion {
		return nil, confcrypto.NewKeyRefreshError("hsm key create: exported version is older than the version just created")
	}

	return key, nil
}

func (s *HSMStore) fetchAttestationToken(ctx context.Context) (string, error) {
	quote, ehd, err := s.Quotes.ProduceQuote(ctx)
	if err != nil {
		return "", confcrypto.WrapAttestationError("failed to produce TEE quote for secure key release", err)
	}

	payload, err := json.Marshal(hsmExportRequest{
		Quote:           base64.URLEncoding.EncodeToString(quote),
		EnclaveHeldData: base64.URLEncoding.EncodeToString(ehd),
	})
	if err != nil {
		return "", confcrypto.WrapSerializationError("aas attest request", err)
	}

	attestURL := fmt.Sprintf("%s/attest/Tee/OpenEnclave?api-version=%s", s.AASURL, s.AASAPIVersion)
	body, err := s.Transport.Request(ctx, attestURL, payload, map[string]string{"Content-Type": "application/json"}, MethodPOST)
	if err != nil {
		return "", confcrypto.WrapAttestationError("aas attestation request failed", err)
	}

	var token string
	if err := json.Unmarshal(body, &token); err != nil {
		return "", confcrypto.WrapAttestationError("malformed aas token response", err)
	}
	return token, nil
}

// padBase64 corrects a possibly-unpadded base64 string to a valid length,
// matching confonnx's base64 padding-correction step.
func padBase64(s string) string {
	if rem := len(s) % 4; rem != 0 {
		s += strings.Repeat("=", 4-rem)
	}
	return s
}
