package secretstore

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/ruteri/confchannel/confcrypto"
)

// VaultTransport is an alternate Transport for self-hosted deployments,
// backed by a genuine HashiCorp Vault KV v2 mount rather than an
// AKV-style HTTPS endpoint. A GET whose path ends in a numeric segment
// reads that KV v2 version; writes store the JSON request body as the
// secret data, so a stored secret's tags.version field lives inside that
// data and is independent of the KV v2 version number.
type VaultTransport struct {
	client *vaultapi.Client
	mount  string
}

// VaultTLSConfig carries the TLS client-certificate material used to
// authenticate to Vault, mirroring the teacher's storage layer's
// TLS-client-cert dialing convention.
type VaultTLSConfig struct {
	ClientCert   tls.Certificate
	RootCAs      *x509.CertPool
	InsecureSkip bool
}

func NewVaultTransport(address, token, mount string, tlsCfg *VaultTLSConfig) (*VaultTransport, error) {
	cfg := vaultapi.DefaultConfig()
	cfg.Address = address
	if tlsCfg != nil {
		cfg.HttpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				Certificates:       []tls.Certificate{tlsCfg.ClientCert},
				RootCAs:            tlsCfg.RootCAs,
				InsecureSkipVerify: tlsCfg.InsecureSkip,
			},
		}
	}

	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, confcrypto.WrapKeyRefreshError("failed to construct vault client", err)
	}
	client.SetToken(token)

	return &VaultTransport{client: client, mount: mount}, nil
}

// Request adapts the Transport contract onto Vault's Logical KV v2 API.
// GET reads (optionally a specific version, encoded as a trailing
// "/<version>" path segment); PUT/POST write a new version; the request
// body is the JSON-encoded secret data.
func (v *VaultTransport) Request(ctx context.Context, rawPath string, body []byte, headers map[string]string, method Method) ([]byte, error) {
	path, version := splitVaultVersion(rawPath)

	switch method {
	case MethodGET:
		var data map[string][]string
		if version != "" {
			data = map[string][]string{"version": {version}}
		}
		secret, err := v.client.Logical().ReadWithDataWithContext(ctx, v.kvPath(path), data)
		if err != nil {
			return nil, classifyVaultError(rawPath, err)
		}
		if secret == nil {
			return nil, &TransportHTTPError{URL: rawPath, StatusCode: 404, Headers: map[string]string{}}
		}
		return json.Marshal(secret.Data["data"])

	case MethodPUT, MethodPOST:
		var payload map[string]interface{}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, confcrypto.WrapSerializationError("vault write payload", err)
		}
		secret, err := v.client.Logical().WriteWithContext(ctx, v.kvPath(path), map[string]interface{}{"data": payload})
		if err != nil {
			return nil, classifyVaultError(rawPath, err)
		}
		if secret == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(secret.Data)

	default:
		return nil, confcrypto.NewKeyRefreshError(fmt.Sprintf("vault transport does not support method %s", method))
	}
}

func (v *VaultTransport) kvPath(path string) string {
	return fmt.Sprintf("%s/data/%s", v.mount, strings.TrimPrefix(path, "/"))
}

func splitVaultVersion(rawPath string) (path, version string) {
	idx := strings.LastIndex(rawPath, "/")
	if idx < 0 {
		return rawPath, ""
	}
	tail := rawPath[idx+1:]
	if _, err := strconv.Atoi(tail); err != nil {
		return rawPath, ""
	}
	return rawPath[:idx], tail
}

func classifyVaultError(url string, err error) error {
	if respErr, ok := err.(*vaultapi.ResponseError); ok {
		return &TransportHTTPError{URL: url, StatusCode: respErr.StatusCode, Headers: map[string]string{}}
	}
	return &TransportOtherError{URL: url, Err: err}
}
