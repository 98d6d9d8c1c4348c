package secretstore

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/ruteri/confchannel/confcrypto"
)

// ChallengeTransport implements the OAuth2 client-credentials bearer-token
// flow with lazy, challenge-driven acquisition, grounded exactly on
// confonnx's HTTPClient/Curl: attach a cached token if present; on a 401
// carrying a Bearer WWW-Authenticate challenge, fetch a token from the
// challenge's authority and retry exactly once.
type ChallengeTransport struct {
	Client       *http.Client
	ClientID     string
	ClientSecret string

	mu    sync.Mutex
	token string
}

// NewChallengeTransport builds a transport whose TLS trust anchors are
// the given pool (spec §4.7: "inside a TEE, trust anchors are a
// compiled-in PEM bundle injected at TLS-config time"). A nil pool falls
// back to the system roots.
func NewChallengeTransport(trustAnchors *x509.CertPool) *ChallengeTransport {
	return &ChallengeTransport{
		Client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{RootCAs: trustAnchors},
			},
		},
	}
}

func (t *ChallengeTransport) Request(ctx context.Context, rawURL string, body []byte, headers map[string]string, method Method) ([]byte, error) {
	t.mu.Lock()
	token := t.token
	t.mu.Unlock()

	if token != "" {
		withAuth := cloneHeaders(headers)
		withAuth["Authorization"] = "Bearer " + token
		resp, err := t.do(ctx, rawURL, body, withAuth, method)
		if httpErr, ok := err.(*TransportHTTPError); ok && httpErr.StatusCode == 401 {
			return t.challengeAndRetry(ctx, rawURL, body, headers, method, httpErr)
		}
		return resp, err
	}

	resp, err := t.do(ctx, rawURL, body, headers, method)
	if httpErr, ok := err.(*TransportHTTPError); ok && httpErr.StatusCode == 401 {
		return t.challengeAndRetry(ctx, rawURL, body, headers, method, httpErr)
	}
	return resp, err
}

func (t *ChallengeTransport) challengeAndRetry(ctx context.Context, rawURL string, body []byte, headers map[string]string, method Method, httpErr *TransportHTTPError) ([]byte, error) {
	challengeHeader := findHeader("WWW-Authenticate", httpErr.Headers)
	if challengeHeader == "" || !isBearerChallenge(challengeHeader) {
		return nil, httpErr
	}

	challenge, err := parseHTTPChallenge(challengeHeader)
	if err != nil {
		return nil, err
	}
	authority, err := challenge.authority()
	if err != nil {
		return nil, err
	}
	resource, err := challenge.resource()
	if err != nil {
		return nil, err
	}

	token, err := t.fetchOAuthToken(ctx, authority, resource)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.token = token
	t.mu.Unlock()

	withAuth := cloneHeaders(headers)
	withAuth["Authorization"] = "Bearer " + token
	return t.do(ctx, rawURL, body, withAuth, method)
}

func (t *ChallengeTransport) fetchOAuthToken(ctx context.Context, authority, resource string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", t.ClientID)
	form.Set("client_secret", t.ClientSecret)
	form.Set("resource", resource)

	respBody, err := t.do(ctx, strings.TrimRight(authority, "/")+"/oauth2/token", []byte(form.Encode()), map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
		"Accept":       "application/json",
	}, MethodPOST)
	if err != nil {
		return "", err
	}

	tokenResp, err := parseOAuthTokenResponse(respBody)
	if err != nil {
		return "", err
	}
	if tokenResp.Resource != resource || tokenResp.TokenType != "Bearer" {
		return "", confcrypto.NewKeyRefreshError("unexpected OAuth2 token response shape")
	}
	return tokenResp.AccessToken, nil
}

func (t *ChallengeTransport) do(ctx context.Context, rawURL string, body []byte, headers map[string]string, method Method) ([]byte, error) {
	var bodyReader io.Reader
	if len(body) > 0 {
		bodyReader = strings.NewReader(string(body))
	}

	req, err := http.NewRequestWithContext(ctx, string(method), rawURL, bodyReader)
	if err != nil {
		return nil, &TransportOtherError{URL: rawURL, Err: err}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, &TransportOtherError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportOtherError{URL: rawURL, Err: err}
	}

	if resp.StatusCode >= 400 {
		respHeaders := map[string]string{}
		for k := range resp.Header {
			respHeaders[k] = resp.Header.Get(k)
		}
		return nil, &TransportHTTPError{URL: rawURL, StatusCode: resp.StatusCode, Headers: respHeaders}
	}

	return respBody, nil
}

func cloneHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h)+1)
	for k, v := range h {
		out[k] = v
	}
	return out
}

func findHeader(name string, headers map[string]string) string {
	lower := strings.ToLower(name)
	for k, v := range headers {
		if strings.ToLower(k) == lower {
			return v
		}
	}
	return ""
}
