package secretstore

import (
	"encoding/json"

	"github.com/ruteri/confchannel/confcrypto"
)

// oauthTokenResponse mirrors the Azure AD v1 token endpoint's JSON shape,
// matching confonnx's FetchOAuthToken response struct field-for-field.
type oauthTokenResponse struct {
	TokenType   string `json:"token_type"`
	ExpiresIn   string `json:"expires_in"`
	ExtExpires  string `json:"ext_expires_in"`
	ExpiresOn   string `json:"expires_on"`
	NotBefore   string `json:"not_before"`
	Resource    string `json:"resource"`
	AccessToken string `json:"access_token"`
}

func parseOAuthTokenResponse(body []byte) (*oauthTokenResponse, error) {
	var resp oauthTokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, confcrypto.WrapKeyRefreshError("malformed OAuth2 token response", err)
	}
	if resp.AccessToken == "" {
		return nil, confcrypto.NewKeyRefreshError("OAuth2 token response missing access_token")
	}
	return &resp, nil
}
