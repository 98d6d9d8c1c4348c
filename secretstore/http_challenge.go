package secretstore

import (
	"strings"

	"github.com/ruteri/confchannel/confcrypto"
)

// httpChallenge parses a WWW-Authenticate response header of the shape
// `Bearer authorization="https://...", resource="https://..."`, grounded
// exactly on confonnx's HttpChallenge parser.
type httpChallenge struct {
	params map[string]string
}

// isBearerChallenge reports whether a WWW-Authenticate header value
// names the Bearer scheme.
func isBearerChallenge(header string) bool {
	return strings.Contains(header, "Bearer ")
}

func parseHTTPChallenge(header string) (*httpChallenge, error) {
	if header == "" {
		return nil, confcrypto.NewKeyRefreshError("empty WWW-Authenticate challenge")
	}

	spaceIdx := strings.Index(header, " ")
	if spaceIdx < 0 {
		return nil, confcrypto.NewKeyRefreshError("malformed WWW-Authenticate challenge")
	}
	paramsStr := header[spaceIdx+1:]

	params := map[string]string{}
	for _, part := range strings.Split(paramsStr, ",") {
		part = strings.TrimSpace(part)
		eq := strings.Index(part, "=")
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(part[:eq])
		value := strings.TrimSpace(part[eq+1:])
		value = strings.Trim(value, `"`)
		params[strings.ToLower(key)] = value
	}

	return &httpChallenge{params: params}, nil
}

func (c *httpChallenge) authority() (string, error) {
	if v, ok := c.params["authorization"]; ok {
		return v, nil
	}
	if v, ok := c.params["authorization_uri"]; ok {
		return v, nil
	}
	return "", confcrypto.NewKeyRefreshError("challenge missing authorization/authorization_uri")
}

func (c *httpChallenge) resource() (string, error) {
	if v, ok := c.params["resource"]; ok {
		return v, nil
	}
	return "", confcrypto.NewKeyRefreshError("challenge missing resource")
}
