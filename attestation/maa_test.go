package attestation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/confchannel/confcrypto"
	"github.com/ruteri/confchannel/wire"
)

func buildMAAToken(t *testing.T, claims maaClaims) string {
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256"}`))
	body := base64.RawURLEncoding.EncodeToString(payload)
	return header + "." + body + ".signature"
}

func TestMAAVerifierAcceptsMatchingReportData(t *testing.T) {
	pub := make([]byte, 32)
	svc := []byte("svc")
	expected := ReportData(pub, svc)

	var claims maaClaims
	claims.XMsIsolationTEE.XMsSGXMRSigner = base64.StdEncoding.EncodeToString(make([]byte, 32))
	claims.XMsIsolationTEE.XMsSGXMREnclave = base64.StdEncoding.EncodeToString(make([]byte, 32))
	claims.XMsRuntimeClaims.ReportData = []string{base64.StdEncoding.EncodeToString(expected)}

	token := buildMAAToken(t, claims)
	v := MAAVerifier{}

	id, err := v.Verify(context.Background(), []wire.Evidence{{Type: wire.EvidenceTypeCollateral, Contents: []byte(token)}}, expected)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), id.IDVersion)
}

func TestMAAVerifierRejectsMismatchedReportData(t *testing.T) {
	var claims maaClaims
	claims.XMsIsolationTEE.XMsSGXMRSigner = base64.StdEncoding.EncodeToString(make([]byte, 32))
	claims.XMsIsolationTEE.XMsSGXMREnclave = base64.StdEncoding.EncodeToString(make([]byte, 32))
	claims.XMsRuntimeClaims.ReportData = []string{base64.StdEncoding.EncodeToString(make([]byte, confcrypto.SHA256Size))}

	token := buildMAAToken(t, claims)
	v := MAAVerifier{}

	_, err := v.Verify(context.Background(), []wire.Evidence{{Type: wire.EvidenceTypeCollateral, Contents: []byte(token)}}, []byte("different-expected-value-32-byte"))
	assert.Error(t, err)
}

func TestMAAVerifierRejectsMissingEvidence(t *testing.T) {
	v := MAAVerifier{}
	_, err := v.Verify(context.Background(), nil, make([]byte, confcrypto.SHA256Size))
	assert.Error(t, err)
}
