package attestation

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/ruteri/confchannel/confcrypto"
	"github.com/ruteri/confchannel/wire"
)

// maaClaims is the subset of a Microsoft Azure Attestation JWT body this
// verifier actually needs, supplementing a path the teacher's
// interfaces/governance.go names (MAAReport) but never implements a
// verifier for.
type maaClaims struct {
	XMsIsolationTEE struct {
		XMsAttestationType string `json:"x-ms-attestation-type"`
		XMsSGXMRSigner     string `json:"x-ms-sgx-mrsigner"`
		XMsSGXMREnclave    string `json:"x-ms-sgx-mrenclave"`
	} `json:"x-ms-isolation-tee"`
	XMsRuntimeClaims struct {
		ReportData []string `json:"report-data"`
	} `json:"x-ms-runtime"`
}

// MAAVerifier verifies an MAA-issued attestation token (a compact JWT),
// projecting its claims into the OE-style Identity fields.
type MAAVerifier struct {
	ExpectedEnclaveHash []byte
	ExpectedSignerPEM   []byte
}

func (v MAAVerifier) Verify(ctx context.Context, evidence []wire.Evidence, expectedReportData []byte) (*Identity, error) {
	token := findEvidence(evidence, wire.EvidenceTypeCollateral)
	if len(token) == 0 {
		return nil, confcrypto.NewAttestationError("no MAA token present in evidence")
	}

	claims, err := parseMAAClaims(string(token))
	if err != nil {
		return nil, confcrypto.WrapAttestationError("failed to parse MAA token", err)
	}

	signerID, err := hexOrBase64Decode(claims.XMsIsolationTEE.XMsSGXMRSigner)
	if err != nil {
		return nil, confcrypto.WrapAttestationError("malformed mrsigner claim", err)
	}
	uniqueID, err := hexOrBase64Decode(claims.XMsIsolationTEE.XMsSGXMREnclave)
	if err != nil {
		return nil, confcrypto.WrapAttestationError("malformed mrenclave claim", err)
	}

	if len(claims.XMsRuntimeClaims.ReportData) == 0 {
		return nil, confcrypto.NewAttestationError("MAA token carries no report data claim")
	}
	reportData, err := hexOrBase64Decode(claims.XMsRuntimeClaims.ReportData[0])
	if err != nil {
		return nil, confcrypto.WrapAttestationError("malformed report data claim", err)
	}
	if err := checkReportData(reportData, expectedReportData); err != nil {
		return nil, err
	}

	identity := &Identity{
		IDVersion:       0,
		UniqueID:        uniqueID,
		SignerID:        signerID,
		ProductID:       []byte{1},
		SecurityVersion: 1,
	}

	if err := checkIdentityBaseline(identity); err != nil {
		return nil, err
	}
	if err := checkExpectedIdentity(identity, v.ExpectedEnclaveHash, v.ExpectedSignerPEM); err != nil {
		return nil, err
	}

	return identity, nil
}

func parseMAAClaims(token string) (*maaClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, confcrypto.NewAttestationError("MAA token is not a compact JWT")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, err
	}
	var claims maaClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

func hexOrBase64Decode(s string) ([]byte, error) {
	if b, err := hex.DecodeString(s); err == nil {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(s)
}
