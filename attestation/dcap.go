package attestation

import (
	"context"
	"fmt"

	tdx_abi "github.com/google/go-tdx-guest/abi"
	tdx_client "github.com/google/go-tdx-guest/client"
	tdx_pb "github.com/google/go-tdx-guest/proto/tdx"
	"github.com/google/go-tdx-guest/verify"

	"github.com/ruteri/confchannel/confcrypto"
	"github.com/ruteri/confchannel/wire"
)

// DCAPProducer mints a TDX quote via the local quote-generation device,
// grounded on cryptoutils/attestations.go's DCAPAttestationProvider.
type DCAPProducer struct{}

func (DCAPProducer) ProduceEvidence(ctx context.Context, publicKey, serviceIdentifier []byte) ([]wire.Evidence, error) {
	var reportData [64]byte
	copy(reportData[:], ReportData(publicKey, serviceIdentifier))

	raw, err := produceRawQuote(reportData)
	if err != nil {
		return nil, confcrypto.WrapAttestationError("failed to produce TDX quote", err)
	}

	return []wire.Evidence{{Type: wire.EvidenceTypeQuote, Contents: raw}}, nil
}

func produceRawQuote(reportData [64]byte) ([]byte, error) {
	qp := &tdx_client.LinuxConfigFsQuoteProvider{}
	if qp.IsSupported() == nil {
		return qp.GetRawQuote(reportData)
	}

	qd, err := tdx_client.OpenDevice()
	if err != nil {
		return nil, err
	}
	defer qd.Close()

	return tdx_client.GetRawQuote(qd, reportData)
}

// DCAPVerifier verifies a TDX quote and projects its measurements into
// the OE-style Identity fields the spec's verifier actually checks,
// grounded on cryptoutils/attestations.go's VerifyDCAPAttestation
// (MrTd -> UniqueID, SHA-256 of the first runtime measurement register,
// Rtmrs[0] -> SignerID).
type DCAPVerifier struct {
	ExpectedEnclaveHash []byte
	ExpectedSignerPEM   []byte
}

func (v DCAPVerifier) Verify(ctx context.Context, evidence []wire.Evidence, expectedReportData []byte) (*Identity, error) {
	quote := findEvidence(evidence, wire.EvidenceTypeQuote)
	if len(quote) == 0 {
		return nil, confcrypto.NewAttestationError("no quote present in evidence")
	}

	protoQuote, err := tdx_abi.QuoteToProto(quote)
	if err != nil {
		return nil, confcrypto.WrapAttestationError("could not parse quote", err)
	}

	v4Quote, ok := protoQuote.(*tdx_pb.QuoteV4)
	if !ok {
		return nil, confcrypto.NewAttestationError(fmt.Sprintf("unsupported quote type: %T", protoQuote))
	}

	options := verify.DefaultOptions()
	if err := verify.TdxQuote(protoQuote, options); err != nil {
		return nil, confcrypto.WrapAttestationError("quote verification failed", err)
	}

	if err := checkReportData(v4Quote.TdQuoteBody.ReportData, expectedReportData); err != nil {
		return nil, err
	}

	identity := &Identity{
		IDVersion:       0,
		UniqueID:        v4Quote.TdQuoteBody.MrTd,
		SignerID:        confcrypto.SHA256Sum(v4Quote.TdQuoteBody.Rtmrs[0]),
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

func findEvidence(evidence []wire.Evidence, t wire.EvidenceType) []byte {
	for _, e := range evidence {
		if e.Type == t {
			return e.Contents
		}
	}
	return nil
}
