// Package attestation implements the C3 component: producing a remote
// attestation quote bound to an ephemeral public key (TEE-side) and
// verifying one against expected enclave/signer identity (client-side).
package attestation

import (
	"bytes"
	"context"

	"github.com/ruteri/confchannel/confcrypto"
	"github.com/ruteri/confchannel/wire"
)

// Identity is the OE-style identity fields that a verifier checks,
// generalized from the teacher's TDX-only DCAP identity struct to cover
// both DCAP and MAA evidence sources.
type Identity struct {
	IDVersion      uint32
	UniqueID       []byte // MRENCLAVE / MRTD equivalent
	SignerID       []byte // MRSIGNER equivalent
	ProductID      []byte
	SecurityVersion uint32
}

// Producer mints a quote whose report_data binds a public key and a
// service identifier, and optionally returns collateral bytes alongside
// it.
type Producer interface {
	ProduceEvidence(ctx context.Context, publicKey, serviceIdentifier []byte) ([]wire.Evidence, error)
}

// Verifier checks a quote (and optional collateral) against the caller's
// expectations, returning the identity it attests to.
type Verifier interface {
	Verify(ctx context.Context, evidence []wire.Evidence, expectedReportData []byte) (*Identity, error)
}

// ReportData computes spec §4.3's binding value: SHA-256(public_key ||
// service_identifier).
func ReportData(publicKey, serviceIdentifier []byte) []byte {
	return confcrypto.SHA256Concat(publicKey, serviceIdentifier)
}

// checkIdentityBaseline enforces the unconditional checks from spec
// §4.3's verifier bullet list, shared by every evidence source.
func checkIdentityBaseline(id *Identity) error {
	if id.IDVersion != 0 {
		return confcrypto.NewAttestationError("unexpected identity version")
	}
	if len(id.ProductID) == 0 || id.ProductID[0] != 1 {
		return confcrypto.NewAttestationError("unexpected product id")
	}
	if id.SecurityVersion < 1 {
		return confcrypto.NewAttestationError("security version too low")
	}
	return nil
}

// checkExpectedIdentity applies the optional enclave-hash and
// signer-PEM comparisons.
func checkExpectedIdentity(id *Identity, expectedEnclaveHash []byte, expectedSignerPEM []byte) error {
	if len(expectedEnclaveHash) > 0 {
		if !bytes.Equal(expectedEnclaveHash, id.UniqueID) {
			return confcrypto.NewAttestationError("enclave hash mismatch")
		}
	}
	if len(expectedSignerPEM) > 0 {
		mrsigner, err := confcrypto.PublicKeyPEMToMRSigner(expectedSignerPEM)
		if err != nil {
			return confcrypto.WrapAttestationError("failed to derive expected mrsigner", err)
		}
		if !bytes.Equal(mrsigner, id.SignerID) {
			return confcrypto.NewAttestationError("signer identity mismatch")
		}
	}
	return nil
}

func checkReportData(actual, expected []byte) error {
	n := len(expected)
	if len(actual) < n {
		return confcrypto.NewAttestationError("report data too short")
	}
	if !bytes.Equal(actual[:n], expected) {
		return confcrypto.NewAttestationError("report data does not match expected public key and service identifier")
	}
	return nil
}
