package confcrypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, KeySize)
	require.NoError(t, CSPRNGFill(k))
	return k
}

func TestX25519Commutes(t *testing.T) {
	a := randomKey(t)
	b := randomKey(t)
	require.NoError(t, ClampCurve25519Scalar(a))
	require.NoError(t, ClampCurve25519Scalar(b))

	aPub, err := Curve25519ScalarToPoint(a)
	require.NoError(t, err)
	bPub, err := Curve25519ScalarToPoint(b)
	require.NoError(t, err)

	sharedA, err := X25519(a, bPub)
	require.NoError(t, err)
	sharedB, err := X25519(b, aPub)
	require.NoError(t, err)

	require.Equal(t, sharedA, sharedB)
}

func TestEd25519SignVerifyRoundTrip(t *testing.T) {
	seed := randomKey(t)
	require.NoError(t, ClampCurve25519Scalar(seed))

	pub, err := Ed25519ScalarToPoint(seed)
	require.NoError(t, err)

	msg := []byte("service-id||client-nonce")
	sig, err := Ed25519Sign(msg, seed)
	require.NoError(t, err)

	require.True(t, Ed25519Verify(msg, pub, sig))
	require.False(t, Ed25519Verify([]byte("tampered"), pub, sig))
}

func TestIncrementIV(t *testing.T) {
	iv := make([]byte, IVSize)
	iv[IVSize-1] = 1
	IncrementIV(iv)
	want := make([]byte, IVSize)
	want[IVSize-1] = 2
	require.Equal(t, want, iv)

	allOnes := bytes.Repeat([]byte{0xFF}, IVSize)
	IncrementIV(allOnes)
	require.Equal(t, make([]byte, IVSize), allOnes)
}

func TestIncrementIVIsBijective(t *testing.T) {
	seen := map[string]bool{}
	iv := make([]byte, IVSize)
	for i := 0; i < 100000; i++ {
		IncrementIV(iv)
		seen[string(iv)] = true
	}
	require.Len(t, seen, 100000)
}

func TestAEADRoundTrip(t *testing.T) {
	key := randomKey(t)
	iv := make([]byte, IVSize)
	require.NoError(t, CSPRNGFill(iv))
	ad := []byte("additional-data")
	plain := []byte("ping")

	ct, tag, err := AEADSeal(key, iv, ad, plain)
	require.NoError(t, err)

	opened, err := AEADOpen(key, iv, tag, ad, ct)
	require.NoError(t, err)
	require.Equal(t, plain, opened)
}

func TestAEADRejectsTampering(t *testing.T) {
	key := randomKey(t)
	iv := make([]byte, IVSize)
	require.NoError(t, CSPRNGFill(iv))
	ad := []byte("ad")
	plain := []byte("ping")

	ct, tag, err := AEADSeal(key, iv, ad, plain)
	require.NoError(t, err)

	cases := []struct {
		name string
		ct   []byte
		tag  []byte
		ad   []byte
		iv   []byte
		key  []byte
	}{
		{"ciphertext", flipByte(ct), tag, ad, iv, key},
		{"tag", ct, flipByte(tag), ad, iv, key},
		{"ad", ct, tag, flipByte(ad), iv, key},
		{"iv", ct, tag, ad, flipByte(iv), key},
		{"key", ct, tag, ad, iv, flipByte(key)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := AEADOpen(c.key, c.iv, c.tag, c.ad, c.ct)
			require.Error(t, err)
		})
	}
}

func flipByte(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	out[0] ^= 0x01
	return out
}

func TestDeriveTrafficKeysSymmetry(t *testing.T) {
	shared := randomKey(t)

	serverKey, serverIV, err := DeriveTrafficKeys(shared, true)
	require.NoError(t, err)
	clientKey, clientIV, err := DeriveTrafficKeys(shared, false)
	require.NoError(t, err)

	require.NotEqual(t, serverKey, clientKey)
	require.NotEqual(t, serverIV, clientIV)

	serverKey2, serverIV2, err := DeriveTrafficKeys(shared, true)
	require.NoError(t, err)
	require.Equal(t, serverKey, serverKey2)
	require.Equal(t, serverIV, serverIV2)
}
