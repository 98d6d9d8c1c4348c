package secretstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBearerChallenge(t *testing.T) {
	assert.True(t, isBearerChallenge(`Bearer authorization="https://login.example.com", resource="https://vault.example.com"`))
	assert.False(t, isBearerChallenge(`Basic realm="example"`))
}

func TestParseHTTPChallenge(t *testing.T) {
	header := `Bearer authorization="https://login.example.com/tenant", resource="https://vault.example.com"`

	challenge, err := parseHTTPChallenge(header)
	require.NoError(t, err)

	authority, err := challenge.authority()
	require.NoError(t, err)
	assert.Equal(t, "https://login.example.com/tenant", authority)

	resource, err := challenge.resource()
	require.NoError(t, err)
	assert.Equal(t, "https://vault.example.com", resource)
}

func TestParseHTTPChallengeFallsBackToAuthorizationURI(t *testing.T) {
	header := `Bearer authorization_uri="https://login.example.com/tenant", resource="https://vault.example.com"`

	challenge, err := parseHTTPChallenge(header)
	require.NoError(t, err)

	authority, err := challenge.authority()
	require.NoError(t, err)
	assert.Equal(t, "https://login.example.com/tenant", authority)
}

func TestParseHTTPChallengeRejectsEmptyHeader(t *testing.T) {
	_, err := parseHTTPChallenge("")
	assert.Error(t, err)
}

func TestParseHTTPChallengeMissingFields(t *testing.T) {
	challenge, err := parseHTTPChallenge(`Bearer foo="bar"`)
	require.NoError(t, err)

	_, err = challenge.authority()
	assert.Error(t, err)

	_, err = challenge.resource()
	assert.Error(t, err)
}
