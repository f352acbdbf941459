package pkce

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGeneratePair(t *testing.T) {
	pair, err := GeneratePair()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(pair.Verifier), MinVerifierLength)
	require.Equal(t, "S256", pair.Method)

	sum := sha256.Sum256([]byte(pair.Verifier))
	require.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), pair.Challenge)
}

func TestGeneratePair_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		pair, err := GeneratePair()
		require.NoError(t, err)
		require.False(t, seen[pair.Verifier], "duplicate verifier generated")
		seen[pair.Verifier] = true
	}
}

func TestVerify_RoundTrip(t *testing.T) {
	pair, err := GeneratePair()
	require.NoError(t, err)
	require.True(t, Verify(pair.Verifier, pair.Challenge))
}

func TestVerify_WrongVerifier(t *testing.T) {
	pair, err := GeneratePair()
	require.NoError(t, err)

	other, err := GeneratePair()
	require.NoError(t, err)

	require.False(t, Verify(other.Verifier, pair.Challenge))
}

func TestVerify_MalformedInput(t *testing.T) {
	pair, err := GeneratePair()
	require.NoError(t, err)

	cases := map[string]struct {
		verifier  string
		challenge string
	}{
		"empty verifier":      {"", pair.Challenge},
		"empty challenge":     {pair.Verifier, ""},
		"short verifier":      {"too-short", pair.Challenge},
		"oversized verifier":  {strings.Repeat("a", MaxVerifierLength+1), pair.Challenge},
		"garbage challenge":   {pair.Verifier, "not-a-challenge"},
		"swapped arguments":   {pair.Challenge, pair.Verifier},
		"both empty":          {"", ""},
		"whitespace verifier": {strings.Repeat(" ", MinVerifierLength), pair.Challenge},
	}
	for name, tc := range cases {
		require.False(t, Verify(tc.verifier, tc.challenge), name)
	}
}

func TestChallenge_Deterministic(t *testing.T) {
	verifier := strings.Repeat("a", MinVerifierLength)
	require.Equal(t, Challenge(verifier), Challenge(verifier))
}
