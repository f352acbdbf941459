// Package pkce implements Proof Key for Code Exchange (RFC 7636) with
// the S256 challenge method.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

const (
	// verifierBytes yields a 43-character base64url verifier, the RFC 7636 minimum.
	verifierBytes = 32

	// MinVerifierLength is the RFC 7636 lower bound on verifier length.
	MinVerifierLength = 43

	// MaxVerifierLength is the RFC 7636 upper bound on verifier length.
	MaxVerifierLength = 128

	// Method is the only challenge method this package produces.
	Method = "S256"
)

// Pair holds a generated verifier and its derived challenge.
type Pair struct {
	Verifier  string
	Challenge string
	Method    string
}

// GeneratePair produces a cryptographically random verifier and its S256
// challenge. No side effects.
func GeneratePair() (Pair, error) {
	buf := make([]byte, verifierBytes)
	if _, err := rand.Read(buf); err != nil {
		return Pair{}, fmt.Errorf("generate pkce verifier: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(buf)
	return Pair{
		Verifier:  verifier,
		Challenge: Challenge(verifier),
		Method:    Method,
	}, nil
}

// Challenge derives the S256 code challenge for a verifier:
// base64url(SHA-256(verifier)) without padding.
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Verify recomputes the challenge from verifier and compares it against
// the stored challenge in constant time. Malformed input yields false,
// never an error; a failed verification is a normal outcome.
func Verify(verifier, challenge string) bool {
	if len(verifier) < MinVerifierLength || len(verifier) > MaxVerifierLength {
		return false
	}
	if challenge == "" {
		return false
	}
	computed := Challenge(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}
