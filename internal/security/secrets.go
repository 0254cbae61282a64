package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math"
	"strings"
)

const (
	// MinSecretLength is the recommended minimum length for the deploy secret.
	MinSecretLength = 48

	// MinEntropy is the minimum Shannon entropy threshold for secrets.
	MinEntropy = 3.5

	// generatedSecretBytes encodes to exactly MinSecretLength base64 characters.
	generatedSecretBytes = 36
)

var placeholderSecrets = map[string]bool{
	"secret":              true,
	"deploy-secret":       true,
	"rollout-secret":      true,
	"replace-with-secret": true,
	"changeme":            true,
	"password":            true,
	"topsecret":           true,
}

// ValidateSecret reports why a deploy secret is unsuitable for signing tokens.
// Checks:
// - Minimum length (48 characters)
// - Not a placeholder value
// - Sufficient Shannon entropy (minimum 3.5)
//
// A secret that fails these checks still works; the server logs a warning
// rather than refusing to start.
func ValidateSecret(secret string) error {
	if len(secret) < MinSecretLength {
		return fmt.Errorf("secret too short (recommended minimum %d characters, got %d)", MinSecretLength, len(secret))
	}

	lower := strings.ToLower(secret)
	if placeholderSecrets[lower] {
		return fmt.Errorf("secret appears to be a placeholder value, please use a real secret")
	}
	for _, marker := range []string{"replace", "changeme", "password"} {
		if strings.Contains(lower, marker) {
			return fmt.Errorf("secret appears to be a placeholder value")
		}
	}

	entropy := calculateEntropy(secret)
	if entropy < MinEntropy {
		return fmt.Errorf("secret has insufficient entropy (%.2f < %.2f) - use a more random secret", entropy, MinEntropy)
	}

	return nil
}

// GenerateSecret creates a cryptographically secure random secret.
// Returns a 48-character URL-safe base64 string.
func GenerateSecret() (string, error) {
	buf := make([]byte, generatedSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random secret: %w", err)
	}
	return base64.URLEncoding.EncodeToString(buf), nil
}

// calculateEntropy computes the Shannon entropy of a string.
func calculateEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}

	freq := make(map[rune]int)
	for _, c := range s {
		freq[c]++
	}

	// H = -Σ(p(x) * log2(p(x)))
	var entropy float64
	length := float64(len(s))
	for _, count := range freq {
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}

	return entropy
}
