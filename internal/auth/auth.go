// Package auth holds the API key helpers shared by the authenticator and the
// key generator.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
)

var (
	ErrMissingCredentials = errors.New("missing Authorization header")
	ErrInvalidScheme      = errors.New("unsupported authorization scheme")
	ErrInvalidAPIKey      = errors.New("invalid API key")
)

// ExtractAPIKey extracts the API key from the Authorization header
func ExtractAPIKey(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingCredentials
	}

	// Support "Bearer <key>" format
	scheme, key, ok := strings.Cut(header, " ")
	if !ok || strings.TrimSpace(key) == "" {
		return "", ErrInvalidScheme
	}
	if !strings.EqualFold(scheme, "bearer") {
		return "", ErrInvalidScheme
	}

	return strings.TrimSpace(key), nil
}

// HashAPIKey creates a SHA-256 hash of an API key for storage
func HashAPIKey(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(hash[:])
}

// GenerateAPIKey returns a random key with the rql_ prefix.
func GenerateAPIKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "rql_" + hex.EncodeToString(b), nil
}
