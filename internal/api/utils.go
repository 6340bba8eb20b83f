package api

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const stateLength = 32

// newState returns a URL-safe random string for the OAuth2 state parameter.
func newState(length int) (string, error) {
	b := make([]byte, base64.RawURLEncoding.DecodedLen(length)+1)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length], nil
}
