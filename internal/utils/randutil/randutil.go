package randutil

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
)

// APIKeyPrefix marks studio keys so they are recognisable in logs and configs.
const APIKeyPrefix = "studio_"

const (
	apiKeyBytes = 32
	maskVisible = 4
)

// RandomString returns length random bytes, URL-safe base64 encoded.
func RandomString(length int) (string, error) {
	key := make([]byte, length)

	if _, err := rand.Read(key); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(key), nil
}

// NewAPIKey returns a fresh prefixed API key.
func NewAPIKey() (string, error) {
	secret, err := RandomString(apiKeyBytes)
	if err != nil {
		return "", err
	}

	return APIKeyPrefix + secret, nil
}

// MaskAPIKey hides the secret part of a key. The prefix and the first and
// last few secret characters stay visible so a key can be told apart in a list.
func MaskAPIKey(key string) string {
	prefix := ""
	if strings.HasPrefix(key, APIKeyPrefix) {
		prefix, key = APIKeyPrefix, strings.TrimPrefix(key, APIKeyPrefix)
	}

	return prefix + MaskString(key, maskVisible, maskVisible)
}

func MaskString(s string, visibleStart, visibleEnd int) string {
	if len(s) <= visibleStart+visibleEnd {
		return strings.Repeat("*", len(s))
	}

	return s[:visibleStart] + strings.Repeat("*", len(s)-(visibleStart+visibleEnd)) + s[len(s)-visibleEnd:]
}
