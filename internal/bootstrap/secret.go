package bootstrap

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// SecretBytes is the amount of entropy in a generated secret.
const SecretBytes = 32

// GenerateSecret returns SecretBytes random bytes as unpadded URL-safe base64.
func GenerateSecret() (string, error) {
	buf := make([]byte, SecretBytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
