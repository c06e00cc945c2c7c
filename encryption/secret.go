package encryption

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	secretAlphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	secretGroupSize     = 5
	DefaultSecretLength = 25
)

// GenerateSecret draws length characters from A-Z0-9 and groups them by five with dashes
func GenerateSecret(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("secret length must be positive, got %d", length)
	}

	alphabetSize := big.NewInt(int64(len(secretAlphabet)))
	raw := make([]byte, length)
	for i := range raw {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("failed to generate secret: %w", err)
		}
		raw[i] = secretAlphabet[n.Int64()]
	}

	var b strings.Builder
	for i, c := range raw {
		if i > 0 && i%secretGroupSize == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(c)
	}
	return b.String(), nil
}
