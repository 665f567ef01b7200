package core

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"
)

const (
	keyAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	keyGroups      = 4
	keyGroupLength = 5
)

// keyEntropy is swapped in tests.
var keyEntropy io.Reader = rand.Reader

// GenerateProductKey returns a random key of the form XXXXX-XXXXX-XXXXX-XXXXX.
func GenerateProductKey() (string, error) {
	limit := big.NewInt(int64(len(keyAlphabet)))
	groups := make([]string, keyGroups)
	for g := range groups {
		var b strings.Builder
		for range keyGroupLength {
			n, err := rand.Int(keyEntropy, limit)
			if err != nil {
				return "", fmt.Errorf("generate product key: %w", err)
			}
			b.WriteByte(keyAlphabet[n.Int64()])
		}
		groups[g] = b.String()
	}
	return strings.Join(groups, "-"), nil
}
