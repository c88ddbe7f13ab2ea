package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// TokenLength gives 36^12 ≈ 4.7e18 possible keys.
	TokenLength = 12
)

// GenerateToken returns a fresh random key drawn from [A-Z0-9].
func GenerateToken() (string, error) {
	buf := make([]byte, TokenLength)
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate token: %w", err)
		}
		buf[i] = tokenAlphabet[n.Int64()]
	}
	return string(buf), nil
}
