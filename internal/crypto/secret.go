package crypto

import (
	"crypto/rand"
	"math/big"
)

// SecretLength is the length of one-time verification and reset codes.
const SecretLength = 10

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// SecretGenerator produces one-time codes.
type SecretGenerator struct {
	length int
}

// NewSecretGenerator returns a generator of SecretLength-character alphanumeric codes.
func NewSecretGenerator() *SecretGenerator {
	return &SecretGenerator{length: SecretLength}
}

// Generate returns a fresh alphanumeric code.
func (g *SecretGenerator) Generate() (string, error) {
	return RandomString(g.length)
}

// RandomString returns n characters drawn uniformly from [A-Za-z0-9].
func RandomString(n int) (string, error) {
	limit := big.NewInt(int64(len(alphanumeric)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		out[i] = alphanumeric[idx.Int64()]
	}
	return string(out), nil
}
