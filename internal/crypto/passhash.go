// Package crypto implements server-side password hashing and verification.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Supported algorithms.
const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmBcrypt   = "bcrypt"
)

// Argon2id parameters (tuned for server-side hashing).
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32
	argonSaltLen        = 16
)

// ErrEmptyPlaintext is returned when hashing an empty value.
var ErrEmptyPlaintext = errors.New("crypto: empty plaintext")

// ArgonParams are the cost parameters encoded into every argon2id digest.
type ArgonParams struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
}

// DefaultArgonParams returns the production cost parameters.
func DefaultArgonParams() ArgonParams {
	return ArgonParams{Time: argonTime, Memory: argonMemory, Threads: argonThreads, KeyLen: argonKeyLen}
}

// KDF hashes with one configured algorithm and verifies digests of any supported algorithm,
// so bcrypt digests imported from an older deployment keep working.
type KDF struct {
	algorithm  string
	argon      ArgonParams
	bcryptCost int
}

// KDFOption customizes a KDF.
type KDFOption func(*KDF)

// WithArgonParams overrides the argon2id cost parameters.
func WithArgonParams(p ArgonParams) KDFOption {
	return func(k *KDF) { k.argon = p }
}

// WithBcryptCost overrides the bcrypt cost.
func WithBcryptCost(cost int) KDFOption {
	return func(k *KDF) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			k.bcryptCost = cost
		}
	}
}

// NewKDF constructs a KDF for the given algorithm ("" means argon2id).
func NewKDF(algorithm string, opts ...KDFOption) (*KDF, error) {
	if algorithm == "" {
		algorithm = AlgorithmArgon2id
	}
	if algorithm != AlgorithmArgon2id && algorithm != AlgorithmBcrypt {
		return nil, fmt.Errorf("crypto: unsupported algorithm %q", algorithm)
	}
	k := &KDF{algorithm: algorithm, argon: DefaultArgonParams(), bcryptCost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// Hash returns a self-describing salted digest of plaintext.
func (k *KDF) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}
	if k.algorithm == AlgorithmBcrypt {
		h, err := bcrypt.GenerateFromPassword([]byte(plaintext), k.bcryptCost)
		return string(h), err
	}

	salt, err := RandBytes(argonSaltLen)
	if err != nil {
		return "", err
	}
	p := k.argon
	key := argon2.IDKey([]byte(plaintext), salt, p.Time, p.Memory, p.Threads, p.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Time, p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plaintext matches digest. Malformed digests yield false.
func (k *KDF) Verify(plaintext, digest string) bool {
	switch {
	case digest == "":
		return false
	case strings.HasPrefix(digest, "$argon2id$"):
		return verifyArgon2id(plaintext, digest)
	case strings.HasPrefix(digest, "$2a$"), strings.HasPrefix(digest, "$2b$"), strings.HasPrefix(digest, "$2y$"):
		return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
	default:
		return false
	}
}

func verifyArgon2id(plaintext, digest string) bool {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	parts := strings.Split(digest, "$")
	if len(parts) != 6 {
		return false
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}
	var p ArgonParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil {
		return false
	}
	if p.Time == 0 || p.Memory == 0 || p.Threads == 0 {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 {
		return false
	}
	got := argon2.IDKey([]byte(plaintext), salt, p.Time, p.Memory, p.Threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(got, expected) == 1
}
