package crypto

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// PooledHasher bounds the number of concurrent KDF computations so bursts of
// logins cannot starve the rest of the process.
type PooledHasher struct {
	kdf *KDF
	sem *semaphore.Weighted
}

// NewPooledHasher wraps kdf with a limit of workers concurrent hashes (<=0 means GOMAXPROCS).
func NewPooledHasher(kdf *KDF, workers int) *PooledHasher {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &PooledHasher{kdf: kdf, sem: semaphore.NewWeighted(int64(workers))}
}

// Hash hashes plaintext once a worker slot is free.
func (h *PooledHasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)
	return h.kdf.Hash(plaintext)
}

// Verify checks plaintext against digest; a cancelled context yields false.
func (h *PooledHasher) Verify(ctx context.Context, plaintext, digest string) bool {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	defer h.sem.Release(1)
	return h.kdf.Verify(plaintext, digest)
}
