package hashchain

import (
	"crypto/sha256"
)

// Chain applies SHA-256 to seed n times. Chain(seed, 0) returns a copy of seed.
func Chain(seed []byte, n int) []byte {
	out := append([]byte(nil), seed...)
	for i := 0; i < n; i++ {
		sum := sha256.Sum256(out)
		out = sum[:]
	}
	return out
}
