package hashchain

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChain(t *testing.T) {
	seed := []byte("seed")
	require.Equal(t, seed, Chain(seed, 0))

	one := sha256.Sum256(seed)
	require.Equal(t, one[:], Chain(seed, 1))

	two := sha256.Sum256(one[:])
	require.Equal(t, two[:], Chain(seed, 2))
	require.Equal(t, Chain(one[:], 1), Chain(seed, 2))
}
