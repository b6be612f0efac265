package revocation

import (
	"testing"
	"time"

	"dtn_chat/internal/cryptographic/hashchain"

	"github.com/stretchr/testify/require"
)

var issued = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

func TestDaysBetween(t *testing.T) {
	require.Equal(t, 0, DaysBetween(issued, issued.Add(10*time.Hour)))
	require.Equal(t, 1, DaysBetween(issued, time.Date(2025, 3, 2, 0, 0, 1, 0, time.UTC)))
	require.Equal(t, 31, DaysBetween(issued, time.Date(2025, 4, 1, 23, 59, 0, 0, time.UTC)))
	require.Equal(t, -2, DaysBetween(issued, time.Date(2025, 2, 27, 12, 0, 0, 0, time.UTC)))
	// crosses a leap day
	require.Equal(t, 366, DaysBetween(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestVerifyAcceptsExactChain(t *testing.T) {
	seed := []byte{0xde, 0xad, 0xbe, 0xef}
	for _, days := range []int{0, 1, 2, 7, 30, 365} {
		expected := hashchain.Chain(seed, days)
		now := issued.AddDate(0, 0, days)
		require.True(t, Verify(expected, seed, issued, now), "days=%d", days)

		for i := range expected {
			tampered := append([]byte(nil), expected...)
			tampered[i] ^= 0x01
			require.False(t, Verify(tampered, seed, issued, now), "days=%d byte=%d", days, i)
		}
	}
}

func TestVerifyClockSkew(t *testing.T) {
	seed := []byte("not revoked")
	const days = 10
	expected := hashchain.Chain(seed, days)

	for skew, ok := range map[int]bool{-3: false, -2: false, -1: true, 0: true, 1: true, 2: false, 3: false} {
		now := issued.AddDate(0, 0, days+skew)
		require.Equal(t, ok, Verify(expected, seed, issued, now), "skew=%d", skew)
	}
}

func TestVerifyBeforeIssuance(t *testing.T) {
	seed := []byte("seed")
	expected := hashchain.Chain(seed, 0)

	require.True(t, Verify(expected, seed, issued, issued.AddDate(0, 0, -1)))
	require.False(t, Verify(expected, seed, issued, issued.AddDate(0, 0, -2)))
}

func TestVerifyRevokedPeer(t *testing.T) {
	// A revoked peer can only publish a status from before revocation, which
	// hashes to the expected value in fewer steps than days elapsed.
	seed := []byte("day five status")
	expected := hashchain.Chain(seed, 5)
	stale := hashchain.Chain(seed, 2)

	require.True(t, Verify(expected, seed, issued, issued.AddDate(0, 0, 5)))
	require.False(t, Verify(expected, stale, issued, issued.AddDate(0, 0, 5)))
}

func TestVerifierUsesClock(t *testing.T) {
	seed := []byte("seed")
	expected := hashchain.Chain(seed, 4)

	v := NewVerifier(FixedClock{At: issued.AddDate(0, 0, 4)})
	require.True(t, v.Verify(expected, seed, issued))

	v = NewVerifier(FixedClock{At: issued.AddDate(0, 0, 40)})
	require.False(t, v.Verify(expected, seed, issued))
}
