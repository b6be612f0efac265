package revocation

import (
	"crypto/subtle"
	"dtn_chat/internal/cryptographic/hashchain"
	"time"
)

// SkewDays is how many days the verifier's calendar may differ from the
// sender's and still accept a status.
const SkewDays = 1

type (
	Clock interface {
		Now() time.Time
	}

	SystemClock struct{}

	// FixedClock always reports the same instant. It replaces the wall
	// clock when a simulated date is configured.
	FixedClock struct {
		At time.Time
	}

	Verifier struct {
		clock Clock
	}
)

func (SystemClock) Now() time.Time { return time.Now() }

func (c FixedClock) Now() time.Time { return c.At }

func NewVerifier(clock Clock) *Verifier {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Verifier{clock: clock}
}

func (v *Verifier) Now() time.Time {
	return v.clock.Now()
}

// Verify checks seed against expected using the verifier's clock.
func (v *Verifier) Verify(expected, seed []byte, issued time.Time) bool {
	return Verify(expected, seed, issued, v.clock.Now())
}

// Verify reports whether expected is the hash chain of seed whose length is
// the number of calendar days from issued to now, give or take SkewDays.
// Negative chain lengths never match.
func Verify(expected, seed []byte, issued, now time.Time) bool {
	days := DaysBetween(issued, now)
	for _, n := range []int{days, days + SkewDays, days - SkewDays} {
		if n < 0 {
			continue
		}
		if subtle.ConstantTimeCompare(expected, hashchain.Chain(seed, n)) == 1 {
			return true
		}
	}
	return false
}

// DaysBetween counts calendar days from the date of from to the date of to,
// each taken in its own location. The result is negative when to is earlier.
func DaysBetween(from, to time.Time) int {
	return int(civilDate(to).Sub(civilDate(from)).Hours() / 24)
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
