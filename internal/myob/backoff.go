package myob

import (
	"context"
	"crypto/rand"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// backoff computes the wait before each retry with exponential growth and
// jitter, so callers backing off a 429 or a 5xx don't retry in lockstep.
type backoff struct {
	// Base is the delay before the first retry
	Base time.Duration
	// Factor multiplies the delay on each subsequent retry
	Factor float64
	// Max caps exponential growth
	Max time.Duration
	// Jitter adds randomness to delays (0.0-1.0, where 0.2 = 20% jitter)
	Jitter float64
}

func defaultBackoff() backoff {
	return backoff{
		Base:   500 * time.Millisecond,
		Factor: 2.0,
		Max:    30 * time.Second,
		Jitter: 0.2,
	}
}

// delay returns the wait before retry number n (0-based).
func (b backoff) delay(n int) time.Duration {
	d := float64(b.Base)
	for i := 0; i < n; i++ {
		d *= b.Factor
	}
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}

	wait := time.Duration(d)
	if b.Jitter > 0 {
		wait += time.Duration(randomInt64n(int64(d * b.Jitter)))
	}
	return wait
}

// sleepContext waits for d or until the context is cancelled, whichever
// comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryAfterDelay parses a Retry-After header, which carries either integer
// seconds or an HTTP date. Absent or unparseable values return 0 so the
// caller falls back to exponential backoff.
func retryAfterDelay(header string, now time.Time) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}

	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}

	if at, err := http.ParseTime(header); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}

	return 0
}

// randomInt64n returns a random int64 in [0, n), using crypto/rand with a
// time-based fallback.
func randomInt64n(n int64) int64 {
	if n <= 0 {
		return 0
	}

	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return time.Now().UnixNano() % n
	}

	val := int64(bytes[0])<<56 | int64(bytes[1])<<48 | int64(bytes[2])<<40 | int64(bytes[3])<<32 |
		int64(bytes[4])<<24 | int64(bytes[5])<<16 | int64(bytes[6])<<8 | int64(bytes[7])
	if val < 0 {
		val = -val
	}

	return val % n
}
