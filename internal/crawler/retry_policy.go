package crawler

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"net"
	"time"
)

// JitterPolicy spaces crawl retries. Browser failures and timeouts wait 2-5
// units, everything else 1-3 units.
type JitterPolicy struct {
	unit time.Duration
}

// NewJitterPolicy builds a policy; unit defaults to one second.
func NewJitterPolicy(unit time.Duration) JitterPolicy {
	if unit <= 0 {
		unit = time.Second
	}
	return JitterPolicy{unit: unit}
}

// Backoff returns the wait before retrying after err.
func (p JitterPolicy) Backoff(err error, headless bool) time.Duration {
	unit := p.unit
	if unit <= 0 {
		unit = time.Second
	}
	if headless || IsTimeout(err) {
		return Between(2*unit, 5*unit)
	}
	return Between(unit, 3*unit)
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Between returns a uniformly random duration in [lo, hi].
func Between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + randomJitter(hi-lo)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit) + 1)
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// Sleep waits for d or until ctx is done, returning ctx.Err() in that case.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
