package httpx

import (
	"context"
	"math/rand"
	"time"
)

func IsRetryableHTTPStatus(code int) bool {
	if code == 408 || code == 409 || code == 429 {
		return true
	}
	return code >= 500 && code <= 599
}

// IsConfigurationHTTPStatus marks statuses that no amount of retrying will fix.
func IsConfigurationHTTPStatus(code int) bool {
	return code == 401 || code == 403 || code == 404
}

func JitterSleep(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	j := 0.2
	delta := base.Seconds() * j
	low := base.Seconds() - delta
	high := base.Seconds() + delta
	if low < 0 {
		low = 0
	}
	v := low + rand.Float64()*(high-low)
	return time.Duration(v * float64(time.Second))
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
