package httpx

import (
	"context"
	"testing"
	"time"
)

func TestStatusClassification(t *testing.T) {
	for _, code := range []int{408, 429, 500, 503} {
		if !IsRetryableHTTPStatus(code) {
			t.Fatalf("status %d should be retryable", code)
		}
	}
	for _, code := range []int{400, 401, 403, 404} {
		if IsRetryableHTTPStatus(code) {
			t.Fatalf("status %d should not be retryable", code)
		}
	}
	if !IsConfigurationHTTPStatus(401) || IsConfigurationHTTPStatus(429) {
		t.Fatalf("configuration status classification is wrong")
	}
}

func TestSleepInterruptedByContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := Sleep(ctx, time.Minute); err == nil {
		t.Fatalf("expected context error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("sleep was not interrupted")
	}
}

func TestJitterSleepBounds(t *testing.T) {
	for i := 0; i < 50; i++ {
		d := JitterSleep(time.Second)
		if d < 800*time.Millisecond || d > 1200*time.Millisecond {
			t.Fatalf("jitter out of bounds: %s", d)
		}
	}
}
