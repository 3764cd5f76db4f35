package fetch

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRateLimiterSpacing(t *testing.T) {
	limiter := NewRateLimiter(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := limiter.Wait(ctx, "http://example.com/page"); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("Expected at least ~100ms for 3 requests, got %v", elapsed)
	}

	// A different host has its own limiter
	start = time.Now()
	if err := limiter.Wait(ctx, "http://other.com/page"); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 40*time.Millisecond {
		t.Errorf("Expected no wait for a new host, got %v", elapsed)
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter := NewRateLimiter(0)
	ctx, cancel := context.WithCancel(context.Background())
	if err := limiter.Wait(ctx, "http://example.com/"); err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
	cancel()
	if err := limiter.Wait(ctx, "http://example.com/"); err == nil {
		t.Error("Expected context error after cancel")
	}
}

func TestRateLimiterHostDelay(t *testing.T) {
	limiter := NewRateLimiter(50 * time.Millisecond)
	ctx := context.Background()

	limiter.SetHostDelay("example.com", 200*time.Millisecond)
	// Shorter than the base delay, so the base delay applies
	limiter.SetHostDelay("short.example.com", 10*time.Millisecond)

	start := time.Now()
	_ = limiter.Wait(ctx, "https://example.com/page1")
	_ = limiter.Wait(ctx, "https://example.com/page2")
	if elapsed := time.Since(start); elapsed < 190*time.Millisecond {
		t.Errorf("Host delay not applied, elapsed time: %v", elapsed)
	}

	start = time.Now()
	_ = limiter.Wait(ctx, "https://short.example.com/a")
	_ = limiter.Wait(ctx, "https://short.example.com/b")
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("Expected base delay to be the minimum, elapsed time: %v", elapsed)
	}
}

func TestRateLimiterContextCancellation(t *testing.T) {
	limiter := NewRateLimiter(500 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	if err := limiter.Wait(ctx, "https://example.com/page1"); err != nil {
		t.Errorf("First request failed: %v", err)
	}

	cancel()

	err := limiter.Wait(ctx, "https://example.com/page2")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestRateLimiterInvalidURL(t *testing.T) {
	limiter := NewRateLimiter(100 * time.Millisecond)

	if err := limiter.Wait(context.Background(), "http://[::1]:namedport"); err == nil {
		t.Errorf("Expected error for invalid URL, got nil")
	}
}
