package fetch

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter spaces out requests per host
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	delay    time.Duration
}

// NewRateLimiter creates a new rate limiter. A zero delay disables limiting.
func NewRateLimiter(delay time.Duration) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		delay:    delay,
	}
}

// Wait blocks until a request to the URL's host may proceed
func (r *RateLimiter) Wait(ctx context.Context, rawURL string) error {
	if r.delay <= 0 {
		return ctx.Err()
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	return r.limiter(u.Host).Wait(ctx)
}

// SetHostDelay overrides the delay for one host, e.g. from a robots.txt
// Crawl-delay directive.
func (r *RateLimiter) SetHostDelay(host string, delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if delay < r.delay {
		delay = r.delay
	}
	if delay <= 0 {
		return
	}
	r.limiters[host] = rate.NewLimiter(rate.Every(delay), 1)
}

func (r *RateLimiter) limiter(host string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[host]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Every(r.delay), 1)
	r.limiters[host] = l
	return l
}
