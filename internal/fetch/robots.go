package fetch

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// RobotsChecker caches robots.txt rules per host
type RobotsChecker struct {
	client    *Client
	userAgent string
	mu        sync.Mutex
	rules     map[string]*robotstxt.RobotsData
}

// NewRobotsChecker creates a checker that fetches robots.txt through client
func NewRobotsChecker(client *Client, userAgent string) *RobotsChecker {
	return &RobotsChecker{
		client:    client,
		userAgent: userAgent,
		rules:     make(map[string]*robotstxt.RobotsData),
	}
}

// IsAllowed reports whether the URL may be fetched. A missing robots.txt
// (4xx) allows everything, a server error (5xx) disallows everything and a
// robots.txt that cannot be retrieved at all allows everything.
func (r *RobotsChecker) IsAllowed(ctx context.Context, u *url.URL) (bool, error) {
	data, err := r.robots(ctx, u)
	if err != nil {
		return true, err
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return data.TestAgent(path, r.userAgent), nil
}

func (r *RobotsChecker) robots(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, error) {
	key := u.Scheme + "://" + u.Host

	r.mu.Lock()
	data, ok := r.rules[key]
	r.mu.Unlock()
	if ok {
		return data, nil
	}

	robotsURL := key + "/robots.txt"
	resp, err := r.client.get(ctx, robotsURL)
	var statusErr *StatusError
	switch {
	case err == nil:
		data, err = robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
	case errors.As(err, &statusErr):
		data, err = robotstxt.FromStatusAndBytes(statusErr.StatusCode, nil)
	}
	if err != nil {
		return nil, err
	}

	if g := data.FindGroup(r.userAgent); g != nil && g.CrawlDelay > 0 {
		r.client.rateLimiter.SetHostDelay(u.Host, g.CrawlDelay)
	}

	r.mu.Lock()
	r.rules[key] = data
	r.mu.Unlock()
	return data, nil
}
