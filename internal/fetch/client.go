// Package fetch retrieves resources over http(s) and from the local
// filesystem for the spider.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/masahif/hondana/internal/resource"
)

// ErrDisallowed is returned when robots.txt forbids fetching a URL
var ErrDisallowed = errors.New("disallowed by robots.txt")

// StatusError is returned for HTTP responses with status >= 400
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.StatusCode)
}

// Response holds a fetched resource
type Response struct {
	URL        string // URL as requested
	FinalURL   string // After following redirects
	StatusCode int
	MediaType  resource.MediaType
	Headers    http.Header
	Body       []byte
}

// Fetcher retrieves a resource by absolute URL
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Response, error)
}

// Options configures a Client
type Options struct {
	UserAgent     string
	Timeout       time.Duration
	Delay         time.Duration
	RespectRobots bool
	Headers       map[string]string
	MaxBodySize   int64
	// Username and Password enable HTTP basic authentication
	Username string
	Password string
}

// Client fetches http(s) and file URLs
type Client struct {
	client        *http.Client
	userAgent     string
	customHeaders map[string]string
	maxBodySize   int64
	username      string
	password      string
	rateLimiter   *RateLimiter
	robots        *RobotsChecker
}

var _ Fetcher = (*Client)(nil)

// NewClient creates a new fetch client
func NewClient(opts Options) *Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   opts.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	maxBody := opts.MaxBodySize
	if maxBody <= 0 {
		maxBody = 64 << 20
	}

	c := &Client{
		client:        client,
		userAgent:     opts.UserAgent,
		customHeaders: make(map[string]string, len(opts.Headers)),
		maxBodySize:   maxBody,
		username:      opts.Username,
		password:      opts.Password,
		rateLimiter:   NewRateLimiter(opts.Delay),
	}
	for k, v := range opts.Headers {
		c.customHeaders[k] = v
	}
	if opts.RespectRobots {
		c.robots = NewRobotsChecker(c, opts.UserAgent)
	}
	return c
}

// Fetch retrieves a resource. file:// URLs are read from disk; http(s) URLs
// go through the rate limiter and, when enabled, robots.txt.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %s: %w", rawURL, err)
	}

	switch u.Scheme {
	case "file":
		return c.fetchFile(u)
	case "http", "https":
		if c.robots != nil {
			allowed, err := c.robots.IsAllowed(ctx, u)
			if err != nil {
				slog.Warn("robots.txt check failed", "url", rawURL, "error", err)
			}
			if !allowed {
				return nil, fmt.Errorf("%s: %w", rawURL, ErrDisallowed)
			}
		}
		if err := c.rateLimiter.Wait(ctx, rawURL); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		return c.get(ctx, rawURL)
	default:
		return nil, fmt.Errorf("unsupported scheme %q in %s", u.Scheme, rawURL)
	}
}

// get performs an HTTP GET and reads the body
func (c *Client) get(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")
	for name, value := range c.customHeaders {
		req.Header.Set(name, value)
	}
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	finalURL := resp.Request.URL
	finalURL.Fragment = ""

	mt := resource.ParseMediaType(resp.Header.Get("Content-Type"))
	if mt.IsZero() || mt.Is("application/octet-stream") {
		if guessed := resource.GuessMediaType(finalURL.String()); !guessed.IsZero() {
			mt = guessed
		}
	}

	return &Response{
		URL:        rawURL,
		FinalURL:   finalURL.String(),
		StatusCode: resp.StatusCode,
		MediaType:  mt,
		Headers:    resp.Header,
		Body:       body,
	}, nil
}

// fetchFile reads a local file
func (c *Client) fetchFile(u *url.URL) (*Response, error) {
	p := filepath.FromSlash(u.Path)
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", p, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", p)
	}
	if info.Size() > c.maxBodySize {
		return nil, fmt.Errorf("%s exceeds maximum size of %d bytes", p, c.maxBodySize)
	}

	body, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}

	canonical := (&url.URL{Scheme: "file", Path: u.Path}).String()
	return &Response{
		URL:        u.String(),
		FinalURL:   canonical,
		StatusCode: http.StatusOK,
		MediaType:  resource.GuessMediaType(canonical),
		Body:       body,
	}, nil
}

// Close releases idle connections
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}
