package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/masahif/hondana/internal/fetch"
	"github.com/masahif/hondana/internal/resource"
)

// Factory creates a parser for a fetched resource
type Factory func(attribs *resource.Attributes, body []byte) Parser

// Registry maps media types to parser factories and caches parsers by
// resolved URL, so a resource is fetched and parsed at most once per job.
// A Registry is not safe for concurrent use.
type Registry struct {
	fetcher   fetch.Fetcher
	factories map[string]Factory
	cache     map[string]Parser
}

// NewRegistry creates a registry with the default factories
func NewRegistry(fetcher fetch.Fetcher) *Registry {
	r := &Registry{
		fetcher:   fetcher,
		factories: make(map[string]Factory),
		cache:     make(map[string]Parser),
	}
	r.Register(resource.TypeHTML, NewHTMLParser)
	r.Register(resource.TypeXHTML, NewHTMLParser)
	r.Register(resource.TypeText, NewTextParser)
	r.Register(resource.TypeRST, NewTextParser)
	r.Register(resource.TypeCSS, NewCSSParser)
	r.Register("*", NewAuxParser)
	return r
}

// Register sets the factory for a media type. "major/*" and "*" act as
// fallbacks.
func (r *Registry) Register(mediaType string, f Factory) {
	r.factories[strings.ToLower(mediaType)] = f
}

// factoryFor looks up the exact type, then "major/*", then "*"
func (r *Registry) factoryFor(mt resource.MediaType) Factory {
	t := strings.ToLower(mt.Type)
	if f, ok := r.factories[t]; ok {
		return f
	}
	if major, _, ok := strings.Cut(t, "/"); ok {
		if f, ok := r.factories[major+"/*"]; ok {
			return f
		}
	}
	return r.factories["*"]
}

// Cached returns the parser cached under url, if any
func (r *Registry) Cached(url string) (Parser, bool) {
	p, ok := r.cache[url]
	return p, ok
}

// ParserFor returns the parser for the resource, fetching it on first use.
// On return attribs.URL holds the URL the resource was served from; a parser
// found under either spelling is reused.
func (r *Registry) ParserFor(ctx context.Context, attribs *resource.Attributes) (Parser, error) {
	if p, ok := r.cache[attribs.URL]; ok {
		return p, nil
	}

	resp, err := r.fetcher.Fetch(ctx, attribs.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", attribs.URL, err)
	}

	requested := attribs.URL
	if resp.FinalURL != "" && resp.FinalURL != requested {
		attribs.URL = resp.FinalURL
		if p, ok := r.cache[resp.FinalURL]; ok {
			r.cache[requested] = p
			return p, nil
		}
	}

	if !resp.MediaType.IsZero() {
		attribs.OrigMediaType = resp.MediaType
	} else if attribs.OrigMediaType.IsZero() {
		attribs.OrigMediaType = resource.GuessMediaType(attribs.URL)
	}

	f := r.factoryFor(attribs.OrigMediaType)
	if f == nil {
		return nil, fmt.Errorf("no parser for media type %q", attribs.OrigMediaType.Type)
	}

	p := f(attribs, resp.Body)
	r.cache[requested] = p
	r.cache[attribs.URL] = p
	slog.Debug("Created parser", "url", attribs.URL, "media_type", attribs.OrigMediaType.String(), "size", len(resp.Body))
	return p, nil
}

// Len returns the number of cached URLs
func (r *Registry) Len() int {
	return len(r.cache)
}

// Clear drops every cached parser
func (r *Registry) Clear() {
	clear(r.cache)
}
