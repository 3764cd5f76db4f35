// Package spider discovers the resources reachable from a root document with
// a breadth-first traversal, filters them by URL, media type and relation,
// and orders the result by explicit "next" links.
package spider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/masahif/hondana/internal/fetch"
	"github.com/masahif/hondana/internal/parser"
	"github.com/masahif/hondana/internal/resource"
)

// ErrRootUnavailable is returned when the root document cannot be read
var ErrRootUnavailable = errors.New("root document unavailable")

// Recorder receives traversal events, e.g. for a build manifest
type Recorder interface {
	RecordResource(attribs *resource.Attributes, depth int)
	RecordRedirect(from, to string)
	RecordError(url, errorType, message string)
}

// Options configures a Spider
type Options struct {
	// MaxDepth bounds document links: the root is depth 0 and a document
	// link is followed only from depth < MaxDepth. 0 means unlimited.
	MaxDepth          int
	IncludeURLs       []string
	ExcludeURLs       []string
	IncludeMediaTypes []string
	ExcludeMediaTypes []string

	Recorder Recorder
	// Progress is called after every parsed resource
	Progress func(parsed, queued int)
}

// DefaultOptions returns options following the root and its direct links
func DefaultOptions() Options {
	return Options{MaxDepth: 1}
}

type queueItem struct {
	depth   int
	attribs *resource.Attributes
}

// Spider runs one traversal. It is not safe for concurrent use.
type Spider struct {
	registry *parser.Registry
	opts     Options
	filter   *Filter

	parsers      []parser.Parser
	parsedURLs   map[string]bool
	redirections map[string]string
	nextEdges    [][2]string
	sorted       bool
}

// New creates a spider using registry for fetching and parsing
func New(registry *parser.Registry, opts Options) *Spider {
	return &Spider{
		registry:     registry,
		opts:         opts,
		parsedURLs:   make(map[string]bool),
		redirections: make(map[string]string),
		sorted:       true,
	}
}

// RecursiveParse traverses everything reachable from root. Extra seeds, such
// as a cover image given on the command line, are visited after the root
// without being filtered. Only failure to read the root aborts the
// traversal.
func (s *Spider) RecursiveParse(ctx context.Context, root *resource.Attributes, extras ...*resource.Attributes) error {
	requestedRoot := root.URL
	if err := s.compileFilter(requestedRoot); err != nil {
		return err
	}

	slog.Info("Starting traversal", "root", root.URL, "max_depth", s.opts.MaxDepth)

	queue := []queueItem{{depth: 0, attribs: root}}
	for _, extra := range extras {
		queue = append(queue, queueItem{depth: 0, attribs: extra})
	}

	for isRoot := true; len(queue) > 0; isRoot = false {
		if err := ctx.Err(); err != nil {
			return err
		}
		item := queue[0]
		queue = queue[1:]

		p, err := s.visit(ctx, item)
		if err != nil {
			if isRoot {
				return fmt.Errorf("%w: %w", ErrRootUnavailable, err)
			}
			continue
		}
		if p == nil {
			continue
		}
		if isRoot && root.URL != requestedRoot && len(s.opts.IncludeURLs) == 0 {
			// links resolve against the URL the root was served from
			if err := s.compileFilter(p.Attribs().URL); err != nil {
				return err
			}
		}

		queue = s.enqueueLinks(queue, p, item.depth)
		if s.opts.Progress != nil {
			s.opts.Progress(len(s.parsers), len(queue))
		}
	}

	s.dropEmpty()
	if len(s.parsers) == 0 || s.parsers[0].Attribs() != root {
		return fmt.Errorf("%w: %w", ErrRootUnavailable, parser.ErrNoContent)
	}

	s.sortByNext()
	for _, p := range s.parsers {
		p.RemapLinks(s.redirections)
	}

	slog.Info("Traversal completed", "resources", len(s.parsers), "redirects", len(s.redirections), "sorted", s.sorted)
	return nil
}

// compileFilter builds the inclusion filter. Without include patterns
// everything below the directory of rootURL is included.
func (s *Spider) compileFilter(rootURL string) error {
	includes := s.opts.IncludeURLs
	if len(includes) == 0 {
		includes = []string{RootPattern(rootURL)}
	}
	filter, err := NewFilter(includes, s.opts.ExcludeURLs, s.opts.IncludeMediaTypes, s.opts.ExcludeMediaTypes)
	if err != nil {
		return fmt.Errorf("failed to compile filters: %w", err)
	}
	s.filter = filter
	return nil
}

// visit fetches and pre-parses one queued resource. It returns a nil parser
// for resources already parsed under this or another URL.
func (s *Spider) visit(ctx context.Context, item queueItem) (parser.Parser, error) {
	attribs := item.attribs
	attribs.URL = s.canonical(attribs.URL)
	if s.parsedURLs[attribs.URL] {
		return nil, nil
	}

	requested := attribs.URL
	p, err := s.registry.ParserFor(ctx, attribs)
	if err != nil {
		// a broken resource linked from several pages is fetched once
		s.parsedURLs[requested] = true
		slog.Error("Failed to fetch resource", "url", requested, "referrer", attribs.Referrer, "error", err)
		s.recordError(requested, fetchErrorType(err), err)
		return nil, err
	}

	final := p.Attribs().URL
	if final != requested {
		s.redirections[requested] = final
		s.parsedURLs[requested] = true
		slog.Debug("Followed redirect", "from", requested, "to", final)
		if s.opts.Recorder != nil {
			s.opts.Recorder.RecordRedirect(requested, final)
		}
		if s.parsedURLs[final] {
			return nil, nil
		}
	}

	if err := p.PreParse(ctx); err != nil {
		s.parsedURLs[requested] = true
		s.parsedURLs[final] = true
		slog.Error("Failed to parse resource", "url", final, "error", err)
		s.recordError(final, "parse_error", err)
		return nil, err
	}

	s.parsers = append(s.parsers, p)
	s.parsedURLs[final] = true
	slog.Debug("Parsed resource", "url", final, "depth", item.depth, "media_type", p.MediaType().Type)
	if s.opts.Recorder != nil {
		s.opts.Recorder.RecordResource(p.Attribs(), item.depth)
	}
	return p, nil
}

// enqueueLinks classifies the links of p and queues the included ones
func (s *Spider) enqueueLinks(queue []queueItem, p parser.Parser, depth int) []queueItem {
	referrer := p.Attribs().URL
	ordinal := 0
	for linkURL, link := range p.IterLinks() {
		ordinal++
		if link.HasRel(resource.RelNext) {
			target, _ := resource.Defrag(linkURL)
			s.nextEdges = append(s.nextEdges, [2]string{referrer, target})
		}

		childDepth := depth
		if Classify(link) == Document {
			if s.opts.MaxDepth > 0 && depth >= s.opts.MaxDepth {
				continue
			}
			childDepth = depth + 1
		}

		child := newLinkAttributes(referrer, linkURL, link, ordinal)
		if s.parsedURLs[child.URL] {
			continue
		}
		if !s.filter.IsIncluded(child) {
			slog.Debug("Skipping excluded link", "url", child.URL, "referrer", referrer)
			continue
		}
		queue = append(queue, queueItem{depth: childDepth, attribs: child})
	}
	return queue
}

// newLinkAttributes creates fresh attributes for a discovered link
func newLinkAttributes(referrer, linkURL string, link parser.Link, ordinal int) *resource.Attributes {
	base, _ := resource.Defrag(linkURL)
	a := resource.NewAttributes(base)
	a.OrigURL = linkURL
	a.Referrer = referrer
	a.Title = link.Title
	a.ID = link.ID
	if a.ID == "" {
		a.ID = resource.GenerateID(referrer, ordinal)
	}
	for _, rel := range link.Rel {
		a.Relations.Add(resource.Relation(rel))
	}
	if link.Type != "" {
		a.OrigMediaType = resource.ParseMediaType(link.Type)
	}
	return a
}

// dropEmpty removes parsers that produced no content
func (s *Spider) dropEmpty() {
	kept := s.parsers[:0]
	for _, p := range s.parsers {
		if p.IsEmpty() {
			slog.Warn("Dropping empty resource", "url", p.Attribs().URL)
			s.recordError(p.Attribs().URL, "empty", parser.ErrNoContent)
			continue
		}
		kept = append(kept, p)
	}
	s.parsers = kept
}

// sortByNext reorders the parsers along the referrer -> target edges of
// rel="next" links. On a cycle the breadth-first order is kept.
func (s *Spider) sortByNext() {
	if len(s.nextEdges) == 0 {
		return
	}

	nodes := make([]string, len(s.parsers))
	for i, p := range s.parsers {
		nodes[i] = p.Attribs().URL
	}

	edges := make([][2]string, 0, len(s.nextEdges))
	for _, e := range s.nextEdges {
		edges = append(edges, [2]string{s.canonical(e[0]), s.canonical(e[1])})
	}

	order, ok := topoSort(nodes, edges)
	if !ok {
		s.sorted = false
		slog.Warn("Cycle in next links, keeping breadth-first order", "edges", len(edges))
		return
	}
	applyOrder(s.parsers, func(p parser.Parser) string { return p.Attribs().URL }, order)
}

// canonical resolves a URL through the observed redirects
func (s *Spider) canonical(u string) string {
	if to, ok := s.redirections[u]; ok {
		return to
	}
	return u
}

func (s *Spider) recordError(url, errorType string, err error) {
	if s.opts.Recorder != nil {
		s.opts.Recorder.RecordError(url, errorType, err.Error())
	}
}

// fetchErrorType classifies fetch failures the way the manifest stores them
func fetchErrorType(err error) string {
	var statusErr *fetch.StatusError
	switch {
	case errors.Is(err, fetch.ErrDisallowed):
		return "robots_disallowed"
	case errors.As(err, &statusErr):
		return "http_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "network_error"
	}
}

// Parsers returns the parsed resources in their final order
func (s *Spider) Parsers() []parser.Parser {
	return s.parsers
}

// Redirections returns the observed requested -> served URL mapping
func (s *Spider) Redirections() map[string]string {
	return s.redirections
}

// Sorted reports whether the next-link ordering succeeded. It is true when
// there was nothing to sort.
func (s *Spider) Sorted() bool {
	return s.sorted
}

// IsIncludedURL exposes the URL policy of the last traversal
func (s *Spider) IsIncludedURL(u string) bool {
	return s.filter != nil && s.filter.IsIncludedURL(u)
}
