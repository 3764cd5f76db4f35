// Package writer turns the ordered resources of a traversal into output
// files: EPUB, a zipped XHTML tree, plain text and PDF.
package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/masahif/hondana/internal/chunker"
	"github.com/masahif/hondana/internal/parser"
	"github.com/masahif/hondana/internal/resource"
)

var (
	// ErrUnknownFormat is returned for an output format no writer handles
	ErrUnknownFormat = errors.New("unknown output format")
	// ErrNoDocuments is returned when a job holds no usable document
	ErrNoDocuments = errors.New("no documents to write")
)

// Image is an image carried outside the parser list, such as a cover
type Image struct {
	Name      string
	MediaType string
	Data      []byte
}

func mediaTypeOf(img *Image) resource.MediaType {
	return resource.ParseMediaType(img.MediaType)
}

// Job is everything a writer needs for one output file
type Job struct {
	// Parsers are the traversal results in reading order, root first
	Parsers []parser.Parser

	Title    string
	Author   string
	Language string
	Cover    *Image

	OutputDir  string
	OutputName string

	MaxChunkSize   int
	SplitSelectors []string
}

// OutputPath returns the file a writer with the given extension produces
func (j *Job) OutputPath(ext string) string {
	name := j.OutputName
	if name == "" {
		name = "book"
	}
	return filepath.Join(j.OutputDir, name+ext)
}

// Writer builds one output format
type Writer interface {
	// Format is the canonical format name
	Format() string
	// Build writes the output and returns its path
	Build(ctx context.Context, job *Job) (string, error)
}

var writers = map[string]func() Writer{
	"epub":  func() Writer { return &EPUBWriter{} },
	"epub3": func() Writer { return &EPUBWriter{} },
	"epub2": func() Writer { return &EPUBWriter{} },
	"html":  func() Writer { return &HTMLWriter{} },
	"txt":   func() Writer { return &TextWriter{} },
	"pdf":   func() Writer { return &PDFWriter{} },
}

// For returns the writer for a format name
func For(format string) (Writer, error) {
	newWriter, ok := writers[strings.ToLower(format)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
	return newWriter(), nil
}

// Formats returns every accepted format name, aliases included
func Formats() []string {
	out := make([]string, 0, len(writers))
	for name := range writers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// book is a job after parsing and chunking
type book struct {
	chunker   *chunker.Chunker
	toc       []resource.TOCEntry
	resources []parser.Parser
	title     string
	author    string
}

// prepare parses every resource, splits the documents into chunks and
// resolves links between them. Resources that fail to parse are skipped.
func prepare(ctx context.Context, job *Job) (*book, error) {
	b := &book{
		chunker: chunker.New(chunker.Options{
			MaxChunkSize:   job.MaxChunkSize,
			SplitSelectors: job.SplitSelectors,
		}),
		title:  job.Title,
		author: job.Author,
	}

	var toc []resource.TOCEntry
	for _, p := range job.Parsers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.Parse(ctx); err != nil {
			slog.Warn("Skipping unparsable resource", "url", p.Attribs().URL, "error", err)
			continue
		}

		doc, ok := p.(parser.Document)
		if !ok || !p.MediaType().IsHTML() {
			b.resources = append(b.resources, p)
			continue
		}
		if err := b.chunker.Split(doc.CloneDocument(), p.Attribs()); err != nil {
			slog.Warn("Skipping document", "url", p.Attribs().URL, "error", err)
			continue
		}
		toc = append(toc, doc.TOC()...)
		if b.title == "" {
			b.title = doc.Title()
		}
		if b.author == "" {
			b.author = doc.Author()
		}
	}

	if len(b.chunker.Chunks()) == 0 {
		return nil, ErrNoDocuments
	}
	if b.title == "" {
		b.title = "Untitled"
	}

	if dangling := b.chunker.RewriteInternalLinks(); len(dangling) > 0 {
		slog.Warn("Book has dangling internal links", "count", len(dangling))
	}
	b.toc = b.chunker.RewriteInternalLinksInTOC(toc)
	return b, nil
}

// localize rewrites every link of the book through f, which maps absolute
// URLs to names inside the output
func (b *book) localize(f func(string) string) {
	b.chunker.RewriteLinks(f)
	for i := range b.toc {
		b.toc[i].URL = f(b.toc[i].URL)
	}
}

// linkMapper returns a rewrite function over a table of fragment-free URLs.
// Fragments are kept and unknown URLs pass through unchanged.
func linkMapper(names map[string]string) func(string) string {
	return func(u string) string {
		base, frag := resource.Defrag(u)
		name, ok := names[base]
		if !ok {
			return u
		}
		if frag != "" {
			return name + "#" + frag
		}
		return name
	}
}

// chunkTitles picks a title for every chunk: its first TOC entry, or the
// book title for the first chunk. Must be called after localize.
func (b *book) chunkTitles() []string {
	first := make(map[string]string)
	for _, e := range b.toc {
		base, _ := resource.Defrag(e.URL)
		if _, ok := first[base]; !ok && e.Title != "" {
			first[base] = e.Title
		}
	}

	chunks := b.chunker.Chunks()
	titles := make([]string, len(chunks))
	for i, chunk := range chunks {
		switch t, ok := first[chunk.Attribs.URL]; {
		case ok:
			titles[i] = t
		case i == 0:
			titles[i] = b.title
		default:
			titles[i] = fmt.Sprintf("%s (%d)", b.title, i+1)
		}
	}
	return titles
}

// resourceName derives a short unique file name for a packaged resource
func resourceName(i int, rawURL string, mt resource.MediaType) string {
	base, _ := resource.Defrag(rawURL)
	name := path.Base(strings.SplitN(base, "?", 2)[0])
	if name == "." || name == "/" || name == "" {
		name = "resource"
	}
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if path.Ext(name) == "" {
		name += extensionFor(mt)
	}
	return fmt.Sprintf("%04d-%s", i, name)
}

var extensions = map[string]string{
	"text/css":      ".css",
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/gif":     ".gif",
	"image/svg+xml": ".svg",
	"image/webp":    ".webp",
	"font/woff":     ".woff",
	"font/woff2":    ".woff2",
	"font/ttf":      ".ttf",
	"font/otf":      ".otf",
}

func extensionFor(mt resource.MediaType) string {
	if ext, ok := extensions[mt.Type]; ok {
		return ext
	}
	return ".bin"
}

// ensureDir creates the output directory of a job
func ensureDir(job *Job) error {
	if job.OutputDir == "" {
		return nil
	}
	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}
