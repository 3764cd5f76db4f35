// Package book runs one build: traverse the source, pick or draw a cover,
// then hand the ordered resources to every requested writer.
package book

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/hashicorp/go-multierror"

	"github.com/masahif/hondana/internal/config"
	"github.com/masahif/hondana/internal/cover"
	"github.com/masahif/hondana/internal/fetch"
	"github.com/masahif/hondana/internal/parser"
	"github.com/masahif/hondana/internal/resource"
	"github.com/masahif/hondana/internal/spider"
	"github.com/masahif/hondana/internal/storage"
	"github.com/masahif/hondana/internal/writer"
)

// Options carries what a build needs besides its configuration
type Options struct {
	// Fetcher replaces the HTTP/file client built from the configuration
	Fetcher fetch.Fetcher
	// Progress is called after every parsed resource
	Progress func(parsed, queued int)
}

// Result describes a finished build
type Result struct {
	// BuildID is the manifest id, empty without a manifest
	BuildID   string
	Title     string
	Resources int
	// Sorted is false when next links formed a cycle
	Sorted bool
	// Outputs maps each format that succeeded to its file
	Outputs map[string]string
	Elapsed time.Duration
}

// Build runs the whole job. A failing format does not stop the others;
// their errors are returned together once every format has run.
func Build(ctx context.Context, cfg *config.BuildConfig, opts Options) (*Result, error) {
	start := time.Now()

	rootURL, err := resource.NormalizeURL(cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("invalid source: %w", err)
	}

	fetcher := opts.Fetcher
	if fetcher == nil {
		client, err := newClient(cfg)
		if err != nil {
			return nil, err
		}
		defer client.Close()
		fetcher = client
	}

	var manifest *storage.Build
	if cfg.DatabasePath != "" {
		store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open manifest: %w", err)
		}
		defer func() { _ = store.Close() }()

		manifest, err = store.BeginBuild(rootURL)
		if err != nil {
			return nil, err
		}
		slog.Info("Recording build", "build_id", manifest.ID, "database", cfg.DatabasePath)
	}

	result, err := run(ctx, cfg, opts, fetcher, rootURL, manifest)
	if result != nil {
		result.Elapsed = time.Since(start)
	}
	if manifest != nil {
		if finishErr := manifest.Finish(err); finishErr != nil {
			slog.Error("Failed to finish build record", "build_id", manifest.ID, "error", finishErr)
		}
		if result != nil {
			result.BuildID = manifest.ID
		}
	}
	return result, err
}

func run(ctx context.Context, cfg *config.BuildConfig, opts Options, fetcher fetch.Fetcher, rootURL string, manifest *storage.Build) (*Result, error) {
	registry := parser.NewRegistry(fetcher)
	defer registry.Clear()

	spiderOpts := spider.Options{
		MaxDepth:          cfg.MaxDepth,
		IncludeURLs:       cfg.IncludeURLs,
		ExcludeURLs:       cfg.ExcludeURLs,
		IncludeMediaTypes: cfg.IncludeMediaTypes,
		ExcludeMediaTypes: cfg.ExcludeMediaTypes,
		Progress:          opts.Progress,
	}
	if manifest != nil {
		spiderOpts.Recorder = manifest
	}

	root := resource.NewAttributes(rootURL)
	var extras []*resource.Attributes
	var coverSeed *resource.Attributes
	if cfg.Cover != "" {
		coverURL, err := resource.NormalizeURL(cfg.Cover)
		if err != nil {
			return nil, fmt.Errorf("invalid cover: %w", err)
		}
		coverSeed = resource.NewAttributes(coverURL)
		coverSeed.Relations.Add(resource.RelCoverpage)
		coverSeed.Relations.Add(resource.RelImportant)
		extras = append(extras, coverSeed)
	}

	sp := spider.New(registry, spiderOpts)
	if err := sp.RecursiveParse(ctx, root, extras...); err != nil {
		return nil, err
	}

	parsers, coverImage := extractCover(sp.Parsers(), coverSeed)
	if coverSeed != nil && coverImage == nil {
		slog.Warn("Cover image unavailable", "cover", cfg.Cover)
	}

	result := &Result{
		Resources: len(parsers),
		Sorted:    sp.Sorted(),
		Outputs:   make(map[string]string),
	}

	title, author := cfg.Title, cfg.Author
	if rootDoc := findDocument(parsers, root); rootDoc != nil {
		if err := rootDoc.Parse(ctx); err != nil {
			slog.Warn("Failed to parse root document", "url", root.URL, "error", err)
		}
		if title == "" {
			title = rootDoc.Title()
		}
		if author == "" {
			author = rootDoc.Author()
		}
	}
	result.Title = title

	if coverImage == nil && cfg.GenerateCover {
		data, err := cover.Generate(title, author, cover.Options{})
		if err != nil {
			slog.Warn("Failed to generate cover", "error", err)
		} else {
			coverImage = &writer.Image{Name: "cover.png", MediaType: cover.MediaType, Data: data}
		}
	}

	outputName := cfg.OutputName
	if outputName == "" {
		outputName = fileName(title)
	}

	var errs *multierror.Error
	built := make(map[string]bool)
	for _, format := range cfg.Formats {
		if err := ctx.Err(); err != nil {
			errs = multierror.Append(errs, err)
			break
		}

		w, err := writer.For(format)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		// epub2 and epub3 are aliases of one writer
		if built[w.Format()] {
			continue
		}
		built[w.Format()] = true

		job := &writer.Job{
			Parsers:        parsers,
			Title:          title,
			Author:         author,
			Language:       cfg.Language,
			Cover:          coverImage,
			OutputDir:      cfg.OutputDir,
			OutputName:     outputName,
			MaxChunkSize:   cfg.MaxChunkSize,
			SplitSelectors: cfg.SplitSelectors,
		}

		slog.Info("Building output", "format", w.Format())
		outputPath, err := w.Build(ctx, job)
		if err != nil {
			slog.Error("Failed to build output", "format", w.Format(), "error", err)
			errs = multierror.Append(errs, fmt.Errorf("failed to build %s: %w", w.Format(), err))
			continue
		}

		result.Outputs[w.Format()] = outputPath
		slog.Info("Wrote output", "format", w.Format(), "path", outputPath)
		if manifest != nil {
			if err := manifest.RecordOutput(w.Format(), outputPath); err != nil {
				slog.Error("Failed to record output", "path", outputPath, "error", err)
			}
		}
	}

	return result, errs.ErrorOrNil()
}

func newClient(cfg *config.BuildConfig) (*fetch.Client, error) {
	headers, err := cfg.HeaderMap()
	if err != nil {
		return nil, err
	}
	username, password := cfg.GetBasicAuthCredentials()
	return fetch.NewClient(fetch.Options{
		UserAgent:     cfg.UserAgent,
		Timeout:       cfg.RequestTimeout,
		Delay:         cfg.RequestDelay,
		RespectRobots: cfg.RespectRobots,
		Headers:       headers,
		Username:      username,
		Password:      password,
	}), nil
}

// extractCover returns the cover image and the parsers without the cover
// seed. Without a seed, an image linked with rel="coverpage" is used and
// left in place since documents may show it too.
func extractCover(parsers []parser.Parser, seed *resource.Attributes) ([]parser.Parser, *writer.Image) {
	if seed != nil {
		for i, p := range parsers {
			if p.Attribs() != seed {
				continue
			}
			rest := make([]parser.Parser, 0, len(parsers)-1)
			rest = append(rest, parsers[:i]...)
			rest = append(rest, parsers[i+1:]...)
			if img := imageOf(p); img != nil {
				return rest, img
			}
			slog.Warn("Cover is not an image", "url", p.Attribs().URL, "media_type", p.MediaType().Type)
			return rest, nil
		}
	}

	for _, p := range parsers {
		if !p.Attribs().Relations.Has(resource.RelCoverpage) {
			continue
		}
		if img := imageOf(p); img != nil {
			return parsers, img
		}
	}
	return parsers, nil
}

func imageOf(p parser.Parser) *writer.Image {
	mt := p.MediaType()
	if !strings.HasPrefix(mt.Type, "image/") || len(p.Data()) == 0 {
		return nil
	}
	return &writer.Image{
		Name:      path.Base(p.Attribs().URL),
		MediaType: mt.Type,
		Data:      p.Data(),
	}
}

func findDocument(parsers []parser.Parser, root *resource.Attributes) parser.Document {
	for _, p := range parsers {
		if p.Attribs() != root {
			continue
		}
		if doc, ok := p.(parser.Document); ok {
			return doc
		}
	}
	return nil
}

// fileName turns a title into a file name, keeping letters and digits
func fileName(title string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.TrimSpace(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '.' {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	name := strings.Trim(b.String(), "_.")
	if name == "" {
		return "book"
	}
	return name
}

// IsRootUnavailable reports whether a build failed before any output was
// attempted because the source could not be read
func IsRootUnavailable(err error) bool {
	return errors.Is(err, spider.ErrRootUnavailable)
}
