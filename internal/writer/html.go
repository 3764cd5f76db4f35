package writer

import (
	"archive/zip"
	"context"
	"fmt"
	"html"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/net/html/atom"

	"github.com/masahif/hondana/internal/dom"
	"github.com/masahif/hondana/internal/parser"
)

const (
	xhtmlNamespace = "http://www.w3.org/1999/xhtml"
	xhtmlProlog    = "<?xml version=\"1.0\" encoding=\"utf-8\"?>\n<!DOCTYPE html>\n"
	resourceDir    = "res/"
)

// HTMLWriter writes the chunked documents as XHTML files, with an index
// page and every packaged resource, into a zip archive.
type HTMLWriter struct{}

var _ Writer = (*HTMLWriter)(nil)

func (w *HTMLWriter) Format() string {
	return "html"
}

func (w *HTMLWriter) Build(ctx context.Context, job *Job) (string, error) {
	b, err := prepare(ctx, job)
	if err != nil {
		return "", err
	}

	names := make(map[string]string)
	for i, p := range b.resources {
		names[p.Attribs().URL] = resourceDir + resourceName(i+1, p.Attribs().URL, p.MediaType())
	}
	for i, chunk := range b.chunker.Chunks() {
		names[chunk.Attribs.URL] = fmt.Sprintf("%04d.xhtml", i+1)
	}
	mapper := linkMapper(names)
	// stylesheets live next to the resources they reference
	cssMapper := func(u string) string {
		return strings.TrimPrefix(mapper(u), resourceDir)
	}
	b.localize(mapper)

	if err := ensureDir(job); err != nil {
		return "", err
	}
	out := job.OutputPath(".zip")
	f, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	add := func(name string, data []byte) error {
		fw, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", name, err)
		}
		if _, err := fw.Write(data); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		return nil
	}

	if err := add("index.xhtml", w.index(b)); err != nil {
		return "", err
	}
	if job.Cover != nil {
		if err := add(resourceDir+"cover"+extensionFor(mediaTypeOf(job.Cover)), job.Cover.Data); err != nil {
			return "", err
		}
	}
	for _, chunk := range b.chunker.Chunks() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if root := dom.FindElement(chunk.Doc, atom.Html); root != nil {
			dom.SetAttr(root, "xmlns", xhtmlNamespace)
		}
		if err := add(chunk.Attribs.URL, append([]byte(xhtmlProlog), dom.RenderXHTML(chunk.Doc)...)); err != nil {
			return "", err
		}
	}
	for _, p := range b.resources {
		data := p.Data()
		if css, ok := p.(*parser.CSSParser); ok {
			data = css.RewriteURLs(cssMapper)
		}
		if err := add(names[p.Attribs().URL], data); err != nil {
			return "", err
		}
	}

	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("failed to finish archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close archive: %w", err)
	}

	slog.Info("HTML archive written", "path", out, "documents", len(b.chunker.Chunks()), "resources", len(b.resources))
	return out, nil
}

// index renders the table of contents page. Without headings it lists the
// chunks instead.
func (w *HTMLWriter) index(b *book) []byte {
	var s strings.Builder
	s.WriteString(xhtmlProlog)
	fmt.Fprintf(&s, `<html xmlns="%s"><head><meta charset="utf-8"/><title>%s</title></head><body>`, xhtmlNamespace, html.EscapeString(b.title))
	fmt.Fprintf(&s, `<h1>%s</h1>`, html.EscapeString(b.title))
	if b.author != "" {
		fmt.Fprintf(&s, `<p class="author">%s</p>`, html.EscapeString(b.author))
	}
	s.WriteString(`<nav><ul>`)
	if len(b.toc) > 0 {
		for _, e := range b.toc {
			fmt.Fprintf(&s, `<li class="toc-level-%d"><a href="%s">%s</a></li>`, e.Level, html.EscapeString(e.URL), html.EscapeString(e.Title))
		}
	} else {
		titles := b.chunkTitles()
		for i, chunk := range b.chunker.Chunks() {
			fmt.Fprintf(&s, `<li><a href="%s">%s</a></li>`, html.EscapeString(chunk.Attribs.URL), html.EscapeString(titles[i]))
		}
	}
	s.WriteString(`</ul></nav></body></html>`)
	return []byte(s.String())
}
