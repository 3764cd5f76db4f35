package writer

import (
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"log/slog"
	"path"
	"strings"

	epub "github.com/go-shiori/go-epub"
	"github.com/google/uuid"
	"golang.org/x/net/html/atom"

	"github.com/masahif/hondana/internal/dom"
	"github.com/masahif/hondana/internal/parser"
	"github.com/masahif/hondana/internal/resource"
)

// EPUBWriter writes an EPUB3 file that also carries an NCX table of
// contents, so EPUB2 readers can open it.
type EPUBWriter struct{}

var _ Writer = (*EPUBWriter)(nil)

func (w *EPUBWriter) Format() string {
	return "epub"
}

func (w *EPUBWriter) Build(ctx context.Context, job *Job) (string, error) {
	b, err := prepare(ctx, job)
	if err != nil {
		return "", err
	}

	e, err := epub.NewEpub(b.title)
	if err != nil {
		return "", fmt.Errorf("failed to create epub: %w", err)
	}
	if b.author != "" {
		e.SetAuthor(b.author)
	}
	lang := job.Language
	if lang == "" {
		lang = "en"
	}
	e.SetLang(lang)
	e.SetIdentifier("urn:uuid:" + uuid.NewString())

	names := make(map[string]string)
	var styles []*parser.CSSParser
	for i, p := range b.resources {
		mt := p.MediaType()
		if css, ok := p.(*parser.CSSParser); ok {
			styles = append(styles, css)
			continue
		}

		name := resourceName(i+1, p.Attribs().URL, mt)
		var internal string
		switch {
		case strings.HasPrefix(mt.Type, "image/"):
			internal, err = e.AddImage(dataURI(mt.Type, p.Data()), name)
		case strings.HasPrefix(mt.Type, "font/"):
			internal, err = e.AddFont(dataURI(mt.Type, p.Data()), name)
		default:
			slog.Debug("Not packaging resource", "url", p.Attribs().URL, "media_type", mt.Type)
			continue
		}
		if err != nil {
			slog.Warn("Failed to add resource to epub", "url", p.Attribs().URL, "error", err)
			continue
		}
		names[p.Attribs().URL] = internal
	}

	cssPath := w.addStyles(e, styles, names)

	if job.Cover != nil {
		w.addCover(e, job.Cover, b.title, cssPath)
	}

	chunks := b.chunker.Chunks()
	for i, chunk := range chunks {
		names[chunk.Attribs.URL] = fmt.Sprintf("chunk%04d.xhtml", i+1)
	}
	b.localize(linkMapper(names))

	titles := b.chunkTitles()
	for i, chunk := range b.chunker.Chunks() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		body := dom.FindElement(chunk.Doc, atom.Body)
		if body == nil {
			continue
		}
		if _, err := e.AddSection(string(dom.RenderChildrenXHTML(body)), titles[i], chunk.Attribs.URL, cssPath); err != nil {
			return "", fmt.Errorf("failed to add section %s: %w", chunk.Attribs.URL, err)
		}
	}

	if err := ensureDir(job); err != nil {
		return "", err
	}
	out := job.OutputPath(".epub")
	if err := e.Write(out); err != nil {
		return "", fmt.Errorf("failed to write epub: %w", err)
	}

	slog.Info("EPUB written", "path", out, "sections", len(chunks), "resources", len(names)-len(chunks))
	return out, nil
}

// addStyles packs all stylesheets into one, with references pointing at the
// packaged files. It returns the internal path, or "" when there is none.
func (w *EPUBWriter) addStyles(e *epub.Epub, styles []*parser.CSSParser, names map[string]string) string {
	if len(styles) == 0 {
		return ""
	}
	var css strings.Builder
	for _, s := range styles {
		css.Write(s.RewriteURLs(linkMapper(names)))
		css.WriteByte('\n')
	}
	cssPath, err := e.AddCSS(dataURI(resource.TypeCSS, []byte(css.String())), "style.css")
	if err != nil {
		slog.Warn("Failed to add stylesheet to epub", "error", err)
		return ""
	}
	return cssPath
}

func (w *EPUBWriter) addCover(e *epub.Epub, cover *Image, title, cssPath string) {
	name := cover.Name
	if name == "" {
		name = "cover" + extensionFor(mediaTypeOf(cover))
	}
	imagePath, err := e.AddImage(dataURI(cover.MediaType, cover.Data), path.Base(name))
	if err != nil {
		slog.Warn("Failed to add cover to epub", "error", err)
		return
	}
	body := fmt.Sprintf(`<div class="cover"><img src="%s" alt="%s"/></div>`, imagePath, html.EscapeString(title))
	if _, err := e.AddSection(body, "Cover", "cover.xhtml", cssPath); err != nil {
		slog.Warn("Failed to add cover page to epub", "error", err)
	}
}

func dataURI(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
