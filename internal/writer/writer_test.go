package writer

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/masahif/hondana/internal/parser"
	"github.com/masahif/hondana/internal/resource"
)

const base = "https://example.com/book/"

func newParser(t *testing.T, factory parser.Factory, rawURL, contentType string, body []byte) parser.Parser {
	t.Helper()
	a := resource.NewAttributes(rawURL)
	a.OrigMediaType = resource.ParseMediaType(contentType)
	p := factory(a, body)
	if err := p.PreParse(context.Background()); err != nil {
		t.Fatalf("PreParse %s failed: %v", rawURL, err)
	}
	return p
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: uint8(x * 40), B: uint8(y * 40), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// newJob builds a two document book with a stylesheet and an image
func newJob(t *testing.T) *Job {
	t.Helper()
	docA := `<html><head><title>Chapter A</title><link rel="stylesheet" href="style.css"></head>
<body><h1>Intro</h1><p>Hello <b>bold</b> &amp; world</p><img src="pic.png" alt="pic"><p><a href="b.html#sec">next</a></p></body></html>`
	docB := `<html><head><title>Chapter B</title></head>
<body><h2 id="sec">Second</h2><p>More text.</p><p><a href="a.html">back</a></p></body></html>`
	css := `body { background: url(pic.png) }`

	return &Job{
		Parsers: []parser.Parser{
			newParser(t, parser.NewHTMLParser, base+"a.html", "text/html; charset=utf-8", []byte(docA)),
			newParser(t, parser.NewHTMLParser, base+"b.html", "text/html; charset=utf-8", []byte(docB)),
			newParser(t, parser.NewCSSParser, base+"style.css", "text/css", []byte(css)),
			newParser(t, parser.NewAuxParser, base+"pic.png", "image/png", pngBytes(t)),
		},
		Title:      "My Book",
		Author:     "Jane Roe",
		OutputDir:  t.TempDir(),
		OutputName: "book",
	}
}

// readZip returns the entries of an archive by name
func readZip(t *testing.T, path string) map[string]string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("Failed to open archive: %v", err)
	}
	defer zr.Close()

	entries := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("Failed to open %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("Failed to read %s: %v", f.Name, err)
		}
		entries[f.Name] = string(data)
	}
	return entries
}

// entryWithSuffix finds an archive entry by the end of its name
func entryWithSuffix(entries map[string]string, suffix string) (string, bool) {
	for name, data := range entries {
		if strings.HasSuffix(name, suffix) {
			return data, true
		}
	}
	return "", false
}

func TestFor(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"epub", "epub"},
		{"epub2", "epub"},
		{"EPUB3", "epub"},
		{"html", "html"},
		{"txt", "txt"},
		{"pdf", "pdf"},
	}
	for _, tt := range tests {
		w, err := For(tt.format)
		if err != nil {
			t.Errorf("For(%q) failed: %v", tt.format, err)
			continue
		}
		if w.Format() != tt.want {
			t.Errorf("For(%q): expected format %s, got %s", tt.format, tt.want, w.Format())
		}
	}

	if _, err := For("mobi"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Expected ErrUnknownFormat, got %v", err)
	}
	if got := len(Formats()); got != 6 {
		t.Errorf("Expected 6 format names, got %d", got)
	}
}

func TestPrepareWithoutDocuments(t *testing.T) {
	job := &Job{
		Parsers: []parser.Parser{
			newParser(t, parser.NewAuxParser, base+"pic.png", "image/png", pngBytes(t)),
		},
	}
	if _, err := prepare(context.Background(), job); !errors.Is(err, ErrNoDocuments) {
		t.Errorf("Expected ErrNoDocuments, got %v", err)
	}
}

func TestHTMLWriterBuild(t *testing.T) {
	job := newJob(t)
	out, err := (&HTMLWriter{}).Build(context.Background(), job)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if out != filepath.Join(job.OutputDir, "book.zip") {
		t.Errorf("Expected output book.zip, got %s", out)
	}

	entries := readZip(t, out)
	for _, name := range []string{"index.xhtml", "0001.xhtml", "0002.xhtml", "res/0001-style.css", "res/0002-pic.png"} {
		if _, ok := entries[name]; !ok {
			t.Errorf("Expected archive entry %s", name)
		}
	}

	first := entries["0001.xhtml"]
	for _, want := range []string{
		`href="0002.xhtml#sec"`,
		`src="res/0002-pic.png"`,
		`href="res/0001-style.css"`,
		`xmlns="http://www.w3.org/1999/xhtml"`,
		`<meta charset="utf-8"/>`,
	} {
		if !strings.Contains(first, want) {
			t.Errorf("Expected first document to contain %s", want)
		}
	}
	if !strings.Contains(entries["0002.xhtml"], `href="0001.xhtml"`) {
		t.Error("Expected back link to point at the first document")
	}
	if !strings.Contains(entries["res/0001-style.css"], `url("0002-pic.png")`) {
		t.Errorf("Expected stylesheet reference relative to res/, got %s", entries["res/0001-style.css"])
	}
	if !strings.Contains(entries["index.xhtml"], `href="0002.xhtml#sec"`) {
		t.Error("Expected index to link the second heading")
	}
}

func TestEPUBWriterBuild(t *testing.T) {
	job := newJob(t)
	job.Cover = &Image{Name: "cover.png", MediaType: "image/png", Data: pngBytes(t)}

	out, err := (&EPUBWriter{}).Build(context.Background(), job)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	entries := readZip(t, out)
	if entries["mimetype"] != "application/epub+zip" {
		t.Errorf("Expected epub mimetype entry, got %q", entries["mimetype"])
	}
	if _, ok := entryWithSuffix(entries, "toc.ncx"); !ok {
		t.Error("Expected an NCX table of contents")
	}
	if _, ok := entryWithSuffix(entries, "cover.xhtml"); !ok {
		t.Error("Expected a cover page")
	}

	first, ok := entryWithSuffix(entries, "chunk0001.xhtml")
	if !ok {
		t.Fatal("Expected chunk0001.xhtml in the epub")
	}
	if !strings.Contains(first, `chunk0002.xhtml#sec`) {
		t.Error("Expected link to the second chunk")
	}
	if !strings.Contains(first, `0002-pic.png`) {
		t.Error("Expected image reference to the packaged image")
	}
	if _, ok := entryWithSuffix(entries, "0002-pic.png"); !ok {
		t.Error("Expected the image in the epub")
	}
}

func TestTextWriterBuild(t *testing.T) {
	job := newJob(t)
	out, err := (&TextWriter{}).Build(context.Background(), job)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("Failed to read output: %v", err)
	}
	text := string(data)

	for _, want := range []string{
		"My Book\n=======\n",
		"Jane Roe\n",
		"Intro\n=====\n",
		"Hello bold & world\n",
		"Second\n------\n",
		"More text.\n",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected text to contain %q, got:\n%s", want, text)
		}
	}
	if strings.Contains(text, "<") {
		t.Error("Expected no markup in text output")
	}
}

func TestPDFWriterBuild(t *testing.T) {
	job := newJob(t)
	job.Cover = &Image{MediaType: "image/png", Data: pngBytes(t)}

	out, err := (&PDFWriter{}).Build(context.Background(), job)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("Failed to read output: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Error("Expected a PDF header")
	}
}

func TestExtractorBlocks(t *testing.T) {
	job := &Job{Parsers: []parser.Parser{
		newParser(t, parser.NewHTMLParser, base+"x.html", "text/html", []byte(
			`<body><div>loose <i>text</i><p>para</p>tail</div><ul><li>one</li><li>two</li></ul><h3>Head</h3></body>`)),
	}}
	b, err := prepare(context.Background(), job)
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	blocks, err := bookBlocks(context.Background(), b)
	if err != nil {
		t.Fatalf("bookBlocks failed: %v", err)
	}

	want := []textBlock{
		{text: "loose text"},
		{text: "para"},
		{text: "tail"},
		{text: "one"},
		{text: "two"},
		{level: 3, text: "Head"},
	}
	if len(blocks) != len(want) {
		t.Fatalf("Expected %d blocks, got %d: %v", len(want), len(blocks), blocks)
	}
	for i := range want {
		if blocks[i] != want[i] {
			t.Errorf("Block %d: expected %+v, got %+v", i, want[i], blocks[i])
		}
	}
}

func TestResourceName(t *testing.T) {
	tests := []struct {
		url  string
		mt   string
		want string
	}{
		{base + "img/pic.png", "image/png", "0001-pic.png"},
		{base + "img/photo?id=3", "image/jpeg", "0001-photo.jpg"},
		{base + "fonts/My Font.woff2", "font/woff2", "0001-My_Font.woff2"},
		{"https://example.com/", "text/css", "0001-resource.css"},
	}
	for _, tt := range tests {
		if got := resourceName(1, tt.url, resource.ParseMediaType(tt.mt)); got != tt.want {
			t.Errorf("resourceName(%q): expected %s, got %s", tt.url, tt.want, got)
		}
	}
}
