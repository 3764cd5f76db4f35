package parser

import (
	"context"
	"path"
	"strings"
	"testing"

	"github.com/masahif/hondana/internal/resource"
)

const testCSS = `@import "base.css";
@import url(print.css) print;
body { background: url('img/bg.png') no-repeat; }
.logo { background: url(data:image/png;base64,AAAA) ; }
h1 { color: red; }
`

func newTestCSSParser(t *testing.T) *CSSParser {
	t.Helper()
	attribs := resource.NewAttributes("https://example.com/css/main.css")
	attribs.OrigMediaType = resource.MediaType{Type: resource.TypeCSS}
	p := NewCSSParser(attribs, []byte(testCSS)).(*CSSParser)
	if err := p.PreParse(context.Background()); err != nil {
		t.Fatalf("Failed to pre-parse: %v", err)
	}
	return p
}

func TestCSSParserLinks(t *testing.T) {
	p := newTestCSSParser(t)

	expected := []struct {
		url  string
		kind LinkKind
	}{
		{"https://example.com/css/base.css", KindStyleLink},
		{"https://example.com/css/print.css", KindStyleLink},
		{"https://example.com/css/img/bg.png", KindImage},
	}

	links := collectLinks(p)
	if len(links) != len(expected) {
		t.Fatalf("Expected %d links, got %d", len(expected), len(links))
	}
	for i, want := range expected {
		if links[i].URL != want.url {
			t.Errorf("Link %d: expected URL '%s', got '%s'", i, want.url, links[i].URL)
		}
		if links[i].Kind != want.kind {
			t.Errorf("Link %d: expected kind %s, got %s", i, want.kind, links[i].Kind)
		}
	}
	if !links[0].HasRel(resource.RelStylesheet) {
		t.Error("Expected @import links to carry the stylesheet relation")
	}
}

func TestCSSParserRewriteURLs(t *testing.T) {
	p := newTestCSSParser(t)

	out := string(p.RewriteURLs(func(u string) string {
		return "res/" + path.Base(u)
	}))

	for _, want := range []string{
		`@import "res/base.css";`,
		`@import url("res/print.css") print;`,
		`background: url("res/bg.png") no-repeat;`,
		`url(data:image/png;base64,AAAA)`,
		`h1 { color: red; }`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestCSSParserRemapLinks(t *testing.T) {
	p := newTestCSSParser(t)
	p.RemapLinks(map[string]string{
		"https://example.com/css/img/bg.png": "https://cdn.example.com/bg.png",
	})

	if !strings.Contains(string(p.Data()), `url("https://cdn.example.com/bg.png")`) {
		t.Errorf("Expected remapped url(), got:\n%s", p.Data())
	}
	if !strings.Contains(string(p.Data()), `url("https://example.com/css/print.css")`) {
		t.Errorf("Expected other references made absolute, got:\n%s", p.Data())
	}
}

func TestCSSParserEmpty(t *testing.T) {
	attribs := resource.NewAttributes("https://example.com/empty.css")
	p := NewCSSParser(attribs, []byte(" \n")).(*CSSParser)
	if err := p.Parse(context.Background()); err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	if !p.IsEmpty() {
		t.Error("Expected blank stylesheet to be empty")
	}
	if mt := p.MediaType(); mt.Type != resource.TypeCSS {
		t.Errorf("Expected media type %s, got %s", resource.TypeCSS, mt.Type)
	}
}

func TestUnwrapURI(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{`url(a.png)`, "a.png"},
		{`url( "a b.png" )`, "a b.png"},
		{`URL('x.css')`, "x.css"},
	}
	for _, tt := range tests {
		if got := unwrapURI(tt.in); got != tt.expected {
			t.Errorf("unwrapURI(%q): expected %q, got %q", tt.in, tt.expected, got)
		}
	}
}
